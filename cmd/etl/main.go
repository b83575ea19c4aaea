package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finetl/internal/config"
	"finetl/internal/etl"
	"finetl/internal/logging"
	"finetl/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		setupOnly   = flag.Bool("setup", false, "create tables, indexes, and views, then exit")
		catalogPath = flag.String("catalog", "", "seed categories and products from this catalog file")
		itemsMode   = flag.Bool("items", false, "treat input files as transaction line items")
		dir         = flag.String("dir", "", "process every supported file in this directory (default: ETL_RAW_DATA_PATH)")
	)
	flag.Parse()

	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return 1
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}
	defer pool.Close()

	st := store.New(pool, log, store.Options{
		BatchSize:     cfg.ETL.BatchSize,
		UseCopy:       cfg.ETL.UseCopy,
		CopyThreshold: cfg.ETL.CopyThreshold,
	})

	if err := st.EnsureSchema(ctx); err != nil {
		log.Error("failed to ensure schema", "error", err)
		return 1
	}
	if *setupOnly {
		log.Info("schema ready")
		return 0
	}

	if *catalogPath != "" {
		entries, err := etl.ReadCatalogFile(*catalogPath)
		if err != nil {
			log.Error("failed to read catalog", "file", *catalogPath, "error", err)
			return 1
		}
		categories, products, err := st.SeedCatalog(ctx, entries)
		if err != nil {
			log.Error("failed to seed catalog", "error", err)
			return 1
		}
		log.Info("catalog seeded", "categories", categories, "products", products)
		if flag.NArg() == 0 && *dir == "" {
			return 0
		}
	}

	extractor := etl.NewExtractor(st, cfg.ETL.MaxFileSize)
	transformer := etl.NewTransformer()
	pipeline := etl.NewPipeline(extractor, transformer, st, log, cfg.ETL.StaleRunAfter)

	files := flag.Args()
	if len(files) == 0 {
		scanDir := *dir
		if scanDir == "" {
			scanDir = cfg.ETL.RawDataPath
		}
		files, err = extractor.ListFiles(scanDir)
		if err != nil {
			log.Error("failed to list input files", "dir", scanDir, "error", err)
			return 1
		}
		if len(files) == 0 {
			log.Warn("no supported files found", "dir", scanDir)
			return 0
		}
	}

	var summary *etl.Summary
	if *itemsMode {
		summary, err = pipeline.RunItems(ctx, files)
	} else {
		summary, err = pipeline.Run(ctx, files)
	}
	if err != nil {
		log.Error("run aborted", "error", err)
		return 1
	}

	printSummary(summary)
	if summary.Failed() {
		return 1
	}
	return 0
}

func printSummary(s *etl.Summary) {
	read, inserted, rejected, duplicates, skipped := s.Totals()
	fmt.Printf("run %s: %d files (%d skipped), %d read, %d inserted, %d rejected, %d duplicates\n",
		s.RunID, len(s.Reports), skipped, read, inserted, rejected, duplicates)
	for _, r := range s.Reports {
		switch {
		case r.Err != nil:
			fmt.Printf("  %-40s ERRO: %v\n", r.File, r.Err)
		case r.Skipped:
			fmt.Printf("  %-40s pulado (ja processado)\n", r.File)
		default:
			fmt.Printf("  %-40s %s: %d/%d inseridos em %s\n",
				r.File, r.Status, r.Inserted, r.Read, r.Elapsed.Round(time.Millisecond))
		}
	}
}
