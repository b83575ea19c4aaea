package etl

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Pipeline drives a full ETL run: stale-run reconciliation, then
// extract, transform, and load for each input file. Every file is
// processed independently; one bad file never stops the run.
type Pipeline struct {
	extractor   *Extractor
	transformer *Transformer
	store       Store
	log         *slog.Logger

	// staleRunAfter is the cutoff for reclaiming abandoned
	// EM_ANDAMENTO runs at the start of each run. Zero disables it.
	staleRunAfter time.Duration
}

func NewPipeline(ex *Extractor, tr *Transformer, st Store, log *slog.Logger, staleRunAfter time.Duration) *Pipeline {
	return &Pipeline{
		extractor:     ex,
		transformer:   tr,
		store:         st,
		log:           log,
		staleRunAfter: staleRunAfter,
	}
}

// FileReport is the per-file outcome of a run.
type FileReport struct {
	File       string
	Skipped    bool
	Read       int
	Inserted   int
	Rejected   int
	Duplicates int
	Status     RunStatus
	Elapsed    time.Duration
	Err        error
}

// Summary aggregates one run over a set of files.
type Summary struct {
	RunID           string
	StaleRunsClosed int64
	Reports         []FileReport
}

// Failed reports whether any file in the run ended in ERRO.
func (s *Summary) Failed() bool {
	for _, r := range s.Reports {
		if r.Err != nil || r.Status == RunError {
			return true
		}
	}
	return false
}

// Totals sums the per-file counters across the run.
func (s *Summary) Totals() (read, inserted, rejected, duplicates, skipped int) {
	for _, r := range s.Reports {
		read += r.Read
		inserted += r.Inserted
		rejected += r.Rejected
		duplicates += r.Duplicates
		if r.Skipped {
			skipped++
		}
	}
	return
}

// RunDir processes every supported file under dir, in name order.
func (p *Pipeline) RunDir(ctx context.Context, dir string) (*Summary, error) {
	files, err := p.extractor.ListFiles(dir)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, files)
}

// Run processes the given files. It returns an error only for faults
// that invalidate the whole run; per-file faults land in the summary.
func (p *Pipeline) Run(ctx context.Context, files []string) (*Summary, error) {
	sum := &Summary{RunID: uuid.NewString()}
	log := p.log.With("run_id", sum.RunID)

	if p.staleRunAfter > 0 {
		closed, err := p.store.ReconcileStaleRuns(ctx, p.staleRunAfter)
		if err != nil {
			return nil, err
		}
		sum.StaleRunsClosed = closed
		if closed > 0 {
			log.Warn("closed stale runs", "count", closed)
		}
	}

	log.Info("run started", "files", len(files))
	for _, path := range files {
		report := p.processFile(ctx, log, path)
		sum.Reports = append(sum.Reports, report)
	}

	read, inserted, rejected, duplicates, skipped := sum.Totals()
	log.Info("run finished",
		"files", len(files),
		"skipped", skipped,
		"read", read,
		"inserted", inserted,
		"rejected", rejected,
		"duplicates", duplicates,
		"failed", sum.Failed(),
	)
	return sum, nil
}

func (p *Pipeline) processFile(ctx context.Context, log *slog.Logger, path string) FileReport {
	start := time.Now()
	report := FileReport{File: path}
	log = log.With("file", path)

	raw, err := p.extractor.Extract(ctx, path)
	if err != nil {
		return p.fail(ctx, log, report, raw, start, err)
	}
	if raw.AlreadyProcessed {
		report.Skipped = true
		report.Elapsed = time.Since(start)
		log.Info("file already processed, skipping", "fingerprint", raw.Fingerprint)
		return report
	}

	res, err := p.transformer.Transform(raw)
	if err != nil {
		return p.fail(ctx, log, report, raw, start, err)
	}
	report.Read = res.Input
	report.Rejected = len(res.Rejected)
	report.Duplicates = res.Duplicates

	batch := &Batch{
		FileName:    raw.Name,
		FilePath:    raw.Path,
		Fingerprint: raw.Fingerprint,
		SizeBytes:   raw.SizeBytes,
		ReadCount:   res.Input,
		Rows:        res.Accepted,
		Rejected:    res.Rejected,
		Duplicates:  res.Duplicates,
	}

	loaded, err := p.store.Load(ctx, batch)
	if err != nil {
		return p.fail(ctx, log, report, raw, start, err)
	}

	report.Inserted = loaded.Inserted
	report.Duplicates += loaded.Duplicates
	report.Status = loaded.Status
	report.Elapsed = time.Since(start)

	log.Info("file loaded",
		"status", string(loaded.Status),
		"read", report.Read,
		"inserted", report.Inserted,
		"rejected", report.Rejected,
		"duplicates", report.Duplicates,
		"elapsed", report.Elapsed,
	)
	return report
}

// fail records a terminal ERRO run for a file that never completed
// loading and folds the fault into the report.
func (p *Pipeline) fail(ctx context.Context, log *slog.Logger, report FileReport, raw *RawFile, start time.Time, cause error) FileReport {
	report.Err = cause
	report.Status = RunError
	report.Elapsed = time.Since(start)
	log.Error("file failed", "error", cause)

	failure := FileFailure{
		FileName: report.File,
		Message:  cause.Error(),
		Elapsed:  report.Elapsed,
	}
	if raw != nil {
		failure.FileName = raw.Name
		failure.Fingerprint = raw.Fingerprint
		failure.ReadCount = len(raw.Records)
	}
	if errors.Is(cause, context.Canceled) {
		return report
	}
	if err := p.store.RecordFailure(ctx, failure); err != nil {
		log.Error("recording failure", "error", err)
	}
	return report
}

// RunItems processes transaction line-item files. Items load after
// their parent transactions; a missing parent or unresolvable product
// surfaces as an integrity reject in the load result, not a run fault.
func (p *Pipeline) RunItems(ctx context.Context, files []string) (*Summary, error) {
	sum := &Summary{RunID: uuid.NewString()}
	log := p.log.With("run_id", sum.RunID)

	log.Info("item run started", "files", len(files))
	for _, path := range files {
		report := p.processItemFile(ctx, log, path)
		sum.Reports = append(sum.Reports, report)
	}
	log.Info("item run finished", "files", len(files), "failed", sum.Failed())
	return sum, nil
}

func (p *Pipeline) processItemFile(ctx context.Context, log *slog.Logger, path string) FileReport {
	start := time.Now()
	report := FileReport{File: path}
	log = log.With("file", path)

	raw, err := p.extractor.ExtractItems(ctx, path)
	if err != nil {
		return p.fail(ctx, log, report, raw, start, err)
	}
	if raw.AlreadyProcessed {
		report.Skipped = true
		report.Elapsed = time.Since(start)
		log.Info("file already processed, skipping", "fingerprint", raw.Fingerprint)
		return report
	}

	batch, err := p.transformer.TransformItems(raw)
	if err != nil {
		return p.fail(ctx, log, report, raw, start, err)
	}
	report.Read = batch.ReadCount
	report.Rejected = len(batch.Rejected)

	loaded, err := p.store.LoadItems(ctx, batch)
	if err != nil {
		return p.fail(ctx, log, report, raw, start, err)
	}

	report.Inserted = loaded.Inserted
	report.Rejected += loaded.IntegrityRejected
	report.Status = loaded.Status
	report.Elapsed = time.Since(start)

	log.Info("item file loaded",
		"status", string(loaded.Status),
		"read", report.Read,
		"inserted", report.Inserted,
		"rejected", report.Rejected,
		"elapsed", report.Elapsed,
	)
	return report
}
