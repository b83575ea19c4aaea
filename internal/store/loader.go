package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"finetl/internal/etl"
)

var transactionColumns = []string{
	"id_transacao",
	"data_transacao",
	"cliente",
	"produto",
	"categoria",
	"valor",
	"status_pagamento",
	"data_pagamento",
	"ano_transacao",
	"mes_transacao",
	"dia_semana",
	"trimestre",
	"arquivo_origem",
}

// useCopyPath decides the write strategy for a batch. Pure function of
// its inputs so the cutover is testable without a database.
func useCopyPath(enabled bool, rows, threshold int) bool {
	return enabled && rows >= threshold
}

// Load persists one file's accepted rows and finalizes its run log.
//
// The EM_ANDAMENTO log row commits before the data transaction opens;
// data inserts, log finalization, and the processed-file upsert then
// commit together. On failure the data transaction rolls back whole
// and the log row is flipped to ERRO in a separate statement, so a
// load is either fully recorded or fully absent, but its attempt is
// always visible.
func (s *Store) Load(ctx context.Context, b *etl.Batch) (etl.LoadResult, error) {
	start := time.Now()
	var res etl.LoadResult

	logID, err := s.beginRun(ctx, b.FileName, b.Fingerprint)
	if err != nil {
		return res, &etl.LoadError{Op: "begin run", Err: err}
	}
	res.LogID = logID

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		s.markRunError(ctx, logID, err.Error(), time.Since(start))
		return res, &etl.LoadError{Op: "begin transaction", Err: err}
	}
	defer tx.Rollback(ctx)

	strategy := "batch"
	var inserted, dbDuplicates int
	if useCopyPath(s.opts.UseCopy, len(b.Rows), s.opts.CopyThreshold) {
		strategy = "copy"
		inserted, err = s.copyRows(ctx, tx, b.Rows)
		dbDuplicates = len(b.Rows) - inserted
	} else {
		inserted, dbDuplicates, err = s.insertRows(ctx, tx, b.Rows)
	}
	if err != nil {
		s.markRunError(ctx, logID, err.Error(), time.Since(start))
		return res, &etl.LoadError{Op: "insert rows", Err: err}
	}

	counts := runCounts{
		read:       b.ReadCount,
		inserted:   inserted,
		rejected:   len(b.Rejected),
		duplicates: b.Duplicates + dbDuplicates,
	}
	status := loadStatus(counts)

	details := map[string]any{
		"batch_size": s.opts.BatchSize,
		"strategy":   strategy,
	}
	if len(b.Rejected) > 0 {
		details["motivos_rejeicao"] = etl.RejectBreakdown(b.Rejected)
	}

	elapsed := time.Since(start)
	if err := s.finalizeRun(ctx, tx, logID, status, counts, elapsed, details); err != nil {
		s.markRunError(ctx, logID, err.Error(), time.Since(start))
		return res, &etl.LoadError{Op: "finalize run", Err: err}
	}
	if err := s.upsertProcessedFile(ctx, tx, b.FileName, b.FilePath, b.SizeBytes, b.Fingerprint, logID); err != nil {
		s.markRunError(ctx, logID, err.Error(), time.Since(start))
		return res, &etl.LoadError{Op: "register file", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		s.markRunError(ctx, logID, err.Error(), time.Since(start))
		return res, &etl.LoadError{Op: "commit", Err: err}
	}

	res.Inserted = inserted
	res.Duplicates = counts.duplicates
	res.Status = status
	res.Elapsed = elapsed
	return res, nil
}

// loadStatus applies the terminal-status rule: clean load is SUCESSO,
// rejects with progress is PARCIAL, rejects without progress is ERRO.
func loadStatus(c runCounts) etl.RunStatus {
	if c.rejected == 0 {
		return etl.RunSuccess
	}
	if c.inserted > 0 {
		return etl.RunPartial
	}
	return etl.RunError
}

// insertRows is the parameterized path: multi-row INSERT statements of
// up to BatchSize rows, with a pre-check that strips ids already in
// the table. The unique constraint stays the ground truth; the
// pre-check only keeps conflict churn off the common re-run case.
func (s *Store) insertRows(ctx context.Context, tx pgx.Tx, rows []etl.Row) (inserted, duplicates int, err error) {
	fresh, preDup, err := filterExisting(ctx, tx, rows)
	if err != nil {
		return 0, 0, err
	}
	duplicates = preDup

	for begin := 0; begin < len(fresh); begin += s.opts.BatchSize {
		end := begin + s.opts.BatchSize
		if end > len(fresh) {
			end = len(fresh)
		}
		chunk := fresh[begin:end]

		query, args := buildInsert(chunk)
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return 0, 0, fmt.Errorf("insert chunk at row %d: %w", begin, err)
		}
		inserted += int(tag.RowsAffected())
	}

	duplicates += len(fresh) - inserted
	return inserted, duplicates, nil
}

// filterExisting splits out rows whose business id is already loaded.
func filterExisting(ctx context.Context, tx pgx.Tx, rows []etl.Row) ([]etl.Row, int, error) {
	if len(rows) == 0 {
		return nil, 0, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.TransactionID
	}

	existing := make(map[string]bool)
	dbRows, err := tx.Query(ctx,
		`SELECT id_transacao FROM transacoes WHERE id_transacao = ANY($1)`, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("check existing ids: %w", err)
	}
	defer dbRows.Close()
	for dbRows.Next() {
		var id string
		if err := dbRows.Scan(&id); err != nil {
			return nil, 0, fmt.Errorf("scan existing id: %w", err)
		}
		existing[id] = true
	}
	if err := dbRows.Err(); err != nil {
		return nil, 0, fmt.Errorf("read existing ids: %w", err)
	}

	fresh := make([]etl.Row, 0, len(rows))
	for _, r := range rows {
		if existing[r.TransactionID] {
			continue
		}
		fresh = append(fresh, r)
	}
	return fresh, len(rows) - len(fresh), nil
}

// buildInsert renders one multi-row insert with ON CONFLICT DO NOTHING
// on the business id.
func buildInsert(rows []etl.Row) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO transacoes (")
	sb.WriteString(strings.Join(transactionColumns, ", "))
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(transactionColumns))
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := range transactionColumns {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*len(transactionColumns)+j+1)
		}
		sb.WriteByte(')')
		args = append(args, rowArgs(r)...)
	}

	sb.WriteString(" ON CONFLICT (id_transacao) DO NOTHING")
	return sb.String(), args
}

func rowArgs(r etl.Row) []any {
	return []any{
		r.TransactionID,
		r.TransactionAt,
		r.Customer,
		r.Product,
		r.Category,
		r.Amount,
		string(r.Status),
		r.PaidAt,
		r.Year,
		r.Month,
		r.Weekday,
		r.Quarter,
		r.SourceFile,
	}
}

// copyRows is the bulk path: stream everything into a temp staging
// table with COPY, then reconcile into transacoes with one set-based
// insert. The staging table drops with the transaction either way.
func (s *Store) copyRows(ctx context.Context, tx pgx.Tx, rows []etl.Row) (int, error) {
	_, err := tx.Exec(ctx,
		`CREATE TEMP TABLE staging_transacoes (
			id_transacao     VARCHAR(50),
			data_transacao   TIMESTAMP,
			cliente          VARCHAR(255),
			produto          VARCHAR(255),
			categoria        VARCHAR(100),
			valor            DECIMAL(15,2),
			status_pagamento VARCHAR(50),
			data_pagamento   TIMESTAMP,
			ano_transacao    INTEGER,
			mes_transacao    INTEGER,
			dia_semana       INTEGER,
			trimestre        INTEGER,
			arquivo_origem   VARCHAR(255)
		) ON COMMIT DROP`)
	if err != nil {
		return 0, fmt.Errorf("create staging table: %w", err)
	}

	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"staging_transacoes"},
		transactionColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			return rowArgs(rows[i]), nil
		}))
	if err != nil {
		return 0, fmt.Errorf("copy into staging: %w", err)
	}
	if copied != int64(len(rows)) {
		return 0, fmt.Errorf("copy into staging: wrote %d of %d rows", copied, len(rows))
	}

	tag, err := tx.Exec(ctx, fmt.Sprintf(
		`INSERT INTO transacoes (%s)
		 SELECT %s FROM staging_transacoes
		 ON CONFLICT (id_transacao) DO NOTHING`,
		strings.Join(transactionColumns, ", "),
		strings.Join(transactionColumns, ", ")))
	if err != nil {
		return 0, fmt.Errorf("reconcile staging rows: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
