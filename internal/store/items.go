package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"finetl/internal/etl"
)

var itemColumns = []string{
	"id_transacao",
	"produto_id",
	"quantidade",
	"valor_unitario",
	"valor_total",
}

type resolvedItem struct {
	etl.ItemRow
	ProductID int64
}

// LoadItems persists a line-item batch under the same run-log contract
// as Load. Items referencing an unknown product or a transaction that
// was never loaded are counted as integrity rejects, not faults: the
// rest of the batch still commits.
func (s *Store) LoadItems(ctx context.Context, b *etl.ItemBatch) (etl.ItemLoadResult, error) {
	start := time.Now()
	var res etl.ItemLoadResult

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

	resolved, integrityRejects, err := s.resolveItems(ctx, tx, b.Items)
	if err != nil {
		s.markRunError(ctx, logID, err.Error(), time.Since(start))
		return res, &etl.LoadError{Op: "resolve items", Err: err}
	}

	strategy := "batch"
	var inserted int
	if useCopyPath(s.opts.UseCopy, len(resolved), s.opts.CopyThreshold) {
		strategy = "copy"
		inserted, err = s.copyItems(ctx, tx, resolved)
	} else {
		inserted, err = s.insertItems(ctx, tx, resolved)
	}
	if err != nil {
		s.markRunError(ctx, logID, err.Error(), time.Since(start))
		return res, &etl.LoadError{Op: "insert items", Err: err}
	}

	rejected := len(b.Rejected) + integrityRejects
	counts := runCounts{
		read:     b.ReadCount,
		inserted: inserted,
		rejected: rejected,
	}
	status := loadStatus(counts)

	details := map[string]any{
		"batch_size": s.opts.BatchSize,
		"strategy":   strategy,
		"tipo":       "itens",
	}
	if integrityRejects > 0 {
		details["rejeicoes_integridade"] = integrityRejects
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
	res.IntegrityRejected = integrityRejects
	res.Status = status
	res.Elapsed = elapsed
	return res, nil
}

// resolveItems maps product names to catalog ids and verifies parent
// transactions exist. Items failing either lookup are dropped and
// counted.
func (s *Store) resolveItems(ctx context.Context, tx pgx.Tx, items []etl.ItemRow) ([]resolvedItem, int, error) {
	if len(items) == 0 {
		return nil, 0, nil
	}

	productNames := make([]string, 0, len(items))
	txIDs := make([]string, 0, len(items))
	seenName := make(map[string]bool)
	seenTx := make(map[string]bool)
	for _, it := range items {
		if !seenName[it.Product] {
			seenName[it.Product] = true
			productNames = append(productNames, it.Product)
		}
		if !seenTx[it.TransactionID] {
			seenTx[it.TransactionID] = true
			txIDs = append(txIDs, it.TransactionID)
		}
	}

	productIDs := make(map[string]int64, len(productNames))
	rows, err := tx.Query(ctx,
		`SELECT nome, id FROM produtos WHERE nome = ANY($1) AND ativo`, productNames)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var id int64
		if err := rows.Scan(&name, &id); err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		productIDs[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("read products: %w", err)
	}

	loadedTx := make(map[string]bool, len(txIDs))
	txRows, err := tx.Query(ctx,
		`SELECT id_transacao FROM transacoes WHERE id_transacao = ANY($1)`, txIDs)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve transactions: %w", err)
	}
	defer txRows.Close()
	for txRows.Next() {
		var id string
		if err := txRows.Scan(&id); err != nil {
			return nil, 0, fmt.Errorf("scan transaction id: %w", err)
		}
		loadedTx[id] = true
	}
	if err := txRows.Err(); err != nil {
		return nil, 0, fmt.Errorf("read transaction ids: %w", err)
	}

	resolved := make([]resolvedItem, 0, len(items))
	rejected := 0
	for _, it := range items {
		pid, ok := productIDs[it.Product]
		if !ok || !loadedTx[it.TransactionID] {
			rejected++
			continue
		}
		resolved = append(resolved, resolvedItem{ItemRow: it, ProductID: pid})
	}
	return resolved, rejected, nil
}

func (s *Store) insertItems(ctx context.Context, tx pgx.Tx, items []resolvedItem) (int, error) {
	inserted := 0
	for begin := 0; begin < len(items); begin += s.opts.BatchSize {
		end := begin + s.opts.BatchSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[begin:end]

		var sb strings.Builder
		sb.WriteString("INSERT INTO transacao_itens (")
		sb.WriteString(strings.Join(itemColumns, ", "))
		sb.WriteString(") VALUES ")

		args := make([]any, 0, len(chunk)*len(itemColumns))
		for i, it := range chunk {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteByte('(')
			for j := range itemColumns {
				if j > 0 {
					sb.WriteString(", ")
				}
				fmt.Fprintf(&sb, "$%d", i*len(itemColumns)+j+1)
			}
			sb.WriteByte(')')
			args = append(args, itemArgs(it)...)
		}

		tag, err := tx.Exec(ctx, sb.String(), args...)
		if err != nil {
			return 0, fmt.Errorf("insert item chunk at row %d: %w", begin, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (s *Store) copyItems(ctx context.Context, tx pgx.Tx, items []resolvedItem) (int, error) {
	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"transacao_itens"},
		itemColumns,
		pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
			return itemArgs(items[i]), nil
		}))
	if err != nil {
		return 0, fmt.Errorf("copy items: %w", err)
	}
	return int(copied), nil
}

func itemArgs(it resolvedItem) []any {
	return []any{
		it.TransactionID,
		it.ProductID,
		it.Quantity,
		it.UnitPrice,
		it.Total,
	}
}
