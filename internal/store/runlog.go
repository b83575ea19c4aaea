package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"finetl/internal/etl"
)

// IsFileProcessed reports whether a file with this content fingerprint
// was already ingested to completion.
func (s *Store) IsFileProcessed(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM arquivos_processados
			WHERE hash_arquivo = $1 AND status = 'PROCESSADO'
		)`, fingerprint).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check processed file: %w", err)
	}
	return exists, nil
}

// beginRun inserts the EM_ANDAMENTO log row outside the data
// transaction, so a crash mid-load leaves a visible open run.
func (s *Store) beginRun(ctx context.Context, fileName, fingerprint string) (int64, error) {
	var logID int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO logs_etl (arquivo_processado, status_execucao, arquivo_hash)
		 VALUES ($1, 'EM_ANDAMENTO', $2)
		 RETURNING id_log`, fileName, fingerprint).Scan(&logID)
	if err != nil {
		return 0, fmt.Errorf("create run log: %w", err)
	}
	return logID, nil
}

type runCounts struct {
	read       int
	inserted   int
	rejected   int
	duplicates int
}

// finalizeRun writes the terminal state of a run. It runs inside the
// data transaction so counts and data commit atomically.
func (s *Store) finalizeRun(ctx context.Context, db DBTX, logID int64, status etl.RunStatus, c runCounts, elapsed time.Duration, details any) error {
	var detailsJSON []byte
	if details != nil {
		var err error
		detailsJSON, err = json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshal run details: %w", err)
		}
	}

	_, err := db.Exec(ctx,
		`UPDATE logs_etl SET
			status_execucao          = $2,
			qtd_registros_lidos      = $3,
			qtd_registros_inseridos  = $4,
			qtd_registros_rejeitados = $5,
			qtd_duplicatas_ignoradas = $6,
			tempo_execucao_seg       = $7,
			detalhes                 = $8
		 WHERE id_log = $1`,
		logID, string(status), c.read, c.inserted, c.rejected, c.duplicates,
		elapsed.Seconds(), detailsJSON)
	if err != nil {
		return fmt.Errorf("finalize run log: %w", err)
	}
	return nil
}

// markRunError flips a run to ERRO after its data transaction rolled
// back. Runs on the pool, never inside the failed transaction.
func (s *Store) markRunError(ctx context.Context, logID int64, msg string, elapsed time.Duration) {
	_, err := s.pool.Exec(ctx,
		`UPDATE logs_etl SET
			status_execucao    = 'ERRO',
			mensagem_erro      = $2,
			tempo_execucao_seg = $3
		 WHERE id_log = $1`, logID, msg, elapsed.Seconds())
	if err != nil {
		s.log.Error("marking run as failed", "log_id", logID, "error", err)
	}
}

// upsertProcessedFile records the file in the reprocessing guard. Runs
// inside the data transaction. A re-run of a renamed-but-identical file
// never reaches here (the fingerprint check fires first), so the
// nome_arquivo conflict only triggers for a changed file under the
// same name: the entry then points at the newest load.
func (s *Store) upsertProcessedFile(ctx context.Context, db DBTX, name, path string, sizeBytes int64, fingerprint string, logID int64) error {
	_, err := db.Exec(ctx,
		`INSERT INTO arquivos_processados
			(nome_arquivo, caminho_completo, tamanho_bytes, hash_arquivo, status, id_log_etl)
		 VALUES ($1, $2, $3, $4, 'PROCESSADO', $5)
		 ON CONFLICT (nome_arquivo) DO UPDATE SET
			caminho_completo   = EXCLUDED.caminho_completo,
			tamanho_bytes      = EXCLUDED.tamanho_bytes,
			hash_arquivo       = EXCLUDED.hash_arquivo,
			status             = EXCLUDED.status,
			id_log_etl         = EXCLUDED.id_log_etl,
			data_processamento = CURRENT_TIMESTAMP`,
		name, path, sizeBytes, fingerprint, logID)
	if err != nil {
		return fmt.Errorf("register processed file: %w", err)
	}
	return nil
}

// RecordFailure writes a terminal ERRO log for a file that never
// reached the loader.
func (s *Store) RecordFailure(ctx context.Context, f etl.FileFailure) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO logs_etl
			(arquivo_processado, qtd_registros_lidos, status_execucao,
			 mensagem_erro, tempo_execucao_seg, arquivo_hash)
		 VALUES ($1, $2, 'ERRO', $3, $4, $5)`,
		f.FileName, f.ReadCount, f.Message, f.Elapsed.Seconds(), nullIfEmpty(f.Fingerprint))
	if err != nil {
		return fmt.Errorf("record file failure: %w", err)
	}
	return nil
}

// ReconcileStaleRuns flips EM_ANDAMENTO runs older than the cutoff to
// ERRO. Covers loads killed before they could finalize their log.
func (s *Store) ReconcileStaleRuns(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx,
		`UPDATE logs_etl SET
			status_execucao = 'ERRO',
			mensagem_erro   = 'execucao abandonada, encerrada na reconciliacao'
		 WHERE status_execucao = 'EM_ANDAMENTO' AND data_execucao < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reconcile stale runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
