// Package store is the PostgreSQL persistence layer: schema management,
// the bulk transaction loader with its run-log bookkeeping, and the
// read-side queries behind the metrics API.
package store

import (
	"context"
	"fmt"
	"log/slog"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"finetl/internal/config"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Options tune the loader's write strategy.
type Options struct {
	// BatchSize is the row count per multi-row INSERT statement.
	BatchSize int

	// UseCopy enables the staging-table COPY path for batches of at
	// least CopyThreshold accepted rows.
	UseCopy       bool
	CopyThreshold int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 1000
	}
	if o.CopyThreshold <= 0 {
		o.CopyThreshold = 200000
	}
	return o
}

// Store wraps a pgx pool with the loader and query surface.
type Store struct {
	pool *pgxpool.Pool
	opts Options
	log  *slog.Logger
}

func New(pool *pgxpool.Pool, log *slog.Logger, opts Options) *Store {
	return &Store{pool: pool, opts: opts.withDefaults(), log: log}
}

// Pool exposes the underlying pool for callers that manage lifecycle.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Close() { s.pool.Close() }

// Connect builds a pgx pool from config and verifies connectivity.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pc.MaxConns = int32(cfg.MaxConns)
	pc.MinConns = int32(cfg.MinConns)
	pc.MaxConnLifetime = cfg.MaxConnLifetime

	// Register the shopspring decimal codec so money values stay exact
	// through both the parameterized and COPY paths.
	pc.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
