package store

import (
	"context"
	"fmt"

	"finetl/internal/etl"
)

// SeedCatalog upserts the category and product dimensions from a
// catalog file. Existing names keep their rows; price and activity
// fields refresh on re-seed.
func (s *Store) SeedCatalog(ctx context.Context, entries []etl.CatalogEntry) (categories, products int, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	categoryIDs := make(map[string]int64)
	for _, e := range entries {
		if _, ok := categoryIDs[e.Category]; ok {
			continue
		}
		var id int64
		err := tx.QueryRow(ctx,
			`INSERT INTO categorias (nome, descricao)
			 VALUES ($1, NULLIF($2, ''))
			 ON CONFLICT (nome) DO UPDATE SET
				descricao = COALESCE(NULLIF(EXCLUDED.descricao, ''), categorias.descricao)
			 RETURNING id`,
			e.Category, e.CategoryDescription).Scan(&id)
		if err != nil {
			return 0, 0, fmt.Errorf("upsert category %q: %w", e.Category, err)
		}
		categoryIDs[e.Category] = id
		categories++
	}

	for _, e := range entries {
		tag, err := tx.Exec(ctx,
			`INSERT INTO produtos
				(categoria_id, nome, descricao, preco_base, preco_min, preco_max, ativo)
			 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
			 ON CONFLICT (nome) DO UPDATE SET
				categoria_id = EXCLUDED.categoria_id,
				preco_base   = EXCLUDED.preco_base,
				preco_min    = EXCLUDED.preco_min,
				preco_max    = EXCLUDED.preco_max,
				ativo        = EXCLUDED.ativo`,
			categoryIDs[e.Category], e.Product, e.Description,
			e.BasePrice, e.MinPrice, e.MaxPrice, e.Active)
		if err != nil {
			return 0, 0, fmt.Errorf("upsert product %q: %w", e.Product, err)
		}
		products += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit: %w", err)
	}
	return categories, products, nil
}
