package etl

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var catalogRequiredColumns = []string{
	"categoria",
	"produto",
	"preco_base",
}

var catalogHeaderAliases = map[string]string{
	"categoria":           "categoria",
	"category":            "categoria",
	"categoria_descricao": "categoria_descricao",
	"descricao_categoria": "categoria_descricao",
	"produto":             "produto",
	"product":             "produto",
	"descricao":           "descricao",
	"descricao_produto":   "descricao",
	"description":         "descricao",
	"preco_base":          "preco_base",
	"base_price":          "preco_base",
	"preco_min":           "preco_min",
	"preco_minimo":        "preco_min",
	"min_price":           "preco_min",
	"preco_max":           "preco_max",
	"preco_maximo":        "preco_max",
	"max_price":           "preco_max",
	"ativo":               "ativo",
	"active":              "ativo",
}

// ReadCatalogFile parses a category/product seed file. The catalog is
// reference data, not transactional input: it skips the processed-file
// registry and rejects nothing, failing the whole file on the first
// malformed row instead.
func ReadCatalogFile(path string) ([]CatalogEntry, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExtensions[ext] {
		return nil, extractErr(path, fmt.Sprintf("unsupported extension %q", ext), nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, extractErr(path, "read file", err)
	}

	var rows [][]string
	if ext == ".xlsx" {
		rows, err = readXLSX(data)
	} else {
		rows, err = readCSV(data)
	}
	if err != nil {
		return nil, extractErr(path, "parse file", err)
	}

	records, err := recordize(rows, catalogHeaderAliases, catalogRequiredColumns)
	if err != nil {
		return nil, extractErr(path, err.Error(), nil)
	}

	entries := make([]CatalogEntry, 0, len(records))
	for i, rec := range records {
		entry, err := catalogEntry(rec)
		if err != nil {
			return nil, extractErr(path, fmt.Sprintf("row %d: %v", i+1, err), nil)
		}
		entries = append(entries, *entry)
	}
	if len(entries) == 0 {
		return nil, extractErr(path, "no catalog entries", nil)
	}

	return entries, nil
}

func catalogEntry(rec Record) (*CatalogEntry, error) {
	category := strings.TrimSpace(rec["categoria"])
	product := strings.TrimSpace(rec["produto"])
	if category == "" || product == "" {
		return nil, fmt.Errorf("categoria and produto are required")
	}

	base, ok := ParseAmount(rec["preco_base"])
	if !ok || base.IsNegative() {
		return nil, fmt.Errorf("invalid preco_base %q", rec["preco_base"])
	}

	entry := &CatalogEntry{
		Category:            category,
		CategoryDescription: strings.TrimSpace(rec["categoria_descricao"]),
		Product:             product,
		Description:         strings.TrimSpace(rec["descricao"]),
		BasePrice:           base,
		MinPrice:            base,
		MaxPrice:            base,
		Active:              true,
	}

	if v := strings.TrimSpace(rec["preco_min"]); v != "" {
		min, ok := ParseAmount(v)
		if !ok || min.IsNegative() {
			return nil, fmt.Errorf("invalid preco_min %q", v)
		}
		entry.MinPrice = min
	}
	if v := strings.TrimSpace(rec["preco_max"]); v != "" {
		max, ok := ParseAmount(v)
		if !ok || max.IsNegative() {
			return nil, fmt.Errorf("invalid preco_max %q", v)
		}
		entry.MaxPrice = max
	}
	if entry.MinPrice.GreaterThan(entry.MaxPrice) {
		return nil, fmt.Errorf("preco_min %s above preco_max %s", entry.MinPrice, entry.MaxPrice)
	}

	if v := strings.TrimSpace(rec["ativo"]); v != "" {
		entry.Active = parseActive(v)
	}
	return entry, nil
}

func parseActive(s string) bool {
	switch strings.ToLower(s) {
	case "0", "false", "nao", "não", "n", "inativo":
		return false
	default:
		return true
	}
}
