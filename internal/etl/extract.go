package etl

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Columns required in every transaction file, by canonical name.
var requiredColumns = []string{
	"id_transacao",
	"data_transacao",
	"cliente",
	"produto",
	"categoria",
	"valor",
	"status_pagamento",
}

// optionalColumns may be absent; rows simply carry no value for them.
var optionalColumns = []string{"data_pagamento"}

// headerAliases maps accepted header spellings (after NormalizeHeader)
// to canonical field names. Headers outside this table are ignored.
var headerAliases = map[string]string{
	"id_transacao":     "id_transacao",
	"transacao_id":     "id_transacao",
	"id_da_transacao":  "id_transacao",
	"transaction_id":   "id_transacao",
	"data_transacao":   "data_transacao",
	"data_da_transacao": "data_transacao",
	"data":             "data_transacao",
	"transaction_date": "data_transacao",
	"cliente":          "cliente",
	"nome_cliente":     "cliente",
	"customer":         "cliente",
	"produto":          "produto",
	"product":          "produto",
	"categoria":        "categoria",
	"category":         "categoria",
	"valor":            "valor",
	"valor_transacao":  "valor",
	"amount":           "valor",
	"status_pagamento": "status_pagamento",
	"status":           "status_pagamento",
	"payment_status":   "status_pagamento",
	"data_pagamento":   "data_pagamento",
	"payment_date":     "data_pagamento",
}

// supportedExtensions are the file types the extractor reads.
var supportedExtensions = map[string]bool{
	".csv":  true,
	".xlsx": true,
}

// ProcessedRegistry answers whether a content fingerprint was already
// ingested. Backed by the arquivos_processados table.
type ProcessedRegistry interface {
	IsFileProcessed(ctx context.Context, fingerprint string) (bool, error)
}

// Extractor reads source files into raw row records.
type Extractor struct {
	registry    ProcessedRegistry
	maxFileSize int64
}

// NewExtractor creates an extractor. maxFileSize caps input size in
// bytes; zero means no limit.
func NewExtractor(registry ProcessedRegistry, maxFileSize int64) *Extractor {
	return &Extractor{registry: registry, maxFileSize: maxFileSize}
}

// ListFiles returns the supported files in dir, sorted by name.
func (e *Extractor) ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if supportedExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Extract reads one file into raw records.
//
// It fingerprints the raw bytes first and consults the processed-file
// registry: an identical re-submission short-circuits with
// AlreadyProcessed set and zero records, before any parsing happens.
// Unreadable files, unsupported extensions, and files missing required
// columns fail with *ExtractionError.
func (e *Extractor) Extract(ctx context.Context, path string) (*RawFile, error) {
	return e.extractWith(ctx, path, headerAliases, requiredColumns)
}

// extractWith is the shared read path; the alias table and required
// column set vary per file kind (transactions, items, catalog).
func (e *Extractor) extractWith(ctx context.Context, path string, aliases map[string]string, required []string) (*RawFile, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExtensions[ext] {
		return nil, extractErr(path, fmt.Sprintf("unsupported extension %q", ext), nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, extractErr(path, "stat file", err)
	}
	if e.maxFileSize > 0 && info.Size() > e.maxFileSize {
		return nil, extractErr(path, fmt.Sprintf("file size %d exceeds limit %d", info.Size(), e.maxFileSize), nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, extractErr(path, "read file", err)
	}

	sum := sha256.Sum256(data)
	raw := &RawFile{
		Path:        path,
		Name:        filepath.Base(path),
		SizeBytes:   info.Size(),
		Fingerprint: hex.EncodeToString(sum[:]),
	}

	if e.registry != nil {
		processed, err := e.registry.IsFileProcessed(ctx, raw.Fingerprint)
		if err != nil {
			return nil, extractErr(path, "check processed registry", err)
		}
		if processed {
			raw.AlreadyProcessed = true
			return raw, nil
		}
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

	records, err := recordize(rows, aliases, required)
	if err != nil {
		return nil, extractErr(path, err.Error(), nil)
	}
	raw.Records = records

	return raw, nil
}

// readCSV parses CSV bytes with encoding and delimiter detection.
func readCSV(data []byte) ([][]string, error) {
	data = decodeText(data)

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = detectDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	return r.ReadAll()
}

// readXLSX parses the first sheet of an xlsx workbook.
func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	return f.GetRows(sheets[0])
}

// recordize resolves the header row against an alias table and builds
// canonical records from the data rows. Fails if any required column is
// missing after aliasing.
func recordize(rows [][]string, aliases map[string]string, required []string) ([]Record, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty file")
	}

	// position -> canonical field, resolved once
	fieldAt := make(map[int]string)
	seen := make(map[string]bool)
	for i, h := range rows[0] {
		canonical, ok := aliases[NormalizeHeader(h)]
		if !ok || seen[canonical] {
			continue
		}
		fieldAt[i] = canonical
		seen[canonical] = true
	}

	var missing []string
	for _, col := range required {
		if !seen[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isEmptyRow(row) {
			continue
		}
		rec := make(Record, len(fieldAt))
		for i, field := range fieldAt {
			if i < len(row) {
				rec[field] = row[i]
			}
		}
		records = append(records, rec)
	}

	return records, nil
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Fingerprint hashes a reader's content the same way Extract does.
// Used by tests and tooling that need to predict registry matches.
func Fingerprint(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
