package etl

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// itemRequiredColumns for transaction line-item files. valor_total is
// accepted but never trusted: it is recomputed and cross-checked.
var itemRequiredColumns = []string{
	"id_transacao",
	"produto",
	"quantidade",
	"valor_unitario",
}

var itemHeaderAliases = map[string]string{
	"id_transacao":   "id_transacao",
	"transacao_id":   "id_transacao",
	"transaction_id": "id_transacao",
	"produto":        "produto",
	"product":        "produto",
	"quantidade":     "quantidade",
	"qtd":            "quantidade",
	"quantity":       "quantidade",
	"valor_unitario": "valor_unitario",
	"unit_price":     "valor_unitario",
	"valor_total":    "valor_total",
	"total":          "valor_total",
}

// ExtractItems reads a line-item file through the same fingerprinting
// and registry short-circuit as transaction files.
func (e *Extractor) ExtractItems(ctx context.Context, path string) (*RawFile, error) {
	return e.extractWith(ctx, path, itemHeaderAliases, itemRequiredColumns)
}

// TransformItems coerces raw item records. Product resolution against
// the catalog happens later, in the loader; here only value-level
// quality is enforced: quantity > 0, unit price >= 0, and a source
// total (when present) that matches quantity times unit price exactly.
func (t *Transformer) TransformItems(raw *RawFile) (*ItemBatch, error) {
	if len(raw.Records) == 0 {
		return nil, ErrEmptyInput
	}

	batch := &ItemBatch{
		FileName:    raw.Name,
		FilePath:    raw.Path,
		Fingerprint: raw.Fingerprint,
		SizeBytes:   raw.SizeBytes,
		ReadCount:   len(raw.Records),
	}

	for i, rec := range raw.Records {
		line := i + 1

		item, reject := transformItemRecord(rec)
		if reject != nil {
			reject.Line = line
			batch.Rejected = append(batch.Rejected, *reject)
			continue
		}
		batch.Items = append(batch.Items, *item)
	}

	return batch, nil
}

func transformItemRecord(rec Record) (*ItemRow, *RejectedRow) {
	id := strings.TrimSpace(rec["id_transacao"])
	product := strings.TrimSpace(rec["produto"])

	if id == "" {
		return nil, &RejectedRow{Reason: ReasonMissingField, Detail: "id_transacao"}
	}
	if product == "" {
		return nil, &RejectedRow{Reason: ReasonMissingField, Detail: "produto"}
	}

	qty, err := strconv.Atoi(strings.TrimSpace(rec["quantidade"]))
	if err != nil || qty <= 0 {
		return nil, &RejectedRow{
			Reason: ReasonInvalidQuantity,
			Detail: fmt.Sprintf("quantidade=%q", rec["quantidade"]),
		}
	}

	unitPrice, ok := ParseAmount(rec["valor_unitario"])
	if !ok {
		return nil, &RejectedRow{
			Reason: ReasonInvalidAmount,
			Detail: fmt.Sprintf("valor_unitario=%q", rec["valor_unitario"]),
		}
	}
	if unitPrice.IsNegative() {
		return nil, &RejectedRow{
			Reason: ReasonNegativeAmount,
			Detail: fmt.Sprintf("valor_unitario=%s", unitPrice.String()),
		}
	}

	// The line total is derived, never copied from the source. A source
	// total that disagrees marks a corrupt row.
	total := unitPrice.Mul(intDecimal(qty))
	if srcRaw := strings.TrimSpace(rec["valor_total"]); srcRaw != "" {
		src, ok := ParseAmount(srcRaw)
		if !ok || !src.Equal(total) {
			return nil, &RejectedRow{
				Reason: ReasonTotalMismatch,
				Detail: fmt.Sprintf("valor_total=%q esperado=%s", srcRaw, total.String()),
			}
		}
	}

	return &ItemRow{
		TransactionID: id,
		Product:       product,
		Quantity:      qty,
		UnitPrice:     unitPrice,
		Total:         total,
	}, nil
}
