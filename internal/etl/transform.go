package etl

import (
	"fmt"
	"strings"
	"time"
)

// Transformer normalizes raw records into validated transaction rows.
// The zero value is usable; Now is injectable for the future-date rule.
type Transformer struct {
	Now func() time.Time
}

// NewTransformer returns a transformer using the wall clock.
func NewTransformer() *Transformer {
	return &Transformer{Now: time.Now}
}

func (t *Transformer) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Transform runs the full normalization pipeline over a file's records:
// type coercion, required-field checks, derived calendar fields, and
// in-batch deduplication on id_transacao (first occurrence wins).
//
// Data-quality failures are collected as rejects, never returned as
// errors. The only error is ErrEmptyInput for a file with no data rows.
func (t *Transformer) Transform(raw *RawFile) (*TransformResult, error) {
	if len(raw.Records) == 0 {
		return nil, ErrEmptyInput
	}

	res := &TransformResult{Input: len(raw.Records)}
	now := t.now()
	seen := make(map[string]bool, len(raw.Records))

	for i, rec := range raw.Records {
		line := i + 1

		row, reject := t.transformRecord(rec, now)
		if reject != nil {
			reject.Line = line
			res.Rejected = append(res.Rejected, *reject)
			continue
		}

		if seen[row.TransactionID] {
			res.Duplicates++
			continue
		}
		seen[row.TransactionID] = true

		row.SourceFile = raw.Name
		res.Accepted = append(res.Accepted, *row)
	}

	return res, nil
}

// transformRecord coerces one record into a Row or a reject.
func (t *Transformer) transformRecord(rec Record, now time.Time) (*Row, *RejectedRow) {
	id := strings.TrimSpace(rec["id_transacao"])
	customer := strings.TrimSpace(rec["cliente"])
	product := strings.TrimSpace(rec["produto"])
	category := strings.TrimSpace(rec["categoria"])

	for field, v := range map[string]string{
		"id_transacao": id,
		"cliente":      customer,
		"produto":      product,
		"categoria":    category,
	} {
		if v == "" {
			return nil, &RejectedRow{
				Reason: ReasonMissingField,
				Detail: field,
			}
		}
	}

	txAt, ok := ParseTimestamp(rec["data_transacao"])
	if !ok {
		if strings.TrimSpace(rec["data_transacao"]) == "" {
			return nil, &RejectedRow{Reason: ReasonMissingField, Detail: "data_transacao"}
		}
		return nil, &RejectedRow{
			Reason: ReasonInvalidDate,
			Detail: fmt.Sprintf("data_transacao=%q", rec["data_transacao"]),
		}
	}
	if txAt.After(now) {
		return nil, &RejectedRow{
			Reason: ReasonFutureDate,
			Detail: fmt.Sprintf("data_transacao=%s", txAt.Format("2006-01-02")),
		}
	}

	amount, ok := ParseAmount(rec["valor"])
	if !ok {
		if strings.TrimSpace(rec["valor"]) == "" {
			return nil, &RejectedRow{Reason: ReasonMissingField, Detail: "valor"}
		}
		return nil, &RejectedRow{
			Reason: ReasonInvalidAmount,
			Detail: fmt.Sprintf("valor=%q", rec["valor"]),
		}
	}
	if amount.IsNegative() {
		return nil, &RejectedRow{
			Reason: ReasonNegativeAmount,
			Detail: fmt.Sprintf("valor=%s", amount.String()),
		}
	}

	status, ok := ParseStatus(rec["status_pagamento"])
	if !ok {
		if strings.TrimSpace(rec["status_pagamento"]) == "" {
			return nil, &RejectedRow{Reason: ReasonMissingField, Detail: "status_pagamento"}
		}
		return nil, &RejectedRow{
			Reason: ReasonInvalidStatus,
			Detail: fmt.Sprintf("status_pagamento=%q", rec["status_pagamento"]),
		}
	}

	// data_pagamento is optional; an unparseable value rejects the row,
	// a payment before the transaction is clamped to the transaction.
	var paidAt *time.Time
	if raw := strings.TrimSpace(rec["data_pagamento"]); raw != "" {
		p, ok := ParseTimestamp(raw)
		if !ok {
			return nil, &RejectedRow{
				Reason: ReasonInvalidDate,
				Detail: fmt.Sprintf("data_pagamento=%q", raw),
			}
		}
		if p.Before(txAt) {
			p = txAt
		}
		paidAt = &p
	}

	year, month, weekday, quarter := DeriveCalendar(txAt)

	return &Row{
		TransactionID: id,
		TransactionAt: txAt,
		Customer:      customer,
		Product:       product,
		Category:      category,
		Amount:        amount,
		Status:        status,
		PaidAt:        paidAt,
		Year:          year,
		Month:         month,
		Weekday:       weekday,
		Quarter:       quarter,
	}, nil
}

// RejectBreakdown aggregates reject reasons into counts, for the run
// log detail payload.
func RejectBreakdown(rejects []RejectedRow) map[string]int {
	if len(rejects) == 0 {
		return nil
	}
	out := make(map[string]int)
	for _, r := range rejects {
		out[string(r.Reason)]++
	}
	return out
}
