package etl

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

func testTransformer() *Transformer {
	return &Transformer{Now: func() time.Time { return testNow }}
}

func validRecord() Record {
	return Record{
		"id_transacao":     "TX001",
		"data_transacao":   "15/06/2024 10:30:00",
		"cliente":          "Maria Silva",
		"produto":          "Notebook",
		"categoria":        "Eletrônicos",
		"valor":            "R$ 3.499,90",
		"status_pagamento": "pago",
		"data_pagamento":   "16/06/2024",
	}
}

func rawFor(recs ...Record) *RawFile {
	return &RawFile{
		Name:        "vendas.csv",
		Path:        "data/raw/vendas.csv",
		Fingerprint: "abc123",
		Records:     recs,
	}
}

func TestTransform_ValidRecord(t *testing.T) {
	res, err := testTransformer().Transform(rawFor(validRecord()))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(res.Accepted) != 1 || len(res.Rejected) != 0 {
		t.Fatalf("accepted=%d rejected=%d, want 1/0", len(res.Accepted), len(res.Rejected))
	}

	row := res.Accepted[0]
	if row.TransactionID != "TX001" {
		t.Errorf("TransactionID = %q", row.TransactionID)
	}
	if row.Amount.String() != "3499.9" {
		t.Errorf("Amount = %s, want 3499.9", row.Amount)
	}
	if row.Status != StatusPaid {
		t.Errorf("Status = %q, want PAGO", row.Status)
	}
	if row.Year != 2024 || row.Month != 6 || row.Quarter != 2 {
		t.Errorf("calendar = %d/%d Q%d", row.Year, row.Month, row.Quarter)
	}
	// 2024-06-15 is a Saturday
	if row.Weekday != 5 {
		t.Errorf("Weekday = %d, want 5", row.Weekday)
	}
	if row.SourceFile != "vendas.csv" {
		t.Errorf("SourceFile = %q", row.SourceFile)
	}
	if row.PaidAt == nil || !row.PaidAt.Equal(time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("PaidAt = %v", row.PaidAt)
	}
}

func TestTransform_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(Record)
		wantReason RejectReason
	}{
		{
			name:       "missing id",
			mutate:     func(r Record) { r["id_transacao"] = "  " },
			wantReason: ReasonMissingField,
		},
		{
			name:       "missing customer",
			mutate:     func(r Record) { delete(r, "cliente") },
			wantReason: ReasonMissingField,
		},
		{
			name:       "missing amount",
			mutate:     func(r Record) { r["valor"] = "" },
			wantReason: ReasonMissingField,
		},
		{
			name:       "unparseable date",
			mutate:     func(r Record) { r["data_transacao"] = "sometime" },
			wantReason: ReasonInvalidDate,
		},
		{
			name:       "future date",
			mutate:     func(r Record) { r["data_transacao"] = "15/06/2030" },
			wantReason: ReasonFutureDate,
		},
		{
			name:       "unparseable amount",
			mutate:     func(r Record) { r["valor"] = "muito caro" },
			wantReason: ReasonInvalidAmount,
		},
		{
			name:       "negative amount",
			mutate:     func(r Record) { r["valor"] = "-100,00" },
			wantReason: ReasonNegativeAmount,
		},
		{
			name:       "unknown status",
			mutate:     func(r Record) { r["status_pagamento"] = "talvez" },
			wantReason: ReasonInvalidStatus,
		},
		{
			name:       "missing status",
			mutate:     func(r Record) { r["status_pagamento"] = "" },
			wantReason: ReasonMissingField,
		},
		{
			name:       "bad optional payment date",
			mutate:     func(r Record) { r["data_pagamento"] = "ontem" },
			wantReason: ReasonInvalidDate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			tt.mutate(rec)

			res, err := testTransformer().Transform(rawFor(rec))
			if err != nil {
				t.Fatalf("Transform: %v", err)
			}
			if len(res.Accepted) != 0 {
				t.Fatalf("row accepted, want reject")
			}
			if len(res.Rejected) != 1 {
				t.Fatalf("got %d rejects, want 1", len(res.Rejected))
			}
			if res.Rejected[0].Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", res.Rejected[0].Reason, tt.wantReason)
			}
			if res.Rejected[0].Line != 1 {
				t.Errorf("line = %d, want 1", res.Rejected[0].Line)
			}
		})
	}
}

func TestTransform_ZeroAmountAccepted(t *testing.T) {
	rec := validRecord()
	rec["valor"] = "0,00"

	res, err := testTransformer().Transform(rawFor(rec))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(res.Accepted) != 1 {
		t.Fatalf("zero amount rejected: %+v", res.Rejected)
	}
}

func TestTransform_PaymentDateClampedToTransaction(t *testing.T) {
	rec := validRecord()
	rec["data_transacao"] = "15/06/2024"
	rec["data_pagamento"] = "10/06/2024"

	res, err := testTransformer().Transform(rawFor(rec))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(res.Accepted) != 1 {
		t.Fatalf("row rejected: %+v", res.Rejected)
	}
	row := res.Accepted[0]
	if row.PaidAt == nil || !row.PaidAt.Equal(row.TransactionAt) {
		t.Errorf("PaidAt = %v, want clamped to %v", row.PaidAt, row.TransactionAt)
	}
}

func TestTransform_MissingOptionalPaymentDate(t *testing.T) {
	rec := validRecord()
	delete(rec, "data_pagamento")

	res, err := testTransformer().Transform(rawFor(rec))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(res.Accepted) != 1 {
		t.Fatalf("row rejected: %+v", res.Rejected)
	}
	if res.Accepted[0].PaidAt != nil {
		t.Errorf("PaidAt = %v, want nil", res.Accepted[0].PaidAt)
	}
}

func TestTransform_InBatchDedup(t *testing.T) {
	first := validRecord()
	dupe := validRecord()
	dupe["cliente"] = "Outro Cliente"
	other := validRecord()
	other["id_transacao"] = "TX002"

	res, err := testTransformer().Transform(rawFor(first, dupe, other))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(res.Accepted) != 2 {
		t.Fatalf("accepted = %d, want 2", len(res.Accepted))
	}
	if res.Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", res.Duplicates)
	}
	// first occurrence wins
	if res.Accepted[0].Customer != "Maria Silva" {
		t.Errorf("kept customer = %q, want first occurrence", res.Accepted[0].Customer)
	}
}

func TestTransform_DedupIsIdempotent(t *testing.T) {
	// Transforming the same records twice yields the same accepted set.
	recs := []Record{validRecord(), validRecord(), validRecord()}

	a, err := testTransformer().Transform(rawFor(recs...))
	if err != nil {
		t.Fatal(err)
	}
	b, err := testTransformer().Transform(rawFor(recs...))
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Accepted) != 1 || len(b.Accepted) != 1 {
		t.Fatalf("accepted = %d/%d, want 1/1", len(a.Accepted), len(b.Accepted))
	}
	if a.Duplicates != 2 || b.Duplicates != 2 {
		t.Errorf("duplicates = %d/%d, want 2/2", a.Duplicates, b.Duplicates)
	}
}

func TestTransform_EmptyInput(t *testing.T) {
	_, err := testTransformer().Transform(rawFor())
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("err = %v, want ErrEmptyInput", err)
	}
}

func TestTransform_MixedBatch(t *testing.T) {
	good := validRecord()
	bad := validRecord()
	bad["id_transacao"] = "TX002"
	bad["valor"] = "n/a"

	res, err := testTransformer().Transform(rawFor(good, bad))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(res.Accepted) != 1 || len(res.Rejected) != 1 {
		t.Fatalf("accepted=%d rejected=%d, want 1/1", len(res.Accepted), len(res.Rejected))
	}
	if res.Rejected[0].Line != 2 {
		t.Errorf("reject line = %d, want 2", res.Rejected[0].Line)
	}
	if res.Input != 2 {
		t.Errorf("Input = %d, want 2", res.Input)
	}
}

func TestRejectBreakdown(t *testing.T) {
	rejects := []RejectedRow{
		{Reason: ReasonInvalidDate},
		{Reason: ReasonInvalidDate},
		{Reason: ReasonNegativeAmount},
	}
	got := RejectBreakdown(rejects)
	if got[string(ReasonInvalidDate)] != 2 || got[string(ReasonNegativeAmount)] != 1 {
		t.Errorf("breakdown = %v", got)
	}
	if RejectBreakdown(nil) != nil {
		t.Error("empty breakdown should be nil")
	}
}
