package store

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finetl/internal/etl"
)

func TestUseCopyPath(t *testing.T) {
	tests := []struct {
		name      string
		enabled   bool
		rows      int
		threshold int
		want      bool
	}{
		{"disabled", false, 500000, 200000, false},
		{"below threshold", true, 199999, 200000, false},
		{"at threshold", true, 200000, 200000, true},
		{"above threshold", true, 300000, 200000, true},
		{"zero rows", true, 0, 200000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := useCopyPath(tt.enabled, tt.rows, tt.threshold); got != tt.want {
				t.Errorf("useCopyPath(%v, %d, %d) = %v, want %v",
					tt.enabled, tt.rows, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestLoadStatus(t *testing.T) {
	tests := []struct {
		name string
		c    runCounts
		want etl.RunStatus
	}{
		{"clean load", runCounts{read: 10, inserted: 10}, etl.RunSuccess},
		{"all duplicates", runCounts{read: 10, duplicates: 10}, etl.RunSuccess},
		{"some rejects with progress", runCounts{read: 10, inserted: 8, rejected: 2}, etl.RunPartial},
		{"rejects, only duplicates", runCounts{read: 10, duplicates: 8, rejected: 2}, etl.RunError},
		{"everything rejected", runCounts{read: 10, rejected: 10}, etl.RunError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := loadStatus(tt.c); got != tt.want {
				t.Errorf("loadStatus(%+v) = %s, want %s", tt.c, got, tt.want)
			}
		})
	}
}

func testRow(id string) etl.Row {
	at := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	return etl.Row{
		TransactionID: id,
		TransactionAt: at,
		Customer:      "Maria Silva",
		Product:       "Notebook",
		Category:      "Eletrônicos",
		Amount:        decimal.RequireFromString("3499.90"),
		Status:        etl.StatusPaid,
		Year:          2024,
		Month:         6,
		Weekday:       5,
		Quarter:       2,
		SourceFile:    "vendas.csv",
	}
}

func TestBuildInsert(t *testing.T) {
	rows := []etl.Row{testRow("TX001"), testRow("TX002"), testRow("TX003")}
	sql, args := buildInsert(rows)

	if want := len(rows) * len(transactionColumns); len(args) != want {
		t.Errorf("args = %d, want %d", len(args), want)
	}
	if got := strings.Count(sql, "("); got < len(rows) {
		t.Errorf("value groups = %d, want at least %d", got, len(rows))
	}
	if !strings.HasSuffix(sql, "ON CONFLICT (id_transacao) DO NOTHING") {
		t.Errorf("missing conflict clause: %s", sql)
	}

	// Placeholders must be dense and sequential.
	for n := 1; n <= len(args); n++ {
		if !strings.Contains(sql, fmt.Sprintf("$%d", n)) {
			t.Errorf("missing placeholder $%d", n)
		}
	}
	if strings.Contains(sql, fmt.Sprintf("$%d", len(args)+1)) {
		t.Errorf("placeholder past the arg list")
	}

	if args[0] != "TX001" || args[len(transactionColumns)] != "TX002" {
		t.Errorf("rows out of order: %v, %v", args[0], args[len(transactionColumns)])
	}
}

func TestRowArgs(t *testing.T) {
	r := testRow("TX001")
	args := rowArgs(r)
	if len(args) != len(transactionColumns) {
		t.Fatalf("args = %d, want %d", len(args), len(transactionColumns))
	}
	if args[6] != "PAGO" {
		t.Errorf("status arg = %v, want PAGO", args[6])
	}
	if args[7] != (*time.Time)(nil) {
		t.Errorf("unpaid row must carry nil data_pagamento, got %v", args[7])
	}
}

func TestOptionsWithDefaults(t *testing.T) {
	got := Options{}.withDefaults()
	if got.BatchSize != 1000 || got.CopyThreshold != 200000 {
		t.Errorf("defaults = %+v", got)
	}

	set := Options{BatchSize: 50, UseCopy: true, CopyThreshold: 10}.withDefaults()
	if set.BatchSize != 50 || set.CopyThreshold != 10 || !set.UseCopy {
		t.Errorf("explicit options clobbered: %+v", set)
	}
}
