package store

import (
	"reflect"
	"strings"
	"testing"
)

func TestWhereClause(t *testing.T) {
	tests := []struct {
		name     string
		f        TxFilter
		skip     []string
		want     string
		wantArgs []any
	}{
		{
			name: "empty filter",
			f:    TxFilter{},
			want: "",
		},
		{
			name:     "year only",
			f:        TxFilter{Year: 2024},
			want:     "WHERE ano_transacao = $1",
			wantArgs: []any{2024},
		},
		{
			name:     "year and month",
			f:        TxFilter{Year: 2024, Month: 6},
			want:     "WHERE ano_transacao = $1 AND mes_transacao = $2",
			wantArgs: []any{2024, 6},
		},
		{
			name:     "skip renumbers placeholders",
			f:        TxFilter{Year: 2024, Month: 6, Category: "Eletrônicos"},
			skip:     []string{"mes"},
			want:     "WHERE ano_transacao = $1 AND categoria = $2",
			wantArgs: []any{2024, "Eletrônicos"},
		},
		{
			name:     "status normalized to stored code",
			f:        TxFilter{Status: "Pago"},
			want:     "WHERE status_pagamento = $1",
			wantArgs: []any{"PAGO"},
		},
		{
			name:     "unknown status passed through",
			f:        TxFilter{Status: "Estornado"},
			want:     "WHERE status_pagamento = $1",
			wantArgs: []any{"Estornado"},
		},
		{
			name:     "search spans three columns with one arg",
			f:        TxFilter{Search: " note "},
			want:     "WHERE (cliente ILIKE $1 OR produto ILIKE $1 OR categoria ILIKE $1)",
			wantArgs: []any{"%note%"},
		},
		{
			name: "search skipped",
			f:    TxFilter{Search: "note"},
			skip: []string{"busca"},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, args := tt.f.whereClause(tt.skip...)
			if got != tt.want {
				t.Errorf("clause = %q, want %q", got, tt.want)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestCombineWhere(t *testing.T) {
	tests := []struct {
		base, extra, want string
	}{
		{"", "", ""},
		{"WHERE a = $1", "", "WHERE a = $1"},
		{"", "b = $1", "WHERE b = $1"},
		{"WHERE a = $1", "b = $2", "WHERE a = $1 AND b = $2"},
	}
	for _, tt := range tests {
		if got := combineWhere(tt.base, tt.extra); got != tt.want {
			t.Errorf("combineWhere(%q, %q) = %q, want %q", tt.base, tt.extra, got, tt.want)
		}
	}
}

func TestStatusDisplay(t *testing.T) {
	tests := []struct {
		code, want string
	}{
		{"PAGO", "Pago"},
		{"pendente", "Pendente"},
		{" CANCELADO ", "Cancelado"},
		{"ATRASADO", "Atrasado"},
		{"ERRO", "Erro"},
		{"whatever", "Erro"},
		{"", "Erro"},
	}
	for _, tt := range tests {
		if got := statusDisplay(tt.code); got != tt.want {
			t.Errorf("statusDisplay(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestOrderedStatusDisplay(t *testing.T) {
	got := orderedStatusDisplay([]string{"CANCELADO", "PAGO", "XX", "ATRASADO", "pago", "PENDENTE"})
	want := []string{"Pago", "Pendente", "Atrasado", "Cancelado", "Erro"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if out := orderedStatusDisplay(nil); len(out) != 0 {
		t.Errorf("empty input produced %v", out)
	}
}

func TestPeriodPrevious(t *testing.T) {
	tests := []struct {
		name string
		p    Period
		want Period
	}{
		{"year", Period{Kind: "ano", Year: 2024}, Period{Kind: "ano", Year: 2023}},
		{"mid-year month", Period{Kind: "mes", Year: 2024, Month: 6}, Period{Kind: "mes", Year: 2024, Month: 5}},
		{"january rolls back a year", Period{Kind: "mes", Year: 2024, Month: 1}, Period{Kind: "mes", Year: 2023, Month: 12}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.previous(); got != tt.want {
				t.Errorf("previous(%+v) = %+v, want %+v", tt.p, got, tt.want)
			}
		})
	}
}

func TestWeekdayNames(t *testing.T) {
	if weekdayNames[0] != "Segunda" || weekdayNames[6] != "Domingo" {
		t.Errorf("weekday labels out of order: %v", weekdayNames)
	}
}

func TestTransactionSelectColumns(t *testing.T) {
	// The scan order in scanTransaction depends on this column order.
	wantOrder := []string{
		"id", "id_transacao", "cliente", "produto", "categoria",
		"valor", "status_pagamento", "arquivo_origem",
		"data_transacao", "data_processamento", "data_pagamento",
		"dia_semana", "mes_transacao", "trimestre", "ano_transacao",
	}
	pos := -1
	for _, col := range wantOrder {
		i := strings.Index(transactionSelect, col)
		if i < 0 {
			t.Fatalf("column %q missing from select", col)
		}
		if i < pos {
			t.Errorf("column %q out of order", col)
		}
		pos = i
	}
}
