package etl

// convert.go holds the cell-level coercions applied during transform.
//
// Input files come from Brazilian billing exports, so the parsers accept
// day-first dates ("31/12/2024"), currency amounts in both conventions
// ("R$ 1.234,56" and "1234.56"), and a spread of status spellings in
// Portuguese and English.

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// timestampLayouts is the fixed set of accepted timestamp formats,
// day-first layouts before ISO to disambiguate 01/02 style dates.
var timestampLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"02-01-2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// statusSynonyms maps lowercased input spellings onto the fixed enum.
var statusSynonyms = map[string]Status{
	// PAGO
	"pago":      StatusPaid,
	"paid":      StatusPaid,
	"pg":        StatusPaid,
	"quitado":   StatusPaid,
	"concluido": StatusPaid,
	"completed": StatusPaid,
	"aprovado":  StatusPaid,
	// PENDENTE
	"pendente":   StatusPending,
	"pending":    StatusPending,
	"aguardando": StatusPending,
	"em aberto":  StatusPending,
	"aberto":     StatusPending,
	"waiting":    StatusPending,
	// CANCELADO
	"cancelado": StatusCanceled,
	"cancelled": StatusCanceled,
	"canceled":  StatusCanceled,
	"estornado": StatusCanceled,
	"refunded":  StatusCanceled,
	"devolvido": StatusCanceled,
	// ATRASADO
	"atrasado":  StatusLate,
	"vencido":   StatusLate,
	"overdue":   StatusLate,
	"late":      StatusLate,
	"em atraso": StatusLate,
	// ERRO
	"erro":  StatusError,
	"error": StatusError,
	"falha": StatusError,
}

// ParseTimestamp parses s against the accepted layout set.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseAmount parses a monetary value, accepting the Brazilian
// convention ("R$ 1.234,56") and the plain decimal form ("1234.56").
// Negative amounts parse fine; rejecting them is the transformer's call.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}

	s = strings.ReplaceAll(s, "R$", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimSpace(s)

	// Accounting negatives: (123,45)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	// A comma means Brazilian notation: dots are thousands separators.
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// ParseStatus resolves a raw status cell to the fixed enum.
func ParseStatus(s string) (Status, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	st, ok := statusSynonyms[key]
	return st, ok
}

// diacriticStripper removes combining marks after NFD decomposition, so
// "transação" and "transacao" normalize identically.
var diacriticStripper = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// NormalizeHeader canonicalizes a column header: lowercase, trimmed,
// diacritics stripped, spaces and hyphens collapsed to underscores.
func NormalizeHeader(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if out, _, err := transform.String(diacriticStripper, s); err == nil {
		s = out
	}
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.Join(strings.Fields(s), "_")
	return s
}

func intDecimal(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}

// DeriveCalendar computes the persisted calendar fields from a
// transaction timestamp. Weekday follows the 0=Monday convention and
// quarter is ceil(month/3).
func DeriveCalendar(t time.Time) (year, month, weekday, quarter int) {
	year = t.Year()
	month = int(t.Month())
	weekday = (int(t.Weekday()) + 6) % 7
	quarter = (month-1)/3 + 1
	return year, month, weekday, quarter
}
