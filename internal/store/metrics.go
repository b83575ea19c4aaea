package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"finetl/internal/etl"
)

// TxFilter narrows the query surface. Zero values mean "no filter".
type TxFilter struct {
	Year     int
	Month    int
	Category string
	Status   string
	Product  string
	Search   string
}

// statusDisplay maps the persisted status code to its display form.
func statusDisplay(code string) string {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "PAGO":
		return "Pago"
	case "PENDENTE":
		return "Pendente"
	case "CANCELADO":
		return "Cancelado"
	case "ATRASADO":
		return "Atrasado"
	default:
		return "Erro"
	}
}

var weekdayNames = [7]string{
	"Segunda", "Terça", "Quarta", "Quinta", "Sexta", "Sábado", "Domingo",
}

// whereClause builds a positional-parameter WHERE clause from the
// filter, skipping the named fields. Each /filtros dimension skips its
// own field so selections cross-filter the other dimensions.
func (f TxFilter) whereClause(skip ...string) (string, []any) {
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}

	var clauses []string
	var args []any
	add := func(expr string, val any) {
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf(expr, len(args)))
	}

	if f.Year != 0 && !skipped["ano"] {
		add("ano_transacao = $%d", f.Year)
	}
	if f.Month != 0 && !skipped["mes"] {
		add("mes_transacao = $%d", f.Month)
	}
	if f.Category != "" && !skipped["categoria"] {
		add("categoria = $%d", f.Category)
	}
	if f.Status != "" && !skipped["status"] {
		if code, ok := etl.ParseStatus(f.Status); ok {
			add("status_pagamento = $%d", string(code))
		} else {
			add("status_pagamento = $%d", f.Status)
		}
	}
	if f.Product != "" && !skipped["produto"] {
		add("produto = $%d", f.Product)
	}
	if s := strings.TrimSpace(f.Search); s != "" && !skipped["busca"] {
		args = append(args, "%"+s+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			"(cliente ILIKE $%d OR produto ILIKE $%d OR categoria ILIKE $%d)", n, n, n))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func combineWhere(base string, extra string) string {
	if extra == "" {
		return base
	}
	if base == "" {
		return "WHERE " + extra
	}
	return base + " AND " + extra
}

// Ping checks database reachability for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// FilterOptions are the distinct values available for each dashboard
// filter dimension under the current selection.
type FilterOptions struct {
	Years      []int    `json:"anos"`
	Months     []int    `json:"meses"`
	Categories []string `json:"categorias"`
	Statuses   []string `json:"statusPagamento"`
	Products   []string `json:"produtos"`
}

func (s *Store) FilterOptions(ctx context.Context, f TxFilter) (FilterOptions, error) {
	var opts FilterOptions

	if err := selectColumn(ctx, s, f, "ano",
		`SELECT DISTINCT ano_transacao FROM transacoes %s ORDER BY ano_transacao DESC`,
		&opts.Years); err != nil {
		return opts, err
	}
	if err := selectColumn(ctx, s, f, "mes",
		`SELECT DISTINCT mes_transacao FROM transacoes %s ORDER BY mes_transacao ASC`,
		&opts.Months); err != nil {
		return opts, err
	}
	if err := selectColumn(ctx, s, f, "categoria",
		`SELECT DISTINCT categoria FROM transacoes %s ORDER BY categoria ASC`,
		&opts.Categories); err != nil {
		return opts, err
	}

	var statusCodes []string
	if err := selectColumn(ctx, s, f, "status",
		`SELECT DISTINCT status_pagamento FROM transacoes %s`,
		&statusCodes); err != nil {
		return opts, err
	}
	opts.Statuses = orderedStatusDisplay(statusCodes)

	if err := selectColumn(ctx, s, f, "produto",
		`SELECT DISTINCT produto FROM transacoes %s ORDER BY produto ASC`,
		&opts.Products); err != nil {
		return opts, err
	}
	return opts, nil
}

func selectColumn[T int | string](ctx context.Context, s *Store, f TxFilter, skip, queryTmpl string, out *[]T) error {
	where, args := f.whereClause(skip)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(queryTmpl, where), args...)
	if err != nil {
		return fmt.Errorf("query filter values: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v T
		if err := rows.Scan(&v); err != nil {
			return fmt.Errorf("scan filter value: %w", err)
		}
		*out = append(*out, v)
	}
	return rows.Err()
}

// orderedStatusDisplay dedups the display forms and orders them the
// way the dashboard presents them.
func orderedStatusDisplay(codes []string) []string {
	rank := map[string]int{
		"Pago": 0, "Pendente": 1, "Atrasado": 2, "Cancelado": 3, "Erro": 4,
	}
	seen := make(map[string]bool)
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		d := statusDisplay(c)
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && rank[out[j]] < rank[out[j-1]]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Transaction is one listing row, statuses in display form.
type Transaction struct {
	ID            int64      `json:"id"`
	TransactionID string     `json:"id_transacao"`
	Customer      string     `json:"cliente"`
	Product       string     `json:"produto"`
	Category      string     `json:"categoria"`
	Amount        float64    `json:"valor"`
	Status        string     `json:"status_pagamento"`
	SourceFile    string     `json:"arquivo_origem"`
	TransactionAt time.Time  `json:"data_transacao"`
	ProcessedAt   time.Time  `json:"data_processamento"`
	PaidAt        *time.Time `json:"data_pagamento"`
	Weekday       *int       `json:"dia_semana"`
	Month         int        `json:"mes_transacao"`
	Quarter       *int       `json:"trimestre"`
	Year          int        `json:"ano_transacao"`
}

const transactionSelect = `
	SELECT id, id_transacao, cliente, produto, categoria,
	       valor::float, status_pagamento, arquivo_origem,
	       data_transacao, data_processamento, data_pagamento,
	       dia_semana, mes_transacao, trimestre, ano_transacao
	FROM transacoes`

func scanTransaction(row interface{ Scan(...any) error }) (Transaction, error) {
	var t Transaction
	err := row.Scan(
		&t.ID, &t.TransactionID, &t.Customer, &t.Product, &t.Category,
		&t.Amount, &t.Status, &t.SourceFile,
		&t.TransactionAt, &t.ProcessedAt, &t.PaidAt,
		&t.Weekday, &t.Month, &t.Quarter, &t.Year)
	if err != nil {
		return t, err
	}
	t.Status = statusDisplay(t.Status)
	return t, nil
}

// TransactionPage is one page of the filtered listing.
type TransactionPage struct {
	Items  []Transaction `json:"items"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
	Total  *int          `json:"total"`
}

func (s *Store) Transactions(ctx context.Context, f TxFilter, limit, offset int, includeTotal bool) (TransactionPage, error) {
	page := TransactionPage{Items: []Transaction{}, Limit: limit, Offset: offset}

	where, args := f.whereClause()
	query := fmt.Sprintf("%s %s ORDER BY data_transacao DESC LIMIT $%d OFFSET $%d",
		transactionSelect, where, len(args)+1, len(args)+2)
	rows, err := s.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return page, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return page, fmt.Errorf("scan transaction: %w", err)
		}
		page.Items = append(page.Items, t)
	}
	if err := rows.Err(); err != nil {
		return page, fmt.Errorf("read transactions: %w", err)
	}

	if includeTotal {
		total, err := s.TransactionsTotal(ctx, f)
		if err != nil {
			return page, err
		}
		page.Total = &total
	}
	return page, nil
}

func (s *Store) TransactionsTotal(ctx context.Context, f TxFilter) (int, error) {
	where, args := f.whereClause()
	var total int
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM transacoes %s", where), args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return total, nil
}

// TransactionItem is one catalog-joined line item of a transaction.
type TransactionItem struct {
	TransactionID      string  `json:"id_transacao"`
	Product            string  `json:"produto"`
	Category           string  `json:"categoria"`
	ProductDescription *string `json:"produto_descricao"`
	Quantity           int     `json:"quantidade"`
	UnitPrice          float64 `json:"valor_unitario"`
	Total              float64 `json:"valor_total"`
}

// TransactionDetail is the detail payload: the transaction plus its
// line items, items sorted by value.
type TransactionDetail struct {
	Transaction *Transaction      `json:"transacao"`
	Items       []TransactionItem `json:"itens"`
}

func (s *Store) TransactionDetail(ctx context.Context, transactionID string) (TransactionDetail, error) {
	detail := TransactionDetail{Items: []TransactionItem{}}

	rows, err := s.pool.Query(ctx,
		transactionSelect+" WHERE id_transacao = $1", transactionID)
	if err != nil {
		return detail, fmt.Errorf("query transaction: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return detail, fmt.Errorf("scan transaction: %w", err)
		}
		detail.Transaction = &t
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return detail, fmt.Errorf("read transaction: %w", err)
	}
	if detail.Transaction == nil {
		return detail, nil
	}

	itemRows, err := s.pool.Query(ctx, `
		SELECT i.id_transacao, p.nome, c.nome, p.descricao,
		       i.quantidade, i.valor_unitario::float, i.valor_total::float
		FROM transacao_itens i
		JOIN produtos p ON p.id = i.produto_id
		JOIN categorias c ON c.id = p.categoria_id
		WHERE i.id_transacao = $1
		ORDER BY i.valor_total DESC`, transactionID)
	if err != nil {
		return detail, fmt.Errorf("query transaction items: %w", err)
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var it TransactionItem
		err := itemRows.Scan(&it.TransactionID, &it.Product, &it.Category,
			&it.ProductDescription, &it.Quantity, &it.UnitPrice, &it.Total)
		if err != nil {
			return detail, fmt.Errorf("scan transaction item: %w", err)
		}
		detail.Items = append(detail.Items, it)
	}
	if err := itemRows.Err(); err != nil {
		return detail, fmt.Errorf("read transaction items: %w", err)
	}
	return detail, nil
}

// Metrics are the headline aggregates for the current filter.
type Metrics struct {
	Count             int     `json:"quantidade_transacoes"`
	Total             float64 `json:"valor_total"`
	AverageTicket     float64 `json:"ticket_medio"`
	PaidCount         int     `json:"quantidade_pagas"`
	PaidPercent       float64 `json:"percentual_pagas"`
	AvgProcessingDays float64 `json:"tempo_medio_processamento"`
	AvgPaymentDays    float64 `json:"tempo_medio_pagamento"`
}

func (s *Store) Metrics(ctx context.Context, f TxFilter) (Metrics, error) {
	where, args := f.whereClause()
	return s.fetchMetrics(ctx, where, args)
}

func (s *Store) fetchMetrics(ctx context.Context, where string, args []any) (Metrics, error) {
	var m Metrics
	query := fmt.Sprintf(`
		SELECT
			COUNT(*)::int,
			COALESCE(SUM(valor), 0)::float,
			COALESCE(AVG(valor), 0)::float,
			COALESCE(SUM(CASE WHEN status_pagamento = 'PAGO' THEN 1 ELSE 0 END), 0)::int,
			COALESCE(ROUND(
				100.0 * SUM(CASE WHEN status_pagamento = 'PAGO' THEN 1 ELSE 0 END)
				/ NULLIF(COUNT(*), 0)::numeric, 2), 0)::float,
			COALESCE(AVG(EXTRACT(EPOCH FROM (data_processamento - data_transacao)) / 86400.0), 0)::float,
			COALESCE(AVG(EXTRACT(EPOCH FROM (data_pagamento - data_transacao)) / 86400.0)
				FILTER (WHERE data_pagamento IS NOT NULL), 0)::float
		FROM transacoes %s`, where)
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&m.Count, &m.Total, &m.AverageTicket, &m.PaidCount,
		&m.PaidPercent, &m.AvgProcessingDays, &m.AvgPaymentDays)
	if err != nil {
		return m, fmt.Errorf("query metrics: %w", err)
	}
	return m, nil
}

// Period identifies the comparison window: a whole year or one month.
type Period struct {
	Kind  string `json:"tipo"` // "ano" or "mes"
	Year  int    `json:"ano"`
	Month int    `json:"mes,omitempty"`
}

func (p Period) previous() Period {
	if p.Kind == "ano" {
		return Period{Kind: "ano", Year: p.Year - 1}
	}
	prev := Period{Kind: "mes", Year: p.Year, Month: p.Month - 1}
	if prev.Month == 0 {
		prev.Month = 12
		prev.Year--
	}
	return prev
}

// Comparative contrasts the current period with the one before it.
type Comparative struct {
	PreviousTotal  float64 `json:"valorTotalAnterior"`
	PreviousCount  int     `json:"quantidadeAnterior"`
	TotalVariation float64 `json:"variacaoValor"`
	CountVariation float64 `json:"variacaoQuantidade"`
	Label          string  `json:"label"`
	CurrentPeriod  *Period `json:"periodoAtual"`
	PreviousPeriod *Period `json:"periodoAnterior"`
}

func (s *Store) ComparativeMetrics(ctx context.Context, f TxFilter) (Comparative, error) {
	cmp := Comparative{Label: "vs período anterior"}

	current, err := s.resolveCurrentPeriod(ctx, f)
	if err != nil {
		return cmp, err
	}
	if current == nil {
		return cmp, nil
	}
	previous := current.previous()
	cmp.CurrentPeriod = current
	cmp.PreviousPeriod = &previous
	if current.Kind == "mes" {
		cmp.Label = "vs mês anterior"
	} else {
		cmp.Label = "vs ano anterior"
	}

	now, err := s.periodMetrics(ctx, f, *current)
	if err != nil {
		return cmp, err
	}
	before, err := s.periodMetrics(ctx, f, previous)
	if err != nil {
		return cmp, err
	}

	cmp.PreviousTotal = before.Total
	cmp.PreviousCount = before.Count
	if before.Total > 0 {
		cmp.TotalVariation = (now.Total - before.Total) / before.Total * 100
	}
	if before.Count > 0 {
		cmp.CountVariation = float64(now.Count-before.Count) / float64(before.Count) * 100
	}
	return cmp, nil
}

// resolveCurrentPeriod picks the comparison window from the filter:
// explicit year+month or year; month alone anchors to its latest year;
// otherwise the month of the newest matching transaction.
func (s *Store) resolveCurrentPeriod(ctx context.Context, f TxFilter) (*Period, error) {
	if f.Year != 0 && f.Month != 0 {
		return &Period{Kind: "mes", Year: f.Year, Month: f.Month}, nil
	}
	if f.Year != 0 {
		return &Period{Kind: "ano", Year: f.Year}, nil
	}

	baseWhere, baseArgs := f.whereClause("ano", "mes")

	if f.Month != 0 {
		where := combineWhere(baseWhere, fmt.Sprintf("mes_transacao = $%d", len(baseArgs)+1))
		var year *int
		err := s.pool.QueryRow(ctx,
			fmt.Sprintf("SELECT MAX(ano_transacao) FROM transacoes %s", where),
			append(baseArgs, f.Month)...).Scan(&year)
		if err != nil {
			return nil, fmt.Errorf("resolve latest year: %w", err)
		}
		if year != nil {
			return &Period{Kind: "mes", Year: *year, Month: f.Month}, nil
		}
	}

	var maxDate *time.Time
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT MAX(data_transacao) FROM transacoes %s", baseWhere),
		baseArgs...).Scan(&maxDate)
	if err != nil {
		return nil, fmt.Errorf("resolve latest transaction: %w", err)
	}
	if maxDate == nil {
		return nil, nil
	}
	return &Period{Kind: "mes", Year: maxDate.Year(), Month: int(maxDate.Month())}, nil
}

func (s *Store) periodMetrics(ctx context.Context, f TxFilter, p Period) (Metrics, error) {
	baseWhere, args := f.whereClause("ano", "mes")
	var clause string
	if p.Kind == "ano" {
		clause = fmt.Sprintf("ano_transacao = $%d", len(args)+1)
		args = append(args, p.Year)
	} else {
		clause = fmt.Sprintf("ano_transacao = $%d AND mes_transacao = $%d", len(args)+1, len(args)+2)
		args = append(args, p.Year, p.Month)
	}
	return s.fetchMetrics(ctx, combineWhere(baseWhere, clause), args)
}

// CategoryAggregate is one slice of the by-category chart.
type CategoryAggregate struct {
	Category string  `json:"categoria"`
	Count    int     `json:"quantidade"`
	Total    float64 `json:"valor"`
}

func (s *Store) CategoryAggregates(ctx context.Context, f TxFilter) ([]CategoryAggregate, error) {
	where, args := f.whereClause("categoria", "busca")
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT categoria, COUNT(*)::int, COALESCE(SUM(valor), 0)::float
		FROM transacoes %s
		GROUP BY categoria
		ORDER BY 3 DESC`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("query category aggregates: %w", err)
	}
	defer rows.Close()

	out := []CategoryAggregate{}
	for rows.Next() {
		var a CategoryAggregate
		if err := rows.Scan(&a.Category, &a.Count, &a.Total); err != nil {
			return nil, fmt.Errorf("scan category aggregate: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MonthlyVolume is one point of the volume-over-time chart.
type MonthlyVolume struct {
	Year  int     `json:"ano"`
	Month int     `json:"mes"`
	Count int     `json:"quantidade"`
	Total float64 `json:"valor"`
}

func (s *Store) MonthlyVolumes(ctx context.Context, f TxFilter) ([]MonthlyVolume, error) {
	where, args := f.whereClause("mes", "busca")
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT ano_transacao, mes_transacao, COUNT(*)::int, COALESCE(SUM(valor), 0)::float
		FROM transacoes %s
		GROUP BY ano_transacao, mes_transacao
		ORDER BY ano_transacao, mes_transacao`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("query monthly volumes: %w", err)
	}
	defer rows.Close()

	out := []MonthlyVolume{}
	for rows.Next() {
		var v MonthlyVolume
		if err := rows.Scan(&v.Year, &v.Month, &v.Count, &v.Total); err != nil {
			return nil, fmt.Errorf("scan monthly volume: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// WeekdayAggregate is one bar of the by-weekday chart, 0 = Monday.
type WeekdayAggregate struct {
	Weekday int     `json:"dia_semana"`
	Name    string  `json:"dia"`
	Count   int     `json:"quantidade"`
	Total   float64 `json:"valor"`
}

func (s *Store) WeekdayAggregates(ctx context.Context, f TxFilter) ([]WeekdayAggregate, error) {
	where, args := f.whereClause("busca")
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT dia_semana, COUNT(*)::int, COALESCE(SUM(valor), 0)::float
		FROM transacoes %s
		GROUP BY dia_semana
		ORDER BY dia_semana`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("query weekday aggregates: %w", err)
	}
	defer rows.Close()

	out := []WeekdayAggregate{}
	for rows.Next() {
		var a WeekdayAggregate
		if err := rows.Scan(&a.Weekday, &a.Count, &a.Total); err != nil {
			return nil, fmt.Errorf("scan weekday aggregate: %w", err)
		}
		if a.Weekday >= 0 && a.Weekday < len(weekdayNames) {
			a.Name = weekdayNames[a.Weekday]
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
