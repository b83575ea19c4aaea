package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"finetl/internal/logging"
	"finetl/internal/store"
)

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("encoding response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string, err error) {
	logging.FromContext(r.Context()).Error(msg, "error", err)
	s.writeJSON(w, r, status, map[string]string{"error": msg})
}

// parseFilter reads the shared filter query parameters.
func parseFilter(r *http.Request) store.TxFilter {
	q := r.URL.Query()
	f := store.TxFilter{
		Category: q.Get("categoria"),
		Status:   q.Get("status"),
		Product:  q.Get("produto"),
		Search:   q.Get("busca"),
	}
	if v, err := strconv.Atoi(q.Get("ano")); err == nil {
		f.Year = v
	}
	if v, err := strconv.Atoi(q.Get("mes")); err == nil && v >= 1 && v <= 12 {
		f.Month = v
	}
	return f
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.queries.Ping(r.Context()); err != nil {
		s.writeJSON(w, r, http.StatusOK, map[string]string{
			"status": "degraded",
			"db":     "error",
			"error":  err.Error(),
		})
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]string{
		"status":    "ok",
		"db":        "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleFilterOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := s.queries.FilterOptions(r.Context(), parseFilter(r))
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "querying filter options", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, opts)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 50)
	if limit < 1 {
		limit = 1
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	offset := parseIntParam(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	includeTotal := r.URL.Query().Get("include_total") != "false"

	page, err := s.queries.Transactions(r.Context(), parseFilter(r), limit, offset, includeTotal)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "querying transactions", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, page)
}

func (s *Server) handleTransactionsTotal(w http.ResponseWriter, r *http.Request) {
	total, err := s.queries.TransactionsTotal(r.Context(), parseFilter(r))
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "counting transactions", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]int{"total": total})
}

func (s *Server) handleTransactionDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id_transacao")
	detail, err := s.queries.TransactionDetail(r.Context(), id)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "querying transaction detail", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, detail)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.queries.Metrics(r.Context(), parseFilter(r))
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "querying metrics", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, m)
}

func (s *Server) handleComparative(w http.ResponseWriter, r *http.Request) {
	cmp, err := s.queries.ComparativeMetrics(r.Context(), parseFilter(r))
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "querying comparative metrics", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, cmp)
}

func (s *Server) handleCategoryAggregates(w http.ResponseWriter, r *http.Request) {
	aggs, err := s.queries.CategoryAggregates(r.Context(), parseFilter(r))
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "querying category aggregates", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, aggs)
}

func (s *Server) handleMonthlyVolumes(w http.ResponseWriter, r *http.Request) {
	vols, err := s.queries.MonthlyVolumes(r.Context(), parseFilter(r))
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "querying monthly volumes", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, vols)
}

func (s *Server) handleWeekdayAggregates(w http.ResponseWriter, r *http.Request) {
	aggs, err := s.queries.WeekdayAggregates(r.Context(), parseFilter(r))
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "querying weekday aggregates", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, aggs)
}
