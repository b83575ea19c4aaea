// Package api serves the read-side JSON endpoints the dashboard
// consumes: transaction listings, headline metrics, and chart
// aggregates.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"finetl/internal/api/middleware"
	"finetl/internal/config"
	"finetl/internal/store"
)

// Queries is the read surface the handlers depend on. *store.Store
// satisfies it; tests substitute a fake.
type Queries interface {
	Ping(ctx context.Context) error
	FilterOptions(ctx context.Context, f store.TxFilter) (store.FilterOptions, error)
	Transactions(ctx context.Context, f store.TxFilter, limit, offset int, includeTotal bool) (store.TransactionPage, error)
	TransactionsTotal(ctx context.Context, f store.TxFilter) (int, error)
	TransactionDetail(ctx context.Context, transactionID string) (store.TransactionDetail, error)
	Metrics(ctx context.Context, f store.TxFilter) (store.Metrics, error)
	ComparativeMetrics(ctx context.Context, f store.TxFilter) (store.Comparative, error)
	CategoryAggregates(ctx context.Context, f store.TxFilter) ([]store.CategoryAggregate, error)
	MonthlyVolumes(ctx context.Context, f store.TxFilter) ([]store.MonthlyVolume, error)
	WeekdayAggregates(ctx context.Context, f store.TxFilter) ([]store.WeekdayAggregate, error)
}

// Server is the HTTP server for the metrics API.
type Server struct {
	queries Queries
	cfg     config.APIConfig
	router  *chi.Mux
	server  *http.Server
}

func NewServer(queries Queries, cfg config.APIConfig) *Server {
	s := &Server{
		queries: queries,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Timeout(s.cfg.RequestTimeout))
	s.router.Use(corsMiddleware(s.cfg.CORSOrigins))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/filtros", s.handleFilterOptions)
	s.router.Get("/transacoes", s.handleTransactions)
	s.router.Get("/transacoes/total", s.handleTransactionsTotal)
	s.router.Get("/transacoes/{id_transacao}", s.handleTransactionDetail)
	s.router.Get("/metricas", s.handleMetrics)
	s.router.Get("/metricas/comparativo", s.handleComparative)
	s.router.Get("/agregados/categorias", s.handleCategoryAggregates)
	s.router.Get("/agregados/volume-mensal", s.handleMonthlyVolumes)
	s.router.Get("/agregados/dia-semana", s.handleWeekdayAggregates)
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.RequestTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// corsMiddleware answers preflight requests and stamps the allowed
// origin on responses. An empty origin list allows any origin.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				switch {
				case len(allowed) == 0:
					w.Header().Set("Access-Control-Allow-Origin", "*")
				case allowed[origin]:
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
