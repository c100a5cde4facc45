// Package httpserver provides the HTTP REST API of the publication aggregator.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/helixir/publication-aggregator/internal/database"
	"github.com/helixir/publication-aggregator/internal/domain"
	"github.com/helixir/publication-aggregator/internal/faculty"
	"github.com/helixir/publication-aggregator/internal/repository"
)

// Searcher runs a single-author search.
type Searcher interface {
	Search(ctx context.Context, name string, window domain.DateWindow, dir *faculty.Directory) (domain.Partitioned, error)
}

// BatchManager submits and tracks bulk batches.
type BatchManager interface {
	Submit(ctx context.Context, entities []domain.FacultyEntity, window *domain.DateWindow) (*domain.BatchRun, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.BatchRun, error)
	List(ctx context.Context, filter repository.BatchFilter) ([]*domain.BatchRun, int64, error)
	Outcomes(ctx context.Context, id uuid.UUID) ([]domain.OutcomeSummary, error)
	Cancel(ctx context.Context, id uuid.UUID) error
}

// HealthChecker reports database health.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// Server serves the search and batch API over chi.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	config     Config
	searcher   Searcher
	batches    BatchManager
	health     HealthChecker
	directory  *faculty.Directory
	validate   *validator.Validate
	logger     zerolog.Logger
}

// Config carries listener timeouts and per-route defaults.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// SearchTimeout bounds one synchronous search request.
	SearchTimeout time.Duration
	// DefaultWindow applies when a search request names no dates.
	DefaultWindow domain.DateWindow
	// MetricsPath exposes the Prometheus handler when non-empty.
	MetricsPath string
	// StreamInterval is how often batch progress streams poll for state.
	StreamInterval time.Duration
}

// Deps holds the collaborators of the HTTP server. Batches and Health may be
// nil when persistence is disabled.
type Deps struct {
	Searcher  Searcher
	Batches   BatchManager
	Health    HealthChecker
	Directory *faculty.Directory
	Logger    zerolog.Logger
}

// NewServer fills unset defaults and builds the router.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = sseQueryInterval
	}
	if cfg.DefaultWindow.Start.IsZero() && cfg.DefaultWindow.End.IsZero() {
		cfg.DefaultWindow = domain.DefaultWindow()
	}
	dir := deps.Directory
	if dir == nil {
		dir = faculty.Empty()
	}

	s := &Server{
		config:    cfg,
		searcher:  deps.Searcher,
		batches:   deps.Batches,
		health:    deps.Health,
		directory: dir,
		validate:  validator.New(),
		logger:    deps.Logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(requestLogMiddleware(s.logger))

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)
	if s.config.MetricsPath != "" {
		r.Handle(s.config.MetricsPath, promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.With(jsonContentTypeMiddleware).Post("/search", s.search)

		r.Route("/batches", func(r chi.Router) {
			r.Use(s.requireBatches)

			r.Group(func(r chi.Router) {
				r.Use(jsonContentTypeMiddleware)
				r.Post("/", s.submitBatch)
				r.Get("/", s.listBatches)
				r.Get("/{batchID}", s.getBatch)
				r.Delete("/{batchID}", s.cancelBatch)
				r.Get("/{batchID}/outcomes", s.getBatchOutcomes)
			})

			// Streaming and CSV routes set their own content type.
			r.Get("/{batchID}/report/{kind}", s.getBatchReportCSV)
			r.Get("/{batchID}/progress", s.streamProgress)
		})
	})

	return r
}

// Start listens on the configured address and blocks until the server stops.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info().Str("address", ln.Addr().String()).Msg("listening")
	return s.httpServer.Serve(ln)
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler reports liveness only.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readiness is the /readyz body. Database is "disabled" when the server
// runs without a batch store.
type readiness struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, readiness{Status: "ready", Database: "disabled"})
		return
	}

	h := s.health.Health(r.Context())
	if h.Status != database.StatusHealthy {
		writeJSON(w, http.StatusServiceUnavailable, readiness{Status: "not_ready", Database: h.Status, Error: h.Error})
		return
	}
	writeJSON(w, http.StatusOK, readiness{Status: "ready", Database: h.Status})
}

// writeJSON encodes v with the given status. Encoding failures are dropped
// since the status line is already sent.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": message}.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
