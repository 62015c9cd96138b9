// Package web provides the HTTP backend for lingotutor: a chi router over
// the tutoring core, persisting one exchange row per processed turn and
// serving per-session history views.
//
// The browser supplies text (voice input is transcribed client-side), so the
// web path involves neither the transcription nor the speech-output
// provider.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lingotutor/lingotutor/internal/health"
	"github.com/lingotutor/lingotutor/internal/observe"
	"github.com/lingotutor/lingotutor/internal/store"
	"github.com/lingotutor/lingotutor/pkg/provider/llm"
)

// DefaultContextTurns is the number of recent exchanges sent to the
// completion provider as conversation context in the web deployment.
const DefaultContextTurns = 5

// ExchangeStore is the persistence contract the server depends on.
// *store.Store satisfies it; tests substitute an in-memory fake.
type ExchangeStore interface {
	Append(ctx context.Context, e *store.Exchange) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]store.Exchange, error)
	ListRecent(ctx context.Context, sessionID string, limit int) ([]store.Exchange, error)
	DeleteSession(ctx context.Context, sessionID string) (int64, error)
}

// Compile-time assertion that the pgx store satisfies the contract.
var _ ExchangeStore = (*store.Store)(nil)

// Server is the lingotutor web backend.
type Server struct {
	router       *chi.Mux
	log          *slog.Logger
	llm          llm.Provider
	store        ExchangeStore
	metrics      *observe.Metrics
	contextTurns int
	readiness    []health.Checker

	historyLimit   int
	requestTimeout time.Duration
	temperature    float64
	maxTokens      int
}

// Option is a functional option for Server.
type Option func(*Server)

// WithLogger sets the server logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithContextTurns overrides how many recent exchanges are sent to the
// completion provider per request.
func WithContextTurns(n int) Option {
	return func(s *Server) {
		if n >= 0 {
			s.contextTurns = n
		}
	}
}

// WithHistoryLimit overrides the in-request history bound.
func WithHistoryLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithRequestTimeout bounds each completion-provider call.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithCompletionParams overrides the sampling temperature and token budget
// passed to the tutoring core. Zero values keep the core defaults.
func WithCompletionParams(temperature float64, maxTokens int) Option {
	return func(s *Server) {
		s.temperature = temperature
		s.maxTokens = maxTokens
	}
}

// WithReadinessChecks registers dependency probes served on /ready.
func WithReadinessChecks(checkers ...health.Checker) Option {
	return func(s *Server) {
		s.readiness = append(s.readiness, checkers...)
	}
}

// NewServer assembles the router and handlers.
func NewServer(provider llm.Provider, exchanges ExchangeStore, opts ...Option) *Server {
	s := &Server{
		log:          slog.Default(),
		llm:          provider,
		store:        exchanges,
		metrics:      observe.DefaultMetrics(),
		contextTurns: DefaultContextTurns,
	}
	for _, o := range opts {
		o(s)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(observe.Middleware(s.metrics))

	probes := health.New(s.readiness...)
	router.Get("/health", probes.Liveness)
	router.Get("/ready", probes.Readiness)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/messages", s.processMessage)
		r.Get("/sessions/{sessionID}/messages", s.listMessages)
		r.Delete("/sessions/{sessionID}/messages", s.clearHistory)
	})

	s.router = router
	return s
}

// Handler returns the assembled http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("web server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
