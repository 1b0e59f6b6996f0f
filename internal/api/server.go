// Package api serves run history, live run state and on-demand match
// status over HTTP.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/resolution-cli/internal/pipeline"
	"github.com/sells-group/resolution-cli/internal/store"
)

// OrchestratorFactory builds a fresh orchestrator for one background run.
type OrchestratorFactory func() *pipeline.Orchestrator

// Server holds the HTTP handlers. Background runs are tracked until they
// finish; their history lives in the store.
type Server struct {
	store    store.Store
	factory  OrchestratorFactory
	defaults pipeline.Job

	// ctx bounds background runs; cancelled by Shutdown.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closing bool
	active  map[string]*pipeline.Orchestrator
}

// Option configures a Server.
type Option func(*Server)

// WithDefaults sets the job template merged into every POST /resolve.
func WithDefaults(job pipeline.Job) Option {
	return func(s *Server) {
		s.defaults = job
	}
}

// NewServer creates a Server. st may be nil when run history is disabled;
// factory may be nil when the server is read-only.
func NewServer(st store.Store, factory OrchestratorFactory, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:   st,
		factory: factory,
		ctx:     ctx,
		cancel:  cancel,
		active:  make(map[string]*pipeline.Orchestrator),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router(corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Post("/resolve", s.handleResolve)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetRun)
			r.Get("/state", s.handleRunState)
			r.Get("/summary", s.handleGetSummary)
			r.Post("/match", s.handleMatch)
		})
	})
	return r
}

// Wait blocks until every background run has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Shutdown refuses new runs, cancels background runs and waits for them,
// up to ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// begin registers a background run. It reports false once Shutdown has
// started.
func (s *Server) begin(runID string, o *pipeline.Orchestrator) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.active[runID] = o
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, runID)
}

func (s *Server) lookup(runID string) (*pipeline.Orchestrator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.active[runID]
	return o, ok
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
