// Package api exposes the strike plan optimizer over HTTP. Every endpoint
// answers with a JSON envelope {code, msg, data}; the envelope code mirrors
// the HTTP status so clients can switch on the body alone.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/auriol/strikeplan/internal/combat"
	"github.com/auriol/strikeplan/internal/models"
	"github.com/auriol/strikeplan/internal/solver"
	"github.com/auriol/strikeplan/internal/solver/exact"
	"github.com/auriol/strikeplan/internal/solver/genetic"
)

// Solver names accepted in requests and configuration.
const (
	SolverGenetic = "genetic"
	SolverExact   = "exact"
)

// Server routes optimization requests to the solvers. It owns the combat
// parameter cache so /alg/reload can refresh doctrine data without a restart.
type Server struct {
	log           *zap.Logger
	cache         *combat.Cache
	model         models.LossModel
	defaultSolver string
	tuning        solver.Tuning
	noCORS        bool
	router        chi.Router
}

// Config holds the optional server knobs beyond the cache and logger.
type Config struct {
	Cache         *combat.Cache
	Logger        *zap.Logger
	DefaultSolver string
	// Tuning overrides the genetic search defaults for every request.
	// Zero fields keep the defaults.
	Tuning solver.Tuning
	// DisableCORS drops the allow-all CORS layer for deployments that
	// terminate CORS upstream.
	DisableCORS bool
}

// New builds a ready-to-serve Server around the given cache. A nil logger
// disables logging; an empty defaultSolver falls back to the genetic search.
func New(cache *combat.Cache, log *zap.Logger, defaultSolver string) *Server {
	return NewWithConfig(Config{Cache: cache, Logger: log, DefaultSolver: defaultSolver})
}

// NewWithConfig builds a Server with every knob exposed.
func NewWithConfig(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.DefaultSolver == "" {
		cfg.DefaultSolver = SolverGenetic
	}
	s := &Server{
		log:           cfg.Logger,
		cache:         cfg.Cache,
		model:         combat.NewSimulator(cfg.Cache),
		defaultSolver: cfg.DefaultSolver,
		tuning:        cfg.Tuning,
		noCORS:        cfg.DisableCORS,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	if !s.noCORS {
		r.Use(corsMiddleware)
	}
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Post("/alg/optimize", s.handleOptimize)
	r.Post("/alg/reload", s.handleReload)

	return r
}

// ServeHTTP lets the server stand anywhere an http.Handler is expected.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// optimizer resolves a solver name from a request or the configured default.
func (s *Server) optimizer(name string) (solver.Optimizer, error) {
	switch name {
	case SolverGenetic:
		return genetic.New(s.log), nil
	case SolverExact:
		return exact.New(s.log), nil
	}
	return nil, models.Inputf("solver", "unknown solver %q", name)
}

// corsMiddleware lets browser frontends on any origin call the API.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS, POST")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}
