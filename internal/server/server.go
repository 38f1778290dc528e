package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"marketbrief/internal/config"
	"marketbrief/internal/core"
	"marketbrief/internal/factcheck"
	"marketbrief/internal/logger"
	"marketbrief/internal/pipeline"
	"marketbrief/internal/ranking"
	"marketbrief/internal/store"
)

// requestTimeout bounds every API request.
const requestTimeout = 60 * time.Second

// ArticleLister is the read side of the article store used by the API
type ArticleLister interface {
	Articles(ctx context.Context, q store.Query) ([]core.Article, error)
}

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	router      *chi.Mux
	httpServer  *http.Server
	config      config.Server
	ranker      *ranking.Ranker
	factChecker *factcheck.Checker
	snapshot    *core.Snapshot
	articles    ArticleLister
	generator   *pipeline.Generator
	genDefaults pipeline.Request
	limiter     *clientLimiter
	loc         *time.Location
	now         func() time.Time
	startedAt   time.Time
	log         *slog.Logger
}

// Option customises a Server
type Option func(*Server)

// WithRanker sets the ranker used by /api/articles/rank.
func WithRanker(r *ranking.Ranker) Option {
	return func(s *Server) { s.ranker = r }
}

// WithSnapshot sets the market data used when a request carries none.
func WithSnapshot(snap *core.Snapshot) Option {
	return func(s *Server) { s.snapshot = snap }
}

// WithArticles exposes the article store under /api/articles. When the
// lister is also a Pinger, /health checks it.
func WithArticles(a ArticleLister) Option {
	return func(s *Server) { s.articles = a }
}

// WithGenerator enables POST /api/reports/generate. defaults supplies the
// prompt and every field a request leaves unset.
func WithGenerator(g *pipeline.Generator, defaults pipeline.Request) Option {
	return func(s *Server) {
		s.generator = g
		s.genDefaults = defaults
	}
}

// WithLocation sets the zone used for date handling and timeliness.
func WithLocation(loc *time.Location) Option {
	return func(s *Server) { s.loc = loc }
}

// WithClock sets the clock used by the quality checks.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates a new HTTP server instance
func New(cfg config.Server, opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		config:      cfg,
		factChecker: factcheck.New(),
		loc:         time.Local,
		now:         time.Now,
		startedAt:   time.Now(),
		log:         logger.Get(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ranker == nil {
		s.ranker = ranking.New(nil)
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(requestTimeout))
	s.router.Use(securityHeaders)

	if s.config.CORS.Enabled {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: false,
			MaxAge:           300, // Maximum value not ignored by any major browsers
		}))
	}

	if s.config.RateLimit.Enabled {
		s.limiter = newClientLimiter(s.config.RateLimit.RPS, s.config.RateLimit.Burst)
		s.router.Use(s.limiter.middleware)
	}
}

// setupRoutes configures routes for the server
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/status", s.handleStatus)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/quality/check", s.handleQualityCheck)
		r.Post("/factcheck", s.handleFactCheck)

		r.Post("/reports/generate", s.handleGenerate)

		r.Route("/articles", func(r chi.Router) {
			r.Get("/", s.handleListArticles)
			r.Post("/rank", s.handleRankArticles)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server",
		"addr", s.httpServer.Addr,
		"read_timeout", s.config.ReadTimeout,
		"write_timeout", s.config.WriteTimeout,
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server gracefully...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.log.Info("HTTP server stopped")
	return nil
}

// Router returns the chi router instance (useful for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
