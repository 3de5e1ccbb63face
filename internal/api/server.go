package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/FairForge/viewercore/internal/config"
	"github.com/FairForge/viewercore/internal/image360"
	"github.com/FairForge/viewercore/internal/metrics"
	"github.com/FairForge/viewercore/internal/provider"
	"github.com/FairForge/viewercore/internal/scene"
)

// Version is reported by /health.
const Version = "0.3.0"

// SceneSource loads parsed sector scenes by model name.
type SceneSource interface {
	Scene(ctx context.Context, model string) (*scene.SectorScene, error)
}

// HealthChecker reports backend health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps are the collaborators served over HTTP.
type Deps struct {
	Facade  *image360.Facade[provider.SiteFilter]
	Scenes  SceneSource
	Health  HealthChecker
	Metrics *metrics.Registry
}

type Server struct {
	config     config.ServerConfig
	logger     *zap.Logger
	router     *chi.Mux
	httpServer *http.Server
	deps       Deps

	requestCount int64
	errorCount   int64
	startTime    time.Time
}

func NewServer(cfg config.ServerConfig, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewRegistry()
	}

	s := &Server{
		config:    cfg,
		logger:    logger,
		router:    chi.NewRouter(),
		deps:      deps,
		startTime: time.Now(),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	if s.config.RequestsPerSecond > 0 {
		s.router.Use(RateLimitMiddleware(NewRateLimiter(s.config.RequestsPerSecond, s.config.RequestBurst)))
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())

	if s.deps.Scenes != nil {
		NewSceneHandler(s.deps.Scenes, s.logger).RegisterRoutes(s.router)
	}
	if s.deps.Facade != nil {
		NewImage360Handler(s.deps.Facade, s.logger).RegisterRoutes(s.router)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	backend := "ok"
	if s.deps.Health != nil {
		if err := s.deps.Health.HealthCheck(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
			backend = err.Error()
		}
	}

	health := map[string]interface{}{
		"status":   status,
		"version":  Version,
		"uptime":   time.Since(s.startTime).Seconds(),
		"backend":  backend,
		"requests": atomic.LoadInt64(&s.requestCount),
		"errors":   atomic.LoadInt64(&s.errorCount),
		"go":       runtime.Version(),
	}
	if s.deps.Facade != nil {
		health["entities"] = s.deps.Facade.Len()
	}

	writeJSON(s.logger, w, code, health)
}

func (s *Server) Start() error {
	s.logger.Info("Starting server", zap.Int("port", s.config.Port))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
