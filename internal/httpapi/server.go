// Package httpapi serves answer-sheet grading over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/varshakam/omr-eval/internal/audit"
	"github.com/varshakam/omr-eval/internal/config"
	"github.com/varshakam/omr-eval/internal/metrics"
	"github.com/varshakam/omr-eval/internal/omr"
	"github.com/varshakam/omr-eval/internal/queue"
	"github.com/varshakam/omr-eval/internal/storage"
)

// ShutdownTimeout bounds graceful shutdown in Run.
const ShutdownTimeout = 5 * time.Second

// Jobs is the asynchronous grading queue, satisfied by *queue.Client.
type Jobs interface {
	EnqueueGrade(ctx context.Context, p queue.GradePayload) (string, error)
	Status(ctx context.Context, id string) (*queue.JobStatus, error)
}

// Deps are the collaborators of a Server. Only Grader is required.
type Deps struct {
	Grader   *omr.Grader
	Recorder *audit.Recorder
	Store    storage.Provider
	Jobs     Jobs
	Metrics  *metrics.Metrics
	Logger   *zap.Logger

	// OCRVersion is reported by the health check when version
	// identification is enabled.
	OCRVersion string
}

// Server is the HTTP front end.
type Server struct {
	cfg    config.ServerConfig
	deps   Deps
	engine *gin.Engine
	logger *zap.Logger
}

// New builds the gin engine and registers all routes.
func New(cfg config.ServerConfig, deps Deps) (*Server, error) {
	if deps.Grader == nil {
		return nil, fmt.Errorf("grader is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 20
	}

	engine := gin.New()
	engine.MaxMultipartMemory = cfg.MaxUploadMB << 20
	engine.SetHTMLTemplate(template.Must(template.New("pages").Parse(pageTemplates)))
	engine.Use(gin.Recovery(), requestLogger(deps.Logger))
	if deps.Metrics != nil {
		engine.Use(deps.Metrics.Middleware())
	}

	s := &Server{cfg: cfg, deps: deps, engine: engine, logger: deps.Logger}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	r := s.engine

	if s.deps.Metrics != nil {
		r.GET("/metrics", s.deps.Metrics.GinHandler())
	}
	r.GET("/processed/*name", s.processedFile)

	limited := RateLimiter(s.cfg.RateLimit.RequestsPerSecond, s.cfg.RateLimit.Burst)

	r.GET("/", s.uploadPage)
	r.POST("/", limited, s.uploadPageSubmit)

	api := r.Group("/api")
	{
		api.GET("/health", s.health)
		api.GET("/exams", s.listExams)
		api.POST("/sheets", limited, s.submitSheet)
		api.GET("/jobs/:id", s.jobStatus)
	}
}

// Handler exposes the engine, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on cfg.Port until ctx is cancelled, then shuts down
// gracefully within ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)))
	}
}
