package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cvd-expert-server/internal/domain"
	"github.com/cvd-expert-server/internal/health"
	"github.com/cvd-expert-server/internal/history"
	"github.com/cvd-expert-server/internal/middleware"
	"github.com/cvd-expert-server/internal/service"
)

// Diagnoser runs the case pipeline.
type Diagnoser interface {
	Diagnose(ctx context.Context, raw map[string]any) (*domain.DiagnosisReport, error)
}

// HistoryReader returns recent diagnosis records, newest first, or a single
// record by id.
type HistoryReader interface {
	QueryRecent(ctx context.Context, limit int, filter history.Filter) []history.Record
	Get(ctx context.Context, id string) (history.Record, error)
}

// KnowledgeReporter answers knowledge-base introspection.
type KnowledgeReporter interface {
	Stats() (domain.KnowledgeStats, error)
	Descriptions() map[string]service.FieldDescription
}

// HealthReporter produces the service health report.
type HealthReporter interface {
	Run(ctx context.Context) health.Status
}

// Dependencies are the collaborators behind the HTTP routes.
type Dependencies struct {
	Diagnosis Diagnoser
	History   HistoryReader
	Knowledge KnowledgeReporter
	Health    HealthReporter
	Scores    service.ScoreCalculator
}

// Server represents the HTTP server
type Server struct {
	config *domain.Config
	deps   Dependencies
	logger *logrus.Logger
	router *gin.Engine
	server *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(config *domain.Config, deps Dependencies, logger *logrus.Logger) *Server {
	if config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestTimeout(config.Server.RequestTimeout))

	s := &Server{
		config: config,
		deps:   deps,
		logger: logger,
		router: router,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	if s.config.Server.RateLimit > 0 {
		limiter := middleware.NewClientRateLimiter(s.config.Server.RateLimit, s.config.Server.RateBurst)
		api.Use(limiter.Middleware())
	}
	{
		api.POST("/diagnose", s.handleDiagnose)
		api.GET("/history", s.handleHistory)
		api.GET("/history/:id", s.handleHistoryRecord)
		api.GET("/ontology/stats", s.handleOntologyStats)
		api.GET("/descriptions", s.handleDescriptions)
		api.POST("/scores", s.handleScores)
	}
}
