// Package http exposes the review workflow over a JSON REST API.
// Handlers translate requests into application service calls and map
// workflow errors onto status codes.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/memberhub/approval-workflow/internal/application/service"
	"github.com/memberhub/approval-workflow/internal/domain/entity"
	domainwf "github.com/memberhub/approval-workflow/internal/domain/workflow"
	"github.com/memberhub/approval-workflow/internal/infrastructure/security"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Metrics observes requests and serves the scrape endpoint
type Metrics interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
	Handler() http.Handler
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Version         string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Version:         "dev",
	}
}

// Services groups the application services the API is built on
type Services struct {
	Review         service.ReviewService
	Audit          service.AuditService
	Statistics     service.StatisticsService
	Submission     service.SubmissionService
	Payment        service.PaymentService
	Reconciliation service.ReconciliationService
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	tokens     security.TokenValidator
	metrics    Metrics
	logger     Logger
}

// NewServer creates the server and registers every route. metrics may be nil.
func NewServer(
	config ServerConfig,
	services Services,
	tokens security.TokenValidator,
	metrics Metrics,
	logger Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:   config,
		router:   gin.New(),
		services: services,
		tokens:   tokens,
		metrics:  metrics,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) setupRoutes() {
	h := NewHandlers(s.services, s.config.Version, s.logger)

	s.router.GET("/health", h.HealthCheck)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := s.router.Group("/api/v1", s.authMiddleware())

	applications := api.Group("/applications")
	{
		applications.POST("", h.SubmitApplication)
		s.entityRoutes(applications, h, entity.EntityApplication)
		applications.POST("/:id/final-review/start", h.StartFinalReview)
		applications.POST("/:id/final-review/complete", h.CompleteFinalReview)
	}

	renewals := api.Group("/renewals")
	{
		renewals.POST("", h.SubmitRenewal)
		s.entityRoutes(renewals, h, entity.EntityRenewal)
		renewals.POST("/:id/complete", h.CompleteRenewal)
	}

	api.POST("/payments/:id/verify", h.VerifyPayment)

	stats := api.Group("/workflow/statistics")
	{
		stats.GET("", h.GetStatistics)
		stats.GET("/export", h.ExportStatistics)
	}

	recon := api.Group("/reconciliation/member-creation", s.requireRole(domainwf.RoleMembershipApprover))
	{
		recon.GET("", h.ListPendingMemberCreation)
		recon.POST("/:id/retry", h.RetryMemberCreation)
	}
}

// entityRoutes registers the routes shared by applications and renewals
func (s *Server) entityRoutes(g *gin.RouterGroup, h *Handlers, t entity.EntityType) {
	g.GET("/:id", h.GetEntity(t))
	g.POST("/:id/financial-review/start", h.StartFinancialReview(t))
	g.POST("/:id/financial-review/complete", h.CompleteFinancialReview(t))
	g.GET("/:id/audit-trail", h.GetAuditTrail(t))
	g.POST("/:id/payments", h.RecordPayment(t))
	g.GET("/:id/payments", h.ListPayments(t))
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
