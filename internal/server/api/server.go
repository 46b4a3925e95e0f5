package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cluster2600/ALBATOR/internal/server/api/handlers"
	"github.com/cluster2600/ALBATOR/internal/server/api/middleware"
	"github.com/cluster2600/ALBATOR/internal/shared/config"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Services bundles the core components the console exposes.
type Services struct {
	Preflight handlers.PreflightService
	Rollback  handlers.RollbackService
}

// Server is the console HTTP server.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds the router and wires every console endpoint. When the
// configured API key is empty the /api/v1 group is served unauthenticated;
// that is acceptable only because the default listen address is loopback.
func NewServer(cfg *config.Config, services Services, logger *zap.Logger) (*Server, error) {
	if services.Preflight == nil || services.Rollback == nil {
		return nil, fmt.Errorf("server requires preflight and rollback services")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	if cfg.Server.APIKey != "" {
		v1.Use(middleware.BearerAuth(cfg.Server.APIKey))
	} else {
		logger.Warn("console API key not set, serving unauthenticated")
	}
	v1.Use(middleware.RateLimit(middleware.NewRateLimiter(60, time.Minute)))

	preflightHandler := handlers.NewPreflightHandler(services.Preflight, cfg.Preflight)
	rollbackHandler := handlers.NewRollbackHandler(services.Rollback)
	statusHandler := handlers.NewStatusHandler(cfg, services.Rollback)

	v1.POST("/preflight", preflightHandler.Run)
	v1.GET("/rollback-points", rollbackHandler.List)
	v1.GET("/rollback-points/:id", rollbackHandler.Get)
	v1.POST("/rollback-points/:id/restore", rollbackHandler.Restore)
	v1.POST("/rollback-points/cleanup", rollbackHandler.Cleanup)
	v1.GET("/status", statusHandler.Status)

	httpServer := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	return &Server{
		cfg:        cfg,
		httpServer: httpServer,
		logger:     logger,
	}, nil
}

// Start serves until Stop is called. It blocks.
func (s *Server) Start() error {
	s.logger.Info("console API listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
