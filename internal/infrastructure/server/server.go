package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/vfl/internal/buffer"
	"github.com/GriffinCanCode/vfl/internal/infrastructure/monitoring"
)

// Config holds admin server settings
type Config struct {
	Addr        string
	Development bool
	// LogLevel, when set, is served at GET/PUT /log/level
	LogLevel http.Handler
}

// Server is the agent's admin HTTP surface
type Server struct {
	router  *gin.Engine
	http    *http.Server
	buf     buffer.Buffer
	metrics *monitoring.Metrics
	logger  *zap.Logger
	started time.Time
}

// New creates an admin server for buf. gatherer backs /metrics.
func New(cfg Config, buf buffer.Buffer, metrics *monitoring.Metrics, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:  gin.New(),
		buf:     buf,
		metrics: metrics,
		logger:  logger,
		started: time.Now(),
	}

	// Add middleware
	s.router.Use(gin.Recovery())
	s.router.Use(monitoring.Middleware(metrics))
	s.router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type", "Accept", "Origin"},
		MaxAge:          12 * time.Hour,
	}))

	// Register routes
	s.router.GET("/health", s.health)
	s.router.GET("/stats", s.stats)
	s.router.GET("/metrics", gin.WrapH(monitoring.Handler(gatherer)))
	s.router.POST("/flush", s.flush)
	if cfg.LogLevel != nil {
		s.router.GET("/log/level", gin.WrapH(cfg.LogLevel))
		s.router.PUT("/log/level", gin.WrapH(cfg.LogLevel))
	}

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
// It returns the bound address.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}

	addr := ln.Addr().String()
	s.logger.Info("Starting admin server", zap.String("addr", addr))

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Admin server stopped", zap.Error(err))
		}
	}()
	return addr, nil
}

// Shutdown stops accepting requests and waits for active ones
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down admin server")
	return s.http.Shutdown(ctx)
}
