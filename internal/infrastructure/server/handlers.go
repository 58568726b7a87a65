package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/vfl/internal/buffer"
)

// health handles liveness checks
func (s *Server) health(c *gin.Context) {
	st := s.buf.Stats()
	status := "healthy"
	if st.Closed {
		status = "closed"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         status,
		"uptime_seconds": time.Since(s.started).Seconds(),
	})
}

// stats reports the buffer state and metric counters
func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"buffer":  s.buf.Stats(),
		"metrics": s.metrics.Snapshot(),
	})
}

// flush drains the buffer, bounded by the buffer's drain timeout
func (s *Server) flush(c *gin.Context) {
	start := time.Now()
	err := s.buf.Flush(c.Request.Context())

	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"status":      "flushed",
			"duration_ms": time.Since(start).Milliseconds(),
		})
	case errors.Is(err, buffer.ErrDrainTimeout):
		s.logger.Warn("Admin flush timed out", zap.Error(err))
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	default:
		s.logger.Error("Admin flush failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
