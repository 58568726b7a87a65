package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for admin request metrics
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		// Process request
		c.Next()

		// Use the route template so label cardinality stays bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		metrics.RecordHTTPRequest(method, path, status, time.Since(start))
	}
}

// Timer measures one flush handler call
type Timer struct {
	start    time.Time
	metrics  *Metrics
	category string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, category string) *Timer {
	return &Timer{
		start:    time.Now(),
		metrics:  metrics,
		category: category,
	}
}

// Stop stops the timer and records the call
func (t *Timer) Stop(items int, err error) time.Duration {
	duration := time.Since(t.start)
	t.metrics.RecordFlush(t.category, items, duration, err)
	return duration
}
