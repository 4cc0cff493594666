package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures a build
type Timer struct {
	start   time.Time
	metrics *Metrics
}

// NewTimer starts timing a build and marks it running
func NewTimer(metrics *Metrics) *Timer {
	metrics.BuildStarted()
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
	}
}

// Stop records the build outcome and its duration
func (t *Timer) Stop(outcome string) {
	t.metrics.BuildFinished()
	t.metrics.RecordBuild(outcome, time.Since(t.start))
}
