package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type timeoutConfig struct {
	except map[string]bool
	logger *zap.Logger
}

// TimeoutOption configures Timeout.
type TimeoutOption func(*timeoutConfig)

// ExceptRoutes exempts the given route patterns (as registered, e.g.
// "/api/v1/views/:id/events") from the deadline. Long-lived streams need this.
func ExceptRoutes(patterns ...string) TimeoutOption {
	return func(tc *timeoutConfig) {
		for _, p := range patterns {
			tc.except[p] = true
		}
	}
}

// WithTimeoutLogger logs requests that ran out of time.
func WithTimeoutLogger(l *zap.Logger) TimeoutOption {
	return func(tc *timeoutConfig) { tc.logger = l }
}

// Timeout attaches a deadline of d to the request context and runs the chain
// on the calling goroutine, so gin.Context is never shared.
//
// If the deadline passed and nothing was written, the request is answered
// with 503. A handler blocked on something that ignores its context cannot
// be interrupted; storage and routing calls all take the context.
func Timeout(d time.Duration, opts ...TimeoutOption) gin.HandlerFunc {
	tc := &timeoutConfig{except: make(map[string]bool), logger: zap.NewNop()}
	for _, o := range opts {
		o(tc)
	}

	return func(c *gin.Context) {
		if tc.except[c.FullPath()] {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if ctx.Err() != nil && !c.Writer.Written() {
			tc.logger.Warn("request timed out",
				zap.String("method", c.Request.Method),
				zap.String("route", c.FullPath()),
				zap.Duration("timeout", d),
			)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "request timed out",
			})
		}
	}
}
