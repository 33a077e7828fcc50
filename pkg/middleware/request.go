// Package middleware holds the gin middleware of the inbound request
// pipeline: correlation ids, tracing, logging, metrics, session loading,
// charge resolution and service metadata.
package middleware

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pay-frontend/pkg/client"
	"github.com/Sternrassler/pay-frontend/pkg/config"
	"github.com/Sternrassler/pay-frontend/pkg/logging"
	"github.com/Sternrassler/pay-frontend/pkg/metrics"
	"github.com/Sternrassler/pay-frontend/pkg/reqctx"
	"github.com/Sternrassler/pay-frontend/pkg/response"
	"github.com/Sternrassler/pay-frontend/pkg/session"
)

// CorrelationID reuses the inbound X-Request-Id or generates one, echoes it
// on the response and attaches a correlated logger to the request context.
func CorrelationID(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(client.CorrelationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(reqctx.KeyCorrelationID, id)
		c.Header(client.CorrelationHeader, id)
		c.Request = c.Request.WithContext(logging.WithCorrelationID(c.Request.Context(), logger, id))
		c.Next()
	}
}

// RequestLogger logs every completed request at a level matching its
// status. Paths in skipPaths are not logged.
func RequestLogger(logger zerolog.Logger, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skip[path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		default:
			event = logger.Info()
		}

		event.
			Str(logging.FieldCorrelationID, reqctx.CorrelationID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("Request completed")
	}
}

// Metrics records inbound request counts and latency per route.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		metrics.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// Recovery turns panics into a response.SystemError page.
func Recovery(router response.Router, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error().
					Str(logging.FieldCorrelationID, reqctx.CorrelationID(c)).
					Str("method", c.Request.Method).
					Str("path", c.Request.URL.Path).
					Str("panic", fmt.Sprint(err)).
					Bytes("stack", debug.Stack()).
					Msg("Panic recovered")

				router.Response(c, response.SystemError, nil)
			}
		}()

		c.Next()
	}
}

// Session loads the session cookie into reqctx.KeySession.
func Session(store *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(reqctx.KeySession, store.Load(c.Request))
		c.Next()
	}
}

// Features exposes the feature toggles to every view.
func Features(features config.Features) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(reqctx.KeyFeatures, features)
		c.Next()
	}
}
