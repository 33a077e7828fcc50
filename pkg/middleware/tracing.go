package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sternrassler/pay-frontend/pkg/reqctx"
	"github.com/Sternrassler/pay-frontend/pkg/tracing"
)

// Tracing starts a server span per request. The parent is taken from
// X-Amzn-Trace-Id when present, otherwise from the W3C trace headers.
// A panic further down the chain is recorded on the span and re-raised for
// Recovery to render.
func Tracing(tracer trace.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if sc, err := tracing.ParseAmznTraceID(c.GetHeader(tracing.AmznTraceHeader)); err == nil {
			ctx = trace.ContextWithRemoteSpanContext(ctx, sc)
		} else {
			ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(c.Request.Header))
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.target", c.Request.URL.Path),
				attribute.String("http.user_agent", c.Request.UserAgent()),
			),
		)
		defer func() {
			if err := recover(); err != nil {
				span.RecordError(fmt.Errorf("panic: %v", err), trace.WithStackTrace(true))
				span.SetAttributes(attribute.Int("http.status_code", http.StatusInternalServerError))
				span.SetStatus(codes.Error, "panic")
				span.End()
				panic(err)
			}
			span.End()
		}()

		if id := reqctx.CorrelationID(c); id != "" {
			span.SetAttributes(attribute.String("request.id", id))
		}

		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
