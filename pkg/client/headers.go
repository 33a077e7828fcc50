package client

import (
	"net"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/trace"

	"github.com/Sternrassler/pay-frontend/pkg/tracing"
)

const (
	// CorrelationHeader carries the request correlation id between services.
	CorrelationHeader = "X-Request-Id"

	contentTypeJSON = "application/json"
)

// buildHeaders assembles the outbound header set. The trace header is only
// emitted when parent belongs to an active trace. Caller supplied headers
// are applied last and win on conflict.
func buildHeaders(target *url.URL, args Args, parent, child trace.SpanContext) http.Header {
	h := http.Header{}
	h.Set("Content-Type", contentTypeJSON)
	h.Set(CorrelationHeader, args.CorrelationID)

	if host := hostHeader(target); host != "" {
		h.Set("Host", host)
	}

	if parent.IsValid() {
		segment := child.SpanID()
		if !child.IsValid() || segment == parent.SpanID() {
			segment = tracing.NewSpanID()
		}
		h.Set(tracing.AmznTraceHeader, tracing.FormatAmznTraceID(parent.TraceID(), segment))
	}

	for k, v := range args.Headers {
		h.Set(k, v)
	}

	return h
}

// hostHeader is the target hostname, with the port only when one is explicit.
func hostHeader(target *url.URL) string {
	host := target.Hostname()
	if host == "" {
		return ""
	}
	if port := target.Port(); port != "" {
		return net.JoinHostPort(host, port)
	}
	return host
}
