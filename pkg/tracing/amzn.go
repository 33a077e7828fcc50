package tracing

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// AmznTraceHeader is the header carrying the X-Ray style trace context.
const AmznTraceHeader = "X-Amzn-Trace-Id"

// ErrInvalidAmznTraceID is returned when an X-Amzn-Trace-Id value cannot be parsed.
var ErrInvalidAmznTraceID = errors.New("invalid X-Amzn-Trace-Id")

// FormatAmznTraceID renders a trace and parent segment as
// "Root=1-xxxxxxxx-yyyyyyyyyyyyyyyyyyyyyyyy;Parent=<span>;Sampled=1".
func FormatAmznTraceID(traceID trace.TraceID, parent trace.SpanID) string {
	return fmt.Sprintf("Root=%s;Parent=%s;Sampled=1", FormatAmznRoot(traceID), parent.String())
}

// FormatAmznRoot renders a 128-bit trace id in the "1-<epoch>-<unique>" form.
func FormatAmznRoot(traceID trace.TraceID) string {
	h := traceID.String()
	return "1-" + h[:8] + "-" + h[8:]
}

// ParseAmznTraceID parses an inbound X-Amzn-Trace-Id value into a remote span
// context. A header without Parent (as set by the load balancer) keeps its
// root and gets a freshly generated parent segment id.
func ParseAmznTraceID(value string) (trace.SpanContext, error) {
	var root, parent, sampled string
	for _, part := range strings.Split(value, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "Root":
			root = v
		case "Parent":
			parent = v
		case "Sampled":
			sampled = v
		}
	}

	traceID, err := parseAmznRoot(root)
	if err != nil {
		return trace.SpanContext{}, err
	}

	var spanID trace.SpanID
	if parent == "" {
		spanID = NewSpanID()
	} else if spanID, err = trace.SpanIDFromHex(parent); err != nil {
		return trace.SpanContext{}, fmt.Errorf("%w: parent %q: %v", ErrInvalidAmznTraceID, parent, err)
	}

	var flags trace.TraceFlags
	if sampled != "0" {
		flags = trace.FlagsSampled
	}

	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	}), nil
}

func parseAmznRoot(root string) (trace.TraceID, error) {
	parts := strings.Split(root, "-")
	if len(parts) != 3 || parts[0] != "1" || len(parts[1]) != 8 || len(parts[2]) != 24 {
		return trace.TraceID{}, fmt.Errorf("%w: root %q", ErrInvalidAmznTraceID, root)
	}
	traceID, err := trace.TraceIDFromHex(parts[1] + parts[2])
	if err != nil {
		return trace.TraceID{}, fmt.Errorf("%w: root %q: %v", ErrInvalidAmznTraceID, root, err)
	}
	return traceID, nil
}

// NewSpanID returns a random, valid span id.
func NewSpanID() trace.SpanID {
	var id trace.SpanID
	for !id.IsValid() {
		_, _ = rand.Read(id[:])
	}
	return id
}
