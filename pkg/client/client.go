// Package client provides the outbound HTTP client used for every call from
// the frontend to internal services. It applies a consistent header set,
// keeps one connection pool per scheme, can route connections through a
// forward proxy, and retries only on connection resets.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sternrassler/pay-frontend/pkg/logging"
	"github.com/Sternrassler/pay-frontend/pkg/tracing"
)

// Prometheus metrics for outbound requests.
var (
	outboundRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontend_outbound_requests_total",
		Help: "Total number of outbound requests by method and status",
	}, []string{"method", "status"})

	outboundRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "frontend_outbound_request_duration_seconds",
		Help:    "Outbound request duration in seconds, including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	outboundErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontend_outbound_errors_total",
		Help: "Total number of failed or non-2xx outbound requests by error class",
	}, []string{"class"})
)

// Method is an HTTP method the client accepts.
type Method string

// Supported methods.
const (
	MethodGet    Method = http.MethodGet
	MethodPost   Method = http.MethodPost
	MethodPut    Method = http.MethodPut
	MethodPatch  Method = http.MethodPatch
	MethodDelete Method = http.MethodDelete
)

// Valid reports whether m is one of the supported methods.
func (m Method) Valid() bool {
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete:
		return true
	}
	return false
}

// Args describes a single outbound call.
type Args struct {
	// Payload is JSON encoded as the request body when non-nil.
	Payload any

	// QS is appended to the target query string.
	QS url.Values

	// Headers override the defaults.
	Headers map[string]string

	// CorrelationID is sent as X-Request-Id.
	CorrelationID string
}

// Config holds the configuration for the outbound client.
type Config struct {
	// MaxSockets caps concurrent connections per host in each pool.
	MaxSockets int

	// DisableInternalHTTPS skips the custom certificate bundle.
	DisableInternalHTTPS bool

	// CertsPath is a directory of PEM files trusted in addition to the system roots.
	CertsPath string

	// ForwardProxyURL, when set, receives every outbound connection.
	ForwardProxyURL string

	// Timeout bounds a single attempt.
	Timeout time.Duration

	Retry RetryConfig
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxSockets: 100,
		Timeout:    60 * time.Second,
		Retry:      DefaultRetryConfig(),
	}
}

// Client performs outbound requests to internal services.
// It is safe for concurrent use.
type Client struct {
	config Config
	plain  *http.Client
	secure *http.Client
	logger zerolog.Logger
	tracer trace.Tracer

	roundTripper http.RoundTripper
}

// Option customises a Client.
type Option func(*Client)

// WithLogger sets the logger used by the client.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTracer sets the tracer used for client spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) { c.tracer = tracer }
}

// WithRoundTripper replaces both connection pools with rt.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(c *Client) { c.roundTripper = rt }
}

// New creates a new outbound client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.MaxSockets <= 0 {
		return nil, errors.New("max sockets must be positive")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, errors.New("retry max attempts must be at least 1")
	}
	if cfg.Retry.Delay < 0 {
		return nil, errors.New("retry delay cannot be negative")
	}

	c := &Client{
		config: cfg,
		logger: logging.NewLogger("outbound-client"),
		tracer: tracing.Tracer(nil),
	}
	for _, opt := range opts {
		opt(c)
	}

	plain, secure := c.roundTripper, c.roundTripper
	if c.roundTripper == nil {
		t, err := newTransports(cfg, c.logger)
		if err != nil {
			return nil, err
		}
		plain, secure = t.plain, t.secure
	}

	c.plain = newHTTPClient(plain, cfg.Timeout)
	c.secure = newHTTPClient(secure, cfg.Timeout)

	return c, nil
}

func newHTTPClient(rt http.RoundTripper, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: rt,
		Timeout:   timeout,
		// Redirects are returned to the caller unchanged.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (c *Client) httpClientFor(target *url.URL) *http.Client {
	if target.Scheme == "https" {
		return c.secure
	}
	return c.plain
}

// Do performs an outbound request. Any response, whatever its status, is
// returned as is; the caller must close the body. Connection resets are
// retried according to Config.Retry.
func (c *Client) Do(ctx context.Context, method Method, target string, args Args) (*http.Response, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse target url: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("%w: %q", ErrRelativeURL, target)
	}
	if len(args.QS) > 0 {
		q := u.Query()
		for k, vs := range args.QS {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var body []byte
	if args.Payload != nil {
		body, err = json.Marshal(args.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
	}

	parent := trace.SpanContextFromContext(ctx)
	ctx, span := c.tracer.Start(ctx, "outbound "+string(method),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", string(method)),
			attribute.String("http.url", u.String()),
		),
	)
	defer span.End()

	headers := buildHeaders(u, args, parent, span.SpanContext())
	logger := c.logger.With().
		Str(logging.FieldCorrelationID, args.CorrelationID).
		Str("method", string(method)).
		Str("url", u.String()).
		Logger()

	logger.Debug().Msg("Calling internal service")

	var resp *http.Response
	start := time.Now()
	err = c.retryWithBackoff(ctx, method, u.String(), func(int) error {
		req, err := newRequest(ctx, method, u, body, headers)
		if err != nil {
			return err
		}
		resp, err = c.httpClientFor(u).Do(req)
		return err
	})
	elapsed := time.Since(start)
	outboundRequestDuration.WithLabelValues(string(method)).Observe(elapsed.Seconds())

	if err != nil {
		outboundRequestsTotal.WithLabelValues(string(method), "error").Inc()
		outboundErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Dur("elapsed", elapsed).Msg("Outbound request failed")
		return nil, err
	}

	outboundRequestsTotal.WithLabelValues(string(method), strconv.Itoa(resp.StatusCode)).Inc()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if class := classifyError(resp, nil); class != "" {
		outboundErrorsTotal.WithLabelValues(string(class)).Inc()
		if class == ErrorClassServer {
			span.SetStatus(codes.Error, resp.Status)
		}
	}

	logger.Info().
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("Outbound request completed")

	return resp, nil
}

func newRequest(ctx context.Context, method Method, target *url.URL, body []byte, headers http.Header) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, string(method), target.String(), r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header = headers.Clone()
	if host := req.Header.Get("Host"); host != "" {
		req.Host = host
		req.Header.Del("Host")
	}
	return req, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, target string, args Args) (*http.Response, error) {
	return c.Do(ctx, MethodGet, target, args)
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, target string, args Args) (*http.Response, error) {
	return c.Do(ctx, MethodPost, target, args)
}

// Put performs a PUT request.
func (c *Client) Put(ctx context.Context, target string, args Args) (*http.Response, error) {
	return c.Do(ctx, MethodPut, target, args)
}

// Patch performs a PATCH request.
func (c *Client) Patch(ctx context.Context, target string, args Args) (*http.Response, error) {
	return c.Do(ctx, MethodPatch, target, args)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, target string, args Args) (*http.Response, error) {
	return c.Do(ctx, MethodDelete, target, args)
}
