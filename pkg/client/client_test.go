package client

import (
	"context"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sternrassler/pay-frontend/internal/testutil"
	"github.com/Sternrassler/pay-frontend/pkg/tracing"
)

// roundTripFunc adapts a function to http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func connReset() error {
	return &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry.Delay = 20 * time.Millisecond
	return cfg
}

func newTestClient(t *testing.T, cfg Config, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	c, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid config",
			mutate:      func(*Config) {},
			expectError: false,
		},
		{
			name:        "zero max sockets",
			mutate:      func(c *Config) { c.MaxSockets = 0 },
			expectError: true,
			errorMsg:    "max sockets must be positive",
		},
		{
			name:        "zero attempts",
			mutate:      func(c *Config) { c.Retry.MaxAttempts = 0 },
			expectError: true,
			errorMsg:    "retry max attempts must be at least 1",
		},
		{
			name:        "negative delay",
			mutate:      func(c *Config) { c.Retry.Delay = -time.Second },
			expectError: true,
			errorMsg:    "retry delay cannot be negative",
		},
		{
			name:        "invalid proxy",
			mutate:      func(c *Config) { c.ForwardProxyURL = "http://" },
			expectError: true,
			errorMsg:    "has no host",
		},
		{
			name:        "missing certs dir",
			mutate:      func(c *Config) { c.CertsPath = filepath.Join(t.TempDir(), "missing") },
			expectError: true,
			errorMsg:    "read certs dir",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			_, err := New(cfg, WithLogger(zerolog.Nop()))
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Error = %q, want it to contain %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestBuildHeaders(t *testing.T) {
	target, _ := url.Parse("https://svc.internal:8443/x")

	h := buildHeaders(target, Args{CorrelationID: "corr-1"}, trace.SpanContext{}, trace.SpanContext{})

	if got := h.Get("Host"); got != "svc.internal:8443" {
		t.Errorf("Host = %q, want svc.internal:8443", got)
	}
	if got := h.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	if got := h.Get(CorrelationHeader); got != "corr-1" {
		t.Errorf("X-Request-Id = %q, want corr-1", got)
	}
	if got := h.Get(tracing.AmznTraceHeader); got != "" {
		t.Errorf("Trace header set without active trace: %q", got)
	}
}

func TestBuildHeaders_HostWithoutPort(t *testing.T) {
	target, _ := url.Parse("http://connector.internal/v1/frontend/charges/abc")

	h := buildHeaders(target, Args{}, trace.SpanContext{}, trace.SpanContext{})

	if got := h.Get("Host"); got != "connector.internal" {
		t.Errorf("Host = %q, want connector.internal", got)
	}
	if _, ok := h[CorrelationHeader]; !ok {
		t.Error("X-Request-Id should be present even when empty")
	}
}

func TestBuildHeaders_TraceSegment(t *testing.T) {
	target, _ := url.Parse("http://svc.internal/x")
	traceID, _ := trace.TraceIDFromHex("5759e988bd862e3fe1be46a994272793")
	parentSpan, _ := trace.SpanIDFromHex("53995c3f42cd8ad8")
	childSpan, _ := trace.SpanIDFromHex("0a1b2c3d4e5f6071")

	parent := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: parentSpan, TraceFlags: trace.FlagsSampled})
	child := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: childSpan, TraceFlags: trace.FlagsSampled})

	h := buildHeaders(target, Args{}, parent, child)

	want := "Root=1-5759e988-bd862e3fe1be46a994272793;Parent=0a1b2c3d4e5f6071;Sampled=1"
	if got := h.Get(tracing.AmznTraceHeader); got != want {
		t.Errorf("X-Amzn-Trace-Id = %q, want %q", got, want)
	}

	// A non-recording tracer hands back the parent span context unchanged.
	h = buildHeaders(target, Args{}, parent, parent)
	got := h.Get(tracing.AmznTraceHeader)
	if !strings.HasPrefix(got, "Root=1-5759e988-bd862e3fe1be46a994272793;Parent=") {
		t.Fatalf("X-Amzn-Trace-Id = %q, unexpected root", got)
	}
	if strings.Contains(got, parentSpan.String()) {
		t.Errorf("Child segment reused the parent span id: %q", got)
	}
}

func TestBuildHeaders_CallerOverride(t *testing.T) {
	target, _ := url.Parse("http://svc.internal/x")

	h := buildHeaders(target, Args{
		CorrelationID: "corr-1",
		Headers: map[string]string{
			"content-type": "text/plain",
			"X-Extra":      "yes",
		},
	}, trace.SpanContext{}, trace.SpanContext{})

	if got := h.Get("Content-Type"); got != "text/plain" {
		t.Errorf("Content-Type = %q, want caller value text/plain", got)
	}
	if got := h.Get("X-Extra"); got != "yes" {
		t.Errorf("X-Extra = %q, want yes", got)
	}
}

func TestDo_SendsHeadersAndPayload(t *testing.T) {
	mock := testutil.NewMockServices()
	defer mock.Close()
	mock.SetResponse("/v1/frontend/charges/abc/status", testutil.NewNoContentResponse())

	c := newTestClient(t, testConfig())

	resp, err := c.Put(context.Background(), mock.URL()+"/v1/frontend/charges/abc/status", Args{
		Payload:       map[string]string{"new_status": "ENTERING CARD DETAILS"},
		CorrelationID: "corr-42",
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("StatusCode = %d, want 204", resp.StatusCode)
	}

	header := mock.GetLastRequestHeader()
	if got := header.Get(CorrelationHeader); got != "corr-42" {
		t.Errorf("X-Request-Id = %q, want corr-42", got)
	}
	if got := header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}

	method, body := mock.GetLastRequest()
	if method != http.MethodPut {
		t.Errorf("Method = %s, want PUT", method)
	}
	var payload map[string]string
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("Failed to decode body %q: %v", body, err)
	}
	if payload["new_status"] != "ENTERING CARD DETAILS" {
		t.Errorf("Payload = %v", payload)
	}
}

func TestDo_AppendsQueryString(t *testing.T) {
	var rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig())

	resp, err := c.Get(context.Background(), srv.URL+"/v1/api/services?a=1", Args{
		QS: url.Values{"gatewayAccountId": {"42"}},
	})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if rawQuery != "a=1&gatewayAccountId=42" {
		t.Errorf("RawQuery = %q, want a=1&gatewayAccountId=42", rawQuery)
	}
}

func TestDo_ServerErrorIsNotRetried(t *testing.T) {
	mock := testutil.NewMockServices()
	defer mock.Close()
	mock.SetResponse("/fail", testutil.NewServerErrorResponse())

	c := newTestClient(t, testConfig())

	resp, err := c.Get(context.Background(), mock.URL()+"/fail", Args{})
	if err != nil {
		t.Fatalf("Get() error = %v, non-2xx must be returned as a response", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", resp.StatusCode)
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("Request count = %d, want exactly 1", got)
	}
}

func TestDo_RetriesConnectionReset(t *testing.T) {
	var (
		mu    sync.Mutex
		times []time.Time
	)
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		mu.Lock()
		times = append(times, time.Now())
		mu.Unlock()
		return nil, connReset()
	})

	cfg := testConfig()
	c := newTestClient(t, cfg, WithRoundTripper(rt))

	_, err := c.Get(context.Background(), "http://connector.internal/v1/x", Args{})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, syscall.ECONNRESET) {
		t.Errorf("Expected underlying ECONNRESET, got %v", err)
	}

	if len(times) != 3 {
		t.Fatalf("Attempts = %d, want 3", len(times))
	}
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < cfg.Retry.Delay {
			t.Errorf("Gap before attempt %d = %v, want >= %v", i+1, gap, cfg.Retry.Delay)
		}
	}
}

func TestDo_RecoversAfterConnectionReset(t *testing.T) {
	attempts := 0
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		attempts++
		if attempts == 1 {
			return nil, connReset()
		}
		body, _ := io.ReadAll(r.Body)
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(string(body))),
			Header:     http.Header{},
			Request:    r,
		}, nil
	})

	c := newTestClient(t, testConfig(), WithRoundTripper(rt))

	resp, err := c.Post(context.Background(), "http://connector.internal/v1/x", Args{
		Payload: map[string]string{"k": "v"},
	})
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	defer resp.Body.Close()

	if attempts != 2 {
		t.Errorf("Attempts = %d, want 2", attempts)
	}
	echoed, _ := io.ReadAll(resp.Body)
	if string(echoed) != `{"k":"v"}` {
		t.Errorf("Retried request body = %q, want the original payload", echoed)
	}
}

func TestDo_OtherErrorsAreNotRetried(t *testing.T) {
	attempts := 0
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		attempts++
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
	})

	c := newTestClient(t, testConfig(), WithRoundTripper(rt))

	_, err := c.Get(context.Background(), "http://connector.internal/v1/x", Args{})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Did not expect ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, syscall.ECONNREFUSED) {
		t.Errorf("Expected ECONNREFUSED, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Attempts = %d, want 1", attempts)
	}
}

func TestDo_ContextCancellationStopsRetry(t *testing.T) {
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, connReset()
	})

	cfg := DefaultConfig()
	cfg.Retry.Delay = time.Minute
	c := newTestClient(t, cfg, WithRoundTripper(rt))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Get(ctx, "http://connector.internal/v1/x", Args{})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Cancellation took %v", elapsed)
	}
}

func TestDo_InvalidInput(t *testing.T) {
	c := newTestClient(t, testConfig())

	if _, err := c.Do(context.Background(), "OPTIONS", "http://svc.internal/x", Args{}); !errors.Is(err, ErrUnsupportedMethod) {
		t.Errorf("Expected ErrUnsupportedMethod, got %v", err)
	}
	if _, err := c.Get(context.Background(), "/relative", Args{}); !errors.Is(err, ErrRelativeURL) {
		t.Errorf("Expected ErrRelativeURL, got %v", err)
	}
	if _, err := c.Post(context.Background(), "http://svc.internal/x", Args{Payload: make(chan int)}); err == nil {
		t.Error("Expected encode error for unserialisable payload")
	}
}

func TestGo_InvokesCallback(t *testing.T) {
	mock := testutil.NewMockServices()
	defer mock.Close()
	mock.SetResponse("/v1/frontend/charges/abc", testutil.NewJSONResponse(`{"charge_id":"abc"}`))

	c := newTestClient(t, testConfig())

	gotStatus := make(chan int, 1)
	call := c.Go(context.Background(), MethodGet, mock.URL()+"/v1/frontend/charges/abc", Args{},
		func(resp *http.Response, err error) {
			if err != nil {
				t.Errorf("Callback error = %v", err)
				gotStatus <- 0
				return
			}
			gotStatus <- resp.StatusCode
		})

	resp, err := call.Wait()
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	resp.Body.Close()

	select {
	case status := <-gotStatus:
		if status != http.StatusOK {
			t.Errorf("Callback status = %d, want 200", status)
		}
	default:
		t.Error("Callback had not run when Done was closed")
	}
}

func TestForwardProxy(t *testing.T) {
	var gotHost, gotPath string
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer proxy.Close()

	cfg := testConfig()
	cfg.ForwardProxyURL = proxy.URL
	c := newTestClient(t, cfg)

	resp, err := c.Get(context.Background(), "http://connector.internal:9300/v1/frontend/charges/abc", Args{})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if gotHost != "connector.internal:9300" {
		t.Errorf("Proxy saw Host = %q, want connector.internal:9300", gotHost)
	}
	if gotPath != "/v1/frontend/charges/abc" {
		t.Errorf("Proxy saw path = %q", gotPath)
	}
}

func TestProxyAddress(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"http://proxy.internal:3128", "proxy.internal:3128"},
		{"http://proxy.internal", "proxy.internal:80"},
		{"https://proxy.internal", "proxy.internal:443"},
	}

	for _, tt := range tests {
		got, err := proxyAddress(tt.raw)
		if err != nil {
			t.Errorf("proxyAddress(%q) error = %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("proxyAddress(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func writeServerCert(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	dir := t.TempDir()
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	if err := os.WriteFile(filepath.Join(dir, "internal.pem"), data, 0o600); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	return dir
}

func TestCustomCertBundle(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	t.Run("trusted with bundle", func(t *testing.T) {
		cfg := testConfig()
		cfg.CertsPath = writeServerCert(t, srv)
		c := newTestClient(t, cfg)

		resp, err := c.Get(context.Background(), srv.URL, Args{})
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		resp.Body.Close()
	})

	t.Run("rejected without bundle", func(t *testing.T) {
		c := newTestClient(t, testConfig())

		if _, err := c.Get(context.Background(), srv.URL, Args{}); err == nil {
			t.Fatal("Expected certificate verification error")
		}
	})

	t.Run("bundle ignored when disabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.CertsPath = writeServerCert(t, srv)
		cfg.DisableInternalHTTPS = true
		c := newTestClient(t, cfg)

		if _, err := c.Get(context.Background(), srv.URL, Args{}); err == nil {
			t.Fatal("Expected certificate verification error")
		}
	})
}

func TestLoadCertPool_RejectsNonPEM(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "junk.pem"), []byte("not a cert"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, _, err := loadCertPool(dir); err == nil {
		t.Error("Expected error for file without certificates")
	}
}

func TestNewStatusError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://adminusers.internal/v1/api/services", nil)
	resp := &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader(`{"message":"nope"}`)),
		Request:    req,
	}

	err := NewStatusError("adminusers", MethodGet, resp)

	if err.ErrorClass != ErrorClassClient {
		t.Errorf("ErrorClass = %q, want client", err.ErrorClass)
	}
	if !IsStatus(err, http.StatusNotFound) {
		t.Error("IsStatus(404) = false")
	}
	if IsStatus(err, http.StatusInternalServerError) {
		t.Error("IsStatus(500) = true")
	}
	if !strings.Contains(err.Error(), "adminusers GET http://adminusers.internal/v1/api/services responded 404") {
		t.Errorf("Error() = %q", err.Error())
	}
}
