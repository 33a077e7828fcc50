package integration

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/pay-frontend/internal/testutil"
	"github.com/Sternrassler/pay-frontend/pkg/adminusers"
	"github.com/Sternrassler/pay-frontend/pkg/cache"
	"github.com/Sternrassler/pay-frontend/pkg/client"
	"github.com/Sternrassler/pay-frontend/pkg/connector"
	"github.com/Sternrassler/pay-frontend/pkg/session"
	"github.com/Sternrassler/pay-frontend/pkg/web"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// startFrontend runs a frontend instance against the mock services with a
// Redis backed service cache.
func startFrontend(t *testing.T, mock *testutil.MockServices, redisClient *redis.Client) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	httpClient, err := client.New(client.DefaultConfig(), client.WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	charges, err := connector.New(mock.URL(), httpClient)
	if err != nil {
		t.Fatalf("Failed to create connector client: %v", err)
	}
	services, err := adminusers.New(mock.URL(), httpClient)
	if err != nil {
		t.Fatalf("Failed to create adminusers client: %v", err)
	}
	sessions, err := session.NewStore(session.Config{
		Key:    []byte("0123456789abcdef0123456789abcdef"),
		MaxAge: 90 * time.Minute,
	})
	if err != nil {
		t.Fatalf("Failed to create session store: %v", err)
	}

	srv, err := web.NewServer(web.Deps{
		Charges:      charges,
		Services:     services,
		ServiceCache: cache.NewRedisCache[adminusers.Service](redisClient, 15*time.Minute),
		Sessions:     sessions,
		Logger:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Failed to create web server: %v", err)
	}

	frontend := httptest.NewServer(srv.Handler())
	t.Cleanup(frontend.Close)
	return frontend
}

func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("Failed to create cookie jar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

func setupJourney(mock *testutil.MockServices) {
	mock.SetResponse("/v1/frontend/tokens/tok_1/charge",
		testutil.NewJSONResponse(testutil.ChargeJSON("ch_1", connector.StatusCreated, 42)))
	mock.SetResponse("/v1/frontend/tokens/tok_1", testutil.NewNoContentResponse())
	mock.SetChargeResponse("ch_1", testutil.NewJSONResponse(testutil.ChargeJSON("ch_1", connector.StatusEnteringCardDetails, 42)))
	mock.SetResponse("/v1/frontend/charges/ch_1/cancel", testutil.NewNoContentResponse())
	mock.SetServiceResponse(42, testutil.NewJSONResponse(testutil.ServiceJSON("svc-1", "Renew a licence", "42")))
}

// TestFullPaymentJourney follows a user from the secure token link to the
// cancelled page: Token → Session → Charge → Service Cache → View.
func TestFullPaymentJourney(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockServices()
	defer mock.Close()
	setupJourney(mock)

	frontend := startFrontend(t, mock, redisClient)
	browser := newBrowser(t)

	resp, err := browser.Get(frontend.URL + "/secure/tok_1")
	if err != nil {
		t.Fatalf("GET /secure/tok_1 failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 after redirect, got %d", resp.StatusCode)
	}
	if resp.Request.URL.Path != "/card_details/ch_1" {
		t.Errorf("Expected to land on /card_details/ch_1, got %s", resp.Request.URL.Path)
	}
	if !strings.Contains(string(body), "Renew a licence") {
		t.Error("Expected service name in the payment page")
	}

	ctx := context.Background()
	exists, err := redisClient.Exists(ctx, cache.ServiceKey(42)).Result()
	if err != nil {
		t.Fatalf("Redis EXISTS failed: %v", err)
	}
	if exists != 1 {
		t.Error("Expected service metadata to be cached in Redis")
	}

	// A browser without the session cookie cannot view the charge.
	resp, err = newBrowser(t).Get(frontend.URL + "/card_details/ch_1")
	if err != nil {
		t.Fatalf("GET without session failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without session, got %d", resp.StatusCode)
	}

	resp, err = browser.Post(frontend.URL+"/card_details/ch_1/cancel", "application/x-www-form-urlencoded", nil)
	if err != nil {
		t.Fatalf("POST cancel failed: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "Your payment has been cancelled") {
		t.Error("Expected cancelled page")
	}
	if got := mock.GetPathCount("/v1/frontend/charges/ch_1/cancel"); got != 1 {
		t.Errorf("Expected 1 cancel request, got %d", got)
	}
}

// TestSharedServiceCache verifies that frontend instances sharing Redis share
// cached service metadata.
func TestSharedServiceCache(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockServices()
	defer mock.Close()
	setupJourney(mock)

	first := startFrontend(t, mock, redisClient)
	second := startFrontend(t, mock, redisClient)
	browser := newBrowser(t)

	resp, err := browser.Get(first.URL + "/secure/tok_1")
	if err != nil {
		t.Fatalf("GET /secure/tok_1 failed: %v", err)
	}
	resp.Body.Close()

	// Both instances share the session key and cookies ignore the port, so
	// the session carries over to the second instance.
	resp, err = browser.Get(second.URL + "/card_details/ch_1")
	if err != nil {
		t.Fatalf("GET on second instance failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if got := mock.GetPathCount("/v1/api/services"); got != 1 {
		t.Errorf("Expected 1 adminusers request across instances, got %d", got)
	}
}

// TestServiceCacheExpiry verifies the Redis TTL drives refetching.
func TestServiceCacheExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	c := cache.NewRedisCache[adminusers.Service](redisClient, time.Second)

	if err := c.Set(ctx, cache.ServiceKey(7), adminusers.Service{ExternalID: "svc-7"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	svc, err := c.Get(ctx, cache.ServiceKey(7))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if svc.ExternalID != "svc-7" {
		t.Errorf("Expected svc-7, got %s", svc.ExternalID)
	}

	time.Sleep(1500 * time.Millisecond)

	if _, err := c.Get(ctx, cache.ServiceKey(7)); !errors.Is(err, cache.ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after TTL, got %v", err)
	}
}
