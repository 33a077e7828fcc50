package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Sternrassler/pay-frontend/pkg/adminusers"
	"github.com/Sternrassler/pay-frontend/pkg/cache"
	"github.com/Sternrassler/pay-frontend/pkg/client"
	"github.com/Sternrassler/pay-frontend/pkg/config"
	"github.com/Sternrassler/pay-frontend/pkg/connector"
	"github.com/Sternrassler/pay-frontend/pkg/logging"
	"github.com/Sternrassler/pay-frontend/pkg/session"
	"github.com/Sternrassler/pay-frontend/pkg/tracing"
	"github.com/Sternrassler/pay-frontend/pkg/web"
)

const shutdownTimeout = 15 * time.Second

// app owns the long-lived resources of a running frontend.
type app struct {
	server   *http.Server
	redis    *redis.Client
	provider *sdktrace.TracerProvider
	logger   zerolog.Logger
}

func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	provider, err := tracing.Setup(ctx, tracing.Config{
		ServiceName:  tracing.TracerName,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.TracingSampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	a := &app{provider: provider, logger: logger}
	tracer := tracing.Tracer(provider)

	clientCfg := client.DefaultConfig()
	clientCfg.MaxSockets = cfg.MaxSockets
	clientCfg.DisableInternalHTTPS = cfg.DisableInternalHTTPS
	clientCfg.CertsPath = cfg.CertsPath
	clientCfg.ForwardProxyURL = cfg.ForwardProxyURL

	httpClient, err := client.New(clientCfg,
		client.WithLogger(logger.With().Str(logging.FieldComponent, "client").Logger()),
		client.WithTracer(tracer),
	)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("create outbound client: %w", err)
	}

	services, err := adminusers.New(cfg.AdminUsersURL, httpClient)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	charges, err := connector.New(cfg.ConnectorURL, httpClient)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	serviceCache, redisClient, err := newServiceCache(ctx, cfg)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.redis = redisClient

	sessions, err := session.NewStore(session.Config{
		Key:    []byte(cfg.SessionKey),
		MaxAge: cfg.CookieMaxAge,
		Secure: !cfg.SecureCookieOff,
	})
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("create session store: %w", err)
	}

	srv, err := web.NewServer(web.Deps{
		Charges:      charges,
		Services:     services,
		ServiceCache: serviceCache,
		Sessions:     sessions,
		Features:     cfg.Features,
		Tracer:       tracer,
		Logger:       logger,
	})
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("create web server: %w", err)
	}

	a.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().
		Str("cache_backend", cfg.ServiceCacheBackend).
		Dur("cache_max_age", cfg.ServiceCacheMaxAge).
		Int("max_sockets", cfg.MaxSockets).
		Bool("internal_https", !cfg.DisableInternalHTTPS).
		Msg("Frontend configured")

	return a, nil
}

// newServiceCache builds the configured service metadata cache. The returned
// redis client is nil for the memory backend.
func newServiceCache(ctx context.Context, cfg config.Config) (cache.Cache[adminusers.Service], *redis.Client, error) {
	if cfg.ServiceCacheBackend != config.CacheBackendRedis {
		return cache.NewTTLCache[adminusers.Service](cfg.ServiceCacheMaxAge), nil, nil
	}

	opts, err := redisOptions(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	redisClient := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		redisClient.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}

	return cache.NewRedisCache[adminusers.Service](redisClient, cfg.ServiceCacheMaxAge), redisClient, nil
}

// redisOptions accepts either a redis:// URL or a bare host:port.
func redisOptions(raw string) (*redis.Options, error) {
	if strings.Contains(raw, "://") {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", config.EnvRedisURL, err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: raw}, nil
}

// run listens on the configured address until ctx is cancelled.
func (a *app) run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.server.Addr, err)
	}
	return a.serve(ctx, ln)
}

func (a *app) serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", ln.Addr().String()).Msg("Listening")
		errCh <- a.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// close releases resources held by the app.
func (a *app) close(ctx context.Context) {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
	if a.provider != nil {
		if err := a.provider.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to shut down tracer provider")
		}
	}
}
