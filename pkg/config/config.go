// Package config builds the frontend's configuration from the environment.
//
// Configuration is read once at process start into a Config value which is
// then passed to component constructors. Nothing else in the module reads
// environment variables.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment variable names.
const (
	EnvPort                 = "PORT"
	EnvLogLevel             = "LOG_LEVEL"
	EnvLogPretty            = "LOG_PRETTY"
	EnvMaxSockets           = "MAX_SOCKETS"
	EnvDisableInternalHTTPS = "DISABLE_INTERNAL_HTTPS"
	EnvCertsPath            = "CERTS_PATH"
	EnvForwardProxyURL      = "FORWARD_PROXY_URL"
	EnvServiceCacheMaxAge   = "SERVICE_CACHE_MAX_AGE"
	EnvServiceCacheBackend  = "SERVICE_CACHE_BACKEND"
	EnvRedisURL             = "REDIS_URL"
	EnvAdminUsersURL        = "ADMINUSERS_URL"
	EnvConnectorURL         = "CONNECTOR_URL"
	EnvSessionKey           = "SESSION_ENCRYPTION_KEY"
	EnvCookieMaxAge         = "COOKIE_MAX_AGE"
	EnvSecureCookieOff      = "SECURE_COOKIE_OFF"
	EnvOTLPEndpoint         = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvTracingSampleRate    = "TRACING_SAMPLE_RATE"
	EnvAnalyticsTrackingID  = "ANALYTICS_TRACKING_ID"
	EnvGooglePayEnabled     = "GOOGLE_PAY_ENABLED"
	EnvApplePayEnabled      = "APPLE_PAY_ENABLED"
)

// Cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// MinSessionKeyLength is the minimum accepted length of SESSION_ENCRYPTION_KEY.
const MinSessionKeyLength = 32

// Config holds the complete frontend configuration.
type Config struct {
	Port      string
	LogLevel  string
	LogPretty bool

	// Outbound Request Client
	MaxSockets           int
	DisableInternalHTTPS bool
	CertsPath            string
	ForwardProxyURL      string

	// Service metadata cache
	ServiceCacheMaxAge  time.Duration
	ServiceCacheBackend string
	RedisURL            string

	// Downstream services
	AdminUsersURL string
	ConnectorURL  string

	// Session cookie
	SessionKey      string
	CookieMaxAge    time.Duration
	SecureCookieOff bool

	// Tracing
	OTLPEndpoint      string
	TracingSampleRate float64

	Features Features
}

// Features are the environment-driven toggles exposed to every view.
type Features struct {
	AnalyticsTrackingID string
	GooglePayEnabled    bool
	ApplePayEnabled     bool
}

// New returns a viper instance with the environment bound and all defaults set.
func New() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults registers the default value of every optional setting.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(EnvPort, "3000")
	v.SetDefault(EnvLogLevel, "info")
	v.SetDefault(EnvLogPretty, false)
	v.SetDefault(EnvMaxSockets, 100)
	v.SetDefault(EnvServiceCacheMaxAge, 900000)
	v.SetDefault(EnvServiceCacheBackend, CacheBackendMemory)
	v.SetDefault(EnvRedisURL, "localhost:6379")
	v.SetDefault(EnvCookieMaxAge, 5400000)
	v.SetDefault(EnvSecureCookieOff, false)
	v.SetDefault(EnvTracingSampleRate, 1.0)
}

// Load reads and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:      v.GetString(EnvPort),
		LogLevel:  v.GetString(EnvLogLevel),
		LogPretty: v.GetBool(EnvLogPretty),

		MaxSockets: v.GetInt(EnvMaxSockets),
		// Only the literal string "true" disables internal HTTPS.
		DisableInternalHTTPS: v.GetString(EnvDisableInternalHTTPS) == "true",
		CertsPath:            v.GetString(EnvCertsPath),
		ForwardProxyURL:      v.GetString(EnvForwardProxyURL),

		ServiceCacheMaxAge:  time.Duration(v.GetInt64(EnvServiceCacheMaxAge)) * time.Millisecond,
		ServiceCacheBackend: strings.ToLower(v.GetString(EnvServiceCacheBackend)),
		RedisURL:            v.GetString(EnvRedisURL),

		AdminUsersURL: v.GetString(EnvAdminUsersURL),
		ConnectorURL:  v.GetString(EnvConnectorURL),

		SessionKey:      v.GetString(EnvSessionKey),
		CookieMaxAge:    time.Duration(v.GetInt64(EnvCookieMaxAge)) * time.Millisecond,
		SecureCookieOff: v.GetString(EnvSecureCookieOff) == "true",

		OTLPEndpoint:      v.GetString(EnvOTLPEndpoint),
		TracingSampleRate: v.GetFloat64(EnvTracingSampleRate),

		Features: Features{
			AnalyticsTrackingID: v.GetString(EnvAnalyticsTrackingID),
			GooglePayEnabled:    v.GetString(EnvGooglePayEnabled) == "true",
			ApplePayEnabled:     v.GetString(EnvApplePayEnabled) == "true",
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required settings and value ranges.
func (c Config) Validate() error {
	if c.MaxSockets <= 0 {
		return fmt.Errorf("%s must be > 0 (got %d)", EnvMaxSockets, c.MaxSockets)
	}
	if c.ServiceCacheMaxAge <= 0 {
		return fmt.Errorf("%s must be > 0 (got %s)", EnvServiceCacheMaxAge, c.ServiceCacheMaxAge)
	}
	switch c.ServiceCacheBackend {
	case CacheBackendMemory, CacheBackendRedis:
	default:
		return fmt.Errorf("%s must be %q or %q (got %q)",
			EnvServiceCacheBackend, CacheBackendMemory, CacheBackendRedis, c.ServiceCacheBackend)
	}
	if err := validateBaseURL(EnvAdminUsersURL, c.AdminUsersURL); err != nil {
		return err
	}
	if err := validateBaseURL(EnvConnectorURL, c.ConnectorURL); err != nil {
		return err
	}
	if c.ForwardProxyURL != "" {
		if err := validateBaseURL(EnvForwardProxyURL, c.ForwardProxyURL); err != nil {
			return err
		}
	}
	if len(c.SessionKey) < MinSessionKeyLength {
		return fmt.Errorf("%s must be at least %d characters", EnvSessionKey, MinSessionKeyLength)
	}
	if c.CookieMaxAge <= 0 {
		return fmt.Errorf("%s must be > 0 (got %s)", EnvCookieMaxAge, c.CookieMaxAge)
	}
	return nil
}

func validateBaseURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL (got %q)", name, raw)
	}
	return nil
}
