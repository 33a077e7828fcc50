package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// transports holds one keep-alive pool per scheme.
type transports struct {
	plain  *http.Transport
	secure *http.Transport
}

func newTransports(cfg Config, logger zerolog.Logger) (*transports, error) {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	dial := dialer.DialContext

	if cfg.ForwardProxyURL != "" {
		proxyAddr, err := proxyAddress(cfg.ForwardProxyURL)
		if err != nil {
			return nil, err
		}
		// Connections go to the proxy; the logical target stays in the
		// request URL and Host header.
		dial = func(ctx context.Context, network, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, proxyAddr)
		}
		logger.Info().Str("proxy", proxyAddr).Msg("Routing outbound connections through forward proxy")
	}

	t := &transports{
		plain:  newPooledTransport(cfg.MaxSockets, dial),
		secure: newPooledTransport(cfg.MaxSockets, dial),
	}

	if cfg.DisableInternalHTTPS {
		logger.Warn().Msg("Internal HTTPS verification disabled, custom certificates will not be applied")
		return t, nil
	}

	pool, loaded, err := loadCertPool(cfg.CertsPath)
	if err != nil {
		return nil, err
	}
	if loaded > 0 {
		logger.Info().Str("path", cfg.CertsPath).Int("count", loaded).Msg("Loaded internal certificates")
	}
	t.secure.TLSClientConfig = &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}

	return t, nil
}

func newPooledTransport(maxSockets int, dial func(ctx context.Context, network, addr string) (net.Conn, error)) *http.Transport {
	return &http.Transport{
		DialContext:           dial,
		MaxConnsPerHost:       maxSockets,
		MaxIdleConns:          maxSockets,
		MaxIdleConnsPerHost:   maxSockets,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// proxyAddress returns host:port for the forward proxy, defaulting the port
// from the scheme.
func proxyAddress(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse forward proxy url: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("forward proxy url %q has no host", raw)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// loadCertPool returns the system roots extended with every PEM file in dir.
func loadCertPool(dir string) (*x509.CertPool, int, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if dir == "" {
		return pool, 0, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, fmt.Errorf("read certs dir: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, 0, fmt.Errorf("read cert %s: %w", path, err)
		}
		if !pool.AppendCertsFromPEM(data) {
			return nil, 0, fmt.Errorf("no certificates found in %s", path)
		}
		loaded++
	}

	return pool, loaded, nil
}
