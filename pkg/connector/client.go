// Package connector is a client for the connector service, which owns
// charges and their state transitions.
package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Sternrassler/pay-frontend/pkg/client"
)

const serviceName = "connector"

// ErrChargeNotFound is matched by errors returned when connector answers 404.
var ErrChargeNotFound = errors.New("charge not found")

// Client calls connector through the shared outbound client.
type Client struct {
	baseURL string
	http    *client.Client
}

// New creates a connector client for baseURL.
func New(baseURL string, httpClient *client.Client) (*Client, error) {
	if httpClient == nil {
		return nil, errors.New("outbound client is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("invalid connector url %q", baseURL)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}, nil
}

// FindCharge fetches a charge by its external id.
func (c *Client) FindCharge(ctx context.Context, chargeID, correlationID string) (*Charge, error) {
	return c.getCharge(ctx, "/v1/frontend/charges/"+url.PathEscape(chargeID), correlationID)
}

// FindChargeByToken fetches the charge a one-time token was issued for.
func (c *Client) FindChargeByToken(ctx context.Context, token, correlationID string) (*Charge, error) {
	return c.getCharge(ctx, "/v1/frontend/tokens/"+url.PathEscape(token)+"/charge", correlationID)
}

// DeleteToken invalidates a one-time token.
func (c *Client) DeleteToken(ctx context.Context, token, correlationID string) error {
	return c.send(ctx, client.MethodDelete, "/v1/frontend/tokens/"+url.PathEscape(token), nil, correlationID)
}

// UpdateChargeStatus moves a charge to status.
func (c *Client) UpdateChargeStatus(ctx context.Context, chargeID, status, correlationID string) error {
	payload := map[string]string{"new_status": status}
	return c.send(ctx, client.MethodPut, "/v1/frontend/charges/"+url.PathEscape(chargeID)+"/status", payload, correlationID)
}

// CancelCharge cancels a charge on behalf of the paying user.
func (c *Client) CancelCharge(ctx context.Context, chargeID, correlationID string) error {
	return c.send(ctx, client.MethodPost, "/v1/frontend/charges/"+url.PathEscape(chargeID)+"/cancel", nil, correlationID)
}

// PatchEmail replaces the confirmation email address on a charge.
func (c *Client) PatchEmail(ctx context.Context, chargeID, email, correlationID string) error {
	payload := map[string]string{"op": "replace", "path": "email", "value": email}
	return c.send(ctx, client.MethodPatch, "/v1/frontend/charges/"+url.PathEscape(chargeID), payload, correlationID)
}

func (c *Client) getCharge(ctx context.Context, path, correlationID string) (*Charge, error) {
	resp, err := c.http.Get(ctx, c.baseURL+path, client.Args{CorrelationID: correlationID})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(client.MethodGet, resp)
	}
	defer resp.Body.Close()

	var charge Charge
	if err := json.NewDecoder(resp.Body).Decode(&charge); err != nil {
		return nil, fmt.Errorf("decode charge: %w", err)
	}
	return &charge, nil
}

func (c *Client) send(ctx context.Context, method client.Method, path string, payload any, correlationID string) error {
	resp, err := c.http.Do(ctx, method, c.baseURL+path, client.Args{
		Payload:       payload,
		CorrelationID: correlationID,
	})
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, resp)
	}
	resp.Body.Close()
	return nil
}

func statusError(method client.Method, resp *http.Response) error {
	err := client.NewStatusError(serviceName, method, resp)
	if err.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", ErrChargeNotFound, err)
	}
	return err
}
