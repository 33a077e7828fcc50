// Package adminusers is a client for the admin users service, which owns
// service metadata such as display names and merchant details.
package adminusers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/pay-frontend/pkg/client"
)

const serviceName = "adminusers"

// ErrServiceNotFound is matched by errors returned for a 404 lookup.
var ErrServiceNotFound = errors.New("service not found")

// FindServiceParams selects a service by the gateway account it owns.
type FindServiceParams struct {
	GatewayAccountID int64
	CorrelationID    string
}

// Client calls the admin users service through the shared outbound client.
type Client struct {
	baseURL string
	http    *client.Client
}

// New creates an admin users client for baseURL.
func New(baseURL string, httpClient *client.Client) (*Client, error) {
	if httpClient == nil {
		return nil, errors.New("outbound client is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("invalid adminusers url %q", baseURL)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}, nil
}

// FindServiceBy returns the service that owns params.GatewayAccountID.
func (c *Client) FindServiceBy(ctx context.Context, params FindServiceParams) (*Service, error) {
	resp, err := c.http.Get(ctx, c.baseURL+"/v1/api/services", client.Args{
		QS:            url.Values{"gatewayAccountId": {strconv.FormatInt(params.GatewayAccountID, 10)}},
		CorrelationID: params.CorrelationID,
	})
	if err != nil {
		return nil, fmt.Errorf("find service for gateway account %d: %w", params.GatewayAccountID, err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := client.NewStatusError(serviceName, client.MethodGet, resp)
		if statusErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %w", ErrServiceNotFound, statusErr)
		}
		return nil, statusErr
	}
	defer resp.Body.Close()

	var svc Service
	if err := json.NewDecoder(resp.Body).Decode(&svc); err != nil {
		return nil, fmt.Errorf("decode service: %w", err)
	}

	return &svc, nil
}
