// Package testutil provides testing utilities for the payment frontend.
package testutil

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockServices is a configurable stand-in for the internal services the
// frontend talks to (adminusers and connector).
type MockServices struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	services map[string]MockResponse

	// Tracking
	RequestCount      int
	PathCount         map[string]int
	LastRequestHeader http.Header
	LastMethod        string
	LastRequestBody   []byte
}

// NewMockServices creates a new mock services server.
func NewMockServices() *MockServices {
	mock := &MockServices{
		handlers:  make(map[string]func(w http.ResponseWriter, r *http.Request)),
		services:  make(map[string]MockResponse),
		PathCount: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCount[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		mock.LastMethod = r.Method
		mock.LastRequestBody = body
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		http.NotFound(w, r)
	}))

	mock.SetHandler("/v1/api/services", mock.servicesHandler)

	return mock
}

// URL returns the mock server URL.
func (m *MockServices) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockServices) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockServices) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PathCount = make(map[string]int)
	m.LastRequestHeader = nil
	m.LastMethod = ""
	m.LastRequestBody = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockServices) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockServices) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// SetServiceResponse configures the adminusers service lookup for one
// gateway account id.
func (m *MockServices) SetServiceResponse(gatewayAccountID int64, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[fmt.Sprint(gatewayAccountID)] = resp
}

// SetChargeResponse configures the connector charge lookup.
func (m *MockServices) SetChargeResponse(chargeID string, resp MockResponse) {
	m.SetResponse("/v1/frontend/charges/"+chargeID, resp)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockServices) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPathCount returns the number of requests made to path.
func (m *MockServices) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCount[path]
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockServices) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

// GetLastRequest returns the method and body of the most recent request.
func (m *MockServices) GetLastRequest() (string, []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastMethod, m.LastRequestBody
}

func (m *MockServices) servicesHandler(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	resp, ok := m.services[r.URL.Query().Get("gatewayAccountId")]
	m.mu.RUnlock()

	if !ok {
		writeResponse(w, NewNotFoundResponse())
		return
	}
	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewJSONResponse creates a standard 200 OK JSON response.
func NewJSONResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewNoContentResponse creates a 204 No Content response.
func NewNoContentResponse() MockResponse {
	return MockResponse{StatusCode: http.StatusNoContent}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"message": ["Not found"]}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message": ["Internal server error"]}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// ServiceJSON renders a minimal adminusers service body.
func ServiceJSON(externalID, name string, gatewayAccountIDs ...string) string {
	ids := ""
	for i, id := range gatewayAccountIDs {
		if i > 0 {
			ids += ","
		}
		ids += fmt.Sprintf("%q", id)
	}
	return fmt.Sprintf(`{"external_id":%q,"name":%q,"service_name":{"en":%q},"gateway_account_ids":[%s]}`,
		externalID, name, name, ids)
}

// ChargeJSON renders a minimal connector charge body.
func ChargeJSON(chargeID, status string, gatewayAccountID int64) string {
	return fmt.Sprintf(`{"charge_id":%q,"amount":1000,"description":"Test payment","reference":"REF-1","status":%q,"return_url":"https://service.example/return","language":"en","gateway_account":{"gateway_account_id":%d,"service_name":"Test Service","type":"test"}}`,
		chargeID, status, gatewayAccountID)
}
