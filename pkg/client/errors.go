package client

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrUnsupportedMethod is returned for methods outside the Method enumeration.
	ErrUnsupportedMethod = errors.New("unsupported method")

	// ErrRelativeURL is returned when the target URL is not absolute.
	ErrRelativeURL = errors.New("target url must be absolute")
)

// ErrorClass represents a classification of outbound failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents connection level errors.
	ErrorClassNetwork ErrorClass = "network"
)

// classifyError categorizes an outcome for metrics and logs. It returns ""
// for responses below 400.
func classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}
	switch {
	case resp.StatusCode >= 500:
		return ErrorClassServer
	case resp.StatusCode >= 400:
		return ErrorClassClient
	default:
		return ""
	}
}

// maxErrorBody bounds how much of an error response body is kept.
const maxErrorBody = 1024

// StatusError is returned by service clients built on Client when a
// downstream service answers with an unexpected status. Client itself never
// produces it.
type StatusError struct {
	Service    string
	Method     Method
	URL        string
	StatusCode int
	ErrorClass ErrorClass
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s %s responded %d (%s): %s",
			e.Service, e.Method, e.URL, e.StatusCode, e.ErrorClass, e.Body)
	}
	return fmt.Sprintf("%s %s %s responded %d (%s)",
		e.Service, e.Method, e.URL, e.StatusCode, e.ErrorClass)
}

// NewStatusError builds a StatusError from resp and closes its body.
func NewStatusError(service string, method Method, resp *http.Response) *StatusError {
	e := &StatusError{
		Service:    service,
		Method:     method,
		StatusCode: resp.StatusCode,
		ErrorClass: classifyError(resp, nil),
	}
	if resp.Request != nil && resp.Request.URL != nil {
		e.URL = resp.Request.URL.String()
	}
	if resp.Body != nil {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		e.Body = string(body)
	}
	return e
}

// IsStatus reports whether err is a StatusError with the given status code.
func IsStatus(err error, statusCode int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == statusCode
}
