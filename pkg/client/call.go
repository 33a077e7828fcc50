package client

import (
	"context"
	"net/http"
)

// Call is an outbound request running in the background.
type Call struct {
	Method   Method
	URL      string
	Response *http.Response
	Err      error

	// Done is closed once Response and Err are set and the callback, if
	// any, has returned.
	Done chan struct{}
}

// Wait blocks until the call completes.
func (call *Call) Wait() (*http.Response, error) {
	<-call.Done
	return call.Response, call.Err
}

// Go starts the request in a new goroutine and returns immediately. done,
// when non-nil, is invoked with the outcome before Call.Done is closed.
func (c *Client) Go(ctx context.Context, method Method, target string, args Args, done func(*http.Response, error)) *Call {
	call := &Call{
		Method: method,
		URL:    target,
		Done:   make(chan struct{}),
	}
	go func() {
		defer close(call.Done)
		call.Response, call.Err = c.Do(ctx, method, target, args)
		if done != nil {
			done(call.Response, call.Err)
		}
	}()
	return call
}
