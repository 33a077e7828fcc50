// Package reqctx names the request-scoped values shared between middleware,
// handlers and views, and provides typed accessors for them.
package reqctx

import (
	"github.com/gin-gonic/gin"

	"github.com/Sternrassler/pay-frontend/pkg/adminusers"
	"github.com/Sternrassler/pay-frontend/pkg/connector"
	"github.com/Sternrassler/pay-frontend/pkg/session"
)

// Keys for values stored on *gin.Context. The string values double as
// view data names.
const (
	KeyCorrelationID = "correlationId"
	KeyChargeID      = "chargeId"
	KeyChargeData    = "chargeData"
	KeyService       = "service"
	KeySession       = "session"
	KeyFeatures      = "features"
)

// CorrelationID returns the inbound correlation id, or "".
func CorrelationID(c *gin.Context) string {
	return c.GetString(KeyCorrelationID)
}

// ChargeID returns the charge id resolved for the request, or "".
func ChargeID(c *gin.Context) string {
	return c.GetString(KeyChargeID)
}

// Charge returns the charge fetched for the request.
func Charge(c *gin.Context) (*connector.Charge, bool) {
	v, ok := c.Get(KeyChargeData)
	if !ok {
		return nil, false
	}
	charge, ok := v.(*connector.Charge)
	return charge, ok && charge != nil
}

// Service returns the service metadata attached to the request.
func Service(c *gin.Context) (*adminusers.Service, bool) {
	v, ok := c.Get(KeyService)
	if !ok {
		return nil, false
	}
	svc, ok := v.(*adminusers.Service)
	return svc, ok && svc != nil
}

// Session returns the session loaded for the request. It never returns nil.
func Session(c *gin.Context) *session.State {
	if v, ok := c.Get(KeySession); ok {
		if state, ok := v.(*session.State); ok && state != nil {
			return state
		}
	}
	state := &session.State{}
	c.Set(KeySession, state)
	return state
}

// ViewData collects the request-scoped values every view may render.
func ViewData(c *gin.Context) gin.H {
	data := gin.H{}
	for _, key := range []string{KeyChargeID, KeyService, KeyFeatures} {
		if v, ok := c.Get(key); ok {
			data[key] = v
		}
	}
	return data
}
