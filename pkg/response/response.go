// Package response renders the terminal pages of the payment journey for
// error and cancellation outcomes.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pay-frontend/pkg/logging"
	"github.com/Sternrassler/pay-frontend/pkg/reqctx"
)

// Kind selects the page rendered by a Router.
type Kind string

// Response kinds.
const (
	Unauthorised  Kind = "UNAUTHORISED"
	NotFound      Kind = "NOT_FOUND"
	SystemError   Kind = "SYSTEM_ERROR"
	UserCancelled Kind = "USER_CANCELLED"
)

// Router writes a final response for kind and stops the handler chain.
type Router interface {
	Response(c *gin.Context, kind Kind, payload gin.H)
}

type view struct {
	status   int
	template string
}

var views = map[Kind]view{
	Unauthorised:  {http.StatusUnauthorized, "errors/unauthorised"},
	NotFound:      {http.StatusNotFound, "errors/not_found"},
	SystemError:   {http.StatusInternalServerError, "errors/system_error"},
	UserCancelled: {http.StatusOK, "user_cancelled"},
}

// HTMLRouter renders HTML templates loaded into the gin engine.
type HTMLRouter struct {
	logger zerolog.Logger
}

// NewHTMLRouter creates a router rendering the engine's templates.
func NewHTMLRouter() *HTMLRouter {
	return &HTMLRouter{logger: logging.NewLogger("response")}
}

// Response implements Router. Request-scoped view data (service, features,
// charge id) is merged under payload.
func (r *HTMLRouter) Response(c *gin.Context, kind Kind, payload gin.H) {
	v, ok := views[kind]
	if !ok {
		r.logger.Error().
			Str(logging.FieldCorrelationID, reqctx.CorrelationID(c)).
			Str("kind", string(kind)).
			Msg("Unknown response kind, rendering system error")
		v = views[SystemError]
	}

	data := reqctx.ViewData(c)
	for k, val := range payload {
		data[k] = val
	}

	c.HTML(v.status, v.template, data)
	c.Abort()
}

// Status returns the HTTP status rendered for kind.
func Status(kind Kind) int {
	if v, ok := views[kind]; ok {
		return v.status
	}
	return http.StatusInternalServerError
}
