package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pay-frontend/pkg/connector"
	"github.com/Sternrassler/pay-frontend/pkg/logging"
	"github.com/Sternrassler/pay-frontend/pkg/reqctx"
	"github.com/Sternrassler/pay-frontend/pkg/response"
)

// ChargeParam is the route parameter holding the charge id.
const ChargeParam = "chargeId"

// ChargeFinder fetches charges by id.
type ChargeFinder interface {
	FindCharge(ctx context.Context, chargeID, correlationID string) (*connector.Charge, error)
}

// ResolveCharge checks that the session owns the charge named by the route
// and loads it from connector into reqctx.KeyChargeID and
// reqctx.KeyChargeData.
func ResolveCharge(finder ChargeFinder, router response.Router, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		chargeID := c.Param(ChargeParam)
		correlationID := reqctx.CorrelationID(c)
		log := logger.With().
			Str(logging.FieldCorrelationID, correlationID).
			Str(logging.FieldChargeID, chargeID).
			Logger()

		if chargeID == "" || !reqctx.Session(c).Has(chargeID) {
			log.Warn().Msg("Charge not found in session")
			router.Response(c, response.Unauthorised, nil)
			return
		}
		c.Set(reqctx.KeyChargeID, chargeID)

		charge, err := finder.FindCharge(c.Request.Context(), chargeID, correlationID)
		if err != nil {
			if errors.Is(err, connector.ErrChargeNotFound) {
				log.Warn().Err(err).Msg("Charge not found in connector")
				router.Response(c, response.NotFound, nil)
				return
			}
			log.Error().Err(err).Msg("Failed to retrieve charge")
			router.Response(c, response.SystemError, nil)
			return
		}

		c.Set(reqctx.KeyChargeData, charge)
		c.Next()
	}
}
