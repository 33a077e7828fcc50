package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pay-frontend/pkg/adminusers"
	"github.com/Sternrassler/pay-frontend/pkg/cache"
	"github.com/Sternrassler/pay-frontend/pkg/logging"
	"github.com/Sternrassler/pay-frontend/pkg/reqctx"
	"github.com/Sternrassler/pay-frontend/pkg/response"
)

// ServiceFinder looks up the service that owns a gateway account.
type ServiceFinder interface {
	FindServiceBy(ctx context.Context, params adminusers.FindServiceParams) (*adminusers.Service, error)
}

// ServiceMetadata attaches the service owning the charge's gateway account
// to the request under reqctx.KeyService.
//
// Requests carrying neither a charge id nor charge data are answered with
// response.Unauthorised. A charge without a gateway account is passed
// through without a lookup. Lookups go through store first; on a miss the
// service is fetched with finder and stored for the cache TTL. A failed
// fetch is logged and the request continues without service metadata.
func ServiceMetadata(finder ServiceFinder, store cache.Cache[adminusers.Service], router response.Router, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		chargeID := reqctx.ChargeID(c)
		charge, hasCharge := reqctx.Charge(c)

		if chargeID == "" && !hasCharge {
			router.Response(c, response.Unauthorised, nil)
			return
		}
		if chargeID == "" {
			chargeID = charge.ChargeID
		}

		correlationID := reqctx.CorrelationID(c)
		log := logger.With().
			Str(logging.FieldCorrelationID, correlationID).
			Str(logging.FieldChargeID, chargeID).
			Logger()

		if !hasCharge {
			log.Warn().Msg("No charge data on request, continuing without service metadata")
			c.Next()
			return
		}

		accountID := charge.GatewayAccountID()
		if accountID == 0 {
			log.Warn().Msg("Charge has no gateway account, continuing without service metadata")
			c.Next()
			return
		}
		log = log.With().Int64(logging.FieldAccountID, accountID).Logger()

		ctx := c.Request.Context()
		key := cache.ServiceKey(accountID)

		svc, err := store.Get(ctx, key)
		if err == nil {
			c.Set(reqctx.KeyService, &svc)
			c.Next()
			return
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn().Err(err).Msg("Service cache lookup failed")
		}

		fetched, err := finder.FindServiceBy(ctx, adminusers.FindServiceParams{
			GatewayAccountID: accountID,
			CorrelationID:    correlationID,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to retrieve service information")
			c.Next()
			return
		}

		if err := store.Set(ctx, key, *fetched); err != nil {
			log.Warn().Err(err).Msg("Failed to cache service information")
		}

		c.Set(reqctx.KeyService, fetched)
		c.Next()
	}
}
