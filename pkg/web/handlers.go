package web

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/mail"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Sternrassler/pay-frontend/pkg/connector"
	"github.com/Sternrassler/pay-frontend/pkg/logging"
	"github.com/Sternrassler/pay-frontend/pkg/reqctx"
	"github.com/Sternrassler/pay-frontend/pkg/response"
)

var templateFuncs = template.FuncMap{
	"formatAmount": formatAmount,
}

// formatAmount renders an amount in pence as pounds.
func formatAmount(pence int64) string {
	sign := ""
	if pence < 0 {
		sign = "-"
		pence = -pence
	}
	return fmt.Sprintf("%s£%d.%02d", sign, pence/100, pence%100)
}

func chargePath(chargeID string) string {
	return "/card_details/" + url.PathEscape(chargeID)
}

func (s *Server) handleHealthcheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ping": gin.H{"healthy": true}})
}

// handleSecure exchanges a one-time token for access to its charge.
func (s *Server) handleSecure(c *gin.Context) {
	token := c.Param("chargeTokenId")
	ctx := c.Request.Context()
	correlationID := reqctx.CorrelationID(c)
	log := logging.FromContext(ctx, s.logger)

	charge, err := s.charges.FindChargeByToken(ctx, token, correlationID)
	if err != nil {
		if errors.Is(err, connector.ErrChargeNotFound) {
			log.Warn().Err(err).Msg("Unknown or used charge token")
			s.router.Response(c, response.Unauthorised, nil)
			return
		}
		log.Error().Err(err).Msg("Failed to retrieve charge by token")
		s.router.Response(c, response.SystemError, nil)
		return
	}

	if err := s.charges.DeleteToken(ctx, token, correlationID); err != nil {
		log.Error().Err(err).Str(logging.FieldChargeID, charge.ChargeID).Msg("Failed to delete charge token")
		s.router.Response(c, response.SystemError, nil)
		return
	}

	state := reqctx.Session(c)
	state.Add(charge.ChargeID)
	if err := s.sessions.Save(c.Writer, state); err != nil {
		log.Error().Err(err).Msg("Failed to save session")
		s.router.Response(c, response.SystemError, nil)
		return
	}

	c.Redirect(http.StatusSeeOther, chargePath(charge.ChargeID))
}

// handleChargeShow renders the payment page, moving a new charge into the
// card details state.
func (s *Server) handleChargeShow(c *gin.Context) {
	charge, _ := reqctx.Charge(c)
	ctx := c.Request.Context()
	log := logging.FromContext(ctx, s.logger).With().Str(logging.FieldChargeID, charge.ChargeID).Logger()

	switch charge.Status {
	case connector.StatusCreated:
		if err := s.charges.UpdateChargeStatus(ctx, charge.ChargeID, connector.StatusEnteringCardDetails, reqctx.CorrelationID(c)); err != nil {
			log.Error().Err(err).Msg("Failed to update charge status")
			s.router.Response(c, response.SystemError, nil)
			return
		}
		charge.Status = connector.StatusEnteringCardDetails
	case connector.StatusEnteringCardDetails:
	default:
		log.Warn().Str("status", charge.Status).Msg("Charge is not in a payable state")
		s.router.Response(c, response.SystemError, gin.H{"message": "This payment can no longer be continued."})
		return
	}

	c.HTML(http.StatusOK, "charge", s.chargeView(c, charge))
}

// handleEmail replaces the confirmation email for the charge.
func (s *Server) handleEmail(c *gin.Context) {
	charge, _ := reqctx.Charge(c)
	ctx := c.Request.Context()

	email := strings.TrimSpace(c.PostForm("email"))
	if _, err := mail.ParseAddress(email); err != nil {
		data := s.chargeView(c, charge)
		data["emailError"] = "Enter a valid email address"
		c.HTML(http.StatusBadRequest, "charge", data)
		return
	}

	if err := s.charges.PatchEmail(ctx, charge.ChargeID, email, reqctx.CorrelationID(c)); err != nil {
		log := logging.FromContext(ctx, s.logger)
		log.Error().Err(err).
			Str(logging.FieldChargeID, charge.ChargeID).
			Msg("Failed to update charge email")
		s.router.Response(c, response.SystemError, nil)
		return
	}

	c.Redirect(http.StatusSeeOther, chargePath(charge.ChargeID))
}

// handleCancel cancels the charge on the user's request.
func (s *Server) handleCancel(c *gin.Context) {
	charge, _ := reqctx.Charge(c)
	ctx := c.Request.Context()

	if err := s.charges.CancelCharge(ctx, charge.ChargeID, reqctx.CorrelationID(c)); err != nil {
		log := logging.FromContext(ctx, s.logger)
		log.Error().Err(err).
			Str(logging.FieldChargeID, charge.ChargeID).
			Msg("Failed to cancel charge")
		s.router.Response(c, response.SystemError, nil)
		return
	}

	s.router.Response(c, response.UserCancelled, gin.H{"returnUrl": charge.ReturnURL})
}

func (s *Server) chargeView(c *gin.Context, charge *connector.Charge) gin.H {
	data := reqctx.ViewData(c)
	data["charge"] = charge
	data["amount"] = formatAmount(charge.Amount)

	serviceName := ""
	if charge.GatewayAccount != nil {
		serviceName = charge.GatewayAccount.ServiceName
	}
	if svc, ok := reqctx.Service(c); ok {
		serviceName = svc.DisplayName(charge.Language)
		if svc.MerchantDetails != nil {
			data["merchant"] = svc.MerchantDetails
		}
	}
	data["serviceName"] = serviceName

	return data
}
