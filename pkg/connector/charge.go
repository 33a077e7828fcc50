package connector

// Charge statuses used by the frontend.
const (
	StatusCreated             = "CREATED"
	StatusEnteringCardDetails = "ENTERING CARD DETAILS"
	StatusUserCancelled       = "USER CANCELLED"
)

// GatewayAccount is the payment account a charge belongs to.
type GatewayAccount struct {
	GatewayAccountID int64  `json:"gateway_account_id"`
	ServiceName      string `json:"service_name,omitempty"`
	Type             string `json:"type,omitempty"`
	AnalyticsID      string `json:"analytics_id,omitempty"`
}

// Charge is a payment as seen by the frontend.
type Charge struct {
	ChargeID       string          `json:"charge_id"`
	Amount         int64           `json:"amount"`
	Description    string          `json:"description"`
	Reference      string          `json:"reference"`
	Status         string          `json:"status"`
	ReturnURL      string          `json:"return_url"`
	Language       string          `json:"language,omitempty"`
	Email          string          `json:"email,omitempty"`
	GatewayAccount *GatewayAccount `json:"gateway_account,omitempty"`
}

// GatewayAccountID returns the owning account id, or 0 when unknown.
func (c Charge) GatewayAccountID() int64 {
	if c.GatewayAccount == nil {
		return 0
	}
	return c.GatewayAccount.GatewayAccountID
}
