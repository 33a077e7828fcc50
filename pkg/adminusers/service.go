package adminusers

// MerchantDetails identify the organisation behind a service.
type MerchantDetails struct {
	Name            string `json:"name"`
	AddressLine1    string `json:"address_line1,omitempty"`
	AddressLine2    string `json:"address_line2,omitempty"`
	AddressCity     string `json:"address_city,omitempty"`
	AddressPostcode string `json:"address_postcode,omitempty"`
	AddressCountry  string `json:"address_country,omitempty"`
	Email           string `json:"email,omitempty"`
	TelephoneNumber string `json:"telephone_number,omitempty"`
	URL             string `json:"url,omitempty"`
}

// Service is the service metadata owned by the admin users service.
type Service struct {
	ExternalID                                  string            `json:"external_id"`
	Name                                        string            `json:"name"`
	ServiceName                                 map[string]string `json:"service_name,omitempty"`
	GatewayAccountIDs                           []string          `json:"gateway_account_ids,omitempty"`
	MerchantDetails                             *MerchantDetails  `json:"merchant_details,omitempty"`
	RedirectToServiceImmediatelyOnTerminalState bool              `json:"redirect_to_service_immediately_on_terminal_state"`
	CollectBillingAddress                       bool              `json:"collect_billing_address"`
	CurrentGoLiveStage                          string            `json:"current_go_live_stage,omitempty"`
	DefaultBillingAddressCountry                string            `json:"default_billing_address_country,omitempty"`
}

// DisplayName returns the service name in lang, falling back to English
// and then to Name.
func (s Service) DisplayName(lang string) string {
	if name := s.ServiceName[lang]; name != "" {
		return name
	}
	if name := s.ServiceName["en"]; name != "" {
		return name
	}
	return s.Name
}

// IsLive reports whether the service has completed go-live.
func (s Service) IsLive() bool {
	return s.CurrentGoLiveStage == "LIVE"
}
