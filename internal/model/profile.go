package model

// Address is a postal address for the merchant's legal identity
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
}

// MerchantProfile holds a tenant's invoicing settings: legal identity,
// numbering configuration, signing material, and gateway credentials.
// LastIssuedNumber only ever increases and is advanced in the same atomic
// step that reserves a number for a new invoice.
type MerchantProfile struct {
	TenantID string `json:"tenant_id"`

	// Legal identity
	TaxID      string  `json:"tax_id"`
	NationalID string  `json:"national_id,omitempty"`
	TradeName  string  `json:"trade_name"`
	Address    Address `json:"address"`
	TaxOffice  string  `json:"tax_office,omitempty"`
	Email      string  `json:"email,omitempty"`
	Phone      string  `json:"phone,omitempty"`

	// Numbering
	Prefix           string `json:"prefix"`
	Serial           string `json:"serial"`
	StartNumber      int64  `json:"start_number"`
	LastIssuedNumber int64  `json:"last_issued_number"`

	// Signing material: password-protected PKCS#12 container,
	// decrypted only transiently inside the signing module
	CertContainer []byte `json:"-"`
	CertPassword  string `json:"-"`

	// Gateway credentials
	GatewayAlias  string `json:"gateway_alias"`
	GatewaySecret string `json:"-"`
	TestMode      bool   `json:"test_mode"`

	CurrencyCode string `json:"currency_code"`
}
