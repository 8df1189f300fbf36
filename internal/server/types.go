package server

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rezonia/einvoice/internal/model"
)

// CreateDraftRequest is the order data submitted for issuance
type CreateDraftRequest struct {
	Profile       string             `json:"profile" binding:"required"`
	PaymentMethod string             `json:"payment_method" binding:"required"`
	Buyer         model.Buyer        `json:"buyer" binding:"required"`
	Lines         []DraftLineRequest `json:"lines" binding:"required,min=1"`
	Discount      decimal.Decimal    `json:"discount"`
	Shipping      decimal.Decimal    `json:"shipping"`
	DueDate       *time.Time         `json:"due_date,omitempty"`
	DeliveryDate  *time.Time         `json:"delivery_date,omitempty"`
}

// DraftLineRequest is one line item in a draft request
type DraftLineRequest struct {
	Code        string          `json:"code,omitempty"`
	Description string          `json:"description" binding:"required"`
	Unit        string          `json:"unit" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice   decimal.Decimal `json:"unit_price" binding:"required"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
}

// CancelRequest carries a cancellation
type CancelRequest struct {
	Reason          string `json:"reason" binding:"required"`
	CounterDocument bool   `json:"counter_document"`
}

// ErrorResponse is the uniform error body
type ErrorResponse struct {
	Error string `json:"error"`
}
