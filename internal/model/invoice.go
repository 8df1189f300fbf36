package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	money "github.com/rezonia/einvoice/internal/decimal"
)

// DocumentProfile is the invoice sub-type controlling required fields
// and the authority's processing path
type DocumentProfile string

const (
	ProfileCommercial DocumentProfile = "COMMERCIAL"
	ProfileSimplified DocumentProfile = "SIMPLIFIED"
	ProfileBasic      DocumentProfile = "BASIC"
)

// Valid reports whether p is a known document profile
func (p DocumentProfile) Valid() bool {
	switch p {
	case ProfileCommercial, ProfileSimplified, ProfileBasic:
		return true
	}
	return false
}

// PaymentMethod identifies how the buyer pays
type PaymentMethod string

const (
	PaymentCard           PaymentMethod = "card"
	PaymentTransfer       PaymentMethod = "transfer"
	PaymentCashOnDelivery PaymentMethod = "cod"
)

// paymentMeansCodes is the fixed authority code table for payment methods
var paymentMeansCodes = map[PaymentMethod]string{
	PaymentCard:           "10",
	PaymentTransfer:       "20",
	PaymentCashOnDelivery: "30",
}

// Valid reports whether m is in the authority code table. Unknown methods
// are rejected at draft creation, before any number is reserved.
func (m PaymentMethod) Valid() bool {
	_, ok := paymentMeansCodes[m]
	return ok
}

// MeansCode returns the authority payment-means code for the method.
// Unknown methods map to the transfer code.
func (m PaymentMethod) MeansCode() string {
	if c, ok := paymentMeansCodes[m]; ok {
		return c
	}
	return paymentMeansCodes[PaymentTransfer]
}

// Buyer identifies the invoice recipient
type Buyer struct {
	TaxID      string `json:"tax_id,omitempty"`
	NationalID string `json:"national_id,omitempty"`
	Name       string `json:"name"`
	Address    string `json:"address"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// Identified reports whether the buyer carries a usable identity field
func (b Buyer) Identified() bool {
	return b.TaxID != "" || b.NationalID != ""
}

// Invoice is one issued electronic invoice document
type Invoice struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`

	// Numbering: (tenant, number, serial) is unique
	Number     int64  `json:"number"`
	Serial     string `json:"serial"`
	FullNumber string `json:"full_number"`

	IssueDate    time.Time  `json:"issue_date"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	DeliveryDate *time.Time `json:"delivery_date,omitempty"`

	Profile       DocumentProfile `json:"profile"`
	Status        Status          `json:"status"`
	PaymentMethod PaymentMethod   `json:"payment_method"`

	Buyer Buyer `json:"buyer"`

	CurrencyCode string          `json:"currency_code"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	TaxTotal     decimal.Decimal `json:"tax_total"`
	Discount     decimal.Decimal `json:"discount"`
	Shipping     decimal.Decimal `json:"shipping"`
	GrandTotal   decimal.Decimal `json:"grand_total"`

	Lines []InvoiceLine `json:"lines"`

	// Set by the issuance pipeline only
	RawXML    []byte `json:"-"`
	SignedXML []byte `json:"-"`

	GatewayID     string     `json:"gateway_id,omitempty"`
	GatewayNumber string     `json:"gateway_number,omitempty"`
	GatewayStatus string     `json:"gateway_status,omitempty"` // verbatim authority text
	StatusMessage string     `json:"status_message,omitempty"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`

	// Set when a send attempt ended ambiguously (local timeout after the
	// request may have reached the gateway); resolved by a status query.
	StatusCheckRequired bool `json:"status_check_required,omitempty"`

	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
	CancelRefNumber string     `json:"cancel_ref_number,omitempty"`
}

// InvoiceLine is one taxed item on an invoice
type InvoiceLine struct {
	Position    int             `json:"position"` // 1-based, gapless, document order
	Code        string          `json:"code,omitempty"`
	Description string          `json:"description"`
	Unit        string          `json:"unit"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"` // percent

	// Calculated
	Subtotal  decimal.Decimal `json:"subtotal"`   // quantity * unit price
	TaxAmount decimal.Decimal `json:"tax_amount"` // subtotal * rate%
	Total     decimal.Decimal `json:"total"`      // subtotal + tax
}

// Calculate computes the line's derived amounts at 2 decimal places
func (l *InvoiceLine) Calculate() {
	l.Subtotal = money.Mul(l.Quantity, l.UnitPrice)
	l.TaxAmount = money.Tax(l.Subtotal, l.TaxRate)
	l.Total = l.Subtotal.Add(l.TaxAmount)
}

// CalculateTotals recomputes every line and the invoice totals.
// GrandTotal = subtotal - discount + tax + shipping.
func (inv *Invoice) CalculateTotals() {
	subtotals := make([]decimal.Decimal, len(inv.Lines))
	taxes := make([]decimal.Decimal, len(inv.Lines))

	for i := range inv.Lines {
		inv.Lines[i].Position = i + 1
		inv.Lines[i].Calculate()
		subtotals[i] = inv.Lines[i].Subtotal
		taxes[i] = inv.Lines[i].TaxAmount
	}

	inv.Subtotal = money.Sum(subtotals)
	inv.TaxTotal = money.Sum(taxes)
	inv.GrandTotal = inv.Subtotal.Sub(inv.Discount).Add(inv.TaxTotal).Add(inv.Shipping).Round(2)
}

// TaxGroup aggregates lines sharing a tax rate
type TaxGroup struct {
	Rate          decimal.Decimal
	TaxableAmount decimal.Decimal
	TaxAmount     decimal.Decimal
}

// TaxBreakdown aggregates line tax amounts per distinct rate,
// ordered by first appearance across the lines
func (inv *Invoice) TaxBreakdown() []TaxGroup {
	index := make(map[string]int)
	var groups []TaxGroup

	for _, l := range inv.Lines {
		key := l.TaxRate.String()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, TaxGroup{Rate: l.TaxRate, TaxableAmount: decimal.Zero, TaxAmount: decimal.Zero})
		}
		groups[i].TaxableAmount = groups[i].TaxableAmount.Add(l.Subtotal)
		groups[i].TaxAmount = groups[i].TaxAmount.Add(l.TaxAmount)
	}

	return groups
}

// TotalsReconcile reports whether the stored totals match the line math
// within a 0.01 tolerance
func (inv *Invoice) TotalsReconcile() bool {
	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, l := range inv.Lines {
		subtotal = subtotal.Add(l.Subtotal)
		tax = tax.Add(l.TaxAmount)
	}
	payable := subtotal.Sub(inv.Discount).Add(tax).Add(inv.Shipping)

	return money.EqualWithinCent(inv.Subtotal, subtotal) &&
		money.EqualWithinCent(inv.TaxTotal, tax) &&
		money.EqualWithinCent(inv.GrandTotal, payable)
}

// FormatFullNumber renders the human-readable invoice number:
// prefix + year + zero-padded sequence + serial, e.g. FT20240001A
func FormatFullNumber(prefix string, year int, number int64, serial string) string {
	return fmt.Sprintf("%s%d%04d%s", prefix, year, number, serial)
}
