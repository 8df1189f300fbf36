// Package lifecycle orchestrates the issuance pipeline: number reservation,
// document construction, signing, gateway transmission, and the invoice
// state machine. All persistence goes through the Store interface supplied
// by the host platform.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rezonia/einvoice/internal/builder"
	money "github.com/rezonia/einvoice/internal/decimal"
	"github.com/rezonia/einvoice/internal/gateway"
	"github.com/rezonia/einvoice/internal/model"
	"github.com/rezonia/einvoice/internal/numbering"
	"github.com/rezonia/einvoice/internal/signer"
)

// ErrInvoiceNotFound is returned by stores when an invoice does not exist
var ErrInvoiceNotFound = errors.New("lifecycle: invoice not found")

// Store is the persistence surface of the pipeline. Reserve (from
// numbering.Store) must run its callback in the same atomic scope that
// advances the tenant counter.
type Store interface {
	numbering.Store
	Profile(ctx context.Context, tenantID string) (*model.MerchantProfile, error)
	Invoice(ctx context.Context, tenantID, invoiceID string) (*model.Invoice, error)
	UpdateInvoice(ctx context.Context, inv *model.Invoice) error
}

// Draft is the order data the host platform submits for issuance
type Draft struct {
	Profile       model.DocumentProfile
	PaymentMethod model.PaymentMethod
	Buyer         model.Buyer
	Lines         []model.InvoiceLine
	Discount      decimal.Decimal
	Shipping      decimal.Decimal
	DueDate       *time.Time
	DeliveryDate  *time.Time
}

// Controller drives an invoice through its lifecycle
type Controller struct {
	store     Store
	authority *numbering.Authority
	protocol  gateway.Protocol
	log       zerolog.Logger
	now       func() time.Time
	newID     func() string
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger attaches a logger
func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// NewController creates a lifecycle controller
func NewController(store Store, authority *numbering.Authority, protocol gateway.Protocol, opts ...Option) *Controller {
	c := &Controller{
		store:     store,
		authority: authority,
		protocol:  protocol,
		log:       zerolog.Nop(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// validateDraft rejects drafts whose data could never form a legal invoice.
// Runs before any number is reserved so rejected drafts burn nothing.
func validateDraft(draft Draft) error {
	if !draft.Profile.Valid() {
		return model.NewValidationError(fmt.Sprintf("unknown document profile %q", draft.Profile))
	}
	if !draft.PaymentMethod.Valid() {
		return model.NewValidationError(fmt.Sprintf("unknown payment method %q", draft.PaymentMethod))
	}
	if len(draft.Lines) == 0 {
		return model.NewValidationError("draft has no lines")
	}
	for i, l := range draft.Lines {
		if !money.IsPositive(l.Quantity) {
			return model.NewValidationError(fmt.Sprintf("line %d: quantity must be positive", i+1))
		}
		if !money.IsNonNegative(l.UnitPrice) {
			return model.NewValidationError(fmt.Sprintf("line %d: unit price must not be negative", i+1))
		}
		if !money.IsNonNegative(l.TaxRate) {
			return model.NewValidationError(fmt.Sprintf("line %d: tax rate must not be negative", i+1))
		}
	}
	if !money.IsNonNegative(draft.Discount) {
		return model.NewValidationError("discount must not be negative")
	}
	if !money.IsNonNegative(draft.Shipping) {
		return model.NewValidationError("shipping must not be negative")
	}
	return nil
}

// CreateDraft reserves the tenant's next invoice number and persists the
// Draft invoice in the same atomic step. Incomplete buyer identity is
// flagged in the log but does not reject the draft.
func (c *Controller) CreateDraft(ctx context.Context, tenantID string, draft Draft) (*model.Invoice, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	var created *model.Invoice

	_, err := c.authority.ReserveNextNumber(ctx, tenantID,
		func(ctx context.Context, r numbering.Reservation, w numbering.InvoiceWriter) error {
			inv := &model.Invoice{
				ID:            c.newID(),
				TenantID:      tenantID,
				Number:        r.Number,
				Serial:        r.Serial,
				FullNumber:    r.FullNumber,
				IssueDate:     c.now(),
				DueDate:       draft.DueDate,
				DeliveryDate:  draft.DeliveryDate,
				Profile:       draft.Profile,
				Status:        model.StatusDraft,
				PaymentMethod: draft.PaymentMethod,
				Buyer:         draft.Buyer,
				CurrencyCode:  r.Profile.CurrencyCode,
				Discount:      draft.Discount,
				Shipping:      draft.Shipping,
				Lines:         draft.Lines,
			}
			inv.CalculateTotals()

			if !inv.Buyer.Identified() {
				c.log.Warn().
					Str("tenant", tenantID).
					Str("number", inv.FullNumber).
					Msg("draft created with incomplete buyer identity")
			}

			if err := w.CreateInvoice(ctx, inv); err != nil {
				return err
			}
			created = inv
			return nil
		})
	if err != nil {
		return nil, err
	}

	c.log.Info().
		Str("tenant", tenantID).
		Str("number", created.FullNumber).
		Msg("invoice draft created")
	return created, nil
}

// Send builds, signs, and transmits a Draft invoice. Numbering, signing, and
// configuration failures abort before any network call with no state change.
// An ambiguous transport failure leaves the invoice in Draft but flags it
// for a follow-up status check; the send is never silently retried.
func (c *Controller) Send(ctx context.Context, tenantID, invoiceID string) (*model.Invoice, error) {
	profile, err := c.profile(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	inv, err := c.store.Invoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}

	if inv.Status != model.StatusDraft {
		return nil, model.NewStateTransitionError(inv.ID, inv.Status, model.StatusSent)
	}

	if !inv.TotalsReconcile() {
		return nil, fmt.Errorf("invoice %s: totals do not reconcile with line amounts", inv.FullNumber)
	}

	doc := builder.Build(inv, profile)
	raw, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize document: %w", err)
	}

	signed, err := signer.Sign(doc, profile.CertContainer, profile.CertPassword)
	if err != nil {
		return nil, err
	}

	creds := gateway.Credentials{Alias: profile.GatewayAlias, Secret: profile.GatewaySecret}
	result, err := c.protocol.SendDocument(ctx, signed, creds, profile.TestMode)
	if err != nil {
		var transport *model.TransportFailureError
		if errors.As(err, &transport) && transport.Ambiguous {
			// The request may have reached the gateway; only a status
			// query can resolve whether the document was delivered. The
			// signed document is kept on record so the invoice stays
			// recoverable once delivery is confirmed.
			inv.StatusCheckRequired = true
			inv.RawXML = raw
			inv.SignedXML = signed
			if updateErr := c.store.UpdateInvoice(ctx, inv); updateErr != nil {
				c.log.Error().Err(updateErr).Str("invoice", inv.ID).Msg("failed to flag invoice for status check")
			}
		}
		return nil, err
	}

	now := c.now()
	inv.Status = model.StatusSent
	inv.RawXML = raw
	inv.SignedXML = signed
	inv.GatewayID = result.DocumentID
	inv.GatewayNumber = result.DocumentNumber
	inv.SentAt = &now
	inv.StatusCheckRequired = false

	if err := c.store.UpdateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	c.log.Info().
		Str("tenant", tenantID).
		Str("number", inv.FullNumber).
		Str("gateway_id", inv.GatewayID).
		Msg("invoice sent")
	return inv, nil
}

// RefreshStatus queries the gateway for the invoice's processing status.
// Terminal authority statuses transition Sent to Approved or Rejected;
// unrecognized statuses are stored verbatim and cause no transition.
// Invoices left ambiguous by a send timeout are also resolvable here.
func (c *Controller) RefreshStatus(ctx context.Context, tenantID, invoiceID string) (*model.Invoice, error) {
	profile, err := c.profile(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	inv, err := c.store.Invoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}

	refreshable := inv.Status == model.StatusSent ||
		(inv.Status == model.StatusDraft && inv.StatusCheckRequired)
	if !refreshable {
		return nil, model.NewStateTransitionError(inv.ID, inv.Status, model.StatusSent)
	}

	// After an ambiguous timeout no gateway id exists yet; the query falls
	// back to the document's own full number.
	ref := inv.GatewayID
	if ref == "" {
		ref = inv.FullNumber
	}

	creds := gateway.Credentials{Alias: profile.GatewayAlias, Secret: profile.GatewaySecret}
	status, err := c.protocol.GetStatus(ctx, ref, creds, profile.TestMode)
	if err != nil {
		return nil, err
	}

	// A recognized status proves the document reached the gateway.
	if inv.Status == model.StatusDraft && status.Status != model.GatewayStatusUnknown {
		now := c.now()
		inv.Status = model.StatusSent
		inv.SentAt = &now
		inv.StatusCheckRequired = false
	}

	inv.GatewayStatus = status.RawStatus
	inv.StatusMessage = status.Message

	switch status.Status {
	case model.GatewayStatusApproved:
		inv.Status = model.StatusApproved
		inv.ProcessedAt = processedAt(status, c.now)
	case model.GatewayStatusRejected:
		inv.Status = model.StatusRejected
		inv.ProcessedAt = processedAt(status, c.now)
	default:
		// pending or unrecognized: recorded verbatim, no transition
	}

	if err := c.store.UpdateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	c.log.Info().
		Str("tenant", tenantID).
		Str("number", inv.FullNumber).
		Str("gateway_status", status.RawStatus).
		Str("status", string(inv.Status)).
		Msg("invoice status refreshed")
	return inv, nil
}

// Cancel voids an invoice from any non-cancelled state, recording the
// reason. When withCounterDocument is set, a counter-document draft is
// issued through a fresh number reservation and cross-referenced with the
// cancelled invoice.
func (c *Controller) Cancel(ctx context.Context, tenantID, invoiceID, reason string, withCounterDocument bool) (*model.Invoice, error) {
	inv, err := c.store.Invoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}

	if inv.Status == model.StatusCancelled {
		return nil, model.NewStateTransitionError(inv.ID, inv.Status, model.StatusCancelled)
	}

	if withCounterDocument {
		lines := make([]model.InvoiceLine, len(inv.Lines))
		copy(lines, inv.Lines)

		_, err := c.authority.ReserveNextNumber(ctx, tenantID,
			func(ctx context.Context, r numbering.Reservation, w numbering.InvoiceWriter) error {
				counter := &model.Invoice{
					ID:              c.newID(),
					TenantID:        tenantID,
					Number:          r.Number,
					Serial:          r.Serial,
					FullNumber:      r.FullNumber,
					IssueDate:       c.now(),
					Profile:         inv.Profile,
					Status:          model.StatusDraft,
					PaymentMethod:   inv.PaymentMethod,
					Buyer:           inv.Buyer,
					CurrencyCode:    inv.CurrencyCode,
					Lines:           lines,
					CancelRefNumber: inv.FullNumber,
				}
				counter.CalculateTotals()
				if err := w.CreateInvoice(ctx, counter); err != nil {
					return err
				}
				inv.CancelRefNumber = counter.FullNumber
				return nil
			})
		if err != nil {
			return nil, err
		}
	}

	now := c.now()
	inv.Status = model.StatusCancelled
	inv.CancelledAt = &now
	inv.CancelReason = reason

	if err := c.store.UpdateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	c.log.Info().
		Str("tenant", tenantID).
		Str("number", inv.FullNumber).
		Str("reason", reason).
		Msg("invoice cancelled")
	return inv, nil
}

// Invoice returns one invoice
func (c *Controller) Invoice(ctx context.Context, tenantID, invoiceID string) (*model.Invoice, error) {
	return c.store.Invoice(ctx, tenantID, invoiceID)
}

// Inbox lists the merchant's received gateway documents
func (c *Controller) Inbox(ctx context.Context, tenantID string) ([]gateway.InboxDocument, error) {
	profile, err := c.profile(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	creds := gateway.Credentials{Alias: profile.GatewayAlias, Secret: profile.GatewaySecret}
	return c.protocol.ListInboxDocuments(ctx, creds, profile.TestMode)
}

func (c *Controller) profile(ctx context.Context, tenantID string) (*model.MerchantProfile, error) {
	profile, err := c.store.Profile(ctx, tenantID)
	if err != nil {
		if errors.Is(err, numbering.ErrProfileNotFound) {
			return nil, model.NewConfigurationMissingError(tenantID)
		}
		return nil, err
	}
	return profile, nil
}

func processedAt(status *gateway.StatusResult, now func() time.Time) *time.Time {
	if status.ProcessedAt != nil {
		return status.ProcessedAt
	}
	t := now()
	return &t
}
