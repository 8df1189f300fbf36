// Package numbering owns the per-tenant invoice number counter. Numbers are
// gapless, unique, and monotonic per tenant even under concurrent callers:
// the counter increment and the draft persisted by the caller commit in the
// same atomic step.
package numbering

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/rezonia/einvoice/internal/model"
)

// ErrWriteConflict is returned by stores that detect a concurrent write to
// the tenant counter; the authority retries the whole reservation.
var ErrWriteConflict = errors.New("numbering: concurrent counter write")

// ErrProfileNotFound is returned by stores when a tenant has no profile row
var ErrProfileNotFound = errors.New("numbering: profile not found")

// defaultMaxAttempts bounds the retry loop on store write conflicts
const defaultMaxAttempts = 5

// Reservation is an issued invoice number
type Reservation struct {
	Number     int64
	Serial     string
	FullNumber string
	Profile    *model.MerchantProfile
}

// InvoiceWriter persists invoices inside the reservation's atomic scope
type InvoiceWriter interface {
	CreateInvoice(ctx context.Context, inv *model.Invoice) error
}

// Store provides locked access to the tenant counter. Reserve runs fn with
// the tenant profile held exclusively and next = LastIssuedNumber+1; the
// counter advance and everything fn writes commit together, or not at all
// when fn returns an error. A conflicting concurrent writer surfaces as
// ErrWriteConflict.
type Store interface {
	Reserve(ctx context.Context, tenantID string, fn func(p *model.MerchantProfile, next int64, w InvoiceWriter) error) error
}

// Authority issues invoice numbers for tenants
type Authority struct {
	store       Store
	now         func() time.Time
	maxAttempts int
	log         zerolog.Logger
}

// Option configures an Authority
type Option func(*Authority)

// WithClock overrides the time source used for the year component
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		a.now = now
	}
}

// WithMaxAttempts overrides the bounded retry count on write conflicts
func WithMaxAttempts(n int) Option {
	return func(a *Authority) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithLogger attaches a logger
func WithLogger(log zerolog.Logger) Option {
	return func(a *Authority) {
		a.log = log
	}
}

// NewAuthority creates a numbering authority backed by the given store
func NewAuthority(store Store, opts ...Option) *Authority {
	a := &Authority{
		store:       store,
		now:         time.Now,
		maxAttempts: defaultMaxAttempts,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ReserveNextNumber reserves the tenant's next invoice number and invokes
// persist with it; whatever invoice persist returns is written through the
// store in the same atomic step that advances the counter. Store write
// conflicts retry the whole reservation up to the bounded attempt count.
func (a *Authority) ReserveNextNumber(ctx context.Context, tenantID string, persist func(ctx context.Context, r Reservation, w InvoiceWriter) error) (*Reservation, error) {
	var lastErr error

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		var res Reservation

		err := a.store.Reserve(ctx, tenantID, func(p *model.MerchantProfile, next int64, w InvoiceWriter) error {
			res = Reservation{
				Number:     next,
				Serial:     p.Serial,
				FullNumber: model.FormatFullNumber(p.Prefix, a.now().Year(), next, p.Serial),
				Profile:    p,
			}
			if persist == nil {
				return nil
			}
			return persist(ctx, res, w)
		})

		switch {
		case err == nil:
			a.log.Debug().
				Str("tenant", tenantID).
				Str("number", res.FullNumber).
				Int("attempt", attempt).
				Msg("invoice number reserved")
			return &res, nil
		case errors.Is(err, ErrProfileNotFound):
			return nil, model.NewConfigurationMissingError(tenantID)
		case errors.Is(err, ErrWriteConflict):
			lastErr = err
			a.log.Debug().
				Str("tenant", tenantID).
				Int("attempt", attempt).
				Msg("counter write conflict, retrying reservation")
			continue
		default:
			return nil, err
		}
	}

	return nil, model.NewNumberingContentionError(tenantID, a.maxAttempts, lastErr)
}
