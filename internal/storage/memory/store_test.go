package memory_test

import (
	"context"
	"testing"

	dec "github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/einvoice/internal/lifecycle"
	"github.com/rezonia/einvoice/internal/model"
	"github.com/rezonia/einvoice/internal/numbering"
	"github.com/rezonia/einvoice/internal/storage/memory"
)

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	store.PutProfile(&model.MerchantProfile{
		TenantID:         "acme",
		Prefix:           "FT",
		Serial:           "A",
		LastIssuedNumber: 7,
	})
	return store
}

func TestProfileRoundTrip(t *testing.T) {
	store := newStore(t)

	p, err := store.Profile(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "FT", p.Prefix)
	assert.Equal(t, int64(7), p.LastIssuedNumber)

	// Returned profiles are copies, mutating them does not leak back
	p.Prefix = "XX"
	again, err := store.Profile(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "FT", again.Prefix)
}

func TestProfileUnknownTenant(t *testing.T) {
	store := memory.NewStore()
	_, err := store.Profile(context.Background(), "nobody")
	assert.ErrorIs(t, err, numbering.ErrProfileNotFound)
}

func TestReserveCommitsCounterAndInvoiceTogether(t *testing.T) {
	store := newStore(t)

	err := store.Reserve(context.Background(), "acme",
		func(p *model.MerchantProfile, next int64, w numbering.InvoiceWriter) error {
			assert.Equal(t, int64(8), next)
			assert.Equal(t, int64(8), p.LastIssuedNumber)
			return w.CreateInvoice(context.Background(), &model.Invoice{
				ID:       "inv-1",
				TenantID: "acme",
				Number:   next,
				Status:   model.StatusDraft,
			})
		})
	require.NoError(t, err)

	p, err := store.Profile(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(8), p.LastIssuedNumber)

	inv, err := store.Invoice(context.Background(), "acme", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(8), inv.Number)
}

// A failing callback must leave no trace: neither the counter advance nor
// any staged invoice survives.
func TestReserveRollsBackOnError(t *testing.T) {
	store := newStore(t)

	err := store.Reserve(context.Background(), "acme",
		func(p *model.MerchantProfile, next int64, w numbering.InvoiceWriter) error {
			require.NoError(t, w.CreateInvoice(context.Background(), &model.Invoice{
				ID:       "inv-ghost",
				TenantID: "acme",
			}))
			return assert.AnError
		})
	require.ErrorIs(t, err, assert.AnError)

	p, err := store.Profile(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.LastIssuedNumber)

	_, err = store.Invoice(context.Background(), "acme", "inv-ghost")
	assert.ErrorIs(t, err, lifecycle.ErrInvoiceNotFound)
}

func TestReserveUnknownTenant(t *testing.T) {
	store := memory.NewStore()
	err := store.Reserve(context.Background(), "nobody",
		func(p *model.MerchantProfile, next int64, w numbering.InvoiceWriter) error {
			t.Fatal("callback must not run for unknown tenants")
			return nil
		})
	assert.ErrorIs(t, err, numbering.ErrProfileNotFound)
}

func TestUpdateInvoice(t *testing.T) {
	store := newStore(t)

	err := store.Reserve(context.Background(), "acme",
		func(p *model.MerchantProfile, next int64, w numbering.InvoiceWriter) error {
			return w.CreateInvoice(context.Background(), &model.Invoice{
				ID:       "inv-1",
				TenantID: "acme",
				Status:   model.StatusDraft,
			})
		})
	require.NoError(t, err)

	inv, err := store.Invoice(context.Background(), "acme", "inv-1")
	require.NoError(t, err)

	inv.Status = model.StatusSent
	inv.SignedXML = []byte("<signed/>")
	require.NoError(t, store.UpdateInvoice(context.Background(), inv))

	stored, err := store.Invoice(context.Background(), "acme", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, stored.Status)
	assert.Equal(t, []byte("<signed/>"), stored.SignedXML)
}

func TestUpdateInvoiceUnknown(t *testing.T) {
	store := newStore(t)
	err := store.UpdateInvoice(context.Background(), &model.Invoice{ID: "ghost", TenantID: "acme"})
	assert.ErrorIs(t, err, lifecycle.ErrInvoiceNotFound)
}

// Stored invoices are isolated from later mutations of the caller's copy.
func TestInvoiceReturnsDeepCopy(t *testing.T) {
	store := newStore(t)

	err := store.Reserve(context.Background(), "acme",
		func(p *model.MerchantProfile, next int64, w numbering.InvoiceWriter) error {
			return w.CreateInvoice(context.Background(), &model.Invoice{
				ID:       "inv-1",
				TenantID: "acme",
				Lines: []model.InvoiceLine{
					{Description: "Widget", Quantity: dec.NewFromInt(1)},
				},
			})
		})
	require.NoError(t, err)

	inv, err := store.Invoice(context.Background(), "acme", "inv-1")
	require.NoError(t, err)
	inv.Lines[0].Description = "mutated"

	again, err := store.Invoice(context.Background(), "acme", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "Widget", again.Lines[0].Description)
}
