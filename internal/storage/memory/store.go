// Package memory provides an in-process store implementing the numbering
// and lifecycle persistence interfaces. It backs tests and demo serving;
// durable deployments use the postgres store.
package memory

import (
	"context"
	"sync"

	"github.com/rezonia/einvoice/internal/lifecycle"
	"github.com/rezonia/einvoice/internal/model"
	"github.com/rezonia/einvoice/internal/numbering"
)

// Store keeps profiles and invoices in memory. A single mutex serializes
// reservations, which is exactly the exclusive lock scope the counter
// invariant needs.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]*model.MerchantProfile
	invoices map[string]map[string]*model.Invoice
}

var _ lifecycle.Store = (*Store)(nil)

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		profiles: make(map[string]*model.MerchantProfile),
		invoices: make(map[string]map[string]*model.Invoice),
	}
}

// PutProfile installs or replaces a tenant's merchant profile
func (s *Store) PutProfile(p *model.MerchantProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.profiles[p.TenantID] = &cp
}

// Profile returns a copy of the tenant's profile
func (s *Store) Profile(ctx context.Context, tenantID string) (*model.MerchantProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[tenantID]
	if !ok {
		return nil, numbering.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

// stagedWriter collects invoice writes made inside a reservation so they
// commit together with the counter advance
type stagedWriter struct {
	pending []*model.Invoice
}

func (w *stagedWriter) CreateInvoice(ctx context.Context, inv *model.Invoice) error {
	w.pending = append(w.pending, cloneInvoice(inv))
	return nil
}

// Reserve runs fn with the next counter value while holding the store lock.
// The counter advances and staged invoices land only when fn succeeds.
func (s *Store) Reserve(ctx context.Context, tenantID string, fn func(p *model.MerchantProfile, next int64, w numbering.InvoiceWriter) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[tenantID]
	if !ok {
		return numbering.ErrProfileNotFound
	}

	next := p.LastIssuedNumber + 1
	snapshot := *p
	snapshot.LastIssuedNumber = next

	writer := &stagedWriter{}
	if err := fn(&snapshot, next, writer); err != nil {
		return err
	}

	p.LastIssuedNumber = next
	for _, inv := range writer.pending {
		tenant, ok := s.invoices[inv.TenantID]
		if !ok {
			tenant = make(map[string]*model.Invoice)
			s.invoices[inv.TenantID] = tenant
		}
		tenant[inv.ID] = inv
	}
	return nil
}

// Invoice returns a copy of one invoice
func (s *Store) Invoice(ctx context.Context, tenantID, invoiceID string) (*model.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[tenantID][invoiceID]
	if !ok {
		return nil, lifecycle.ErrInvoiceNotFound
	}
	return cloneInvoice(inv), nil
}

// UpdateInvoice replaces a stored invoice
func (s *Store) UpdateInvoice(ctx context.Context, inv *model.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invoices[inv.TenantID][inv.ID]; !ok {
		return lifecycle.ErrInvoiceNotFound
	}
	s.invoices[inv.TenantID][inv.ID] = cloneInvoice(inv)
	return nil
}

// Invoices returns copies of all invoices for a tenant
func (s *Store) Invoices(ctx context.Context, tenantID string) []*model.Invoice {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Invoice
	for _, inv := range s.invoices[tenantID] {
		out = append(out, cloneInvoice(inv))
	}
	return out
}

func cloneInvoice(inv *model.Invoice) *model.Invoice {
	cp := *inv
	cp.Lines = make([]model.InvoiceLine, len(inv.Lines))
	copy(cp.Lines, inv.Lines)
	cp.RawXML = append([]byte(nil), inv.RawXML...)
	cp.SignedXML = append([]byte(nil), inv.SignedXML...)
	return &cp
}
