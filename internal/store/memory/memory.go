// Package memory implements the persistence contracts with in-process
// concurrency safety. It backs dev mode and handler tests.
package memory

import (
	"context"
	"sync"
	"time"

	"ezduka.app/internal/billing"
	"ezduka.app/internal/idempotency"
	"ezduka.app/internal/ids"
	"ezduka.app/internal/purchase"
	"ezduka.app/internal/session"
	"ezduka.app/internal/tenant"
)

// Store holds everything behind one mutex. Map copies go out, never
// internal pointers.
type Store struct {
	mu        sync.RWMutex
	tenants   map[string]*tenant.Tenant
	orders    map[string]*purchase.PurchaseOrder
	stock     map[string]map[string]int64 // tenantID -> itemID -> qty
	payments  map[string]*billing.Payment
	invoices  map[string]*billing.Invoice
	idem      map[string]idempotency.Record // tenant|scope|key
	retention time.Duration
	now       func() time.Time
}

// New creates an empty store with the given idempotency retention.
func New(retention time.Duration) *Store {
	if retention <= 0 {
		retention = idempotency.Retention
	}
	return &Store{
		tenants:   make(map[string]*tenant.Tenant),
		orders:    make(map[string]*purchase.PurchaseOrder),
		stock:     make(map[string]map[string]int64),
		payments:  make(map[string]*billing.Payment),
		invoices:  make(map[string]*billing.Invoice),
		idem:      make(map[string]idempotency.Record),
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// --- tenant.Store ---

func (s *Store) CreateTenant(ctx context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = ids.New()
	}
	now := s.now()
	t.CreatedAt = now
	t.UpdatedAt = now
	cp := *t
	s.tenants[t.ID] = &cp
	return nil
}

func (s *Store) FindTenant(ctx context.Context, id string) (tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	return *t, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tenant.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, *t)
	}
	return out, nil
}

func (s *Store) UpdateTenantStatus(ctx context.Context, id string, status session.TenantStatus) (tenant.Tenant, error) {
	if !tenant.ValidTransition(status) {
		return tenant.Tenant{}, tenant.ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = s.now()
	return *t, nil
}

// --- purchase.Store ---

func (s *Store) CreatePurchaseOrder(ctx context.Context, po *purchase.PurchaseOrder) error {
	if len(po.Lines) == 0 {
		return purchase.ErrNoLines
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if po.ID == "" {
		po.ID = ids.New()
	}
	po.Status = purchase.StatusOrdered
	po.PaidAmount = 0
	po.PaidAt = nil
	po.CreatedAt = s.now()
	cp := *po
	cp.Lines = append([]purchase.Line(nil), po.Lines...)
	s.orders[po.ID] = &cp
	return nil
}

func (s *Store) FindPurchaseOrder(ctx context.Context, tenantID, id string) (purchase.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	po, ok := s.orders[id]
	if !ok || po.TenantID != tenantID {
		return purchase.PurchaseOrder{}, purchase.ErrNotFound
	}
	return copyOrder(po), nil
}

// MarkPurchaseOrderPaid applies the reconciliation outcome under the lock.
// Stock increments happen only on the transition that stamps PaidAt, so a
// replayed settle never double-counts.
func (s *Store) MarkPurchaseOrderPaid(ctx context.Context, tenantID, id string, amount *int64, at time.Time) (purchase.PurchaseOrder, error) {
	if amount != nil && *amount < 0 {
		return purchase.PurchaseOrder{}, purchase.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	po, ok := s.orders[id]
	if !ok || po.TenantID != tenantID {
		return purchase.PurchaseOrder{}, purchase.ErrNotFound
	}

	out := purchase.Reconcile(po.PaidAmount, po.Total, amount)
	po.PaidAmount = out.NewPaid
	po.Status = out.Status
	if out.StampPaidAt {
		stamp := at.UTC()
		po.PaidAt = &stamp
		byItem := s.stock[tenantID]
		if byItem == nil {
			byItem = make(map[string]int64)
			s.stock[tenantID] = byItem
		}
		for _, line := range po.Lines {
			byItem[line.ItemID] += line.Quantity
		}
	}
	return copyOrder(po), nil
}

func (s *Store) StockLevel(ctx context.Context, tenantID, itemID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stock[tenantID][itemID], nil
}

// --- billing.Store ---

func (s *Store) CreatePayment(ctx context.Context, p *billing.Payment) error {
	if p.Amount <= 0 {
		return billing.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = ids.New()
	}
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

func (s *Store) FindPayment(ctx context.Context, tenantID, id string) (billing.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok || p.TenantID != tenantID {
		return billing.Payment{}, billing.ErrNotFound
	}
	return *p, nil
}

func (s *Store) ConfirmPayment(ctx context.Context, tenantID, id string, at time.Time) (billing.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok || p.TenantID != tenantID {
		return billing.Payment{}, billing.ErrNotFound
	}
	if p.Status != billing.PaymentConfirmed {
		p.Status = billing.PaymentConfirmed
		stamp := at.UTC()
		p.ConfirmedAt = &stamp
	}
	return *p, nil
}

func (s *Store) CreateInvoice(ctx context.Context, inv *billing.Invoice) error {
	if inv.Total <= 0 {
		return billing.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv.ID == "" {
		inv.ID = ids.New()
	}
	if inv.Status == "" {
		inv.Status = billing.InvoiceUnpaid
	}
	inv.CreatedAt = s.now()
	cp := *inv
	s.invoices[inv.ID] = &cp
	return nil
}

func (s *Store) FindInvoice(ctx context.Context, tenantID, id string) (billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return billing.Invoice{}, billing.ErrNotFound
	}
	return *inv, nil
}

func (s *Store) MarkInvoicePaid(ctx context.Context, tenantID, invoiceID string, p *billing.Payment) error {
	if p.Amount <= 0 {
		return billing.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[invoiceID]
	if !ok || inv.TenantID != tenantID {
		return billing.ErrNotFound
	}
	inv.Status = billing.InvoicePaid
	if p.ID == "" {
		p.ID = ids.New()
	}
	p.InvoiceID = invoiceID
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

// --- idempotency.Store ---

func idemKey(tenantID, scope, key string) string {
	return tenantID + "|" + scope + "|" + key
}

func (s *Store) Lookup(ctx context.Context, tenantID, scope, key string) (idempotency.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := idemKey(tenantID, scope, key)
	rec, ok := s.idem[k]
	if !ok {
		return idempotency.Record{}, false, nil
	}
	if s.now().Sub(rec.CreatedAt) > s.retention {
		delete(s.idem, k)
		return idempotency.Record{}, false, nil
	}
	return rec, true, nil
}

func (s *Store) Insert(ctx context.Context, rec idempotency.Record) (idempotency.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := idemKey(rec.TenantID, rec.Scope, rec.Key)
	if existing, ok := s.idem[k]; ok && s.now().Sub(existing.CreatedAt) <= s.retention {
		return existing, false, nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.idem[k] = rec
	return rec, true, nil
}

// Sweep drops expired idempotency records. The server runs it periodically.
func (s *Store) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.retention)
	for k, rec := range s.idem {
		if rec.CreatedAt.Before(cutoff) {
			delete(s.idem, k)
		}
	}
}

func copyOrder(po *purchase.PurchaseOrder) purchase.PurchaseOrder {
	out := *po
	out.Lines = append([]purchase.Line(nil), po.Lines...)
	if po.PaidAt != nil {
		stamp := *po.PaidAt
		out.PaidAt = &stamp
	}
	return out
}
