package memory

import (
	"context"
	"testing"
	"time"

	"ezduka.app/internal/billing"
	"ezduka.app/internal/idempotency"
	"ezduka.app/internal/purchase"
	"ezduka.app/internal/session"
	"ezduka.app/internal/tenant"
)

func newOrder(t *testing.T, s *Store, tenantID string, total int64) purchase.PurchaseOrder {
	t.Helper()
	po := purchase.PurchaseOrder{
		TenantID:     tenantID,
		SupplierName: "Acme Wholesale",
		Total:        total,
		Lines: []purchase.Line{
			{ItemID: "item-1", ItemName: "Flour 2kg", Quantity: 10, UnitCost: total / 10},
		},
	}
	if err := s.CreatePurchaseOrder(context.Background(), &po); err != nil {
		t.Fatalf("CreatePurchaseOrder failed: %v", err)
	}
	return po
}

func TestTenantLifecycle(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	tn := tenant.Tenant{Name: "Mama Njeri Shop", Status: session.StatusPending}
	if err := s.CreateTenant(ctx, &tn); err != nil {
		t.Fatalf("CreateTenant failed: %v", err)
	}
	if tn.ID == "" {
		t.Fatal("expected generated tenant id")
	}

	got, err := s.FindTenant(ctx, tn.ID)
	if err != nil {
		t.Fatalf("FindTenant failed: %v", err)
	}
	if got.Status != session.StatusPending {
		t.Fatalf("unexpected status: %s", got.Status)
	}

	updated, err := s.UpdateTenantStatus(ctx, tn.ID, session.StatusActive)
	if err != nil {
		t.Fatalf("UpdateTenantStatus failed: %v", err)
	}
	if updated.Status != session.StatusActive {
		t.Fatalf("unexpected status after update: %s", updated.Status)
	}

	if _, err := s.UpdateTenantStatus(ctx, tn.ID, session.StatusUnknown); err != tenant.ErrInvalidStatus {
		t.Fatalf("expected ErrInvalidStatus for UNKNOWN, got %v", err)
	}
	if _, err := s.UpdateTenantStatus(ctx, "missing", session.StatusActive); err != tenant.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkPurchaseOrderPaidPartialThenSettled(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	po := newOrder(t, s, "t-1", 1000)

	amt := int64(400)
	got, err := s.MarkPurchaseOrderPaid(ctx, "t-1", po.ID, &amt, time.Now())
	if err != nil {
		t.Fatalf("MarkPurchaseOrderPaid failed: %v", err)
	}
	if got.PaidAmount != 400 || got.Status != purchase.StatusPartial || got.PaidAt != nil {
		t.Fatalf("unexpected after partial: %+v", got)
	}

	amt = 600
	got, err = s.MarkPurchaseOrderPaid(ctx, "t-1", po.ID, &amt, time.Now())
	if err != nil {
		t.Fatalf("MarkPurchaseOrderPaid failed: %v", err)
	}
	if got.PaidAmount != 1000 || got.Status != purchase.StatusReceived || got.PaidAt == nil {
		t.Fatalf("unexpected after settle: %+v", got)
	}

	qty, err := s.StockLevel(ctx, "t-1", "item-1")
	if err != nil {
		t.Fatalf("StockLevel failed: %v", err)
	}
	if qty != 10 {
		t.Fatalf("expected stock 10, got %d", qty)
	}
}

func TestStockIncrementsOnlyOnce(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	po := newOrder(t, s, "t-1", 1000)

	first := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	amt := int64(1000)
	got, err := s.MarkPurchaseOrderPaid(ctx, "t-1", po.ID, &amt, first)
	if err != nil {
		t.Fatalf("MarkPurchaseOrderPaid failed: %v", err)
	}
	if got.PaidAt == nil || !got.PaidAt.Equal(first) {
		t.Fatalf("expected paid_at %v, got %v", first, got.PaidAt)
	}

	// Replayed settle: amount clamps, stamp and stock untouched.
	amt = 50
	got, err = s.MarkPurchaseOrderPaid(ctx, "t-1", po.ID, &amt, first.Add(time.Hour))
	if err != nil {
		t.Fatalf("MarkPurchaseOrderPaid failed: %v", err)
	}
	if got.PaidAmount != 1000 {
		t.Fatalf("paid amount exceeded total: %d", got.PaidAmount)
	}
	if got.PaidAt == nil || !got.PaidAt.Equal(first) {
		t.Fatalf("paid_at moved on replay: %v", got.PaidAt)
	}
	qty, _ := s.StockLevel(ctx, "t-1", "item-1")
	if qty != 10 {
		t.Fatalf("stock incremented twice: %d", qty)
	}
}

func TestPurchaseOrderTenantScoping(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	po := newOrder(t, s, "t-1", 500)

	if _, err := s.FindPurchaseOrder(ctx, "t-2", po.ID); err != purchase.ErrNotFound {
		t.Fatalf("expected ErrNotFound across tenants, got %v", err)
	}
	amt := int64(500)
	if _, err := s.MarkPurchaseOrderPaid(ctx, "t-2", po.ID, &amt, time.Now()); err != purchase.ErrNotFound {
		t.Fatalf("expected ErrNotFound across tenants, got %v", err)
	}
}

func TestNegativeAmountRejected(t *testing.T) {
	s := New(0)
	po := newOrder(t, s, "t-1", 500)
	amt := int64(-1)
	if _, err := s.MarkPurchaseOrderPaid(context.Background(), "t-1", po.ID, &amt, time.Now()); err != purchase.ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestIdempotencyFirstWriterWins(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	first := idempotency.Record{
		TenantID: "t-1", Scope: idempotency.ScopeQuickSale, Key: "k-1",
		Status: 201, Body: []byte(`{"id":"p-1"}`),
	}
	stored, inserted, err := s.Insert(ctx, first)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	if string(stored.Body) != `{"id":"p-1"}` {
		t.Fatalf("unexpected stored body: %s", stored.Body)
	}

	second := first
	second.Body = []byte(`{"id":"p-2"}`)
	stored, inserted, err = s.Insert(ctx, second)
	if err != nil {
		t.Fatalf("second insert failed: %v", err)
	}
	if inserted {
		t.Fatal("second writer won")
	}
	if string(stored.Body) != `{"id":"p-1"}` {
		t.Fatalf("expected first writer's body, got %s", stored.Body)
	}

	rec, ok, err := s.Lookup(ctx, "t-1", idempotency.ScopeQuickSale, "k-1")
	if err != nil || !ok {
		t.Fatalf("Lookup: ok=%v err=%v", ok, err)
	}
	if rec.Status != 201 || string(rec.Body) != `{"id":"p-1"}` {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestIdempotencyRetentionExpiry(t *testing.T) {
	s := New(time.Hour)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	rec := idempotency.Record{TenantID: "t-1", Scope: idempotency.ScopeQuickSale, Key: "k", Status: 200, Body: []byte("{}")}
	if _, _, err := s.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, ok, _ := s.Lookup(ctx, "t-1", idempotency.ScopeQuickSale, "k"); ok {
		t.Fatal("expected expired record to be invisible")
	}

	// Expired slot is free for a new writer.
	fresh := rec
	fresh.Body = []byte(`{"fresh":true}`)
	stored, inserted, err := s.Insert(ctx, fresh)
	if err != nil || !inserted {
		t.Fatalf("re-insert after expiry: inserted=%v err=%v", inserted, err)
	}
	if string(stored.Body) != `{"fresh":true}` {
		t.Fatalf("unexpected body: %s", stored.Body)
	}
}

func TestBillingInvoiceMarkPaid(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	inv := billing.Invoice{TenantID: "t-1", CustomerName: "Wanjiku", Total: 2500}
	if err := s.CreateInvoice(ctx, &inv); err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	if inv.Status != billing.InvoiceUnpaid {
		t.Fatalf("unexpected initial status: %s", inv.Status)
	}

	p := billing.Payment{
		TenantID: "t-1", Source: billing.SourceInvoice,
		Method: billing.MethodMpesaTill, Status: billing.PaymentConfirmed, Amount: 2500,
	}
	if err := s.MarkInvoicePaid(ctx, "t-1", inv.ID, &p); err != nil {
		t.Fatalf("MarkInvoicePaid failed: %v", err)
	}

	got, err := s.FindInvoice(ctx, "t-1", inv.ID)
	if err != nil {
		t.Fatalf("FindInvoice failed: %v", err)
	}
	if got.Status != billing.InvoicePaid {
		t.Fatalf("invoice not marked paid: %s", got.Status)
	}
	pay, err := s.FindPayment(ctx, "t-1", p.ID)
	if err != nil {
		t.Fatalf("FindPayment failed: %v", err)
	}
	if pay.InvoiceID != inv.ID {
		t.Fatalf("payment not linked to invoice: %+v", pay)
	}

	if err := s.MarkInvoicePaid(ctx, "t-2", inv.ID, &p); err != billing.ErrNotFound {
		t.Fatalf("expected ErrNotFound across tenants, got %v", err)
	}
}

func TestConfirmPaymentStampsOnce(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	p := billing.Payment{TenantID: "t-1", Source: billing.SourceCounter, Method: billing.MethodMpesaPaybill, Status: billing.PaymentPending, Amount: 700}
	if err := s.CreatePayment(ctx, &p); err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}

	first := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	got, err := s.ConfirmPayment(ctx, "t-1", p.ID, first)
	if err != nil {
		t.Fatalf("ConfirmPayment failed: %v", err)
	}
	if got.Status != billing.PaymentConfirmed || got.ConfirmedAt == nil {
		t.Fatalf("unexpected after confirm: %+v", got)
	}

	got, err = s.ConfirmPayment(ctx, "t-1", p.ID, first.Add(time.Hour))
	if err != nil {
		t.Fatalf("second confirm failed: %v", err)
	}
	if !got.ConfirmedAt.Equal(first) {
		t.Fatalf("confirmed_at moved on replay: %v", got.ConfirmedAt)
	}
}
