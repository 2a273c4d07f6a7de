package pg

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"ezduka.app/internal/billing"
	"ezduka.app/internal/idempotency"
	"ezduka.app/internal/purchase"
	"ezduka.app/internal/session"
	"ezduka.app/internal/tenant"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db, 48*time.Hour), mock
}

func TestFindTenant(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("select id, name, status, created_at, updated_at from tenants").
		WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status", "created_at", "updated_at"}).
			AddRow("t-1", "Mama Njeri Shop", "ACTIVE", now, now))

	got, err := s.FindTenant(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("FindTenant: %v", err)
	}
	if got.Status != session.StatusActive || got.Name != "Mama Njeri Shop" {
		t.Fatalf("unexpected tenant: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindTenantNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("select id, name, status, created_at, updated_at from tenants").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status", "created_at", "updated_at"}))

	if _, err := s.FindTenant(context.Background(), "missing"); err != tenant.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateTenantStatusRejectsUnknown(t *testing.T) {
	s, _ := newMock(t)
	if _, err := s.UpdateTenantStatus(context.Background(), "t-1", session.StatusUnknown); err != tenant.ErrInvalidStatus {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestMarkPurchaseOrderPaidSettlesAndIncrementsStock(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("from purchase_orders where id=\\$1 and tenant_id=\\$2 for update").
		WithArgs("po-1", "t-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "supplier_name", "status", "total", "paid_amount", "need_by", "due_date", "paid_at", "created_at"}).
			AddRow("po-1", "t-1", "Acme", "PARTIAL", int64(1000), int64(400), nil, nil, nil, now))
	mock.ExpectExec("update purchase_orders set paid_amount").
		WithArgs("po-1", int64(1000), "RECEIVED").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update purchase_orders set paid_at=\\$2 where id=\\$1 and paid_at is null").
		WithArgs("po-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("from purchase_order_lines").
		WithArgs("po-1").
		WillReturnRows(sqlmock.NewRows([]string{"item_id", "item_name", "quantity", "unit_cost"}).
			AddRow("item-1", "Flour 2kg", int64(10), int64(100)))
	mock.ExpectExec("insert into stock_levels").
		WithArgs("t-1", "item-1", int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	amt := int64(600)
	got, err := s.MarkPurchaseOrderPaid(context.Background(), "t-1", "po-1", &amt, now)
	if err != nil {
		t.Fatalf("MarkPurchaseOrderPaid: %v", err)
	}
	if got.PaidAmount != 1000 || got.Status != purchase.StatusReceived || got.PaidAt == nil {
		t.Fatalf("unexpected order: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkPurchaseOrderPaidReplayLeavesStock(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	paidAt := now.Add(-time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("from purchase_orders where id=\\$1 and tenant_id=\\$2 for update").
		WithArgs("po-1", "t-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "supplier_name", "status", "total", "paid_amount", "need_by", "due_date", "paid_at", "created_at"}).
			AddRow("po-1", "t-1", "Acme", "RECEIVED", int64(1000), int64(1000), nil, nil, paidAt, now))
	mock.ExpectExec("update purchase_orders set paid_amount").
		WithArgs("po-1", int64(1000), "RECEIVED").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// No paid_at update, no stock insert: the order was already settled.
	mock.ExpectQuery("from purchase_order_lines").
		WithArgs("po-1").
		WillReturnRows(sqlmock.NewRows([]string{"item_id", "item_name", "quantity", "unit_cost"}).
			AddRow("item-1", "Flour 2kg", int64(10), int64(100)))
	mock.ExpectCommit()

	amt := int64(50)
	got, err := s.MarkPurchaseOrderPaid(context.Background(), "t-1", "po-1", &amt, now)
	if err != nil {
		t.Fatalf("MarkPurchaseOrderPaid: %v", err)
	}
	if got.PaidAmount != 1000 {
		t.Fatalf("paid amount exceeded total: %d", got.PaidAmount)
	}
	if got.PaidAt == nil || !got.PaidAt.Equal(paidAt) {
		t.Fatalf("paid_at moved on replay: %v", got.PaidAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkPurchaseOrderPaidNotFound(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("from purchase_orders where id=\\$1 and tenant_id=\\$2 for update").
		WithArgs("po-1", "t-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "supplier_name", "status", "total", "paid_amount", "need_by", "due_date", "paid_at", "created_at"}))
	mock.ExpectRollback()

	amt := int64(100)
	if _, err := s.MarkPurchaseOrderPaid(context.Background(), "t-2", "po-1", &amt, time.Now()); err != purchase.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIdempotencyInsertFirstWriterWins(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()

	// Conflict: zero rows affected, fall through to the stored row.
	mock.ExpectExec("insert into idempotency_keys").
		WithArgs("t-1", idempotency.ScopeQuickSale, "k-1", 201, []byte(`{"id":"p-2"}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select status, body, created_at from idempotency_keys").
		WithArgs("t-1", idempotency.ScopeQuickSale, "k-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"status", "body", "created_at"}).
			AddRow(201, []byte(`{"id":"p-1"}`), now))

	stored, inserted, err := s.Insert(context.Background(), idempotency.Record{
		TenantID: "t-1", Scope: idempotency.ScopeQuickSale, Key: "k-1",
		Status: 201, Body: []byte(`{"id":"p-2"}`),
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if inserted {
		t.Fatal("second writer won")
	}
	if string(stored.Body) != `{"id":"p-1"}` {
		t.Fatalf("expected first writer's body, got %s", stored.Body)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdempotencyLookupMiss(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("select status, body, created_at from idempotency_keys").
		WithArgs("t-1", idempotency.ScopeQuickSale, "missing", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"status", "body", "created_at"}))

	_, ok, err := s.Lookup(context.Background(), "t-1", idempotency.ScopeQuickSale, "missing")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ok {
		t.Fatal("expected miss")
	}
}

func TestMarkInvoicePaidAtomicity(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("update invoices set status").
		WithArgs("inv-1", "t-1", "PAID").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into payments").
		WithArgs(sqlmock.AnyArg(), "t-1", "inv-1", "INVOICE", "MPESA_TILL", "CONFIRMED", int64(2500), "", nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p := billing.Payment{
		TenantID: "t-1", Source: billing.SourceInvoice,
		Method: billing.MethodMpesaTill, Status: billing.PaymentConfirmed, Amount: 2500,
	}
	if err := s.MarkInvoicePaid(context.Background(), "t-1", "inv-1", &p); err != nil {
		t.Fatalf("MarkInvoicePaid: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkInvoicePaidMissingInvoice(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("update invoices set status").
		WithArgs("inv-9", "t-1", "PAID").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	p := billing.Payment{TenantID: "t-1", Source: billing.SourceInvoice, Method: billing.MethodCash, Status: billing.PaymentConfirmed, Amount: 100}
	if err := s.MarkInvoicePaid(context.Background(), "t-1", "inv-9", &p); err != billing.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSweepIdempotency(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("delete from idempotency_keys").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.SweepIdempotency(context.Background())
	if err != nil {
		t.Fatalf("SweepIdempotency: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 swept, got %d", n)
	}
}
