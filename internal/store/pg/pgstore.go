// Package pg implements the persistence contracts on Postgres through
// database/sql with the pgx stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"ezduka.app/internal/billing"
	"ezduka.app/internal/idempotency"
	"ezduka.app/internal/ids"
	"ezduka.app/internal/purchase"
	"ezduka.app/internal/session"
	"ezduka.app/internal/tenant"
)

type Store struct {
	db        *sql.DB
	retention time.Duration
}

var (
	_ tenant.Store      = (*Store)(nil)
	_ purchase.Store    = (*Store)(nil)
	_ billing.Store     = (*Store)(nil)
	_ idempotency.Store = (*Store)(nil)
)

func Open(dsn string, retention time.Duration) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if retention <= 0 {
		retention = idempotency.Retention
	}
	return &Store{db: db, retention: retention}, nil
}

// NewWithDB wraps an existing handle. Tests use it with sqlmock.
func NewWithDB(db *sql.DB, retention time.Duration) *Store {
	if retention <= 0 {
		retention = idempotency.Retention
	}
	return &Store{db: db, retention: retention}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping verifies connectivity; the readiness probe calls it.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// --- tenant.Store ---

func (s *Store) CreateTenant(ctx context.Context, t *tenant.Tenant) error {
	if t.ID == "" {
		t.ID = ids.New()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		insert into tenants(id, name, status, created_at, updated_at)
		values ($1,$2,$3,$4,$5)
	`, t.ID, t.Name, string(t.Status), t.CreatedAt, t.UpdatedAt)
	return err
}

func (s *Store) FindTenant(ctx context.Context, id string) (tenant.Tenant, error) {
	var t tenant.Tenant
	var status string
	err := s.db.QueryRowContext(ctx, `
		select id, name, status, created_at, updated_at from tenants where id=$1
	`, id).Scan(&t.ID, &t.Name, &status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	if err != nil {
		return tenant.Tenant{}, err
	}
	t.Status = session.ParseTenantStatus(status)
	return t, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]tenant.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, status, created_at, updated_at from tenants order by created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tenant.Tenant
	for rows.Next() {
		var t tenant.Tenant
		var status string
		if err := rows.Scan(&t.ID, &t.Name, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Status = session.ParseTenantStatus(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateTenantStatus(ctx context.Context, id string, status session.TenantStatus) (tenant.Tenant, error) {
	if !tenant.ValidTransition(status) {
		return tenant.Tenant{}, tenant.ErrInvalidStatus
	}
	res, err := s.db.ExecContext(ctx, `
		update tenants set status=$2, updated_at=now() where id=$1
	`, id, string(status))
	if err != nil {
		return tenant.Tenant{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	return s.FindTenant(ctx, id)
}

// --- purchase.Store ---

func (s *Store) CreatePurchaseOrder(ctx context.Context, po *purchase.PurchaseOrder) error {
	if len(po.Lines) == 0 {
		return purchase.ErrNoLines
	}
	if po.ID == "" {
		po.ID = ids.New()
	}
	po.Status = purchase.StatusOrdered
	po.PaidAmount = 0
	po.PaidAt = nil
	po.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into purchase_orders(id, tenant_id, supplier_name, status, total, paid_amount, need_by, due_date, created_at)
		values ($1,$2,$3,$4,$5,0,$6,$7,$8)
	`, po.ID, po.TenantID, po.SupplierName, string(po.Status), po.Total, po.NeedBy, po.DueDate, po.CreatedAt); err != nil {
		return err
	}
	for _, line := range po.Lines {
		if _, err := tx.ExecContext(ctx, `
			insert into purchase_order_lines(po_id, item_id, item_name, quantity, unit_cost)
			values ($1,$2,$3,$4,$5)
		`, po.ID, line.ItemID, line.ItemName, line.Quantity, line.UnitCost); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) FindPurchaseOrder(ctx context.Context, tenantID, id string) (purchase.PurchaseOrder, error) {
	po, err := s.scanOrder(ctx, s.db.QueryRowContext(ctx, `
		select id, tenant_id, supplier_name, status, total, paid_amount, need_by, due_date, paid_at, created_at
		from purchase_orders where id=$1 and tenant_id=$2
	`, id, tenantID))
	if err != nil {
		return purchase.PurchaseOrder{}, err
	}
	po.Lines, err = s.orderLines(ctx, s.db, po.ID)
	if err != nil {
		return purchase.PurchaseOrder{}, err
	}
	return po, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanOrder(ctx context.Context, row rowScanner) (purchase.PurchaseOrder, error) {
	var po purchase.PurchaseOrder
	var status string
	var needBy, dueDate, paidAt sql.NullTime
	err := row.Scan(&po.ID, &po.TenantID, &po.SupplierName, &status, &po.Total, &po.PaidAmount, &needBy, &dueDate, &paidAt, &po.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return purchase.PurchaseOrder{}, purchase.ErrNotFound
	}
	if err != nil {
		return purchase.PurchaseOrder{}, err
	}
	po.Status = purchase.Status(status)
	if needBy.Valid {
		t := needBy.Time
		po.NeedBy = &t
	}
	if dueDate.Valid {
		t := dueDate.Time
		po.DueDate = &t
	}
	if paidAt.Valid {
		t := paidAt.Time
		po.PaidAt = &t
	}
	return po, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) orderLines(ctx context.Context, q querier, poID string) ([]purchase.Line, error) {
	rows, err := q.QueryContext(ctx, `
		select item_id, item_name, quantity, unit_cost from purchase_order_lines where po_id=$1
	`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []purchase.Line
	for rows.Next() {
		var l purchase.Line
		if err := rows.Scan(&l.ItemID, &l.ItemName, &l.Quantity, &l.UnitCost); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// MarkPurchaseOrderPaid recomputes the payment state under a row lock so a
// concurrent replay cannot double-stamp paid_at or double-count stock.
func (s *Store) MarkPurchaseOrderPaid(ctx context.Context, tenantID, id string, amount *int64, at time.Time) (purchase.PurchaseOrder, error) {
	if amount != nil && *amount < 0 {
		return purchase.PurchaseOrder{}, purchase.ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return purchase.PurchaseOrder{}, err
	}
	defer func() { _ = tx.Rollback() }()

	po, err := s.scanOrder(ctx, tx.QueryRowContext(ctx, `
		select id, tenant_id, supplier_name, status, total, paid_amount, need_by, due_date, paid_at, created_at
		from purchase_orders where id=$1 and tenant_id=$2 for update
	`, id, tenantID))
	if err != nil {
		return purchase.PurchaseOrder{}, err
	}

	out := purchase.Reconcile(po.PaidAmount, po.Total, amount)
	po.PaidAmount = out.NewPaid
	po.Status = out.Status

	if _, err := tx.ExecContext(ctx, `
		update purchase_orders set paid_amount=$2, status=$3 where id=$1
	`, po.ID, po.PaidAmount, string(po.Status)); err != nil {
		return purchase.PurchaseOrder{}, err
	}

	if out.StampPaidAt {
		stamp := at.UTC()
		// paid_at is written at most once; the guard survives replays that
		// slipped past the in-process reconciler.
		if _, err := tx.ExecContext(ctx, `
			update purchase_orders set paid_at=$2 where id=$1 and paid_at is null
		`, po.ID, stamp); err != nil {
			return purchase.PurchaseOrder{}, err
		}
		po.PaidAt = &stamp

		po.Lines, err = s.orderLines(ctx, tx, po.ID)
		if err != nil {
			return purchase.PurchaseOrder{}, err
		}
		for _, line := range po.Lines {
			if _, err := tx.ExecContext(ctx, `
				insert into stock_levels(tenant_id, item_id, quantity)
				values ($1,$2,$3)
				on conflict (tenant_id, item_id) do update
				set quantity = stock_levels.quantity + excluded.quantity
			`, tenantID, line.ItemID, line.Quantity); err != nil {
				return purchase.PurchaseOrder{}, err
			}
		}
	} else {
		po.Lines, err = s.orderLines(ctx, tx, po.ID)
		if err != nil {
			return purchase.PurchaseOrder{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return purchase.PurchaseOrder{}, err
	}
	return po, nil
}

func (s *Store) StockLevel(ctx context.Context, tenantID, itemID string) (int64, error) {
	var qty int64
	err := s.db.QueryRowContext(ctx, `
		select coalesce(quantity, 0) from stock_levels where tenant_id=$1 and item_id=$2
	`, tenantID, itemID).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return qty, nil
}

// --- billing.Store ---

func (s *Store) CreatePayment(ctx context.Context, p *billing.Payment) error {
	if p.Amount <= 0 {
		return billing.ErrInvalidAmount
	}
	if p.ID == "" {
		p.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into payments(id, tenant_id, invoice_id, source, method, status, amount, reference, requested_at, confirmed_at)
		values ($1,$2,nullif($3,''),$4,$5,$6,$7,$8,$9,$10)
	`, p.ID, p.TenantID, p.InvoiceID, string(p.Source), string(p.Method), string(p.Status), p.Amount, p.Reference, p.RequestedAt, p.ConfirmedAt)
	return err
}

func (s *Store) FindPayment(ctx context.Context, tenantID, id string) (billing.Payment, error) {
	var p billing.Payment
	var invoiceID sql.NullString
	var source, method, status string
	var requestedAt, confirmedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		select id, tenant_id, invoice_id, source, method, status, amount, reference, requested_at, confirmed_at
		from payments where id=$1 and tenant_id=$2
	`, id, tenantID).Scan(&p.ID, &p.TenantID, &invoiceID, &source, &method, &status, &p.Amount, &p.Reference, &requestedAt, &confirmedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Payment{}, billing.ErrNotFound
	}
	if err != nil {
		return billing.Payment{}, err
	}
	if invoiceID.Valid {
		p.InvoiceID = invoiceID.String
	}
	p.Source = billing.Source(source)
	p.Method = billing.Method(method)
	p.Status = billing.PaymentStatus(status)
	if requestedAt.Valid {
		t := requestedAt.Time
		p.RequestedAt = &t
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time
		p.ConfirmedAt = &t
	}
	return p, nil
}

func (s *Store) ConfirmPayment(ctx context.Context, tenantID, id string, at time.Time) (billing.Payment, error) {
	res, err := s.db.ExecContext(ctx, `
		update payments set status=$3, confirmed_at=$4
		where id=$1 and tenant_id=$2 and confirmed_at is null
	`, id, tenantID, string(billing.PaymentConfirmed), at.UTC())
	if err != nil {
		return billing.Payment{}, err
	}
	if _, err := res.RowsAffected(); err != nil {
		return billing.Payment{}, err
	}
	return s.FindPayment(ctx, tenantID, id)
}

func (s *Store) CreateInvoice(ctx context.Context, inv *billing.Invoice) error {
	if inv.Total <= 0 {
		return billing.ErrInvalidAmount
	}
	if inv.ID == "" {
		inv.ID = ids.New()
	}
	if inv.Status == "" {
		inv.Status = billing.InvoiceUnpaid
	}
	inv.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		insert into invoices(id, tenant_id, customer_name, total, status, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, inv.ID, inv.TenantID, inv.CustomerName, inv.Total, string(inv.Status), inv.CreatedAt)
	return err
}

func (s *Store) FindInvoice(ctx context.Context, tenantID, id string) (billing.Invoice, error) {
	var inv billing.Invoice
	var status string
	err := s.db.QueryRowContext(ctx, `
		select id, tenant_id, customer_name, total, status, created_at
		from invoices where id=$1 and tenant_id=$2
	`, id, tenantID).Scan(&inv.ID, &inv.TenantID, &inv.CustomerName, &inv.Total, &status, &inv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Invoice{}, billing.ErrNotFound
	}
	if err != nil {
		return billing.Invoice{}, err
	}
	inv.Status = billing.InvoiceStatus(status)
	return inv, nil
}

func (s *Store) MarkInvoicePaid(ctx context.Context, tenantID, invoiceID string, p *billing.Payment) error {
	if p.Amount <= 0 {
		return billing.ErrInvalidAmount
	}
	if p.ID == "" {
		p.ID = ids.New()
	}
	p.InvoiceID = invoiceID

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update invoices set status=$3 where id=$1 and tenant_id=$2
	`, invoiceID, tenantID, string(billing.InvoicePaid))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return billing.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `
		insert into payments(id, tenant_id, invoice_id, source, method, status, amount, reference, requested_at, confirmed_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, p.ID, p.TenantID, p.InvoiceID, string(p.Source), string(p.Method), string(p.Status), p.Amount, p.Reference, p.RequestedAt, p.ConfirmedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// --- idempotency.Store ---

func (s *Store) Lookup(ctx context.Context, tenantID, scope, key string) (idempotency.Record, bool, error) {
	rec := idempotency.Record{TenantID: tenantID, Scope: scope, Key: key}
	err := s.db.QueryRowContext(ctx, `
		select status, body, created_at from idempotency_keys
		where tenant_id=$1 and scope=$2 and key=$3 and created_at > $4
	`, tenantID, scope, key, time.Now().UTC().Add(-s.retention)).Scan(&rec.Status, &rec.Body, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return idempotency.Record{}, false, nil
	}
	if err != nil {
		return idempotency.Record{}, false, err
	}
	return rec, true, nil
}

func (s *Store) Insert(ctx context.Context, rec idempotency.Record) (idempotency.Record, bool, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		insert into idempotency_keys(tenant_id, scope, key, status, body, created_at)
		values ($1,$2,$3,$4,$5,$6)
		on conflict (tenant_id, scope, key) do nothing
	`, rec.TenantID, rec.Scope, rec.Key, rec.Status, rec.Body, rec.CreatedAt)
	if err != nil {
		return idempotency.Record{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return idempotency.Record{}, false, err
	}
	if n > 0 {
		return rec, true, nil
	}
	stored, ok, err := s.Lookup(ctx, rec.TenantID, rec.Scope, rec.Key)
	if err != nil {
		return idempotency.Record{}, false, err
	}
	if !ok {
		// Conflicted with an expired row; the sweeper will clear it and a
		// retry lands cleanly.
		return rec, false, nil
	}
	return stored, false, nil
}

// SweepIdempotency deletes expired idempotency records. The server runs it
// periodically.
func (s *Store) SweepIdempotency(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		delete from idempotency_keys where created_at < $1
	`, time.Now().UTC().Add(-s.retention))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
