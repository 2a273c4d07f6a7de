package pg

import "context"

// Schema is applied idempotently at startup. Statements only create what is
// missing, so repeated boots are safe.
var schemaStatements = []string{
	`create table if not exists tenants (
		id         text primary key,
		name       text not null,
		status     text not null,
		created_at timestamptz not null,
		updated_at timestamptz not null
	)`,
	`create table if not exists purchase_orders (
		id            text primary key,
		tenant_id     text not null,
		supplier_name text not null,
		status        text not null,
		total         bigint not null,
		paid_amount   bigint not null default 0,
		need_by       timestamptz,
		due_date      timestamptz,
		paid_at       timestamptz,
		created_at    timestamptz not null
	)`,
	`create index if not exists purchase_orders_tenant_idx on purchase_orders (tenant_id, created_at)`,
	`create table if not exists purchase_order_lines (
		po_id     text not null references purchase_orders(id),
		item_id   text not null,
		item_name text not null,
		quantity  bigint not null,
		unit_cost bigint not null
	)`,
	`create index if not exists purchase_order_lines_po_idx on purchase_order_lines (po_id)`,
	`create table if not exists stock_levels (
		tenant_id text not null,
		item_id   text not null,
		quantity  bigint not null default 0,
		primary key (tenant_id, item_id)
	)`,
	`create table if not exists invoices (
		id            text primary key,
		tenant_id     text not null,
		customer_name text not null,
		total         bigint not null,
		status        text not null,
		created_at    timestamptz not null
	)`,
	`create table if not exists payments (
		id           text primary key,
		tenant_id    text not null,
		invoice_id   text references invoices(id),
		source       text not null,
		method       text not null,
		status       text not null,
		amount       bigint not null,
		reference    text not null default '',
		requested_at timestamptz,
		confirmed_at timestamptz
	)`,
	`create index if not exists payments_tenant_idx on payments (tenant_id)`,
	`create table if not exists idempotency_keys (
		tenant_id  text not null,
		scope      text not null,
		key        text not null,
		status     int not null,
		body       bytea not null,
		created_at timestamptz not null,
		primary key (tenant_id, scope, key)
	)`,
	`create index if not exists idempotency_keys_created_idx on idempotency_keys (created_at)`,
}

// EnsureSchema applies the schema statements in order.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
