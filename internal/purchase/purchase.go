// Package purchase covers purchase orders and the payment reconciliation
// that moves them through ORDERED → PARTIAL → RECEIVED. Amounts are minor
// units (cents); no floats.
package purchase

import (
	"context"
	"errors"
	"time"
)

// Status is the purchase-order lifecycle.
type Status string

const (
	// StatusOrdered only exists at creation, before any payment.
	StatusOrdered Status = "ORDERED"
	StatusPartial Status = "PARTIAL"
	// StatusReceived holds exactly when paidAmount == total and total > 0.
	StatusReceived Status = "RECEIVED"
)

var (
	ErrNotFound      = errors.New("purchase: order not found")
	ErrInvalidAmount = errors.New("purchase: invalid amount")
	ErrNoLines       = errors.New("purchase: at least one line is required")
)

// Line is one ordered item. Quantity feeds the stock increment applied when
// the order is received.
type Line struct {
	ItemID   string `json:"item_id"`
	ItemName string `json:"item_name"`
	Quantity int64  `json:"quantity"`
	UnitCost int64  `json:"unit_cost"`
}

// PurchaseOrder is the supplier order. Total is fixed at creation;
// PaidAmount is monotonically non-decreasing and clamped to Total; PaidAt
// is stamped exactly once, when PaidAmount first reaches Total, and acts as
// the received-date anchor for early/late delivery comparison.
type PurchaseOrder struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	SupplierName string     `json:"supplier_name"`
	Status       Status     `json:"status"`
	Total        int64      `json:"total"`
	PaidAmount   int64      `json:"paid_amount"`
	NeedBy       *time.Time `json:"need_by,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	Lines        []Line     `json:"lines"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Store is the persistence contract. MarkPaid must apply the reconciliation
// outcome, the PaidAt stamp and the one-shot stock increments atomically.
type Store interface {
	CreatePurchaseOrder(ctx context.Context, po *PurchaseOrder) error
	FindPurchaseOrder(ctx context.Context, tenantID, id string) (PurchaseOrder, error)
	MarkPurchaseOrderPaid(ctx context.Context, tenantID, id string, amount *int64, at time.Time) (PurchaseOrder, error)
	StockLevel(ctx context.Context, tenantID, itemID string) (int64, error)
}
