// Package billing covers payments against invoices and over-the-counter
// sales. Amounts are minor units (cents); no floats.
package billing

import (
	"context"
	"errors"
	"time"
)

// Method is how the customer paid.
type Method string

const (
	MethodCash         Method = "CASH"
	MethodMpesaTill    Method = "MPESA_TILL"
	MethodMpesaPaybill Method = "MPESA_PAYBILL"
	MethodMpesaPochi   Method = "MPESA_POCHI"
)

// ParseMethod normalizes raw input; anything unrecognized falls back to
// cash, as the counter flow does.
func ParseMethod(raw string) Method {
	switch Method(raw) {
	case MethodMpesaTill:
		return MethodMpesaTill
	case MethodMpesaPaybill:
		return MethodMpesaPaybill
	case MethodMpesaPochi:
		return MethodMpesaPochi
	}
	return MethodCash
}

// PaymentStatus tracks confirmation. Requested payments stay PENDING until
// the provider webhook confirms them.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentConfirmed PaymentStatus = "CONFIRMED"
)

// Source distinguishes counter sales from invoice payments.
type Source string

const (
	SourceCounter Source = "COUNTER"
	SourceInvoice Source = "INVOICE"
)

// Payment is one received or requested payment.
type Payment struct {
	ID          string        `json:"id"`
	TenantID    string        `json:"tenant_id"`
	InvoiceID   string        `json:"invoice_id,omitempty"`
	Source      Source        `json:"source"`
	Method      Method        `json:"method"`
	Status      PaymentStatus `json:"status"`
	Amount      int64         `json:"amount"`
	Reference   string        `json:"reference,omitempty"`
	RequestedAt *time.Time    `json:"requested_at,omitempty"`
	ConfirmedAt *time.Time    `json:"confirmed_at,omitempty"`
}

// InvoiceStatus is the invoice settlement state.
type InvoiceStatus string

const (
	InvoiceUnpaid InvoiceStatus = "UNPAID"
	InvoicePaid   InvoiceStatus = "PAID"
)

// Invoice is the customer-facing bill.
type Invoice struct {
	ID           string        `json:"id"`
	TenantID     string        `json:"tenant_id"`
	CustomerName string        `json:"customer_name"`
	Total        int64         `json:"total"`
	Status       InvoiceStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
}

var (
	ErrNotFound      = errors.New("billing: not found")
	ErrInvalidAmount = errors.New("billing: amount must be > 0")
)

// Store is the persistence contract for payments and invoices.
// MarkInvoicePaid records the payment and flips the invoice status in one
// atomic unit.
type Store interface {
	CreatePayment(ctx context.Context, p *Payment) error
	FindPayment(ctx context.Context, tenantID, id string) (Payment, error)
	ConfirmPayment(ctx context.Context, tenantID, id string, at time.Time) (Payment, error)

	CreateInvoice(ctx context.Context, inv *Invoice) error
	FindInvoice(ctx context.Context, tenantID, id string) (Invoice, error)
	MarkInvoicePaid(ctx context.Context, tenantID, invoiceID string, p *Payment) error
}
