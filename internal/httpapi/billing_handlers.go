package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ezduka.app/internal/audit"
	"ezduka.app/internal/billing"
	"ezduka.app/internal/feed"
	"ezduka.app/internal/idempotency"
	"ezduka.app/internal/session"
)

type quickSaleRequest struct {
	Amount    int64  `json:"amount"`
	Method    string `json:"method"`
	Reference string `json:"reference"`
}

// handleQuickSale records an over-the-counter sale. The money changed hands
// at the till, so the payment is confirmed immediately.
func (a *API) handleQuickSale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.withIdempotency(idempotency.ScopeQuickSale, a.quickSale)(w, r)
}

func (a *API) quickSale(w http.ResponseWriter, r *http.Request, sess session.Session, body []byte) (int, any) {
	var req quickSaleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return http.StatusBadRequest, map[string]any{"error": err.Error()}
	}
	if req.Amount <= 0 {
		return http.StatusBadRequest, map[string]any{"error": "amount must be > 0"}
	}

	now := time.Now().UTC()
	p := billing.Payment{
		TenantID:    sess.TenantID,
		Source:      billing.SourceCounter,
		Method:      billing.ParseMethod(req.Method),
		Status:      billing.PaymentConfirmed,
		Amount:      req.Amount,
		Reference:   strings.TrimSpace(req.Reference),
		ConfirmedAt: &now,
	}
	if err := a.billing.CreatePayment(r.Context(), &p); err != nil {
		return billingErrorStatus(err), map[string]any{"error": billingErrorMessage(err)}
	}

	_ = audit.LogEvent(r.Context(), "sales.quick", map[string]any{
		"payment_id": p.ID,
		"amount":     strconv.FormatInt(p.Amount, 10),
		"method":     string(p.Method),
	})
	if a.feed != nil {
		a.feed.Publish(feed.Event{
			TenantID: sess.TenantID,
			Type:     feed.TypeSale,
			Message:  "Counter sale of " + strconv.FormatInt(p.Amount, 10),
			RefType:  "payment",
			RefID:    p.ID,
		})
	}
	return http.StatusCreated, p
}

type invoiceMarkPaidRequest struct {
	Amount    int64  `json:"amount"`
	Method    string `json:"method"`
	Reference string `json:"reference"`
}

// handleInvoiceResource routes /api/invoices/{id}/mark-paid.
func (a *API) handleInvoiceResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/invoices/")
	if !strings.HasSuffix(path, "/mark-paid") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id := strings.TrimSuffix(strings.TrimSuffix(path, "/mark-paid"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "invoice not found")
		return
	}
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	a.withIdempotency(idempotency.ScopeInvoiceMarkPaid, func(w http.ResponseWriter, r *http.Request, sess session.Session, body []byte) (int, any) {
		return a.invoiceMarkPaid(w, r, sess, id)
	})(w, r)
}

func (a *API) invoiceMarkPaid(w http.ResponseWriter, r *http.Request, sess session.Session, invoiceID string) (int, any) {
	var req invoiceMarkPaidRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return http.StatusBadRequest, map[string]any{"error": err.Error()}
	}

	inv, err := a.billing.FindInvoice(r.Context(), sess.TenantID, invoiceID)
	if err != nil {
		return billingErrorStatus(err), map[string]any{"error": billingErrorMessage(err)}
	}
	amount := req.Amount
	if amount <= 0 {
		amount = inv.Total
	}

	now := time.Now().UTC()
	p := billing.Payment{
		TenantID:    sess.TenantID,
		Source:      billing.SourceInvoice,
		Method:      billing.ParseMethod(req.Method),
		Status:      billing.PaymentConfirmed,
		Amount:      amount,
		Reference:   strings.TrimSpace(req.Reference),
		ConfirmedAt: &now,
	}
	if err := a.billing.MarkInvoicePaid(r.Context(), sess.TenantID, invoiceID, &p); err != nil {
		return billingErrorStatus(err), map[string]any{"error": billingErrorMessage(err)}
	}

	_ = audit.LogEvent(r.Context(), "invoice.mark_paid", map[string]any{
		"invoice_id": invoiceID,
		"payment_id": p.ID,
		"amount":     strconv.FormatInt(amount, 10),
	})
	if a.feed != nil {
		a.feed.Publish(feed.Event{
			TenantID: sess.TenantID,
			Type:     feed.TypeInvoicePaid,
			Message:  "Invoice " + invoiceID + " paid",
			RefType:  "invoice",
			RefID:    invoiceID,
		})
	}

	inv.Status = billing.InvoicePaid
	return http.StatusOK, map[string]any{"invoice": inv, "payment": p}
}

type paymentRequestBody struct {
	InvoiceID string `json:"invoice_id"`
	Amount    int64  `json:"amount"`
	Method    string `json:"method"`
	Phone     string `json:"phone"`
}

// handlePaymentRequest initiates a provider charge (STK push and friends).
// The payment stays PENDING until the webhook confirms it.
func (a *API) handlePaymentRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.withIdempotency(idempotency.ScopePaymentRequest, a.paymentRequest)(w, r)
}

func (a *API) paymentRequest(w http.ResponseWriter, r *http.Request, sess session.Session, body []byte) (int, any) {
	var req paymentRequestBody
	if err := decodeJSON(w, r, &req); err != nil {
		return http.StatusBadRequest, map[string]any{"error": err.Error()}
	}
	if req.Amount <= 0 {
		return http.StatusBadRequest, map[string]any{"error": "amount must be > 0"}
	}

	now := time.Now().UTC()
	source := billing.SourceCounter
	if req.InvoiceID != "" {
		source = billing.SourceInvoice
		if _, err := a.billing.FindInvoice(r.Context(), sess.TenantID, req.InvoiceID); err != nil {
			return billingErrorStatus(err), map[string]any{"error": billingErrorMessage(err)}
		}
	}
	p := billing.Payment{
		TenantID:    sess.TenantID,
		InvoiceID:   req.InvoiceID,
		Source:      source,
		Method:      billing.ParseMethod(req.Method),
		Status:      billing.PaymentPending,
		Amount:      req.Amount,
		RequestedAt: &now,
	}
	if err := a.billing.CreatePayment(r.Context(), &p); err != nil {
		return billingErrorStatus(err), map[string]any{"error": billingErrorMessage(err)}
	}

	_ = audit.LogEvent(r.Context(), "payments.request", map[string]any{
		"payment_id": p.ID,
		"amount":     strconv.FormatInt(p.Amount, 10),
		"method":     string(p.Method),
	})
	return http.StatusAccepted, p
}

type webhookRequest struct {
	TenantID  string `json:"tenant_id"`
	PaymentID string `json:"payment_id"`
	Reference string `json:"reference"`
	Result    string `json:"result"`
}

// handlePaymentWebhook confirms a pending payment from the provider
// callback. The path is on the CSRF bypass list; providers do not carry
// browser cookies.
func (a *API) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req webhookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.TenantID == "" || req.PaymentID == "" {
		writeError(w, r, http.StatusBadRequest, "tenant_id and payment_id are required")
		return
	}
	if !strings.EqualFold(req.Result, "success") {
		// Provider reported failure; acknowledge so it stops retrying.
		writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	p, err := a.billing.ConfirmPayment(r.Context(), req.TenantID, req.PaymentID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, billing.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "payment not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	_ = audit.LogEvent(r.Context(), "payments.webhook.confirmed", map[string]any{
		"payment_id": p.ID,
		"tenant_id":  p.TenantID,
		"reference":  req.Reference,
	})
	if a.feed != nil {
		a.feed.Publish(feed.Event{
			TenantID: p.TenantID,
			Type:     feed.TypePaymentConfirmed,
			Message:  "Payment " + p.ID + " confirmed",
			RefType:  "payment",
			RefID:    p.ID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "confirmed", "payment": p})
}

func billingErrorStatus(err error) int {
	switch {
	case errors.Is(err, billing.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, billing.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func billingErrorMessage(err error) string {
	if errors.Is(err, billing.ErrInvalidAmount) || errors.Is(err, billing.ErrNotFound) {
		return err.Error()
	}
	return "internal error"
}
