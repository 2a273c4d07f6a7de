package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ezduka.app/internal/audit"
	"ezduka.app/internal/feed"
	"ezduka.app/internal/idempotency"
	"ezduka.app/internal/purchase"
	"ezduka.app/internal/session"
)

type purchaseOrderLineRequest struct {
	ItemID   string `json:"item_id"`
	ItemName string `json:"item_name"`
	Quantity int64  `json:"quantity"`
	UnitCost int64  `json:"unit_cost"`
}

type createPurchaseOrderRequest struct {
	SupplierName string                     `json:"supplier_name"`
	NeedBy       *time.Time                 `json:"need_by"`
	DueDate      *time.Time                 `json:"due_date"`
	Lines        []purchaseOrderLineRequest `json:"lines"`
}

type markPaidRequest struct {
	// Amount is the incremental payment in minor units. Absent means
	// settle in full.
	Amount *int64 `json:"amount"`
}

func (a *API) handlePurchaseOrdersCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.withIdempotency(idempotency.ScopePOCreate, a.createPurchaseOrder)(w, r)
}

func (a *API) createPurchaseOrder(w http.ResponseWriter, r *http.Request, sess session.Session, body []byte) (int, any) {
	var req createPurchaseOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return http.StatusBadRequest, map[string]any{"error": err.Error()}
	}
	if strings.TrimSpace(req.SupplierName) == "" {
		return http.StatusBadRequest, map[string]any{"error": "supplier_name is required"}
	}
	if len(req.Lines) == 0 {
		return http.StatusBadRequest, map[string]any{"error": "at least one line is required"}
	}

	var total int64
	lines := make([]purchase.Line, 0, len(req.Lines))
	for _, l := range req.Lines {
		if l.Quantity <= 0 || l.UnitCost < 0 {
			return http.StatusBadRequest, map[string]any{"error": "line quantity must be > 0 and unit_cost >= 0"}
		}
		if strings.TrimSpace(l.ItemID) == "" {
			return http.StatusBadRequest, map[string]any{"error": "line item_id is required"}
		}
		lines = append(lines, purchase.Line{
			ItemID:   strings.TrimSpace(l.ItemID),
			ItemName: strings.TrimSpace(l.ItemName),
			Quantity: l.Quantity,
			UnitCost: l.UnitCost,
		})
		total += l.Quantity * l.UnitCost
	}

	po := purchase.PurchaseOrder{
		TenantID:     sess.TenantID,
		SupplierName: strings.TrimSpace(req.SupplierName),
		Total:        total,
		NeedBy:       req.NeedBy,
		DueDate:      req.DueDate,
		Lines:        lines,
	}
	if err := a.purchases.CreatePurchaseOrder(r.Context(), &po); err != nil {
		return purchaseErrorStatus(err), map[string]any{"error": purchaseErrorMessage(err)}
	}

	_ = audit.LogEvent(r.Context(), "po.create", map[string]any{
		"po_id":    po.ID,
		"supplier": po.SupplierName,
		"total":    strconv.FormatInt(po.Total, 10),
	})
	return http.StatusCreated, po
}

// handlePurchaseOrderResource routes /api/purchase-orders/{id} and
// /api/purchase-orders/{id}/mark-paid.
func (a *API) handlePurchaseOrderResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/purchase-orders/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if strings.HasSuffix(path, "/mark-paid") {
		id := strings.TrimSuffix(strings.TrimSuffix(path, "/mark-paid"), "/")
		if id == "" || strings.Contains(id, "/") {
			writeError(w, r, http.StatusNotFound, "purchase order not found")
			return
		}
		if r.Method != http.MethodPatch {
			methodNotAllowed(w, r, http.MethodPatch)
			return
		}
		a.withIdempotency(idempotency.ScopePOMarkPaid, func(w http.ResponseWriter, r *http.Request, sess session.Session, body []byte) (int, any) {
			return a.markPurchaseOrderPaid(w, r, sess, id)
		})(w, r)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		sess, _ := session.FromContext(r.Context())
		po, err := a.purchases.FindPurchaseOrder(r.Context(), sess.TenantID, path)
		if err != nil {
			writeError(w, r, purchaseErrorStatus(err), purchaseErrorMessage(err))
			return
		}
		writeJSON(w, http.StatusOK, po)
	default:
		methodNotAllowed(w, r, http.MethodGet)
	}
}

func (a *API) markPurchaseOrderPaid(w http.ResponseWriter, r *http.Request, sess session.Session, id string) (int, any) {
	var req markPaidRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return http.StatusBadRequest, map[string]any{"error": err.Error()}
	}
	if req.Amount != nil && *req.Amount < 0 {
		return http.StatusBadRequest, map[string]any{"error": "amount must be >= 0"}
	}

	po, err := a.purchases.MarkPurchaseOrderPaid(r.Context(), sess.TenantID, id, req.Amount, time.Now().UTC())
	if err != nil {
		return purchaseErrorStatus(err), map[string]any{"error": purchaseErrorMessage(err)}
	}

	fields := map[string]any{
		"po_id":  po.ID,
		"status": string(po.Status),
		"paid":   strconv.FormatInt(po.PaidAmount, 10),
	}
	if req.Amount != nil {
		fields["amount"] = strconv.FormatInt(*req.Amount, 10)
	}
	_ = audit.LogEvent(r.Context(), "po.mark_paid", fields)

	if po.Status == purchase.StatusReceived && a.feed != nil {
		a.feed.Publish(feed.Event{
			TenantID: sess.TenantID,
			Type:     feed.TypePurchaseSettled,
			Message:  "Purchase order from " + po.SupplierName + " settled",
			RefType:  "purchase_order",
			RefID:    po.ID,
		})
	}
	return http.StatusOK, po
}

func purchaseErrorStatus(err error) int {
	switch {
	case errors.Is(err, purchase.ErrInvalidAmount), errors.Is(err, purchase.ErrNoLines):
		return http.StatusBadRequest
	case errors.Is(err, purchase.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func purchaseErrorMessage(err error) string {
	if errors.Is(err, purchase.ErrInvalidAmount) || errors.Is(err, purchase.ErrNoLines) || errors.Is(err, purchase.ErrNotFound) {
		return err.Error()
	}
	return "internal error"
}
