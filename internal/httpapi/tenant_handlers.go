package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"ezduka.app/internal/audit"
	"ezduka.app/internal/feed"
	"ezduka.app/internal/session"
	"ezduka.app/internal/tenant"
)

// handleTenantStatus reports the caller's tenant state. Clients poll it
// from the pending/suspended screens.
func (a *API) handleTenantStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sess, _ := session.FromContext(r.Context())

	status := sess.TenantStatus
	if a.tenants != nil && sess.TenantID != "" {
		if tn, err := a.tenants.FindTenant(r.Context(), sess.TenantID); err == nil {
			status = tn.Status
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": sess.TenantID,
		"status":    status,
	})
}

type createTenantRequest struct {
	Name string `json:"name"`
}

func (a *API) handleAdminTenants(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tenants, err := a.tenants.ListTenants(r.Context())
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": tenants})
	case http.MethodPost:
		var req createTenantRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			writeError(w, r, http.StatusBadRequest, "name is required")
			return
		}
		tn := tenant.Tenant{Name: name, Status: session.StatusPending}
		if err := a.tenants.CreateTenant(r.Context(), &tn); err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		_ = audit.LogEvent(r.Context(), "tenant.create", map[string]any{"tenant_id": tn.ID, "name": name})
		w.Header().Set("Location", "/api/admin/tenants/"+tn.ID)
		writeJSON(w, http.StatusCreated, tn)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

type updateTenantStatusRequest struct {
	Status string `json:"status"`
}

// handleAdminTenantResource routes /api/admin/tenants/{id} and
// /api/admin/tenants/{id}/status.
func (a *API) handleAdminTenantResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/admin/tenants/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if strings.HasSuffix(path, "/status") {
		id := strings.TrimSuffix(strings.TrimSuffix(path, "/status"), "/")
		if id == "" {
			writeError(w, r, http.StatusNotFound, "tenant not found")
			return
		}
		a.updateTenantStatus(w, r, id)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		tn, err := a.tenants.FindTenant(r.Context(), path)
		if err != nil {
			handleTenantError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tn)
	default:
		methodNotAllowed(w, r, http.MethodGet)
	}
}

func (a *API) updateTenantStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	var req updateTenantStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	status := session.ParseTenantStatus(req.Status)
	tn, err := a.tenants.UpdateTenantStatus(r.Context(), id, status)
	if err != nil {
		handleTenantError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "tenant.status.update", map[string]any{
		"tenant_id": id,
		"status":    string(status),
	})
	if a.feed != nil {
		a.feed.Publish(feed.Event{
			TenantID: id,
			Type:     feed.TypeTenantStatus,
			Message:  "Tenant status set to " + string(status),
			RefType:  "tenant",
			RefID:    id,
		})
	}
	writeJSON(w, http.StatusOK, tn)
}

func handleTenantError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tenant.ErrInvalidStatus):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, tenant.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
