package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"ezduka.app/internal/idempotency"
	"ezduka.app/internal/obs"
	"ezduka.app/internal/session"
)

// moneyHandler produces the response for a financial mutation. The wrapper
// owns reading the body and writing the response.
type moneyHandler func(w http.ResponseWriter, r *http.Request, sess session.Session, body []byte) (int, any)

// withIdempotency makes a financial mutation safe to retry. The first
// successful execution's status and body are recorded under (tenant, scope,
// key);
// replays return the stored bytes without re-executing. A store that cannot
// answer the lookup fails the request closed: running the mutation blind
// risks a duplicate charge.
func (a *API) withIdempotency(scope string, handler moneyHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, _ := session.FromContext(r.Context())

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "request body too large or unreadable")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		key := strings.TrimSpace(r.Header.Get(idempotency.Header))
		if len(key) > 128 {
			writeError(w, r, http.StatusBadRequest, "Idempotency-Key too long")
			return
		}
		if key == "" {
			key = idempotency.DeriveKey(r.Method, r.URL.Path, sess.TenantID, body)
		}

		if rec, ok, err := a.idem.Lookup(r.Context(), sess.TenantID, scope, key); err != nil {
			obs.LogError("idempotency lookup failed", err, map[string]any{"scope": scope})
			writeError(w, r, http.StatusServiceUnavailable, "idempotency store unavailable")
			return
		} else if ok {
			obs.IdempotencyReplay()
			w.Header().Set(idempotency.Header, key)
			respondRaw(w, rec.Status, rec.Body)
			return
		}

		status, payload := handler(w, r, sess, body)
		respBody, err := json.Marshal(payload)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}

		w.Header().Set(idempotency.Header, key)

		// Only successful outcomes are recorded. A validation failure must
		// not pin the key: the client fixes the payload and retries under
		// the same key, and the corrected request has to execute.
		if status >= 400 {
			respondRaw(w, status, respBody)
			return
		}

		stored, inserted, err := a.idem.Insert(r.Context(), idempotency.Record{
			TenantID:  sess.TenantID,
			Scope:     scope,
			Key:       key,
			Status:    status,
			Body:      respBody,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			// Recording failed but the mutation committed; answering the
			// client wins over replay protection.
			obs.LogError("idempotency store failed", err, map[string]any{"scope": scope})
			respondRaw(w, status, respBody)
			return
		}
		if !inserted {
			// Lost the race to a concurrent writer; its response is the
			// canonical one.
			obs.IdempotencyReplay()
			respondRaw(w, stored.Status, stored.Body)
			return
		}
		respondRaw(w, status, respBody)
	}
}
