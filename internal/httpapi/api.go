// Package httpapi is the HTTP layer: the request gatekeeper that every
// request passes through, and the handlers behind it.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"ezduka.app/internal/auth"
	"ezduka.app/internal/billing"
	"ezduka.app/internal/csrf"
	"ezduka.app/internal/feed"
	"ezduka.app/internal/gate"
	"ezduka.app/internal/idempotency"
	"ezduka.app/internal/obs"
	"ezduka.app/internal/purchase"
	"ezduka.app/internal/ratelimit"
	"ezduka.app/internal/tenant"
)

// ReadyProbe — readiness check (e.g. DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options wires the API's collaborators.
type Options struct {
	Tenants     tenant.Store
	Purchases   purchase.Store
	Billing     billing.Store
	Idempotency idempotency.Store
	Limiter     ratelimit.Limiter
	Verifier    auth.CredentialVerifier
	Feed        *feed.Feed
	Ready       ReadyProbe
	SessionTTL  time.Duration
	CsrfBypass  []string
	Rules       []gate.Rule
	Version     string
}

// API — HTTP layer.
type API struct {
	mux        *http.ServeMux
	tenants    tenant.Store
	purchases  purchase.Store
	billing    billing.Store
	idem       idempotency.Store
	limiter    ratelimit.Limiter
	verifier   auth.CredentialVerifier
	feed       *feed.Feed
	guard      *csrf.Guard
	rules      []gate.Rule
	readyProbe ReadyProbe
	sessionTTL time.Duration
	logins     *loginThrottle
	version    string
}

func New(opts Options) *API {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if len(opts.Rules) == 0 {
		opts.Rules = gate.DefaultRules()
	}
	a := &API{
		mux:        http.NewServeMux(),
		tenants:    opts.Tenants,
		purchases:  opts.Purchases,
		billing:    opts.Billing,
		idem:       opts.Idempotency,
		limiter:    opts.Limiter,
		verifier:   opts.Verifier,
		feed:       opts.Feed,
		guard:      csrf.NewGuard(opts.CsrfBypass...),
		rules:      opts.Rules,
		readyProbe: opts.Ready,
		sessionTTL: opts.SessionTTL,
		logins:     newLoginThrottle(1, 5),
		version:    opts.Version,
	}

	// health/ready/metrics
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/api/auth/login", a.handleLogin)
	a.mux.HandleFunc("/api/auth/logout", a.handleLogout)

	// tenant
	a.mux.HandleFunc("/api/tenant/status", a.handleTenantStatus)
	a.mux.HandleFunc("/api/admin/tenants", a.handleAdminTenants)
	a.mux.HandleFunc("/api/admin/tenants/", a.handleAdminTenantResource)

	// money
	a.mux.HandleFunc("/api/sales/quick", a.handleQuickSale)
	a.mux.HandleFunc("/api/purchase-orders", a.handlePurchaseOrdersCollection)
	a.mux.HandleFunc("/api/purchase-orders/", a.handlePurchaseOrderResource)
	a.mux.HandleFunc("/api/invoices/", a.handleInvoiceResource)
	a.mux.HandleFunc("/api/payments/request", a.handlePaymentRequest)
	a.mux.HandleFunc("/api/payments/webhook", a.handlePaymentWebhook)

	// activity feed
	a.mux.HandleFunc("/api/feed", a.handleFeed)
	a.mux.HandleFunc("/api/feed/live", a.handleFeedLive)

	// pages
	a.registerPages()

	return a
}

// Handler returns the full middleware chain. The gatekeeper sits inside the
// observability wrappers so rejected requests are still measured and logged.
func (a *API) Handler() http.Handler {
	h := a.gatekeeper(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- infra handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "ezduka-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
