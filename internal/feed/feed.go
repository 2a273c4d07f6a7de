// Package feed fan-outs activity events to live subscribers (SSE clients)
// and keeps a short per-tenant history for the activity page.
package feed

import (
	"context"
	"sync"
	"time"

	"ezduka.app/internal/ids"
)

// Event describes one activity item: a sale, a settled purchase order, a
// confirmed payment.
type Event struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	RefType   string    `json:"ref_type,omitempty"`
	RefID     string    `json:"ref_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Well-known event types.
const (
	TypeSale             = "sale"
	TypeInvoicePaid      = "invoice_paid"
	TypePurchaseSettled  = "purchase_settled"
	TypePaymentConfirmed = "payment_confirmed"
	TypeTenantStatus     = "tenant_status"
)

const historySize = 64

// Feed fan-outs events to all active subscribers of a tenant.
type Feed struct {
	mu      sync.RWMutex
	subs    map[int]subscriber
	next    int
	history map[string][]Event
}

type subscriber struct {
	tenantID string
	ch       chan Event
}

// New initialises an empty feed.
func New() *Feed {
	return &Feed{
		subs:    make(map[int]subscriber),
		history: make(map[string][]Event),
	}
}

// Subscribe registers a subscriber for one tenant and returns a channel which
// will receive that tenant's events. The channel is closed when the provided
// context ends.
func (f *Feed) Subscribe(ctx context.Context, tenantID string) <-chan Event {
	ch := make(chan Event, 16)

	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = subscriber{tenantID: tenantID, ch: ch}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, id)
		close(ch)
		f.mu.Unlock()
	}()

	return ch
}

// Publish records the event and fan-outs it to the tenant's subscribers.
func (f *Feed) Publish(evt Event) {
	if evt.ID == "" {
		evt.ID = ids.New()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}

	f.mu.Lock()
	hist := append(f.history[evt.TenantID], evt)
	if len(hist) > historySize {
		hist = hist[len(hist)-historySize:]
	}
	f.history[evt.TenantID] = hist
	f.mu.Unlock()

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sub := range f.subs {
		if sub.tenantID != evt.TenantID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Recent returns up to limit of the tenant's most recent events, newest first.
func (f *Feed) Recent(tenantID string, limit int) []Event {
	if limit <= 0 || limit > historySize {
		limit = historySize
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	hist := f.history[tenantID]
	if len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	out := make([]Event, len(hist))
	for i, evt := range hist {
		out[len(hist)-1-i] = evt
	}
	return out
}
