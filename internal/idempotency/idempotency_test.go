package idempotency

import "testing"

func TestDeriveKeyIsDeterministic(t *testing.T) {
	body := []byte(`{"amount":500,"item":"sugar"}`)
	a := DeriveKey("POST", "/api/sales/quick", "tenant-1", body)
	b := DeriveKey("POST", "/api/sales/quick", "tenant-1", body)
	if a != b {
		t.Fatalf("same inputs must derive the same key: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected sha256 hex, got %d chars", len(a))
	}
}

func TestDeriveKeyVariesPerField(t *testing.T) {
	body := []byte(`{"amount":500}`)
	base := DeriveKey("POST", "/api/sales/quick", "tenant-1", body)

	variants := []string{
		DeriveKey("PATCH", "/api/sales/quick", "tenant-1", body),
		DeriveKey("POST", "/api/payments/request", "tenant-1", body),
		DeriveKey("POST", "/api/sales/quick", "tenant-2", body),
		DeriveKey("POST", "/api/sales/quick", "tenant-1", []byte(`{"amount":501}`)),
	}
	for i, v := range variants {
		if v == base {
			t.Fatalf("variant %d collided with base key", i)
		}
	}
}
