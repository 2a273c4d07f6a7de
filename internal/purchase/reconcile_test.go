package purchase

import "testing"

func amt(v int64) *int64 { return &v }

func TestReconcile(t *testing.T) {
	cases := []struct {
		name        string
		currentPaid int64
		total       int64
		amount      *int64
		wantPaid    int64
		wantStatus  Status
		wantStamp   bool
	}{
		{"first partial payment", 0, 1000, amt(400), 400, StatusPartial, false},
		{"settling payment", 400, 1000, amt(600), 1000, StatusReceived, true},
		{"already settled", 1000, 1000, amt(50), 1000, StatusReceived, false},
		{"overpayment clamps to total", 0, 1000, amt(5000), 1000, StatusReceived, true},
		{"no amount marks received as-is", 300, 1000, nil, 300, StatusReceived, false},
		{"no amount on fully paid order", 1000, 1000, nil, 1000, StatusReceived, false},
		{"zero total never stamps", 0, 0, amt(100), 0, StatusPartial, false},
		{"negative amount treated as zero", 200, 1000, amt(-50), 200, StatusPartial, false},
	}
	for _, tc := range cases {
		out := Reconcile(tc.currentPaid, tc.total, tc.amount)
		if out.NewPaid != tc.wantPaid {
			t.Fatalf("%s: NewPaid=%d, want %d", tc.name, out.NewPaid, tc.wantPaid)
		}
		if out.Status != tc.wantStatus {
			t.Fatalf("%s: Status=%s, want %s", tc.name, out.Status, tc.wantStatus)
		}
		if out.StampPaidAt != tc.wantStamp {
			t.Fatalf("%s: StampPaidAt=%v, want %v", tc.name, out.StampPaidAt, tc.wantStamp)
		}
	}
}

func TestReconcilePaidNeverExceedsTotal(t *testing.T) {
	paid := int64(0)
	for i := 0; i < 10; i++ {
		out := Reconcile(paid, 1000, amt(300))
		if out.NewPaid < paid {
			t.Fatalf("paid amount regressed: %d -> %d", paid, out.NewPaid)
		}
		if out.NewPaid > 1000 {
			t.Fatalf("paid amount exceeded total: %d", out.NewPaid)
		}
		paid = out.NewPaid
	}
	if paid != 1000 {
		t.Fatalf("expected convergence to total, got %d", paid)
	}
}

func TestReconcileStampsExactlyOnce(t *testing.T) {
	stamps := 0
	paid := int64(0)
	for _, payment := range []int64{400, 600, 50, 25} {
		out := Reconcile(paid, 1000, amt(payment))
		if out.StampPaidAt {
			stamps++
		}
		paid = out.NewPaid
	}
	if stamps != 1 {
		t.Fatalf("expected exactly one stamp, got %d", stamps)
	}
}
