package purchase

// Outcome is the result of reconciling an incoming payment against a
// purchase order.
type Outcome struct {
	NewPaid int64
	Status  Status
	// StampPaidAt is true only on the first transition into settled state.
	// The stock increments ride the same transition, so callers apply them
	// iff StampPaidAt is set.
	StampPaidAt bool
}

// Reconcile turns an incoming payment into the new paid total and lifecycle
// status. amount == nil means "mark paid in full" (the no-amount mark-paid
// flow): the order is considered received as-is.
//
// Invariants preserved: 0 <= NewPaid <= total, and the paid-at stamp fires
// at most once per order — an already-settled order neither exceeds its
// total nor restamps.
func Reconcile(currentPaid, total int64, amount *int64) Outcome {
	incoming := int64(0)
	if amount != nil {
		incoming = *amount
	}
	if currentPaid < 0 {
		currentPaid = 0
	}
	if incoming < 0 {
		incoming = 0
	}

	newPaid := currentPaid + incoming
	if newPaid > total {
		newPaid = total
	}

	var status Status
	switch {
	case newPaid >= total && total > 0:
		status = StatusReceived
	case amount != nil:
		status = StatusPartial
	default:
		status = StatusReceived
	}

	alreadySettled := total > 0 && currentPaid >= total
	stamp := status == StatusReceived && newPaid >= total && total > 0 && !alreadySettled

	return Outcome{NewPaid: newPaid, Status: status, StampPaidAt: stamp}
}
