// Package policy decides and applies the cancellation/refund rules.
package policy

import (
	"time"

	"github.com/kojjob/wellness-connect-sub000/internal/booking"
)

// Decision is the pure outcome of the refund rule, before payment state is
// taken into account.
type Decision struct {
	RefundEligible bool
	Reason         string
}

// Decide applies the role/time rule: providers absorb the cost of their own
// cancellations and always refund; patients refund only with at least cutoff
// notice. The boundary is inclusive — exactly cutoff before start is still
// eligible.
func Decide(role booking.ActorRole, startTime, now time.Time, cutoff time.Duration) Decision {
	if role == booking.RoleProvider {
		return Decision{RefundEligible: true, Reason: "provider cancellation"}
	}

	notice := startTime.Sub(now)
	if notice >= cutoff {
		return Decision{RefundEligible: true, Reason: "cancelled with sufficient notice"}
	}
	return Decision{RefundEligible: false, Reason: "cancelled with insufficient notice"}
}
