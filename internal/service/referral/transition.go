package referral

import (
	"time"

	"github.com/ignite/referral-tracker/internal/domain"
)

// ApplyStatus moves r to next, enforcing the non-decreasing rank rule and
// keeping joined_date in step with the JOINED status. On error r is untouched.
func ApplyStatus(r *domain.Referral, next domain.ReferralStatus, now time.Time) error {
	if next == r.Status {
		return nil
	}
	if !r.Status.CanMoveTo(next) {
		return &BackwardTransitionError{From: r.Status, To: next}
	}

	switch {
	case next == domain.StatusJoined:
		joined := now
		r.JoinedDate = &joined
	case r.Status == domain.StatusJoined:
		r.JoinedDate = nil
	}
	r.Status = next
	return nil
}
