package referral

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ignite/referral-tracker/internal/domain"
)

// Sentinel errors for the referral service layer.
var (
	ErrNotFound         = errors.New("referral not found")
	ErrDuplicateEmail   = errors.New("a referral with this email already exists")
	ErrInvalidState     = errors.New("cannot resend invitation for a referral that is not in '" + domain.StatusInvitationSent.Label() + "' status")
	ErrResendInProgress = errors.New("an invitation for this referral is already being sent")
	ErrResendConflict   = errors.New("referral changed while the invitation was being sent")
	ErrSendFailed       = errors.New("invitation delivery failed")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// BackwardTransitionError is returned when an update would lower a
// referral's status rank.
type BackwardTransitionError struct {
	From domain.ReferralStatus
	To   domain.ReferralStatus
}

func (e *BackwardTransitionError) Error() string {
	return fmt.Sprintf("cannot move status backward from '%s' to '%s'", e.From, e.To)
}

// CooldownError is returned when a resend is attempted before the cooldown
// since the last send has elapsed.
type CooldownError struct {
	Cooldown  time.Duration
	Remaining time.Duration
}

// RemainingSeconds is the wait time rounded to one decimal place.
func (e *CooldownError) RemainingSeconds() float64 {
	return math.Round(e.Remaining.Seconds()*10) / 10
}

// RetryAfter is the wait time rounded up to whole seconds.
func (e *CooldownError) RetryAfter() int {
	return int(math.Ceil(e.Remaining.Seconds()))
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cannot resend within %d seconds, please wait %.1f more seconds",
		int(e.Cooldown.Seconds()), e.RemainingSeconds())
}
