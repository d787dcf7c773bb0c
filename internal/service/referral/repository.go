package referral

import (
	"context"
	"time"

	"github.com/ignite/referral-tracker/internal/domain"
)

// Repository defines the data access contract for referrals.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single referral. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Referral, error)

	// List returns referrals matching the filter, ordered by referred_date DESC.
	List(ctx context.Context, filter ListFilter) ([]domain.Referral, error)

	// Create inserts a new referral. Returns ErrDuplicateEmail if another
	// referral already uses the (normalized) email.
	Create(ctx context.Context, r *domain.Referral) error

	// Update loads the referral, passes a copy to mutate and persists the
	// result atomically. If mutate returns an error nothing is written and
	// that error is returned. Returns ErrNotFound or ErrDuplicateEmail.
	Update(ctx context.Context, id string, mutate func(r *domain.Referral) error) (*domain.Referral, error)

	// Delete removes a referral. Returns ErrNotFound if it doesn't exist.
	Delete(ctx context.Context, id string) error

	// MarkResent sets last_sent_at to sentAt only if the referral is still at
	// INVITATION_SENT and last_sent_at still equals observed. Returns
	// ErrNotFound if the referral is gone and ErrResendConflict if it changed.
	MarkResent(ctx context.Context, id string, observed, sentAt time.Time) (*domain.Referral, error)

	// StatusCounts returns the number of referrals per status, read from a
	// single consistent snapshot.
	StatusCounts(ctx context.Context) (map[domain.ReferralStatus]int, error)
}

// ListFilter controls filtering and pagination for referral lists.
// A zero Limit returns every match.
type ListFilter struct {
	Status domain.ReferralStatus
	Limit  int
	Offset int
}

// Sender delivers an invitation to the referral's email address.
// Send is all-or-nothing from the service's point of view: a nil error means
// the invitation went out. Implementations must be safe for concurrent use.
type Sender interface {
	SendInvitation(ctx context.Context, r *domain.Referral) error
}
