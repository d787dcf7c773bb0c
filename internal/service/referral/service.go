package referral

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/referral-tracker/internal/domain"
	"github.com/ignite/referral-tracker/internal/pkg/distlock"
	"github.com/ignite/referral-tracker/internal/pkg/logger"
	"github.com/ignite/referral-tracker/internal/pkg/metrics"
)

// Config tunes the resend gate.
type Config struct {
	// Cooldown is the minimum time between sends to one referral.
	Cooldown time.Duration
	// LockTTL bounds how long a crashed resend can hold its referral's lock.
	// It must exceed the send duration.
	LockTTL time.Duration
}

// Service implements referral business logic. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo    Repository
	sender  Sender
	locks   distlock.Factory
	metrics *metrics.Metrics
	cfg     Config
	now     func() time.Time
}

// NewService creates a referral service. A nil locks factory falls back to
// process-local locking.
func NewService(repo Repository, sender Sender, locks distlock.Factory, cfg Config) *Service {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	if locks == nil {
		locks = distlock.NewFactory(nil, nil)
	}
	return &Service{
		repo:   repo,
		sender: sender,
		locks:  locks,
		cfg:    cfg,
		now:    defaultClock,
	}
}

// Postgres keeps microseconds; truncating here makes every backend agree on
// the timestamps it hands back.
func defaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// SetMetrics attaches Prometheus collectors.
func (s *Service) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// CreateInput holds the fields for creating a new referral.
type CreateInput struct {
	FirstName string                `json:"first_name"`
	LastName  string                `json:"last_name"`
	Email     string                `json:"email"`
	Status    domain.ReferralStatus `json:"status,omitempty"`
}

// UpdateInput holds the mutable fields for a partial update.
// Nil fields are left unchanged.
type UpdateInput struct {
	FirstName *string                `json:"first_name,omitempty"`
	LastName  *string                `json:"last_name,omitempty"`
	Email     *string                `json:"email,omitempty"`
	Status    *domain.ReferralStatus `json:"status,omitempty"`
}

// Get returns a single referral.
func (s *Service) Get(ctx context.Context, id string) (*domain.Referral, error) {
	return s.repo.Get(ctx, id)
}

// List returns referrals newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Referral, error) {
	if f.Status != "" {
		if err := validateStatus(f.Status); err != nil {
			return nil, err
		}
	}
	return s.repo.List(ctx, f)
}

// Create validates and persists a new referral. The email is stored
// trimmed and lower-cased; both timestamps are set to now.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Referral, error) {
	first, err := validateName("first_name", in.FirstName)
	if err != nil {
		return nil, err
	}
	last, err := validateName("last_name", in.LastName)
	if err != nil {
		return nil, err
	}
	email, err := validateEmail(in.Email)
	if err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = domain.StatusInvitationSent
	}
	if err := validateStatus(status); err != nil {
		return nil, err
	}

	now := s.now()
	r := &domain.Referral{
		ID:           uuid.New().String(),
		FirstName:    first,
		LastName:     last,
		Email:        email,
		Status:       status,
		ReferredDate: now,
		LastSentAt:   now,
	}
	if status == domain.StatusJoined {
		r.JoinedDate = &now
	}

	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}

	s.metrics.IncCreated()
	logger.Info("referral created", "referral_id", r.ID, "email", r.Email, "status", r.Status)
	return r, nil
}

// Update applies a partial update atomically. A status change runs through
// ApplyStatus; if it is rejected the stored referral is left exactly as it was.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*domain.Referral, error) {
	var first, last, email string
	var err error
	if in.FirstName != nil {
		if first, err = validateName("first_name", *in.FirstName); err != nil {
			return nil, err
		}
	}
	if in.LastName != nil {
		if last, err = validateName("last_name", *in.LastName); err != nil {
			return nil, err
		}
	}
	if in.Email != nil {
		if email, err = validateEmail(*in.Email); err != nil {
			return nil, err
		}
	}
	if in.Status != nil {
		if err := validateStatus(*in.Status); err != nil {
			return nil, err
		}
	}

	var from domain.ReferralStatus
	now := s.now()
	updated, err := s.repo.Update(ctx, id, func(r *domain.Referral) error {
		from = r.Status
		if in.Status != nil {
			if err := ApplyStatus(r, *in.Status, now); err != nil {
				return err
			}
		}
		if in.FirstName != nil {
			r.FirstName = first
		}
		if in.LastName != nil {
			r.LastName = last
		}
		if in.Email != nil {
			r.Email = email
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if updated.Status != from {
		s.metrics.ObserveTransition(string(from), string(updated.Status))
		logger.Info("referral status changed", "referral_id", id, "from", from, "to", updated.Status)
	}
	return updated, nil
}

// Delete removes a referral.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.metrics.IncDeleted()
	logger.Info("referral deleted", "referral_id", id)
	return nil
}

// Count returns how many referrals exist, optionally restricted to one status.
func (s *Service) Count(ctx context.Context, status domain.ReferralStatus) (int, error) {
	counts, err := s.repo.StatusCounts(ctx)
	if err != nil {
		return 0, err
	}
	if status != "" {
		return counts[status], nil
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time { return s.now() }
