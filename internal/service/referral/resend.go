package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/referral-tracker/internal/domain"
	"github.com/ignite/referral-tracker/internal/pkg/distlock"
	"github.com/ignite/referral-tracker/internal/pkg/logger"
)

// DefaultCooldown is the minimum time between two sends to the same referral.
const DefaultCooldown = 30 * time.Second

func resendLockKey(id string) string {
	return "referral:resend:" + id
}

// CheckResend reports whether an invitation may be resent to r at now.
// Returns ErrInvalidState or a *CooldownError.
func CheckResend(r *domain.Referral, now time.Time, cooldown time.Duration) error {
	if r.Status != domain.StatusInvitationSent {
		return fmt.Errorf("%w (current status: %s)", ErrInvalidState, r.Status.Label())
	}
	elapsed := now.Sub(r.LastSentAt)
	if elapsed < cooldown {
		return &CooldownError{Cooldown: cooldown, Remaining: cooldown - elapsed}
	}
	return nil
}

// Resend delivers the invitation again and stamps last_sent_at.
//
// A per-referral lock is held from the precondition check until the timestamp
// is written, so two concurrent calls cannot both pass the cooldown and both
// send. The timestamp write is additionally a compare-and-swap on the
// last_sent_at value the check observed. If delivery fails nothing is written.
func (s *Service) Resend(ctx context.Context, id string) (*domain.Referral, error) {
	lock := s.locks(resendLockKey(id), s.cfg.LockTTL)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire resend lock: %w", err)
	}
	if !ok {
		s.metrics.ObserveResend("in_progress")
		return nil, ErrResendInProgress
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("release resend lock failed", "referral_id", id, "error", err)
		}
	}()

	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := CheckResend(r, s.now(), s.cfg.Cooldown); err != nil {
		var cd *CooldownError
		if errors.As(err, &cd) {
			s.metrics.ObserveResend("cooldown")
		} else {
			s.metrics.ObserveResend("invalid_state")
		}
		return nil, err
	}

	// A slow provider must not outlive the lock TTL.
	stopKeepAlive := distlock.KeepAlive(ctx, lock, s.cfg.LockTTL, s.cfg.LockTTL/2)
	start := time.Now()
	err = s.sender.SendInvitation(ctx, r)
	stopKeepAlive()
	if err != nil {
		s.metrics.ObserveResend("failed")
		logger.Error("invitation send failed", "referral_id", id, "email", r.Email, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	s.metrics.ObserveSend(time.Since(start))

	updated, err := s.repo.MarkResent(ctx, id, r.LastSentAt, s.now())
	if err != nil {
		if errors.Is(err, ErrResendConflict) {
			s.metrics.ObserveResend("conflict")
		}
		return nil, err
	}

	s.metrics.ObserveResend("sent")
	logger.Info("invitation resent", "referral_id", id, "email", updated.Email)
	return updated, nil
}
