package invite

import (
	"context"
	"time"

	"github.com/ignite/referral-tracker/internal/domain"
	"github.com/ignite/referral-tracker/internal/pkg/logger"
)

// DefaultSimulatedDelay mirrors the latency of a real provider round trip.
const DefaultSimulatedDelay = 3 * time.Second

// SimulatedSender pretends to send an invitation by waiting Delay.
type SimulatedSender struct {
	Delay time.Duration
}

// NewSimulatedSender creates a simulated sender. A zero delay returns at once.
func NewSimulatedSender(delay time.Duration) *SimulatedSender {
	return &SimulatedSender{Delay: delay}
}

// SendInvitation blocks for the configured delay or until ctx is done.
func (s *SimulatedSender) SendInvitation(ctx context.Context, r *domain.Referral) error {
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	logger.Debug("simulated invitation sent", "referral_id", r.ID, "email", r.Email)
	return nil
}
