package referral

import (
	"context"
	"math"

	"github.com/ignite/referral-tracker/internal/domain"
)

// ComputeStats derives the analytics figures from per-status counts.
// Conversion rate is approved/total as a percentage rounded to two decimals,
// and 0 for an empty store.
func ComputeStats(counts map[domain.ReferralStatus]int) domain.Stats {
	var st domain.Stats
	for status, n := range counts {
		st.TotalInvited += n
		if status == domain.StatusInvitationSent {
			st.InvitationsSentCount += n
		}
		if status.IsApproved() {
			st.ApprovedCount += n
		}
	}
	if st.TotalInvited > 0 {
		rate := float64(st.ApprovedCount) / float64(st.TotalInvited) * 100
		st.ConversionRate = math.Round(rate*100) / 100
	}
	return st
}

// Analytics computes the aggregate figures over one snapshot of the store.
func (s *Service) Analytics(ctx context.Context) (domain.Stats, error) {
	counts, err := s.repo.StatusCounts(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	return ComputeStats(counts), nil
}
