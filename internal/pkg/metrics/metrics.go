package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for referral operations.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ReferralsCreated  prometheus.Counter
	ReferralsDeleted  prometheus.Counter
	StatusTransitions *prometheus.CounterVec
	Resends           *prometheus.CounterVec
	SendDuration      prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ReferralsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "referral_tracker_referrals_created_total",
			Help: "Total number of referrals created",
		}),
		ReferralsDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "referral_tracker_referrals_deleted_total",
			Help: "Total number of referrals deleted",
		}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_tracker_status_transitions_total",
			Help: "Status changes applied, by source and target status",
		}, []string{"from", "to"}),
		Resends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "referral_tracker_resends_total",
			Help: "Invitation resend attempts by outcome",
		}, []string{"outcome"}),
		SendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "referral_tracker_invitation_send_seconds",
			Help:    "Time spent delivering an invitation",
			Buckets: []float64{0.1, 0.5, 1, 2, 3, 5, 10},
		}),
	}
}

// IncCreated counts a created referral.
func (m *Metrics) IncCreated() {
	if m == nil {
		return
	}
	m.ReferralsCreated.Inc()
}

// IncDeleted counts a deleted referral.
func (m *Metrics) IncDeleted() {
	if m == nil {
		return
	}
	m.ReferralsDeleted.Inc()
}

// ObserveTransition counts a status change.
func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(from, to).Inc()
}

// ObserveResend counts a resend attempt with the given outcome
// ("sent", "cooldown", "invalid_state", "in_progress", "conflict", "failed").
func (m *Metrics) ObserveResend(outcome string) {
	if m == nil {
		return
	}
	m.Resends.WithLabelValues(outcome).Inc()
}

// ObserveSend records how long a delivery took.
func (m *Metrics) ObserveSend(d time.Duration) {
	if m == nil {
		return
	}
	m.SendDuration.Observe(d.Seconds())
}
