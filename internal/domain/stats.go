package domain

import "time"

// Stats is the aggregate view returned by the analytics endpoint.
type Stats struct {
	TotalInvited         int     `json:"total_invited"`
	InvitationsSentCount int     `json:"invitations_sent_count"`
	ApprovedCount        int     `json:"approved_count"`
	ConversionRate       float64 `json:"conversion_rate"`
}

// StatsSnapshot is an archived copy of Stats taken at a point in time.
type StatsSnapshot struct {
	Stats
	TakenAt time.Time `json:"taken_at"`
}
