package domain

import (
	"strings"
	"time"
)

// ReferralStatus enumerates the lifecycle states of a referral.
type ReferralStatus string

const (
	StatusInvitationSent      ReferralStatus = "INVITATION_SENT"
	StatusApplicationReceived ReferralStatus = "APPLICATION_RECEIVED"
	StatusJoined              ReferralStatus = "JOINED"
	StatusDeclined            ReferralStatus = "DECLINED"
)

// statusRank is the fixed progression order. A referral may never move to a
// status with a lower rank.
var statusRank = map[ReferralStatus]int{
	StatusInvitationSent:      0,
	StatusApplicationReceived: 1,
	StatusJoined:              2,
	StatusDeclined:            3,
}

// Statuses lists every status in rank order.
var Statuses = []ReferralStatus{
	StatusInvitationSent,
	StatusApplicationReceived,
	StatusJoined,
	StatusDeclined,
}

// Valid reports whether s is one of the known statuses.
func (s ReferralStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Rank returns the ordinal of s in the progression, or -1 if s is unknown.
func (s ReferralStatus) Rank() int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

// Label returns the human readable name shown to users.
func (s ReferralStatus) Label() string {
	switch s {
	case StatusInvitationSent:
		return "Invitation Sent"
	case StatusApplicationReceived:
		return "Application Received"
	case StatusJoined:
		return "Joined"
	case StatusDeclined:
		return "Declined"
	}
	return string(s)
}

// IsApproved reports whether s counts toward the conversion rate.
func (s ReferralStatus) IsApproved() bool {
	return s == StatusApplicationReceived || s == StatusJoined
}

// CanMoveTo reports whether a transition from s to next keeps the rank
// non-decreasing.
func (s ReferralStatus) CanMoveTo(next ReferralStatus) bool {
	return next.Rank() >= s.Rank()
}

// Referral is a tracked prospective joiner with contact info and lifecycle status.
type Referral struct {
	ID           string         `json:"id" db:"id"`
	FirstName    string         `json:"first_name" db:"first_name"`
	LastName     string         `json:"last_name" db:"last_name"`
	Email        string         `json:"email" db:"email"`
	Status       ReferralStatus `json:"status" db:"status"`
	ReferredDate time.Time      `json:"referred_date" db:"referred_date"`
	LastSentAt   time.Time      `json:"last_sent_at" db:"last_sent_at"`
	JoinedDate   *time.Time     `json:"joined_date" db:"joined_date"`
}

// FullName joins first and last name.
func (r *Referral) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
// All uniqueness checks operate on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
