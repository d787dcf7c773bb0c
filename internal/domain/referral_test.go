package domain

import "testing"

func TestStatusRank(t *testing.T) {
	for i, s := range Statuses {
		if s.Rank() != i {
			t.Errorf("%s: rank = %d, want %d", s, s.Rank(), i)
		}
	}
	if ReferralStatus("PENDING").Rank() != -1 {
		t.Error("unknown status should have rank -1")
	}
}

func TestCanMoveTo(t *testing.T) {
	tests := []struct {
		from, to ReferralStatus
		want     bool
	}{
		{StatusInvitationSent, StatusInvitationSent, true},
		{StatusInvitationSent, StatusJoined, true},
		{StatusApplicationReceived, StatusJoined, true},
		{StatusJoined, StatusDeclined, true},
		{StatusJoined, StatusApplicationReceived, false},
		{StatusDeclined, StatusInvitationSent, false},
		{StatusDeclined, StatusJoined, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanMoveTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsApproved(t *testing.T) {
	if StatusInvitationSent.IsApproved() || StatusDeclined.IsApproved() {
		t.Error("sent/declined must not count as approved")
	}
	if !StatusApplicationReceived.IsApproved() || !StatusJoined.IsApproved() {
		t.Error("application received/joined must count as approved")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Jane.Doe@Example.COM \t"); got != "jane.doe@example.com" {
		t.Errorf("NormalizeEmail = %q", got)
	}
}
