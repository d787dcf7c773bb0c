// Package referral implements the referral lifecycle service.
//
// It owns the two business rules of the tracker: a referral's status may
// never move backward in the fixed progression, and an invitation may only be
// resent while the referral is still at INVITATION_SENT and the cooldown since
// the last send has elapsed. It also computes the aggregate analytics.
//
// The service depends on the Repository and Sender interfaces defined here.
// Repository implementations live in repository/postgres/ and repository/memory/;
// senders live in invite/. This package never imports net/http or database/sql.
package referral
