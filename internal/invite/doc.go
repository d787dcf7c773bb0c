// Package invite delivers referral invitations.
//
// Two senders satisfy referral.Sender: SimulatedSender stands in for a real
// mail provider with a fixed, cancellable delay, and SESSender renders the
// invitation with Liquid templates and hands it to AWS SES.
package invite
