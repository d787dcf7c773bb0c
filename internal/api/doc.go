// Package api exposes the referral tracker over HTTP.
//
// Routes live under /api (referrals CRUD, the resend action, analytics and
// snapshot archiving). Health probes and Prometheus metrics sit at the root.
// Errors use the {"detail": ...} envelope from internal/pkg/httputil.
package api
