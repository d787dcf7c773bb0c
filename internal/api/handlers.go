package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/referral-tracker/internal/domain"
	"github.com/ignite/referral-tracker/internal/pkg/httputil"
	"github.com/ignite/referral-tracker/internal/pkg/logger"
	"github.com/ignite/referral-tracker/internal/service/referral"
	"github.com/ignite/referral-tracker/internal/storage"
)

// Handlers contains the HTTP handlers for the referral API.
type Handlers struct {
	svc     *referral.Service
	archive storage.Archive
}

// NewHandlers creates the handlers. archive may be nil, which disables the
// snapshot endpoints.
func NewHandlers(svc *referral.Service, archive storage.Archive) *Handlers {
	return &Handlers{svc: svc, archive: archive}
}

// ListReferrals returns a page of referrals, newest first.
//
//	GET /api/referrals?status=&page=&page_size=
func (h *Handlers) ListReferrals(w http.ResponseWriter, r *http.Request) {
	status := domain.ReferralStatus(r.URL.Query().Get("status"))
	params := ParsePagination(r)

	list, err := h.svc.List(r.Context(), referral.ListFilter{
		Status: status,
		Limit:  params.Limit,
		Offset: params.Offset,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	total, err := h.svc.Count(r.Context(), status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, NewPage(r, list, params, total))
}

// CreateReferral creates a referral in INVITATION_SENT unless a status is given.
//
//	POST /api/referrals
func (h *Handlers) CreateReferral(w http.ResponseWriter, r *http.Request) {
	var in referral.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	ref, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.Created(w, ref)
}

// GetReferral returns one referral.
//
//	GET /api/referrals/{id}
func (h *Handlers) GetReferral(w http.ResponseWriter, r *http.Request) {
	ref, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, ref)
}

// UpdateReferral applies a partial update. Read-only fields in the body are
// ignored.
//
//	PATCH /api/referrals/{id}
func (h *Handlers) UpdateReferral(w http.ResponseWriter, r *http.Request) {
	var in referral.UpdateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	ref, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, ref)
}

// DeleteReferral removes a referral.
//
//	DELETE /api/referrals/{id}
func (h *Handlers) DeleteReferral(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.NoContent(w)
}

// ResendInvitation re-delivers the invitation subject to the status and
// cooldown rules. The response is sent once delivery finishes.
//
//	POST /api/referrals/{id}/resend
func (h *Handlers) ResendInvitation(w http.ResponseWriter, r *http.Request) {
	ref, err := h.svc.Resend(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, ref)
}

// GetAnalytics returns the aggregate conversion figures.
//
//	GET /api/analytics
func (h *Handlers) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Analytics(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, st)
}

// CreateSnapshot archives the current analytics.
//
//	POST /api/analytics/snapshots
func (h *Handlers) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "archive_disabled", "snapshot archive is not configured")
		return
	}
	st, err := h.svc.Analytics(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	snap := domain.StatsSnapshot{Stats: st, TakenAt: h.svc.Now()}
	key, err := h.archive.Save(r.Context(), snap)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	logger.Info("analytics snapshot archived", "key", key)
	httputil.Created(w, map[string]any{"key": key, "snapshot": snap})
}

// ListSnapshots returns archived snapshots, newest first.
//
//	GET /api/analytics/snapshots?limit=
func (h *Handlers) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "archive_disabled", "snapshot archive is not configured")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	snaps, err := h.archive.Recent(r.Context(), limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"results": snaps})
}

// writeServiceError maps service errors onto HTTP responses. Anything not
// recognised is a 500 with the cause logged, never echoed.
func writeServiceError(w http.ResponseWriter, err error) {
	var ve *referral.ValidationError
	var bt *referral.BackwardTransitionError
	var cd *referral.CooldownError

	switch {
	case errors.As(err, &ve):
		httputil.ValidationFailed(w, ve.Field, ve.Message)
	case errors.As(err, &bt):
		httputil.Error(w, http.StatusBadRequest, "invalid_transition", bt.Error())
	case errors.As(err, &cd):
		w.Header().Set("Retry-After", strconv.Itoa(cd.RetryAfter()))
		httputil.Error(w, http.StatusBadRequest, "cooldown", cd.Error())
	case errors.Is(err, referral.ErrInvalidState):
		httputil.Error(w, http.StatusBadRequest, "invalid_state", err.Error())
	case errors.Is(err, referral.ErrDuplicateEmail):
		httputil.ValidationFailed(w, "email", err.Error())
	case errors.Is(err, referral.ErrNotFound):
		httputil.NotFound(w, "referral not found")
	case errors.Is(err, referral.ErrResendInProgress):
		httputil.Error(w, http.StatusConflict, "resend_in_progress", err.Error())
	case errors.Is(err, referral.ErrResendConflict):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, referral.ErrSendFailed):
		logger.Error("resend failed", "error", err)
		httputil.Error(w, http.StatusBadGateway, "send_failed", referral.ErrSendFailed.Error())
	default:
		httputil.InternalError(w, err)
	}
}
