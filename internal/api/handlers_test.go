package api

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/referral-tracker/internal/config"
	"github.com/ignite/referral-tracker/internal/domain"
	"github.com/ignite/referral-tracker/internal/invite"
	"github.com/ignite/referral-tracker/internal/pkg/httputil"
	"github.com/ignite/referral-tracker/internal/pkg/logger"
	"github.com/ignite/referral-tracker/internal/pkg/metrics"
	"github.com/ignite/referral-tracker/internal/repository/memory"
	"github.com/ignite/referral-tracker/internal/service/referral"
	"github.com/ignite/referral-tracker/internal/storage"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	handler http.Handler
	clock   *testClock
}

func setupTestServer(t *testing.T, archive storage.Archive) *testEnv {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}

	svc := referral.NewService(memory.NewReferralRepo(), invite.NewSimulatedSender(0), nil, referral.Config{})
	svc.SetClock(clock.Now)
	reg := prometheus.NewRegistry()
	svc.SetMetrics(metrics.New(reg))

	srv := NewServer(
		config.ServerConfig{CORSOrigins: []string{"http://localhost:3000"}},
		NewHandlers(svc, archive),
		NewHealthChecker(nil, nil),
		reg,
	)
	return &testEnv{handler: srv.Handler(), clock: clock}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) create(t *testing.T, body string) domain.Referral {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/referrals/", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var ref domain.Referral
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ref))
	return ref
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCreateReferral(t *testing.T) {
	env := setupTestServer(t, nil)

	ref := env.create(t, `{"first_name":"Ada","last_name":"Lovelace","email":"  ADA@Example.com "}`)
	assert.Equal(t, "ada@example.com", ref.Email)
	assert.Equal(t, domain.StatusInvitationSent, ref.Status)
	assert.NotEmpty(t, ref.ID)
	assert.Nil(t, ref.JoinedDate)

	rec := env.do(t, http.MethodPost, "/api/referrals", `{"first_name":"B","last_name":"C","email":"ada@EXAMPLE.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "email", body.Field)
	assert.Contains(t, body.Detail, "already exists")
}

func TestCreateReferral_Validation(t *testing.T) {
	env := setupTestServer(t, nil)

	rec := env.do(t, http.MethodPost, "/api/referrals", `{"first_name":"","last_name":"C","email":"x@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "first_name", decodeError(t, rec).Field)

	rec = env.do(t, http.MethodPost, "/api/referrals", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListReferrals(t *testing.T) {
	env := setupTestServer(t, nil)
	first := env.create(t, `{"first_name":"A","last_name":"A","email":"a@example.com"}`)
	env.clock.Advance(time.Minute)
	second := env.create(t, `{"first_name":"B","last_name":"B","email":"b@example.com","status":"JOINED"}`)

	rec := env.do(t, http.MethodGet, "/api/referrals/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Count    int               `json:"count"`
		Next     *string           `json:"next"`
		Previous *string           `json:"previous"`
		Results  []domain.Referral `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 2, page.Count)
	require.Len(t, page.Results, 2)
	assert.Equal(t, second.ID, page.Results[0].ID, "newest first")
	assert.Equal(t, first.ID, page.Results[1].ID)
	assert.Nil(t, page.Next)
	assert.Nil(t, page.Previous)

	rec = env.do(t, http.MethodGet, "/api/referrals?page_size=1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Results, 1)
	require.NotNil(t, page.Next)
	assert.Contains(t, *page.Next, "page=2")

	rec = env.do(t, http.MethodGet, "/api/referrals?status=JOINED", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Count)
	assert.Equal(t, second.ID, page.Results[0].ID)

	rec = env.do(t, http.MethodGet, "/api/referrals?status=NOPE", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListReferrals_HugePage(t *testing.T) {
	env := setupTestServer(t, nil)
	env.create(t, `{"first_name":"A","last_name":"A","email":"a@example.com"}`)

	rec := env.do(t, http.MethodGet, "/api/referrals?page=184467440737095518", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var page struct {
		Count   int               `json:"count"`
		Results []domain.Referral `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Count)
	assert.Empty(t, page.Results)
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantPage  int
		wantLimit int
	}{
		{"defaults", "", 1, defaultPageSize},
		{"explicit", "page=3&page_size=10", 3, 10},
		{"caps page size", "page_size=5000", 1, maxPageSize},
		{"garbage", "page=x&page_size=-4", 1, defaultPageSize},
		{"huge page", "page=184467440737095518&page_size=100", math.MaxInt / 100, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/referrals?"+tt.query, nil)
			p := ParsePagination(r)
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantLimit, p.Limit)
			assert.GreaterOrEqual(t, p.Offset, 0)
			assert.Equal(t, (p.Page-1)*p.Limit, p.Offset)
		})
	}
}

func TestGetReferral_NotFound(t *testing.T) {
	env := setupTestServer(t, nil)
	rec := env.do(t, http.MethodGet, "/api/referrals/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "referral not found", decodeError(t, rec).Detail)
}

func TestUpdateReferral(t *testing.T) {
	env := setupTestServer(t, nil)
	ref := env.create(t, `{"first_name":"A","last_name":"B","email":"a@example.com"}`)

	rec := env.do(t, http.MethodPatch, "/api/referrals/"+ref.ID+"/", `{"status":"JOINED","id":"ignored"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got domain.Referral
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, ref.ID, got.ID)
	assert.Equal(t, domain.StatusJoined, got.Status)
	assert.NotNil(t, got.JoinedDate)

	rec = env.do(t, http.MethodPatch, "/api/referrals/"+ref.ID, `{"status":"INVITATION_SENT","first_name":"Z"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "cannot move status backward from 'JOINED' to 'INVITATION_SENT'", decodeError(t, rec).Detail)

	rec = env.do(t, http.MethodGet, "/api/referrals/"+ref.ID, "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "A", got.FirstName, "rejected update must not write")
	assert.Equal(t, domain.StatusJoined, got.Status)

	rec = env.do(t, http.MethodPatch, "/api/referrals/missing", `{"first_name":"Z"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteReferral(t *testing.T) {
	env := setupTestServer(t, nil)
	ref := env.create(t, `{"first_name":"A","last_name":"B","email":"a@example.com"}`)

	rec := env.do(t, http.MethodDelete, "/api/referrals/"+ref.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/referrals/"+ref.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResendInvitation(t *testing.T) {
	env := setupTestServer(t, nil)
	ref := env.create(t, `{"first_name":"A","last_name":"B","email":"a@example.com"}`)

	env.clock.Advance(12 * time.Second)
	rec := env.do(t, http.MethodPost, "/api/referrals/"+ref.ID+"/resend/", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "18", rec.Header().Get("Retry-After"))
	body := decodeError(t, rec)
	assert.Equal(t, "cooldown", body.Code)
	assert.Equal(t, "cannot resend within 30 seconds, please wait 18.0 more seconds", body.Detail)

	env.clock.Advance(20 * time.Second)
	rec = env.do(t, http.MethodPost, "/api/referrals/"+ref.ID+"/resend", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got domain.Referral
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.LastSentAt.Equal(env.clock.Now()))

	rec = env.do(t, http.MethodPost, "/api/referrals/"+ref.ID+"/resend", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
}

func TestResendInvitation_InvalidState(t *testing.T) {
	env := setupTestServer(t, nil)
	ref := env.create(t, `{"first_name":"A","last_name":"B","email":"a@example.com","status":"APPLICATION_RECEIVED"}`)
	env.clock.Advance(time.Hour)

	rec := env.do(t, http.MethodPost, "/api/referrals/"+ref.ID+"/resend", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_state", decodeError(t, rec).Code)

	rec = env.do(t, http.MethodPost, "/api/referrals/missing/resend", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalytics(t *testing.T) {
	env := setupTestServer(t, nil)

	rec := env.do(t, http.MethodGet, "/api/analytics/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total_invited":0,"invitations_sent_count":0,"approved_count":0,"conversion_rate":0}`, rec.Body.String())

	env.create(t, `{"first_name":"A","last_name":"A","email":"a@example.com"}`)
	env.create(t, `{"first_name":"B","last_name":"B","email":"b@example.com"}`)
	env.create(t, `{"first_name":"C","last_name":"C","email":"c@example.com","status":"APPLICATION_RECEIVED"}`)
	env.create(t, `{"first_name":"D","last_name":"D","email":"d@example.com","status":"JOINED"}`)

	rec = env.do(t, http.MethodGet, "/api/analytics", "")
	assert.JSONEq(t, `{"total_invited":4,"invitations_sent_count":2,"approved_count":2,"conversion_rate":50}`, rec.Body.String())
}

func TestSnapshots(t *testing.T) {
	env := setupTestServer(t, nil)
	rec := env.do(t, http.MethodPost, "/api/analytics/snapshots", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	archive, err := storage.NewLocalArchive(t.TempDir())
	require.NoError(t, err)
	env = setupTestServer(t, archive)
	env.create(t, `{"first_name":"A","last_name":"A","email":"a@example.com","status":"JOINED"}`)

	rec = env.do(t, http.MethodPost, "/api/analytics/snapshots", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Key      string               `json:"key"`
		Snapshot domain.StatsSnapshot `json:"snapshot"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "analytics/20240501T120000.000000Z.json", created.Key)
	assert.Equal(t, 100.0, created.Snapshot.ConversionRate)

	rec = env.do(t, http.MethodGet, "/api/analytics/snapshots?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Results []domain.StatsSnapshot `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Results, 1)
	assert.Equal(t, 1, listed.Results[0].TotalInvited)
}

func TestHealthAndMetrics(t *testing.T) {
	env := setupTestServer(t, nil)

	rec := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var hs HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hs))
	assert.Equal(t, "healthy", hs.Status)
	assert.Equal(t, "not_configured", hs.Checks["database"].Status)

	rec = env.do(t, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	env.create(t, `{"first_name":"A","last_name":"A","email":"a@example.com"}`)
	rec = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "referral_tracker_referrals_created_total 1")
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestServer(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/referrals", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
