package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posconsole/backend/internal/commission"
	"posconsole/backend/internal/domain"
	"posconsole/backend/internal/leaderboard"
	"posconsole/backend/internal/recompute"
	"posconsole/backend/internal/service"
	"posconsole/backend/internal/store"
	"posconsole/backend/internal/store/memory"
)

const testPIN = "2468"

type testServer struct {
	handler http.Handler
	orch    *recompute.Orchestrator
	repo    *memory.Store
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin-pass")
	t.Setenv("SEED_SELLER_PASSWORD", "seller-pass")

	repo := memory.NewSeeded()
	boards := leaderboard.NewEngine(nil, time.Minute, nil)
	orch := recompute.New(repo, repo, nil, boards, recompute.Options{Workers: 2})
	t.Cleanup(orch.Wait)

	auth := NewAuthManager(context.Background(), "test-secret-key-with-enough-length!", time.Hour, testPIN, repo)
	svc := service.New(repo, orch, boards, service.Options{DefaultStoreID: memory.DefaultStoreID, PINs: auth})
	api := New(svc, auth, "http://localhost:5173", nil)
	return testServer{handler: api.Handler(), orch: orch, repo: repo}
}

func (s testServer) do(t *testing.T, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "10.0.0.1:4000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s testServer) login(t *testing.T, username string, password string) domain.LoginResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp domain.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func TestHealthSetsSecurityHeaders(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	body := decode[map[string]any](t, rec)
	assert.Equal(t, true, body["ok"])
}

func TestLoginCarriesSellerBinding(t *testing.T) {
	s := newTestServer(t)

	resp := s.login(t, "amine", "seller-pass")
	assert.Equal(t, domain.RoleSeller, resp.Role)
	assert.Equal(t, "seller-amine", resp.SellerID)
	assert.Equal(t, memory.DefaultStoreID, resp.StoreID)
	assert.NotEmpty(t, resp.AccessToken)

	rec := s.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "amine", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRateLimitReturns429(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 6; i++ {
		rec := s.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "wrong-pass"})
		if i < 5 {
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
			continue
		}
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	}
}

func TestRejectsUnknownFieldsAndLargeBodies(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"username":"admin","password":"x","extra":1}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	big := fmt.Sprintf(`{"username":"%s","password":"x"}`, strings.Repeat("a", (1<<20)+1024))
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(big))
	req.RemoteAddr = "10.0.0.9:1"
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoutesRequireRoles(t *testing.T) {
	s := newTestServer(t)
	seller := s.login(t, "amine", "seller-pass").AccessToken

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/objective-rules", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/objective-rules", "garbage", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/objective-rules", seller, nil).Code)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/v1/audit-logs", seller, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/api/v1/seller-stats/recompute", seller, domain.RecomputeRequest{}).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/api/v1/objective-rules", seller, domain.ObjectiveRuleCreateRequest{}).Code)

	rec := s.do(t, http.MethodGet, "/api/v1/seller-stats?seller_id=seller-chloe", seller, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRuleEndpoints(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin", "admin-pass").AccessToken

	rec := s.do(t, http.MethodPost, "/api/v1/objective-rules", admin, map[string]any{
		"store_id":   memory.DefaultStoreID,
		"name":       "Boutique",
		"valid_from": "2025-01-01",
		"tiers": []map[string]any{
			{"rank": 1, "name": "Bronze", "threshold": "200000", "bonus_amount": "8000", "bonus_rate": "0"},
			{"rank": 2, "name": "Or", "threshold": "600000", "bonus_amount": "40000", "bonus_rate": "0.5"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[domain.ObjectiveRule](t, rec)
	assert.Equal(t, 1, created.Version)

	rec = s.do(t, http.MethodGet, "/api/v1/objective-rules/in-force?date=2025-06-01", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decode[domain.ObjectiveRule](t, rec).ID)

	rec = s.do(t, http.MethodPost, "/api/v1/objective-rules/"+created.ID+"/revisions", admin, map[string]any{"valid_from": "2025-01-01"})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/objective-rules/"+created.ID+"/revisions", admin, map[string]any{"valid_from": "2025-07-01"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[domain.ObjectiveRule](t, rec).Version)

	rec = s.do(t, http.MethodPost, "/api/v1/objective-rules", admin, map[string]any{
		"name":       "bad",
		"valid_from": "2025-01-01",
		"tiers": []map[string]any{
			{"rank": 1, "name": "A", "threshold": "300", "bonus_amount": "1", "bonus_rate": "0"},
			{"rank": 2, "name": "B", "threshold": "200", "bonus_amount": "1", "bonus_rate": "0"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/objective-rules/missing", admin, nil).Code)

	rec = s.do(t, http.MethodPost, "/api/v1/objective-rules/"+created.ID+"/retire", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "closed windows can only shrink")
}

func TestRecomputeFinalizeUnlockFlow(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin", "admin-pass").AccessToken
	period := string(domain.PeriodOf(time.Now()))

	rec := s.do(t, http.MethodPost, "/api/v1/seller-stats/recompute", admin, domain.RecomputeRequest{Period: period})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	job := decode[domain.RecomputeJob](t, rec)
	s.orch.Wait()

	rec = s.do(t, http.MethodGet, "/api/v1/seller-stats/jobs/"+job.ID, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	done := decode[domain.RecomputeJob](t, rec)
	assert.Equal(t, domain.JobCompleted, done.Status)
	assert.Equal(t, 4, done.Summary.GeneratedCount)

	rec = s.do(t, http.MethodGet, "/api/v1/seller-stats?sort_by=net_amount&period="+period, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[domain.StatsListResponse](t, rec)
	assert.Len(t, listed.Stats, 4)
	assert.Equal(t, domain.PeriodDraft, listed.State.Status)

	rec = s.do(t, http.MethodPost, "/api/v1/periods/"+period+"/finalize", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.PeriodFinalized, decode[domain.PeriodState](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/api/v1/seller-stats/recompute", admin, domain.RecomputeRequest{Period: period})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/periods/"+period+"/unlock", admin, domain.PeriodUnlockRequest{Reason: "refund", ManagerPIN: "0000"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/periods/"+period+"/unlock", admin, domain.PeriodUnlockRequest{Reason: "refund", ManagerPIN: testPIN})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.PeriodDraft, decode[domain.PeriodState](t, rec).Status)

	rec = s.do(t, http.MethodGet, "/api/v1/periods/"+period, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "refund", decode[domain.PeriodState](t, rec).UnlockReason)

	rec = s.do(t, http.MethodGet, "/api/v1/audit-logs", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode[map[string][]domain.AuditLog](t, rec)["logs"]
	actions := map[string]bool{}
	for _, entry := range logs {
		actions[entry.Action] = true
	}
	assert.True(t, actions["period_finalize"])
	assert.True(t, actions["period_unlock"])
	assert.True(t, actions["stats_recompute"])
}

func TestLeaderboardEndpoint(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin", "admin-pass").AccessToken
	seller := s.login(t, "chloe", "seller-pass").AccessToken

	require.Equal(t, http.StatusAccepted, s.do(t, http.MethodPost, "/api/v1/seller-stats/recompute", admin, domain.RecomputeRequest{}).Code)
	s.orch.Wait()

	rec := s.do(t, http.MethodGet, "/api/v1/leaderboard", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[domain.LeaderboardView](t, rec)
	assert.Equal(t, domain.VisibilityTierAndRank, view.Visibility)
	selfRows := 0
	for _, entry := range view.Entries {
		if entry.IsSelf {
			selfRows++
			assert.Equal(t, "seller-chloe", entry.SellerID)
			continue
		}
		assert.Empty(t, entry.SellerName)
	}
	assert.Equal(t, 1, selfRows)

	rec = s.do(t, http.MethodPut, "/api/v1/leaderboard/settings", admin, map[string]any{"visibility": "ANONYMOUS", "show_amounts": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/leaderboard", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decode[domain.LeaderboardView](t, rec)
	assert.Empty(t, view.Entries)
	require.NotNil(t, view.Distribution)
	assert.Equal(t, 4, view.Distribution.Participants)
	assert.NotNil(t, view.Distribution.MedianNet)

	rec = s.do(t, http.MethodPut, "/api/v1/leaderboard/settings", admin, map[string]any{"visibility": "EVERYONE"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPenaltyEndpoints(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin", "admin-pass").AccessToken

	rec := s.do(t, http.MethodPost, "/api/v1/seller-penalties", admin, map[string]any{
		"seller_id":       "seller-amine",
		"penalty_type_id": "ptype-late",
		"reason":          "late opening",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	penalty := decode[domain.SellerPenalty](t, rec)
	assert.Equal(t, "5000", penalty.Amount.String())

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodDelete, "/api/v1/penalty-types/ptype-late", admin, nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/v1/seller-penalties/"+penalty.ID, admin, nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/v1/penalty-types/ptype-late", admin, nil).Code)

	rec = s.do(t, http.MethodPatch, "/api/v1/penalty-types/ptype-misconduct", admin, map[string]any{"default_cap_rank": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[domain.PenaltyType](t, rec).DefaultCapRank)

	rec = s.do(t, http.MethodGet, "/api/v1/penalty-types", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]domain.PenaltyType](t, rec)["penalty_types"], 1)
}

func TestStatusForMapsSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{store.ErrInvalidInput, http.StatusBadRequest},
		{commission.ErrDuplicateRank, http.StatusBadRequest},
		{service.ErrForbidden, http.StatusForbidden},
		{service.ErrInvalidPIN, http.StatusForbidden},
		{store.ErrNotFound, http.StatusNotFound},
		{store.ErrPeriodFinalized, http.StatusConflict},
		{store.ErrRuleOverlap, http.StatusConflict},
		{store.ErrConcurrentModification, http.StatusConflict},
		{fmt.Errorf("delete: %w", store.ErrConflict), http.StatusConflict},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
