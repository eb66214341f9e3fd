package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"posconsole/backend/internal/domain"
)

func (a *API) handleListRules(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	history := strings.EqualFold(query.Get("history"), "true")

	rules, err := a.service.ListRules(r.Context(), query.Get("store_id"), history)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (a *API) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req domain.ObjectiveRuleCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rule, err := a.service.CreateRule(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (a *API) handleRuleInForce(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	rule, err := a.service.RuleInForce(r.Context(), query.Get("store_id"), query.Get("date"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (a *API) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := a.service.GetRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (a *API) handleReviseRule(w http.ResponseWriter, r *http.Request) {
	var req domain.ObjectiveRuleCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rule, err := a.service.ReviseRule(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (a *API) handleRetireRule(w http.ResponseWriter, r *http.Request) {
	var req domain.ObjectiveRuleRetireRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rule, err := a.service.RetireRule(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (a *API) handleListPenaltyTypes(w http.ResponseWriter, r *http.Request) {
	types, err := a.service.ListPenaltyTypes(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"penalty_types": types})
}

func (a *API) handleCreatePenaltyType(w http.ResponseWriter, r *http.Request) {
	var req domain.PenaltyTypeCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := a.service.CreatePenaltyType(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleUpdatePenaltyType(w http.ResponseWriter, r *http.Request) {
	var req domain.PenaltyTypeUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := a.service.UpdatePenaltyType(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleDeletePenaltyType(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeletePenaltyType(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListSellerPenalties(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	penalties, err := a.service.ListSellerPenalties(r.Context(), query.Get("store_id"), query.Get("period"), query.Get("seller_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"penalties": penalties})
}

func (a *API) handleAssignPenalty(w http.ResponseWriter, r *http.Request) {
	var req domain.SellerPenaltyCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	penalty, err := a.service.AssignPenalty(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, penalty)
}

func (a *API) handleRemovePenalty(w http.ResponseWriter, r *http.Request) {
	if err := a.service.RemovePenalty(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListStats(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp, err := a.service.ListStats(r.Context(), domain.StatsQuery{
		StoreID:  query.Get("store_id"),
		Period:   domain.Period(query.Get("period")),
		SellerID: query.Get("seller_id"),
		SortBy:   domain.RankMetric(query.Get("sort_by")),
		Desc:     !strings.EqualFold(query.Get("order"), "asc"),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRecompute(w http.ResponseWriter, r *http.Request) {
	var req domain.RecomputeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	job, err := a.service.TriggerRecompute(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (a *API) handleRecomputeJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.service.RecomputeJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (a *API) handlePeriodState(w http.ResponseWriter, r *http.Request) {
	state, err := a.service.PeriodState(r.Context(), r.URL.Query().Get("store_id"), chi.URLParam(r, "period"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleFinalizePeriod(w http.ResponseWriter, r *http.Request) {
	var req domain.PeriodFinalizeRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	state, err := a.service.FinalizePeriod(r.Context(), chi.URLParam(r, "period"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleUnlockPeriod(w http.ResponseWriter, r *http.Request) {
	var req domain.PeriodUnlockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !a.pinLimiter.Allow("pin:unlock:" + clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errTooManyPINAttempts)
		return
	}

	state, err := a.service.UnlockPeriod(r.Context(), chi.URLParam(r, "period"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	view, err := a.service.Leaderboard(r.Context(), query.Get("store_id"), query.Get("period"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleLeaderboardSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.service.LeaderboardSettings(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (a *API) handleUpdateLeaderboardSettings(w http.ResponseWriter, r *http.Request) {
	var req domain.LeaderboardSettingsUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	settings, err := a.service.UpdateLeaderboardSettings(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parsePositiveLimit(query.Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), query.Get("store_id"), query.Get("date"), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
