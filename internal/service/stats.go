package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"posconsole/backend/internal/domain"
	"posconsole/backend/internal/leaderboard"
	"posconsole/backend/internal/store"
)

// ListStats returns a period's persisted rows with the period state. Sellers
// only see their own row. Rows are ordered by SortBy when set, else by seller.
func (s *Service) ListStats(ctx context.Context, q domain.StatsQuery) (domain.StatsListResponse, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.StatsListResponse{}, err
	}
	storeID, err := s.storeFor(actor, q.StoreID)
	if err != nil {
		return domain.StatsListResponse{}, err
	}
	period, err := s.periodOrCurrent(string(q.Period))
	if err != nil {
		return domain.StatsListResponse{}, err
	}
	sellerID, err := sellerScope(actor, q.SellerID)
	if err != nil {
		return domain.StatsListResponse{}, err
	}
	if q.SortBy != "" && !q.SortBy.Valid() {
		return domain.StatsListResponse{}, fmt.Errorf("unknown sort %q: %w", q.SortBy, store.ErrInvalidInput)
	}

	state, err := s.repo.GetPeriodState(ctx, storeID, period)
	if err != nil {
		return domain.StatsListResponse{}, err
	}
	rows, err := s.repo.ListSellerStats(ctx, storeID, period)
	if err != nil {
		return domain.StatsListResponse{}, err
	}

	filtered := make([]domain.SellerMonthlyStats, 0, len(rows))
	for _, row := range rows {
		if sellerID == "" || row.SellerID == sellerID {
			filtered = append(filtered, row)
		}
	}
	if q.SortBy != "" {
		sort.SliceStable(filtered, func(i, j int) bool {
			vi := leaderboard.MetricValue(filtered[i], q.SortBy)
			vj := leaderboard.MetricValue(filtered[j], q.SortBy)
			if vi.Equal(vj) {
				return filtered[i].SellerID < filtered[j].SellerID
			}
			if q.Desc {
				return vi.GreaterThan(vj)
			}
			return vi.LessThan(vj)
		})
	}

	return domain.StatsListResponse{State: state, Stats: filtered}, nil
}

// TriggerRecompute queues a recompute job. A finalized period is rejected
// before anything is queued.
func (s *Service) TriggerRecompute(ctx context.Context, req domain.RecomputeRequest) (domain.RecomputeJob, error) {
	actor, err := s.admin(ctx)
	if err != nil {
		return domain.RecomputeJob{}, err
	}
	req.StoreID, err = s.storeFor(actor, req.StoreID)
	if err != nil {
		return domain.RecomputeJob{}, err
	}
	period, err := s.periodOrCurrent(req.Period)
	if err != nil {
		return domain.RecomputeJob{}, err
	}
	req.Period = string(period)
	req.SellerID = strings.TrimSpace(req.SellerID)

	job, err := s.orchestrator.Submit(ctx, req, actor.Username)
	if err != nil {
		return domain.RecomputeJob{}, err
	}
	detail := "period=" + req.Period
	if req.SellerID != "" {
		detail += ",seller=" + req.SellerID
	}
	s.logAudit(ctx, req.StoreID, "stats_recompute", "recompute_job", job.ID, detail)
	return job, nil
}

func (s *Service) RecomputeJob(ctx context.Context, id string) (domain.RecomputeJob, error) {
	actor, err := s.admin(ctx)
	if err != nil {
		return domain.RecomputeJob{}, err
	}
	job, err := s.orchestrator.Job(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.RecomputeJob{}, err
	}
	if _, err := s.storeFor(actor, job.Summary.StoreID); err != nil {
		return domain.RecomputeJob{}, err
	}
	return job, nil
}

func (s *Service) PeriodState(ctx context.Context, storeID string, period string) (domain.PeriodState, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.PeriodState{}, err
	}
	storeID, err = s.storeFor(actor, storeID)
	if err != nil {
		return domain.PeriodState{}, err
	}
	p, err := s.periodOrCurrent(period)
	if err != nil {
		return domain.PeriodState{}, err
	}
	return s.repo.GetPeriodState(ctx, storeID, p)
}

// FinalizePeriod freezes every row of the period. Finalizing twice returns
// store.ErrPeriodFinalized.
func (s *Service) FinalizePeriod(ctx context.Context, period string, req domain.PeriodFinalizeRequest) (domain.PeriodState, error) {
	actor, err := s.admin(ctx)
	if err != nil {
		return domain.PeriodState{}, err
	}
	storeID, err := s.storeFor(actor, req.StoreID)
	if err != nil {
		return domain.PeriodState{}, err
	}
	p, err := domain.ParsePeriod(period)
	if err != nil {
		return domain.PeriodState{}, fmt.Errorf("%v: %w", err, store.ErrInvalidInput)
	}

	state, err := s.repo.FinalizePeriod(ctx, storeID, p, actor.Username, s.now().UTC())
	if err != nil {
		return domain.PeriodState{}, err
	}
	s.boards.Invalidate(ctx, storeID, p)
	s.logAudit(ctx, storeID, "period_finalize", "period", string(p), "status="+string(state.Status))
	return state, nil
}

// UnlockPeriod returns a finalized period to draft. It needs a reason and the
// manager PIN, and is always audited.
func (s *Service) UnlockPeriod(ctx context.Context, period string, req domain.PeriodUnlockRequest) (domain.PeriodState, error) {
	actor, err := s.admin(ctx)
	if err != nil {
		return domain.PeriodState{}, err
	}
	storeID, err := s.storeFor(actor, req.StoreID)
	if err != nil {
		return domain.PeriodState{}, err
	}
	p, err := domain.ParsePeriod(period)
	if err != nil {
		return domain.PeriodState{}, fmt.Errorf("%v: %w", err, store.ErrInvalidInput)
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.PeriodState{}, fmt.Errorf("unlock reason is required: %w", store.ErrInvalidInput)
	}
	if s.pins == nil || !s.pins.ValidateManagerPIN(req.ManagerPIN) {
		return domain.PeriodState{}, ErrInvalidPIN
	}

	state, err := s.repo.UnlockPeriod(ctx, storeID, p, actor.Username, reason, s.now().UTC())
	if err != nil {
		return domain.PeriodState{}, err
	}
	s.boards.Invalidate(ctx, storeID, p)
	s.logAudit(ctx, storeID, "period_unlock", "period", string(p), "reason="+reason)
	return state, nil
}
