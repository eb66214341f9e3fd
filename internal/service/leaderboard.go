package service

import (
	"context"
	"fmt"
	"time"

	"posconsole/backend/internal/domain"
	"posconsole/backend/internal/leaderboard"
	"posconsole/backend/internal/store"
)

const maxRefreshIntervalMinutes = 24 * 60

// Leaderboard ranks the period's persisted rows and redacts them for the
// calling actor. The ranked board is cached per refresh interval; redaction
// runs on every read.
func (s *Service) Leaderboard(ctx context.Context, storeID string, period string) (domain.LeaderboardView, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.LeaderboardView{}, err
	}
	storeID, err = s.storeFor(actor, storeID)
	if err != nil {
		return domain.LeaderboardView{}, err
	}
	p, err := s.periodOrCurrent(period)
	if err != nil {
		return domain.LeaderboardView{}, err
	}

	settings, err := s.repo.GetLeaderboardSettings(ctx, storeID)
	if err != nil {
		return domain.LeaderboardView{}, err
	}

	ttl := time.Duration(settings.RefreshIntervalMinutes) * time.Minute
	board, err := s.boards.Board(ctx, storeID, p, settings.RankBy, ttl, func(ctx context.Context) ([]domain.SellerMonthlyStats, error) {
		return s.repo.ListSellerStats(ctx, storeID, p)
	})
	if err != nil {
		return domain.LeaderboardView{}, err
	}
	return leaderboard.Project(board, settings, actor), nil
}

func (s *Service) LeaderboardSettings(ctx context.Context, storeID string) (domain.LeaderboardSettings, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.LeaderboardSettings{}, err
	}
	storeID, err = s.storeFor(actor, storeID)
	if err != nil {
		return domain.LeaderboardSettings{}, err
	}
	return s.repo.GetLeaderboardSettings(ctx, storeID)
}

func (s *Service) UpdateLeaderboardSettings(ctx context.Context, req domain.LeaderboardSettingsUpdateRequest) (domain.LeaderboardSettings, error) {
	actor, err := s.admin(ctx)
	if err != nil {
		return domain.LeaderboardSettings{}, err
	}
	storeID, err := s.storeFor(actor, req.StoreID)
	if err != nil {
		return domain.LeaderboardSettings{}, err
	}

	settings, err := s.repo.GetLeaderboardSettings(ctx, storeID)
	if err != nil {
		return domain.LeaderboardSettings{}, err
	}
	if req.Visibility != nil {
		if !req.Visibility.Valid() {
			return domain.LeaderboardSettings{}, fmt.Errorf("unknown visibility %q: %w", *req.Visibility, store.ErrInvalidInput)
		}
		settings.Visibility = *req.Visibility
	}
	if req.RankBy != nil {
		if !req.RankBy.Valid() {
			return domain.LeaderboardSettings{}, fmt.Errorf("unknown rank_by %q: %w", *req.RankBy, store.ErrInvalidInput)
		}
		settings.RankBy = *req.RankBy
	}
	if req.RefreshIntervalMinutes != nil {
		minutes := *req.RefreshIntervalMinutes
		if minutes < 1 || minutes > maxRefreshIntervalMinutes {
			return domain.LeaderboardSettings{}, fmt.Errorf("refresh_interval_minutes must be within 1..%d: %w", maxRefreshIntervalMinutes, store.ErrInvalidInput)
		}
		settings.RefreshIntervalMinutes = minutes
	}
	if req.ShowAmounts != nil {
		settings.ShowAmounts = *req.ShowAmounts
	}
	if req.ShowTier != nil {
		settings.ShowTier = *req.ShowTier
	}
	settings.StoreID = storeID
	settings.UpdatedAt = s.now().UTC()

	saved, err := s.repo.UpsertLeaderboardSettings(ctx, settings)
	if err != nil {
		return domain.LeaderboardSettings{}, err
	}
	s.logAudit(ctx, storeID, "leaderboard_settings_update", "leaderboard_settings", storeID,
		fmt.Sprintf("visibility=%s,rank_by=%s,refresh=%d,show_amounts=%t,show_tier=%t",
			saved.Visibility, saved.RankBy, saved.RefreshIntervalMinutes, saved.ShowAmounts, saved.ShowTier))
	return saved, nil
}
