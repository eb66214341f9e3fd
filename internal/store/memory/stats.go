package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"posconsole/backend/internal/domain"
	"posconsole/backend/internal/store"
	"posconsole/backend/internal/xid"
)

func (s *Store) GetSellerStats(_ context.Context, storeID string, period domain.Period, sellerID string) (*domain.SellerMonthlyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, ok := s.stats[statsKey(storeID, period, sellerID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cloned := cloneStats(stats)
	return &cloned, nil
}

func (s *Store) ListSellerStats(_ context.Context, storeID string, period domain.Period) ([]domain.SellerMonthlyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SellerMonthlyStats, 0, 16)
	for _, stats := range s.stats {
		if stats.StoreID != storeID || stats.Period != period {
			continue
		}
		result = append(result, cloneStats(stats))
	}
	slices.SortFunc(result, func(a, b domain.SellerMonthlyStats) int {
		return strings.Compare(a.SellerID, b.SellerID)
	})
	return result, nil
}

func (s *Store) SaveSellerStats(_ context.Context, stats domain.SellerMonthlyStats, expectedVersion int) (*domain.SellerMonthlyStats, error) {
	if stats.StoreID == "" || stats.SellerID == "" || stats.Period == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.periodStateLocked(stats.StoreID, stats.Period).Status == domain.PeriodFinalized {
		return nil, store.ErrPeriodFinalized
	}

	key := statsKey(stats.StoreID, stats.Period, stats.SellerID)
	existing, exists := s.stats[key]
	current := 0
	if exists {
		current = existing.Version
		stats.ID = existing.ID
	}
	if current != expectedVersion {
		return nil, fmt.Errorf("seller %s %s: have version %d, expected %d: %w",
			stats.SellerID, stats.Period, current, expectedVersion, store.ErrConcurrentModification)
	}
	if stats.ID == "" {
		stats.ID = xid.New("stats")
	}
	stats.Version = current + 1
	stats.IsFinal = false

	s.stats[key] = cloneStats(stats)
	saved := cloneStats(stats)
	return &saved, nil
}

func (s *Store) GetPeriodState(_ context.Context, storeID string, period domain.Period) (domain.PeriodState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.periodStateLocked(storeID, period), nil
}

func (s *Store) FinalizePeriod(_ context.Context, storeID string, period domain.Period, by string, at time.Time) (domain.PeriodState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.periodStateLocked(storeID, period)
	if state.Status == domain.PeriodFinalized {
		return state, store.ErrPeriodFinalized
	}

	at = at.UTC()
	state.Status = domain.PeriodFinalized
	state.FinalizedBy = by
	state.FinalizedAt = &at
	s.periods[periodKey(storeID, period)] = state
	s.setFinalLocked(storeID, period, true)
	return state, nil
}

func (s *Store) UnlockPeriod(_ context.Context, storeID string, period domain.Period, by string, reason string, at time.Time) (domain.PeriodState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.periodStateLocked(storeID, period)
	if state.Status != domain.PeriodFinalized {
		return state, store.ErrPeriodNotFinalized
	}

	at = at.UTC()
	state.Status = domain.PeriodDraft
	state.UnlockedBy = by
	state.UnlockedAt = &at
	state.UnlockReason = reason
	s.periods[periodKey(storeID, period)] = state
	s.setFinalLocked(storeID, period, false)
	return state, nil
}

func (s *Store) periodStateLocked(storeID string, period domain.Period) domain.PeriodState {
	if state, ok := s.periods[periodKey(storeID, period)]; ok {
		return state
	}
	return domain.PeriodState{StoreID: storeID, Period: period, Status: domain.PeriodDraft}
}

func (s *Store) setFinalLocked(storeID string, period domain.Period, final bool) {
	for key, stats := range s.stats {
		if stats.StoreID == storeID && stats.Period == period {
			stats.IsFinal = final
			s.stats[key] = stats
		}
	}
}

func (s *Store) GetLeaderboardSettings(_ context.Context, storeID string) (domain.LeaderboardSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if settings, ok := s.settings[storeID]; ok {
		return settings, nil
	}
	return domain.DefaultLeaderboardSettings(storeID), nil
}

func (s *Store) UpsertLeaderboardSettings(_ context.Context, settings domain.LeaderboardSettings) (domain.LeaderboardSettings, error) {
	if settings.StoreID == "" {
		return domain.LeaderboardSettings{}, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now().UTC()
	}
	s.settings[settings.StoreID] = settings
	return settings, nil
}

func cloneStats(stats domain.SellerMonthlyStats) domain.SellerMonthlyStats {
	stats.TierSnapshot = slices.Clone(stats.TierSnapshot)
	stats.Penalties = slices.Clone(stats.Penalties)
	stats.Score.Issues = slices.Clone(stats.Score.Issues)
	if stats.CurrentTierRank != nil {
		rank := *stats.CurrentTierRank
		stats.CurrentTierRank = &rank
	}
	if stats.CurrentTierName != nil {
		name := *stats.CurrentTierName
		stats.CurrentTierName = &name
	}
	if stats.Score.AchievementPct != nil {
		pct := *stats.Score.AchievementPct
		stats.Score.AchievementPct = &pct
	}
	return stats
}
