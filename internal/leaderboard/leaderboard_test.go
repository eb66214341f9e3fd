package leaderboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posconsole/backend/internal/cache"
	"posconsole/backend/internal/domain"
)

func row(sellerID string, name string, net string, tier string) domain.SellerMonthlyStats {
	stats := domain.SellerMonthlyStats{
		SellerID:    sellerID,
		SellerName:  name,
		StoreID:     "store-a",
		Period:      "2026-03",
		NetAmount:   decimal.RequireFromString(net),
		BonusEarned: decimal.NewFromInt(100),
		Score:       domain.EfficiencyScore{Score: 72.5, Segment: domain.SegmentSolide},
	}
	if tier != "" {
		rank := 1
		stats.CurrentTierRank = &rank
		stats.CurrentTierName = &tier
	}
	return stats
}

func sampleRows() []domain.SellerMonthlyStats {
	return []domain.SellerMonthlyStats{
		row("s3", "Chloe", "250000", "Argent"),
		row("s1", "Amine", "500000", "Or"),
		row("s4", "Dina", "250000", "Argent"),
		row("s2", "Basile", "90000", ""),
	}
}

func TestRankCompetitionOrdering(t *testing.T) {
	ranked := Rank(sampleRows(), domain.RankByNetAmount)
	require.Len(t, ranked, 4)

	got := make([]string, 0, len(ranked))
	ranks := make([]int, 0, len(ranked))
	for _, r := range ranked {
		got = append(got, r.Stats.SellerID)
		ranks = append(ranks, r.Rank)
	}
	assert.Equal(t, []string{"s1", "s3", "s4", "s2"}, got)
	assert.Equal(t, []int{1, 2, 2, 4}, ranks)
}

func TestRankBySaleCount(t *testing.T) {
	rows := sampleRows()
	rows[3].SaleCount = 40
	rows[1].SaleCount = 10

	ranked := Rank(rows, domain.RankBySaleCount)
	assert.Equal(t, "s2", ranked[0].Stats.SellerID)
	assert.Equal(t, "s1", ranked[1].Stats.SellerID)
}

func TestRankUnknownMetricFallsBackToNet(t *testing.T) {
	ranked := Rank(sampleRows(), domain.RankMetric("bogus"))
	assert.Equal(t, "s1", ranked[0].Stats.SellerID)
}

func board() domain.RankedBoard {
	return domain.RankedBoard{
		StoreID: "store-a",
		Period:  "2026-03",
		RankBy:  domain.RankByNetAmount,
		Rows:    Rank(sampleRows(), domain.RankByNetAmount),
	}
}

func TestProjectFull(t *testing.T) {
	settings := domain.LeaderboardSettings{Visibility: domain.VisibilityFull, ShowAmounts: true, ShowTier: true}
	view := Project(board(), settings, domain.Actor{Role: domain.RoleSeller, SellerID: "s3"})

	require.Len(t, view.Entries, 4)
	top := view.Entries[0]
	assert.Equal(t, "Amine", top.SellerName)
	require.NotNil(t, top.NetAmount)
	assert.True(t, decimal.RequireFromString("500000").Equal(*top.NetAmount))
	assert.False(t, top.IsSelf)
	assert.True(t, view.Entries[1].IsSelf)
	assert.Nil(t, view.Distribution)
}

func TestProjectFullWithoutAmounts(t *testing.T) {
	settings := domain.LeaderboardSettings{Visibility: domain.VisibilityFull, ShowTier: false}
	view := Project(board(), settings, domain.Actor{Role: domain.RoleSeller})

	assert.Equal(t, "Amine", view.Entries[0].SellerName)
	assert.Nil(t, view.Entries[0].NetAmount)
	assert.Nil(t, view.Entries[0].TierName)
}

func TestProjectTierAndRankHidesIdentity(t *testing.T) {
	settings := domain.DefaultLeaderboardSettings("store-a")
	view := Project(board(), settings, domain.Actor{Role: domain.RoleSeller, SellerID: "s2"})

	for _, entry := range view.Entries {
		assert.Nil(t, entry.NetAmount)
		assert.Nil(t, entry.Score)
		if entry.IsSelf {
			assert.Equal(t, "Basile", entry.SellerName)
			continue
		}
		assert.Empty(t, entry.SellerID)
		assert.Empty(t, entry.SellerName)
	}
	require.NotNil(t, view.Entries[0].TierName)
	assert.Equal(t, "Or", *view.Entries[0].TierName)
}

func TestProjectRankOnly(t *testing.T) {
	settings := domain.LeaderboardSettings{Visibility: domain.VisibilityRankOnly, ShowAmounts: true, ShowTier: true}
	view := Project(board(), settings, domain.Actor{Role: domain.RoleSeller})

	for _, entry := range view.Entries {
		assert.NotZero(t, entry.Rank)
		assert.Empty(t, entry.SellerName)
		assert.Nil(t, entry.TierName)
		assert.Nil(t, entry.NetAmount)
	}
}

func TestProjectAnonymousDistribution(t *testing.T) {
	settings := domain.LeaderboardSettings{Visibility: domain.VisibilityAnonymous, ShowAmounts: true, ShowTier: true}
	view := Project(board(), settings, domain.Actor{Role: domain.RoleSeller, SellerID: "s1"})

	assert.Empty(t, view.Entries)
	require.NotNil(t, view.Distribution)
	dist := view.Distribution
	assert.Equal(t, 4, dist.Participants)
	assert.Equal(t, map[string]int{"Or": 1, "Argent": 2, "none": 1}, dist.ByTier)
	assert.True(t, decimal.RequireFromString("1090000").Equal(*dist.TotalNet))
	assert.True(t, decimal.RequireFromString("272500").Equal(*dist.AverageNet))
	assert.True(t, decimal.RequireFromString("250000").Equal(*dist.MedianNet))
	assert.True(t, decimal.RequireFromString("500000").Equal(*dist.MaxNet))
}

func TestProjectAnonymousWithoutAmounts(t *testing.T) {
	settings := domain.LeaderboardSettings{Visibility: domain.VisibilityAnonymous}
	view := Project(board(), settings, domain.Actor{Role: domain.RoleSeller})

	require.NotNil(t, view.Distribution)
	assert.Nil(t, view.Distribution.TotalNet)
	assert.Nil(t, view.Distribution.ByTier)
}

func TestProjectAdminAlwaysFull(t *testing.T) {
	settings := domain.LeaderboardSettings{Visibility: domain.VisibilityAnonymous}
	view := Project(board(), settings, domain.Actor{Role: domain.RoleAdmin})

	assert.Equal(t, domain.VisibilityFull, view.Visibility)
	require.Len(t, view.Entries, 4)
	assert.NotNil(t, view.Entries[0].NetAmount)
}

func TestProjectDoesNotMutateBoard(t *testing.T) {
	b := board()
	Project(b, domain.LeaderboardSettings{Visibility: domain.VisibilityRankOnly}, domain.Actor{})
	assert.Equal(t, "Amine", b.Rows[0].Stats.SellerName)
}

type mapCache struct {
	boards  map[string]*domain.RankedBoard
	getErr  error
	deleted []string
}

func (c *mapCache) Get(_ context.Context, key string) (*domain.RankedBoard, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	b, ok := c.boards[key]
	return b, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value *domain.RankedBoard, _ time.Duration) error {
	c.boards[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	delete(c.boards, key)
	c.deleted = append(c.deleted, key)
	return nil
}

func TestEngineServesFromCache(t *testing.T) {
	store := &mapCache{boards: map[string]*domain.RankedBoard{}}
	engine := NewEngine(store, time.Minute, nil)

	loads := 0
	loader := func(context.Context) ([]domain.SellerMonthlyStats, error) {
		loads++
		return sampleRows(), nil
	}

	first, err := engine.Board(context.Background(), "store-a", "2026-03", domain.RankByNetAmount, 0, loader)
	require.NoError(t, err)
	second, err := engine.Board(context.Background(), "store-a", "2026-03", domain.RankByNetAmount, 0, loader)
	require.NoError(t, err)

	assert.Equal(t, 1, loads)
	assert.Equal(t, first.GeneratedAt, second.GeneratedAt)

	engine.Invalidate(context.Background(), "store-a", "2026-03")
	assert.Len(t, store.deleted, 4)

	_, err = engine.Board(context.Background(), "store-a", "2026-03", domain.RankByNetAmount, 0, loader)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestEngineRefreshesInProcessBoardAfterInterval(t *testing.T) {
	engine := NewEngine(cache.NewMemoryLeaderboardCache(time.Hour), 0, nil)

	loads := 0
	loader := func(context.Context) ([]domain.SellerMonthlyStats, error) {
		loads++
		return sampleRows(), nil
	}
	refresh := 40 * time.Millisecond

	_, err := engine.Board(context.Background(), "store-a", "2026-03", domain.RankByScore, refresh, loader)
	require.NoError(t, err)
	_, err = engine.Board(context.Background(), "store-a", "2026-03", domain.RankByScore, refresh, loader)
	require.NoError(t, err)
	assert.Equal(t, 1, loads)

	time.Sleep(2 * refresh)
	_, err = engine.Board(context.Background(), "store-a", "2026-03", domain.RankByScore, refresh, loader)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestEngineFallsThroughOnCacheError(t *testing.T) {
	store := &mapCache{boards: map[string]*domain.RankedBoard{}, getErr: errors.New("redis down")}
	engine := NewEngine(store, time.Minute, nil)

	b, err := engine.Board(context.Background(), "store-a", "2026-03", domain.RankByBonus, 0, func(context.Context) ([]domain.SellerMonthlyStats, error) {
		return sampleRows(), nil
	})
	require.NoError(t, err)
	assert.Len(t, b.Rows, 4)
	assert.Equal(t, domain.RankByBonus, b.RankBy)
}

func TestEngineLoaderError(t *testing.T) {
	engine := NewEngine(nil, 0, nil)
	_, err := engine.Board(context.Background(), "store-a", "2026-03", domain.RankByNetAmount, 0, func(context.Context) ([]domain.SellerMonthlyStats, error) {
		return nil, errors.New("boom")
	})
	assert.Error(t, err)
}
