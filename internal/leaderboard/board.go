package leaderboard

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"posconsole/backend/internal/cache"
	"posconsole/backend/internal/domain"
)

// Loader returns the persisted stats rows a board is ranked from.
type Loader func(ctx context.Context) ([]domain.SellerMonthlyStats, error)

type Engine struct {
	cache      cache.LeaderboardCache
	defaultTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

func NewEngine(cacheStore cache.LeaderboardCache, defaultTTL time.Duration, logger *zap.Logger) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopLeaderboardCache{}
	}
	if defaultTTL <= 0 {
		defaultTTL = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cache:      cacheStore,
		defaultTTL: defaultTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// Board returns the ranked, unredacted board for a store and period. A cached
// board is served while it is younger than ttl; cache failures fall through
// to the loader.
func (e *Engine) Board(
	ctx context.Context,
	storeID string,
	period domain.Period,
	metric domain.RankMetric,
	ttl time.Duration,
	load Loader,
) (domain.RankedBoard, error) {
	if !metric.Valid() {
		metric = domain.RankByNetAmount
	}
	if ttl <= 0 {
		ttl = e.defaultTTL
	}

	key := CacheKey(storeID, period, metric)
	cached, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.logger.Warn("leaderboard cache read failed", zap.String("key", key), zap.Error(err))
	}
	if err == nil && ok && cached != nil {
		return *cached, nil
	}

	rows, err := load(ctx)
	if err != nil {
		return domain.RankedBoard{}, err
	}

	board := domain.RankedBoard{
		StoreID:     storeID,
		Period:      period,
		RankBy:      metric,
		Rows:        Rank(rows, metric),
		GeneratedAt: e.now().UTC(),
	}
	if err := e.cache.Set(ctx, key, &board, ttl); err != nil {
		e.logger.Warn("leaderboard cache write failed", zap.String("key", key), zap.Error(err))
	}
	return board, nil
}

// Invalidate drops every cached metric for the store and period.
func (e *Engine) Invalidate(ctx context.Context, storeID string, period domain.Period) {
	for _, metric := range []domain.RankMetric{
		domain.RankByNetAmount,
		domain.RankByBonus,
		domain.RankByScore,
		domain.RankBySaleCount,
	} {
		key := CacheKey(storeID, period, metric)
		if err := e.cache.Delete(ctx, key); err != nil {
			e.logger.Warn("leaderboard cache invalidation failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func CacheKey(storeID string, period domain.Period, metric domain.RankMetric) string {
	return fmt.Sprintf("posconsole:leaderboard:%s:%s:%s", storeID, period, metric)
}
