package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posconsole/backend/internal/domain"
	"posconsole/backend/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("POSCONSOLE_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set POSCONSOLE_TEST_DATABASE_URL to run postgres integration tests")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestRuleVersioningIntegration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	storeID := fmt.Sprintf("it-rules-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM objective_rules WHERE store_id = $1`, storeID)
	})

	tiers := []domain.Tier{
		{Rank: 1, Name: "Bronze", Threshold: decimal.NewFromInt(100000), BonusAmount: decimal.NewFromInt(5000)},
		{Rank: 2, Name: "Argent", Threshold: decimal.NewFromInt(250000), BonusAmount: decimal.NewFromInt(15000), BonusRate: decimal.RequireFromString("1.5")},
	}
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	v1, err := s.CreateRuleVersion(ctx, domain.ObjectiveRule{StoreID: storeID, Name: "v1", ValidFrom: from, IsActive: true, Tiers: tiers})
	require.NoError(t, err)
	v2, err := s.CreateRuleVersion(ctx, domain.ObjectiveRule{StoreID: storeID, Name: "v2", ValidFrom: from.AddDate(0, 3, 0), IsActive: true, Tiers: tiers})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)

	_, err = s.CreateRuleVersion(ctx, domain.ObjectiveRule{StoreID: storeID, Name: "late", ValidFrom: from.AddDate(0, 1, 0), IsActive: true, Tiers: tiers})
	assert.ErrorIs(t, err, store.ErrRuleOverlap)

	closed, err := s.GetRule(ctx, v1.ID)
	require.NoError(t, err)
	require.NotNil(t, closed.ValidUntil)
	assert.Equal(t, from.AddDate(0, 3, -1), *closed.ValidUntil)
	require.Len(t, closed.Tiers, 2)
	assert.True(t, decimal.RequireFromString("1.5").Equal(closed.Tiers[1].BonusRate))

	inForce, err := s.FindRuleInForce(ctx, storeID, from.AddDate(0, 1, 10))
	require.NoError(t, err)
	require.NotNil(t, inForce)
	assert.Equal(t, v1.ID, inForce.ID)
}

func TestStatsFinalizationIntegration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	storeID := fmt.Sprintf("it-stats-%d", time.Now().UnixNano())
	period := domain.Period("2026-03")
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM seller_monthly_stats WHERE store_id = $1`, storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM period_states WHERE store_id = $1`, storeID)
	})

	rank, name := 3, "Or"
	row := domain.SellerMonthlyStats{
		StoreID:         storeID,
		Period:          period,
		SellerID:        "seller-1",
		NetAmount:       decimal.NewFromInt(500000),
		BonusEarned:     decimal.NewFromInt(35000),
		CurrentTierRank: &rank,
		CurrentTierName: &name,
		TierSnapshot:    []domain.Tier{{Rank: 3, Name: "Or", Threshold: decimal.NewFromInt(500000)}},
		Score:           domain.EfficiencyScore{Score: 81.5, Segment: domain.SegmentExcellent},
		ComputedAt:      time.Now(),
	}

	saved, err := s.SaveSellerStats(ctx, row, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Version)

	_, err = s.SaveSellerStats(ctx, row, 0)
	assert.ErrorIs(t, err, store.ErrConcurrentModification)

	_, err = s.FinalizePeriod(ctx, storeID, period, "admin", time.Now())
	require.NoError(t, err)
	_, err = s.SaveSellerStats(ctx, row, 1)
	assert.ErrorIs(t, err, store.ErrPeriodFinalized)

	loaded, err := s.GetSellerStats(ctx, storeID, period, "seller-1")
	require.NoError(t, err)
	assert.True(t, loaded.IsFinal)
	assert.Equal(t, 81.5, loaded.Score.Score)
	require.NotNil(t, loaded.CurrentTierName)
	assert.Equal(t, "Or", *loaded.CurrentTierName)

	state, err := s.UnlockPeriod(ctx, storeID, period, "admin", "late refund", time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.PeriodDraft, state.Status)
	_, err = s.SaveSellerStats(ctx, row, 1)
	assert.NoError(t, err)
}

func TestLedgerFactsIntegration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	storeID := fmt.Sprintf("it-ledger-%d", stamp)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE store_id = $1`, storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM credit_payments WHERE store_id = $1`, storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sellers WHERE store_id = $1`, storeID)
	})

	_, err := s.db.ExecContext(ctx, `INSERT INTO sellers (id, store_id, name) VALUES ($1, $2, 'IT Seller')`, fmt.Sprintf("seller-%d", stamp), storeID)
	require.NoError(t, err)
	sellerID := fmt.Sprintf("seller-%d", stamp)
	for i, sale := range []struct {
		status   string
		total    string
		refunded string
		soldAt   string
	}{
		{"COMPLETED", "1000", "0", "2026-03-02T10:00:00Z"},
		{"COMPLETED", "500", "100", "2026-03-05T10:00:00Z"},
		{"CANCELLED", "300", "0", "2026-03-09T10:00:00Z"},
		{"COMPLETED", "9999", "0", "2026-04-01T00:00:00Z"},
	} {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sales (id, store_id, seller_id, status, total, refunded_amount, sold_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, fmt.Sprintf("sale-%d-%d", stamp, i), storeID, sellerID, sale.status, sale.total, sale.refunded, sale.soldAt)
		require.NoError(t, err)
	}

	facts, err := s.SellerLedgerFacts(ctx, storeID, sellerID, "2026-03")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1800).Equal(facts.GrossAmount))
	assert.True(t, decimal.NewFromInt(400).Equal(facts.RefundAmount))
	assert.Equal(t, 2, facts.SaleCount)
	assert.Equal(t, 1, facts.CancellationCount)

	stores, err := s.ListStores(ctx)
	require.NoError(t, err)
	assert.Contains(t, stores, storeID)
}
