package commission

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posconsole/backend/internal/domain"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func storeTiers() []domain.Tier {
	return []domain.Tier{
		{Rank: 1, Name: "Bronze", Threshold: d("100000"), BonusAmount: d("5000")},
		{Rank: 2, Name: "Argent", Threshold: d("250000"), BonusAmount: d("15000")},
		{Rank: 3, Name: "Or", Threshold: d("500000"), BonusAmount: d("35000")},
		{Rank: 4, Name: "Elite", Threshold: d("1000000"), BonusAmount: d("80000")},
	}
}

func TestValidateTiers(t *testing.T) {
	require.NoError(t, ValidateTiers(storeTiers()))

	assert.ErrorIs(t, ValidateTiers(nil), ErrEmptyTiers)

	dupRank := storeTiers()
	dupRank[1].Rank = 1
	assert.ErrorIs(t, ValidateTiers(dupRank), ErrDuplicateRank)

	equal := storeTiers()
	equal[2].Threshold = d("250000")
	assert.ErrorIs(t, ValidateTiers(equal), ErrNonIncreasingThreshold)

	decreasing := storeTiers()
	decreasing[3].Threshold = d("400000")
	assert.ErrorIs(t, ValidateTiers(decreasing), ErrNonIncreasingThreshold)

	badRate := storeTiers()
	badRate[0].BonusRate = d("101")
	assert.ErrorIs(t, ValidateTiers(badRate), ErrInvalidTier)

	noName := storeTiers()
	noName[0].Name = " "
	assert.ErrorIs(t, ValidateTiers(noName), ErrInvalidTier)
}

func TestValidateTiersOrderIndependent(t *testing.T) {
	tiers := storeTiers()
	shuffled := []domain.Tier{tiers[2], tiers[0], tiers[3], tiers[1]}
	require.NoError(t, ValidateTiers(shuffled))

	sorted := SortTiers(shuffled)
	for i, tier := range sorted {
		assert.Equal(t, i+1, tier.Rank)
	}
	assert.Equal(t, 3, shuffled[0].Rank, "SortTiers must not reorder its input")
}

func TestResolveTier(t *testing.T) {
	tiers := storeTiers()
	cases := []struct {
		net  string
		want string
	}{
		{"0", ""},
		{"99999.99", ""},
		{"100000", "Bronze"},
		{"249999", "Bronze"},
		{"250000", "Argent"},
		{"500000", "Or"},
		{"999999.99", "Or"},
		{"1000000", "Elite"},
		{"7500000", "Elite"},
	}
	for _, tc := range cases {
		tier, ok := ResolveTier(d(tc.net), tiers)
		if tc.want == "" {
			assert.False(t, ok, "net %s", tc.net)
			continue
		}
		require.True(t, ok, "net %s", tc.net)
		assert.Equal(t, tc.want, tier.Name, "net %s", tc.net)
	}
}

func TestResolveTierMatchesLinearScan(t *testing.T) {
	tiers := []domain.Tier{
		{Rank: 1, Name: "a", Threshold: d("10")},
		{Rank: 2, Name: "b", Threshold: d("20.5")},
		{Rank: 3, Name: "c", Threshold: d("21")},
		{Rank: 4, Name: "e", Threshold: d("300")},
	}
	for net := int64(0); net <= 400; net++ {
		amount := decimal.NewFromInt(net)
		var want *domain.Tier
		for i := range tiers {
			if tiers[i].Threshold.LessThanOrEqual(amount) {
				want = &tiers[i]
			}
		}
		got, ok := ResolveTier(amount, tiers)
		if want == nil {
			assert.False(t, ok, "net %d", net)
			continue
		}
		require.True(t, ok, "net %d", net)
		assert.Equal(t, want.Rank, got.Rank, "net %d", net)
	}
}

func TestCalculateBonus(t *testing.T) {
	tiers := storeTiers()
	tier, ok := ResolveTier(d("500000"), tiers)
	require.True(t, ok)
	assert.Equal(t, "Or", tier.Name)
	assert.True(t, d("35000").Equal(CalculateBonus(&tier, d("500000"))))

	tier.BonusRate = d("1.5")
	assert.True(t, d("42500").Equal(CalculateBonus(&tier, d("500000"))))

	assert.True(t, decimal.Zero.Equal(CalculateBonus(nil, d("500000"))))
}

func TestSettleDeductionFloorsAtZero(t *testing.T) {
	penalty := []domain.SellerPenalty{{Mode: domain.PenaltyDeduction, Amount: d("10000")}}

	high := Settle(d("500000"), storeTiers(), penalty)
	assert.True(t, d("35000").Equal(high.GrossBonus))
	assert.True(t, d("25000").Equal(high.Bonus), "got %s", high.Bonus)

	low := Settle(d("100000"), storeTiers(), penalty)
	assert.True(t, d("5000").Equal(low.GrossBonus))
	assert.True(t, decimal.Zero.Equal(low.Bonus), "got %s", low.Bonus)
}

func TestSettleCapAppliesBeforeResolution(t *testing.T) {
	penalties := []domain.SellerPenalty{
		{Mode: domain.PenaltyCap, CapRank: 3},
		{Mode: domain.PenaltyCap, CapRank: 4},
	}

	s := Settle(d("1500000"), storeTiers(), penalties)
	require.NotNil(t, s.Tier)
	assert.Equal(t, 3, s.CapRank)
	assert.Equal(t, "Argent", s.Tier.Name)
	assert.True(t, d("15000").Equal(s.Bonus))

	all := Settle(d("1500000"), storeTiers(), []domain.SellerPenalty{{Mode: domain.PenaltyCap, CapRank: 1}})
	assert.Nil(t, all.Tier)
	assert.True(t, decimal.Zero.Equal(all.Bonus))
}

func TestSettleCapAndDeductionCombined(t *testing.T) {
	penalties := []domain.SellerPenalty{
		{Mode: domain.PenaltyCap, CapRank: 2},
		{Mode: domain.PenaltyDeduction, Amount: d("2000")},
		{Mode: domain.PenaltyDeduction, Amount: d("1000")},
	}
	s := Settle(d("600000"), storeTiers(), penalties)
	require.NotNil(t, s.Tier)
	assert.Equal(t, "Bronze", s.Tier.Name)
	assert.True(t, d("3000").Equal(s.Deduction))
	assert.True(t, d("2000").Equal(s.Bonus))
}

func TestAggregate(t *testing.T) {
	agg, err := Aggregate(domain.LedgerFacts{
		SellerID:          "s1",
		GrossAmount:       d("1200"),
		RefundAmount:      d("200"),
		SaleCount:         3,
		CancellationCount: 1,
		CreditRecovered:   d("50"),
	})
	require.NoError(t, err)
	assert.True(t, d("1000").Equal(agg.NetAmount))
	assert.True(t, d("333.33").Equal(agg.AvgBasket), "got %s", agg.AvgBasket)

	empty, err := Aggregate(domain.LedgerFacts{SellerID: "s2"})
	require.NoError(t, err)
	assert.True(t, decimal.Zero.Equal(empty.AvgBasket))

	_, err = Aggregate(domain.LedgerFacts{SellerID: "s3", RefundAmount: d("-1")})
	assert.ErrorIs(t, err, ErrInvalidFacts)
}

func TestAggregateRejectsRefundsAboveGross(t *testing.T) {
	_, err := Aggregate(domain.LedgerFacts{SellerID: "s1", GrossAmount: d("100000"), RefundAmount: d("100001"), SaleCount: 1})
	assert.ErrorIs(t, err, ErrInvalidFacts)

	full, err := Aggregate(domain.LedgerFacts{SellerID: "s1", GrossAmount: d("100000"), RefundAmount: d("100000"), SaleCount: 1})
	require.NoError(t, err)
	assert.True(t, full.NetAmount.IsZero())
}

func TestComputeFreezesSnapshot(t *testing.T) {
	rule := &domain.ObjectiveRule{ID: "rule-1", Version: 2, Tiers: storeTiers()}
	agg := Aggregates{SellerID: "s1", NetAmount: d("500000"), SaleCount: 10, AvgBasket: d("50000")}

	stats := Compute(Input{
		StoreID:    "store-a",
		Period:     "2026-03",
		Aggregates: agg,
		Rule:       rule,
		Team:       TeamContextOf([]Aggregates{agg}),
	}, time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))

	require.NotNil(t, stats.CurrentTierName)
	assert.Equal(t, "Or", *stats.CurrentTierName)
	assert.Equal(t, 3, *stats.CurrentTierRank)
	assert.True(t, d("35000").Equal(stats.BonusEarned))
	assert.Equal(t, "rule-1", stats.RuleID)
	assert.Equal(t, 2, stats.RuleVersion)

	rule.Tiers[2].BonusAmount = d("1")
	assert.True(t, d("35000").Equal(stats.TierSnapshot[2].BonusAmount), "snapshot must not alias the rule tiers")
}

func TestComputeWithoutRule(t *testing.T) {
	agg := Aggregates{SellerID: "s1", NetAmount: d("1000"), SaleCount: 2, AvgBasket: d("500")}
	stats := Compute(Input{StoreID: "x", Period: "2026-01", Aggregates: agg, Team: TeamContextOf([]Aggregates{agg})}, time.Now())

	assert.Nil(t, stats.CurrentTierRank)
	assert.NotNil(t, stats.TierSnapshot)
	assert.Empty(t, stats.TierSnapshot)
	assert.True(t, decimal.Zero.Equal(stats.BonusEarned))
	assert.Nil(t, stats.Score.AchievementPct)
	assert.Equal(t, 70.0, stats.Score.AchievementIndex)
}
