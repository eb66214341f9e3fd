package commission

import (
	"time"

	"github.com/shopspring/decimal"

	"posconsole/backend/internal/domain"
)

// Settlement is the outcome of tier resolution, penalties and bonus.
type Settlement struct {
	Tier       *domain.Tier
	CapRank    int
	GrossBonus decimal.Decimal
	Deduction  decimal.Decimal
	Bonus      decimal.Decimal
}

// Settle resolves the tier and bonus for a net amount. CAP penalties shrink the
// tier list before resolution; DEDUCTION penalties are taken off the bonus
// afterwards and floored at zero.
func Settle(net decimal.Decimal, snapshot []domain.Tier, penalties []domain.SellerPenalty) Settlement {
	capRank := EffectiveCap(penalties)
	eligible := CapTiers(SortTiers(snapshot), capRank)

	var resolved *domain.Tier
	if tier, ok := ResolveTier(net, eligible); ok {
		resolved = &tier
	}

	gross := CalculateBonus(resolved, net)
	deduction := TotalDeduction(penalties)
	return Settlement{
		Tier:       resolved,
		CapRank:    capRank,
		GrossBonus: gross,
		Deduction:  deduction,
		Bonus:      Deduct(gross, deduction),
	}
}

type Input struct {
	StoreID    string
	Period     domain.Period
	Aggregates Aggregates
	Rule       *domain.ObjectiveRule
	Penalties  []domain.SellerPenalty
	Team       TeamContext
}

// Compute runs the full per-seller pipeline and returns the stats row to
// persist. The tier snapshot is copied from the rule so later rule versions
// never change the row.
func Compute(in Input, now time.Time) domain.SellerMonthlyStats {
	agg := in.Aggregates

	var snapshot []domain.Tier
	ruleID, ruleVersion := "", 0
	if in.Rule != nil {
		snapshot = SortTiers(in.Rule.Tiers)
		ruleID, ruleVersion = in.Rule.ID, in.Rule.Version
	}
	if snapshot == nil {
		snapshot = []domain.Tier{}
	}

	settlement := Settle(agg.NetAmount, snapshot, in.Penalties)
	score := Score(ScoreInput{
		NetAmount:         agg.NetAmount,
		SaleCount:         agg.SaleCount,
		CancellationCount: agg.CancellationCount,
		AvgBasket:         agg.AvgBasket,
		Tiers:             snapshot,
	}, in.Team)

	stats := domain.SellerMonthlyStats{
		SellerID:          agg.SellerID,
		SellerName:        agg.SellerName,
		StoreID:           in.StoreID,
		Period:            in.Period,
		GrossAmount:       agg.GrossAmount,
		RefundAmount:      agg.RefundAmount,
		NetAmount:         agg.NetAmount,
		SaleCount:         agg.SaleCount,
		CancellationCount: agg.CancellationCount,
		AvgBasket:         agg.AvgBasket,
		CreditRecovered:   agg.CreditRecovered,
		RuleID:            ruleID,
		RuleVersion:       ruleVersion,
		TierSnapshot:      snapshot,
		Penalties:         in.Penalties,
		BonusEarned:       settlement.Bonus,
		Score:             score,
		ComputedAt:        now.UTC(),
	}
	if settlement.Tier != nil {
		rank, name := settlement.Tier.Rank, settlement.Tier.Name
		stats.CurrentTierRank = &rank
		stats.CurrentTierName = &name
	}
	return stats
}
