package commission

import (
	"math"

	"github.com/shopspring/decimal"

	"posconsole/backend/internal/domain"
)

const (
	weightAchievement = 0.40
	weightVolume      = 0.25
	weightBasket      = 0.20
	weightDiscipline  = 0.15

	baselineAchievementNoTarget = 70.0
	baselineBasketNoTeam        = 60.0
	cancellationPenaltyFactor   = 4.0
)

const (
	IssueNoSales           = "no sales"
	IssueObjectiveBehind   = "objective behind"
	IssueHighCancellations = "high cancellations"
	IssueLowBasket         = "low basket"
)

var recommendedActions = map[domain.Segment]string{
	domain.SegmentExcellent: "Keep the momentum: share selling practices with the team and aim for the next tier.",
	domain.SegmentSolide:    "Solid month: focus on basket size and follow-up on open credits to reach the next tier.",
	domain.SegmentFragile:   "Schedule a coaching session: review cancellations and set weekly intermediate targets.",
	domain.SegmentCritique:  "Immediate action plan with the store manager: daily check-ins on activity and objectives.",
}

// ScoreInput is the part of a seller's monthly stats the scorer reads.
type ScoreInput struct {
	NetAmount         decimal.Decimal
	SaleCount         int
	CancellationCount int
	AvgBasket         decimal.Decimal
	Tiers             []domain.Tier
}

// TeamContext carries the store-wide figures each seller is compared against.
type TeamContext struct {
	MaxNet        decimal.Decimal
	AvgBasket     decimal.Decimal
	ActiveSellers int
	TotalSellers  int
}

// TeamContextOf derives the team context from every seller's aggregates. The
// team basket is the mean of the sellers' baskets, counting only sellers with
// at least one sale.
func TeamContextOf(all []Aggregates) TeamContext {
	ctx := TeamContext{MaxNet: decimal.Zero, AvgBasket: decimal.Zero, TotalSellers: len(all)}
	basketSum := decimal.Zero
	for _, agg := range all {
		if agg.NetAmount.GreaterThan(ctx.MaxNet) {
			ctx.MaxNet = agg.NetAmount
		}
		if agg.SaleCount > 0 {
			ctx.ActiveSellers++
			basketSum = basketSum.Add(agg.AvgBasket)
		}
	}
	if ctx.ActiveSellers > 0 {
		ctx.AvgBasket = basketSum.Div(decimal.NewFromInt(int64(ctx.ActiveSellers))).Round(moneyPlaces)
	}
	return ctx
}

// Score computes the composite efficiency score of one seller.
func Score(in ScoreInput, team TeamContext) domain.EfficiencyScore {
	net := in.NetAmount.InexactFloat64()
	target := Target(in.Tiers).InexactFloat64()

	var achievementPct *float64
	achievement := 0.0
	behind := false
	switch {
	case target > 0:
		raw := net / target * 100
		pct := round1(raw)
		achievementPct = &pct
		achievement = clamp(raw)
		behind = raw < 80
	case net > 0:
		achievement = baselineAchievementNoTarget
	}

	volume := 0.0
	if maxNet := team.MaxNet.InexactFloat64(); maxNet > 0 {
		volume = clamp(net / maxNet * 100)
	}

	basket := 0.0
	avgBasket := in.AvgBasket.InexactFloat64()
	if teamBasket := team.AvgBasket.InexactFloat64(); teamBasket > 0 {
		basket = clamp(avgBasket / teamBasket * 100)
	} else if avgBasket > 0 {
		basket = baselineBasketNoTeam
	}

	cancellationRate := 0.0
	discipline := 100.0
	if in.SaleCount > 0 {
		cancellationRate = float64(in.CancellationCount) / float64(in.SaleCount) * 100
		discipline = clamp(100 - cancellationRate*cancellationPenaltyFactor)
	}

	score := round1(clamp(weightAchievement*achievement +
		weightVolume*volume +
		weightBasket*basket +
		weightDiscipline*discipline))
	segment := SegmentFor(score)

	issues := make([]string, 0, 4)
	if in.SaleCount == 0 {
		issues = append(issues, IssueNoSales)
	}
	// Compared unrounded: 79.996% still counts as behind.
	if behind {
		issues = append(issues, IssueObjectiveBehind)
	}
	if cancellationRate >= 10 {
		issues = append(issues, IssueHighCancellations)
	}
	if in.SaleCount >= 3 && basket < 80 {
		issues = append(issues, IssueLowBasket)
	}

	return domain.EfficiencyScore{
		Score:             score,
		Segment:           segment,
		AchievementIndex:  round1(achievement),
		VolumeIndex:       round1(volume),
		BasketIndex:       round1(basket),
		DisciplineIndex:   round1(discipline),
		AchievementPct:    achievementPct,
		CancellationRate:  round1(cancellationRate),
		Issues:            issues,
		RecommendedAction: recommendedActions[segment],
	}
}

func SegmentFor(score float64) domain.Segment {
	switch {
	case score >= 80:
		return domain.SegmentExcellent
	case score >= 65:
		return domain.SegmentSolide
	case score >= 50:
		return domain.SegmentFragile
	default:
		return domain.SegmentCritique
	}
}

func RecommendedAction(segment domain.Segment) string {
	return recommendedActions[segment]
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
