package commission

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posconsole/backend/internal/domain"
)

func TestSegmentBoundaries(t *testing.T) {
	cases := map[float64]domain.Segment{
		100:  domain.SegmentExcellent,
		80.0: domain.SegmentExcellent,
		79.9: domain.SegmentSolide,
		65.0: domain.SegmentSolide,
		64.9: domain.SegmentFragile,
		50.0: domain.SegmentFragile,
		49.9: domain.SegmentCritique,
		0:    domain.SegmentCritique,
	}
	for score, want := range cases {
		assert.Equal(t, want, SegmentFor(score), "score %.1f", score)
	}
}

func TestDisciplineIndex(t *testing.T) {
	s := Score(ScoreInput{
		NetAmount:         d("100000"),
		SaleCount:         20,
		CancellationCount: 5,
		AvgBasket:         d("5000"),
	}, TeamContext{MaxNet: d("100000"), AvgBasket: d("5000")})

	assert.Equal(t, 25.0, s.CancellationRate)
	assert.Equal(t, 0.0, s.DisciplineIndex)
	assert.Contains(t, s.Issues, IssueHighCancellations)
}

func TestScoreNeutralDisciplineWithoutSales(t *testing.T) {
	s := Score(ScoreInput{NetAmount: decimal.Zero, Tiers: storeTiers()}, TeamContext{MaxNet: d("500000"), AvgBasket: d("2000")})

	assert.Equal(t, 100.0, s.DisciplineIndex)
	assert.Equal(t, 0.0, s.AchievementIndex)
	assert.Equal(t, 0.0, s.VolumeIndex)
	assert.Equal(t, 0.0, s.BasketIndex)
	assert.Equal(t, 15.0, s.Score)
	assert.Equal(t, domain.SegmentCritique, s.Segment)
	assert.Contains(t, s.Issues, IssueNoSales)
	assert.Contains(t, s.Issues, IssueObjectiveBehind)
	require.NotNil(t, s.AchievementPct)
	assert.Equal(t, 0.0, *s.AchievementPct)
}

func TestScoreComposite(t *testing.T) {
	// achievement 50, volume 50, basket 100, discipline 100 -> 20 + 12.5 + 20 + 15
	s := Score(ScoreInput{
		NetAmount: d("500000"),
		SaleCount: 10,
		AvgBasket: d("50000"),
		Tiers:     storeTiers(),
	}, TeamContext{MaxNet: d("1000000"), AvgBasket: d("50000")})

	assert.Equal(t, 50.0, s.AchievementIndex)
	assert.Equal(t, 50.0, s.VolumeIndex)
	assert.Equal(t, 100.0, s.BasketIndex)
	assert.Equal(t, 100.0, s.DisciplineIndex)
	assert.Equal(t, 67.5, s.Score)
	assert.Equal(t, domain.SegmentSolide, s.Segment)
	assert.Equal(t, RecommendedAction(domain.SegmentSolide), s.RecommendedAction)
	assert.Contains(t, s.Issues, IssueObjectiveBehind)
	assert.NotContains(t, s.Issues, IssueLowBasket)
}

func TestScoreObjectiveBehindUsesUnroundedAchievement(t *testing.T) {
	tiers := []domain.Tier{{Rank: 1, Name: "Objectif", Threshold: d("1000000"), BonusAmount: d("50000")}}
	team := TeamContext{MaxNet: d("1000000"), AvgBasket: d("80000")}

	short := Score(ScoreInput{NetAmount: d("799960"), SaleCount: 10, AvgBasket: d("79996"), Tiers: tiers}, team)
	require.NotNil(t, short.AchievementPct)
	assert.Equal(t, 80.0, *short.AchievementPct)
	assert.Contains(t, short.Issues, IssueObjectiveBehind)

	met := Score(ScoreInput{NetAmount: d("800000"), SaleCount: 10, AvgBasket: d("80000"), Tiers: tiers}, team)
	assert.NotContains(t, met.Issues, IssueObjectiveBehind)
}

func TestScoreClampsEveryIndex(t *testing.T) {
	s := Score(ScoreInput{
		NetAmount: d("9000000"),
		SaleCount: 4,
		AvgBasket: d("2250000"),
		Tiers:     storeTiers(),
	}, TeamContext{MaxNet: d("10"), AvgBasket: d("1")})

	assert.Equal(t, 100.0, s.AchievementIndex)
	assert.Equal(t, 100.0, s.VolumeIndex)
	assert.Equal(t, 100.0, s.BasketIndex)
	assert.Equal(t, 100.0, s.Score)
	require.NotNil(t, s.AchievementPct)
	assert.Equal(t, 900.0, *s.AchievementPct)
}

func TestScoreBaselines(t *testing.T) {
	s := Score(ScoreInput{NetAmount: d("1000"), SaleCount: 1, AvgBasket: d("1000")}, TeamContext{})

	assert.Nil(t, s.AchievementPct, "achievement is not applicable without tiers")
	assert.Equal(t, 70.0, s.AchievementIndex)
	assert.Equal(t, 60.0, s.BasketIndex)
	assert.Equal(t, 0.0, s.VolumeIndex)
	assert.NotContains(t, s.Issues, IssueObjectiveBehind)
}

func TestScoreLowBasket(t *testing.T) {
	s := Score(ScoreInput{NetAmount: d("3000"), SaleCount: 3, AvgBasket: d("1000")}, TeamContext{MaxNet: d("3000"), AvgBasket: d("2000")})
	assert.Equal(t, 50.0, s.BasketIndex)
	assert.Contains(t, s.Issues, IssueLowBasket)
}

func TestScoreAlwaysInRange(t *testing.T) {
	nets := []string{"-5000", "0", "1", "99999", "250000", "1000000", "50000000"}
	counts := []int{0, 1, 3, 10, 200}
	for _, net := range nets {
		for _, sales := range counts {
			for _, cancels := range []int{0, 1, sales, sales * 3} {
				s := Score(ScoreInput{
					NetAmount:         d(net),
					SaleCount:         sales,
					CancellationCount: cancels,
					AvgBasket:         d(net).Div(decimal.NewFromInt(int64(sales + 1))),
					Tiers:             storeTiers(),
				}, TeamContext{MaxNet: d("1000000"), AvgBasket: d("25000")})
				assert.GreaterOrEqual(t, s.Score, 0.0)
				assert.LessOrEqual(t, s.Score, 100.0)
			}
		}
	}
}

func TestTeamContextOf(t *testing.T) {
	team := TeamContextOf([]Aggregates{
		{NetAmount: d("1000"), SaleCount: 2, AvgBasket: d("500")},
		{NetAmount: d("3000"), SaleCount: 3, AvgBasket: d("1000")},
		{NetAmount: decimal.Zero},
	})
	assert.True(t, d("3000").Equal(team.MaxNet))
	assert.True(t, d("750").Equal(team.AvgBasket))
	assert.Equal(t, 2, team.ActiveSellers)
	assert.Equal(t, 3, team.TotalSellers)
}
