package leaderboard

import (
	"sort"

	"github.com/shopspring/decimal"

	"posconsole/backend/internal/domain"
)

// Rank orders rows by metric, highest first. Equal values share a rank and the
// next distinct value skips ahead (1, 2, 2, 4). Ties are listed by seller id.
func Rank(rows []domain.SellerMonthlyStats, metric domain.RankMetric) []domain.RankedStats {
	if !metric.Valid() {
		metric = domain.RankByNetAmount
	}

	sorted := make([]domain.SellerMonthlyStats, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		vi, vj := MetricValue(sorted[i], metric), MetricValue(sorted[j], metric)
		if !vi.Equal(vj) {
			return vi.GreaterThan(vj)
		}
		return sorted[i].SellerID < sorted[j].SellerID
	})

	ranked := make([]domain.RankedStats, 0, len(sorted))
	for i, row := range sorted {
		rank := i + 1
		if i > 0 && MetricValue(row, metric).Equal(MetricValue(sorted[i-1], metric)) {
			rank = ranked[i-1].Rank
		}
		ranked = append(ranked, domain.RankedStats{Rank: rank, Stats: row})
	}
	return ranked
}

// MetricValue is the comparable value of row under metric. Unknown metrics
// read net amount.
func MetricValue(row domain.SellerMonthlyStats, metric domain.RankMetric) decimal.Decimal {
	switch metric {
	case domain.RankByBonus:
		return row.BonusEarned
	case domain.RankByScore:
		return decimal.NewFromFloat(row.Score.Score)
	case domain.RankBySaleCount:
		return decimal.NewFromInt(int64(row.SaleCount))
	default:
		return row.NetAmount
	}
}

// Project redacts a ranked board for one viewer. Nothing here is persisted;
// admins always get the full board.
func Project(board domain.RankedBoard, settings domain.LeaderboardSettings, viewer domain.Actor) domain.LeaderboardView {
	visibility := settings.Visibility
	if !visibility.Valid() {
		visibility = domain.VisibilityAnonymous
	}
	showAmounts, showTier := settings.ShowAmounts, settings.ShowTier
	if viewer.Role == domain.RoleAdmin {
		visibility, showAmounts, showTier = domain.VisibilityFull, true, true
	}

	view := domain.LeaderboardView{
		StoreID:     board.StoreID,
		Period:      board.Period,
		Visibility:  visibility,
		RankBy:      board.RankBy,
		Entries:     []domain.LeaderboardEntry{},
		GeneratedAt: board.GeneratedAt,
	}

	if visibility == domain.VisibilityAnonymous {
		view.Distribution = distribution(board.Rows, showAmounts, showTier)
		return view
	}

	for _, row := range board.Rows {
		stats := row.Stats
		entry := domain.LeaderboardEntry{
			Rank:   row.Rank,
			IsSelf: viewer.SellerID != "" && viewer.SellerID == stats.SellerID,
		}

		switch visibility {
		case domain.VisibilityFull:
			entry.SellerID = stats.SellerID
			entry.SellerName = stats.SellerName
			score := stats.Score.Score
			entry.Score = &score
			entry.Segment = stats.Score.Segment
			if showTier {
				entry.TierRank, entry.TierName = stats.CurrentTierRank, stats.CurrentTierName
			}
			if showAmounts {
				net, bonus := stats.NetAmount, stats.BonusEarned
				entry.NetAmount, entry.Bonus = &net, &bonus
			}
		case domain.VisibilityTierAndRank:
			if showTier {
				entry.TierRank, entry.TierName = stats.CurrentTierRank, stats.CurrentTierName
			}
		}

		if entry.IsSelf && visibility != domain.VisibilityFull {
			entry.SellerID = stats.SellerID
			entry.SellerName = stats.SellerName
		}
		view.Entries = append(view.Entries, entry)
	}
	return view
}

func distribution(rows []domain.RankedStats, showAmounts bool, showTier bool) *domain.LeaderboardDistribution {
	dist := &domain.LeaderboardDistribution{Participants: len(rows)}
	if showTier {
		dist.ByTier = make(map[string]int)
		for _, row := range rows {
			name := "none"
			if row.Stats.CurrentTierName != nil {
				name = *row.Stats.CurrentTierName
			}
			dist.ByTier[name]++
		}
	}
	if !showAmounts || len(rows) == 0 {
		return dist
	}

	nets := make([]decimal.Decimal, 0, len(rows))
	total := decimal.Zero
	for _, row := range rows {
		nets = append(nets, row.Stats.NetAmount)
		total = total.Add(row.Stats.NetAmount)
	}
	sort.Slice(nets, func(i, j int) bool { return nets[i].LessThan(nets[j]) })

	count := decimal.NewFromInt(int64(len(nets)))
	average := total.Div(count).Round(2)
	median := nets[len(nets)/2]
	if len(nets)%2 == 0 {
		median = nets[len(nets)/2-1].Add(nets[len(nets)/2]).Div(decimal.NewFromInt(2)).Round(2)
	}
	maxNet := nets[len(nets)-1]

	dist.TotalNet = &total
	dist.AverageNet = &average
	dist.MedianNet = &median
	dist.MaxNet = &maxNet
	return dist
}
