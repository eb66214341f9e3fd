package commission

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"posconsole/backend/internal/domain"
)

var (
	ErrEmptyTiers             = errors.New("tier list is empty")
	ErrDuplicateRank          = errors.New("duplicate tier rank")
	ErrNonIncreasingThreshold = errors.New("tier thresholds must be strictly increasing")
	ErrInvalidTier            = errors.New("invalid tier")
)

var hundred = decimal.NewFromInt(100)

// ValidateTiers checks a tier list at save time. Ranks must be unique and
// positive, and thresholds must strictly increase with rank.
func ValidateTiers(tiers []domain.Tier) error {
	if len(tiers) == 0 {
		return ErrEmptyTiers
	}

	seen := make(map[int]struct{}, len(tiers))
	for _, tier := range tiers {
		if tier.Rank < 1 {
			return fmt.Errorf("%w: rank must be >= 1, got %d", ErrInvalidTier, tier.Rank)
		}
		if strings.TrimSpace(tier.Name) == "" {
			return fmt.Errorf("%w: rank %d has no name", ErrInvalidTier, tier.Rank)
		}
		if tier.Threshold.IsNegative() {
			return fmt.Errorf("%w: rank %d has a negative threshold", ErrInvalidTier, tier.Rank)
		}
		if tier.BonusAmount.IsNegative() {
			return fmt.Errorf("%w: rank %d has a negative bonus amount", ErrInvalidTier, tier.Rank)
		}
		if tier.BonusRate.IsNegative() || tier.BonusRate.GreaterThan(hundred) {
			return fmt.Errorf("%w: rank %d bonus rate must be within 0..100", ErrInvalidTier, tier.Rank)
		}
		if _, dup := seen[tier.Rank]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateRank, tier.Rank)
		}
		seen[tier.Rank] = struct{}{}
	}

	sorted := SortTiers(tiers)
	for i := 1; i < len(sorted); i++ {
		if !sorted[i].Threshold.GreaterThan(sorted[i-1].Threshold) {
			return fmt.Errorf("%w: rank %d (%s) is not above rank %d (%s)", ErrNonIncreasingThreshold,
				sorted[i].Rank, sorted[i].Threshold, sorted[i-1].Rank, sorted[i-1].Threshold)
		}
	}
	return nil
}

// SortTiers returns a copy of tiers ordered by ascending rank.
func SortTiers(tiers []domain.Tier) []domain.Tier {
	sorted := CloneTiers(tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Rank < sorted[j].Rank
	})
	return sorted
}

func CloneTiers(tiers []domain.Tier) []domain.Tier {
	if tiers == nil {
		return nil
	}
	out := make([]domain.Tier, len(tiers))
	copy(out, tiers)
	return out
}

// ResolveTier returns the tier with the largest threshold not above net, or
// false when net is below every threshold. Tiers must be ascending.
func ResolveTier(net decimal.Decimal, tiers []domain.Tier) (domain.Tier, bool) {
	idx := sort.Search(len(tiers), func(i int) bool {
		return tiers[i].Threshold.GreaterThan(net)
	})
	if idx == 0 {
		return domain.Tier{}, false
	}
	return tiers[idx-1], true
}

// CapTiers keeps only the tiers ranked strictly below capRank. A capRank of
// zero or less means no cap.
func CapTiers(tiers []domain.Tier, capRank int) []domain.Tier {
	if capRank <= 0 {
		return tiers
	}
	capped := make([]domain.Tier, 0, len(tiers))
	for _, tier := range tiers {
		if tier.Rank < capRank {
			capped = append(capped, tier)
		}
	}
	return capped
}

// Target is the highest threshold of the list, or zero when no tiers exist.
func Target(tiers []domain.Tier) decimal.Decimal {
	target := decimal.Zero
	for _, tier := range tiers {
		if tier.Threshold.GreaterThan(target) {
			target = tier.Threshold
		}
	}
	return target
}
