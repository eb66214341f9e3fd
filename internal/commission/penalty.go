package commission

import (
	"github.com/shopspring/decimal"

	"posconsole/backend/internal/domain"
)

// EffectiveCap returns the lowest cap rank among CAP penalties, or 0 if none.
func EffectiveCap(penalties []domain.SellerPenalty) int {
	capRank := 0
	for _, p := range penalties {
		if p.Mode != domain.PenaltyCap || p.CapRank <= 0 {
			continue
		}
		if capRank == 0 || p.CapRank < capRank {
			capRank = p.CapRank
		}
	}
	return capRank
}

// TotalDeduction sums the amounts of every DEDUCTION penalty.
func TotalDeduction(penalties []domain.SellerPenalty) decimal.Decimal {
	total := decimal.Zero
	for _, p := range penalties {
		if p.Mode != domain.PenaltyDeduction || !p.Amount.IsPositive() {
			continue
		}
		total = total.Add(p.Amount)
	}
	return total
}

// Deduct subtracts a deduction from a bonus, never going below zero.
func Deduct(bonus decimal.Decimal, deduction decimal.Decimal) decimal.Decimal {
	if !deduction.IsPositive() {
		return bonus
	}
	left := bonus.Sub(deduction)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}
