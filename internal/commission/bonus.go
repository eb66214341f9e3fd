package commission

import (
	"github.com/shopspring/decimal"

	"posconsole/backend/internal/domain"
)

const moneyPlaces = 2

// CalculateBonus is the fixed amount of the tier plus its rate applied to net.
// A nil tier earns nothing.
func CalculateBonus(tier *domain.Tier, net decimal.Decimal) decimal.Decimal {
	if tier == nil {
		return decimal.Zero
	}
	bonus := tier.BonusAmount
	if tier.BonusRate.IsPositive() && net.IsPositive() {
		bonus = bonus.Add(net.Mul(tier.BonusRate).Div(hundred))
	}
	return bonus.Round(moneyPlaces)
}
