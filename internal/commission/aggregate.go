package commission

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"posconsole/backend/internal/domain"
)

var ErrInvalidFacts = errors.New("invalid ledger facts")

// Aggregates are the per-seller monthly totals derived from ledger facts.
type Aggregates struct {
	SellerID          string
	SellerName        string
	GrossAmount       decimal.Decimal
	RefundAmount      decimal.Decimal
	NetAmount         decimal.Decimal
	SaleCount         int
	CancellationCount int
	AvgBasket         decimal.Decimal
	CreditRecovered   decimal.Decimal
}

// Aggregate turns raw ledger facts into the seller's monthly aggregates. It is
// a pure function, so rerunning it over unchanged facts gives identical output.
func Aggregate(facts domain.LedgerFacts) (Aggregates, error) {
	switch {
	case facts.GrossAmount.IsNegative():
		return Aggregates{}, fmt.Errorf("%w: negative gross amount for seller %s", ErrInvalidFacts, facts.SellerID)
	case facts.RefundAmount.IsNegative():
		return Aggregates{}, fmt.Errorf("%w: negative refund amount for seller %s", ErrInvalidFacts, facts.SellerID)
	case facts.RefundAmount.GreaterThan(facts.GrossAmount):
		return Aggregates{}, fmt.Errorf("%w: refunds %s exceed gross %s for seller %s",
			ErrInvalidFacts, facts.RefundAmount, facts.GrossAmount, facts.SellerID)
	case facts.CreditRecovered.IsNegative():
		return Aggregates{}, fmt.Errorf("%w: negative credit recovered for seller %s", ErrInvalidFacts, facts.SellerID)
	case facts.SaleCount < 0 || facts.CancellationCount < 0:
		return Aggregates{}, fmt.Errorf("%w: negative counts for seller %s", ErrInvalidFacts, facts.SellerID)
	}

	net := facts.GrossAmount.Sub(facts.RefundAmount)
	avg := decimal.Zero
	if facts.SaleCount > 0 {
		avg = net.Div(decimal.NewFromInt(int64(facts.SaleCount))).Round(moneyPlaces)
	}

	return Aggregates{
		SellerID:          facts.SellerID,
		GrossAmount:       facts.GrossAmount,
		RefundAmount:      facts.RefundAmount,
		NetAmount:         net,
		SaleCount:         facts.SaleCount,
		CancellationCount: facts.CancellationCount,
		AvgBasket:         avg,
		CreditRecovered:   facts.CreditRecovered,
	}, nil
}
