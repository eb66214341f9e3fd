package postgres

import (
	"context"

	"posconsole/backend/internal/domain"
)

func (s *Store) ListStores(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT store_id FROM sellers WHERE active ORDER BY store_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stores := make([]string, 0, 4)
	for rows.Next() {
		var storeID string
		if err := rows.Scan(&storeID); err != nil {
			return nil, err
		}
		stores = append(stores, storeID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stores, nil
}

func (s *Store) ListSellers(ctx context.Context, storeID string) ([]domain.Seller, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, name FROM sellers
		WHERE store_id = $1 AND active
		ORDER BY id
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sellers := make([]domain.Seller, 0, 16)
	for rows.Next() {
		var seller domain.Seller
		if err := rows.Scan(&seller.ID, &seller.StoreID, &seller.Name); err != nil {
			return nil, err
		}
		sellers = append(sellers, seller)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sellers, nil
}

// SellerLedgerFacts sums one seller's month. Cancelled sales stay in gross and
// are reversed in full through the refund total.
func (s *Store) SellerLedgerFacts(ctx context.Context, storeID string, sellerID string, period domain.Period) (domain.LedgerFacts, error) {
	from, to := period.Bounds()
	facts := domain.LedgerFacts{StoreID: storeID, SellerID: sellerID, Period: period}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(total), 0),
			COALESCE(SUM(CASE WHEN status = 'CANCELLED' THEN total ELSE refunded_amount END), 0),
			COUNT(*) FILTER (WHERE status <> 'CANCELLED'),
			COUNT(*) FILTER (WHERE status = 'CANCELLED')
		FROM sales
		WHERE store_id = $1 AND seller_id = $2 AND sold_at >= $3 AND sold_at < $4
	`, storeID, sellerID, from, to).Scan(&facts.GrossAmount, &facts.RefundAmount, &facts.SaleCount, &facts.CancellationCount)
	if err != nil {
		return domain.LedgerFacts{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM credit_payments
		WHERE store_id = $1 AND seller_id = $2 AND paid_at >= $3 AND paid_at < $4
	`, storeID, sellerID, from, to).Scan(&facts.CreditRecovered)
	if err != nil {
		return domain.LedgerFacts{}, err
	}
	return facts, nil
}
