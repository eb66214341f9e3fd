package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"posconsole/backend/internal/domain"
	"posconsole/backend/internal/store"
	"posconsole/backend/internal/xid"
)

const penaltyTypeColumns = `id, store_id, name, mode, default_amount, default_cap_rank, created_at`

func (s *Store) ListPenaltyTypes(ctx context.Context, storeID string) ([]domain.PenaltyType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+penaltyTypeColumns+`
		FROM penalty_types
		WHERE ($1 = '' OR store_id = $1)
		ORDER BY name
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.PenaltyType, 0, 8)
	for rows.Next() {
		pt, err := scanPenaltyType(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetPenaltyType(ctx context.Context, id string) (*domain.PenaltyType, error) {
	pt, err := scanPenaltyType(s.db.QueryRowContext(ctx, `SELECT `+penaltyTypeColumns+` FROM penalty_types WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &pt, nil
}

func (s *Store) CreatePenaltyType(ctx context.Context, penaltyType domain.PenaltyType) (*domain.PenaltyType, error) {
	if penaltyType.StoreID == "" || strings.TrimSpace(penaltyType.Name) == "" || !penaltyType.Mode.Valid() {
		return nil, store.ErrInvalidInput
	}
	if penaltyType.ID == "" {
		penaltyType.ID = xid.New("ptype")
	}
	if penaltyType.CreatedAt.IsZero() {
		penaltyType.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO penalty_types (`+penaltyTypeColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, penaltyType.ID, penaltyType.StoreID, penaltyType.Name, string(penaltyType.Mode),
		penaltyType.DefaultAmount, penaltyType.DefaultCapRank, penaltyType.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &penaltyType, nil
}

func (s *Store) UpdatePenaltyType(ctx context.Context, penaltyType domain.PenaltyType) (*domain.PenaltyType, error) {
	updated, err := scanPenaltyType(s.db.QueryRowContext(ctx, `
		UPDATE penalty_types
		SET name = $2, default_amount = $3, default_cap_rank = $4
		WHERE id = $1
		RETURNING `+penaltyTypeColumns,
		penaltyType.ID, penaltyType.Name, penaltyType.DefaultAmount, penaltyType.DefaultCapRank))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeletePenaltyType(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM penalty_types WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return expectAffected(res)
}

const sellerPenaltyColumns = `id, store_id, seller_id, period, penalty_type_id, name, mode, amount, cap_rank, reason, created_by, created_at`

func (s *Store) CreateSellerPenalty(ctx context.Context, penalty domain.SellerPenalty) (*domain.SellerPenalty, error) {
	if penalty.StoreID == "" || penalty.SellerID == "" || penalty.Period == "" || !penalty.Mode.Valid() {
		return nil, store.ErrInvalidInput
	}
	if penalty.ID == "" {
		penalty.ID = xid.New("penalty")
	}
	if penalty.CreatedAt.IsZero() {
		penalty.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	state, err := periodState(ctx, tx, penalty.StoreID, penalty.Period, "FOR SHARE")
	if err != nil {
		return nil, mapTxError(err)
	}
	if state.Status == domain.PeriodFinalized {
		return nil, store.ErrPeriodFinalized
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO seller_penalties (`+sellerPenaltyColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, penalty.ID, penalty.StoreID, penalty.SellerID, string(penalty.Period), penalty.PenaltyTypeID,
		penalty.Name, string(penalty.Mode), penalty.Amount, penalty.CapRank, penalty.Reason,
		penalty.CreatedBy, penalty.CreatedAt); err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, mapTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}
	return &penalty, nil
}

func (s *Store) ListSellerPenalties(ctx context.Context, storeID string, period domain.Period, sellerID string) ([]domain.SellerPenalty, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sellerPenaltyColumns+`
		FROM seller_penalties
		WHERE store_id = $1 AND period = $2 AND ($3 = '' OR seller_id = $3)
		ORDER BY created_at, id
	`, storeID, string(period), sellerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.SellerPenalty, 0, 8)
	for rows.Next() {
		penalty, err := scanSellerPenalty(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, penalty)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetSellerPenalty(ctx context.Context, id string) (*domain.SellerPenalty, error) {
	penalty, err := scanSellerPenalty(s.db.QueryRowContext(ctx, `SELECT `+sellerPenaltyColumns+` FROM seller_penalties WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &penalty, nil
}

func (s *Store) DeleteSellerPenalty(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	penalty, err := scanSellerPenalty(tx.QueryRowContext(ctx, `SELECT `+sellerPenaltyColumns+` FROM seller_penalties WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return mapTxError(err)
	}
	state, err := periodState(ctx, tx, penalty.StoreID, penalty.Period, "FOR SHARE")
	if err != nil {
		return mapTxError(err)
	}
	if state.Status == domain.PeriodFinalized {
		return store.ErrPeriodFinalized
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM seller_penalties WHERE id = $1`, id); err != nil {
		return mapTxError(err)
	}
	return mapTxError(tx.Commit())
}

func scanPenaltyType(row rowScanner) (domain.PenaltyType, error) {
	var pt domain.PenaltyType
	var mode string
	if err := row.Scan(&pt.ID, &pt.StoreID, &pt.Name, &mode, &pt.DefaultAmount, &pt.DefaultCapRank, &pt.CreatedAt); err != nil {
		return domain.PenaltyType{}, err
	}
	pt.Mode = domain.PenaltyMode(mode)
	pt.CreatedAt = pt.CreatedAt.UTC()
	return pt, nil
}

func scanSellerPenalty(row rowScanner) (domain.SellerPenalty, error) {
	var p domain.SellerPenalty
	var period, mode string
	if err := row.Scan(&p.ID, &p.StoreID, &p.SellerID, &period, &p.PenaltyTypeID, &p.Name, &mode,
		&p.Amount, &p.CapRank, &p.Reason, &p.CreatedBy, &p.CreatedAt); err != nil {
		return domain.SellerPenalty{}, err
	}
	p.Period = domain.Period(period)
	p.Mode = domain.PenaltyMode(mode)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}
