package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"posconsole/backend/internal/domain"
	"posconsole/backend/internal/store"
	"posconsole/backend/internal/xid"
)

const statsColumns = `id, store_id, period, seller_id, seller_name, gross_amount, refund_amount, net_amount,
	sale_count, cancellation_count, avg_basket, credit_recovered, current_tier_rank, current_tier_name,
	rule_id, rule_version, tier_snapshot, penalties, bonus_earned, score, is_final, version, computed_at`

func (s *Store) GetSellerStats(ctx context.Context, storeID string, period domain.Period, sellerID string) (*domain.SellerMonthlyStats, error) {
	stats, err := scanStats(s.db.QueryRowContext(ctx, `
		SELECT `+statsColumns+`
		FROM seller_monthly_stats
		WHERE store_id = $1 AND period = $2 AND seller_id = $3
	`, storeID, string(period), sellerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &stats, nil
}

func (s *Store) ListSellerStats(ctx context.Context, storeID string, period domain.Period) ([]domain.SellerMonthlyStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+statsColumns+`
		FROM seller_monthly_stats
		WHERE store_id = $1 AND period = $2
		ORDER BY seller_id
	`, storeID, string(period))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.SellerMonthlyStats, 0, 16)
	for rows.Next() {
		stats, err := scanStats(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, stats)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) SaveSellerStats(ctx context.Context, stats domain.SellerMonthlyStats, expectedVersion int) (*domain.SellerMonthlyStats, error) {
	if stats.StoreID == "" || stats.SellerID == "" || stats.Period == "" {
		return nil, store.ErrInvalidInput
	}

	snapshot, err := json.Marshal(stats.TierSnapshot)
	if err != nil {
		return nil, err
	}
	penalties, err := json.Marshal(stats.Penalties)
	if err != nil {
		return nil, err
	}
	score, err := json.Marshal(stats.Score)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	state, err := periodState(ctx, tx, stats.StoreID, stats.Period, "FOR SHARE")
	if err != nil {
		return nil, mapTxError(err)
	}
	if state.Status == domain.PeriodFinalized {
		return nil, store.ErrPeriodFinalized
	}

	current := 0
	err = tx.QueryRowContext(ctx, `
		SELECT id, version FROM seller_monthly_stats
		WHERE store_id = $1 AND period = $2 AND seller_id = $3
		FOR UPDATE
	`, stats.StoreID, string(stats.Period), stats.SellerID).Scan(&stats.ID, &current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, mapTxError(err)
	}
	if current != expectedVersion {
		return nil, fmt.Errorf("seller %s %s: have version %d, expected %d: %w",
			stats.SellerID, stats.Period, current, expectedVersion, store.ErrConcurrentModification)
	}

	if errors.Is(err, sql.ErrNoRows) {
		stats.ID = xid.New("stats")
	}
	stats.Version = current + 1
	stats.IsFinal = false
	stats.ComputedAt = stats.ComputedAt.UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO seller_monthly_stats (`+statsColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,false,$21,$22)
		ON CONFLICT (store_id, period, seller_id) DO UPDATE SET
			seller_name = EXCLUDED.seller_name,
			gross_amount = EXCLUDED.gross_amount,
			refund_amount = EXCLUDED.refund_amount,
			net_amount = EXCLUDED.net_amount,
			sale_count = EXCLUDED.sale_count,
			cancellation_count = EXCLUDED.cancellation_count,
			avg_basket = EXCLUDED.avg_basket,
			credit_recovered = EXCLUDED.credit_recovered,
			current_tier_rank = EXCLUDED.current_tier_rank,
			current_tier_name = EXCLUDED.current_tier_name,
			rule_id = EXCLUDED.rule_id,
			rule_version = EXCLUDED.rule_version,
			tier_snapshot = EXCLUDED.tier_snapshot,
			penalties = EXCLUDED.penalties,
			bonus_earned = EXCLUDED.bonus_earned,
			score = EXCLUDED.score,
			is_final = false,
			version = EXCLUDED.version,
			computed_at = EXCLUDED.computed_at
	`,
		stats.ID, stats.StoreID, string(stats.Period), stats.SellerID, stats.SellerName,
		stats.GrossAmount, stats.RefundAmount, stats.NetAmount,
		stats.SaleCount, stats.CancellationCount, stats.AvgBasket, stats.CreditRecovered,
		stats.CurrentTierRank, stats.CurrentTierName,
		stats.RuleID, stats.RuleVersion, snapshot, penalties, stats.BonusEarned, score,
		stats.Version, stats.ComputedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConcurrentModification
		}
		return nil, mapTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}
	return &stats, nil
}

func (s *Store) GetPeriodState(ctx context.Context, storeID string, period domain.Period) (domain.PeriodState, error) {
	return periodState(ctx, s.db, storeID, period, "")
}

func (s *Store) FinalizePeriod(ctx context.Context, storeID string, period domain.Period, by string, at time.Time) (domain.PeriodState, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return domain.PeriodState{}, err
	}
	defer func() { _ = tx.Rollback() }()

	state, err := periodState(ctx, tx, storeID, period, "FOR UPDATE")
	if err != nil {
		return domain.PeriodState{}, mapTxError(err)
	}
	if state.Status == domain.PeriodFinalized {
		return state, store.ErrPeriodFinalized
	}

	at = at.UTC()
	state.Status = domain.PeriodFinalized
	state.FinalizedBy = by
	state.FinalizedAt = &at
	if err := upsertPeriodState(ctx, tx, state); err != nil {
		return domain.PeriodState{}, mapTxError(err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE seller_monthly_stats SET is_final = true WHERE store_id = $1 AND period = $2
	`, storeID, string(period)); err != nil {
		return domain.PeriodState{}, mapTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return domain.PeriodState{}, mapTxError(err)
	}
	return state, nil
}

func (s *Store) UnlockPeriod(ctx context.Context, storeID string, period domain.Period, by string, reason string, at time.Time) (domain.PeriodState, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return domain.PeriodState{}, err
	}
	defer func() { _ = tx.Rollback() }()

	state, err := periodState(ctx, tx, storeID, period, "FOR UPDATE")
	if err != nil {
		return domain.PeriodState{}, mapTxError(err)
	}
	if state.Status != domain.PeriodFinalized {
		return state, store.ErrPeriodNotFinalized
	}

	at = at.UTC()
	state.Status = domain.PeriodDraft
	state.UnlockedBy = by
	state.UnlockedAt = &at
	state.UnlockReason = reason
	if err := upsertPeriodState(ctx, tx, state); err != nil {
		return domain.PeriodState{}, mapTxError(err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE seller_monthly_stats SET is_final = false WHERE store_id = $1 AND period = $2
	`, storeID, string(period)); err != nil {
		return domain.PeriodState{}, mapTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return domain.PeriodState{}, mapTxError(err)
	}
	return state, nil
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func periodState(ctx context.Context, q rowQueryer, storeID string, period domain.Period, lock string) (domain.PeriodState, error) {
	state := domain.PeriodState{StoreID: storeID, Period: period, Status: domain.PeriodDraft}
	var status string
	var finalizedAt, unlockedAt sql.NullTime
	err := q.QueryRowContext(ctx, `
		SELECT status, finalized_by, finalized_at, unlocked_by, unlocked_at, unlock_reason
		FROM period_states
		WHERE store_id = $1 AND period = $2
	`+lock, storeID, string(period)).Scan(&status, &state.FinalizedBy, &finalizedAt, &state.UnlockedBy, &unlockedAt, &state.UnlockReason)
	if errors.Is(err, sql.ErrNoRows) {
		return state, nil
	}
	if err != nil {
		return domain.PeriodState{}, err
	}
	state.Status = domain.PeriodStatus(status)
	state.FinalizedAt = timePtr(finalizedAt)
	state.UnlockedAt = timePtr(unlockedAt)
	return state, nil
}

func upsertPeriodState(ctx context.Context, tx *sql.Tx, state domain.PeriodState) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO period_states (store_id, period, status, finalized_by, finalized_at, unlocked_by, unlocked_at, unlock_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (store_id, period) DO UPDATE SET
			status = EXCLUDED.status,
			finalized_by = EXCLUDED.finalized_by,
			finalized_at = EXCLUDED.finalized_at,
			unlocked_by = EXCLUDED.unlocked_by,
			unlocked_at = EXCLUDED.unlocked_at,
			unlock_reason = EXCLUDED.unlock_reason
	`, state.StoreID, string(state.Period), string(state.Status), state.FinalizedBy, nullTime(state.FinalizedAt),
		state.UnlockedBy, nullTime(state.UnlockedAt), state.UnlockReason)
	return err
}

func scanStats(row rowScanner) (domain.SellerMonthlyStats, error) {
	var (
		stats                     domain.SellerMonthlyStats
		period                    string
		tierRank                  sql.NullInt64
		tierName                  sql.NullString
		snapshotRaw, penaltiesRaw []byte
		scoreRaw                  []byte
	)
	if err := row.Scan(
		&stats.ID, &stats.StoreID, &period, &stats.SellerID, &stats.SellerName,
		&stats.GrossAmount, &stats.RefundAmount, &stats.NetAmount,
		&stats.SaleCount, &stats.CancellationCount, &stats.AvgBasket, &stats.CreditRecovered,
		&tierRank, &tierName, &stats.RuleID, &stats.RuleVersion,
		&snapshotRaw, &penaltiesRaw, &stats.BonusEarned, &scoreRaw,
		&stats.IsFinal, &stats.Version, &stats.ComputedAt,
	); err != nil {
		return domain.SellerMonthlyStats{}, err
	}

	stats.Period = domain.Period(period)
	stats.ComputedAt = stats.ComputedAt.UTC()
	if tierRank.Valid {
		rank := int(tierRank.Int64)
		stats.CurrentTierRank = &rank
	}
	if tierName.Valid {
		name := tierName.String
		stats.CurrentTierName = &name
	}
	stats.TierSnapshot = []domain.Tier{}
	if len(snapshotRaw) > 0 {
		if err := json.Unmarshal(snapshotRaw, &stats.TierSnapshot); err != nil {
			return domain.SellerMonthlyStats{}, fmt.Errorf("decode tier snapshot: %w", err)
		}
	}
	if len(penaltiesRaw) > 0 {
		if err := json.Unmarshal(penaltiesRaw, &stats.Penalties); err != nil {
			return domain.SellerMonthlyStats{}, fmt.Errorf("decode penalties: %w", err)
		}
	}
	if len(scoreRaw) > 0 {
		if err := json.Unmarshal(scoreRaw, &stats.Score); err != nil {
			return domain.SellerMonthlyStats{}, fmt.Errorf("decode score: %w", err)
		}
	}
	return stats, nil
}

func (s *Store) GetLeaderboardSettings(ctx context.Context, storeID string) (domain.LeaderboardSettings, error) {
	settings := domain.LeaderboardSettings{StoreID: storeID}
	var visibility, rankBy string
	err := s.db.QueryRowContext(ctx, `
		SELECT visibility, refresh_interval_minutes, show_amounts, show_tier, rank_by, updated_at
		FROM leaderboard_settings
		WHERE store_id = $1
	`, storeID).Scan(&visibility, &settings.RefreshIntervalMinutes, &settings.ShowAmounts, &settings.ShowTier, &rankBy, &settings.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultLeaderboardSettings(storeID), nil
	}
	if err != nil {
		return domain.LeaderboardSettings{}, err
	}
	settings.Visibility = domain.Visibility(visibility)
	settings.RankBy = domain.RankMetric(rankBy)
	settings.UpdatedAt = settings.UpdatedAt.UTC()
	return settings, nil
}

func (s *Store) UpsertLeaderboardSettings(ctx context.Context, settings domain.LeaderboardSettings) (domain.LeaderboardSettings, error) {
	if settings.StoreID == "" {
		return domain.LeaderboardSettings{}, store.ErrInvalidInput
	}
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leaderboard_settings (store_id, visibility, refresh_interval_minutes, show_amounts, show_tier, rank_by, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (store_id) DO UPDATE SET
			visibility = EXCLUDED.visibility,
			refresh_interval_minutes = EXCLUDED.refresh_interval_minutes,
			show_amounts = EXCLUDED.show_amounts,
			show_tier = EXCLUDED.show_tier,
			rank_by = EXCLUDED.rank_by,
			updated_at = EXCLUDED.updated_at
	`, settings.StoreID, string(settings.Visibility), settings.RefreshIntervalMinutes, settings.ShowAmounts,
		settings.ShowTier, string(settings.RankBy), settings.UpdatedAt)
	if err != nil {
		return domain.LeaderboardSettings{}, err
	}
	return settings, nil
}
