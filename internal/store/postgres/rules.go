package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"posconsole/backend/internal/domain"
	"posconsole/backend/internal/store"
	"posconsole/backend/internal/xid"
)

const ruleColumns = `id, store_id, name, version, valid_from, valid_until, is_active, notes, created_by, created_at`

func (s *Store) ListRules(ctx context.Context, storeID string, includeHistory bool) ([]domain.ObjectiveRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM objective_rules
		WHERE (store_id = $1 OR store_id = '')
			AND ($2 OR valid_until IS NULL)
		ORDER BY store_id DESC, version DESC
	`, storeID, includeHistory)
	if err != nil {
		return nil, err
	}
	rules, err := scanRules(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachTiers(ctx, s.db, rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *Store) GetRule(ctx context.Context, id string) (*domain.ObjectiveRule, error) {
	rule, err := scanRule(s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM objective_rules WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	rules := []domain.ObjectiveRule{rule}
	if err := s.attachTiers(ctx, s.db, rules); err != nil {
		return nil, err
	}
	return &rules[0], nil
}

func (s *Store) CreateRuleVersion(ctx context.Context, rule domain.ObjectiveRule) (*domain.ObjectiveRule, error) {
	if rule.ValidFrom.IsZero() || len(rule.Tiers) == 0 {
		return nil, store.ErrInvalidInput
	}
	rule.ValidFrom = domain.DateOf(rule.ValidFrom)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, version, valid_from, valid_until
		FROM objective_rules
		WHERE store_id = $1
		FOR UPDATE
	`, rule.StoreID)
	if err != nil {
		return nil, mapTxError(err)
	}

	openID := ""
	maxVersion := 0
	var overlap error
	for rows.Next() {
		var (
			id        string
			version   int
			validFrom time.Time
			until     sql.NullTime
		)
		if err := rows.Scan(&id, &version, &validFrom, &until); err != nil {
			_ = rows.Close()
			return nil, err
		}
		maxVersion = max(maxVersion, version)
		switch {
		case !validFrom.Before(rule.ValidFrom):
			overlap = fmt.Errorf("version %d starts %s: %w", version, validFrom.Format(domain.DateLayout), store.ErrRuleOverlap)
		case !until.Valid:
			openID = id
		case !until.Time.Before(rule.ValidFrom):
			overlap = fmt.Errorf("version %d runs until %s: %w", version, until.Time.Format(domain.DateLayout), store.ErrRuleOverlap)
		}
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, mapTxError(err)
	}
	if overlap != nil {
		return nil, overlap
	}

	if openID != "" {
		if _, err := tx.ExecContext(ctx, `
			UPDATE objective_rules SET valid_until = $2 WHERE id = $1
		`, openID, rule.ValidFrom.AddDate(0, 0, -1)); err != nil {
			return nil, mapTxError(err)
		}
	}

	if rule.ID == "" {
		rule.ID = xid.New("rule")
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	rule.Version = maxVersion + 1
	rule.ValidUntil = nil

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO objective_rules (`+ruleColumns+`)
		VALUES ($1,$2,$3,$4,$5,NULL,$6,$7,$8,$9)
	`, rule.ID, rule.StoreID, rule.Name, rule.Version, rule.ValidFrom, rule.IsActive, rule.Notes, rule.CreatedBy, rule.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConcurrentModification
		}
		return nil, mapTxError(err)
	}

	for _, tier := range rule.Tiers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO objective_rule_tiers (rule_id, rank, name, threshold, bonus_amount, bonus_rate, color, icon)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, rule.ID, tier.Rank, tier.Name, tier.Threshold, tier.BonusAmount, tier.BonusRate, tier.Color, tier.Icon); err != nil {
			if isUniqueViolation(err) {
				return nil, store.ErrInvalidInput
			}
			return nil, mapTxError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}
	return &rule, nil
}

func (s *Store) CloseRule(ctx context.Context, id string, validUntil time.Time) (*domain.ObjectiveRule, error) {
	validUntil = domain.DateOf(validUntil)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rule, err := scanRule(tx.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM objective_rules WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapTxError(err)
	}
	if validUntil.Before(rule.ValidFrom) {
		return nil, fmt.Errorf("valid_until before valid_from: %w", store.ErrInvalidInput)
	}
	if rule.ValidUntil != nil && validUntil.After(*rule.ValidUntil) {
		return nil, fmt.Errorf("a closed window can only be shortened: %w", store.ErrInvalidInput)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE objective_rules SET valid_until = $2 WHERE id = $1`, id, validUntil); err != nil {
		return nil, mapTxError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}

	rule.ValidUntil = &validUntil
	rules := []domain.ObjectiveRule{rule}
	if err := s.attachTiers(ctx, s.db, rules); err != nil {
		return nil, err
	}
	return &rules[0], nil
}

func (s *Store) FindRuleInForce(ctx context.Context, storeID string, day time.Time) (*domain.ObjectiveRule, error) {
	rule, err := scanRule(s.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM objective_rules
		WHERE (store_id = $1 OR store_id = '')
			AND is_active
			AND valid_from <= $2
			AND (valid_until IS NULL OR valid_until >= $2)
		ORDER BY (store_id = $1) DESC, version DESC
		LIMIT 1
	`, storeID, domain.DateOf(day)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rules := []domain.ObjectiveRule{rule}
	if err := s.attachTiers(ctx, s.db, rules); err != nil {
		return nil, err
	}
	return &rules[0], nil
}

func (s *Store) attachTiers(ctx context.Context, q queryer, rules []domain.ObjectiveRule) error {
	if len(rules) == 0 {
		return nil
	}
	ids := make([]string, 0, len(rules))
	index := make(map[string]int, len(rules))
	for i := range rules {
		ids = append(ids, rules[i].ID)
		index[rules[i].ID] = i
		rules[i].Tiers = []domain.Tier{}
	}

	rows, err := q.QueryContext(ctx, `
		SELECT rule_id, rank, name, threshold, bonus_amount, bonus_rate, color, icon
		FROM objective_rule_tiers
		WHERE rule_id = ANY($1)
		ORDER BY rule_id, rank
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var ruleID string
		var tier domain.Tier
		if err := rows.Scan(&ruleID, &tier.Rank, &tier.Name, &tier.Threshold, &tier.BonusAmount, &tier.BonusRate, &tier.Color, &tier.Icon); err != nil {
			return err
		}
		if i, ok := index[ruleID]; ok {
			rules[i].Tiers = append(rules[i].Tiers, tier)
		}
	}
	return rows.Err()
}

func scanRules(rows *sql.Rows) ([]domain.ObjectiveRule, error) {
	defer rows.Close()

	rules := make([]domain.ObjectiveRule, 0, 8)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

func scanRule(row rowScanner) (domain.ObjectiveRule, error) {
	var rule domain.ObjectiveRule
	var until sql.NullTime
	if err := row.Scan(&rule.ID, &rule.StoreID, &rule.Name, &rule.Version, &rule.ValidFrom, &until,
		&rule.IsActive, &rule.Notes, &rule.CreatedBy, &rule.CreatedAt); err != nil {
		return domain.ObjectiveRule{}, err
	}
	rule.ValidFrom = domain.DateOf(rule.ValidFrom)
	rule.ValidUntil = timePtr(until)
	rule.CreatedAt = rule.CreatedAt.UTC()
	return rule, nil
}
