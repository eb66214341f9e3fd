package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"posconsole/backend/internal/domain"
	"posconsole/backend/internal/store"
	"posconsole/backend/internal/xid"
)

func (s *Store) ListRules(_ context.Context, storeID string, includeHistory bool) ([]domain.ObjectiveRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ObjectiveRule, 0, len(s.rulesByID))
	for _, rule := range s.rulesByID {
		if rule.StoreID != storeID && !rule.IsGlobal() {
			continue
		}
		if !includeHistory && rule.ValidUntil != nil {
			continue
		}
		result = append(result, cloneRule(rule))
	}
	slices.SortFunc(result, func(a, b domain.ObjectiveRule) int {
		if c := strings.Compare(b.StoreID, a.StoreID); c != 0 {
			return c
		}
		return b.Version - a.Version
	})
	return result, nil
}

func (s *Store) GetRule(_ context.Context, id string) (*domain.ObjectiveRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rulesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cloned := cloneRule(rule)
	return &cloned, nil
}

func (s *Store) CreateRuleVersion(_ context.Context, rule domain.ObjectiveRule) (*domain.ObjectiveRule, error) {
	if rule.ValidFrom.IsZero() || len(rule.Tiers) == 0 {
		return nil, store.ErrInvalidInput
	}
	rule.ValidFrom = domain.DateOf(rule.ValidFrom)

	s.mu.Lock()
	defer s.mu.Unlock()

	var open *domain.ObjectiveRule
	maxVersion := 0
	for id := range s.rulesByID {
		existing := s.rulesByID[id]
		if existing.StoreID != rule.StoreID {
			continue
		}
		maxVersion = max(maxVersion, existing.Version)
		if !existing.ValidFrom.Before(rule.ValidFrom) {
			return nil, fmt.Errorf("version %d starts %s: %w", existing.Version, existing.ValidFrom.Format(domain.DateLayout), store.ErrRuleOverlap)
		}
		if existing.ValidUntil == nil {
			open = &existing
			continue
		}
		if !existing.ValidUntil.Before(rule.ValidFrom) {
			return nil, fmt.Errorf("version %d runs until %s: %w", existing.Version, existing.ValidUntil.Format(domain.DateLayout), store.ErrRuleOverlap)
		}
	}

	if open != nil {
		closedAt := rule.ValidFrom.AddDate(0, 0, -1)
		open.ValidUntil = &closedAt
		s.rulesByID[open.ID] = *open
	}

	if rule.ID == "" {
		rule.ID = xid.New("rule")
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	rule.Version = maxVersion + 1
	rule.ValidUntil = nil
	rule = cloneRule(rule)
	s.rulesByID[rule.ID] = rule

	created := cloneRule(rule)
	return &created, nil
}

func (s *Store) CloseRule(_ context.Context, id string, validUntil time.Time) (*domain.ObjectiveRule, error) {
	validUntil = domain.DateOf(validUntil)

	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.rulesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if validUntil.Before(rule.ValidFrom) {
		return nil, fmt.Errorf("valid_until before valid_from: %w", store.ErrInvalidInput)
	}
	if rule.ValidUntil != nil && validUntil.After(*rule.ValidUntil) {
		return nil, fmt.Errorf("a closed window can only be shortened: %w", store.ErrInvalidInput)
	}
	rule.ValidUntil = &validUntil
	s.rulesByID[id] = rule

	cloned := cloneRule(rule)
	return &cloned, nil
}

func (s *Store) FindRuleInForce(_ context.Context, storeID string, day time.Time) (*domain.ObjectiveRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scopes := []string{storeID}
	if storeID != "" {
		scopes = append(scopes, "")
	}
	for _, scope := range scopes {
		var best *domain.ObjectiveRule
		for id := range s.rulesByID {
			rule := s.rulesByID[id]
			if rule.StoreID != scope || !rule.IsActive || !rule.Covers(day) {
				continue
			}
			if best == nil || rule.Version > best.Version {
				best = &rule
			}
		}
		if best != nil {
			cloned := cloneRule(*best)
			return &cloned, nil
		}
	}
	return nil, nil
}

func cloneRule(rule domain.ObjectiveRule) domain.ObjectiveRule {
	rule.Tiers = slices.Clone(rule.Tiers)
	if rule.ValidUntil != nil {
		until := *rule.ValidUntil
		rule.ValidUntil = &until
	}
	return rule
}
