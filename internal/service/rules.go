package service

import (
	"context"
	"fmt"
	"strings"

	"posconsole/backend/internal/commission"
	"posconsole/backend/internal/domain"
	"posconsole/backend/internal/store"
)

// ListRules returns the store's rules plus the global ones. Without history
// only open versions are listed.
func (s *Service) ListRules(ctx context.Context, storeID string, includeHistory bool) ([]domain.ObjectiveRule, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	storeID, err = s.storeFor(actor, storeID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListRules(ctx, storeID, includeHistory)
}

func (s *Service) GetRule(ctx context.Context, id string) (domain.ObjectiveRule, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.ObjectiveRule{}, err
	}
	rule, err := s.repo.GetRule(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.ObjectiveRule{}, err
	}
	if !rule.IsGlobal() {
		if _, err := s.storeFor(actor, rule.StoreID); err != nil {
			return domain.ObjectiveRule{}, err
		}
	}
	return *rule, nil
}

// RuleInForce returns the rule a recompute would snapshot for date (today
// when empty).
func (s *Service) RuleInForce(ctx context.Context, storeID string, date string) (domain.ObjectiveRule, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.ObjectiveRule{}, err
	}
	storeID, err = s.storeFor(actor, storeID)
	if err != nil {
		return domain.ObjectiveRule{}, err
	}

	day := domain.DateOf(s.now())
	if strings.TrimSpace(date) != "" {
		day, err = domain.ParseDate(date)
		if err != nil {
			return domain.ObjectiveRule{}, fmt.Errorf("%v: %w", err, store.ErrInvalidInput)
		}
	}

	rule, err := s.repo.FindRuleInForce(ctx, storeID, day)
	if err != nil {
		return domain.ObjectiveRule{}, err
	}
	if rule == nil {
		return domain.ObjectiveRule{}, fmt.Errorf("no rule in force for %s on %s: %w", storeID, day.Format(domain.DateLayout), store.ErrNotFound)
	}
	return *rule, nil
}

// CreateRule stores a new rule version. An empty store id creates a global
// rule. Any open version of the same scope is closed the day before.
func (s *Service) CreateRule(ctx context.Context, req domain.ObjectiveRuleCreateRequest) (domain.ObjectiveRule, error) {
	actor, err := s.admin(ctx)
	if err != nil {
		return domain.ObjectiveRule{}, err
	}
	return s.createVersion(ctx, actor, strings.TrimSpace(req.StoreID), req, "rule_create")
}

// ReviseRule creates the next version of an existing rule's scope. Name and
// tiers default to the revised rule's when omitted.
func (s *Service) ReviseRule(ctx context.Context, id string, req domain.ObjectiveRuleCreateRequest) (domain.ObjectiveRule, error) {
	actor, err := s.admin(ctx)
	if err != nil {
		return domain.ObjectiveRule{}, err
	}
	base, err := s.repo.GetRule(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.ObjectiveRule{}, err
	}

	if strings.TrimSpace(req.Name) == "" {
		req.Name = base.Name
	}
	if len(req.Tiers) == 0 {
		req.Tiers = commission.CloneTiers(base.Tiers)
	}
	if req.Notes == "" {
		req.Notes = base.Notes
	}
	return s.createVersion(ctx, actor, base.StoreID, req, "rule_revise")
}

func (s *Service) createVersion(ctx context.Context, actor domain.Actor, storeID string, req domain.ObjectiveRuleCreateRequest, action string) (domain.ObjectiveRule, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.ObjectiveRule{}, fmt.Errorf("name is required: %w", store.ErrInvalidInput)
	}
	validFrom, err := domain.ParseDate(req.ValidFrom)
	if err != nil {
		return domain.ObjectiveRule{}, fmt.Errorf("valid_from: %v: %w", err, store.ErrInvalidInput)
	}

	tiers := make([]domain.Tier, 0, len(req.Tiers))
	for _, tier := range req.Tiers {
		tier.Name = strings.TrimSpace(tier.Name)
		tiers = append(tiers, tier)
	}
	if err := commission.ValidateTiers(tiers); err != nil {
		return domain.ObjectiveRule{}, err
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	created, err := s.repo.CreateRuleVersion(ctx, domain.ObjectiveRule{
		StoreID:   storeID,
		Name:      name,
		ValidFrom: validFrom,
		IsActive:  active,
		Notes:     strings.TrimSpace(req.Notes),
		Tiers:     commission.SortTiers(tiers),
		CreatedBy: actor.Username,
	})
	if err != nil {
		return domain.ObjectiveRule{}, err
	}

	s.logAudit(ctx, auditStore(created.StoreID), action, "objective_rule", created.ID,
		fmt.Sprintf("version=%d,valid_from=%s,tiers=%d", created.Version, created.ValidFrom.Format(domain.DateLayout), len(created.Tiers)))
	return *created, nil
}

// RetireRule closes a rule's validity window. Rules are otherwise immutable.
func (s *Service) RetireRule(ctx context.Context, id string, req domain.ObjectiveRuleRetireRequest) (domain.ObjectiveRule, error) {
	if _, err := s.admin(ctx); err != nil {
		return domain.ObjectiveRule{}, err
	}

	validUntil := domain.DateOf(s.now())
	if strings.TrimSpace(req.ValidUntil) != "" {
		parsed, err := domain.ParseDate(req.ValidUntil)
		if err != nil {
			return domain.ObjectiveRule{}, fmt.Errorf("valid_until: %v: %w", err, store.ErrInvalidInput)
		}
		validUntil = parsed
	}

	closed, err := s.repo.CloseRule(ctx, strings.TrimSpace(id), validUntil)
	if err != nil {
		return domain.ObjectiveRule{}, err
	}
	s.logAudit(ctx, auditStore(closed.StoreID), "rule_retire", "objective_rule", closed.ID,
		"valid_until="+validUntil.Format(domain.DateLayout))
	return *closed, nil
}

func auditStore(storeID string) string {
	if storeID == "" {
		return "global"
	}
	return storeID
}
