package service

import (
	"context"
	"fmt"
	"strings"

	"posconsole/backend/internal/domain"
	"posconsole/backend/internal/store"
)

func (s *Service) ListPenaltyTypes(ctx context.Context, storeID string) ([]domain.PenaltyType, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	storeID, err = s.storeFor(actor, storeID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPenaltyTypes(ctx, storeID)
}

func (s *Service) CreatePenaltyType(ctx context.Context, req domain.PenaltyTypeCreateRequest) (domain.PenaltyType, error) {
	actor, err := s.admin(ctx)
	if err != nil {
		return domain.PenaltyType{}, err
	}
	storeID, err := s.storeFor(actor, req.StoreID)
	if err != nil {
		return domain.PenaltyType{}, err
	}

	penaltyType := domain.PenaltyType{
		StoreID:        storeID,
		Name:           strings.TrimSpace(req.Name),
		Mode:           domain.PenaltyMode(strings.ToUpper(strings.TrimSpace(string(req.Mode)))),
		DefaultAmount:  req.DefaultAmount,
		DefaultCapRank: req.DefaultCapRank,
	}
	if err := validatePenaltyType(penaltyType); err != nil {
		return domain.PenaltyType{}, err
	}

	created, err := s.repo.CreatePenaltyType(ctx, penaltyType)
	if err != nil {
		return domain.PenaltyType{}, err
	}
	s.logAudit(ctx, storeID, "penalty_type_create", "penalty_type", created.ID,
		fmt.Sprintf("name=%s,mode=%s,amount=%s,cap_rank=%d", created.Name, created.Mode, created.DefaultAmount, created.DefaultCapRank))
	return *created, nil
}

// UpdatePenaltyType changes a type's name or defaults. The mode is fixed once
// created; penalties already assigned keep the values resolved at the time.
func (s *Service) UpdatePenaltyType(ctx context.Context, id string, req domain.PenaltyTypeUpdateRequest) (domain.PenaltyType, error) {
	actor, err := s.admin(ctx)
	if err != nil {
		return domain.PenaltyType{}, err
	}
	existing, err := s.repo.GetPenaltyType(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.PenaltyType{}, err
	}
	if _, err := s.storeFor(actor, existing.StoreID); err != nil {
		return domain.PenaltyType{}, err
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.DefaultAmount != nil {
		updated.DefaultAmount = *req.DefaultAmount
	}
	if req.DefaultCapRank != nil {
		updated.DefaultCapRank = *req.DefaultCapRank
	}
	if err := validatePenaltyType(updated); err != nil {
		return domain.PenaltyType{}, err
	}

	saved, err := s.repo.UpdatePenaltyType(ctx, updated)
	if err != nil {
		return domain.PenaltyType{}, err
	}
	s.logAudit(ctx, saved.StoreID, "penalty_type_update", "penalty_type", saved.ID,
		fmt.Sprintf("name=%s,amount=%s,cap_rank=%d", saved.Name, saved.DefaultAmount, saved.DefaultCapRank))
	return *saved, nil
}

func (s *Service) DeletePenaltyType(ctx context.Context, id string) error {
	actor, err := s.admin(ctx)
	if err != nil {
		return err
	}
	existing, err := s.repo.GetPenaltyType(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if _, err := s.storeFor(actor, existing.StoreID); err != nil {
		return err
	}
	if err := s.repo.DeletePenaltyType(ctx, existing.ID); err != nil {
		return err
	}
	s.logAudit(ctx, existing.StoreID, "penalty_type_delete", "penalty_type", existing.ID, "name="+existing.Name)
	return nil
}

func validatePenaltyType(pt domain.PenaltyType) error {
	if pt.Name == "" {
		return fmt.Errorf("name is required: %w", store.ErrInvalidInput)
	}
	if !pt.Mode.Valid() {
		return fmt.Errorf("mode must be DEDUCTION or CAP: %w", store.ErrInvalidInput)
	}
	if pt.DefaultAmount.IsNegative() {
		return fmt.Errorf("default_amount must not be negative: %w", store.ErrInvalidInput)
	}
	if pt.Mode == domain.PenaltyCap && pt.DefaultCapRank < 1 {
		return fmt.Errorf("default_cap_rank must be >= 1 for CAP penalties: %w", store.ErrInvalidInput)
	}
	return nil
}

// AssignPenalty attaches a penalty type to a seller for one period. Amount and
// cap rank come from the request or fall back to the type defaults. Takes
// effect at the next recompute.
func (s *Service) AssignPenalty(ctx context.Context, req domain.SellerPenaltyCreateRequest) (domain.SellerPenalty, error) {
	actor, err := s.admin(ctx)
	if err != nil {
		return domain.SellerPenalty{}, err
	}
	storeID, err := s.storeFor(actor, req.StoreID)
	if err != nil {
		return domain.SellerPenalty{}, err
	}
	sellerID := strings.TrimSpace(req.SellerID)
	if sellerID == "" {
		return domain.SellerPenalty{}, fmt.Errorf("seller_id is required: %w", store.ErrInvalidInput)
	}
	period, err := s.periodOrCurrent(req.Period)
	if err != nil {
		return domain.SellerPenalty{}, err
	}

	pt, err := s.repo.GetPenaltyType(ctx, strings.TrimSpace(req.PenaltyTypeID))
	if err != nil {
		return domain.SellerPenalty{}, err
	}
	if pt.StoreID != storeID {
		return domain.SellerPenalty{}, fmt.Errorf("penalty type %s belongs to another store: %w", pt.ID, store.ErrInvalidInput)
	}

	penalty := domain.SellerPenalty{
		StoreID:       storeID,
		SellerID:      sellerID,
		Period:        period,
		PenaltyTypeID: pt.ID,
		Name:          pt.Name,
		Mode:          pt.Mode,
		Reason:        strings.TrimSpace(req.Reason),
		CreatedBy:     actor.Username,
	}
	switch pt.Mode {
	case domain.PenaltyDeduction:
		penalty.Amount = pt.DefaultAmount
		if req.Amount != nil {
			penalty.Amount = *req.Amount
		}
		if !penalty.Amount.IsPositive() {
			return domain.SellerPenalty{}, fmt.Errorf("deduction amount must be positive: %w", store.ErrInvalidInput)
		}
	case domain.PenaltyCap:
		penalty.CapRank = pt.DefaultCapRank
		if req.CapRank != nil {
			penalty.CapRank = *req.CapRank
		}
		if penalty.CapRank < 1 {
			return domain.SellerPenalty{}, fmt.Errorf("cap_rank must be >= 1: %w", store.ErrInvalidInput)
		}
	}

	created, err := s.repo.CreateSellerPenalty(ctx, penalty)
	if err != nil {
		return domain.SellerPenalty{}, err
	}
	s.logAudit(ctx, storeID, "seller_penalty_assign", "seller_penalty", created.ID,
		fmt.Sprintf("seller=%s,period=%s,type=%s,amount=%s,cap_rank=%d", sellerID, period, pt.Name, created.Amount, created.CapRank))
	return *created, nil
}

// ListSellerPenalties lists a period's penalties. Sellers only see their own.
func (s *Service) ListSellerPenalties(ctx context.Context, storeID string, period string, sellerID string) ([]domain.SellerPenalty, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	storeID, err = s.storeFor(actor, storeID)
	if err != nil {
		return nil, err
	}
	p, err := s.periodOrCurrent(period)
	if err != nil {
		return nil, err
	}
	sellerID, err = sellerScope(actor, sellerID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSellerPenalties(ctx, storeID, p, sellerID)
}

func (s *Service) RemovePenalty(ctx context.Context, id string) error {
	actor, err := s.admin(ctx)
	if err != nil {
		return err
	}
	existing, err := s.repo.GetSellerPenalty(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if _, err := s.storeFor(actor, existing.StoreID); err != nil {
		return err
	}
	if err := s.repo.DeleteSellerPenalty(ctx, existing.ID); err != nil {
		return err
	}
	s.logAudit(ctx, existing.StoreID, "seller_penalty_remove", "seller_penalty", existing.ID,
		fmt.Sprintf("seller=%s,period=%s,type=%s", existing.SellerID, existing.Period, existing.Name))
	return nil
}

// sellerScope pins non-admin readers to their own seller id.
func sellerScope(actor domain.Actor, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if actor.Role == domain.RoleAdmin {
		return requested, nil
	}
	if actor.SellerID == "" {
		return "", fmt.Errorf("actor is not linked to a seller: %w", ErrForbidden)
	}
	if requested != "" && requested != actor.SellerID {
		return "", fmt.Errorf("seller %s: %w", requested, ErrForbidden)
	}
	return actor.SellerID, nil
}
