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

func (s *Store) ListPenaltyTypes(_ context.Context, storeID string) ([]domain.PenaltyType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PenaltyType, 0, len(s.penaltyTypes))
	for _, pt := range s.penaltyTypes {
		if storeID != "" && pt.StoreID != storeID {
			continue
		}
		result = append(result, pt)
	}
	slices.SortFunc(result, func(a, b domain.PenaltyType) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) GetPenaltyType(_ context.Context, id string) (*domain.PenaltyType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pt, ok := s.penaltyTypes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &pt, nil
}

func (s *Store) CreatePenaltyType(_ context.Context, penaltyType domain.PenaltyType) (*domain.PenaltyType, error) {
	if penaltyType.StoreID == "" || strings.TrimSpace(penaltyType.Name) == "" || !penaltyType.Mode.Valid() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.penaltyNameTakenLocked(penaltyType.StoreID, penaltyType.Name, "") {
		return nil, fmt.Errorf("penalty type %q: %w", penaltyType.Name, store.ErrConflict)
	}
	if penaltyType.ID == "" {
		penaltyType.ID = xid.New("ptype")
	}
	if penaltyType.CreatedAt.IsZero() {
		penaltyType.CreatedAt = time.Now().UTC()
	}
	s.penaltyTypes[penaltyType.ID] = penaltyType
	return &penaltyType, nil
}

func (s *Store) UpdatePenaltyType(_ context.Context, penaltyType domain.PenaltyType) (*domain.PenaltyType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.penaltyTypes[penaltyType.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.penaltyNameTakenLocked(existing.StoreID, penaltyType.Name, existing.ID) {
		return nil, fmt.Errorf("penalty type %q: %w", penaltyType.Name, store.ErrConflict)
	}
	existing.Name = penaltyType.Name
	existing.DefaultAmount = penaltyType.DefaultAmount
	existing.DefaultCapRank = penaltyType.DefaultCapRank
	s.penaltyTypes[existing.ID] = existing
	return &existing, nil
}

func (s *Store) DeletePenaltyType(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.penaltyTypes[id]; !ok {
		return store.ErrNotFound
	}
	for _, assigned := range s.sellerPenalties {
		if assigned.PenaltyTypeID == id {
			return fmt.Errorf("penalty type is assigned to sellers: %w", store.ErrConflict)
		}
	}
	delete(s.penaltyTypes, id)
	return nil
}

func (s *Store) penaltyNameTakenLocked(storeID string, name string, exceptID string) bool {
	for _, pt := range s.penaltyTypes {
		if pt.ID != exceptID && pt.StoreID == storeID && strings.EqualFold(pt.Name, strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

func (s *Store) CreateSellerPenalty(_ context.Context, penalty domain.SellerPenalty) (*domain.SellerPenalty, error) {
	if penalty.StoreID == "" || penalty.SellerID == "" || penalty.Period == "" || !penalty.Mode.Valid() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.periodStateLocked(penalty.StoreID, penalty.Period).Status == domain.PeriodFinalized {
		return nil, store.ErrPeriodFinalized
	}
	if _, ok := s.penaltyTypes[penalty.PenaltyTypeID]; !ok {
		return nil, fmt.Errorf("penalty type %s: %w", penalty.PenaltyTypeID, store.ErrNotFound)
	}
	if penalty.ID == "" {
		penalty.ID = xid.New("penalty")
	}
	if penalty.CreatedAt.IsZero() {
		penalty.CreatedAt = time.Now().UTC()
	}
	s.sellerPenalties[penalty.ID] = penalty
	return &penalty, nil
}

func (s *Store) ListSellerPenalties(_ context.Context, storeID string, period domain.Period, sellerID string) ([]domain.SellerPenalty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SellerPenalty, 0, 8)
	for _, penalty := range s.sellerPenalties {
		if penalty.StoreID != storeID || penalty.Period != period {
			continue
		}
		if sellerID != "" && penalty.SellerID != sellerID {
			continue
		}
		result = append(result, penalty)
	}
	slices.SortFunc(result, func(a, b domain.SellerPenalty) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) GetSellerPenalty(_ context.Context, id string) (*domain.SellerPenalty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	penalty, ok := s.sellerPenalties[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &penalty, nil
}

func (s *Store) DeleteSellerPenalty(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	penalty, ok := s.sellerPenalties[id]
	if !ok {
		return store.ErrNotFound
	}
	if s.periodStateLocked(penalty.StoreID, penalty.Period).Status == domain.PeriodFinalized {
		return store.ErrPeriodFinalized
	}
	delete(s.sellerPenalties, id)
	return nil
}
