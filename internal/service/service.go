package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"posconsole/backend/internal/domain"
	"posconsole/backend/internal/leaderboard"
	"posconsole/backend/internal/recompute"
	"posconsole/backend/internal/store"
	"posconsole/backend/internal/xid"
)

var (
	ErrForbidden  = errors.New("forbidden")
	ErrInvalidPIN = errors.New("invalid manager pin")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// PINVerifier checks the manager PIN required for unlocking a period.
type PINVerifier interface {
	ValidateManagerPIN(pin string) bool
}

type Options struct {
	DefaultStoreID string
	PINs           PINVerifier
	Logger         *zap.Logger
}

type Service struct {
	repo           store.Repository
	orchestrator   *recompute.Orchestrator
	boards         *leaderboard.Engine
	pins           PINVerifier
	logger         *zap.Logger
	defaultStoreID string
	now            func() time.Time
}

func New(repo store.Repository, orchestrator *recompute.Orchestrator, boards *leaderboard.Engine, opts Options) *Service {
	if opts.DefaultStoreID == "" {
		opts.DefaultStoreID = "main-store"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if boards == nil {
		boards = leaderboard.NewEngine(nil, 0, opts.Logger)
	}

	return &Service{
		repo:           repo,
		orchestrator:   orchestrator,
		boards:         boards,
		pins:           opts.PINs,
		logger:         opts.Logger,
		defaultStoreID: opts.DefaultStoreID,
		now:            time.Now,
	}
}

func (s *Service) actor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.Actor{}, fmt.Errorf("authenticated actor required: %w", ErrForbidden)
	}
	return actor, nil
}

func (s *Service) admin(ctx context.Context) (domain.Actor, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.Role != domain.RoleAdmin {
		return domain.Actor{}, fmt.Errorf("admin role required: %w", ErrForbidden)
	}
	return actor, nil
}

// storeFor resolves the store a request targets. Non-admin actors bound to a
// store can only ever reach that store.
func (s *Service) storeFor(actor domain.Actor, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if actor.Role != domain.RoleAdmin && actor.StoreID != "" {
		if requested != "" && requested != actor.StoreID {
			return "", fmt.Errorf("store %s: %w", requested, ErrForbidden)
		}
		return actor.StoreID, nil
	}
	if requested != "" {
		return requested, nil
	}
	if actor.StoreID != "" {
		return actor.StoreID, nil
	}
	return s.defaultStoreID, nil
}

// periodOrCurrent parses raw, defaulting to the current month.
func (s *Service) periodOrCurrent(raw string) (domain.Period, error) {
	if strings.TrimSpace(raw) == "" {
		return domain.PeriodOf(s.now()), nil
	}
	period, err := domain.ParsePeriod(raw)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, store.ErrInvalidInput)
	}
	return period, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	actor, err := s.admin(ctx)
	if err != nil {
		return nil, err
	}
	storeID, err = s.storeFor(actor, storeID)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := domain.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, store.ErrInvalidInput)
		}
		from = parsed
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, storeID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}
