package store

import (
	"context"
	"errors"
	"time"

	"posconsole/backend/internal/domain"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrRuleOverlap            = errors.New("rule validity window overlaps an existing version")
	ErrConcurrentModification = errors.New("record was modified concurrently")
	ErrPeriodFinalized        = errors.New("period is finalized")
	ErrPeriodNotFinalized     = errors.New("period is not finalized")
	ErrConflict               = errors.New("already exists")
)

type Repository interface {
	ListRules(ctx context.Context, storeID string, includeHistory bool) ([]domain.ObjectiveRule, error)
	GetRule(ctx context.Context, id string) (*domain.ObjectiveRule, error)
	// CreateRuleVersion closes the store's open version at rule.ValidFrom - 1 day
	// and inserts rule as the next version, atomically.
	CreateRuleVersion(ctx context.Context, rule domain.ObjectiveRule) (*domain.ObjectiveRule, error)
	CloseRule(ctx context.Context, id string, validUntil time.Time) (*domain.ObjectiveRule, error)
	// FindRuleInForce returns the active store rule covering day, falling back to
	// the global rule. Nil when neither exists.
	FindRuleInForce(ctx context.Context, storeID string, day time.Time) (*domain.ObjectiveRule, error)

	ListPenaltyTypes(ctx context.Context, storeID string) ([]domain.PenaltyType, error)
	GetPenaltyType(ctx context.Context, id string) (*domain.PenaltyType, error)
	CreatePenaltyType(ctx context.Context, penaltyType domain.PenaltyType) (*domain.PenaltyType, error)
	UpdatePenaltyType(ctx context.Context, penaltyType domain.PenaltyType) (*domain.PenaltyType, error)
	DeletePenaltyType(ctx context.Context, id string) error

	CreateSellerPenalty(ctx context.Context, penalty domain.SellerPenalty) (*domain.SellerPenalty, error)
	ListSellerPenalties(ctx context.Context, storeID string, period domain.Period, sellerID string) ([]domain.SellerPenalty, error)
	GetSellerPenalty(ctx context.Context, id string) (*domain.SellerPenalty, error)
	DeleteSellerPenalty(ctx context.Context, id string) error

	GetSellerStats(ctx context.Context, storeID string, period domain.Period, sellerID string) (*domain.SellerMonthlyStats, error)
	ListSellerStats(ctx context.Context, storeID string, period domain.Period) ([]domain.SellerMonthlyStats, error)
	// SaveSellerStats upserts one row. expectedVersion is the version the caller
	// read (0 for a new row); a mismatch returns ErrConcurrentModification and a
	// finalized period returns ErrPeriodFinalized.
	SaveSellerStats(ctx context.Context, stats domain.SellerMonthlyStats, expectedVersion int) (*domain.SellerMonthlyStats, error)
	GetPeriodState(ctx context.Context, storeID string, period domain.Period) (domain.PeriodState, error)
	FinalizePeriod(ctx context.Context, storeID string, period domain.Period, by string, at time.Time) (domain.PeriodState, error)
	UnlockPeriod(ctx context.Context, storeID string, period domain.Period, by string, reason string, at time.Time) (domain.PeriodState, error)

	GetLeaderboardSettings(ctx context.Context, storeID string) (domain.LeaderboardSettings, error)
	UpsertLeaderboardSettings(ctx context.Context, settings domain.LeaderboardSettings) (domain.LeaderboardSettings, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// Ledger is the read-only view of the sales and payments books that stats are
// aggregated from.
type Ledger interface {
	ListStores(ctx context.Context) ([]string, error)
	ListSellers(ctx context.Context, storeID string) ([]domain.Seller, error)
	SellerLedgerFacts(ctx context.Context, storeID string, sellerID string, period domain.Period) (domain.LedgerFacts, error)
}
