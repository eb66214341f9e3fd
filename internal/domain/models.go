package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
)

type Tier struct {
	Rank        int             `json:"rank"`
	Name        string          `json:"name"`
	Threshold   decimal.Decimal `json:"threshold"`
	BonusAmount decimal.Decimal `json:"bonus_amount"`
	BonusRate   decimal.Decimal `json:"bonus_rate"`
	Color       string          `json:"color,omitempty"`
	Icon        string          `json:"icon,omitempty"`
}

type ObjectiveRule struct {
	ID         string     `json:"id"`
	StoreID    string     `json:"store_id,omitempty"`
	Name       string     `json:"name"`
	Version    int        `json:"version"`
	ValidFrom  time.Time  `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	IsActive   bool       `json:"is_active"`
	Notes      string     `json:"notes,omitempty"`
	Tiers      []Tier     `json:"tiers"`
	CreatedBy  string     `json:"created_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsGlobal reports whether the rule applies to every store without its own rule.
func (r ObjectiveRule) IsGlobal() bool {
	return r.StoreID == ""
}

// Covers reports whether day falls inside the rule's validity window.
func (r ObjectiveRule) Covers(day time.Time) bool {
	day = DateOf(day)
	if day.Before(DateOf(r.ValidFrom)) {
		return false
	}
	return r.ValidUntil == nil || !day.After(DateOf(*r.ValidUntil))
}

type ObjectiveRuleCreateRequest struct {
	StoreID   string `json:"store_id"`
	Name      string `json:"name"`
	ValidFrom string `json:"valid_from"`
	IsActive  *bool  `json:"is_active,omitempty"`
	Notes     string `json:"notes"`
	Tiers     []Tier `json:"tiers"`
}

type ObjectiveRuleRetireRequest struct {
	ValidUntil string `json:"valid_until"`
}

type PenaltyMode string

const (
	PenaltyDeduction PenaltyMode = "DEDUCTION"
	PenaltyCap       PenaltyMode = "CAP"
)

func (m PenaltyMode) Valid() bool {
	return m == PenaltyDeduction || m == PenaltyCap
}

type PenaltyType struct {
	ID             string          `json:"id"`
	StoreID        string          `json:"store_id"`
	Name           string          `json:"name"`
	Mode           PenaltyMode     `json:"mode"`
	DefaultAmount  decimal.Decimal `json:"default_amount"`
	DefaultCapRank int             `json:"default_cap_rank,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type PenaltyTypeCreateRequest struct {
	StoreID        string          `json:"store_id"`
	Name           string          `json:"name"`
	Mode           PenaltyMode     `json:"mode"`
	DefaultAmount  decimal.Decimal `json:"default_amount"`
	DefaultCapRank int             `json:"default_cap_rank"`
}

type PenaltyTypeUpdateRequest struct {
	Name           *string          `json:"name,omitempty"`
	DefaultAmount  *decimal.Decimal `json:"default_amount,omitempty"`
	DefaultCapRank *int             `json:"default_cap_rank,omitempty"`
}

// SellerPenalty assigns a penalty type to one seller for one period. Amount and
// CapRank are resolved from the type defaults at assignment time.
type SellerPenalty struct {
	ID            string          `json:"id"`
	StoreID       string          `json:"store_id"`
	SellerID      string          `json:"seller_id"`
	Period        Period          `json:"period"`
	PenaltyTypeID string          `json:"penalty_type_id"`
	Name          string          `json:"name"`
	Mode          PenaltyMode     `json:"mode"`
	Amount        decimal.Decimal `json:"amount"`
	CapRank       int             `json:"cap_rank,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	CreatedBy     string          `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type SellerPenaltyCreateRequest struct {
	StoreID       string           `json:"store_id"`
	SellerID      string           `json:"seller_id"`
	Period        string           `json:"period"`
	PenaltyTypeID string           `json:"penalty_type_id"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	CapRank       *int             `json:"cap_rank,omitempty"`
	Reason        string           `json:"reason"`
}

type Segment string

const (
	SegmentExcellent Segment = "EXCELLENT"
	SegmentSolide    Segment = "SOLIDE"
	SegmentFragile   Segment = "FRAGILE"
	SegmentCritique  Segment = "CRITIQUE"
)

type EfficiencyScore struct {
	Score             float64  `json:"score"`
	Segment           Segment  `json:"segment"`
	AchievementIndex  float64  `json:"achievement_index"`
	VolumeIndex       float64  `json:"volume_index"`
	BasketIndex       float64  `json:"basket_index"`
	DisciplineIndex   float64  `json:"discipline_index"`
	AchievementPct    *float64 `json:"achievement_pct"`
	CancellationRate  float64  `json:"cancellation_rate"`
	Issues            []string `json:"issues"`
	RecommendedAction string   `json:"recommended_action"`
}

type SellerMonthlyStats struct {
	ID                string          `json:"id"`
	SellerID          string          `json:"seller_id"`
	SellerName        string          `json:"seller_name"`
	StoreID           string          `json:"store_id"`
	Period            Period          `json:"period"`
	GrossAmount       decimal.Decimal `json:"gross_amount"`
	RefundAmount      decimal.Decimal `json:"refund_amount"`
	NetAmount         decimal.Decimal `json:"net_amount"`
	SaleCount         int             `json:"sale_count"`
	CancellationCount int             `json:"cancellation_count"`
	AvgBasket         decimal.Decimal `json:"avg_basket"`
	CreditRecovered   decimal.Decimal `json:"credit_recovered"`
	CurrentTierRank   *int            `json:"current_tier_rank"`
	CurrentTierName   *string         `json:"current_tier_name"`
	RuleID            string          `json:"rule_id,omitempty"`
	RuleVersion       int             `json:"rule_version,omitempty"`
	TierSnapshot      []Tier          `json:"tier_snapshot"`
	Penalties         []SellerPenalty `json:"penalties,omitempty"`
	BonusEarned       decimal.Decimal `json:"bonus_earned"`
	Score             EfficiencyScore `json:"score"`
	IsFinal           bool            `json:"is_final"`
	Version           int             `json:"version"`
	ComputedAt        time.Time       `json:"computed_at"`
}

type PeriodStatus string

const (
	PeriodDraft     PeriodStatus = "DRAFT"
	PeriodFinalized PeriodStatus = "FINALIZED"
)

type PeriodState struct {
	StoreID      string       `json:"store_id"`
	Period       Period       `json:"period"`
	Status       PeriodStatus `json:"status"`
	FinalizedBy  string       `json:"finalized_by,omitempty"`
	FinalizedAt  *time.Time   `json:"finalized_at,omitempty"`
	UnlockedBy   string       `json:"unlocked_by,omitempty"`
	UnlockedAt   *time.Time   `json:"unlocked_at,omitempty"`
	UnlockReason string       `json:"unlock_reason,omitempty"`
}

type PeriodUnlockRequest struct {
	StoreID    string `json:"store_id"`
	Reason     string `json:"reason"`
	ManagerPIN string `json:"manager_pin"`
}

type PeriodFinalizeRequest struct {
	StoreID string `json:"store_id"`
}

type Visibility string

const (
	VisibilityFull        Visibility = "FULL"
	VisibilityTierAndRank Visibility = "TIER_AND_RANK"
	VisibilityRankOnly    Visibility = "RANK_ONLY"
	VisibilityAnonymous   Visibility = "ANONYMOUS"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityFull, VisibilityTierAndRank, VisibilityRankOnly, VisibilityAnonymous:
		return true
	default:
		return false
	}
}

type RankMetric string

const (
	RankByNetAmount RankMetric = "net_amount"
	RankByBonus     RankMetric = "bonus_earned"
	RankByScore     RankMetric = "score"
	RankBySaleCount RankMetric = "sale_count"
)

func (m RankMetric) Valid() bool {
	switch m {
	case RankByNetAmount, RankByBonus, RankByScore, RankBySaleCount:
		return true
	default:
		return false
	}
}

type LeaderboardSettings struct {
	StoreID                string     `json:"store_id"`
	Visibility             Visibility `json:"visibility"`
	RefreshIntervalMinutes int        `json:"refresh_interval_minutes"`
	ShowAmounts            bool       `json:"show_amounts"`
	ShowTier               bool       `json:"show_tier"`
	RankBy                 RankMetric `json:"rank_by"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

func DefaultLeaderboardSettings(storeID string) LeaderboardSettings {
	return LeaderboardSettings{
		StoreID:                storeID,
		Visibility:             VisibilityTierAndRank,
		RefreshIntervalMinutes: 15,
		ShowAmounts:            false,
		ShowTier:               true,
		RankBy:                 RankByNetAmount,
	}
}

type LeaderboardSettingsUpdateRequest struct {
	StoreID                string      `json:"store_id"`
	Visibility             *Visibility `json:"visibility,omitempty"`
	RefreshIntervalMinutes *int        `json:"refresh_interval_minutes,omitempty"`
	ShowAmounts            *bool       `json:"show_amounts,omitempty"`
	ShowTier               *bool       `json:"show_tier,omitempty"`
	RankBy                 *RankMetric `json:"rank_by,omitempty"`
}

type LeaderboardEntry struct {
	Rank       int              `json:"rank"`
	SellerID   string           `json:"seller_id,omitempty"`
	SellerName string           `json:"seller_name,omitempty"`
	TierRank   *int             `json:"tier_rank,omitempty"`
	TierName   *string          `json:"tier_name,omitempty"`
	NetAmount  *decimal.Decimal `json:"net_amount,omitempty"`
	Bonus      *decimal.Decimal `json:"bonus_earned,omitempty"`
	Score      *float64         `json:"score,omitempty"`
	Segment    Segment          `json:"segment,omitempty"`
	IsSelf     bool             `json:"is_self,omitempty"`
}

// RankedStats is one ranked, unredacted row of a leaderboard.
type RankedStats struct {
	Rank  int                `json:"rank"`
	Stats SellerMonthlyStats `json:"stats"`
}

type RankedBoard struct {
	StoreID     string        `json:"store_id"`
	Period      Period        `json:"period"`
	RankBy      RankMetric    `json:"rank_by"`
	Rows        []RankedStats `json:"rows"`
	GeneratedAt time.Time     `json:"generated_at"`
}

type LeaderboardDistribution struct {
	Participants int              `json:"participants"`
	ByTier       map[string]int   `json:"by_tier,omitempty"`
	TotalNet     *decimal.Decimal `json:"total_net,omitempty"`
	AverageNet   *decimal.Decimal `json:"average_net,omitempty"`
	MedianNet    *decimal.Decimal `json:"median_net,omitempty"`
	MaxNet       *decimal.Decimal `json:"max_net,omitempty"`
}

type LeaderboardView struct {
	StoreID      string                   `json:"store_id"`
	Period       Period                   `json:"period"`
	Visibility   Visibility               `json:"visibility"`
	RankBy       RankMetric               `json:"rank_by"`
	Entries      []LeaderboardEntry       `json:"entries"`
	Distribution *LeaderboardDistribution `json:"distribution,omitempty"`
	GeneratedAt  time.Time                `json:"generated_at"`
}

type Seller struct {
	ID      string `json:"id"      yaml:"id"`
	StoreID string `json:"store_id" yaml:"store_id"`
	Name    string `json:"name"    yaml:"name"`
}

// LedgerFacts are the raw per-seller totals read from the sales/payments ledger.
type LedgerFacts struct {
	StoreID           string          `json:"store_id"`
	SellerID          string          `json:"seller_id"`
	Period            Period          `json:"period"`
	GrossAmount       decimal.Decimal `json:"gross_amount"`
	RefundAmount      decimal.Decimal `json:"refund_amount"`
	SaleCount         int             `json:"sale_count"`
	CancellationCount int             `json:"cancellation_count"`
	CreditRecovered   decimal.Decimal `json:"credit_recovered"`
}

type RecomputeStatus string

const (
	JobPending   RecomputeStatus = "PENDING"
	JobRunning   RecomputeStatus = "RUNNING"
	JobCompleted RecomputeStatus = "COMPLETED"
	JobFailed    RecomputeStatus = "FAILED"
)

type RecomputeRequest struct {
	StoreID  string `json:"store_id"`
	Period   string `json:"period"`
	SellerID string `json:"seller_id,omitempty"`
}

type RecomputeFailure struct {
	SellerID string `json:"seller_id"`
	Error    string `json:"error"`
}

type RecomputeSummary struct {
	StoreID        string             `json:"store_id"`
	Period         Period             `json:"period"`
	SellerID       string             `json:"seller_id,omitempty"`
	GeneratedCount int                `json:"generated_count"`
	FailedCount    int                `json:"failed_count"`
	Failures       []RecomputeFailure `json:"failures,omitempty"`
}

type RecomputeJob struct {
	ID          string           `json:"id"`
	Status      RecomputeStatus  `json:"status"`
	Summary     RecomputeSummary `json:"summary"`
	Error       string           `json:"error,omitempty"`
	RequestedBy string           `json:"requested_by,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
}

type StatsQuery struct {
	StoreID  string
	Period   Period
	SellerID string
	SortBy   RankMetric
	Desc     bool
}

type StatsListResponse struct {
	State PeriodState          `json:"state"`
	Stats []SellerMonthlyStats `json:"stats"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	StoreID     string `json:"store_id,omitempty"`
	SellerID    string `json:"seller_id,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
	StoreID  string
	SellerID string
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	StoreID   string    `json:"store_id"`
	SellerID  string    `json:"seller_id,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
