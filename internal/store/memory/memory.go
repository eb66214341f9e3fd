package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"posconsole/backend/internal/domain"
	"posconsole/backend/internal/store"
	"posconsole/backend/internal/xid"
)

const DefaultStoreID = "main-store"

type Store struct {
	mu              sync.RWMutex
	rulesByID       map[string]domain.ObjectiveRule
	penaltyTypes    map[string]domain.PenaltyType
	sellerPenalties map[string]domain.SellerPenalty
	stats           map[string]domain.SellerMonthlyStats
	periods         map[string]domain.PeriodState
	settings        map[string]domain.LeaderboardSettings
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount

	sellers        []domain.Seller
	sales          []Sale
	creditPayments []CreditPayment
}

// New returns an empty store with no users, rules or ledger data.
func New() *Store {
	return &Store{
		rulesByID:       make(map[string]domain.ObjectiveRule),
		penaltyTypes:    make(map[string]domain.PenaltyType),
		sellerPenalties: make(map[string]domain.SellerPenalty),
		stats:           make(map[string]domain.SellerMonthlyStats),
		periods:         make(map[string]domain.PeriodState),
		settings:        make(map[string]domain.LeaderboardSettings),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the demo accounts. Passwords come from SEED_ADMIN_PASSWORD
// and SEED_SELLER_PASSWORD; dev defaults are used with a warning otherwise.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "seller123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		zap.L().Warn("memory store using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
		sellerID string
	}{
		{"admin", adminPwd, domain.RoleAdmin, ""},
		{"amine", sellerPwd, domain.RoleSeller, "seller-amine"},
		{"chloe", sellerPwd, domain.RoleSeller, "seller-chloe"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			zap.L().Fatal("hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			StoreID:   DefaultStoreID,
			SellerID:  u.sellerID,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a demo store: one shop with four sellers, two months of
// sales, the global tier ladder and two penalty types.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC()
	current := domain.PeriodOf(now)
	previous := domain.PeriodOf(current.Start().AddDate(0, -1, 0))

	s.rulesByID["rule-global-v1"] = domain.ObjectiveRule{
		ID:        "rule-global-v1",
		Name:      "Paliers standard",
		Version:   1,
		ValidFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		IsActive:  true,
		Tiers: []domain.Tier{
			{Rank: 1, Name: "Bronze", Threshold: decimal.NewFromInt(100000), BonusAmount: decimal.NewFromInt(5000), Color: "#cd7f32"},
			{Rank: 2, Name: "Argent", Threshold: decimal.NewFromInt(250000), BonusAmount: decimal.NewFromInt(15000), Color: "#c0c0c0"},
			{Rank: 3, Name: "Or", Threshold: decimal.NewFromInt(500000), BonusAmount: decimal.NewFromInt(35000), Color: "#ffd700"},
			{Rank: 4, Name: "Elite", Threshold: decimal.NewFromInt(1000000), BonusAmount: decimal.NewFromInt(80000), BonusRate: decimal.NewFromInt(1), Color: "#6a0dad"},
		},
		CreatedBy: "system",
		CreatedAt: now,
	}

	s.penaltyTypes["ptype-late"] = domain.PenaltyType{
		ID: "ptype-late", StoreID: DefaultStoreID, Name: "Retard caisse", Mode: domain.PenaltyDeduction,
		DefaultAmount: decimal.NewFromInt(5000), CreatedAt: now,
	}
	s.penaltyTypes["ptype-misconduct"] = domain.PenaltyType{
		ID: "ptype-misconduct", StoreID: DefaultStoreID, Name: "Faute grave", Mode: domain.PenaltyCap,
		DefaultCapRank: 3, CreatedAt: now,
	}

	s.sellers = []domain.Seller{
		{ID: "seller-amine", StoreID: DefaultStoreID, Name: "Amine"},
		{ID: "seller-basile", StoreID: DefaultStoreID, Name: "Basile"},
		{ID: "seller-chloe", StoreID: DefaultStoreID, Name: "Chloe"},
		{ID: "seller-dina", StoreID: DefaultStoreID, Name: "Dina"},
	}
	for _, period := range []domain.Period{previous, current} {
		for i, seller := range s.sellers {
			s.sales = append(s.sales, demoSales(seller, period, i)...)
		}
		s.creditPayments = append(s.creditPayments, CreditPayment{
			ID:       xid.New("credit"),
			StoreID:  DefaultStoreID,
			SellerID: "seller-basile",
			Date:     period.Start().AddDate(0, 0, 9),
			Amount:   decimal.NewFromInt(12500),
		})
	}

	return s
}

func demoSales(seller domain.Seller, period domain.Period, index int) []Sale {
	count := 12 + 5*index
	unit := decimal.NewFromInt(int64(9000 + 2500*index))
	sales := make([]Sale, 0, count)
	for k := 0; k < count; k++ {
		sale := Sale{
			ID:       xid.New("sale"),
			StoreID:  seller.StoreID,
			SellerID: seller.ID,
			Date:     period.Start().AddDate(0, 0, (k*3)%28),
			Total:    unit,
		}
		if k%7 == 6 {
			sale.Cancelled = true
		}
		if k%9 == 8 {
			sale.Refunded = unit.Div(decimal.NewFromInt(2))
		}
		sales = append(sales, sale)
	}
	return sales
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return fmt.Errorf("user %q: %w", username, store.ErrConflict)
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleSeller
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func periodKey(storeID string, period domain.Period) string {
	return storeID + "|" + string(period)
}

func statsKey(storeID string, period domain.Period, sellerID string) string {
	return storeID + "|" + string(period) + "|" + sellerID
}
