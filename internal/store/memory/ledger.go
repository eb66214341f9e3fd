package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"posconsole/backend/internal/domain"
	"posconsole/backend/internal/xid"
)

// Sale is one ticket rung up by a seller. A cancelled sale counts towards
// gross and is fully reversed; Refunded is a partial or full return on a
// completed sale.
type Sale struct {
	ID        string
	StoreID   string
	SellerID  string
	Date      time.Time
	Total     decimal.Decimal
	Refunded  decimal.Decimal
	Cancelled bool
}

// CreditPayment is a customer paying down store credit, collected by a seller.
type CreditPayment struct {
	ID       string
	StoreID  string
	SellerID string
	Date     time.Time
	Amount   decimal.Decimal
}

func (s *Store) ListStores(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stores := make([]string, 0, 4)
	for _, seller := range s.sellers {
		if !slices.Contains(stores, seller.StoreID) {
			stores = append(stores, seller.StoreID)
		}
	}
	slices.Sort(stores)
	return stores, nil
}

func (s *Store) ListSellers(_ context.Context, storeID string) ([]domain.Seller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Seller, 0, len(s.sellers))
	for _, seller := range s.sellers {
		if seller.StoreID == storeID {
			result = append(result, seller)
		}
	}
	slices.SortFunc(result, func(a, b domain.Seller) int {
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) SellerLedgerFacts(_ context.Context, storeID string, sellerID string, period domain.Period) (domain.LedgerFacts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	facts := domain.LedgerFacts{
		StoreID:         storeID,
		SellerID:        sellerID,
		Period:          period,
		GrossAmount:     decimal.Zero,
		RefundAmount:    decimal.Zero,
		CreditRecovered: decimal.Zero,
	}
	for _, sale := range s.sales {
		if sale.StoreID != storeID || sale.SellerID != sellerID || !period.Contains(sale.Date) {
			continue
		}
		facts.GrossAmount = facts.GrossAmount.Add(sale.Total)
		if sale.Cancelled {
			facts.RefundAmount = facts.RefundAmount.Add(sale.Total)
			facts.CancellationCount++
			continue
		}
		facts.RefundAmount = facts.RefundAmount.Add(sale.Refunded)
		facts.SaleCount++
	}
	for _, payment := range s.creditPayments {
		if payment.StoreID == storeID && payment.SellerID == sellerID && period.Contains(payment.Date) {
			facts.CreditRecovered = facts.CreditRecovered.Add(payment.Amount)
		}
	}
	return facts, nil
}

type ledgerFixture struct {
	Sellers []domain.Seller `yaml:"sellers"`
	Sales   []struct {
		StoreID   string `yaml:"store_id"`
		SellerID  string `yaml:"seller_id"`
		Date      string `yaml:"date"`
		Total     string `yaml:"total"`
		Refunded  string `yaml:"refunded"`
		Cancelled bool   `yaml:"cancelled"`
	} `yaml:"sales"`
	CreditPayments []struct {
		StoreID  string `yaml:"store_id"`
		SellerID string `yaml:"seller_id"`
		Date     string `yaml:"date"`
		Amount   string `yaml:"amount"`
	} `yaml:"credit_payments"`
}

// LoadLedgerFixture replaces the in-memory ledger with the sellers, sales and
// credit payments described in a YAML file.
func (s *Store) LoadLedgerFixture(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read ledger fixture: %w", err)
	}
	return s.LoadLedgerYAML(raw)
}

func (s *Store) LoadLedgerYAML(raw []byte) error {
	var fixture ledgerFixture
	if err := yaml.Unmarshal(raw, &fixture); err != nil {
		return fmt.Errorf("parse ledger fixture: %w", err)
	}

	sales := make([]Sale, 0, len(fixture.Sales))
	for i, entry := range fixture.Sales {
		date, err := domain.ParseDate(entry.Date)
		if err != nil {
			return fmt.Errorf("sales[%d]: %w", i, err)
		}
		total, err := parseAmount(entry.Total)
		if err != nil {
			return fmt.Errorf("sales[%d].total: %w", i, err)
		}
		refunded, err := parseAmount(entry.Refunded)
		if err != nil {
			return fmt.Errorf("sales[%d].refunded: %w", i, err)
		}
		sales = append(sales, Sale{
			ID:        xid.New("sale"),
			StoreID:   entry.StoreID,
			SellerID:  entry.SellerID,
			Date:      date,
			Total:     total,
			Refunded:  refunded,
			Cancelled: entry.Cancelled,
		})
	}

	payments := make([]CreditPayment, 0, len(fixture.CreditPayments))
	for i, entry := range fixture.CreditPayments {
		date, err := domain.ParseDate(entry.Date)
		if err != nil {
			return fmt.Errorf("credit_payments[%d]: %w", i, err)
		}
		amount, err := parseAmount(entry.Amount)
		if err != nil {
			return fmt.Errorf("credit_payments[%d].amount: %w", i, err)
		}
		payments = append(payments, CreditPayment{
			ID:       xid.New("credit"),
			StoreID:  entry.StoreID,
			SellerID: entry.SellerID,
			Date:     date,
			Amount:   amount,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sellers = fixture.Sellers
	s.sales = sales
	s.creditPayments = payments
	return nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount %s", raw)
	}
	return amount, nil
}
