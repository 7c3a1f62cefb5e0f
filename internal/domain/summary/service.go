package summary

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"nestegg/internal/domain/account"
)

// Service recalculates financial summaries.
type Service struct {
	repo     Repository
	balances account.BalanceRepository
	holdings HoldingsReader
	currency string
}

// NewService creates a summary service. currency is the reporting currency
// stamped on every snapshot.
func NewService(repo Repository, balances account.BalanceRepository, holdings HoldingsReader, currency string) *Service {
	return &Service{
		repo:     repo,
		balances: balances,
		holdings: holdings,
		currency: currency,
	}
}

// Recalculate rebuilds the user's snapshot for asOf's date: the latest
// balance of every active bank account plus investment, real estate and
// other asset totals. One row per (user, date); same-day runs overwrite.
func (s *Service) Recalculate(ctx context.Context, userID int64, asOf time.Time) error {
	balances, err := s.balances.ListLatestByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load balances: %w", err)
	}

	bankTotal := decimal.Zero
	for _, b := range balances {
		bankTotal = bankTotal.Add(b.Amount)
	}

	investments, err := s.holdings.InvestmentsTotal(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to total investments: %w", err)
	}
	realEstate, err := s.holdings.RealEstateTotal(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to total real estate: %w", err)
	}
	otherAssets, err := s.holdings.OtherAssetsTotal(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to total other assets: %w", err)
	}

	netWorth := bankTotal.Add(investments).Add(realEstate).Add(otherAssets)
	summaryDate := asOf.UTC().Truncate(24 * time.Hour)

	err = s.repo.Upsert(ctx, UpsertParams{
		UserID:           userID,
		SummaryDate:      summaryDate,
		TotalBankBalance: bankTotal,
		TotalInvestments: investments,
		TotalRealEstate:  realEstate,
		TotalOtherAssets: otherAssets,
		NetWorth:         netWorth,
		Currency:         s.currency,
	})
	if err != nil {
		return fmt.Errorf("failed to store summary: %w", err)
	}

	log.Printf("User %d: Summary recalculated for %s (net worth %s %s)",
		userID, summaryDate.Format("2006-01-02"), netWorth.StringFixed(2), s.currency)
	return nil
}
