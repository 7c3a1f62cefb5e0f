// Package summary recomputes a user's net-worth snapshot from current
// balances and other holdings. The snapshot is a best-effort cache: callers
// log recalculation failures and never let them fail the parent operation.
package summary

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// FinancialSummary is one user's net-worth snapshot for a given date.
type FinancialSummary struct {
	ID               int64
	UserID           int64
	SummaryDate      time.Time // date precision
	TotalBankBalance decimal.Decimal
	TotalInvestments decimal.Decimal
	TotalRealEstate  decimal.Decimal
	TotalOtherAssets decimal.Decimal
	NetWorth         decimal.Decimal
	Currency         string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// UpsertParams carries a snapshot keyed by (user id, summary date); the same
// day's row is overwritten on recalculation.
type UpsertParams struct {
	UserID           int64
	SummaryDate      time.Time
	TotalBankBalance decimal.Decimal
	TotalInvestments decimal.Decimal
	TotalRealEstate  decimal.Decimal
	TotalOtherAssets decimal.Decimal
	NetWorth         decimal.Decimal
	Currency         string
}

// Repository is the persistence contract for summaries.
type Repository interface {
	Upsert(ctx context.Context, params UpsertParams) error
	GetLatestByUserID(ctx context.Context, userID int64) (*FinancialSummary, error)
}

// HoldingsReader exposes the non-bank asset totals owned by other parts of
// the application. All totals are in the summary currency.
type HoldingsReader interface {
	InvestmentsTotal(ctx context.Context, userID int64) (decimal.Decimal, error)
	RealEstateTotal(ctx context.Context, userID int64) (decimal.Decimal, error)
	OtherAssetsTotal(ctx context.Context, userID int64) (decimal.Decimal, error)
}
