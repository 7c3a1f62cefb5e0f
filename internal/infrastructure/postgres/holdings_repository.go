package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// HoldingsRepository implements summary.HoldingsReader against the
// investment, property and asset tables owned by other parts of the
// application. This repository only ever reads them.
type HoldingsRepository struct {
	db *DB
}

// NewHoldingsRepository creates a new PostgreSQL holdings repository
func NewHoldingsRepository(db *DB) *HoldingsRepository {
	return &HoldingsRepository{db: db}
}

// InvestmentsTotal sums the user's investment positions
func (r *HoldingsRepository) InvestmentsTotal(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return r.total(ctx, `SELECT COALESCE(SUM(current_value), 0) FROM investments WHERE user_id = $1`, userID)
}

// RealEstateTotal sums the user's property valuations
func (r *HoldingsRepository) RealEstateTotal(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return r.total(ctx, `SELECT COALESCE(SUM(current_value), 0) FROM properties WHERE user_id = $1`, userID)
}

// OtherAssetsTotal sums the user's remaining assets
func (r *HoldingsRepository) OtherAssetsTotal(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return r.total(ctx, `SELECT COALESCE(SUM(current_value), 0) FROM assets WHERE user_id = $1`, userID)
}

func (r *HoldingsRepository) total(ctx context.Context, query string, userID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("failed to total holdings: %w", err)
	}
	return total, nil
}
