package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"nestegg/internal/domain/summary"
)

// SummaryRepository implements summary.Repository for PostgreSQL
type SummaryRepository struct {
	db *DB
}

// NewSummaryRepository creates a new PostgreSQL summary repository
func NewSummaryRepository(db *DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// Upsert writes a snapshot keyed by (user_id, summary_date), overwriting the
// same day's row on recalculation.
func (r *SummaryRepository) Upsert(ctx context.Context, params summary.UpsertParams) error {
	query := `
		INSERT INTO financial_summaries (
			user_id, summary_date, total_bank_balance, total_investments,
			total_real_estate, total_other_assets, net_worth, currency
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, summary_date)
		DO UPDATE SET
			total_bank_balance = EXCLUDED.total_bank_balance,
			total_investments = EXCLUDED.total_investments,
			total_real_estate = EXCLUDED.total_real_estate,
			total_other_assets = EXCLUDED.total_other_assets,
			net_worth = EXCLUDED.net_worth,
			currency = EXCLUDED.currency,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := r.db.ExecContext(
		ctx, query,
		params.UserID, params.SummaryDate, params.TotalBankBalance,
		params.TotalInvestments, params.TotalRealEstate, params.TotalOtherAssets,
		params.NetWorth, params.Currency,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert summary: %w", err)
	}
	return nil
}

// GetLatestByUserID retrieves the user's most recent snapshot
func (r *SummaryRepository) GetLatestByUserID(ctx context.Context, userID int64) (*summary.FinancialSummary, error) {
	query := `
		SELECT id, user_id, summary_date, total_bank_balance, total_investments,
		       total_real_estate, total_other_assets, net_worth, currency,
		       created_at, updated_at
		FROM financial_summaries
		WHERE user_id = $1
		ORDER BY summary_date DESC
		LIMIT 1
	`

	var s summary.FinancialSummary
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&s.ID, &s.UserID, &s.SummaryDate, &s.TotalBankBalance,
		&s.TotalInvestments, &s.TotalRealEstate, &s.TotalOtherAssets,
		&s.NetWorth, &s.Currency, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return &s, nil
}
