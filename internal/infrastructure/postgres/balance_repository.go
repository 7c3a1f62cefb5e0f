package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"nestegg/internal/domain/account"
)

// BalanceRepository implements account.BalanceRepository for PostgreSQL
type BalanceRepository struct {
	db *DB
}

// NewBalanceRepository creates a new PostgreSQL balance repository
func NewBalanceRepository(db *DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// Upsert writes a balance snapshot keyed by (account_id, balance_date,
// source). Conflicts replace the stored amounts so a re-sync never
// double-counts the same day.
func (r *BalanceRepository) Upsert(ctx context.Context, params account.BalanceUpsertParams) error {
	query := `
		INSERT INTO account_balances (account_id, amount, available, currency, balance_date, source)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id, balance_date, source)
		DO UPDATE SET
			amount = EXCLUDED.amount,
			available = EXCLUDED.available,
			currency = EXCLUDED.currency
	`

	_, err := r.db.ExecContext(
		ctx, query,
		params.AccountID, params.Amount, decimalPtr(params.Available),
		params.Currency, params.BalanceDate, params.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert balance: %w", err)
	}
	return nil
}

// ListLatestByUserID returns the most recent snapshot per active account
func (r *BalanceRepository) ListLatestByUserID(ctx context.Context, userID int64) ([]*account.Balance, error) {
	query := `
		SELECT DISTINCT ON (b.account_id)
			b.id, b.account_id, b.amount, b.available, b.currency, b.balance_date, b.source, b.created_at
		FROM account_balances b
		JOIN bank_accounts a ON a.id = b.account_id
		WHERE a.user_id = $1 AND a.active = TRUE
		ORDER BY b.account_id, b.balance_date DESC, b.created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	defer rows.Close()

	var balances []*account.Balance
	for rows.Next() {
		var b account.Balance
		var available decimal.NullDecimal

		err := rows.Scan(
			&b.ID, &b.AccountID, &b.Amount, &available,
			&b.Currency, &b.BalanceDate, &b.Source, &b.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}

		if available.Valid {
			b.Available = &available.Decimal
		}
		balances = append(balances, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balances: %w", err)
	}
	return balances, nil
}

func decimalPtr(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
