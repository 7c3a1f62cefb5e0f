package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"nestegg/internal/domain/account"
)

// AccountRepository implements account.Repository for PostgreSQL
type AccountRepository struct {
	db *DB
}

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `
	id, connection_id, user_id, aggregator_account_id, iban, name, currency,
	active, created_at, updated_at
`

// Upsert creates or refreshes an account keyed by (user_id,
// aggregator_account_id). Re-upserting reactivates a previously
// deactivated account and re-homes it under the new connection.
func (r *AccountRepository) Upsert(ctx context.Context, params account.UpsertParams) (*account.Account, error) {
	query := `
		INSERT INTO bank_accounts (
			connection_id, user_id, aggregator_account_id, iban, name, currency
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, aggregator_account_id)
		DO UPDATE SET
			connection_id = EXCLUDED.connection_id,
			iban = EXCLUDED.iban,
			name = EXCLUDED.name,
			currency = EXCLUDED.currency,
			active = TRUE,
			updated_at = CURRENT_TIMESTAMP
		RETURNING ` + accountColumns

	var ibanIn sql.NullString
	if params.IBAN != nil {
		ibanIn = sql.NullString{String: *params.IBAN, Valid: true}
	}

	row := r.db.QueryRowContext(
		ctx, query,
		params.ConnectionID, params.UserID, params.AggregatorID,
		ibanIn, params.Name, params.Currency,
	)

	acc, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}
	return acc, nil
}

// GetByID retrieves an account by its ID
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*account.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM bank_accounts
		WHERE id = $1
	`

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}

// ListActiveByUserID retrieves all active accounts for a user
func (r *AccountRepository) ListActiveByUserID(ctx context.Context, userID int64) ([]*account.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM bank_accounts
		WHERE user_id = $1 AND active = TRUE
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// DeactivateByConnectionID marks every account under a connection inactive,
// preserving its balances and transactions for history
func (r *AccountRepository) DeactivateByConnectionID(ctx context.Context, connectionID string) error {
	query := `
		UPDATE bank_accounts
		SET active = FALSE, updated_at = CURRENT_TIMESTAMP
		WHERE connection_id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, connectionID); err != nil {
		return fmt.Errorf("failed to deactivate accounts: %w", err)
	}
	return nil
}

func scanAccount(row rowScanner) (*account.Account, error) {
	var acc account.Account
	var iban sql.NullString

	err := row.Scan(
		&acc.ID, &acc.ConnectionID, &acc.UserID, &acc.AggregatorID,
		&iban, &acc.Name, &acc.Currency, &acc.Active,
		&acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if iban.Valid {
		acc.IBAN = &iban.String
	}
	return &acc, nil
}
