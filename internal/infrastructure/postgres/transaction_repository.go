package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"nestegg/internal/domain/transaction"
)

// TransactionRepository implements transaction.Repository for PostgreSQL
type TransactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a new PostgreSQL transaction repository
func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `
	id, account_id, external_id, amount, currency, transaction_date, posting_date,
	description, merchant, category, type, source, created_at, updated_at
`

// Upsert writes a transaction keyed by (account_id, external_id).
// Re-ingesting the same provider transaction updates the row in place.
func (r *TransactionRepository) Upsert(ctx context.Context, params transaction.UpsertParams) error {
	if params.ExternalID == nil {
		return fmt.Errorf("upsert requires an external id")
	}

	query := `
		INSERT INTO bank_transactions (
			account_id, external_id, amount, currency, transaction_date, posting_date,
			description, merchant, category, type, source
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (account_id, external_id) WHERE external_id IS NOT NULL
		DO UPDATE SET
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			transaction_date = EXCLUDED.transaction_date,
			posting_date = EXCLUDED.posting_date,
			description = EXCLUDED.description,
			merchant = EXCLUDED.merchant,
			type = EXCLUDED.type,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := r.db.ExecContext(ctx, query, r.args(params)...)
	if err != nil {
		return fmt.Errorf("failed to upsert transaction: %w", err)
	}
	return nil
}

// Insert writes a transaction without deduplication, for entries carrying no
// external id.
func (r *TransactionRepository) Insert(ctx context.Context, params transaction.UpsertParams) error {
	query := `
		INSERT INTO bank_transactions (
			account_id, external_id, amount, currency, transaction_date, posting_date,
			description, merchant, category, type, source
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query, r.args(params)...)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// ListByAccountID retrieves transactions for an account, newest first
func (r *TransactionRepository) ListByAccountID(ctx context.Context, accountID int64, limit, offset int) ([]*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM bank_transactions
		WHERE account_id = $1
		ORDER BY transaction_date DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*transaction.Transaction
	for rows.Next() {
		var tx transaction.Transaction
		var externalID, merchant, category sql.NullString
		var postingDate sql.NullTime

		err := rows.Scan(
			&tx.ID, &tx.AccountID, &externalID, &tx.Amount, &tx.Currency,
			&tx.TransactionDate, &postingDate, &tx.Description,
			&merchant, &category, &tx.Type, &tx.Source,
			&tx.CreatedAt, &tx.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		if externalID.Valid {
			tx.ExternalID = &externalID.String
		}
		if merchant.Valid {
			tx.Merchant = &merchant.String
		}
		if category.Valid {
			tx.Category = &category.String
		}
		if postingDate.Valid {
			tx.PostingDate = &postingDate.Time
		}
		transactions = append(transactions, &tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

func (r *TransactionRepository) args(params transaction.UpsertParams) []any {
	var externalID, merchant, category sql.NullString
	if params.ExternalID != nil {
		externalID = sql.NullString{String: *params.ExternalID, Valid: true}
	}
	if params.Merchant != nil {
		merchant = sql.NullString{String: *params.Merchant, Valid: true}
	}
	if params.Category != nil {
		category = sql.NullString{String: *params.Category, Valid: true}
	}

	return []any{
		params.AccountID, externalID, params.Amount, params.Currency,
		params.TransactionDate, nullTime(params.PostingDate),
		params.Description, merchant, category, params.Type, params.Source,
	}
}
