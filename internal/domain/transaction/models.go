// Package transaction holds the bank transaction model and its repository
// contract.
package transaction

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction sources.
const (
	SourceAggregator = "aggregator"
	SourceManual     = "manual"
)

// Transaction is one ledger entry on a bank account. Amounts are signed:
// debits negative, credits positive. ExternalID is the provider-issued id
// and is nil for manual entries, which are never deduplicated.
type Transaction struct {
	ID              int64
	AccountID       int64
	ExternalID      *string
	Amount          decimal.Decimal
	Currency        string
	TransactionDate time.Time
	PostingDate     *time.Time
	Description     string
	Merchant        *string
	Category        *string
	Type            string
	Source          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UpsertParams carries a transaction to persist. For Upsert the natural key
// is (account id, external id).
type UpsertParams struct {
	AccountID       int64
	ExternalID      *string
	Amount          decimal.Decimal
	Currency        string
	TransactionDate time.Time
	PostingDate     *time.Time
	Description     string
	Merchant        *string
	Category        *string
	Type            string
	Source          string
}

// Repository is the persistence contract for transactions. The sync engine
// only ever inserts or upserts; deletion is a user action handled elsewhere.
type Repository interface {
	// Upsert writes a transaction keyed by (account id, external id).
	// Re-ingesting the same external id updates the row instead of
	// creating a duplicate. ExternalID must be non-nil.
	Upsert(ctx context.Context, params UpsertParams) error

	// Insert writes a transaction without deduplication, used for
	// entries that carry no external id.
	Insert(ctx context.Context, params UpsertParams) error

	ListByAccountID(ctx context.Context, accountID int64, limit, offset int) ([]*Transaction, error)
}
