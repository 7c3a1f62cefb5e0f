package account

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// UpsertParams identifies an account by (user id, aggregator account id);
// re-upserting the same provider account refreshes its details instead of
// creating a duplicate.
type UpsertParams struct {
	ConnectionID string
	UserID       int64
	AggregatorID string
	IBAN         *string
	Name         string
	Currency     string
}

// Repository is the persistence contract for accounts.
type Repository interface {
	Upsert(ctx context.Context, params UpsertParams) (*Account, error)
	GetByID(ctx context.Context, id int64) (*Account, error)
	ListActiveByUserID(ctx context.Context, userID int64) ([]*Account, error)
	DeactivateByConnectionID(ctx context.Context, connectionID string) error
}

// BalanceUpsertParams identifies a snapshot by (account id, balance date,
// source); conflicts replace the stored amounts.
type BalanceUpsertParams struct {
	AccountID   int64
	Amount      decimal.Decimal
	Available   *decimal.Decimal
	Currency    string
	BalanceDate time.Time
	Source      string
}

// BalanceRepository is the persistence contract for balance snapshots.
type BalanceRepository interface {
	Upsert(ctx context.Context, params BalanceUpsertParams) error

	// ListLatestByUserID returns the most recent snapshot per active
	// account for the user.
	ListLatestByUserID(ctx context.Context, userID int64) ([]*Balance, error)
}
