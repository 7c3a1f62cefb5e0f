// Package account holds the bank account and balance snapshot models and
// their repository contracts.
package account

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when an account does not exist or is not owned by
// the requesting user.
var ErrNotFound = errors.New("account not found")

// Balance snapshot sources.
const (
	SourceAggregator = "aggregator"
	SourceManual     = "manual"
)

// Account is a bank account discovered under a connection. Accounts are
// never deleted: when their connection is removed they are deactivated so
// historical balances and transactions survive.
type Account struct {
	ID           int64
	ConnectionID string
	UserID       int64
	AggregatorID string // provider-issued account id, unique per user
	IBAN         *string
	Name         string
	Currency     string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Balance is an append-only snapshot of an account's position on a given
// date. The latest snapshot is derived by ordering on BalanceDate, never by
// mutating rows in place.
type Balance struct {
	ID          int64
	AccountID   int64
	Amount      decimal.Decimal
	Available   *decimal.Decimal
	Currency    string
	BalanceDate time.Time // date precision
	Source      string
	CreatedAt   time.Time
}
