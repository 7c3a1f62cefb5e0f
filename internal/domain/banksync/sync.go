// Package banksync pulls balances and transactions from the aggregator and
// persists them, both for ad-hoc user requests and for the daily batch.
package banksync

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"nestegg/internal/domain/account"
	"nestegg/internal/domain/transaction"
	"nestegg/internal/infrastructure/aggregator"
)

// Result summarizes one sync run for one user.
type Result struct {
	Success            bool     `json:"success"`
	AccountsSynced     int      `json:"accounts_synced"`
	BalancesSynced     int      `json:"balances_synced"`
	TransactionsSynced int      `json:"transactions_synced"`
	Errors             []string `json:"errors"`
}

// ErrorText joins the run's errors into one line for bookkeeping columns.
// Returns nil when the run had none.
func (r *Result) ErrorText() *string {
	if len(r.Errors) == 0 {
		return nil
	}
	joined := strings.Join(r.Errors, "; ")
	return &joined
}

// RateLimitedOnly reports whether the run failed purely on spent rate
// budget, which callers map to a different response than a hard failure.
func (r *Result) RateLimitedOnly() bool {
	if r.Success || len(r.Errors) == 0 {
		return false
	}
	for _, e := range r.Errors {
		if !strings.Contains(e, aggregator.ErrRateLimitExceeded.Error()) {
			return false
		}
	}
	return true
}

// Service is the sync engine.
type Service struct {
	client       aggregator.Client
	accounts     account.Repository
	balances     account.BalanceRepository
	transactions transaction.Repository
}

// NewService creates a sync engine.
func NewService(
	client aggregator.Client,
	accounts account.Repository,
	balances account.BalanceRepository,
	transactions transaction.Repository,
) *Service {
	return &Service{
		client:       client,
		accounts:     accounts,
		balances:     balances,
		transactions: transactions,
	}
}

// SyncUser pulls balances and transactions for every active account the user
// has, or for the single account given by accountID. Per-account failures
// are recorded and the run continues: partial success is a normal outcome.
// Success is false only when every targeted account failed. Zero accounts is
// success with zero counts. Connection bookkeeping is the caller's job.
func (s *Service) SyncUser(ctx context.Context, userID int64, accountID *int64) (*Result, error) {
	targets, err := s.resolveTargets(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	result := &Result{Success: true, Errors: []string{}}
	if len(targets) == 0 {
		log.Printf("User %d: No active accounts to sync", userID)
		return result, nil
	}

	log.Printf("User %d: Syncing %d accounts", userID, len(targets))

	failed := 0
	for _, acct := range targets {
		if err := s.syncAccount(ctx, acct, result); err != nil {
			failed++
			errMsg := fmt.Sprintf("account %s: %v", acct.AggregatorID, err)
			result.Errors = append(result.Errors, errMsg)
			log.Printf("User %d: %s", userID, errMsg)
			continue
		}
		result.AccountsSynced++
	}

	if failed == len(targets) {
		result.Success = false
	}

	log.Printf("User %d: Sync complete - Accounts: %d, Balances: %d, Transactions: %d, Errors: %d",
		userID, result.AccountsSynced, result.BalancesSynced, result.TransactionsSynced, len(result.Errors))

	return result, nil
}

// resolveTargets returns the accounts to sync. A requested account id that
// does not exist, is inactive or belongs to another user fails with
// account.ErrNotFound.
func (s *Service) resolveTargets(ctx context.Context, userID int64, accountID *int64) ([]*account.Account, error) {
	if accountID == nil {
		accounts, err := s.accounts.ListActiveByUserID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to list accounts: %w", err)
		}
		return accounts, nil
	}

	acct, err := s.accounts.GetByID(ctx, *accountID)
	if err != nil {
		return nil, err
	}
	if acct.UserID != userID || !acct.Active {
		return nil, account.ErrNotFound
	}
	return []*account.Account{acct}, nil
}

// syncAccount fetches and upserts one account's balances and transactions.
// Both fetches spend rate budget; a spent budget surfaces as an error here
// and the caller moves on to the next account.
func (s *Service) syncAccount(ctx context.Context, acct *account.Account, result *Result) error {
	balances, err := s.client.GetAccountBalances(ctx, acct.AggregatorID)
	if err != nil {
		return fmt.Errorf("failed to fetch balances: %w", err)
	}
	for _, b := range balances {
		if err := s.upsertBalance(ctx, acct, b); err != nil {
			return err
		}
		result.BalancesSynced++
	}

	transactions, err := s.client.GetAccountTransactions(ctx, acct.AggregatorID)
	if err != nil {
		return fmt.Errorf("failed to fetch transactions: %w", err)
	}
	for _, tx := range transactions {
		if err := s.storeTransaction(ctx, acct, tx); err != nil {
			return err
		}
		result.TransactionsSynced++
	}

	return nil
}

func (s *Service) upsertBalance(ctx context.Context, acct *account.Account, b aggregator.Balance) error {
	balanceDate := time.Now().UTC().Truncate(24 * time.Hour)
	if b.ReferenceDate != "" {
		parsed, err := time.Parse("2006-01-02", b.ReferenceDate)
		if err != nil {
			return fmt.Errorf("failed to parse balance date %q: %w", b.ReferenceDate, err)
		}
		balanceDate = parsed
	}

	currency := b.Currency
	if currency == "" {
		currency = acct.Currency
	}

	err := s.balances.Upsert(ctx, account.BalanceUpsertParams{
		AccountID:   acct.ID,
		Amount:      b.Amount,
		Currency:    currency,
		BalanceDate: balanceDate,
		Source:      account.SourceAggregator,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert balance: %w", err)
	}
	return nil
}

// storeTransaction upserts by (account, external id) when the provider gave
// one; entries without an id are inserted fresh and never deduplicated.
func (s *Service) storeTransaction(ctx context.Context, acct *account.Account, tx aggregator.AccountTransaction) error {
	txDate, err := time.Parse("2006-01-02", tx.BookingDate)
	if err != nil {
		return fmt.Errorf("failed to parse transaction date %q: %w", tx.BookingDate, err)
	}

	params := transaction.UpsertParams{
		AccountID:       acct.ID,
		Amount:          tx.Amount,
		Currency:        tx.Currency,
		TransactionDate: txDate,
		Description:     tx.Description,
		Type:            tx.Type,
		Source:          transaction.SourceAggregator,
	}
	if tx.ValueDate != "" {
		if posted, err := time.Parse("2006-01-02", tx.ValueDate); err == nil {
			params.PostingDate = &posted
		}
	}
	if tx.Merchant != "" {
		merchant := tx.Merchant
		params.Merchant = &merchant
	}

	if tx.ExternalID == "" {
		if err := s.transactions.Insert(ctx, params); err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
		return nil
	}

	externalID := tx.ExternalID
	params.ExternalID = &externalID
	if err := s.transactions.Upsert(ctx, params); err != nil {
		return fmt.Errorf("failed to upsert transaction %s: %w", externalID, err)
	}
	return nil
}
