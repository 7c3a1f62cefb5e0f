package banksync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"nestegg/internal/domain/account"
	"nestegg/internal/domain/transaction"
	"nestegg/internal/infrastructure/aggregator"
)

type mockAggregatorClient struct {
	GetAccountBalancesFunc     func(ctx context.Context, accountID string) ([]aggregator.Balance, error)
	GetAccountTransactionsFunc func(ctx context.Context, accountID string) ([]aggregator.AccountTransaction, error)
}

func (m *mockAggregatorClient) ListInstitutions(ctx context.Context, countryCode string) ([]aggregator.Institution, error) {
	panic("not used")
}
func (m *mockAggregatorClient) CreateEndUserAgreement(ctx context.Context, institutionID string) (*aggregator.EndUserAgreement, error) {
	panic("not used")
}
func (m *mockAggregatorClient) CreateRequisition(ctx context.Context, params aggregator.CreateRequisitionParams) (*aggregator.Requisition, error) {
	panic("not used")
}
func (m *mockAggregatorClient) GetRequisition(ctx context.Context, requisitionID string) (*aggregator.Requisition, error) {
	panic("not used")
}
func (m *mockAggregatorClient) DeleteRequisition(ctx context.Context, requisitionID string) error {
	panic("not used")
}
func (m *mockAggregatorClient) GetAccountDetails(ctx context.Context, accountID string) (*aggregator.AccountDetails, error) {
	panic("not used")
}
func (m *mockAggregatorClient) GetAccountBalances(ctx context.Context, accountID string) ([]aggregator.Balance, error) {
	return m.GetAccountBalancesFunc(ctx, accountID)
}
func (m *mockAggregatorClient) GetAccountTransactions(ctx context.Context, accountID string) ([]aggregator.AccountTransaction, error) {
	return m.GetAccountTransactionsFunc(ctx, accountID)
}
func (m *mockAggregatorClient) RemainingBudget(accountID string) int { return 0 }

type mockAccountRepo struct {
	UpsertFunc                   func(ctx context.Context, params account.UpsertParams) (*account.Account, error)
	GetByIDFunc                  func(ctx context.Context, id int64) (*account.Account, error)
	ListActiveByUserIDFunc       func(ctx context.Context, userID int64) ([]*account.Account, error)
	DeactivateByConnectionIDFunc func(ctx context.Context, connectionID string) error
}

func (m *mockAccountRepo) Upsert(ctx context.Context, params account.UpsertParams) (*account.Account, error) {
	return m.UpsertFunc(ctx, params)
}
func (m *mockAccountRepo) GetByID(ctx context.Context, id int64) (*account.Account, error) {
	return m.GetByIDFunc(ctx, id)
}
func (m *mockAccountRepo) ListActiveByUserID(ctx context.Context, userID int64) ([]*account.Account, error) {
	return m.ListActiveByUserIDFunc(ctx, userID)
}
func (m *mockAccountRepo) DeactivateByConnectionID(ctx context.Context, connectionID string) error {
	return m.DeactivateByConnectionIDFunc(ctx, connectionID)
}

// fakeBalanceStore keeps rows keyed by the natural upsert key so tests can
// assert idempotence.
type fakeBalanceStore struct {
	rows map[string]account.BalanceUpsertParams
}

func newFakeBalanceStore() *fakeBalanceStore {
	return &fakeBalanceStore{rows: map[string]account.BalanceUpsertParams{}}
}

func (f *fakeBalanceStore) Upsert(ctx context.Context, params account.BalanceUpsertParams) error {
	key := fmt.Sprintf("%d|%s|%s", params.AccountID, params.BalanceDate.Format("2006-01-02"), params.Source)
	f.rows[key] = params
	return nil
}

func (f *fakeBalanceStore) ListLatestByUserID(ctx context.Context, userID int64) ([]*account.Balance, error) {
	panic("not used")
}

type fakeTransactionStore struct {
	rows    map[string]transaction.UpsertParams
	inserts int
}

func newFakeTransactionStore() *fakeTransactionStore {
	return &fakeTransactionStore{rows: map[string]transaction.UpsertParams{}}
}

func (f *fakeTransactionStore) Upsert(ctx context.Context, params transaction.UpsertParams) error {
	key := fmt.Sprintf("%d|%s", params.AccountID, *params.ExternalID)
	f.rows[key] = params
	return nil
}

func (f *fakeTransactionStore) Insert(ctx context.Context, params transaction.UpsertParams) error {
	f.inserts++
	return nil
}

func (f *fakeTransactionStore) ListByAccountID(ctx context.Context, accountID int64, limit, offset int) ([]*transaction.Transaction, error) {
	panic("not used")
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func activeAccounts(accounts ...*account.Account) *mockAccountRepo {
	return &mockAccountRepo{
		ListActiveByUserIDFunc: func(ctx context.Context, userID int64) ([]*account.Account, error) {
			return accounts, nil
		},
	}
}

func TestSyncUser(t *testing.T) {
	client := &mockAggregatorClient{
		GetAccountBalancesFunc: func(ctx context.Context, accountID string) ([]aggregator.Balance, error) {
			return []aggregator.Balance{
				{Amount: dec("1500.25"), Currency: "GBP", Type: "closingBooked", ReferenceDate: "2026-08-22"},
			}, nil
		},
		GetAccountTransactionsFunc: func(ctx context.Context, accountID string) ([]aggregator.AccountTransaction, error) {
			return []aggregator.AccountTransaction{
				{ExternalID: "tx-" + accountID + "-1", Amount: dec("-12.40"), Currency: "GBP", BookingDate: "2026-08-21", Description: "Coffee"},
				{ExternalID: "tx-" + accountID + "-2", Amount: dec("2000.00"), Currency: "GBP", BookingDate: "2026-08-20", Description: "Salary"},
			}, nil
		},
	}
	balances := newFakeBalanceStore()
	transactions := newFakeTransactionStore()
	accounts := activeAccounts(
		&account.Account{ID: 1, UserID: 7, AggregatorID: "agg-1", Currency: "GBP", Active: true},
		&account.Account{ID: 2, UserID: 7, AggregatorID: "agg-2", Currency: "GBP", Active: true},
	)

	svc := NewService(client, accounts, balances, transactions)
	result, err := svc.SyncUser(context.Background(), 7, nil)
	if err != nil {
		t.Fatalf("SyncUser() error = %v", err)
	}

	if !result.Success {
		t.Error("Success = false, want true")
	}
	if result.AccountsSynced != 2 || result.BalancesSynced != 2 || result.TransactionsSynced != 4 {
		t.Errorf("counts = %d/%d/%d, want 2/2/4",
			result.AccountsSynced, result.BalancesSynced, result.TransactionsSynced)
	}
	if len(result.Errors) != 0 {
		t.Errorf("errors = %v, want none", result.Errors)
	}
	if len(balances.rows) != 2 || len(transactions.rows) != 4 {
		t.Errorf("stored %d balances and %d transactions, want 2 and 4",
			len(balances.rows), len(transactions.rows))
	}
}

func TestSyncUser_RepeatIsIdempotent(t *testing.T) {
	client := &mockAggregatorClient{
		GetAccountBalancesFunc: func(ctx context.Context, accountID string) ([]aggregator.Balance, error) {
			return []aggregator.Balance{{Amount: dec("100"), Currency: "GBP", ReferenceDate: "2026-08-22"}}, nil
		},
		GetAccountTransactionsFunc: func(ctx context.Context, accountID string) ([]aggregator.AccountTransaction, error) {
			return []aggregator.AccountTransaction{
				{ExternalID: "tx-1", Amount: dec("-5"), Currency: "GBP", BookingDate: "2026-08-21"},
			}, nil
		},
	}
	balances := newFakeBalanceStore()
	transactions := newFakeTransactionStore()
	accounts := activeAccounts(&account.Account{ID: 1, UserID: 7, AggregatorID: "agg-1", Active: true})

	svc := NewService(client, accounts, balances, transactions)
	for i := 0; i < 2; i++ {
		if _, err := svc.SyncUser(context.Background(), 7, nil); err != nil {
			t.Fatalf("run %d: SyncUser() error = %v", i, err)
		}
	}

	if len(balances.rows) != 1 {
		t.Errorf("balance rows = %d, want 1 after re-sync", len(balances.rows))
	}
	if len(transactions.rows) != 1 {
		t.Errorf("transaction rows = %d, want 1 after re-sync", len(transactions.rows))
	}
}

func TestSyncUser_PartialFailure(t *testing.T) {
	client := &mockAggregatorClient{
		GetAccountBalancesFunc: func(ctx context.Context, accountID string) ([]aggregator.Balance, error) {
			if accountID == "agg-limited" {
				return nil, aggregator.ErrRateLimitExceeded
			}
			return []aggregator.Balance{{Amount: dec("100"), Currency: "GBP", ReferenceDate: "2026-08-22"}}, nil
		},
		GetAccountTransactionsFunc: func(ctx context.Context, accountID string) ([]aggregator.AccountTransaction, error) {
			return nil, nil
		},
	}
	accounts := activeAccounts(
		&account.Account{ID: 1, UserID: 7, AggregatorID: "agg-limited", Active: true},
		&account.Account{ID: 2, UserID: 7, AggregatorID: "agg-ok", Active: true},
	)

	svc := NewService(client, accounts, newFakeBalanceStore(), newFakeTransactionStore())
	result, err := svc.SyncUser(context.Background(), 7, nil)
	if err != nil {
		t.Fatalf("SyncUser() error = %v", err)
	}

	if !result.Success {
		t.Error("partial failure must still be Success = true")
	}
	if result.AccountsSynced != 1 {
		t.Errorf("AccountsSynced = %d, want 1", result.AccountsSynced)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "agg-limited") {
		t.Errorf("errors = %v, want one mentioning agg-limited", result.Errors)
	}
}

func TestSyncUser_AllAccountsFail(t *testing.T) {
	client := &mockAggregatorClient{
		GetAccountBalancesFunc: func(ctx context.Context, accountID string) ([]aggregator.Balance, error) {
			return nil, aggregator.ErrRateLimitExceeded
		},
	}
	accounts := activeAccounts(
		&account.Account{ID: 1, UserID: 7, AggregatorID: "agg-1", Active: true},
		&account.Account{ID: 2, UserID: 7, AggregatorID: "agg-2", Active: true},
	)

	svc := NewService(client, accounts, newFakeBalanceStore(), newFakeTransactionStore())
	result, err := svc.SyncUser(context.Background(), 7, nil)
	if err != nil {
		t.Fatalf("SyncUser() error = %v", err)
	}

	if result.Success {
		t.Error("Success = true, want false when every account failed")
	}
	if !result.RateLimitedOnly() {
		t.Error("RateLimitedOnly() = false, want true")
	}
	if result.ErrorText() == nil {
		t.Error("ErrorText() = nil, want joined errors")
	}
}

func TestSyncUser_NoAccounts(t *testing.T) {
	svc := NewService(&mockAggregatorClient{}, activeAccounts(), newFakeBalanceStore(), newFakeTransactionStore())
	result, err := svc.SyncUser(context.Background(), 7, nil)
	if err != nil {
		t.Fatalf("SyncUser() error = %v", err)
	}
	if !result.Success {
		t.Error("zero accounts must be Success = true")
	}
	if result.AccountsSynced != 0 || result.BalancesSynced != 0 || result.TransactionsSynced != 0 {
		t.Errorf("counts = %d/%d/%d, want 0/0/0",
			result.AccountsSynced, result.BalancesSynced, result.TransactionsSynced)
	}
	if result.ErrorText() != nil {
		t.Errorf("ErrorText() = %q, want nil", *result.ErrorText())
	}
}

func TestSyncUser_SingleAccountScoping(t *testing.T) {
	store := map[int64]*account.Account{
		1: {ID: 1, UserID: 7, AggregatorID: "agg-1", Active: true},
		2: {ID: 2, UserID: 99, AggregatorID: "agg-other", Active: true},
		3: {ID: 3, UserID: 7, AggregatorID: "agg-closed", Active: false},
	}
	accounts := &mockAccountRepo{
		GetByIDFunc: func(ctx context.Context, id int64) (*account.Account, error) {
			acct, ok := store[id]
			if !ok {
				return nil, account.ErrNotFound
			}
			return acct, nil
		},
	}
	client := &mockAggregatorClient{
		GetAccountBalancesFunc: func(ctx context.Context, accountID string) ([]aggregator.Balance, error) {
			return nil, nil
		},
		GetAccountTransactionsFunc: func(ctx context.Context, accountID string) ([]aggregator.AccountTransaction, error) {
			return nil, nil
		},
	}
	svc := NewService(client, accounts, newFakeBalanceStore(), newFakeTransactionStore())

	tests := []struct {
		name      string
		accountID int64
		wantErr   error
	}{
		{"owned and active", 1, nil},
		{"foreign account", 2, account.ErrNotFound},
		{"inactive account", 3, account.ErrNotFound},
		{"missing account", 4, account.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := tt.accountID
			_, err := svc.SyncUser(context.Background(), 7, &id)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("SyncUser() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSyncUser_TransactionWithoutExternalIDIsInserted(t *testing.T) {
	client := &mockAggregatorClient{
		GetAccountBalancesFunc: func(ctx context.Context, accountID string) ([]aggregator.Balance, error) {
			return nil, nil
		},
		GetAccountTransactionsFunc: func(ctx context.Context, accountID string) ([]aggregator.AccountTransaction, error) {
			return []aggregator.AccountTransaction{
				{Amount: dec("-3"), Currency: "GBP", BookingDate: "2026-08-21", Pending: true},
			}, nil
		},
	}
	transactions := newFakeTransactionStore()
	accounts := activeAccounts(&account.Account{ID: 1, UserID: 7, AggregatorID: "agg-1", Active: true})

	svc := NewService(client, accounts, newFakeBalanceStore(), transactions)
	result, err := svc.SyncUser(context.Background(), 7, nil)
	if err != nil {
		t.Fatalf("SyncUser() error = %v", err)
	}
	if transactions.inserts != 1 || len(transactions.rows) != 0 {
		t.Errorf("inserts = %d, upserts = %d, want 1 insert and 0 upserts",
			transactions.inserts, len(transactions.rows))
	}
	if result.TransactionsSynced != 1 {
		t.Errorf("TransactionsSynced = %d, want 1", result.TransactionsSynced)
	}
}

func TestSyncUser_BalanceWithoutReferenceDateUsesToday(t *testing.T) {
	client := &mockAggregatorClient{
		GetAccountBalancesFunc: func(ctx context.Context, accountID string) ([]aggregator.Balance, error) {
			return []aggregator.Balance{{Amount: dec("55"), Currency: "GBP"}}, nil
		},
		GetAccountTransactionsFunc: func(ctx context.Context, accountID string) ([]aggregator.AccountTransaction, error) {
			return nil, nil
		},
	}
	balances := newFakeBalanceStore()
	accounts := activeAccounts(&account.Account{ID: 1, UserID: 7, AggregatorID: "agg-1", Currency: "GBP", Active: true})

	svc := NewService(client, accounts, balances, newFakeTransactionStore())
	if _, err := svc.SyncUser(context.Background(), 7, nil); err != nil {
		t.Fatalf("SyncUser() error = %v", err)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	key := fmt.Sprintf("1|%s|%s", today.Format("2006-01-02"), account.SourceAggregator)
	if _, ok := balances.rows[key]; !ok {
		t.Errorf("balance stored under keys %v, want %q", mapKeys(balances.rows), key)
	}
}

func mapKeys(m map[string]account.BalanceUpsertParams) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
