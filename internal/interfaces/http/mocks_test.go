package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	"nestegg/internal/domain/account"
	"nestegg/internal/domain/connection"
	"nestegg/internal/domain/transaction"
	"nestegg/internal/infrastructure/aggregator"
	"nestegg/internal/shared/middleware"
)

// MockAggregatorClient implements aggregator.Client for testing
type MockAggregatorClient struct {
	ListInstitutionsFunc       func(ctx context.Context, countryCode string) ([]aggregator.Institution, error)
	CreateEndUserAgreementFunc func(ctx context.Context, institutionID string) (*aggregator.EndUserAgreement, error)
	CreateRequisitionFunc      func(ctx context.Context, params aggregator.CreateRequisitionParams) (*aggregator.Requisition, error)
	GetRequisitionFunc         func(ctx context.Context, requisitionID string) (*aggregator.Requisition, error)
	DeleteRequisitionFunc      func(ctx context.Context, requisitionID string) error
	GetAccountDetailsFunc      func(ctx context.Context, accountID string) (*aggregator.AccountDetails, error)
	GetAccountBalancesFunc     func(ctx context.Context, accountID string) ([]aggregator.Balance, error)
	GetAccountTransactionsFunc func(ctx context.Context, accountID string) ([]aggregator.AccountTransaction, error)
}

func (m *MockAggregatorClient) ListInstitutions(ctx context.Context, countryCode string) ([]aggregator.Institution, error) {
	if m.ListInstitutionsFunc != nil {
		return m.ListInstitutionsFunc(ctx, countryCode)
	}
	return nil, nil
}

func (m *MockAggregatorClient) CreateEndUserAgreement(ctx context.Context, institutionID string) (*aggregator.EndUserAgreement, error) {
	if m.CreateEndUserAgreementFunc != nil {
		return m.CreateEndUserAgreementFunc(ctx, institutionID)
	}
	return &aggregator.EndUserAgreement{ID: "agr-1", Created: time.Now()}, nil
}

func (m *MockAggregatorClient) CreateRequisition(ctx context.Context, params aggregator.CreateRequisitionParams) (*aggregator.Requisition, error) {
	if m.CreateRequisitionFunc != nil {
		return m.CreateRequisitionFunc(ctx, params)
	}
	return &aggregator.Requisition{ID: "req-1", AuthURL: "https://auth.example/req-1"}, nil
}

func (m *MockAggregatorClient) GetRequisition(ctx context.Context, requisitionID string) (*aggregator.Requisition, error) {
	if m.GetRequisitionFunc != nil {
		return m.GetRequisitionFunc(ctx, requisitionID)
	}
	return &aggregator.Requisition{ID: requisitionID, Status: aggregator.RequisitionCreated}, nil
}

func (m *MockAggregatorClient) DeleteRequisition(ctx context.Context, requisitionID string) error {
	if m.DeleteRequisitionFunc != nil {
		return m.DeleteRequisitionFunc(ctx, requisitionID)
	}
	return nil
}

func (m *MockAggregatorClient) GetAccountDetails(ctx context.Context, accountID string) (*aggregator.AccountDetails, error) {
	if m.GetAccountDetailsFunc != nil {
		return m.GetAccountDetailsFunc(ctx, accountID)
	}
	return &aggregator.AccountDetails{Currency: "GBP"}, nil
}

func (m *MockAggregatorClient) GetAccountBalances(ctx context.Context, accountID string) ([]aggregator.Balance, error) {
	if m.GetAccountBalancesFunc != nil {
		return m.GetAccountBalancesFunc(ctx, accountID)
	}
	return nil, nil
}

func (m *MockAggregatorClient) GetAccountTransactions(ctx context.Context, accountID string) ([]aggregator.AccountTransaction, error) {
	if m.GetAccountTransactionsFunc != nil {
		return m.GetAccountTransactionsFunc(ctx, accountID)
	}
	return nil, nil
}

func (m *MockAggregatorClient) RemainingBudget(accountID string) int { return 4 }

// MockConnectionRepo implements connection.Repository for testing
type MockConnectionRepo struct {
	CreateFunc                func(ctx context.Context, params connection.CreateParams) (*connection.Connection, error)
	GetByRequisitionIDFunc    func(ctx context.Context, requisitionID string) (*connection.Connection, error)
	ListByUserIDFunc          func(ctx context.Context, userID int64) ([]*connection.Connection, error)
	ListLinkedFunc            func(ctx context.Context) ([]*connection.Connection, error)
	UpdateStatusFunc          func(ctx context.Context, id string, status connection.Status) error
	UpdateSyncBookkeepingFunc func(ctx context.Context, userID int64, syncedAt time.Time, syncError *string) error
	SoftDeleteFunc            func(ctx context.Context, id string) error
	CountActiveFunc           func(ctx context.Context) (int, error)
}

func (m *MockConnectionRepo) Create(ctx context.Context, params connection.CreateParams) (*connection.Connection, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, params)
	}
	return &connection.Connection{ID: params.ID, Status: params.Status}, nil
}

func (m *MockConnectionRepo) GetByRequisitionID(ctx context.Context, requisitionID string) (*connection.Connection, error) {
	if m.GetByRequisitionIDFunc != nil {
		return m.GetByRequisitionIDFunc(ctx, requisitionID)
	}
	return nil, connection.ErrNotFound
}

func (m *MockConnectionRepo) ListByUserID(ctx context.Context, userID int64) ([]*connection.Connection, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockConnectionRepo) ListLinked(ctx context.Context) ([]*connection.Connection, error) {
	if m.ListLinkedFunc != nil {
		return m.ListLinkedFunc(ctx)
	}
	return nil, nil
}

func (m *MockConnectionRepo) UpdateStatus(ctx context.Context, id string, status connection.Status) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, status)
	}
	return nil
}

func (m *MockConnectionRepo) UpdateSyncBookkeeping(ctx context.Context, userID int64, syncedAt time.Time, syncError *string) error {
	if m.UpdateSyncBookkeepingFunc != nil {
		return m.UpdateSyncBookkeepingFunc(ctx, userID, syncedAt, syncError)
	}
	return nil
}

func (m *MockConnectionRepo) SoftDelete(ctx context.Context, id string) error {
	if m.SoftDeleteFunc != nil {
		return m.SoftDeleteFunc(ctx, id)
	}
	return nil
}

func (m *MockConnectionRepo) CountActive(ctx context.Context) (int, error) {
	if m.CountActiveFunc != nil {
		return m.CountActiveFunc(ctx)
	}
	return 0, nil
}

// MockAccountRepo implements account.Repository for testing
type MockAccountRepo struct {
	UpsertFunc                   func(ctx context.Context, params account.UpsertParams) (*account.Account, error)
	GetByIDFunc                  func(ctx context.Context, id int64) (*account.Account, error)
	ListActiveByUserIDFunc       func(ctx context.Context, userID int64) ([]*account.Account, error)
	DeactivateByConnectionIDFunc func(ctx context.Context, connectionID string) error
}

func (m *MockAccountRepo) Upsert(ctx context.Context, params account.UpsertParams) (*account.Account, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, params)
	}
	return &account.Account{ID: 1, AggregatorID: params.AggregatorID}, nil
}

func (m *MockAccountRepo) GetByID(ctx context.Context, id int64) (*account.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, account.ErrNotFound
}

func (m *MockAccountRepo) ListActiveByUserID(ctx context.Context, userID int64) ([]*account.Account, error) {
	if m.ListActiveByUserIDFunc != nil {
		return m.ListActiveByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockAccountRepo) DeactivateByConnectionID(ctx context.Context, connectionID string) error {
	if m.DeactivateByConnectionIDFunc != nil {
		return m.DeactivateByConnectionIDFunc(ctx, connectionID)
	}
	return nil
}

// MockBalanceRepo implements account.BalanceRepository for testing
type MockBalanceRepo struct {
	UpsertFunc             func(ctx context.Context, params account.BalanceUpsertParams) error
	ListLatestByUserIDFunc func(ctx context.Context, userID int64) ([]*account.Balance, error)
}

func (m *MockBalanceRepo) Upsert(ctx context.Context, params account.BalanceUpsertParams) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, params)
	}
	return nil
}

func (m *MockBalanceRepo) ListLatestByUserID(ctx context.Context, userID int64) ([]*account.Balance, error) {
	if m.ListLatestByUserIDFunc != nil {
		return m.ListLatestByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

// MockTransactionRepo implements transaction.Repository for testing
type MockTransactionRepo struct {
	UpsertFunc          func(ctx context.Context, params transaction.UpsertParams) error
	InsertFunc          func(ctx context.Context, params transaction.UpsertParams) error
	ListByAccountIDFunc func(ctx context.Context, accountID int64, limit, offset int) ([]*transaction.Transaction, error)
}

func (m *MockTransactionRepo) Upsert(ctx context.Context, params transaction.UpsertParams) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, params)
	}
	return nil
}

func (m *MockTransactionRepo) Insert(ctx context.Context, params transaction.UpsertParams) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, params)
	}
	return nil
}

func (m *MockTransactionRepo) ListByAccountID(ctx context.Context, accountID int64, limit, offset int) ([]*transaction.Transaction, error) {
	if m.ListByAccountIDFunc != nil {
		return m.ListByAccountIDFunc(ctx, accountID, limit, offset)
	}
	return nil, nil
}

// StubSummary implements banksync.SummaryRecalculator for testing
type StubSummary struct {
	Calls []int64
	Err   error
}

func (s *StubSummary) Recalculate(ctx context.Context, userID int64, asOf time.Time) error {
	s.Calls = append(s.Calls, userID)
	return s.Err
}

// authedRequest builds a request carrying the authenticated user id, the way
// the session middleware would.
func authedRequest(r *http.Request, userID int64) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.UserIDKey, userID)
	return r.WithContext(ctx)
}

func doRequest(handler func(http.ResponseWriter, *http.Request), r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler(rec, r)
	return rec
}
