package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestegg/internal/domain/account"
	"nestegg/internal/domain/banksync"
	"nestegg/internal/domain/connection"
	"nestegg/internal/infrastructure/aggregator"
)

type noopReconciler struct{}

func (noopReconciler) ReconcileUser(ctx context.Context, userID int64) error { return nil }

func newBatchHandler(connRepo connection.Repository, accounts account.Repository, client aggregator.Client, secret string) (*BatchHandler, *StubSummary) {
	syncSvc := banksync.NewService(client, accounts, &MockBalanceRepo{}, &MockTransactionRepo{})
	summary := &StubSummary{}
	schedule := banksync.DailySchedule{Hour: 6, Minute: 0}
	batch := banksync.NewBatchService(connRepo, noopReconciler{}, syncSvc, summary, time.Millisecond, schedule)
	return NewBatchHandler(batch, secret), summary
}

func TestHandleDailyUpdate_Authorization(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		header     string
		wantStatus int
	}{
		{name: "correct secret", secret: "s3cret", header: "Bearer s3cret", wantStatus: http.StatusOK},
		{name: "wrong secret", secret: "s3cret", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "missing header", secret: "s3cret", header: "", wantStatus: http.StatusUnauthorized},
		{name: "no bearer prefix", secret: "s3cret", header: "s3cret", wantStatus: http.StatusUnauthorized},
		{name: "empty configured secret rejects everything", secret: "", header: "Bearer ", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			connRepo := &MockConnectionRepo{
				ListLinkedFunc: func(ctx context.Context) ([]*connection.Connection, error) { return nil, nil },
			}
			handler, _ := newBatchHandler(connRepo, &MockAccountRepo{}, &MockAggregatorClient{}, tt.secret)

			req := httptest.NewRequest(http.MethodPost, "/api/banking/daily-update", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := doRequest(handler.HandleDailyUpdate, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestHandleDailyUpdate_RunReport(t *testing.T) {
	linked := func(id, reqID string, userID int64) *connection.Connection {
		return &connection.Connection{ID: id, UserID: userID, RequisitionID: reqID, Status: connection.StatusLinked}
	}
	connRepo := &MockConnectionRepo{
		ListLinkedFunc: func(ctx context.Context) ([]*connection.Connection, error) {
			// Two connections for user 7: the batch must process the user once.
			return []*connection.Connection{
				linked("conn-1", "req-1", 7),
				linked("conn-2", "req-2", 7),
				linked("conn-3", "req-3", 9),
			}, nil
		},
	}
	accounts := &MockAccountRepo{
		ListActiveByUserIDFunc: func(ctx context.Context, userID int64) ([]*account.Account, error) {
			return []*account.Account{
				{ID: userID * 10, UserID: userID, AggregatorID: "agg", Currency: "GBP", Active: true},
			}, nil
		},
	}
	client := &MockAggregatorClient{
		GetAccountBalancesFunc: func(ctx context.Context, accountID string) ([]aggregator.Balance, error) {
			return []aggregator.Balance{{Amount: decimal.NewFromInt(50), Currency: "GBP"}}, nil
		},
		GetAccountTransactionsFunc: func(ctx context.Context, accountID string) ([]aggregator.AccountTransaction, error) {
			return nil, nil
		},
	}
	handler, summary := newBatchHandler(connRepo, accounts, client, "s3cret")

	req := httptest.NewRequest(http.MethodPost, "/api/banking/daily-update", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := doRequest(handler.HandleDailyUpdate, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool `json:"success"`
		Summary struct {
			UsersProcessed int `json:"users_processed"`
			UsersSucceeded int `json:"users_succeeded"`
			AccountsSynced int `json:"accounts_synced"`
			BalancesSynced int `json:"balances_synced"`
		} `json:"summary"`
		Results   []banksync.UserSyncOutcome `json:"results"`
		Timestamp string                     `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 2, body.Summary.UsersProcessed)
	assert.Equal(t, 2, body.Summary.UsersSucceeded)
	assert.Equal(t, 2, body.Summary.AccountsSynced)
	assert.Equal(t, 2, body.Summary.BalancesSynced)
	assert.Len(t, body.Results, 2)
	assert.NotEmpty(t, body.Timestamp)
	assert.ElementsMatch(t, []int64{7, 9}, summary.Calls)
}

func TestHandleDailyUpdate_GetStatus(t *testing.T) {
	lastSync := time.Date(2026, 8, 22, 6, 0, 2, 0, time.UTC)
	connRepo := &MockConnectionRepo{
		ListLinkedFunc: func(ctx context.Context) ([]*connection.Connection, error) {
			return []*connection.Connection{
				{ID: "conn-1", UserID: 7, RequisitionID: "req-1", InstitutionName: "Monzo", Status: connection.StatusLinked, LastSyncAt: &lastSync},
			}, nil
		},
		CountActiveFunc: func(ctx context.Context) (int, error) { return 3, nil },
	}
	handler, _ := newBatchHandler(connRepo, &MockAccountRepo{}, &MockAggregatorClient{}, "s3cret")

	// Status is read-only and needs no secret.
	req := httptest.NewRequest(http.MethodGet, "/api/banking/daily-update", nil)
	rec := doRequest(handler.HandleDailyUpdate, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		LastSyncs         []banksync.LastSync `json:"last_syncs"`
		NextScheduledSync string              `json:"next_scheduled_sync"`
		ActiveConnections int                 `json:"active_connections"`
		CurrentTime       string              `json:"current_time"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.LastSyncs, 1)
	assert.Equal(t, "Monzo", body.LastSyncs[0].InstitutionName)
	assert.Equal(t, 3, body.ActiveConnections)
	assert.NotEmpty(t, body.NextScheduledSync)
	assert.NotEmpty(t, body.CurrentTime)
}

func TestHandleDailyUpdate_MethodNotAllowed(t *testing.T) {
	handler, _ := newBatchHandler(&MockConnectionRepo{}, &MockAccountRepo{}, &MockAggregatorClient{}, "s3cret")

	req := httptest.NewRequest(http.MethodDelete, "/api/banking/daily-update", nil)
	rec := doRequest(handler.HandleDailyUpdate, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
