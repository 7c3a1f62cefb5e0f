package aggregator

import "context"

// Client is the surface the domain layer depends on. *HTTPClient is the real
// implementation; tests substitute func-field mocks.
type Client interface {
	// ListInstitutions returns the institutions available in a country.
	// countryCode must already be a normalized two-letter code.
	ListInstitutions(ctx context.Context, countryCode string) ([]Institution, error)

	// CreateEndUserAgreement creates the consent agreement a requisition
	// is issued under, which fixes the access window and history depth.
	CreateEndUserAgreement(ctx context.Context, institutionID string) (*EndUserAgreement, error)

	// CreateRequisition starts a consent flow and returns the requisition
	// id plus the URL the user must visit to authorize it.
	CreateRequisition(ctx context.Context, params CreateRequisitionParams) (*Requisition, error)

	// GetRequisition returns the current state of a requisition, including
	// the provider account ids discovered once the user has authorized.
	GetRequisition(ctx context.Context, requisitionID string) (*Requisition, error)

	// DeleteRequisition revokes a requisition upstream.
	DeleteRequisition(ctx context.Context, requisitionID string) error

	// GetAccountDetails, GetAccountBalances and GetAccountTransactions each
	// consume one unit of the account's daily budget and fail fast with
	// ErrRateLimitExceeded once it is spent.
	GetAccountDetails(ctx context.Context, accountID string) (*AccountDetails, error)
	GetAccountBalances(ctx context.Context, accountID string) ([]Balance, error)
	GetAccountTransactions(ctx context.Context, accountID string) ([]AccountTransaction, error)

	// RemainingBudget reports how many data calls the account has left today.
	RemainingBudget(accountID string) int
}

// Ensure HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
