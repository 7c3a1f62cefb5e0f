// Package aggregator implements the typed HTTP client for the open-banking
// data provider, including token caching and per-account rate budgeting.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const (
	defaultBaseURL = "https://bankaccountdata.gocardless.com/api/v2"
	defaultTimeout = 30 * time.Second

	// Institution catalogs change rarely; cache them per country.
	institutionCacheTTL = 6 * time.Hour

	// Refresh the access token slightly before the provider expires it.
	tokenExpiryMargin = 60 * time.Second
)

// Config holds the provider credentials and tuning knobs.
type Config struct {
	BaseURL     string
	SecretID    string
	SecretKey   string
	DailyBudget int
	Timeout     time.Duration
}

// HTTPClient talks to the aggregator's REST API. It owns the process-wide
// access token and the per-account rate budget ledger.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	secretID   string
	secretKey  string

	ledger    *BudgetLedger
	instCache *gocache.Cache

	tokenMu      sync.Mutex
	accessToken  string
	tokenExpires time.Time
	refreshGroup singleflight.Group
}

// NewHTTPClient creates a client for the aggregator API.
func NewHTTPClient(cfg Config) *HTTPClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		secretID:   cfg.SecretID,
		secretKey:  cfg.SecretKey,
		ledger:     NewBudgetLedger(cfg.DailyBudget),
		instCache:  gocache.New(institutionCacheTTL, institutionCacheTTL),
	}
}

// Institution is a bank as cataloged by the provider.
type Institution struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	BIC                  string   `json:"bic"`
	Logo                 string   `json:"logo"`
	TransactionTotalDays int      `json:"transaction_total_days"`
	Countries            []string `json:"countries"`
}

// CreateRequisitionParams are the inputs for starting a consent flow.
type CreateRequisitionParams struct {
	InstitutionID string
	RedirectURL   string
	Reference     string
	AgreementID   string
	UserLanguage  string
}

// Requisition is the provider's record of one consent flow.
type Requisition struct {
	ID          string
	Status      string
	AuthURL     string
	AgreementID string
	AccountIDs  []string
}

// Requisition statuses as reported by the provider.
const (
	RequisitionCreated   = "CR"
	RequisitionLinked    = "LN"
	RequisitionExpired   = "EX"
	RequisitionSuspended = "SU"
	RequisitionRejected  = "RJ"
)

// EndUserAgreement captures the consent window granted for a requisition.
type EndUserAgreement struct {
	ID                 string
	AccessValidForDays int
	MaxHistoricalDays  int
	Accepted           *time.Time
	Created            time.Time
}

// AccountDetails is the static description of a provider account.
type AccountDetails struct {
	IBAN      string
	Currency  string
	Name      string
	OwnerName string
}

// Balance is one balance figure reported for an account.
type Balance struct {
	Amount        decimal.Decimal
	Currency      string
	Type          string
	ReferenceDate string // "2006-01-02", empty when the provider omits it
}

// AccountTransaction is one booked or pending transaction.
type AccountTransaction struct {
	ExternalID  string // provider-issued id, empty for some pending entries
	Amount      decimal.Decimal
	Currency    string
	BookingDate string // "2006-01-02"
	ValueDate   string // "2006-01-02", may be empty
	Description string
	Merchant    string
	Type        string
	Pending     bool
}

// --- token handling ---

type tokenResponse struct {
	Access        string `json:"access"`
	AccessExpires int    `json:"access_expires"` // seconds
}

// authenticate returns a valid bearer token, refreshing it when needed.
// Concurrent callers share a single refresh via singleflight.
func (c *HTTPClient) authenticate(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	if c.accessToken != "" && time.Now().Add(tokenExpiryMargin).Before(c.tokenExpires) {
		token := c.accessToken
		c.tokenMu.Unlock()
		return token, nil
	}
	c.tokenMu.Unlock()

	v, err, _ := c.refreshGroup.Do("token", func() (any, error) {
		return c.refreshToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *HTTPClient) refreshToken(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"secret_id":  c.secretID,
		"secret_key": c.secretKey,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token/new/", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token request failed: %v", ErrAuthenticationFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read token response: %v", ErrAuthenticationFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned status %d: %s", ErrAuthenticationFailed, resp.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("%w: failed to parse token response: %v", ErrAuthenticationFailed, err)
	}
	if tok.Access == "" {
		return "", fmt.Errorf("%w: token endpoint returned empty token", ErrAuthenticationFailed)
	}

	c.tokenMu.Lock()
	c.accessToken = tok.Access
	c.tokenExpires = time.Now().Add(time.Duration(tok.AccessExpires) * time.Second)
	c.tokenMu.Unlock()

	return tok.Access, nil
}

// --- request plumbing ---

type apiErrorResponse struct {
	Summary string `json:"summary"`
	Detail  string `json:"detail"`
}

// doJSON performs an authenticated request and decodes the response into out.
// out may be nil when the caller only cares about the status.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, reqBody, out any) error {
	token, err := c.authenticate(ctx)
	if err != nil {
		return err
	}

	var bodyReader io.Reader
	if reqBody != nil {
		payload, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and transport failures all count as the provider
		// being unavailable.
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiErrorResponse
		if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Summary == "" {
			apiErr.Summary = string(body)
		}
		return classifyStatus(resp.StatusCode, apiErr.Summary, apiErr.Detail)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// --- institutions ---

// ListInstitutions returns the institutions available in a country. Results
// are cached per country; the caller is responsible for validating and
// normalizing the country code, and for sorting.
func (c *HTTPClient) ListInstitutions(ctx context.Context, countryCode string) ([]Institution, error) {
	if cached, ok := c.instCache.Get(countryCode); ok {
		return cached.([]Institution), nil
	}

	var institutions []Institution
	if err := c.doJSON(ctx, http.MethodGet, "/institutions/?country="+countryCode, nil, &institutions); err != nil {
		return nil, fmt.Errorf("failed to list institutions for %s: %w", countryCode, err)
	}

	c.instCache.Set(countryCode, institutions, gocache.DefaultExpiration)
	return institutions, nil
}

// --- agreements and requisitions ---

type agreementWire struct {
	ID                 string `json:"id"`
	Created            string `json:"created"`
	Accepted           string `json:"accepted"`
	AccessValidForDays int    `json:"access_valid_for_days"`
	MaxHistoricalDays  int    `json:"max_historical_days"`
}

// CreateEndUserAgreement creates the consent agreement a requisition is
// issued under.
func (c *HTTPClient) CreateEndUserAgreement(ctx context.Context, institutionID string) (*EndUserAgreement, error) {
	reqBody := map[string]any{
		"institution_id": institutionID,
		"access_scope":   []string{"balances", "details", "transactions"},
	}

	var wire agreementWire
	if err := c.doJSON(ctx, http.MethodPost, "/agreements/enduser/", reqBody, &wire); err != nil {
		return nil, fmt.Errorf("failed to create agreement: %w", err)
	}
	return wire.toAgreement(), nil
}

func (w *agreementWire) toAgreement() *EndUserAgreement {
	agreement := &EndUserAgreement{
		ID:                 w.ID,
		AccessValidForDays: w.AccessValidForDays,
		MaxHistoricalDays:  w.MaxHistoricalDays,
	}
	if t, err := time.Parse(time.RFC3339, w.Created); err == nil {
		agreement.Created = t
	}
	if w.Accepted != "" {
		if t, err := time.Parse(time.RFC3339, w.Accepted); err == nil {
			agreement.Accepted = &t
		}
	}
	return agreement
}

type requisitionWire struct {
	ID        string   `json:"id"`
	Status    string   `json:"status"`
	Link      string   `json:"link"`
	Agreement string   `json:"agreement"`
	Accounts  []string `json:"accounts"`
}

func (w *requisitionWire) toRequisition() *Requisition {
	return &Requisition{
		ID:          w.ID,
		Status:      w.Status,
		AuthURL:     w.Link,
		AgreementID: w.Agreement,
		AccountIDs:  w.Accounts,
	}
}

// CreateRequisition starts a consent flow. The reference must be unique per
// attempt; the caller mints it.
func (c *HTTPClient) CreateRequisition(ctx context.Context, params CreateRequisitionParams) (*Requisition, error) {
	reqBody := map[string]any{
		"institution_id": params.InstitutionID,
		"redirect":       params.RedirectURL,
		"reference":      params.Reference,
	}
	if params.AgreementID != "" {
		reqBody["agreement"] = params.AgreementID
	}
	if params.UserLanguage != "" {
		reqBody["user_language"] = params.UserLanguage
	}

	var wire requisitionWire
	if err := c.doJSON(ctx, http.MethodPost, "/requisitions/", reqBody, &wire); err != nil {
		return nil, fmt.Errorf("failed to create requisition: %w", err)
	}
	return wire.toRequisition(), nil
}

// GetRequisition returns the current state of a requisition.
func (c *HTTPClient) GetRequisition(ctx context.Context, requisitionID string) (*Requisition, error) {
	var wire requisitionWire
	if err := c.doJSON(ctx, http.MethodGet, "/requisitions/"+requisitionID+"/", nil, &wire); err != nil {
		return nil, fmt.Errorf("failed to get requisition %s: %w", requisitionID, err)
	}
	return wire.toRequisition(), nil
}

// DeleteRequisition revokes a requisition upstream.
func (c *HTTPClient) DeleteRequisition(ctx context.Context, requisitionID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/requisitions/"+requisitionID+"/", nil, nil); err != nil {
		return fmt.Errorf("failed to delete requisition %s: %w", requisitionID, err)
	}
	return nil
}

// --- account data (rate limited) ---

type accountDetailsWire struct {
	Account struct {
		IBAN      string `json:"iban"`
		Currency  string `json:"currency"`
		Name      string `json:"name"`
		OwnerName string `json:"ownerName"`
	} `json:"account"`
}

// GetAccountDetails fetches the static description of an account. Consumes
// one unit of the account's daily budget.
func (c *HTTPClient) GetAccountDetails(ctx context.Context, accountID string) (*AccountDetails, error) {
	if err := c.ledger.Reserve(accountID, time.Now()); err != nil {
		return nil, err
	}

	var wire accountDetailsWire
	if err := c.doJSON(ctx, http.MethodGet, "/accounts/"+accountID+"/details/", nil, &wire); err != nil {
		return nil, fmt.Errorf("failed to get details for account %s: %w", accountID, err)
	}
	return &AccountDetails{
		IBAN:      wire.Account.IBAN,
		Currency:  wire.Account.Currency,
		Name:      wire.Account.Name,
		OwnerName: wire.Account.OwnerName,
	}, nil
}

type amountWire struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (a amountWire) parse() (decimal.Decimal, error) {
	if a.Amount == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(a.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse amount %q: %w", a.Amount, err)
	}
	return d, nil
}

type balancesWire struct {
	Balances []struct {
		BalanceAmount amountWire `json:"balanceAmount"`
		BalanceType   string     `json:"balanceType"`
		ReferenceDate string     `json:"referenceDate"`
	} `json:"balances"`
}

// GetAccountBalances fetches the current balance figures for an account.
// Consumes one unit of the account's daily budget.
func (c *HTTPClient) GetAccountBalances(ctx context.Context, accountID string) ([]Balance, error) {
	if err := c.ledger.Reserve(accountID, time.Now()); err != nil {
		return nil, err
	}

	var wire balancesWire
	if err := c.doJSON(ctx, http.MethodGet, "/accounts/"+accountID+"/balances/", nil, &wire); err != nil {
		return nil, fmt.Errorf("failed to get balances for account %s: %w", accountID, err)
	}

	balances := make([]Balance, 0, len(wire.Balances))
	for _, b := range wire.Balances {
		amount, err := b.BalanceAmount.parse()
		if err != nil {
			return nil, err
		}
		balances = append(balances, Balance{
			Amount:        amount,
			Currency:      b.BalanceAmount.Currency,
			Type:          b.BalanceType,
			ReferenceDate: b.ReferenceDate,
		})
	}
	return balances, nil
}

type transactionWire struct {
	TransactionID                     string     `json:"transactionId"`
	TransactionAmount                 amountWire `json:"transactionAmount"`
	BookingDate                       string     `json:"bookingDate"`
	ValueDate                         string     `json:"valueDate"`
	RemittanceInformationUnstructured string     `json:"remittanceInformationUnstructured"`
	CreditorName                      string     `json:"creditorName"`
	DebtorName                        string     `json:"debtorName"`
	ProprietaryBankTransactionCode    string     `json:"proprietaryBankTransactionCode"`
}

type transactionsWire struct {
	Transactions struct {
		Booked  []transactionWire `json:"booked"`
		Pending []transactionWire `json:"pending"`
	} `json:"transactions"`
}

func (w transactionWire) toTransaction(pending bool) (AccountTransaction, error) {
	amount, err := w.TransactionAmount.parse()
	if err != nil {
		return AccountTransaction{}, err
	}

	// Counterparty depends on direction: debits name the creditor,
	// credits name the debtor.
	merchant := w.CreditorName
	if merchant == "" {
		merchant = w.DebtorName
	}

	return AccountTransaction{
		ExternalID:  w.TransactionID,
		Amount:      amount,
		Currency:    w.TransactionAmount.Currency,
		BookingDate: w.BookingDate,
		ValueDate:   w.ValueDate,
		Description: w.RemittanceInformationUnstructured,
		Merchant:    merchant,
		Type:        w.ProprietaryBankTransactionCode,
		Pending:     pending,
	}, nil
}

// GetAccountTransactions fetches booked and pending transactions for an
// account. Consumes one unit of the account's daily budget.
func (c *HTTPClient) GetAccountTransactions(ctx context.Context, accountID string) ([]AccountTransaction, error) {
	if err := c.ledger.Reserve(accountID, time.Now()); err != nil {
		return nil, err
	}

	var wire transactionsWire
	if err := c.doJSON(ctx, http.MethodGet, "/accounts/"+accountID+"/transactions/", nil, &wire); err != nil {
		return nil, fmt.Errorf("failed to get transactions for account %s: %w", accountID, err)
	}

	transactions := make([]AccountTransaction, 0, len(wire.Transactions.Booked)+len(wire.Transactions.Pending))
	for _, tx := range wire.Transactions.Booked {
		parsed, err := tx.toTransaction(false)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, parsed)
	}
	for _, tx := range wire.Transactions.Pending {
		parsed, err := tx.toTransaction(true)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, parsed)
	}
	return transactions, nil
}

// RemainingBudget reports how many data calls the account has left today.
func (c *HTTPClient) RemainingBudget(accountID string) int {
	return c.ledger.Remaining(accountID, time.Now())
}
