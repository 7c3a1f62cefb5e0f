package connection

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"nestegg/internal/domain/account"
	"nestegg/internal/infrastructure/aggregator"
	"nestegg/internal/shared/messages"
)

// Notifier delivers a push notification to a user. Implementations are
// best-effort; a nil Notifier disables notifications.
type Notifier interface {
	Notify(ctx context.Context, userID int64, title, body string) error
}

// Service owns the consent lifecycle: initiating bank links, reconciling
// their provider-side status and tearing them down on disconnect.
type Service struct {
	client   aggregator.Client
	repo     Repository
	accounts account.Repository
	notifier Notifier
	msgs     *messages.Messages
}

// NewService creates a connection service. notifier may be nil.
func NewService(
	client aggregator.Client,
	repo Repository,
	accounts account.Repository,
	notifier Notifier,
	msgs *messages.Messages,
) *Service {
	if msgs == nil {
		msgs = messages.Default()
	}
	return &Service{
		client:   client,
		repo:     repo,
		accounts: accounts,
		notifier: notifier,
		msgs:     msgs,
	}
}

// InitiateParams are the inputs for starting a new bank connection.
type InitiateParams struct {
	UserID          int64
	InstitutionID   string
	InstitutionName string
	CountryCode     string
	RedirectURL     string
}

// InitiateResult is returned to the caller so it can redirect the user to
// the provider's authorization page.
type InitiateResult struct {
	RequisitionID string
	AuthURL       string
}

// Initiate creates an end-user agreement and a requisition at the provider
// and persists a connection in created status. It does not wait for the user
// to authorize; that happens out-of-band and is picked up by Reconcile.
func (s *Service) Initiate(ctx context.Context, params InitiateParams) (*InitiateResult, error) {
	if params.InstitutionID == "" {
		return nil, fmt.Errorf("institution id is required")
	}

	agreement, err := s.client.CreateEndUserAgreement(ctx, params.InstitutionID)
	if err != nil {
		return nil, fmt.Errorf("failed to create agreement: %w", err)
	}

	// Unique per attempt so the provider never collides two flows.
	reference := fmt.Sprintf("user-%d-%d", params.UserID, time.Now().Unix())

	req, err := s.client.CreateRequisition(ctx, aggregator.CreateRequisitionParams{
		InstitutionID: params.InstitutionID,
		RedirectURL:   params.RedirectURL,
		Reference:     reference,
		AgreementID:   agreement.ID,
		UserLanguage:  "EN",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create requisition: %w", err)
	}

	var expires *time.Time
	if agreement.AccessValidForDays > 0 {
		e := agreement.Created.AddDate(0, 0, agreement.AccessValidForDays)
		expires = &e
	}

	_, err = s.repo.Create(ctx, CreateParams{
		ID:                 uuid.NewString(),
		UserID:             params.UserID,
		RequisitionID:      req.ID,
		InstitutionID:      params.InstitutionID,
		InstitutionName:    params.InstitutionName,
		CountryCode:        params.CountryCode,
		Status:             StatusCreated,
		AccessValidForDays: agreement.AccessValidForDays,
		MaxHistoricalDays:  agreement.MaxHistoricalDays,
		AgreementID:        agreement.ID,
		AgreementAccepted:  agreement.Accepted,
		AgreementExpires:   expires,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist connection: %w", err)
	}

	log.Printf("User %d: Initiated connection to %s (requisition %s)",
		params.UserID, params.InstitutionID, req.ID)

	return &InitiateResult{RequisitionID: req.ID, AuthURL: req.AuthURL}, nil
}

// Disconnect revokes a connection. The requisition must belong to the user;
// otherwise ErrNotFound is returned and nothing is mutated. The upstream
// revoke is best-effort. Accounts are deactivated, never deleted, so
// balances and transactions remain for history. Returns the institution name
// for the caller's confirmation message.
func (s *Service) Disconnect(ctx context.Context, userID int64, requisitionID string) (string, error) {
	conn, err := s.repo.GetByRequisitionID(ctx, requisitionID)
	if err != nil {
		return "", err
	}
	if conn.UserID != userID {
		return "", ErrNotFound
	}

	if err := s.client.DeleteRequisition(ctx, requisitionID); err != nil {
		log.Printf("User %d: Failed to revoke requisition %s upstream: %v", userID, requisitionID, err)
	}

	if err := s.repo.SoftDelete(ctx, conn.ID); err != nil {
		return "", fmt.Errorf("failed to remove connection: %w", err)
	}
	if err := s.accounts.DeactivateByConnectionID(ctx, conn.ID); err != nil {
		return "", fmt.Errorf("failed to deactivate accounts: %w", err)
	}

	log.Printf("User %d: Disconnected %s (requisition %s)", userID, conn.InstitutionName, requisitionID)
	return conn.InstitutionName, nil
}

// Reconcile queries the provider for the requisition's current state and
// applies the resulting transition. On the first upgrade to linked it
// materializes account rows for every discovered provider account id,
// fetching details best-effort. Returns the refreshed connection.
func (s *Service) Reconcile(ctx context.Context, conn *Connection) (*Connection, error) {
	req, err := s.client.GetRequisition(ctx, conn.RequisitionID)
	if err != nil {
		return conn, fmt.Errorf("failed to query requisition %s: %w", conn.RequisitionID, err)
	}

	var next Status
	switch req.Status {
	case aggregator.RequisitionLinked:
		next = StatusLinked
	case aggregator.RequisitionExpired:
		next = StatusExpired
	case aggregator.RequisitionSuspended:
		next = StatusSuspended
	case aggregator.RequisitionRejected:
		next = StatusError
	default:
		// CR or an unknown intermediate state: nothing to do yet.
		return conn, nil
	}

	if next == StatusLinked && conn.Status != StatusLinked {
		if err := s.materializeAccounts(ctx, conn, req.AccountIDs); err != nil {
			return conn, err
		}
	}

	if next != conn.Status {
		if err := s.repo.UpdateStatus(ctx, conn.ID, next); err != nil {
			return conn, fmt.Errorf("failed to update connection status: %w", err)
		}
		log.Printf("User %d: Connection %s moved %s -> %s", conn.UserID, conn.ID, conn.Status, next)

		if next == StatusExpired {
			s.notifyExpired(ctx, conn)
		}
		conn.Status = next
	}

	return conn, nil
}

// ReconcileUser reconciles every pending or linked connection the user has.
// Individual failures are logged and skipped so one bad requisition does not
// block the rest.
func (s *Service) ReconcileUser(ctx context.Context, userID int64) error {
	conns, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list connections: %w", err)
	}
	for _, conn := range conns {
		if conn.Status != StatusCreated && conn.Status != StatusLinked {
			continue
		}
		if _, err := s.Reconcile(ctx, conn); err != nil {
			log.Printf("User %d: Reconcile failed for connection %s: %v", userID, conn.ID, err)
		}
	}
	return nil
}

// materializeAccounts upserts an account row per provider account id. The
// upsert key is (user id, provider account id), so re-running after a
// partial failure is safe. Detail fetches spend rate budget and are
// best-effort: on failure the account is stored under the institution name.
func (s *Service) materializeAccounts(ctx context.Context, conn *Connection, accountIDs []string) error {
	for _, aggregatorID := range accountIDs {
		params := account.UpsertParams{
			ConnectionID: conn.ID,
			UserID:       conn.UserID,
			AggregatorID: aggregatorID,
			Name:         conn.InstitutionName,
		}

		details, err := s.client.GetAccountDetails(ctx, aggregatorID)
		if err != nil {
			log.Printf("User %d: Could not fetch details for account %s: %v", conn.UserID, aggregatorID, err)
		} else {
			if details.Name != "" {
				params.Name = details.Name
			}
			params.Currency = details.Currency
			if details.IBAN != "" {
				iban := details.IBAN
				params.IBAN = &iban
			}
		}

		if _, err := s.accounts.Upsert(ctx, params); err != nil {
			return fmt.Errorf("failed to materialize account %s: %w", aggregatorID, err)
		}
		log.Printf("User %d: Materialized account %s under connection %s", conn.UserID, aggregatorID, conn.ID)
	}
	return nil
}

func (s *Service) notifyExpired(ctx context.Context, conn *Connection) {
	if s.notifier == nil {
		return
	}
	text := s.msgs.ConnectionExpired
	body := fmt.Sprintf(text.Body, conn.InstitutionName)
	if err := s.notifier.Notify(ctx, conn.UserID, text.Title, body); err != nil {
		log.Printf("User %d: Failed to send expiry notification: %v", conn.UserID, err)
	}
}
