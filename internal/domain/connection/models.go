// Package connection owns the consent lifecycle between a user and an
// institution: creating bank links, reconciling their authorization status
// and tearing them down on disconnect.
package connection

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a connection does not exist or is not owned
// by the requesting user. Ownership failures are deliberately
// indistinguishable from absence.
var ErrNotFound = errors.New("connection not found")

// Status is the lifecycle state of a connection.
type Status string

const (
	// StatusCreated: requisition issued, user has not authorized yet.
	StatusCreated Status = "created"
	// StatusLinked: user completed authorization; accounts discovered.
	StatusLinked Status = "linked"
	// StatusExpired: the consent window lapsed.
	StatusExpired Status = "expired"
	// StatusSuspended: the provider suspended the requisition.
	StatusSuspended Status = "suspended"
	// StatusError: the provider reported an unrecoverable state.
	StatusError Status = "error"
)

// Connection is one user's consent link to one institution.
type Connection struct {
	ID                 string // uuid
	UserID             int64
	RequisitionID      string
	InstitutionID      string
	InstitutionName    string
	CountryCode        string
	Status             Status
	AccessValidForDays int
	MaxHistoricalDays  int
	AgreementID        string
	AgreementAccepted  *time.Time
	AgreementExpires   *time.Time
	LastSyncAt         *time.Time
	SyncError          *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CreateParams carries a new connection row.
type CreateParams struct {
	ID                 string
	UserID             int64
	RequisitionID      string
	InstitutionID      string
	InstitutionName    string
	CountryCode        string
	Status             Status
	AccessValidForDays int
	MaxHistoricalDays  int
	AgreementID        string
	AgreementAccepted  *time.Time
	AgreementExpires   *time.Time
}

// Repository is the persistence contract for connections. Disconnects are
// soft deletes; soft-deleted rows are invisible to every query here.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Connection, error)
	GetByRequisitionID(ctx context.Context, requisitionID string) (*Connection, error)
	ListByUserID(ctx context.Context, userID int64) ([]*Connection, error)

	// ListLinked returns all linked connections across users, ordered by
	// last_sync_at ascending with never-synced connections first.
	ListLinked(ctx context.Context) ([]*Connection, error)

	UpdateStatus(ctx context.Context, id string, status Status) error

	// UpdateSyncBookkeeping stamps last_sync_at and sync_error on every
	// one of the user's connections. A nil syncError clears the column.
	UpdateSyncBookkeeping(ctx context.Context, userID int64, syncedAt time.Time, syncError *string) error

	SoftDelete(ctx context.Context, id string) error
	CountActive(ctx context.Context) (int, error)
}
