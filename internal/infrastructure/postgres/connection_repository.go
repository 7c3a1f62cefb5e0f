package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"nestegg/internal/domain/connection"
)

// ConnectionRepository implements connection.Repository for PostgreSQL.
// Disconnected rows keep their data under deleted_at and are filtered out of
// every query.
type ConnectionRepository struct {
	db *DB
}

// NewConnectionRepository creates a new PostgreSQL connection repository
func NewConnectionRepository(db *DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

const connectionColumns = `
	id, user_id, requisition_id, institution_id, institution_name, country_code,
	status, access_valid_for_days, max_historical_days, agreement_id,
	agreement_accepted_at, agreement_expires_at, last_sync_at, sync_error,
	created_at, updated_at
`

// Create persists a new connection
func (r *ConnectionRepository) Create(ctx context.Context, params connection.CreateParams) (*connection.Connection, error) {
	query := `
		INSERT INTO bank_connections (
			id, user_id, requisition_id, institution_id, institution_name, country_code,
			status, access_valid_for_days, max_historical_days, agreement_id,
			agreement_accepted_at, agreement_expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + connectionColumns

	row := r.db.QueryRowContext(
		ctx, query,
		params.ID, params.UserID, params.RequisitionID, params.InstitutionID,
		params.InstitutionName, params.CountryCode, params.Status,
		params.AccessValidForDays, params.MaxHistoricalDays, params.AgreementID,
		nullTime(params.AgreementAccepted), nullTime(params.AgreementExpires),
	)

	conn, err := scanConnection(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}
	return conn, nil
}

// GetByRequisitionID retrieves a connection by its aggregator requisition id
func (r *ConnectionRepository) GetByRequisitionID(ctx context.Context, requisitionID string) (*connection.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM bank_connections
		WHERE requisition_id = $1 AND deleted_at IS NULL
	`

	conn, err := scanConnection(r.db.QueryRowContext(ctx, query, requisitionID))
	if err == sql.ErrNoRows {
		return nil, connection.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

// ListByUserID retrieves all of a user's connections
func (r *ConnectionRepository) ListByUserID(ctx context.Context, userID int64) ([]*connection.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM bank_connections
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	return collectConnections(rows)
}

// ListLinked retrieves every linked connection across all users, oldest sync
// first with never-synced connections at the front.
func (r *ConnectionRepository) ListLinked(ctx context.Context) ([]*connection.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM bank_connections
		WHERE status = $1 AND deleted_at IS NULL
		ORDER BY last_sync_at ASC NULLS FIRST
	`

	rows, err := r.db.QueryContext(ctx, query, connection.StatusLinked)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked connections: %w", err)
	}
	defer rows.Close()

	return collectConnections(rows)
}

// UpdateStatus moves a connection to a new lifecycle status
func (r *ConnectionRepository) UpdateStatus(ctx context.Context, id string, status connection.Status) error {
	query := `
		UPDATE bank_connections
		SET status = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update connection status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return connection.ErrNotFound
	}
	return nil
}

// UpdateSyncBookkeeping stamps last_sync_at and sync_error on all of the
// user's connections. A nil syncError clears the column.
func (r *ConnectionRepository) UpdateSyncBookkeeping(ctx context.Context, userID int64, syncedAt time.Time, syncError *string) error {
	query := `
		UPDATE bank_connections
		SET last_sync_at = $1, sync_error = $2, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $3 AND deleted_at IS NULL
	`

	var errIn sql.NullString
	if syncError != nil {
		errIn = sql.NullString{String: *syncError, Valid: true}
	}

	if _, err := r.db.ExecContext(ctx, query, syncedAt, errIn, userID); err != nil {
		return fmt.Errorf("failed to update sync bookkeeping: %w", err)
	}
	return nil
}

// SoftDelete marks a connection as removed, keeping the row for history
func (r *ConnectionRepository) SoftDelete(ctx context.Context, id string) error {
	query := `
		UPDATE bank_connections
		SET deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return connection.ErrNotFound
	}
	return nil
}

// CountActive counts linked connections across all users
func (r *ConnectionRepository) CountActive(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM bank_connections
		WHERE status = $1 AND deleted_at IS NULL
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, connection.StatusLinked).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active connections: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*connection.Connection, error) {
	var conn connection.Connection
	var accepted, expires, lastSync sql.NullTime
	var syncError sql.NullString

	err := row.Scan(
		&conn.ID, &conn.UserID, &conn.RequisitionID, &conn.InstitutionID,
		&conn.InstitutionName, &conn.CountryCode, &conn.Status,
		&conn.AccessValidForDays, &conn.MaxHistoricalDays, &conn.AgreementID,
		&accepted, &expires, &lastSync, &syncError,
		&conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if accepted.Valid {
		conn.AgreementAccepted = &accepted.Time
	}
	if expires.Valid {
		conn.AgreementExpires = &expires.Time
	}
	if lastSync.Valid {
		conn.LastSyncAt = &lastSync.Time
	}
	if syncError.Valid {
		conn.SyncError = &syncError.String
	}

	return &conn, nil
}

func collectConnections(rows *sql.Rows) ([]*connection.Connection, error) {
	var conns []*connection.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}
	return conns, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
