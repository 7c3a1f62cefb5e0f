package banksync

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"nestegg/internal/domain/connection"
)

// Reconciler refreshes a user's connection statuses from the provider.
type Reconciler interface {
	ReconcileUser(ctx context.Context, userID int64) error
}

// SummaryRecalculator rebuilds a user's net-worth snapshot.
type SummaryRecalculator interface {
	Recalculate(ctx context.Context, userID int64, asOf time.Time) error
}

// UserSyncOutcome is one user's entry in the batch report.
type UserSyncOutcome struct {
	UserID             int64    `json:"user_id"`
	Success            bool     `json:"success"`
	AccountsSynced     int      `json:"accounts_synced"`
	BalancesSynced     int      `json:"balances_synced"`
	TransactionsSynced int      `json:"transactions_synced"`
	Errors             []string `json:"errors,omitempty"`
}

// BatchReport aggregates one daily run.
type BatchReport struct {
	UsersProcessed     int               `json:"users_processed"`
	UsersSucceeded     int               `json:"users_succeeded"`
	AccountsSynced     int               `json:"accounts_synced"`
	BalancesSynced     int               `json:"balances_synced"`
	TransactionsSynced int               `json:"transactions_synced"`
	Results            []UserSyncOutcome `json:"results"`
	StartedAt          time.Time         `json:"started_at"`
	FinishedAt         time.Time         `json:"finished_at"`
}

// LastSync is one connection's bookkeeping in the status query.
type LastSync struct {
	InstitutionName string     `json:"institution"`
	LastSyncAt      *time.Time `json:"last_sync_at"`
	SyncError       *string    `json:"sync_error,omitempty"`
}

// BatchStatus is the read-only companion to the daily run.
type BatchStatus struct {
	LastSyncs         []LastSync `json:"last_syncs"`
	NextScheduledSync time.Time  `json:"next_scheduled_sync"`
	ActiveConnections int        `json:"active_connections"`
	CurrentTime       time.Time  `json:"current_time"`
}

// DailySchedule is a fixed UTC time-of-day the batch runs at.
type DailySchedule struct {
	Hour   int
	Minute int
}

// ParseDailySchedule parses "HH:MM".
func ParseDailySchedule(s string) (DailySchedule, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return DailySchedule{}, fmt.Errorf("invalid schedule time %q: %w", s, err)
	}
	return DailySchedule{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Next returns the schedule's next occurrence strictly after now, rolling to
// the next day when today's slot has passed.
func (d DailySchedule) Next(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), d.Hour, d.Minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// BatchService fans the daily sync out across all users with linked
// connections. Users run strictly sequentially behind a pacing limiter so
// one batch stays under the aggregator-wide rate limits.
type BatchService struct {
	connections connection.Repository
	reconciler  Reconciler
	sync        *Service
	summary     SummaryRecalculator
	limiter     *rate.Limiter
	schedule    DailySchedule
	now         func() time.Time
}

// NewBatchService creates a batch adapter. interUserDelay is the pause
// between consecutive users.
func NewBatchService(
	connections connection.Repository,
	reconciler Reconciler,
	sync *Service,
	summary SummaryRecalculator,
	interUserDelay time.Duration,
	schedule DailySchedule,
) *BatchService {
	if interUserDelay <= 0 {
		interUserDelay = time.Second
	}
	return &BatchService{
		connections: connections,
		reconciler:  reconciler,
		sync:        sync,
		summary:     summary,
		limiter:     rate.NewLimiter(rate.Every(interUserDelay), 1),
		schedule:    schedule,
		now:         time.Now,
	}
}

// RunDailySync syncs every user that has at least one linked connection.
// Connections are loaded oldest-synced first and deduplicated by user, so a
// user with several institutions is synced once per run. One user's failure
// never aborts the batch.
func (b *BatchService) RunDailySync(ctx context.Context) (*BatchReport, error) {
	report := &BatchReport{StartedAt: b.now().UTC(), Results: []UserSyncOutcome{}}

	conns, err := b.connections.ListLinked(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load linked connections: %w", err)
	}
	log.Printf("Batch: %d linked connections loaded", len(conns))

	seen := make(map[int64]bool)
	for _, conn := range conns {
		if seen[conn.UserID] {
			continue
		}
		seen[conn.UserID] = true

		if report.UsersProcessed > 0 {
			if err := b.limiter.Wait(ctx); err != nil {
				return report, fmt.Errorf("batch cancelled: %w", err)
			}
		}

		outcome := b.syncOneUser(ctx, conn.UserID)
		report.UsersProcessed++
		if outcome.Success {
			report.UsersSucceeded++
		}
		report.AccountsSynced += outcome.AccountsSynced
		report.BalancesSynced += outcome.BalancesSynced
		report.TransactionsSynced += outcome.TransactionsSynced
		report.Results = append(report.Results, outcome)
	}

	report.FinishedAt = b.now().UTC()
	log.Printf("Batch: complete - %d/%d users succeeded, %d accounts, %d balances, %d transactions",
		report.UsersSucceeded, report.UsersProcessed,
		report.AccountsSynced, report.BalancesSynced, report.TransactionsSynced)

	return report, nil
}

// syncOneUser runs reconcile, sync, best-effort summary and bookkeeping for
// a single user. Every failure path still stamps the bookkeeping columns.
func (b *BatchService) syncOneUser(ctx context.Context, userID int64) UserSyncOutcome {
	if err := b.reconciler.ReconcileUser(ctx, userID); err != nil {
		log.Printf("Batch: User %d: reconcile failed: %v", userID, err)
	}

	result, err := b.sync.SyncUser(ctx, userID, nil)
	if err != nil {
		errText := err.Error()
		b.updateBookkeeping(ctx, userID, &errText)
		return UserSyncOutcome{UserID: userID, Errors: []string{errText}}
	}

	if result.AccountsSynced > 0 && b.summary != nil {
		if err := b.summary.Recalculate(ctx, userID, b.now()); err != nil {
			log.Printf("Batch: User %d: summary recalculation failed: %v", userID, err)
		}
	}

	b.updateBookkeeping(ctx, userID, result.ErrorText())

	return UserSyncOutcome{
		UserID:             userID,
		Success:            result.Success,
		AccountsSynced:     result.AccountsSynced,
		BalancesSynced:     result.BalancesSynced,
		TransactionsSynced: result.TransactionsSynced,
		Errors:             result.Errors,
	}
}

func (b *BatchService) updateBookkeeping(ctx context.Context, userID int64, syncError *string) {
	if err := b.connections.UpdateSyncBookkeeping(ctx, userID, b.now().UTC(), syncError); err != nil {
		log.Printf("Batch: User %d: failed to update sync bookkeeping: %v", userID, err)
	}
}

// Status reports the most recent sync per linked connection, the next
// scheduled run and the active connection count.
func (b *BatchService) Status(ctx context.Context) (*BatchStatus, error) {
	conns, err := b.connections.ListLinked(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load linked connections: %w", err)
	}
	active, err := b.connections.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count active connections: %w", err)
	}

	now := b.now().UTC()
	status := &BatchStatus{
		LastSyncs:         make([]LastSync, 0, len(conns)),
		NextScheduledSync: b.schedule.Next(now),
		ActiveConnections: active,
		CurrentTime:       now,
	}
	for _, conn := range conns {
		status.LastSyncs = append(status.LastSyncs, LastSync{
			InstitutionName: conn.InstitutionName,
			LastSyncAt:      conn.LastSyncAt,
			SyncError:       conn.SyncError,
		})
	}
	return status, nil
}
