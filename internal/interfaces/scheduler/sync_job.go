package scheduler

import (
	"context"
	"fmt"
	"log"

	"nestegg/internal/domain/banksync"
)

// DailySyncJob implements the Job interface for the daily bank sync batch.
// One job covers every user with a linked connection; the batch service
// itself handles per-user sequencing and pacing, so the pool runs it with a
// single worker.
type DailySyncJob struct {
	batch *banksync.BatchService
}

// NewDailySyncJob creates a new daily sync job
func NewDailySyncJob(batch *banksync.BatchService) *DailySyncJob {
	return &DailySyncJob{batch: batch}
}

// Execute runs the daily sync batch
func (j *DailySyncJob) Execute(ctx context.Context) error {
	log.Println("Starting daily bank sync batch")

	report, err := j.batch.RunDailySync(ctx)
	if err != nil {
		log.Printf("Daily sync batch failed: %v", err)
		return fmt.Errorf("daily sync failed: %w", err)
	}

	if report.UsersSucceeded < report.UsersProcessed {
		log.Printf("Daily sync batch completed with failures: %d/%d users succeeded",
			report.UsersSucceeded, report.UsersProcessed)
		return fmt.Errorf("daily sync completed with %d failed users",
			report.UsersProcessed-report.UsersSucceeded)
	}

	log.Printf("Daily sync batch completed: %d users, %d accounts, %d balances, %d transactions",
		report.UsersProcessed, report.AccountsSynced, report.BalancesSynced, report.TransactionsSynced)

	return nil
}

// Description returns a human-readable description of the job
func (j *DailySyncJob) Description() string {
	return "Daily bank sync batch"
}
