package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"nestegg/internal/domain/banksync"
	"nestegg/internal/domain/connection"
	"nestegg/internal/domain/summary"
	"nestegg/internal/infrastructure/aggregator"
	"nestegg/internal/infrastructure/postgres"
	"nestegg/internal/shared/config"
)

const usage = `Nestegg Admin CLI - Management commands for the Nestegg API

Usage:
  admin <command> [options]

Commands:
  sync             Run a bank sync for specific users or all linked users
  recalc-summary   Recalculate financial summaries for specific users
  daily-run        Run the full daily sync batch once and exit

Examples:
  # Sync one user
  admin sync --user-id=1

  # Sync several users
  admin sync --user-id=1,2,3

  # Sync every user with a linked connection
  admin sync --all

  # Recalculate summaries after a manual data fix
  admin recalc-summary --user-id=1,2

  # Run the batch exactly as the scheduler would
  admin daily-run --timeout=1h
`

func main() {
	if len(os.Args) < 2 {
		fmt.Printf("%s\n", usage)
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "sync":
		runSync(os.Args[2:])
	case "recalc-summary":
		runRecalcSummary(os.Args[2:])
	case "daily-run":
		runDailyBatch(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Printf("%s\n", usage)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Printf("%s\n", usage)
		os.Exit(1)
	}
}

// app bundles the services the admin commands need.
type app struct {
	db          *postgres.DB
	connections *postgres.ConnectionRepository
	connService *connection.Service
	sync        *banksync.Service
	summary     *summary.Service
}

func newApp() *app {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Connected to database")

	connectionRepo := postgres.NewConnectionRepository(db)
	accountRepo := postgres.NewAccountRepository(db)
	balanceRepo := postgres.NewBalanceRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	summaryRepo := postgres.NewSummaryRepository(db)
	holdingsRepo := postgres.NewHoldingsRepository(db)

	client := aggregator.NewHTTPClient(aggregator.Config{
		BaseURL:     cfg.Aggregator.BaseURL,
		SecretID:    cfg.Aggregator.SecretID,
		SecretKey:   cfg.Aggregator.SecretKey,
		DailyBudget: cfg.Aggregator.RateBudget,
	})

	return &app{
		db:          db,
		connections: connectionRepo,
		connService: connection.NewService(client, connectionRepo, accountRepo, nil, nil),
		sync:        banksync.NewService(client, accountRepo, balanceRepo, transactionRepo),
		summary:     summary.NewService(summaryRepo, balanceRepo, holdingsRepo, cfg.Summary.Currency),
	}
}

func (a *app) close() {
	a.db.Close()
}

// resolveUserIDs turns the --user-id / --all flags into a deduplicated id
// list. With --all it loads every user owning a linked connection.
func (a *app) resolveUserIDs(ctx context.Context, userIDStr string, allUsers bool) []int64 {
	var userIDs []int64

	if allUsers {
		conns, err := a.connections.ListLinked(ctx)
		if err != nil {
			log.Fatalf("Failed to list linked connections: %v", err)
		}
		seen := make(map[int64]bool)
		for _, conn := range conns {
			if seen[conn.UserID] {
				continue
			}
			seen[conn.UserID] = true
			userIDs = append(userIDs, conn.UserID)
		}
		log.Printf("Found %d users with linked connections", len(userIDs))
		return userIDs
	}

	for _, p := range strings.Split(userIDStr, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			log.Fatalf("Invalid user ID '%s': %v", p, err)
		}
		userIDs = append(userIDs, id)
	}
	return userIDs
}

func runSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)

	userIDStr := fs.String("user-id", "", "User ID(s) to sync (comma-separated for multiple)")
	allUsers := fs.Bool("all", false, "Sync all users with a linked connection")
	timeoutStr := fs.String("timeout", "30m", "Timeout for the operation (e.g., 5m, 1h)")

	fs.Usage = func() {
		fmt.Println("Usage: admin sync [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Println("  admin sync --user-id=1")
		fmt.Println("  admin sync --user-id=1,2,3")
		fmt.Println("  admin sync --all --timeout=1h")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *userIDStr == "" && !*allUsers {
		fmt.Println("Error: must specify --user-id or --all")
		fs.Usage()
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		log.Fatalf("Invalid timeout format: %v", err)
	}

	a := newApp()
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	userIDs := a.resolveUserIDs(ctx, *userIDStr, *allUsers)
	if len(userIDs) == 0 {
		log.Println("No users to process")
		return
	}

	log.Printf("Starting sync for %d user(s)", len(userIDs))
	startTime := time.Now()

	for _, uid := range userIDs {
		if err := a.connService.ReconcileUser(ctx, uid); err != nil {
			log.Printf("User %d: reconcile failed: %v", uid, err)
		}
		result, err := a.sync.SyncUser(ctx, uid, nil)
		if err != nil {
			log.Printf("User %d: sync failed: %v", uid, err)
			continue
		}
		printSyncResult(uid, result)
		if result.AccountsSynced > 0 {
			if err := a.summary.Recalculate(ctx, uid, time.Now()); err != nil {
				log.Printf("User %d: summary recalculation failed: %v", uid, err)
			}
		}
	}

	log.Printf("Sync completed in %v", time.Since(startTime))
}

func printSyncResult(userID int64, result *banksync.Result) {
	fmt.Printf("\n=== User %d ===\n", userID)
	fmt.Printf("  Accounts synced:     %d\n", result.AccountsSynced)
	fmt.Printf("  Balances synced:     %d\n", result.BalancesSynced)
	fmt.Printf("  Transactions synced: %d\n", result.TransactionsSynced)

	if len(result.Errors) > 0 {
		fmt.Printf("  Errors:              %d\n", len(result.Errors))
		for i, e := range result.Errors {
			if i >= 5 {
				fmt.Printf("    ... and %d more errors\n", len(result.Errors)-5)
				break
			}
			fmt.Printf("    - %s\n", e)
		}
	}
}

func runRecalcSummary(args []string) {
	fs := flag.NewFlagSet("recalc-summary", flag.ExitOnError)

	userIDStr := fs.String("user-id", "", "User ID(s) to recalculate (comma-separated for multiple)")
	allUsers := fs.Bool("all", false, "Recalculate for all users with a linked connection")
	timeoutStr := fs.String("timeout", "10m", "Timeout for the operation (e.g., 5m, 1h)")

	fs.Usage = func() {
		fmt.Println("Usage: admin recalc-summary [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Println("  admin recalc-summary --user-id=1")
		fmt.Println("  admin recalc-summary --all")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *userIDStr == "" && !*allUsers {
		fmt.Println("Error: must specify --user-id or --all")
		fs.Usage()
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		log.Fatalf("Invalid timeout format: %v", err)
	}

	a := newApp()
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	userIDs := a.resolveUserIDs(ctx, *userIDStr, *allUsers)
	if len(userIDs) == 0 {
		log.Println("No users to process")
		return
	}

	now := time.Now()
	for _, uid := range userIDs {
		if err := a.summary.Recalculate(ctx, uid, now); err != nil {
			log.Printf("User %d: summary recalculation failed: %v", uid, err)
			continue
		}
		log.Printf("User %d: summary recalculated", uid)
	}
}

func runDailyBatch(args []string) {
	fs := flag.NewFlagSet("daily-run", flag.ExitOnError)

	timeoutStr := fs.String("timeout", "1h", "Timeout for the batch run (e.g., 30m, 2h)")
	delayStr := fs.String("delay", "1s", "Pause between users (e.g., 500ms, 2s)")

	fs.Usage = func() {
		fmt.Println("Usage: admin daily-run [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		log.Fatalf("Invalid timeout format: %v", err)
	}
	delay, err := time.ParseDuration(*delayStr)
	if err != nil {
		log.Fatalf("Invalid delay format: %v", err)
	}

	a := newApp()
	defer a.close()

	batch := banksync.NewBatchService(
		a.connections,
		a.connService,
		a.sync,
		a.summary,
		delay,
		banksync.DailySchedule{Hour: 6},
	)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	startTime := time.Now()
	report, err := batch.RunDailySync(ctx)
	if err != nil {
		log.Fatalf("Daily batch failed: %v", err)
	}

	fmt.Printf("\n=== Daily batch ===\n")
	fmt.Printf("  Users processed:     %d\n", report.UsersProcessed)
	fmt.Printf("  Users succeeded:     %d\n", report.UsersSucceeded)
	fmt.Printf("  Accounts synced:     %d\n", report.AccountsSynced)
	fmt.Printf("  Balances synced:     %d\n", report.BalancesSynced)
	fmt.Printf("  Transactions synced: %d\n", report.TransactionsSynced)
	log.Printf("Daily batch completed in %v", time.Since(startTime))
}
