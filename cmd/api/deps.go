package main

import (
	"context"
	"log"

	"nestegg/internal/domain/banksync"
	"nestegg/internal/domain/connection"
	"nestegg/internal/domain/summary"
	"nestegg/internal/infrastructure/aggregator"
	"nestegg/internal/infrastructure/firebase"
	"nestegg/internal/infrastructure/postgres"
	httphandlers "nestegg/internal/interfaces/http"
	"nestegg/internal/shared/config"
	"nestegg/internal/shared/messages"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB

	// Handlers
	InstitutionHandler *httphandlers.InstitutionHandler
	ConnectionHandler  *httphandlers.ConnectionHandler
	SyncHandler        *httphandlers.SyncHandler
	BatchHandler       *httphandlers.BatchHandler

	// Batch service (for the scheduler job provider)
	Batch *banksync.BatchService
}

// NewDependencies initializes all application dependencies.
func NewDependencies(cfg *config.Config) (*Dependencies, error) {
	// Connect to database
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Println("Connected to database")

	// Initialize repositories
	connectionRepo := postgres.NewConnectionRepository(db)
	accountRepo := postgres.NewAccountRepository(db)
	balanceRepo := postgres.NewBalanceRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	summaryRepo := postgres.NewSummaryRepository(db)
	holdingsRepo := postgres.NewHoldingsRepository(db)

	// Initialize aggregator client
	aggClient := aggregator.NewHTTPClient(aggregator.Config{
		BaseURL:     cfg.Aggregator.BaseURL,
		SecretID:    cfg.Aggregator.SecretID,
		SecretKey:   cfg.Aggregator.SecretKey,
		DailyBudget: cfg.Aggregator.RateBudget,
	})

	// Push notifications are optional: without credentials the connection
	// service simply skips expiry notifications.
	var notifier connection.Notifier
	if cfg.Firebase.CredentialsFile != "" {
		fcm, err := firebase.NewClient(context.Background(), cfg.Firebase.CredentialsFile)
		if err != nil {
			log.Printf("Warning: Failed to initialize Firebase messaging: %v", err)
		} else {
			notifier = fcm
			log.Println("Firebase messaging initialized")
		}
	}

	// User-facing message texts, overridable from a file
	msgs := messages.Default()
	if cfg.Messages.File != "" {
		loaded, err := messages.Load(cfg.Messages.File)
		if err != nil {
			log.Printf("Warning: Failed to load messages file, using defaults: %v", err)
		} else {
			msgs = loaded
		}
	}

	// Initialize domain services
	connectionService := connection.NewService(aggClient, connectionRepo, accountRepo, notifier, msgs)
	syncService := banksync.NewService(aggClient, accountRepo, balanceRepo, transactionRepo)
	summaryService := summary.NewService(summaryRepo, balanceRepo, holdingsRepo, cfg.Summary.Currency)

	// The batch runs at the first configured schedule time; extra times only
	// affect the in-process scheduler.
	schedule := banksync.DailySchedule{Hour: 6}
	if len(cfg.Scheduler.ScheduleTimes) > 0 {
		schedule, err = banksync.ParseDailySchedule(cfg.Scheduler.ScheduleTimes[0])
		if err != nil {
			return nil, err
		}
	}
	batch := banksync.NewBatchService(
		connectionRepo,
		connectionService,
		syncService,
		summaryService,
		cfg.Scheduler.JobDelay,
		schedule,
	)

	// Initialize handlers
	redirectURL := cfg.Server.BaseURL + "/banking/callback"
	institutionHandler := httphandlers.NewInstitutionHandler(aggClient)
	connectionHandler := httphandlers.NewConnectionHandler(connectionService, summaryService, redirectURL)
	syncHandler := httphandlers.NewSyncHandler(syncService, connectionService, connectionRepo, summaryService)
	batchHandler := httphandlers.NewBatchHandler(batch, cfg.Cron.Secret)

	return &Dependencies{
		DB:                 db,
		InstitutionHandler: institutionHandler,
		ConnectionHandler:  connectionHandler,
		SyncHandler:        syncHandler,
		BatchHandler:       batchHandler,
		Batch:              batch,
	}, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
