package http

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"

	"nestegg/internal/domain/banksync"
)

// BatchHandler serves the external cron trigger for the daily sync and its
// read-only status companion. It is not behind user auth: POST is protected
// by a shared secret instead.
type BatchHandler struct {
	batch      *banksync.BatchService
	cronSecret string
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(batch *banksync.BatchService, cronSecret string) *BatchHandler {
	return &BatchHandler{batch: batch, cronSecret: cronSecret}
}

// HandleDailyUpdate dispatches on method: POST runs the batch, GET reports
// schedule status.
func (h *BatchHandler) HandleDailyUpdate(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleRunBatch(w, r)
	case http.MethodGet:
		h.handleBatchStatus(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleRunBatch runs the daily fan-out. The bearer token is compared in
// constant time so the secret cannot be probed byte by byte.
func (h *BatchHandler) handleRunBatch(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	report, err := h.batch.RunDailySync(r.Context())
	if err != nil {
		log.Printf("Daily sync batch failed: %v", err)
		writeError(w, http.StatusInternalServerError, "daily sync failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Daily sync completed",
		"summary": map[string]int{
			"users_processed":     report.UsersProcessed,
			"users_succeeded":     report.UsersSucceeded,
			"accounts_synced":     report.AccountsSynced,
			"balances_synced":     report.BalancesSynced,
			"transactions_synced": report.TransactionsSynced,
		},
		"results":   report.Results,
		"timestamp": report.FinishedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}

func (h *BatchHandler) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.batch.Status(r.Context())
	if err != nil {
		log.Printf("Failed to read batch status: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read status")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"last_syncs":          status.LastSyncs,
		"next_scheduled_sync": status.NextScheduledSync.UTC().Format("2006-01-02T15:04:05Z07:00"),
		"active_connections":  status.ActiveConnections,
		"current_time":        status.CurrentTime.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}

func (h *BatchHandler) authorized(r *http.Request) bool {
	if h.cronSecret == "" {
		return false
	}
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.cronSecret)) == 1
}
