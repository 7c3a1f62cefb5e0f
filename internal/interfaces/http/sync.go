package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"nestegg/internal/domain/banksync"
	"nestegg/internal/domain/connection"
	"nestegg/internal/shared/middleware"
)

// SyncHandler serves user-triggered syncs and the sync status listing
type SyncHandler struct {
	sync        *banksync.Service
	connections *connection.Service
	connRepo    connection.Repository
	summary     banksync.SummaryRecalculator
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(
	sync *banksync.Service,
	connections *connection.Service,
	connRepo connection.Repository,
	summary banksync.SummaryRecalculator,
) *SyncHandler {
	return &SyncHandler{
		sync:        sync,
		connections: connections,
		connRepo:    connRepo,
		summary:     summary,
	}
}

// SyncRequest optionally scopes the sync to one account
type SyncRequest struct {
	AccountID *int64 `json:"accountId"`
}

// HandleSync dispatches on method: POST runs a sync, GET reports status.
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleRunSync(w, r)
	case http.MethodGet:
		h.handleSyncStatus(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleRunSync reconciles pending connections, then syncs the user's
// accounts. A run that failed purely on spent rate budget maps to 429.
func (h *SyncHandler) handleRunSync(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Pick up authorizations completed since the last visit.
	if err := h.connections.ReconcileUser(r.Context(), userID); err != nil {
		log.Printf("User %d: reconcile before sync failed: %v", userID, err)
	}

	result, err := h.sync.SyncUser(r.Context(), userID, req.AccountID)
	if err != nil {
		log.Printf("User %d: sync failed: %v", userID, err)
		writeDomainError(w, err)
		return
	}

	if result.AccountsSynced > 0 && h.summary != nil {
		if err := h.summary.Recalculate(r.Context(), userID, timeNow()); err != nil {
			log.Printf("User %d: summary recalculation after sync failed: %v", userID, err)
		}
	}

	status := http.StatusOK
	if result.RateLimitedOnly() {
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, result)
}

// connectionStatus is one connection in the GET listing
type connectionStatus struct {
	RequisitionID   string  `json:"requisitionId"`
	InstitutionName string  `json:"institution"`
	Status          string  `json:"status"`
	LastSyncAt      *string `json:"last_sync_at"`
	SyncError       *string `json:"sync_error,omitempty"`
	CanSync         bool    `json:"can_sync"`
}

// handleSyncStatus reports the user's connections and whether any account
// still has rate budget today.
func (h *SyncHandler) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.connections.ReconcileUser(r.Context(), userID); err != nil {
		log.Printf("User %d: reconcile before status failed: %v", userID, err)
	}

	conns, err := h.connRepo.ListByUserID(r.Context(), userID)
	if err != nil && !errors.Is(err, connection.ErrNotFound) {
		log.Printf("User %d: failed to list connections: %v", userID, err)
		writeDomainError(w, err)
		return
	}

	statuses := make([]connectionStatus, 0, len(conns))
	canSyncAny := false
	for _, conn := range conns {
		cs := connectionStatus{
			RequisitionID:   conn.RequisitionID,
			InstitutionName: conn.InstitutionName,
			Status:          string(conn.Status),
			SyncError:       conn.SyncError,
			CanSync:         conn.Status == connection.StatusLinked,
		}
		if conn.LastSyncAt != nil {
			formatted := conn.LastSyncAt.UTC().Format("2006-01-02T15:04:05Z07:00")
			cs.LastSyncAt = &formatted
		}
		if cs.CanSync {
			canSyncAny = true
		}
		statuses = append(statuses, cs)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sync_status":       statuses,
		"total_connections": len(statuses),
		"can_sync_any":      canSyncAny,
	})
}
