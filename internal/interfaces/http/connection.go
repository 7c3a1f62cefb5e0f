package http

import (
	"encoding/json"
	"log"
	"net/http"

	"nestegg/internal/domain/banksync"
	"nestegg/internal/domain/connection"
	"nestegg/internal/shared/middleware"
)

// ConnectionHandler serves bank connect and disconnect
type ConnectionHandler struct {
	connections *connection.Service
	summary     banksync.SummaryRecalculator
	redirectURL string
}

// NewConnectionHandler creates a new connection handler. redirectURL is
// where the provider sends the user after authorizing.
func NewConnectionHandler(connections *connection.Service, summary banksync.SummaryRecalculator, redirectURL string) *ConnectionHandler {
	return &ConnectionHandler{
		connections: connections,
		summary:     summary,
		redirectURL: redirectURL,
	}
}

// ConnectRequest starts a new bank connection
type ConnectRequest struct {
	InstitutionID   string `json:"institutionId"`
	InstitutionName string `json:"institutionName"`
	CountryCode     string `json:"countryCode"`
}

// DisconnectRequest removes an existing bank connection
type DisconnectRequest struct {
	RequisitionID string `json:"requisitionId"`
}

// HandleConnect creates a requisition and returns the authorization URL the
// user must visit to link the bank.
func (h *ConnectionHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.InstitutionID == "" || req.InstitutionName == "" {
		writeError(w, http.StatusBadRequest, "institutionId and institutionName are required")
		return
	}

	country, ok := normalizeCountry(req.CountryCode)
	if !ok {
		writeError(w, http.StatusBadRequest, "countryCode must be a two-letter code")
		return
	}

	result, err := h.connections.Initiate(r.Context(), connection.InitiateParams{
		UserID:          userID,
		InstitutionID:   req.InstitutionID,
		InstitutionName: req.InstitutionName,
		CountryCode:     country,
		RedirectURL:     h.redirectURL,
	})
	if err != nil {
		log.Printf("Error initiating connection for user %d: %v", userID, err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"requisitionId": result.RequisitionID,
		"authUrl":       result.AuthURL,
		"message":       "Redirect the user to authUrl to authorize the connection",
	})
}

// HandleDisconnect removes a bank connection. The requisition must belong to
// the caller. The summary is recomputed best-effort afterwards.
func (h *ConnectionHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req DisconnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RequisitionID == "" {
		writeError(w, http.StatusBadRequest, "requisitionId is required")
		return
	}

	institutionName, err := h.connections.Disconnect(r.Context(), userID, req.RequisitionID)
	if err != nil {
		log.Printf("Error disconnecting requisition %s for user %d: %v", req.RequisitionID, userID, err)
		writeDomainError(w, err)
		return
	}

	if h.summary != nil {
		if err := h.summary.Recalculate(r.Context(), userID, timeNow()); err != nil {
			log.Printf("User %d: summary recalculation after disconnect failed: %v", userID, err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":                 true,
		"message":                 "Bank disconnected",
		"disconnectedInstitution": institutionName,
	})
}
