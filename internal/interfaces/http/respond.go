// Package http holds the HTTP handlers for the banking API.
package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"nestegg/internal/domain/account"
	"nestegg/internal/domain/connection"
	"nestegg/internal/infrastructure/aggregator"
)

// timeNow is swapped out in tests.
var timeNow = time.Now

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps domain and aggregator errors onto the API's status
// codes. Anything unrecognized is a 500 with a generic message so internals
// never leak.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, connection.ErrNotFound), errors.Is(err, account.ErrNotFound),
		errors.Is(err, aggregator.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, aggregator.ErrRateLimitExceeded):
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again tomorrow")
	case errors.Is(err, aggregator.ErrAuthenticationFailed):
		writeError(w, http.StatusInternalServerError, "aggregator authentication failed")
	case errors.Is(err, aggregator.ErrUnavailable):
		writeError(w, http.StatusInternalServerError, "aggregator unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
