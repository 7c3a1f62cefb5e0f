package http

import (
	"log"
	"net/http"
	"sort"
	"strings"

	"nestegg/internal/infrastructure/aggregator"
	"nestegg/internal/shared/middleware"
)

// InstitutionHandler serves the institution catalog
type InstitutionHandler struct {
	client aggregator.Client
}

// NewInstitutionHandler creates a new institution handler
func NewInstitutionHandler(client aggregator.Client) *InstitutionHandler {
	return &InstitutionHandler{client: client}
}

// InstitutionResponse is one institution in the listing
type InstitutionResponse struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	BIC                  string `json:"bic"`
	Logo                 string `json:"logo"`
	TransactionTotalDays int    `json:"transactionTotalDays"`
}

// HandleListInstitutions returns the institutions available in a country.
// The country code defaults to GB, is case-insensitive and must be exactly
// two letters.
func (h *InstitutionHandler) HandleListInstitutions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if _, ok := r.Context().Value(middleware.UserIDKey).(int64); !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	country, ok := normalizeCountry(r.URL.Query().Get("country"))
	if !ok {
		writeError(w, http.StatusBadRequest, "country must be a two-letter code")
		return
	}

	institutions, err := h.client.ListInstitutions(r.Context(), country)
	if err != nil {
		log.Printf("Error listing institutions for %s: %v", country, err)
		writeDomainError(w, err)
		return
	}

	response := make([]InstitutionResponse, 0, len(institutions))
	for _, inst := range institutions {
		response = append(response, InstitutionResponse{
			ID:                   inst.ID,
			Name:                 inst.Name,
			BIC:                  inst.BIC,
			Logo:                 inst.Logo,
			TransactionTotalDays: inst.TransactionTotalDays,
		})
	}
	// The provider returns institutions in no particular order.
	sort.Slice(response, func(i, j int) bool { return response[i].Name < response[j].Name })

	writeJSON(w, http.StatusOK, map[string]any{
		"institutions": response,
		"count":        len(response),
		"country":      country,
	})
}

// normalizeCountry validates and uppercases a two-letter country code.
// Empty input falls back to GB.
func normalizeCountry(raw string) (string, bool) {
	if raw == "" {
		return "GB", true
	}
	if len(raw) != 2 {
		return "", false
	}
	for _, c := range raw {
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return "", false
		}
	}
	return strings.ToUpper(raw), true
}
