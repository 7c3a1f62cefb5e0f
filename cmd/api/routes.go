package main

import (
	"log"
	"net/http"

	"nestegg/internal/shared/config"
	"nestegg/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", handleHealth)

	// The cron trigger authenticates with the shared secret, not a user token
	mux.HandleFunc("/api/banking/daily-update", deps.BatchHandler.HandleDailyUpdate)

	// Protected routes
	authMiddleware := middleware.Auth([]byte(cfg.JWT.Secret))

	mux.Handle("/api/banking/institutions", authMiddleware(http.HandlerFunc(deps.InstitutionHandler.HandleListInstitutions)))
	mux.Handle("/api/banking/connect", authMiddleware(http.HandlerFunc(deps.ConnectionHandler.HandleConnect)))
	mux.Handle("/api/banking/disconnect", authMiddleware(http.HandlerFunc(deps.ConnectionHandler.HandleDisconnect)))
	mux.Handle("/api/banking/sync", authMiddleware(http.HandlerFunc(deps.SyncHandler.HandleSync)))

	// Apply global middleware
	handler := middleware.Logging(middleware.CORS(cfg.Server.AllowedHosts)(mux))
	if cfg.Telemetry.Enabled {
		handler = middleware.Tracing(middleware.Telemetry(handler))
	}

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(middleware.SecureCookies(handler))
		log.Println("TLS security middleware enabled (HSTS + SecureCookies)")
	}

	return handler
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
