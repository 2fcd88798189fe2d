package main

import (
	"log"
	"net/http"

	httphandlers "fiscus/internal/interfaces/http"
	"fiscus/internal/shared/config"
	"fiscus/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", httphandlers.HandleHealth)

	// Management routes require the API token when one is configured
	tokenRequired := middleware.APIToken(cfg.Server.APIToken)

	// Provider registry and link flow
	mux.Handle("/api/providers", tokenRequired(http.HandlerFunc(deps.LinkHandler.HandleProviders)))
	mux.Handle("/api/links", tokenRequired(http.HandlerFunc(deps.LinkHandler.HandleCreateLink)))
	mux.Handle("/api/links/exchange", tokenRequired(http.HandlerFunc(deps.LinkHandler.HandleExchangeToken)))

	// Connections
	mux.Handle("/api/connections", tokenRequired(http.HandlerFunc(deps.ConnectionHandler.HandleConnections)))
	mux.Handle("/api/connections/{id}", tokenRequired(http.HandlerFunc(deps.ConnectionHandler.HandleConnectionByID)))
	mux.Handle("/api/connections/{id}/sync", tokenRequired(http.HandlerFunc(deps.ConnectionHandler.HandleSyncConnection)))
	mux.Handle("/api/connections/{id}/status/refresh", tokenRequired(http.HandlerFunc(deps.ConnectionHandler.HandleRefreshStatus)))
	mux.Handle("/api/sync", tokenRequired(http.HandlerFunc(deps.ConnectionHandler.HandleSyncAll)))
	mux.Handle("/api/autosync", tokenRequired(http.HandlerFunc(deps.ConnectionHandler.HandleAutoSync)))
	mux.Handle("/api/health/connections", tokenRequired(http.HandlerFunc(deps.ConnectionHandler.HandleConnectionHealth)))

	// Provider webhooks verify their own HMAC signature instead of the API
	// token; provider servers cannot send one.
	mux.HandleFunc("/api/webhooks/{provider}", deps.WebhookHandler.HandleWebhook)

	// Device registration for push alerts (requires the database)
	if deps.DeviceHandler != nil {
		mux.Handle("/api/devices", tokenRequired(http.HandlerFunc(deps.DeviceHandler.HandleRegisterDevice)))
	}

	// Apply global middleware
	handler := middleware.Logging(mux)
	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(handler)
	}

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(middleware.RequireHTTPS(cfg.Server.AllowedHosts)(handler))
		log.Println("TLS security middleware enabled (HSTS + host checks)")
	}

	return handler
}
