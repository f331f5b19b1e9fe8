package main

import (
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/unigate/unigate/internal/db"
	"github.com/unigate/unigate/internal/dispatch"
	"github.com/unigate/unigate/internal/gateway"
	"github.com/unigate/unigate/internal/logging"
	"github.com/unigate/unigate/internal/monitor"
	"github.com/unigate/unigate/internal/refresh"
	"github.com/unigate/unigate/internal/registry"
	"github.com/unigate/unigate/internal/server"
	"github.com/unigate/unigate/internal/version"
)

func main() {
	// Initialize database
	dbPath := os.Getenv("UNIGATE_DB")
	if dbPath == "" {
		dbPath = "unigate.db"
	}
	database, err := db.InitDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Load the provider/intent registry (immutable for the process lifetime)
	if err := registry.InitFromEnvAndConfig(); err != nil {
		log.Printf("⚠️ Provider registry loaded with errors: %v", err)
	}

	// Core collaborators
	refresher := refresh.NewManager(database)
	dispatcher := dispatch.NewDispatcher()
	mon := monitor.NewMonitor(database)
	gw := gateway.New(database, refresher, dispatcher, mon)

	// Create router
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(logging.Middleware)

	// ============================================
	// Protected Routes (API Key Required)
	// ============================================

	// Invoke-intent front door
	r.Route("/v1", func(r chi.Router) {
		r.Use(server.APIKeyAuth(database))
		r.Post("/invoke", server.InvokeHandler(gw))
	})

	// Management API
	r.Route("/api", func(r chi.Router) {
		r.Use(server.APIKeyAuth(database))

		// Credential management
		r.Get("/credentials", server.ListCredentialsHandler(database))
		r.Post("/credentials", server.UpsertCredentialHandler(database))
		r.Post("/credentials/{provider}/deactivate", server.DeactivateCredentialHandler(database))
		r.Post("/credentials/{provider}/refresh", server.RefreshCredentialHandler(database, refresher))

		// Saved intent management
		r.Get("/saved-intents", server.ListSavedIntentsHandler(database))
		r.Post("/saved-intents", server.SaveIntentHandler(database))
		r.Delete("/saved-intents/{id}", server.DeleteSavedIntentHandler(database))

		// Registry (read-only)
		r.Get("/providers", server.ProvidersHandler())
		r.Get("/providers/{provider}/intents", server.IntentsHandler())

		// Request log audit trail
		r.Get("/logs", server.RequestLogsHandler(mon))
		r.Get("/logs/stats", server.RequestStatsHandler(mon))
		r.Post("/logs/clear", server.ClearRequestLogsHandler(mon))

		// API Key management
		r.Get("/config/apikey", server.GetAPIKeyHandler(database))
		r.Post("/config/apikey/regenerate", server.RegenerateAPIKeyHandler(database))
	})

	// Start server
	host := os.Getenv("HOST")
	if host == "" {
		host = "127.0.0.1" // Default to localhost, set HOST=0.0.0.0 for LAN access
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	addr := host + ":" + port

	log.Printf("🚀 Unigate %s starting on http://%s", version.Version, addr)
	log.Printf("🔌 Invoke API: http://%s/v1/invoke", addr)
	log.Printf("🛠  Management API: http://%s/api", addr)

	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
