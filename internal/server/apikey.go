package server

import (
	"encoding/json"
	"net/http"

	"github.com/unigate/unigate/internal/db"
	"gorm.io/gorm"
)

// GetAPIKeyHandler returns the current gateway API key.
func GetAPIKeyHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"api_key": db.GetAPIKey(database)})
	}
}

// RegenerateAPIKeyHandler rotates the gateway API key.
func RegenerateAPIKeyHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := db.RegenerateAPIKey(database)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"api_key": apiKey})
	}
}
