package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/unigate/unigate/internal/db"
	"github.com/unigate/unigate/internal/hydrate"
	"github.com/unigate/unigate/internal/registry"
	"gorm.io/gorm"
)

// SaveIntentHandler stores a per-user parameter set for an intent variant.
func SaveIntentHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID   string            `json:"user_id"`
			Provider string            `json:"provider"`
			Method   string            `json:"method"`
			Intent   string            `json:"intent"`
			Mode     string            `json:"mode"`
			Params   hydrate.Overrides `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
			return
		}
		if body.UserID == "" || body.Provider == "" || body.Method == "" || body.Intent == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "user_id, provider, method and intent are required")
			return
		}
		intent, ok := registry.GetIntent(body.Provider, body.Method, body.Intent)
		if !ok {
			writeError(w, http.StatusNotFound, "not_found", "intent is not declared for this provider")
			return
		}

		si, err := hydrate.EncodeSavedIntent(body.UserID, intent, body.Mode, body.Params)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if err := db.SaveIntent(database, si); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "id": si.ID})
	}
}

// ListSavedIntentsHandler returns all saved parameter sets for a user.
func ListSavedIntentsHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
			return
		}
		sis, err := db.ListSavedIntents(database, userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"saved_intents": sis})
	}
}

// DeleteSavedIntentHandler removes one saved variant.
func DeleteSavedIntentHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		id := chi.URLParam(r, "id")
		if userID == "" || id == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "user_id and id are required")
			return
		}
		if err := db.DeleteSavedIntent(database, userID, id); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
