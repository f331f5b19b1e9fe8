package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/unigate/unigate/internal/db"
	"github.com/unigate/unigate/internal/db/models"
	"github.com/unigate/unigate/internal/refresh"
	"gorm.io/gorm"
)

// credentialView redacts the opaque credentials blob from admin listings.
type credentialView struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	Provider      string `json:"provider"`
	AuthType      string `json:"auth_type"`
	Active        bool   `json:"active"`
	ProviderError string `json:"provider_error,omitempty"`
}

// ListCredentialsHandler returns a user's credentials, tokens redacted.
func ListCredentialsHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
			return
		}
		creds, err := db.ListCredentials(database, userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		views := make([]credentialView, 0, len(creds))
		for _, c := range creds {
			views = append(views, credentialView{
				ID:            c.ID,
				UserID:        c.UserID,
				Provider:      c.Provider,
				AuthType:      c.AuthType,
				Active:        c.Active,
				ProviderError: c.ProviderError,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"credentials": views})
	}
}

// UpsertCredentialHandler stores a credential created by an external
// authorization flow.
func UpsertCredentialHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID      string              `json:"user_id"`
			Provider    string              `json:"provider"`
			AuthType    string              `json:"auth_type"`
			Credentials models.TokenPayload `json:"credentials"`
			Config      map[string]string   `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
			return
		}
		if body.UserID == "" || body.Provider == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "user_id and provider are required")
			return
		}

		cred, err := db.GetCredential(database, body.UserID, body.Provider)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		if cred == nil {
			cred = &models.Credential{UserID: body.UserID, Provider: body.Provider}
		}
		if body.AuthType != "" {
			cred.AuthType = body.AuthType
		}
		if err := cred.SetPayload(body.Credentials); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if body.Config != nil {
			if err := cred.SetConfigMap(body.Config); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
				return
			}
		}
		cred.Active = true
		cred.ProviderError = ""
		if err := db.UpsertCredential(database, cred); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "id": cred.ID})
	}
}

// DeactivateCredentialHandler soft-disables a credential.
func DeactivateCredentialHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		provider := chi.URLParam(r, "provider")
		if userID == "" || provider == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "user_id and provider are required")
			return
		}
		if err := db.DeactivateCredential(database, userID, provider, "deactivated by admin"); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// RefreshCredentialHandler triggers a manual refresh for one credential.
func RefreshCredentialHandler(database *gorm.DB, refresher *refresh.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		provider := chi.URLParam(r, "provider")
		if userID == "" || provider == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "user_id and provider are required")
			return
		}
		cred, err := db.GetCredential(database, userID, provider)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		if cred == nil {
			writeError(w, http.StatusNotFound, "not_found", "no credential for this user and provider")
			return
		}
		if _, err := refresher.ForceRefresh(r.Context(), cred); err != nil {
			writeError(w, http.StatusBadGateway, "refresh_failed", err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "message": "Credential refresh triggered"})
	}
}
