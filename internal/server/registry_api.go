package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/unigate/unigate/internal/registry"
)

// ProvidersHandler lists the registered providers.
func ProvidersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"providers": registry.GetProviders(),
		})
	}
}

// IntentsHandler lists the intents declared for one provider.
func IntentsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		if _, ok := registry.GetProvider(provider); !ok {
			writeError(w, http.StatusNotFound, "not_found", "unknown provider")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"intents": registry.GetIntents(provider),
		})
	}
}
