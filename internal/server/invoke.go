package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/unigate/unigate/internal/dispatch"
	"github.com/unigate/unigate/internal/gateway"
	"github.com/unigate/unigate/internal/util"
)

// InvokeHandler is the front door for the invoke-intent operation.
func InvokeHandler(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req gateway.InvokeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
			return
		}
		if req.UserID == "" || req.Provider == "" || req.Method == "" || req.Intent == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "user_id, provider, method and intent are required")
			return
		}

		result, err := gw.Invoke(r.Context(), req)
		if err != nil {
			writeInvokeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

// writeInvokeError maps gateway errors onto structured caller-facing payloads.
// Provider rejections pass the provider's status and raw error body through.
func writeInvokeError(w http.ResponseWriter, err error) {
	var de *dispatch.Error
	if errors.As(err, &de) {
		status := http.StatusBadGateway
		switch de.Kind {
		case dispatch.KindUnauthorized:
			status = http.StatusUnauthorized
		case dispatch.KindProviderRejected:
			if de.StatusCode > 0 {
				status = de.StatusCode
			}
		case dispatch.KindBadRequest:
			status = http.StatusBadRequest
		}
		log.Printf("❌ Invoke failed (%s): %s", de.Kind, util.TruncateBytes(de.Body))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"kind":        string(de.Kind),
				"provider":    de.Provider,
				"status_code": de.StatusCode,
				"body":        string(de.Body),
				"message":     de.Error(),
			},
		})
		return
	}

	switch {
	case errors.Is(err, gateway.ErrUnknownProvider), errors.Is(err, gateway.ErrUnknownIntent):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"kind": kind, "message": message},
	})
}
