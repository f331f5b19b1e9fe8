// Package hydrate merges saved per-user parameter sets with request-time
// overrides into a fully specified request template.
package hydrate

import (
	"encoding/json"
	"fmt"

	"github.com/unigate/unigate/internal/db"
	"github.com/unigate/unigate/internal/db/models"
	"github.com/unigate/unigate/internal/registry"
	"gorm.io/gorm"
)

// Overrides carries request-time parameter values. Each slot is merged over
// the saved set per key: an override key wins, anything else falls back to
// the stored value. The merge is shallow.
type Overrides struct {
	Mode        string            `json:"mode,omitempty"`
	Body        map[string]any    `json:"body,omitempty"`
	QueryParams map[string]string `json:"query_params,omitempty"`
	PathParams  map[string]string `json:"path_params,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// HydratedRequest is a complete request template ready for building. It
// carries no credential material.
type HydratedRequest struct {
	UserID      string
	Provider    string
	Method      string
	Intent      string
	Path        string // intent path template, {param} slots unresolved
	Body        map[string]any
	QueryParams map[string]string
	PathParams  map[string]string
	Headers     map[string]string
}

// Resolver loads saved intents and applies overrides.
type Resolver struct {
	db *gorm.DB
}

// NewResolver creates a resolver over the saved-intent store.
func NewResolver(database *gorm.DB) *Resolver {
	return &Resolver{db: database}
}

// Resolve produces the hydrated request for one invocation. A missing saved
// intent is not an error; the overrides alone form the parameter set.
func (r *Resolver) Resolve(userID string, intent registry.Intent, ov Overrides) (*HydratedRequest, error) {
	saved, err := db.GetSavedIntent(r.db, userID, intent.Provider, intent.Method, intent.Name, ov.Mode)
	if err != nil {
		return nil, fmt.Errorf("load saved intent: %w", err)
	}

	hr := &HydratedRequest{
		UserID:   userID,
		Provider: intent.Provider,
		Method:   intent.Method,
		Intent:   intent.Name,
		Path:     intent.Path,
	}

	var savedBody map[string]any
	var savedQuery, savedPath, savedHeaders map[string]string
	if saved != nil {
		savedBody = decodeAnyMap(saved.Body)
		savedQuery = decodeStringMap(saved.QueryParams)
		savedPath = decodeStringMap(saved.PathParams)
		savedHeaders = decodeStringMap(saved.Headers)
	}

	hr.Body = mergeAnyMap(savedBody, ov.Body)
	hr.QueryParams = mergeStringMap(savedQuery, ov.QueryParams)
	hr.PathParams = mergeStringMap(savedPath, ov.PathParams)
	hr.Headers = mergeStringMap(savedHeaders, ov.Headers)

	return hr, nil
}

// mergeStringMap applies "override wins, otherwise stored" per key.
func mergeStringMap(stored, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(stored)+len(overrides))
	for k, v := range stored {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// mergeAnyMap is the shallow body merge; nested objects are replaced whole.
func mergeAnyMap(stored, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(stored)+len(overrides))
	for k, v := range stored {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

func decodeStringMap(blob string) map[string]string {
	if blob == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(blob), &m); err != nil {
		return nil
	}
	return m
}

func decodeAnyMap(blob string) map[string]any {
	if blob == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(blob), &m); err != nil {
		return nil
	}
	return m
}

// EncodeSavedIntent builds a SavedIntent row from override-shaped values for
// the save API.
func EncodeSavedIntent(userID string, intent registry.Intent, mode string, ov Overrides) (*models.SavedIntent, error) {
	si := &models.SavedIntent{
		UserID:    userID,
		Provider:  intent.Provider,
		Method:    intent.Method,
		Intent:    intent.Name,
		SavedMode: mode,
	}
	var err error
	if si.Body, err = encodeMap(ov.Body); err != nil {
		return nil, err
	}
	if si.QueryParams, err = encodeMap(ov.QueryParams); err != nil {
		return nil, err
	}
	if si.PathParams, err = encodeMap(ov.PathParams); err != nil {
		return nil, err
	}
	if si.Headers, err = encodeMap(ov.Headers); err != nil {
		return nil, err
	}
	return si, nil
}

func encodeMap(m any) (string, error) {
	switch v := m.(type) {
	case map[string]any:
		if len(v) == 0 {
			return "", nil
		}
	case map[string]string:
		if len(v) == 0 {
			return "", nil
		}
	case nil:
		return "", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
