package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/unigate/unigate/internal/db"
	"github.com/unigate/unigate/internal/db/models"
	"gorm.io/gorm"
)

func newTestServerDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := db.InitDB(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	return database
}

func protectedHandler(database *gorm.DB) http.Handler {
	return APIKeyAuth(database)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAPIKeyAuthAcceptsAllCarriers(t *testing.T) {
	database := newTestServerDB(t)
	apiKey := db.GetAPIKey(database)
	if apiKey == "" {
		t.Fatal("expected an API key generated on first run")
	}
	handler := protectedHandler(database)

	tests := []struct {
		name  string
		setup func(r *http.Request)
		want  int
	}{
		{
			name:  "bearer header",
			setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+apiKey) },
			want:  http.StatusOK,
		},
		{
			name:  "x-api-key header",
			setup: func(r *http.Request) { r.Header.Set("x-api-key", apiKey) },
			want:  http.StatusOK,
		},
		{
			name:  "key query param",
			setup: func(r *http.Request) { q := r.URL.Query(); q.Set("key", apiKey); r.URL.RawQuery = q.Encode() },
			want:  http.StatusOK,
		},
		{
			name:  "wrong key",
			setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") },
			want:  http.StatusUnauthorized,
		},
		{
			name:  "no key at all",
			setup: func(r *http.Request) {},
			want:  http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("got %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAPIKeyAuthAllowsAllWhenUnconfigured(t *testing.T) {
	database, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "bare.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := database.AutoMigrate(&models.Config{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	protectedHandler(database).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected allow-all without a configured key, got %d", rec.Code)
	}
}

func TestRegenerateAPIKeyInvalidatesOldKey(t *testing.T) {
	database := newTestServerDB(t)
	oldKey := db.GetAPIKey(database)
	handler := protectedHandler(database)

	newKey := db.RegenerateAPIKey(database)
	if newKey == "" || newKey == oldKey {
		t.Fatalf("expected a fresh key, got %q", newKey)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("x-api-key", oldKey)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("old key must stop working, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("x-api-key", newKey)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("new key must work, got %d", rec.Code)
	}
}
