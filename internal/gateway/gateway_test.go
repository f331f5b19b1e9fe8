package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/unigate/unigate/internal/db"
	"github.com/unigate/unigate/internal/db/models"
	"github.com/unigate/unigate/internal/dispatch"
	"github.com/unigate/unigate/internal/hydrate"
	"github.com/unigate/unigate/internal/monitor"
	"github.com/unigate/unigate/internal/refresh"
	"github.com/unigate/unigate/internal/registry"
	"gorm.io/gorm"
)

func newTestGatewayDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "gateway.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := database.AutoMigrate(&models.Credential{}, &models.SavedIntent{}, &models.RequestLog{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return database
}

// setupRegistry points the googlesheets provider at test servers.
func setupRegistry(t *testing.T, apiURL, tokenURL string) {
	t.Helper()
	registry.ResetForTest()
	t.Cleanup(registry.ResetForTest)
	t.Setenv("UNIGATE_PROVIDERS_FILE", "")
	t.Setenv("UNIGATE_GOOGLESHEETS_API_ENDPOINT", apiURL)
	t.Setenv("UNIGATE_GOOGLESHEETS_REFRESH_TOKEN_URL", tokenURL)
	if err := registry.InitFromEnvAndConfig(); err != nil {
		t.Fatalf("failed to init registry: %v", err)
	}
}

func newTestGateway(t *testing.T, database *gorm.DB) (*Gateway, *monitor.Monitor) {
	t.Helper()
	mon := monitor.NewMonitor(database)
	gw := New(database, refresh.NewManager(database), dispatch.NewDispatcher(), mon)
	return gw, mon
}

func seedOAuthCredential(t *testing.T, database *gorm.DB, accessToken string) {
	t.Helper()
	cred := &models.Credential{
		UserID:   "user-1",
		Provider: "googlesheets",
		AuthType: models.AuthTypeOAuth2,
		Active:   true,
	}
	err := cred.SetPayload(models.TokenPayload{
		AccessToken:  accessToken,
		RefreshToken: "refresh-1",
		ClientID:     "client-1",
		ClientSecret: "secret-1",
	})
	if err != nil {
		t.Fatalf("failed to set payload: %v", err)
	}
	if err := db.UpsertCredential(database, cred); err != nil {
		t.Fatalf("failed to seed credential: %v", err)
	}
}

func seedListRowsIntent(t *testing.T, database *gorm.DB, query map[string]string) {
	t.Helper()
	intent, ok := registry.GetIntent("googlesheets", "GET", "list_rows")
	if !ok {
		t.Fatal("expected built-in list_rows intent")
	}
	si, err := hydrate.EncodeSavedIntent("user-1", intent, "", hydrate.Overrides{
		QueryParams: query,
		PathParams:  map[string]string{"spreadsheet_id": "sheet-abc", "range": "A1:B2"},
	})
	if err != nil {
		t.Fatalf("failed to encode saved intent: %v", err)
	}
	if err := db.SaveIntent(database, si); err != nil {
		t.Fatalf("failed to save intent: %v", err)
	}
}

func waitForLogCount(t *testing.T, database *gorm.DB, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var count int64
		database.Model(&models.RequestLog{}).Count(&count)
		if count >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d request logs", want)
}

func TestInvokeOverrideWinsOverSaved(t *testing.T) {
	var gotQuery atomic.Value
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query().Get("sheet"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"values": [["a", "b"]]}`)
	}))
	defer api.Close()
	setupRegistry(t, api.URL, "http://unused.invalid/token")

	database := newTestGatewayDB(t)
	seedOAuthCredential(t, database, "tok-ok")
	seedListRowsIntent(t, database, map[string]string{"sheet": "Sheet1"})

	gw, _ := newTestGateway(t, database)

	result, err := gw.Invoke(context.Background(), InvokeRequest{
		UserID:   "user-1",
		Provider: "googlesheets",
		Method:   "GET",
		Intent:   "list_rows",
		Overrides: hydrate.Overrides{
			QueryParams: map[string]string{"sheet": "Sheet2"},
		},
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("unexpected status: %d", result.StatusCode)
	}
	if got := gotQuery.Load(); got != "Sheet2" {
		t.Errorf("override must win over saved value, dispatched sheet=%v", got)
	}
	var body map[string]any
	if err := json.Unmarshal(result.Body, &body); err != nil {
		t.Fatalf("result body is not JSON: %v", err)
	}
	if _, ok := body["values"]; !ok {
		t.Errorf("provider body must pass through verbatim: %s", result.Body)
	}
}

func TestInvokeRefreshesAndRetriesOnceOnUnauthorized(t *testing.T) {
	var attempts atomic.Int64
	var retryAuth atomic.Value
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if r.Header.Get("Authorization") != "Bearer new123" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error": "invalid_token"}`)
			return
		}
		if n > 1 {
			retryAuth.Store(r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok": true}`)
	}))
	defer api.Close()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "new123",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer tokenSrv.Close()

	setupRegistry(t, api.URL, tokenSrv.URL)

	database := newTestGatewayDB(t)
	seedOAuthCredential(t, database, "stale-tok")
	seedListRowsIntent(t, database, nil)

	gw, _ := newTestGateway(t, database)

	result, err := gw.Invoke(context.Background(), InvokeRequest{
		UserID:   "user-1",
		Provider: "googlesheets",
		Method:   "GET",
		Intent:   "list_rows",
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("unexpected status: %d", result.StatusCode)
	}
	if attempts.Load() != 2 {
		t.Errorf("expected 2 dispatch attempts, got %d", attempts.Load())
	}
	if got := retryAuth.Load(); got != "Bearer new123" {
		t.Errorf("retry must carry the refreshed token, got %v", got)
	}

	stored, err := db.GetCredential(database, "user-1", "googlesheets")
	if err != nil {
		t.Fatalf("failed to load credential: %v", err)
	}
	payload, _ := stored.DecodePayload()
	if payload.AccessToken != "new123" {
		t.Errorf("refreshed token must be persisted, got %q", payload.AccessToken)
	}
}

func TestInvokeRetriesAtMostOnce(t *testing.T) {
	var attempts atomic.Int64
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error": "still_bad"}`)
	}))
	defer api.Close()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "new-but-useless",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer tokenSrv.Close()

	setupRegistry(t, api.URL, tokenSrv.URL)

	database := newTestGatewayDB(t)
	seedOAuthCredential(t, database, "stale-tok")
	seedListRowsIntent(t, database, nil)

	gw, _ := newTestGateway(t, database)

	_, err := gw.Invoke(context.Background(), InvokeRequest{
		UserID:   "user-1",
		Provider: "googlesheets",
		Method:   "GET",
		Intent:   "list_rows",
	})
	var derr *dispatch.Error
	if !errors.As(err, &derr) || derr.Kind != dispatch.KindUnauthorized {
		t.Fatalf("expected KindUnauthorized, got %v", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("expected exactly 2 attempts (one retry), got %d", attempts.Load())
	}
}

func TestInvokeProceedsWhenRefreshFails(t *testing.T) {
	// Stored token still works even though the refresh endpoint is down.
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok": true}`)
	}))
	defer api.Close()
	setupRegistry(t, api.URL, "http://127.0.0.1:1/token")

	database := newTestGatewayDB(t)

	cred := &models.Credential{
		UserID:   "user-1",
		Provider: "googlesheets",
		AuthType: models.AuthTypeOAuth2,
		Active:   true,
	}
	// Expired by its own accounting, which forces a proactive refresh attempt.
	err := cred.SetPayload(models.TokenPayload{
		AccessToken:  "works-anyway",
		RefreshToken: "refresh-1",
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		ExpiresAt:    time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("failed to set payload: %v", err)
	}
	if err := db.UpsertCredential(database, cred); err != nil {
		t.Fatalf("failed to seed credential: %v", err)
	}
	seedListRowsIntent(t, database, nil)

	gw, _ := newTestGateway(t, database)

	result, err := gw.Invoke(context.Background(), InvokeRequest{
		UserID:   "user-1",
		Provider: "googlesheets",
		Method:   "GET",
		Intent:   "list_rows",
	})
	if err != nil {
		t.Fatalf("refresh failure must not abort the dispatch: %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("unexpected status: %d", result.StatusCode)
	}
}

func TestInvokeUnknownProviderAndIntent(t *testing.T) {
	setupRegistry(t, "http://unused.invalid", "http://unused.invalid/token")
	database := newTestGatewayDB(t)
	gw, _ := newTestGateway(t, database)

	_, err := gw.Invoke(context.Background(), InvokeRequest{
		UserID: "user-1", Provider: "nope", Method: "GET", Intent: "list_rows",
	})
	if !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}

	_, err = gw.Invoke(context.Background(), InvokeRequest{
		UserID: "user-1", Provider: "googlesheets", Method: "GET", Intent: "nope",
	})
	if !errors.Is(err, ErrUnknownIntent) {
		t.Errorf("expected ErrUnknownIntent, got %v", err)
	}
}

func TestInvokeRecordsRequestLog(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok": true}`)
	}))
	defer api.Close()
	setupRegistry(t, api.URL, "http://unused.invalid/token")

	database := newTestGatewayDB(t)
	seedOAuthCredential(t, database, "tok-ok")
	seedListRowsIntent(t, database, nil)

	gw, mon := newTestGateway(t, database)

	if _, err := gw.Invoke(context.Background(), InvokeRequest{
		UserID:   "user-1",
		Provider: "googlesheets",
		Method:   "GET",
		Intent:   "list_rows",
	}); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	waitForLogCount(t, database, 1)

	var entry models.RequestLog
	if err := database.First(&entry).Error; err != nil {
		t.Fatalf("failed to load request log: %v", err)
	}
	if entry.UserID != "user-1" || entry.Provider != "googlesheets" || entry.Intent != "list_rows" {
		t.Errorf("unexpected log identity: %+v", entry)
	}
	if entry.Status != http.StatusOK || entry.IsError {
		t.Errorf("unexpected log outcome: status=%d isError=%v", entry.Status, entry.IsError)
	}
	if entry.ResponseBody == "" {
		t.Error("expected response body recorded")
	}
	if entry.Ref == "" {
		t.Error("expected log ref assigned")
	}

	stats := mon.GetStats()
	if stats.TotalRequests != 1 || stats.SuccessCount != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestInvokeRecordsFailedDispatch(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"error": "upstream"}`)
	}))
	defer api.Close()
	setupRegistry(t, api.URL, "http://unused.invalid/token")

	database := newTestGatewayDB(t)
	seedOAuthCredential(t, database, "tok-ok")
	seedListRowsIntent(t, database, nil)

	gw, mon := newTestGateway(t, database)

	_, err := gw.Invoke(context.Background(), InvokeRequest{
		UserID:   "user-1",
		Provider: "googlesheets",
		Method:   "GET",
		Intent:   "list_rows",
	})
	var derr *dispatch.Error
	if !errors.As(err, &derr) || derr.Kind != dispatch.KindProviderRejected {
		t.Fatalf("expected KindProviderRejected, got %v", err)
	}

	waitForLogCount(t, database, 1)

	var entry models.RequestLog
	if err := database.First(&entry).Error; err != nil {
		t.Fatalf("failed to load request log: %v", err)
	}
	if !entry.IsError || entry.Status != http.StatusBadGateway {
		t.Errorf("unexpected log outcome: status=%d isError=%v", entry.Status, entry.IsError)
	}
	if entry.Error == "" {
		t.Error("expected error message recorded")
	}

	stats := mon.GetStats()
	if stats.ErrorCount != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
