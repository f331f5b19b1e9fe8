package refresh

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/unigate/unigate/internal/db"
	"github.com/unigate/unigate/internal/db/models"
	"github.com/unigate/unigate/internal/registry"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	// DefaultExchangeTimeout bounds one token exchange round trip.
	DefaultExchangeTimeout = 30 * time.Second
	// DefaultRefreshLeadWindow refreshes proactively when a stored expiry is
	// this close. Providers without a stored expiry fall back to reactive
	// 401 handling by the caller.
	DefaultRefreshLeadWindow = 5 * time.Minute
)

// Manager decides when a credential is stale, resolves the provider's token
// endpoint and performs the refresh exchange. Concurrent refreshes for the
// same (user, provider) are collapsed into one exchange.
type Manager struct {
	db      *gorm.DB
	group   singleflight.Group
	timeout time.Duration
	lead    time.Duration
	now     func() time.Time

	// exchangeClient overrides the HTTP client used for the token exchange.
	// Tests point it at a local server.
	exchangeClient *http.Client
}

// NewManager creates a refresh manager bound to the credential store.
func NewManager(database *gorm.DB) *Manager {
	return &Manager{
		db:      database,
		timeout: DefaultExchangeTimeout,
		lead:    DefaultRefreshLeadWindow,
		now:     time.Now,
	}
}

type refreshResult struct {
	cred *models.Credential
	err  error
}

// EnsureFresh returns a credential safe to dispatch with, refreshing it first
// when it is stale. Non-refreshable credentials pass through unchanged.
// On refresh failure the prior credential is returned together with a
// *Error so the caller can still attempt the dispatch.
func (m *Manager) EnsureFresh(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	if !m.canRefresh(cred) {
		return cred, nil
	}
	if !m.isStale(cred) {
		return cred, nil
	}
	return m.refresh(ctx, cred)
}

// ForceRefresh performs one refresh cycle regardless of staleness. Used after
// a dispatch came back unauthorized.
func (m *Manager) ForceRefresh(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	if !m.canRefresh(cred) {
		return cred, nil
	}
	return m.refresh(ctx, cred)
}

// canRefresh reports whether the credential carries enough material for a
// refresh exchange: OAuth family with refresh token and client id/secret.
func (m *Manager) canRefresh(cred *models.Credential) bool {
	if cred == nil {
		return false
	}
	if cred.AuthType != models.AuthTypeOAuth2 && cred.AuthType != models.AuthTypeOAuth1 {
		return false
	}
	payload, err := cred.DecodePayload()
	if err != nil {
		return false
	}
	return payload.RefreshToken != "" && payload.ClientID != "" && payload.ClientSecret != ""
}

func (m *Manager) isStale(cred *models.Credential) bool {
	payload, err := cred.DecodePayload()
	if err != nil {
		return false
	}
	if payload.AccessToken == "" {
		return true
	}
	// No expiry stored for this provider: rely on reactive 401 handling.
	if payload.ExpiresAt.IsZero() {
		return false
	}
	return !payload.ExpiresAt.After(m.now().Add(m.lead))
}

// refresh runs the exchange behind a singleflight key so simultaneous callers
// for the same (user, provider) share one result.
func (m *Manager) refresh(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	key := cred.UserID + "|" + cred.Provider
	v, _, _ := m.group.Do(key, func() (interface{}, error) {
		c, err := m.refreshOnce(ctx, cred)
		return refreshResult{cred: c, err: err}, nil
	})
	res := v.(refreshResult)
	return res.cred, res.err
}

func (m *Manager) refreshOnce(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	payload, err := cred.DecodePayload()
	if err != nil {
		return cred, &Error{Kind: KindRejected, Provider: cred.Provider, Err: err}
	}

	tokenURL, rerr := m.resolveRefreshURL(cred)
	if rerr != nil {
		return cred, rerr
	}

	newToken, err := m.exchange(ctx, tokenURL, payload)
	if err != nil {
		return m.handleExchangeError(cred, err)
	}

	return m.persistRefreshed(cred, payload, newToken)
}

// resolveRefreshURL resolves the token endpoint: registry template first,
// per-provider fallback resolver second.
func (m *Manager) resolveRefreshURL(cred *models.Credential) (string, *Error) {
	meta, ok := registry.GetProvider(cred.Provider)
	config := cred.ConfigMap()

	if ok && meta.RefreshTokenURL != "" {
		url, err := registry.ExpandTemplate(meta.RefreshTokenURL, config)
		if err == nil && url != "" {
			return url, nil
		}
		if err != nil {
			log.Printf("⚠️ Refresh template for %s unusable, trying fallback: %v", cred.Provider, err)
		}
	}

	url, found, err := registry.ResolveFallbackURL(cred.Provider, config)
	if err != nil {
		return "", &Error{Kind: KindNoRefreshEndpoint, Provider: cred.Provider, Err: err}
	}
	if found && url != "" {
		return url, nil
	}

	return "", &Error{Kind: KindNoRefreshEndpoint, Provider: cred.Provider}
}

// exchange posts grant_type=refresh_token with client id/secret in the form
// body to the resolved URL and parses the provider's token response.
func (m *Manager) exchange(ctx context.Context, tokenURL string, payload models.TokenPayload) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if m.exchangeClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.exchangeClient)
	}

	conf := &oauth2.Config{
		ClientID:     payload.ClientID,
		ClientSecret: payload.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	source := conf.TokenSource(ctx, &oauth2.Token{
		RefreshToken: payload.RefreshToken,
		// Force the source to hit the token endpoint.
		Expiry: time.Now().Add(-time.Hour),
	})
	return source.Token()
}

// handleExchangeError keeps the stored credential untouched on transient
// failures and deactivates it on permanent rejections. Either way the caller
// gets the prior credential back.
func (m *Manager) handleExchangeError(cred *models.Credential, err error) (*models.Credential, error) {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		log.Printf("❌ Refresh rejected for %s/%s: %v", cred.UserID, cred.Provider, err)
		if isPermanentRefreshError(err) {
			if derr := db.DeactivateCredential(m.db, cred.UserID, cred.Provider, err.Error()); derr != nil {
				log.Printf("⚠️ Failed to deactivate credential %s/%s: %v", cred.UserID, cred.Provider, derr)
			} else {
				cred.Active = false
				cred.ProviderError = err.Error()
				log.Printf("🔒 Credential %s/%s marked inactive, re-authorization required", cred.UserID, cred.Provider)
			}
		}
		return cred, &Error{Kind: KindRejected, Provider: cred.Provider, Err: err}
	}

	log.Printf("⏳ Transient refresh failure for %s/%s: %v", cred.UserID, cred.Provider, err)
	return cred, &Error{Kind: KindTransportFailure, Provider: cred.Provider, Err: err}
}

// persistRefreshed writes the new access token back exactly once. If another
// writer landed a different token while this exchange was in flight, the
// result is discarded and the fresher stored row wins.
func (m *Manager) persistRefreshed(cred *models.Credential, prior models.TokenPayload, token *oauth2.Token) (*models.Credential, error) {
	stored, err := db.GetCredential(m.db, cred.UserID, cred.Provider)
	if err != nil {
		return cred, &Error{Kind: KindTransportFailure, Provider: cred.Provider, Err: err}
	}
	if stored == nil {
		stored = cred
	}

	storedPayload, err := stored.DecodePayload()
	if err == nil && storedPayload.AccessToken != "" && storedPayload.AccessToken != prior.AccessToken {
		// Lost the write race: someone refreshed underneath us.
		log.Printf("🔁 Discarding refresh result for %s/%s, a newer token is already stored", cred.UserID, cred.Provider)
		return stored, nil
	}

	updated := storedPayload
	updated.AccessToken = token.AccessToken
	updated.ExpiresAt = token.Expiry
	// Rotate the refresh token only when the provider supplied a new one.
	if token.RefreshToken != "" && token.RefreshToken != updated.RefreshToken {
		log.Printf("🔄 Rotating refresh token for %s/%s", cred.UserID, cred.Provider)
		updated.RefreshToken = token.RefreshToken
	}
	if err := stored.SetPayload(updated); err != nil {
		return cred, &Error{Kind: KindTransportFailure, Provider: cred.Provider, Err: err}
	}
	stored.Active = true
	stored.ProviderError = ""

	if err := db.UpsertCredential(m.db, stored); err != nil {
		log.Printf("⚠️ Failed to persist refreshed credential: %v", err)
		return cred, &Error{Kind: KindTransportFailure, Provider: cred.Provider, Err: err}
	}

	log.Printf("✅ Refreshed token for %s/%s (expires: %s)", cred.UserID, cred.Provider, token.Expiry.Format(time.RFC3339))
	return stored, nil
}

func isPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"token has been expired or revoked",
		"revoked",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
