package models

import (
	"encoding/json"
	"time"
)

// Auth types a provider credential can carry.
const (
	AuthTypeOAuth2   = "oauth2"
	AuthTypeOAuth1   = "oauth1"
	AuthTypeAPIToken = "api_token"
	AuthTypeNone     = "none"
)

// Credential stores auth material for one (user, provider) pair.
// At most one row exists per (user, provider); refreshes mutate it in place.
type Credential struct {
	ID            string `gorm:"primaryKey"` // UUID
	UserID        string `gorm:"uniqueIndex:idx_user_provider"`
	Provider      string `gorm:"uniqueIndex:idx_user_provider"` // e.g., "googlesheets", "zendesk"
	AuthType      string
	Credentials   string // JSON blob: tokens, client id/secret, expiry (TokenPayload)
	Config        string // JSON map of provider-specific extras (subdomain, endpoint, auth_endpoint)
	ProviderData  string // cached provider metadata JSON
	Active        bool   `gorm:"default:true"`
	ProviderError string // last auth error reported by the provider
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TokenPayload is the decoded form of Credential.Credentials.
type TokenPayload struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ClientID     string    `json:"client_id,omitempty"`
	ClientSecret string    `json:"client_secret,omitempty"`
	APIToken     string    `json:"api_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// DecodePayload parses the opaque credentials blob.
// An empty blob decodes to a zero payload rather than an error.
func (c *Credential) DecodePayload() (TokenPayload, error) {
	var p TokenPayload
	if c.Credentials == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(c.Credentials), &p); err != nil {
		return TokenPayload{}, err
	}
	return p, nil
}

// SetPayload serializes the payload back into the credentials blob.
func (c *Credential) SetPayload(p TokenPayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	c.Credentials = string(data)
	return nil
}

// ConfigMap parses the provider-specific config blob.
func (c *Credential) ConfigMap() map[string]string {
	cfg := map[string]string{}
	if c.Config == "" {
		return cfg
	}
	if err := json.Unmarshal([]byte(c.Config), &cfg); err != nil {
		return map[string]string{}
	}
	return cfg
}

// SetConfigMap serializes provider-specific config.
func (c *Credential) SetConfigMap(cfg map[string]string) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	c.Config = string(data)
	return nil
}
