package integrations

import (
	"time"

	"golang.org/x/oauth2"
)

// ProviderConfig is the configuration blob stored per organization per provider.
type ProviderConfig struct {
	AccessToken  string            `json:"accessToken,omitempty"`
	RefreshToken string            `json:"refreshToken,omitempty"`
	TokenType    string            `json:"tokenType,omitempty"`
	Expiry       *time.Time        `json:"expiry,omitempty"`
	Scopes       []string          `json:"scopes,omitempty"`
	AccountID    string            `json:"accountId,omitempty"`
	AccountName  string            `json:"accountName,omitempty"`
	Settings     map[string]string `json:"settings,omitempty"`
	ConnectedAt  *time.Time        `json:"connectedAt,omitempty"`
	UpdatedAt    *time.Time        `json:"updatedAt,omitempty"`
}

// Setting returns a settings value or "".
func (c *ProviderConfig) Setting(key string) string {
	if c == nil || c.Settings == nil {
		return ""
	}
	return c.Settings[key]
}

// SetSetting sets a settings value, allocating the map if needed.
func (c *ProviderConfig) SetSetting(key, value string) {
	if c.Settings == nil {
		c.Settings = make(map[string]string)
	}
	c.Settings[key] = value
}

// Expired reports whether the access token is past its expiry, with a small
// skew so a token is not used in its final seconds.
func (c *ProviderConfig) Expired(now time.Time) bool {
	if c.Expiry == nil || c.Expiry.IsZero() {
		return false
	}
	return !now.Add(30 * time.Second).Before(*c.Expiry)
}

// OAuthToken converts the stored tokens into an oauth2.Token.
func (c *ProviderConfig) OAuthToken() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
	}
	if c.Expiry != nil {
		tok.Expiry = *c.Expiry
	}
	return tok
}

// FromOAuthToken builds a config update from a freshly issued token.
func FromOAuthToken(tok *oauth2.Token) ProviderConfig {
	cfg := ProviderConfig{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		cfg.Expiry = &exp
	}
	return cfg
}

// MergeConfig merges an update into the previously stored config.
//
// Non-empty tokens in the update replace stored ones. An empty refresh token
// keeps the previous one, since providers only return it on first consent.
// Settings merge key by key; an empty value deletes the key.
func MergeConfig(old *ProviderConfig, update ProviderConfig) ProviderConfig {
	var merged ProviderConfig
	if old != nil {
		merged = *old
		merged.Settings = make(map[string]string, len(old.Settings))
		for k, v := range old.Settings {
			merged.Settings[k] = v
		}
	}

	if update.AccessToken != "" {
		merged.AccessToken = update.AccessToken
		// A new access token without expiry must not inherit the old expiry.
		merged.Expiry = update.Expiry
	} else if update.Expiry != nil {
		merged.Expiry = update.Expiry
	}
	if update.RefreshToken != "" {
		merged.RefreshToken = update.RefreshToken
	}
	if update.TokenType != "" {
		merged.TokenType = update.TokenType
	}
	if len(update.Scopes) > 0 {
		merged.Scopes = update.Scopes
	}
	if update.AccountID != "" {
		merged.AccountID = update.AccountID
	}
	if update.AccountName != "" {
		merged.AccountName = update.AccountName
	}
	if update.ConnectedAt != nil {
		merged.ConnectedAt = update.ConnectedAt
	}

	for k, v := range update.Settings {
		if v == "" {
			delete(merged.Settings, k)
			continue
		}
		if merged.Settings == nil {
			merged.Settings = make(map[string]string)
		}
		merged.Settings[k] = v
	}
	if len(merged.Settings) == 0 {
		merged.Settings = nil
	}

	return merged
}

// Status is the display summary of one provider connection.
type Status struct {
	Provider        Provider          `json:"provider"`
	Connected       bool              `json:"connected"`
	AccountName     string            `json:"account_name,omitempty"`
	ExpiresAt       *time.Time        `json:"expires_at,omitempty"`
	Expired         bool              `json:"expired"`
	HasRefreshToken bool              `json:"has_refresh_token"`
	ConnectedAt     *time.Time        `json:"connected_at,omitempty"`
	Settings        map[string]string `json:"settings,omitempty"`
}

// publicSettings strips secrets from settings before they leave the server.
func publicSettings(s map[string]string) map[string]string {
	if len(s) == 0 {
		return nil
	}
	out := make(map[string]string, len(s))
	for k, v := range s {
		if k == SettingPageAccessToken {
			continue
		}
		out[k] = v
	}
	return out
}

// StatusOf summarizes a stored config for display.
func StatusOf(p Provider, cfg *ProviderConfig, now time.Time) Status {
	if cfg == nil {
		return Status{Provider: p}
	}
	return Status{
		Provider:        p,
		Connected:       cfg.AccessToken != "",
		AccountName:     cfg.AccountName,
		ExpiresAt:       cfg.Expiry,
		Expired:         cfg.Expired(now) && cfg.RefreshToken == "",
		HasRefreshToken: cfg.RefreshToken != "",
		ConnectedAt:     cfg.ConnectedAt,
		Settings:        publicSettings(cfg.Settings),
	}
}
