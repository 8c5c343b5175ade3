package connect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/zfogg/beacon/internal/config"
	"github.com/zfogg/beacon/internal/database"
	"github.com/zfogg/beacon/internal/integrations"
	"github.com/zfogg/beacon/internal/providers/google"
	"github.com/zfogg/beacon/internal/providers/linkedin"
	"github.com/zfogg/beacon/internal/providers/meta"
	"github.com/zfogg/beacon/internal/providers/webflow"
	"golang.org/x/oauth2"
)

const testOrg = "org-1"

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// fakeProviders serves the token endpoint and every profile endpoint the
// connect flow touches.
func fakeProviders(t *testing.T, refreshTokenOnExchange string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		switch r.Form.Get("grant_type") {
		case "authorization_code":
			if r.Form.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				writeJSON(w, map[string]string{"error": "invalid_grant"})
				return
			}
			writeJSON(w, map[string]any{
				"access_token":  "short-token",
				"token_type":    "Bearer",
				"expires_in":    3600,
				"refresh_token": refreshTokenOnExchange,
			})
		case "refresh_token":
			if r.Form.Get("refresh_token") != "refresh-1" {
				w.WriteHeader(http.StatusBadRequest)
				writeJSON(w, map[string]string{"error": "invalid_grant"})
				return
			}
			writeJSON(w, map[string]any{
				"access_token": "refreshed-token",
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
		}
	})

	mux.HandleFunc("/v1/userinfo", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"sub": "g-1", "email": "owner@example.com"})
	})

	mux.HandleFunc("/v19.0/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"id": "fb-1", "name": "Owner"})
	})
	mux.HandleFunc("/v19.0/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fb_exchange_token", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "short-token", r.URL.Query().Get("fb_exchange_token"))
		writeJSON(w, map[string]any{"access_token": "long-token", "token_type": "bearer", "expires_in": 5184000})
	})
	mux.HandleFunc("/v19.0/me/accounts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "long-token", r.URL.Query().Get("access_token"))
		writeJSON(w, map[string]any{"data": []map[string]string{
			{"id": "page-1", "name": "Acme Page", "access_token": "page-token-1"},
			{"id": "page-2", "name": "Other Page", "access_token": "page-token-2"},
		}})
	})
	mux.HandleFunc("/v19.0/page-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"id":                         "page-1",
			"instagram_business_account": map[string]string{"id": "ig-1", "username": "acme"},
		})
	})
	mux.HandleFunc("/v19.0/page-2", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": "page-2"})
	})

	mux.HandleFunc("/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"sub": "li-1", "name": "Ada Lovelace"})
	})
	mux.HandleFunc("/v2/organizationAcls", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"elements": []map[string]string{
			{"organization": "urn:li:organization:42", "role": "ADMINISTRATOR", "state": "APPROVED"},
		}})
	})

	mux.HandleFunc("/v2/sites", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer wf-token" {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]string{"message": "invalid token"})
			return
		}
		writeJSON(w, map[string]any{"sites": []map[string]string{{"id": "site-1", "displayName": "Acme Site"}}})
	})
	mux.HandleFunc("/v2/sites/site-1/collections", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"collections": []map[string]string{
			{"id": "col-authors", "slug": "authors"},
			{"id": "col-blog", "slug": "blog"},
		}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func oauthConfigs(base string) *config.OAuthConfig {
	endpoint := oauth2.Endpoint{
		AuthURL:   base + "/auth",
		TokenURL:  base + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	mk := func(p string, scopes []string) *oauth2.Config {
		return &oauth2.Config{
			ClientID:     p + "-client",
			ClientSecret: p + "-secret",
			RedirectURL:  config.CallbackURL("https://api.example.com", p),
			Scopes:       scopes,
			Endpoint:     endpoint,
		}
	}
	return &config.OAuthConfig{
		Google:   mk("google", config.GoogleScopes),
		Facebook: mk("facebook", config.FacebookScopes),
		LinkedIn: mk("linkedin", config.LinkedInScopes),
	}
}

type ConnectTestSuite struct {
	suite.Suite
	srv   *httptest.Server
	store *integrations.GormStore
	svc   *Service
	ctx   context.Context
}

func (s *ConnectTestSuite) SetupTest() {
	db, err := database.OpenInMemory()
	s.Require().NoError(err)

	s.srv = fakeProviders(s.T(), "refresh-1")
	s.store = integrations.NewGormStore(db, nil)
	s.ctx = context.Background()
	s.svc = NewService(Options{
		Store: s.store,
		OAuth: oauthConfigs(s.srv.URL),
		Clients: Clients{
			Google:   google.New(google.EndpointsAt(s.srv.URL), ""),
			Meta:     meta.New(s.srv.URL, "v19.0"),
			LinkedIn: linkedin.New(s.srv.URL, "202405"),
			Webflow:  webflow.New(s.srv.URL),
		},
		StateSecret:        []byte("state-secret"),
		FrontendURL:        "https://app.example.com",
		LinkedInOrgPosting: true,
	})
}

func (s *ConnectTestSuite) begin(p integrations.Provider, returnTo string) (*url.URL, string) {
	authURL, err := s.svc.Begin(s.ctx, testOrg, "user-1", p, returnTo)
	s.Require().NoError(err)
	u, err := url.Parse(authURL)
	s.Require().NoError(err)
	return u, u.Query().Get("state")
}

func (s *ConnectTestSuite) TestBeginGoogle() {
	u, state := s.begin(integrations.Google, "/dashboard")
	q := u.Query()

	s.Equal("/auth", u.Path)
	s.Equal("google-client", q.Get("client_id"))
	s.Equal("https://api.example.com/api/v1/connect/google/callback", q.Get("redirect_uri"))
	s.Equal("offline", q.Get("access_type"))
	s.Equal("consent", q.Get("prompt"))
	s.Equal("true", q.Get("include_granted_scopes"))
	s.Contains(q.Get("scope"), "analytics.readonly")

	st, err := s.svc.state.Verify(state, integrations.Google)
	s.Require().NoError(err)
	s.Equal(testOrg, st.OrgID)
	s.Equal("/dashboard", st.ReturnTo)
}

func (s *ConnectTestSuite) TestBeginErrors() {
	_, err := s.svc.Begin(s.ctx, testOrg, "user-1", integrations.Webflow, "")
	s.ErrorIs(err, ErrNotOAuth)

	s.svc.oauth.LinkedIn = nil
	_, err = s.svc.Begin(s.ctx, testOrg, "user-1", integrations.LinkedIn, "")
	s.ErrorIs(err, ErrNotConfigured)
}

func (s *ConnectTestSuite) TestBeginInstagramUsesFacebookGrant() {
	u, state := s.begin(integrations.Instagram, "")
	s.Equal("facebook-client", u.Query().Get("client_id"))

	_, err := s.svc.state.Verify(state, integrations.Facebook)
	s.NoError(err)
}

func (s *ConnectTestSuite) TestCompleteGoogle() {
	_, state := s.begin(integrations.Google, "/settings")

	redirect, err := s.svc.Complete(s.ctx, integrations.Google, CallbackParams{Code: "good-code", State: state})
	s.Require().NoError(err)
	s.Equal("https://app.example.com/settings?connected=google", redirect)

	cfg, err := s.store.Load(s.ctx, testOrg, integrations.Google)
	s.Require().NoError(err)
	s.Equal("short-token", cfg.AccessToken)
	s.Equal("refresh-1", cfg.RefreshToken)
	s.Equal("owner@example.com", cfg.AccountName)
	s.NotNil(cfg.Expiry)
	s.NotNil(cfg.ConnectedAt)
}

func (s *ConnectTestSuite) TestReconnectPreservesRefreshToken() {
	_, state := s.begin(integrations.Google, "")
	_, err := s.svc.Complete(s.ctx, integrations.Google, CallbackParams{Code: "good-code", State: state})
	s.Require().NoError(err)

	// Second consent returns no refresh token.
	s.srv.Close()
	s.srv = fakeProviders(s.T(), "")
	s.svc.oauth = oauthConfigs(s.srv.URL)
	s.svc.clients.Google = google.New(google.EndpointsAt(s.srv.URL), "")

	_, state = s.begin(integrations.Google, "")
	_, err = s.svc.Complete(s.ctx, integrations.Google, CallbackParams{Code: "good-code", State: state})
	s.Require().NoError(err)

	cfg, err := s.store.Load(s.ctx, testOrg, integrations.Google)
	s.Require().NoError(err)
	s.Equal("refresh-1", cfg.RefreshToken)
}

func (s *ConnectTestSuite) TestCompleteFacebookConnectsInstagram() {
	_, state := s.begin(integrations.Facebook, "")

	redirect, err := s.svc.Complete(s.ctx, integrations.Facebook, CallbackParams{Code: "good-code", State: state})
	s.Require().NoError(err)
	s.Equal("https://app.example.com/settings/connections?connected=facebook", redirect)

	fb, err := s.store.Load(s.ctx, testOrg, integrations.Facebook)
	s.Require().NoError(err)
	s.Equal("long-token", fb.AccessToken)
	s.Equal("page-1", fb.Setting(integrations.SettingPageID))
	s.Equal("page-token-1", fb.Setting(integrations.SettingPageAccessToken))
	s.Require().NotNil(fb.Expiry)
	s.True(fb.Expiry.After(time.Now().Add(50 * 24 * time.Hour)))

	ig, err := s.store.Load(s.ctx, testOrg, integrations.Instagram)
	s.Require().NoError(err)
	s.Equal("ig-1", ig.Setting(integrations.SettingIGUserID))
	s.Equal("acme", ig.AccountName)
	s.Equal("long-token", ig.AccessToken)
}

func (s *ConnectTestSuite) TestCompleteFacebookKeepsChosenPage() {
	s.Require().NoError(s.store.Save(s.ctx, testOrg, integrations.Facebook, integrations.ProviderConfig{
		AccessToken: "old",
		Settings:    map[string]string{integrations.SettingPageID: "page-2"},
	}))

	_, state := s.begin(integrations.Facebook, "")
	_, err := s.svc.Complete(s.ctx, integrations.Facebook, CallbackParams{Code: "good-code", State: state})
	s.Require().NoError(err)

	fb, err := s.store.Load(s.ctx, testOrg, integrations.Facebook)
	s.Require().NoError(err)
	s.Equal("page-2", fb.Setting(integrations.SettingPageID))

	_, err = s.store.Load(s.ctx, testOrg, integrations.Instagram)
	s.ErrorIs(err, integrations.ErrNotConnected)
}

func (s *ConnectTestSuite) TestSelectFacebookPage() {
	_, state := s.begin(integrations.Facebook, "")
	_, err := s.svc.Complete(s.ctx, integrations.Facebook, CallbackParams{Code: "good-code", State: state})
	s.Require().NoError(err)

	cfg, err := s.svc.SelectFacebookPage(s.ctx, testOrg, "page-2")
	s.Require().NoError(err)
	s.Equal("page-2", cfg.Setting(integrations.SettingPageID))
	s.Equal("Other Page", cfg.Setting(integrations.SettingPageName))
	s.Equal("page-token-2", cfg.Setting(integrations.SettingPageAccessToken))
	s.Equal("long-token", cfg.AccessToken)

	fb, err := s.store.Load(s.ctx, testOrg, integrations.Facebook)
	s.Require().NoError(err)
	s.Equal("page-token-2", fb.Setting(integrations.SettingPageAccessToken))

	// page-2 has no Instagram account, so page-1's is dropped
	_, err = s.store.Load(s.ctx, testOrg, integrations.Instagram)
	s.ErrorIs(err, integrations.ErrNotConnected)

	_, err = s.svc.SelectFacebookPage(s.ctx, testOrg, "page-1")
	s.Require().NoError(err)
	ig, err := s.store.Load(s.ctx, testOrg, integrations.Instagram)
	s.Require().NoError(err)
	s.Equal("ig-1", ig.Setting(integrations.SettingIGUserID))
}

func (s *ConnectTestSuite) TestSelectFacebookPageRejectsUnknownPage() {
	_, err := s.svc.SelectFacebookPage(s.ctx, testOrg, "page-1")
	s.ErrorIs(err, integrations.ErrNotConnected)

	_, state := s.begin(integrations.Facebook, "")
	_, err = s.svc.Complete(s.ctx, integrations.Facebook, CallbackParams{Code: "good-code", State: state})
	s.Require().NoError(err)

	_, err = s.svc.SelectFacebookPage(s.ctx, testOrg, "someone-elses-page")
	s.ErrorIs(err, ErrPageNotManaged)
	s.Equal("VALIDATION_ERROR", string(APIError(integrations.Facebook, err).Code))

	fb, err := s.store.Load(s.ctx, testOrg, integrations.Facebook)
	s.Require().NoError(err)
	s.Equal("page-1", fb.Setting(integrations.SettingPageID))
	s.Equal("page-token-1", fb.Setting(integrations.SettingPageAccessToken))
}

func (s *ConnectTestSuite) TestCompleteLinkedIn() {
	_, state := s.begin(integrations.LinkedIn, "")
	_, err := s.svc.Complete(s.ctx, integrations.LinkedIn, CallbackParams{Code: "good-code", State: state})
	s.Require().NoError(err)

	cfg, err := s.store.Load(s.ctx, testOrg, integrations.LinkedIn)
	s.Require().NoError(err)
	s.Equal("urn:li:person:li-1", cfg.Setting(integrations.SettingAuthorURN))
	s.Equal("urn:li:organization:42", cfg.Setting(integrations.SettingOrganizationURN))
}

func (s *ConnectTestSuite) TestCompleteFailures() {
	redirect, err := s.svc.Complete(s.ctx, integrations.Google, CallbackParams{Code: "good-code", State: "forged"})
	s.ErrorIs(err, ErrInvalidState)
	s.Contains(redirect, "error=invalid_state")

	_, fbState := s.begin(integrations.Facebook, "")
	_, err = s.svc.Complete(s.ctx, integrations.Google, CallbackParams{Code: "good-code", State: fbState})
	s.ErrorIs(err, ErrInvalidState)

	_, state := s.begin(integrations.Google, "")
	redirect, err = s.svc.Complete(s.ctx, integrations.Google, CallbackParams{State: state, Error: "access_denied", ErrorDescription: "user said no"})
	s.ErrorIs(err, ErrProviderDenied)
	s.Contains(redirect, "error=access_denied")

	redirect, err = s.svc.Complete(s.ctx, integrations.Google, CallbackParams{Code: "bad-code", State: state})
	s.Error(err)
	s.Contains(redirect, "error=connect_failed")

	_, err = s.store.Load(s.ctx, testOrg, integrations.Google)
	s.ErrorIs(err, integrations.ErrNotConnected)
}

func (s *ConnectTestSuite) TestExpiredState() {
	_, state := s.begin(integrations.Google, "")
	s.svc.state.now = func() time.Time { return time.Now().Add(stateTTL + time.Minute) }

	_, err := s.svc.Complete(s.ctx, integrations.Google, CallbackParams{Code: "good-code", State: state})
	s.ErrorIs(err, ErrInvalidState)
}

func (s *ConnectTestSuite) TestTokenRefresh() {
	past := time.Now().Add(-time.Hour).UTC()
	s.Require().NoError(s.store.Save(s.ctx, testOrg, integrations.Google, integrations.ProviderConfig{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		Expiry:       &past,
		Settings:     map[string]string{integrations.SettingGA4Property: "123"},
	}))

	cfg, err := s.svc.Token(s.ctx, testOrg, integrations.Google)
	s.Require().NoError(err)
	s.Equal("refreshed-token", cfg.AccessToken)
	s.Equal("refresh-1", cfg.RefreshToken)
	s.Equal("123", cfg.Setting(integrations.SettingGA4Property))

	stored, err := s.store.Load(s.ctx, testOrg, integrations.Google)
	s.Require().NoError(err)
	s.Equal("refreshed-token", stored.AccessToken)
	s.True(stored.Expiry.After(time.Now()))
}

func (s *ConnectTestSuite) TestTokenExpiredWithoutRefresh() {
	past := time.Now().Add(-time.Hour).UTC()
	s.Require().NoError(s.store.Save(s.ctx, testOrg, integrations.Facebook, integrations.ProviderConfig{
		AccessToken: "stale",
		Expiry:      &past,
	}))

	_, err := s.svc.Token(s.ctx, testOrg, integrations.Facebook)
	s.ErrorIs(err, ErrTokenExpired)
	s.Equal("NOT_CONNECTED", string(APIError(integrations.Facebook, err).Code))

	_, err = s.svc.Token(s.ctx, testOrg, integrations.LinkedIn)
	s.ErrorIs(err, integrations.ErrNotConnected)
}

func (s *ConnectTestSuite) TestTokenRefreshRejected() {
	past := time.Now().Add(-time.Hour).UTC()
	s.Require().NoError(s.store.Save(s.ctx, testOrg, integrations.Google, integrations.ProviderConfig{
		AccessToken:  "stale",
		RefreshToken: "revoked",
		Expiry:       &past,
	}))

	_, err := s.svc.Token(s.ctx, testOrg, integrations.Google)
	s.ErrorIs(err, ErrTokenExpired)
}

func (s *ConnectTestSuite) TestConnectWebflow() {
	_, err := s.svc.ConnectWithToken(s.ctx, testOrg, "bad-token")
	s.Error(err)
	s.Equal("NOT_CONNECTED", string(APIError(integrations.Webflow, err).Code))

	cfg, err := s.svc.ConnectWithToken(s.ctx, testOrg, "wf-token")
	s.Require().NoError(err)
	s.Equal("site-1", cfg.Setting(integrations.SettingSiteID))
	s.Equal("col-blog", cfg.Setting(integrations.SettingCollectionID))
	s.Equal("Acme Site", cfg.AccountName)
}

func (s *ConnectTestSuite) TestDisconnectFacebookRemovesInstagram() {
	_, state := s.begin(integrations.Facebook, "")
	_, err := s.svc.Complete(s.ctx, integrations.Facebook, CallbackParams{Code: "good-code", State: state})
	s.Require().NoError(err)

	s.Require().NoError(s.svc.Disconnect(s.ctx, testOrg, integrations.Facebook))

	_, err = s.store.Load(s.ctx, testOrg, integrations.Facebook)
	s.ErrorIs(err, integrations.ErrNotConnected)
	_, err = s.store.Load(s.ctx, testOrg, integrations.Instagram)
	s.ErrorIs(err, integrations.ErrNotConnected)
}

func TestConnectTestSuite(t *testing.T) {
	suite.Run(t, new(ConnectTestSuite))
}

func TestSanitizeReturnTo(t *testing.T) {
	tests := map[string]string{
		"":                    defaultReturnTo,
		"/dashboard":          "/dashboard",
		"//evil.example.com":  defaultReturnTo,
		"https://evil.com":    defaultReturnTo,
		"/\\evil.example.com": defaultReturnTo,
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeReturnTo(in), in)
	}
}

func TestRedirectKeepsReturnQuery(t *testing.T) {
	svc := NewService(Options{FrontendURL: "https://app.example.com", StateSecret: []byte("x")})

	assert.Equal(t, "https://app.example.com/settings?connected=google&tab=connections",
		svc.redirect("/settings?tab=connections", integrations.Google, nil))
	assert.Equal(t, "https://app.example.com/settings?error=access_denied&provider=google&tab=x",
		svc.redirect("/settings?tab=x&connected=google", integrations.Google, ErrProviderDenied))
	assert.Equal(t, "https://app.example.com/settings/connections?connected=webflow",
		svc.redirect("https://evil.example.com/?a=b", integrations.Webflow, nil))
}

func TestStateRejectsOtherSecret(t *testing.T) {
	token, err := NewStateSigner([]byte("a")).Sign("org", "user", integrations.Google, "/")
	require.NoError(t, err)

	_, err = NewStateSigner([]byte("b")).Verify(token, integrations.Google)
	assert.ErrorIs(t, err, ErrInvalidState)
}
