// Package connect runs the OAuth authorization-code flows that link an
// organization to its provider accounts, and resolves usable access tokens
// for the rest of the server.
package connect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/zfogg/beacon/internal/config"
	"github.com/zfogg/beacon/internal/integrations"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/metrics"
	"github.com/zfogg/beacon/internal/providers/google"
	"github.com/zfogg/beacon/internal/providers/linkedin"
	"github.com/zfogg/beacon/internal/providers/meta"
	"github.com/zfogg/beacon/internal/providers/webflow"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var (
	ErrNotOAuth        = errors.New("provider does not use oauth")
	ErrNotConfigured   = errors.New("provider is not configured on this server")
	ErrTokenExpired    = errors.New("access token expired")
	ErrProviderDenied  = errors.New("authorization was denied")
	ErrNoWebflowSites  = errors.New("webflow token has no sites")
	ErrMissingCallback = errors.New("callback is missing code")
	ErrPageNotManaged  = errors.New("page is not managed by the connected facebook account")
)

// Clients are the provider API clients used while connecting.
type Clients struct {
	Google   *google.Client
	Meta     *meta.Client
	LinkedIn *linkedin.Client
	Webflow  *webflow.Client
}

// Options configures a Service.
type Options struct {
	Store       integrations.Store
	OAuth       *config.OAuthConfig
	Clients     Clients
	StateSecret []byte
	FrontendURL string

	// LinkedInOrgPosting looks up an administered organization on connect.
	LinkedInOrgPosting bool

	// HTTPClient is used for token exchange and refresh. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

// Service connects providers and hands out their tokens.
type Service struct {
	store       integrations.Store
	oauth       *config.OAuthConfig
	clients     Clients
	state       *StateSigner
	frontendURL string
	orgPosting  bool
	httpClient  *http.Client
	now         func() time.Time
}

// NewService creates a connect service.
func NewService(opts Options) *Service {
	oauthCfg := opts.OAuth
	if oauthCfg == nil {
		oauthCfg = &config.OAuthConfig{}
	}
	return &Service{
		store:       opts.Store,
		oauth:       oauthCfg,
		clients:     opts.Clients,
		state:       NewStateSigner(opts.StateSecret),
		frontendURL: opts.FrontendURL,
		orgPosting:  opts.LinkedInOrgPosting,
		httpClient:  opts.HTTPClient,
		now:         time.Now,
	}
}

// oauthProvider maps a provider onto the grant that serves it. Instagram is
// authorized through Facebook.
func oauthProvider(p integrations.Provider) integrations.Provider {
	if p == integrations.Instagram {
		return integrations.Facebook
	}
	return p
}

func (s *Service) oauthConfig(p integrations.Provider) (*oauth2.Config, error) {
	var cfg *oauth2.Config
	switch oauthProvider(p) {
	case integrations.Google:
		cfg = s.oauth.Google
	case integrations.Facebook:
		cfg = s.oauth.Facebook
	case integrations.LinkedIn:
		cfg = s.oauth.LinkedIn
	default:
		return nil, ErrNotOAuth
	}
	if cfg == nil {
		return nil, ErrNotConfigured
	}
	return cfg, nil
}

func (s *Service) oauthContext(ctx context.Context) context.Context {
	if s.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// Begin returns the provider's authorization URL for orgID. Instagram starts
// the Facebook flow.
func (s *Service) Begin(ctx context.Context, orgID, userID string, p integrations.Provider, returnTo string) (string, error) {
	p = oauthProvider(p)
	cfg, err := s.oauthConfig(p)
	if err != nil {
		return "", err
	}

	state, err := s.state.Sign(orgID, userID, p, returnTo)
	if err != nil {
		return "", err
	}

	var opts []oauth2.AuthCodeOption
	if p == integrations.Google {
		opts = append(opts,
			oauth2.AccessTypeOffline,
			oauth2.SetAuthURLParam("prompt", "consent"),
			oauth2.SetAuthURLParam("include_granted_scopes", "true"),
		)
	}

	logger.Log.Info("OAuth flow started",
		logger.WithOrgID(orgID),
		logger.WithUserID(userID),
		logger.WithProvider(string(p)),
	)
	return cfg.AuthCodeURL(state, opts...), nil
}

// CallbackParams are the query parameters a provider redirects back with.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Complete finishes an authorization. It always returns the dashboard URL to
// redirect the browser to, with ?connected= on success or ?error= on failure.
func (s *Service) Complete(ctx context.Context, p integrations.Provider, params CallbackParams) (string, error) {
	st, err := s.state.Verify(params.State, p)
	if err != nil {
		return s.redirect(defaultReturnTo, p, err), err
	}

	if params.Error != "" {
		err := fmt.Errorf("%w: %s %s", ErrProviderDenied, params.Error, params.ErrorDescription)
		return s.redirect(st.ReturnTo, p, err), err
	}
	if params.Code == "" {
		return s.redirect(st.ReturnTo, p, ErrMissingCallback), ErrMissingCallback
	}

	cfg, err := s.oauthConfig(p)
	if err != nil {
		return s.redirect(st.ReturnTo, p, err), err
	}

	tok, err := cfg.Exchange(s.oauthContext(ctx), params.Code)
	if err != nil {
		err = fmt.Errorf("exchange code: %w", err)
		return s.redirect(st.ReturnTo, p, err), err
	}

	if err := s.storeGrant(ctx, st.OrgID, p, tok); err != nil {
		logger.Log.Warn("OAuth connect failed",
			logger.WithOrgID(st.OrgID),
			logger.WithProvider(string(p)),
			zap.Error(err),
		)
		return s.redirect(st.ReturnTo, p, err), err
	}

	logger.Log.Info("Provider connected",
		logger.WithOrgID(st.OrgID),
		logger.WithUserID(st.UserID),
		logger.WithProvider(string(p)),
	)
	return s.redirect(st.ReturnTo, p, nil), nil
}

// redirect builds the dashboard URL for the end of a flow, keeping any query
// the return path already carries.
func (s *Service) redirect(returnTo string, p integrations.Provider, err error) string {
	target, perr := url.Parse(sanitizeReturnTo(returnTo))
	if perr != nil {
		target = &url.URL{Path: defaultReturnTo}
	}
	q := target.Query()
	for _, k := range []string{"connected", "provider", "error"} {
		q.Del(k)
	}
	if err != nil {
		q.Set("provider", string(p))
		q.Set("error", errorSlug(err))
	} else {
		q.Set("connected", string(p))
	}
	target.RawQuery = q.Encode()
	return s.frontendURL + target.String()
}

func errorSlug(err error) string {
	switch {
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrProviderDenied):
		return "access_denied"
	case errors.Is(err, ErrNotConfigured), errors.Is(err, ErrNotOAuth):
		return "not_configured"
	default:
		return "connect_failed"
	}
}

// storeGrant fetches the provider profile for a fresh token and merges both
// into the stored config.
func (s *Service) storeGrant(ctx context.Context, orgID string, p integrations.Provider, tok *oauth2.Token) error {
	update := integrations.FromOAuthToken(tok)
	now := s.now().UTC()
	update.ConnectedAt = &now
	if cfg, err := s.oauthConfig(p); err == nil {
		update.Scopes = cfg.Scopes
	}

	switch p {
	case integrations.Google:
		info, err := s.clients.Google.UserInfo(ctx, tok.AccessToken)
		if err != nil {
			return fmt.Errorf("google userinfo: %w", err)
		}
		update.AccountID = info.Sub
		update.AccountName = info.Email

	case integrations.Facebook:
		return s.storeFacebookGrant(ctx, orgID, update)

	case integrations.LinkedIn:
		info, err := s.clients.LinkedIn.UserInfo(ctx, tok.AccessToken)
		if err != nil {
			return fmt.Errorf("linkedin userinfo: %w", err)
		}
		update.AccountID = info.Sub
		update.AccountName = info.Name
		update.SetSetting(integrations.SettingAuthorURN, info.PersonURN())

		if s.orgPosting {
			orgs, err := s.clients.LinkedIn.AdministeredOrganizations(ctx, tok.AccessToken)
			if err != nil {
				logger.Log.Warn("Could not list LinkedIn organizations", logger.WithOrgID(orgID), zap.Error(err))
			} else if len(orgs) > 0 {
				existing, _ := s.store.Load(ctx, orgID, p)
				if existing.Setting(integrations.SettingOrganizationURN) == "" {
					update.SetSetting(integrations.SettingOrganizationURN, orgs[0].Organization)
				}
			}
		}
	}

	_, err := s.store.Merge(ctx, orgID, p, update)
	return err
}

// storeFacebookGrant swaps the short-lived user token for a long-lived one,
// picks the managed page and, when the page has a linked Instagram business
// account, connects Instagram with the same grant.
func (s *Service) storeFacebookGrant(ctx context.Context, orgID string, update integrations.ProviderConfig) error {
	client := s.clients.Meta
	cfg := s.oauth.Facebook

	me, err := client.Me(ctx, update.AccessToken)
	if err != nil {
		return fmt.Errorf("facebook me: %w", err)
	}
	update.AccountID = me.ID
	update.AccountName = me.Name

	long, err := client.ExchangeLongLivedToken(ctx, cfg.ClientID, cfg.ClientSecret, update.AccessToken)
	if err != nil {
		return fmt.Errorf("facebook long-lived token: %w", err)
	}
	update.AccessToken = long.AccessToken
	update.Expiry = nil
	if long.ExpiresIn > 0 {
		exp := s.now().Add(time.Duration(long.ExpiresIn) * time.Second).UTC()
		update.Expiry = &exp
	}

	pages, err := client.ListPages(ctx, update.AccessToken)
	if err != nil {
		return fmt.Errorf("facebook pages: %w", err)
	}

	var page *meta.Page
	if len(pages) > 0 {
		page = &pages[0]
		if existing, err := s.store.Load(ctx, orgID, integrations.Facebook); err == nil {
			want := existing.Setting(integrations.SettingPageID)
			for i := range pages {
				if pages[i].ID == want {
					page = &pages[i]
					break
				}
			}
		}
		update.SetSetting(integrations.SettingPageID, page.ID)
		update.SetSetting(integrations.SettingPageName, page.Name)
		update.SetSetting(integrations.SettingPageAccessToken, page.AccessToken)
	}

	if _, err := s.store.Merge(ctx, orgID, integrations.Facebook, update); err != nil {
		return err
	}

	if page == nil {
		logger.Log.Info("Facebook account has no managed pages", logger.WithOrgID(orgID))
		return nil
	}
	if _, err := s.linkInstagram(ctx, orgID, update, page); err != nil {
		logger.Log.Warn("Could not look up linked Instagram account",
			logger.WithOrgID(orgID),
			zap.String("page_id", page.ID),
			zap.Error(err),
		)
	}
	return nil
}

// linkInstagram stores the Instagram business account linked to page, if
// any, under the Facebook grant. It reports whether an account was linked.
func (s *Service) linkInstagram(ctx context.Context, orgID string, grant integrations.ProviderConfig, page *meta.Page) (bool, error) {
	ig, err := s.clients.Meta.PageInstagramAccount(ctx, page.AccessToken, page.ID)
	if err != nil {
		return false, err
	}
	if ig == nil {
		return false, nil
	}

	igUpdate := integrations.ProviderConfig{
		AccessToken: grant.AccessToken,
		Expiry:      grant.Expiry,
		Scopes:      grant.Scopes,
		AccountID:   ig.ID,
		AccountName: ig.Username,
		ConnectedAt: grant.ConnectedAt,
		Settings: map[string]string{
			integrations.SettingIGUserID:   ig.ID,
			integrations.SettingPageID:     page.ID,
			integrations.SettingIGUsername: ig.Username,
		},
	}
	if _, err := s.store.Merge(ctx, orgID, integrations.Instagram, igUpdate); err != nil {
		return false, err
	}
	return true, nil
}

// SelectFacebookPage switches the organization's Facebook connection to
// another page managed by the same account. The page name and page token
// are looked up with the stored user token so they always match page_id,
// and Instagram follows the page it is linked to.
func (s *Service) SelectFacebookPage(ctx context.Context, orgID, pageID string) (*integrations.ProviderConfig, error) {
	grant, err := s.Token(ctx, orgID, integrations.Facebook)
	if err != nil {
		return nil, err
	}
	pages, err := s.clients.Meta.ListPages(ctx, grant.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("facebook pages: %w", err)
	}
	var page *meta.Page
	for i := range pages {
		if pages[i].ID == pageID {
			page = &pages[i]
			break
		}
	}
	if page == nil {
		return nil, ErrPageNotManaged
	}

	update := integrations.ProviderConfig{Settings: map[string]string{
		integrations.SettingPageID:          page.ID,
		integrations.SettingPageName:        page.Name,
		integrations.SettingPageAccessToken: page.AccessToken,
	}}
	cfg, err := s.store.Merge(ctx, orgID, integrations.Facebook, update)
	if err != nil {
		return nil, err
	}

	linked, err := s.linkInstagram(ctx, orgID, *grant, page)
	switch {
	case err != nil:
		logger.Log.Warn("Could not look up linked Instagram account",
			logger.WithOrgID(orgID),
			zap.String("page_id", page.ID),
			zap.Error(err),
		)
	case !linked:
		// the previous page's Instagram account no longer belongs to this connection
		if err := s.store.Delete(ctx, orgID, integrations.Instagram); err != nil {
			return nil, err
		}
	}

	logger.Log.Info("Facebook page selected",
		logger.WithOrgID(orgID),
		zap.String("page_id", page.ID),
		zap.Bool("instagram", linked),
	)
	return cfg, nil
}

// ConnectWithToken stores a Webflow API token after checking it can list
// sites. The first site, and its blog-like collection, become the defaults.
func (s *Service) ConnectWithToken(ctx context.Context, orgID, token string) (*integrations.ProviderConfig, error) {
	sites, err := s.clients.Webflow.ListSites(ctx, token)
	if err != nil {
		return nil, err
	}
	if len(sites) == 0 {
		return nil, ErrNoWebflowSites
	}

	now := s.now().UTC()
	site := sites[0]
	update := integrations.ProviderConfig{
		AccessToken: token,
		TokenType:   "Bearer",
		AccountID:   site.ID,
		AccountName: site.DisplayName,
		ConnectedAt: &now,
		Settings:    map[string]string{integrations.SettingSiteID: site.ID},
	}

	collections, err := s.clients.Webflow.ListCollections(ctx, token, site.ID)
	if err != nil {
		logger.Log.Warn("Could not list Webflow collections", logger.WithOrgID(orgID), zap.Error(err))
	} else if c := pickCollection(collections); c != nil {
		update.SetSetting(integrations.SettingCollectionID, c.ID)
	}

	cfg, err := s.store.Merge(ctx, orgID, integrations.Webflow, update)
	if err != nil {
		return nil, err
	}
	logger.Log.Info("Provider connected", logger.WithOrgID(orgID), logger.WithProvider(string(integrations.Webflow)))
	return cfg, nil
}

func pickCollection(cs []webflow.Collection) *webflow.Collection {
	for i := range cs {
		switch cs[i].Slug {
		case "posts", "blog", "blog-posts", "articles":
			return &cs[i]
		}
	}
	if len(cs) == 1 {
		return &cs[0]
	}
	return nil
}

// Disconnect deletes the provider's stored config. Disconnecting Facebook
// also disconnects Instagram, which shares its grant.
func (s *Service) Disconnect(ctx context.Context, orgID string, p integrations.Provider) error {
	if err := s.store.Delete(ctx, orgID, p); err != nil {
		return err
	}
	if p == integrations.Facebook {
		if err := s.store.Delete(ctx, orgID, integrations.Instagram); err != nil {
			return err
		}
	}
	logger.Log.Info("Provider disconnected", logger.WithOrgID(orgID), logger.WithProvider(string(p)))
	return nil
}

// Config returns the stored config of p without checking or refreshing its
// token.
func (s *Service) Config(ctx context.Context, orgID string, p integrations.Provider) (*integrations.ProviderConfig, error) {
	return s.store.Load(ctx, orgID, p)
}

// Token returns the provider config with a usable access token, refreshing
// and persisting it first when it has expired.
func (s *Service) Token(ctx context.Context, orgID string, p integrations.Provider) (*integrations.ProviderConfig, error) {
	cfg, err := s.store.Load(ctx, orgID, p)
	if err != nil {
		return nil, err
	}
	if cfg.AccessToken == "" {
		return nil, integrations.ErrNotConnected
	}
	if !cfg.Expired(s.now()) {
		return cfg, nil
	}
	if cfg.RefreshToken == "" {
		return nil, ErrTokenExpired
	}

	oc, err := s.oauthConfig(p)
	if err != nil {
		return nil, ErrTokenExpired
	}

	m := metrics.Get()
	old := cfg.OAuthToken()
	// oauth2 uses a shorter expiry skew than Expired; force the refresh.
	old.Expiry = s.now().Add(-time.Minute)

	fresh, err := oc.TokenSource(s.oauthContext(ctx), old).Token()
	if err != nil {
		m.TokenRefreshTotal.WithLabelValues(string(p), "error").Inc()
		logger.Log.Warn("Token refresh failed",
			logger.WithOrgID(orgID),
			logger.WithProvider(string(p)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	}
	m.TokenRefreshTotal.WithLabelValues(string(p), "success").Inc()

	merged, err := s.store.Merge(ctx, orgID, p, integrations.FromOAuthToken(fresh))
	if err != nil {
		return nil, err
	}
	logger.Log.Debug("Token refreshed", logger.WithOrgID(orgID), logger.WithProvider(string(p)))
	return merged, nil
}
