package config

import (
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/linkedin"
)

// OAuth scopes requested per provider.
var (
	GoogleScopes = []string{
		"openid",
		"email",
		"profile",
		"https://www.googleapis.com/auth/analytics.readonly",
		"https://www.googleapis.com/auth/webmasters.readonly",
	}

	FacebookScopes = []string{
		"pages_show_list",
		"pages_read_engagement",
		"pages_manage_posts",
		"read_insights",
		"instagram_basic",
		"instagram_content_publish",
		"instagram_manage_insights",
		"business_management",
	}

	LinkedInScopes = []string{"openid", "profile", "email", "w_member_social"}

	LinkedInOrgScopes = []string{"w_organization_social", "r_organization_social", "rw_organization_admin"}
)

// OAuthConfig holds the OAuth client of every provider that uses the
// authorization-code flow. A nil entry means the provider is not configured.
type OAuthConfig struct {
	Google   *oauth2.Config
	Facebook *oauth2.Config
	LinkedIn *oauth2.Config
}

// CallbackURL is where a provider redirects back to after consent.
func CallbackURL(baseURL, provider string) string {
	return fmt.Sprintf("%s/api/v1/connect/%s/callback", baseURL, provider)
}

// FacebookEndpoint returns the versioned Facebook login endpoint.
func FacebookEndpoint(graphVersion string) oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   fmt.Sprintf("https://www.facebook.com/%s/dialog/oauth", graphVersion),
		TokenURL:  fmt.Sprintf("https://graph.facebook.com/%s/oauth/access_token", graphVersion),
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// LoadOAuthConfig builds the OAuth clients from the loaded configuration.
// Providers without a client ID are left nil.
func LoadOAuthConfig(cfg *Config) *OAuthConfig {
	out := &OAuthConfig{}

	if cfg.Google.ClientID != "" {
		out.Google = &oauth2.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  CallbackURL(cfg.Server.BaseURL, "google"),
			Scopes:       GoogleScopes,
			Endpoint:     google.Endpoint,
		}
	}

	if cfg.Facebook.AppID != "" {
		out.Facebook = &oauth2.Config{
			ClientID:     cfg.Facebook.AppID,
			ClientSecret: cfg.Facebook.AppSecret,
			RedirectURL:  CallbackURL(cfg.Server.BaseURL, "facebook"),
			Scopes:       FacebookScopes,
			Endpoint:     FacebookEndpoint(cfg.Facebook.GraphVersion),
		}
	}

	if cfg.LinkedIn.ClientID != "" {
		scopes := append([]string{}, LinkedInScopes...)
		if cfg.LinkedIn.OrgPosting {
			scopes = append(scopes, LinkedInOrgScopes...)
		}
		out.LinkedIn = &oauth2.Config{
			ClientID:     cfg.LinkedIn.ClientID,
			ClientSecret: cfg.LinkedIn.ClientSecret,
			RedirectURL:  CallbackURL(cfg.Server.BaseURL, "linkedin"),
			Scopes:       scopes,
			Endpoint:     linkedin.Endpoint,
		}
	}

	return out
}
