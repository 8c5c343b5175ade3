// Package google calls the Google APIs behind the analytics dashboard:
// OpenID userinfo, GA4 admin and data, Search Console and PageSpeed Insights.
package google

import (
	"context"
	"strings"
	"time"

	"github.com/zfogg/beacon/internal/providers"
)

// Endpoints are the API roots. Tests point them all at one fake server.
type Endpoints struct {
	UserInfo       string
	AnalyticsAdmin string
	AnalyticsData  string
	Webmasters     string
	PageSpeed      string
}

// DefaultEndpoints returns the production Google API roots.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		UserInfo:       "https://openidconnect.googleapis.com/v1/userinfo",
		AnalyticsAdmin: "https://analyticsadmin.googleapis.com/v1beta",
		AnalyticsData:  "https://analyticsdata.googleapis.com/v1beta",
		Webmasters:     "https://www.googleapis.com/webmasters/v3",
		PageSpeed:      "https://www.googleapis.com/pagespeedonline/v5",
	}
}

// EndpointsAt roots every API at base.
func EndpointsAt(base string) Endpoints {
	base = strings.TrimSuffix(base, "/")
	return Endpoints{
		UserInfo:       base + "/v1/userinfo",
		AnalyticsAdmin: base + "/admin/v1beta",
		AnalyticsData:  base + "/data/v1beta",
		Webmasters:     base + "/webmasters/v3",
		PageSpeed:      base + "/pagespeedonline/v5",
	}
}

// Client is safe for concurrent use.
type Client struct {
	http   *providers.Client
	ep     Endpoints
	apiKey string
}

// New creates a Google client. apiKey is used for PageSpeed when no user
// token is supplied.
func New(ep Endpoints, apiKey string) *Client {
	return &Client{
		// PageSpeed runs take a while
		http:   providers.NewClient(providers.Options{Provider: "google", Timeout: 60 * time.Second}),
		ep:     ep,
		apiKey: apiKey,
	}
}

// UserInfo is the OpenID Connect profile of the connecting user.
type UserInfo struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// UserInfo fetches the profile of the token owner.
func (c *Client) UserInfo(ctx context.Context, token string) (*UserInfo, error) {
	var out UserInfo
	req := c.http.R(ctx).SetAuthToken(token)
	if _, err := c.http.Get(req, "userinfo", c.ep.UserInfo, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PropertySummary is a GA4 property visible to the user.
type PropertySummary struct {
	Property    string `json:"property"`
	DisplayName string `json:"displayName"`
}

// AccountSummary groups GA4 properties by account.
type AccountSummary struct {
	Account           string            `json:"account"`
	DisplayName       string            `json:"displayName"`
	PropertySummaries []PropertySummary `json:"propertySummaries"`
}

// ListAccountSummaries lists the GA4 accounts and properties of the user.
func (c *Client) ListAccountSummaries(ctx context.Context, token string) ([]AccountSummary, error) {
	var out struct {
		AccountSummaries []AccountSummary `json:"accountSummaries"`
	}
	req := c.http.R(ctx).SetAuthToken(token).SetQueryParam("pageSize", "200")
	if _, err := c.http.Get(req, "list_account_summaries", c.ep.AnalyticsAdmin+"/accountSummaries", &out); err != nil {
		return nil, err
	}
	return out.AccountSummaries, nil
}

// PropertyName normalizes "123" and "properties/123" to "properties/123".
func PropertyName(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.HasPrefix(id, "properties/") {
		return id
	}
	return "properties/" + id
}
