// Package linkedin calls the LinkedIn v2 and versioned REST APIs.
package linkedin

import (
	"context"
	"fmt"
	"strings"

	"github.com/zfogg/beacon/internal/providers"
)

// DefaultBaseURL is the LinkedIn API host.
const DefaultBaseURL = "https://api.linkedin.com"

const restliProtocolVersion = "2.0.0"

// Client is safe for concurrent use.
type Client struct {
	http    *providers.Client
	version string // YYYYMM sent as LinkedIn-Version
}

// New creates a LinkedIn client.
func New(baseURL, version string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:    providers.NewClient(providers.Options{Provider: "linkedin", BaseURL: strings.TrimSuffix(baseURL, "/")}),
		version: version,
	}
}

// UserInfo is the OpenID Connect profile of the member.
type UserInfo struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// PersonURN is the member author URN derived from the OpenID subject.
func (u UserInfo) PersonURN() string {
	return PersonURN(u.Sub)
}

// PersonURN builds urn:li:person:{sub}.
func PersonURN(sub string) string {
	return "urn:li:person:" + sub
}

// UserInfo fetches the profile of the token owner.
func (c *Client) UserInfo(ctx context.Context, token string) (*UserInfo, error) {
	var out UserInfo
	req := c.http.R(ctx).SetAuthToken(token)
	if _, err := c.http.Get(req, "userinfo", "/v2/userinfo", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OrganizationACL is an organization the member administers.
type OrganizationACL struct {
	Organization string `json:"organization"`
	Role         string `json:"role"`
	State        string `json:"state"`
}

// AdministeredOrganizations lists organizations where the member is an
// approved administrator.
func (c *Client) AdministeredOrganizations(ctx context.Context, token string) ([]OrganizationACL, error) {
	var out struct {
		Elements []OrganizationACL `json:"elements"`
	}
	req := c.http.R(ctx).
		SetAuthToken(token).
		SetHeader("X-Restli-Protocol-Version", restliProtocolVersion).
		SetQueryParams(map[string]string{
			"q":     "roleAssignee",
			"role":  "ADMINISTRATOR",
			"state": "APPROVED",
		})
	if _, err := c.http.Get(req, "organization_acls", "/v2/organizationAcls", &out); err != nil {
		return nil, err
	}
	return out.Elements, nil
}

// ShareStats are lifetime share totals of an organization page.
type ShareStats struct {
	ShareCount             int     `json:"shareCount"`
	LikeCount              int     `json:"likeCount"`
	CommentCount           int     `json:"commentCount"`
	ClickCount             int     `json:"clickCount"`
	ImpressionCount        int     `json:"impressionCount"`
	UniqueImpressionsCount int     `json:"uniqueImpressionsCount"`
	Engagement             float64 `json:"engagement"`
}

// ShareStatistics returns the share totals of orgURN, or zero totals when the
// API returns no element.
func (c *Client) ShareStatistics(ctx context.Context, token, orgURN string) (*ShareStats, error) {
	var out struct {
		Elements []struct {
			TotalShareStatistics ShareStats `json:"totalShareStatistics"`
		} `json:"elements"`
	}
	req := c.http.R(ctx).
		SetAuthToken(token).
		SetQueryParam("q", "organizationalEntity").
		SetQueryParam("organizationalEntity", orgURN)
	if _, err := c.http.Get(req, "share_statistics", "/v2/organizationalEntityShareStatistics", &out); err != nil {
		return nil, err
	}
	if len(out.Elements) == 0 {
		return &ShareStats{}, nil
	}
	return &out.Elements[0].TotalShareStatistics, nil
}

// PostURL is the public URL of a share or ugcPost URN.
func PostURL(urn string) string {
	if urn == "" {
		return ""
	}
	return fmt.Sprintf("https://www.linkedin.com/feed/update/%s", urn)
}
