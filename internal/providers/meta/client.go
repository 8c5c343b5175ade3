// Package meta calls the Facebook Graph API for Facebook pages and the
// Instagram business accounts linked to them.
package meta

import (
	"context"
	"fmt"
	"strings"

	"github.com/zfogg/beacon/internal/providers"
)

// DefaultBaseURL is the Graph API host. The version is appended per client.
const DefaultBaseURL = "https://graph.facebook.com"

// Client is safe for concurrent use.
type Client struct {
	http *providers.Client
}

// New creates a Graph API client pinned to version, e.g. "v19.0".
func New(baseURL, version string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base := strings.TrimSuffix(baseURL, "/")
	if version != "" {
		base += "/" + version
	}
	return &Client{
		http: providers.NewClient(providers.Options{Provider: "facebook", BaseURL: base}),
	}
}

// User is the /me node.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Me returns the token owner.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	var out User
	req := c.http.R(ctx).
		SetQueryParam("access_token", token).
		SetQueryParam("fields", "id,name")
	if _, err := c.http.Get(req, "me", "/me", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LongLivedToken is the result of an fb_exchange_token grant.
type LongLivedToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ExchangeLongLivedToken trades a short-lived user token for a ~60 day one.
func (c *Client) ExchangeLongLivedToken(ctx context.Context, appID, appSecret, shortToken string) (*LongLivedToken, error) {
	var out LongLivedToken
	req := c.http.R(ctx).SetQueryParams(map[string]string{
		"grant_type":        "fb_exchange_token",
		"client_id":         appID,
		"client_secret":     appSecret,
		"fb_exchange_token": shortToken,
	})
	if _, err := c.http.Get(req, "exchange_token", "/oauth/access_token", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Page is a Facebook page the user manages.
type Page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
	Category    string `json:"category"`
}

// ListPages returns the first page of managed pages with their page tokens.
func (c *Client) ListPages(ctx context.Context, token string) ([]Page, error) {
	var out struct {
		Data []Page `json:"data"`
	}
	req := c.http.R(ctx).
		SetQueryParam("access_token", token).
		SetQueryParam("fields", "id,name,access_token,category")
	if _, err := c.http.Get(req, "list_pages", "/me/accounts", &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// InstagramAccount is the business account linked to a page.
type InstagramAccount struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// PageInstagramAccount returns the page's linked Instagram business account,
// or nil when there is none.
func (c *Client) PageInstagramAccount(ctx context.Context, token, pageID string) (*InstagramAccount, error) {
	var out struct {
		ID                       string            `json:"id"`
		InstagramBusinessAccount *InstagramAccount `json:"instagram_business_account"`
	}
	req := c.http.R(ctx).
		SetQueryParam("access_token", token).
		SetQueryParam("fields", "instagram_business_account{id,username}")
	if _, err := c.http.Get(req, "page_instagram_account", "/"+pageID, &out); err != nil {
		return nil, err
	}
	return out.InstagramBusinessAccount, nil
}

// PublishResult is the node created by a publish call.
type PublishResult struct {
	ID     string `json:"id"`
	PostID string `json:"post_id,omitempty"`
}

// PublishPageFeed posts a text/link update to the page feed.
func (c *Client) PublishPageFeed(ctx context.Context, pageToken, pageID, message, link string) (*PublishResult, error) {
	form := map[string]string{"access_token": pageToken, "message": message}
	if link != "" {
		form["link"] = link
	}
	var out PublishResult
	req := c.http.R(ctx).SetFormData(form)
	if _, err := c.http.Post(req, "publish_feed", "/"+pageID+"/feed", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PublishPagePhoto posts a photo by URL with a caption.
func (c *Client) PublishPagePhoto(ctx context.Context, pageToken, pageID, imageURL, caption string) (*PublishResult, error) {
	var out PublishResult
	req := c.http.R(ctx).SetFormData(map[string]string{
		"access_token": pageToken,
		"url":          imageURL,
		"caption":      caption,
	})
	if _, err := c.http.Post(req, "publish_photo", "/"+pageID+"/photos", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PostURL is the public permalink for a page post id ("{page}_{post}").
func PostURL(postID string) string {
	if postID == "" {
		return ""
	}
	return fmt.Sprintf("https://www.facebook.com/%s", postID)
}

// Summary is a Graph edge total, e.g. reactions.summary(true).
type Summary struct {
	TotalCount int `json:"total_count"`
}

// PagePost is a recent page post with engagement counts.
type PagePost struct {
	ID           string `json:"id"`
	Message      string `json:"message"`
	CreatedTime  string `json:"created_time"`
	PermalinkURL string `json:"permalink_url"`
	Shares       struct {
		Count int `json:"count"`
	} `json:"shares"`
	Reactions struct {
		Summary Summary `json:"summary"`
	} `json:"reactions"`
	Comments struct {
		Summary Summary `json:"summary"`
	} `json:"comments"`
}

// PagePosts lists the most recent posts of the page.
func (c *Client) PagePosts(ctx context.Context, pageToken, pageID string, limit int) ([]PagePost, error) {
	var out struct {
		Data []PagePost `json:"data"`
	}
	req := c.http.R(ctx).SetQueryParams(map[string]string{
		"access_token": pageToken,
		"fields":       "id,message,created_time,permalink_url,shares,reactions.summary(true).limit(0),comments.summary(true).limit(0)",
		"limit":        fmt.Sprint(limitOr(limit, 10)),
	})
	if _, err := c.http.Get(req, "page_posts", "/"+pageID+"/posts", &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// InsightValue is one point of an insights series. Value is a number for most
// metrics and an object for breakdowns.
type InsightValue struct {
	Value   any    `json:"value"`
	EndTime string `json:"end_time,omitempty"`
}

// Insight is a named metric series.
type Insight struct {
	Name   string         `json:"name"`
	Period string         `json:"period"`
	Title  string         `json:"title,omitempty"`
	Values []InsightValue `json:"values"`
	// Instagram "total_value" metrics report a single total
	TotalValue *InsightValue `json:"total_value,omitempty"`
}

// Total sums the numeric values of the series.
func (i Insight) Total() float64 {
	if i.TotalValue != nil {
		if v, ok := i.TotalValue.Value.(float64); ok {
			return v
		}
	}
	var sum float64
	for _, v := range i.Values {
		if f, ok := v.Value.(float64); ok {
			sum += f
		}
	}
	return sum
}

// PageInsights reads page-level metrics, e.g. page_impressions.
func (c *Client) PageInsights(ctx context.Context, pageToken, pageID string, metrics []string, period string) ([]Insight, error) {
	return c.insights(ctx, "page_insights", pageToken, pageID, metrics, period, nil)
}

func (c *Client) insights(ctx context.Context, op, token, nodeID string, metrics []string, period string, extra map[string]string) ([]Insight, error) {
	if period == "" {
		period = "day"
	}
	var out struct {
		Data []Insight `json:"data"`
	}
	req := c.http.R(ctx).SetQueryParams(map[string]string{
		"access_token": token,
		"metric":       strings.Join(metrics, ","),
		"period":       period,
	})
	if extra != nil {
		req.SetQueryParams(extra)
	}
	if _, err := c.http.Get(req, op, "/"+nodeID+"/insights", &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func limitOr(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
