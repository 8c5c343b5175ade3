// Package webflow calls the Webflow Data API v2 with a site API token.
package webflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zfogg/beacon/internal/providers"
)

// DefaultBaseURL is the Webflow API host.
const DefaultBaseURL = "https://api.webflow.com"

// Client is safe for concurrent use.
type Client struct {
	http *providers.Client
}

// New creates a Webflow client.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http: providers.NewClient(providers.Options{Provider: "webflow", BaseURL: strings.TrimSuffix(baseURL, "/")}),
	}
}

// Domain is a custom domain attached to a site.
type Domain struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Site is a Webflow site.
type Site struct {
	ID            string     `json:"id"`
	DisplayName   string     `json:"displayName"`
	ShortName     string     `json:"shortName"`
	PreviewURL    string     `json:"previewUrl"`
	LastPublished *time.Time `json:"lastPublished"`
	CustomDomains []Domain   `json:"customDomains"`
}

// ListSites lists the sites the token can access.
func (c *Client) ListSites(ctx context.Context, token string) ([]Site, error) {
	var out struct {
		Sites []Site `json:"sites"`
	}
	req := c.http.R(ctx).SetAuthToken(token)
	if _, err := c.http.Get(req, "list_sites", "/v2/sites", &out); err != nil {
		return nil, err
	}
	return out.Sites, nil
}

// Collection is a CMS collection.
type Collection struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Slug        string `json:"slug"`
}

// ListCollections lists the CMS collections of a site.
func (c *Client) ListCollections(ctx context.Context, token, siteID string) ([]Collection, error) {
	var out struct {
		Collections []Collection `json:"collections"`
	}
	req := c.http.R(ctx).SetAuthToken(token)
	if _, err := c.http.Get(req, "list_collections", "/v2/sites/"+siteID+"/collections", &out); err != nil {
		return nil, err
	}
	return out.Collections, nil
}

// Item is a CMS collection item.
type Item struct {
	ID            string         `json:"id"`
	IsDraft       bool           `json:"isDraft"`
	IsArchived    bool           `json:"isArchived"`
	CreatedOn     *time.Time     `json:"createdOn"`
	LastPublished *time.Time     `json:"lastPublished"`
	FieldData     map[string]any `json:"fieldData"`
}

// Field returns a string field of the item.
func (i Item) Field(name string) string {
	if v, ok := i.FieldData[name].(string); ok {
		return v
	}
	return ""
}

// CreateCollectionItem adds an item with the given field data.
func (c *Client) CreateCollectionItem(ctx context.Context, token, collectionID string, fields map[string]any, draft bool) (*Item, error) {
	body := map[string]any{
		"isArchived": false,
		"isDraft":    draft,
		"fieldData":  fields,
	}
	var out Item
	req := c.http.R(ctx).SetAuthToken(token).SetBody(body)
	if _, err := c.http.Post(req, "create_item", "/v2/collections/"+collectionID+"/items", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCollectionItems returns the newest items of a collection.
func (c *Client) ListCollectionItems(ctx context.Context, token, collectionID string, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 10
	}
	var out struct {
		Items []Item `json:"items"`
	}
	req := c.http.R(ctx).
		SetAuthToken(token).
		SetQueryParam("limit", fmt.Sprint(limit)).
		SetQueryParam("sortBy", "createdOn").
		SetQueryParam("sortOrder", "desc")
	if _, err := c.http.Get(req, "list_items", "/v2/collections/"+collectionID+"/items", &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// PublishSite publishes the site to the given custom domains, and to the
// webflow.io subdomain when no domain is given.
func (c *Client) PublishSite(ctx context.Context, token, siteID string, domainIDs []string) error {
	body := map[string]any{
		"customDomains":             domainIDs,
		"publishToWebflowSubdomain": len(domainIDs) == 0,
	}
	if domainIDs == nil {
		body["customDomains"] = []string{}
	}
	req := c.http.R(ctx).SetAuthToken(token).SetBody(body)
	_, err := c.http.Post(req, "publish_site", "/v2/sites/"+siteID+"/publish", nil)
	return err
}
