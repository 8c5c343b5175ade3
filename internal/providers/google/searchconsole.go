package google

import "context"

// Site is a Search Console property.
type Site struct {
	SiteURL         string `json:"siteUrl"`
	PermissionLevel string `json:"permissionLevel"`
}

// ListSites lists the Search Console properties of the user.
func (c *Client) ListSites(ctx context.Context, token string) ([]Site, error) {
	var out struct {
		SiteEntry []Site `json:"siteEntry"`
	}
	req := c.http.R(ctx).SetAuthToken(token)
	if _, err := c.http.Get(req, "list_sites", c.ep.Webmasters+"/sites", &out); err != nil {
		return nil, err
	}
	return out.SiteEntry, nil
}

// SearchQuery is a searchAnalytics.query request.
type SearchQuery struct {
	StartDate  string   `json:"startDate"`
	EndDate    string   `json:"endDate"`
	Dimensions []string `json:"dimensions,omitempty"`
	RowLimit   int      `json:"rowLimit,omitempty"`
}

// SearchRow is one aggregated row; Keys follow the requested dimensions.
type SearchRow struct {
	Keys        []string `json:"keys"`
	Clicks      float64  `json:"clicks"`
	Impressions float64  `json:"impressions"`
	CTR         float64  `json:"ctr"`
	Position    float64  `json:"position"`
}

// QuerySearchAnalytics queries clicks, impressions, CTR and position for site.
func (c *Client) QuerySearchAnalytics(ctx context.Context, token, site string, q SearchQuery) ([]SearchRow, error) {
	var out struct {
		Rows []SearchRow `json:"rows"`
	}
	req := c.http.R(ctx).
		SetAuthToken(token).
		SetPathParam("siteUrl", site).
		SetBody(q)
	if _, err := c.http.Post(req, "search_analytics", c.ep.Webmasters+"/sites/{siteUrl}/searchAnalytics/query", &out); err != nil {
		return nil, err
	}
	return out.Rows, nil
}
