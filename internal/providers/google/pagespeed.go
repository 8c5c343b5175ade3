package google

import (
	"context"
	"math"
)

// PageSpeed strategies.
const (
	StrategyMobile  = "mobile"
	StrategyDesktop = "desktop"
)

// Vital is a lab measurement from the Lighthouse run.
type Vital struct {
	Value   float64 `json:"value"`
	Display string  `json:"display"`
}

// PageSpeedResult holds the category scores (0-100) and core web vitals.
type PageSpeedResult struct {
	URL           string           `json:"url"`
	Strategy      string           `json:"strategy"`
	Performance   int              `json:"performance"`
	Accessibility int              `json:"accessibility"`
	BestPractices int              `json:"bestPractices"`
	SEO           int              `json:"seo"`
	Vitals        map[string]Vital `json:"vitals"`
}

var vitalAudits = map[string]string{
	"lcp":         "largest-contentful-paint",
	"fcp":         "first-contentful-paint",
	"cls":         "cumulative-layout-shift",
	"tbt":         "total-blocking-time",
	"speed_index": "speed-index",
}

type lighthouseResponse struct {
	ID               string `json:"id"`
	LighthouseResult struct {
		FinalURL   string `json:"finalUrl"`
		Categories map[string]struct {
			Score *float64 `json:"score"`
		} `json:"categories"`
		Audits map[string]struct {
			NumericValue float64 `json:"numericValue"`
			DisplayValue string  `json:"displayValue"`
		} `json:"audits"`
	} `json:"lighthouseResult"`
}

// RunPageSpeed runs PageSpeed Insights for url. A user token is used when
// given, the configured API key otherwise.
func (c *Client) RunPageSpeed(ctx context.Context, token, url, strategy string) (*PageSpeedResult, error) {
	if strategy == "" {
		strategy = StrategyMobile
	}

	req := c.http.R(ctx).SetQueryParam("url", url).SetQueryParam("strategy", strategy)
	req.QueryParam.Add("category", "performance")
	req.QueryParam.Add("category", "accessibility")
	req.QueryParam.Add("category", "best-practices")
	req.QueryParam.Add("category", "seo")
	switch {
	case token != "":
		req.SetAuthToken(token)
	case c.apiKey != "":
		req.SetQueryParam("key", c.apiKey)
	}

	var raw lighthouseResponse
	if _, err := c.http.Get(req, "pagespeed", c.ep.PageSpeed+"/runPagespeed", &raw); err != nil {
		return nil, err
	}

	score := func(name string) int {
		cat, ok := raw.LighthouseResult.Categories[name]
		if !ok || cat.Score == nil {
			return 0
		}
		return int(math.Round(*cat.Score * 100))
	}

	result := &PageSpeedResult{
		URL:           url,
		Strategy:      strategy,
		Performance:   score("performance"),
		Accessibility: score("accessibility"),
		BestPractices: score("best-practices"),
		SEO:           score("seo"),
		Vitals:        make(map[string]Vital, len(vitalAudits)),
	}
	for key, audit := range vitalAudits {
		if a, ok := raw.LighthouseResult.Audits[audit]; ok {
			result.Vitals[key] = Vital{Value: a.NumericValue, Display: a.DisplayValue}
		}
	}
	return result, nil
}
