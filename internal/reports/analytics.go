package reports

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/zfogg/beacon/internal/cache"
	"github.com/zfogg/beacon/internal/connect"
	apierrors "github.com/zfogg/beacon/internal/errors"
	"github.com/zfogg/beacon/internal/integrations"
	"github.com/zfogg/beacon/internal/providers/google"
	"github.com/zfogg/beacon/internal/providers/linkedin"
	"github.com/zfogg/beacon/internal/providers/meta"
	"github.com/zfogg/beacon/internal/providers/webflow"
	"golang.org/x/sync/errgroup"
)

// TokenSource resolves a usable provider config. Config returns the stored
// config without checking its token.
type TokenSource interface {
	Token(ctx context.Context, orgID string, p integrations.Provider) (*integrations.ProviderConfig, error)
	Config(ctx context.Context, orgID string, p integrations.Provider) (*integrations.ProviderConfig, error)
}

// Clients are the provider API clients reports read from.
type Clients struct {
	Google   *google.Client
	Meta     *meta.Client
	LinkedIn *linkedin.Client
	Webflow  *webflow.Client
}

// Service builds reports.
type Service struct {
	tokens  TokenSource
	clients Clients
	cache   cache.Store
	ttl     time.Duration
	now     func() time.Time
}

// NewService creates a report service. store may be nil to disable
// memoization.
func NewService(tokens TokenSource, clients Clients, store cache.Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Service{tokens: tokens, clients: clients, cache: store, ttl: ttl, now: time.Now}
}

// TrafficDay is one day of GA4 traffic.
type TrafficDay struct {
	Date        string  `json:"date"`
	Sessions    float64 `json:"sessions"`
	ActiveUsers float64 `json:"activeUsers"`
	PageViews   float64 `json:"pageViews"`
	BounceRate  float64 `json:"bounceRate"`
}

// TrafficReport is the GA4 section of the analytics overview.
type TrafficReport struct {
	Property string       `json:"property"`
	Totals   TrafficDay   `json:"totals"`
	Days     []TrafficDay `json:"days"`
}

// SearchTotals summarizes Search Console rows. Position is weighted by
// impressions.
type SearchTotals struct {
	Clicks      float64 `json:"clicks"`
	Impressions float64 `json:"impressions"`
	CTR         float64 `json:"ctr"`
	Position    float64 `json:"position"`
}

// SearchReport is the Search Console section of the analytics overview.
type SearchReport struct {
	Site    string             `json:"site"`
	Totals  SearchTotals       `json:"totals"`
	Queries []google.SearchRow `json:"queries"`
}

// AnalyticsOverview is the Google analytics page.
type AnalyticsOverview struct {
	Range     DateRange                        `json:"range"`
	Traffic   Section[*TrafficReport]          `json:"traffic"`
	Search    Section[*SearchReport]           `json:"search"`
	PageSpeed Section[*google.PageSpeedResult] `json:"pagespeed"`
}

var trafficMetrics = []string{"sessions", "activeUsers", "screenPageViews", "bounceRate"}

const searchRowLimit = 25

// AnalyticsOverview loads GA4 traffic, Search Console queries and a mobile
// PageSpeed run concurrently. A failing call only fails its own section.
func (s *Service) AnalyticsOverview(ctx context.Context, orgID string, rng DateRange) *AnalyticsOverview {
	out := &AnalyticsOverview{Range: rng}

	cfg, err := s.tokens.Token(ctx, orgID, integrations.Google)
	if err != nil {
		out.Traffic = failed[*TrafficReport](integrations.Google, err)
		out.Search = failed[*SearchReport](integrations.Google, err)
		if keyOnly, kerr := s.keyOnlyConfig(ctx, orgID, err); kerr == nil {
			out.PageSpeed = s.pageSpeed(ctx, orgID, keyOnly, google.StrategyMobile)
		} else {
			out.PageSpeed = failed[*google.PageSpeedResult](integrations.Google, err)
		}
		return out
	}

	var g errgroup.Group
	g.Go(func() error {
		out.Traffic = s.traffic(ctx, orgID, cfg, rng)
		return nil
	})
	g.Go(func() error {
		out.Search = s.search(ctx, cfg, rng)
		return nil
	})
	g.Go(func() error {
		out.PageSpeed = s.pageSpeed(ctx, orgID, cfg, google.StrategyMobile)
		return nil
	})
	_ = g.Wait()
	return out
}

func (s *Service) traffic(ctx context.Context, orgID string, cfg *integrations.ProviderConfig, rng DateRange) Section[*TrafficReport] {
	property := cfg.Setting(integrations.SettingGA4Property)
	if property == "" {
		return notConfigured[*TrafficReport](integrations.Google, "select a GA4 property")
	}

	key := cache.Key("report", orgID, "google", "ga4", property, rng.StartDate(), rng.EndDate())
	return load(ctx, integrations.Google, "traffic", func(ctx context.Context) (*TrafficReport, error) {
		return cache.Memoize(ctx, s.cache, "ga4_report", key, s.ttl, func(ctx context.Context) (*TrafficReport, error) {
			report, err := s.clients.Google.RunReport(ctx, cfg.AccessToken, google.ReportRequest{
				Property:   property,
				DateRange:  google.DateRange{StartDate: rng.StartDate(), EndDate: rng.EndDate()},
				Metrics:    trafficMetrics,
				Dimensions: []string{"date"},
				Limit:      maxRangeDays,
			})
			if err != nil {
				return nil, err
			}
			return shapeTraffic(property, report), nil
		})
	})
}

func shapeTraffic(property string, r *google.Report) *TrafficReport {
	out := &TrafficReport{Property: property, Days: make([]TrafficDay, 0, len(r.Rows))}
	var bounceWeighted float64
	for i, row := range r.Rows {
		day := TrafficDay{
			Sessions:    r.Metric(i, "sessions"),
			ActiveUsers: r.Metric(i, "activeUsers"),
			PageViews:   r.Metric(i, "screenPageViews"),
			BounceRate:  r.Metric(i, "bounceRate"),
		}
		if len(row.Dimensions) > 0 {
			day.Date = formatGADate(row.Dimensions[0])
		}
		out.Totals.Sessions += day.Sessions
		out.Totals.ActiveUsers += day.ActiveUsers
		out.Totals.PageViews += day.PageViews
		bounceWeighted += day.BounceRate * day.Sessions
		out.Days = append(out.Days, day)
	}
	if out.Totals.Sessions > 0 {
		out.Totals.BounceRate = bounceWeighted / out.Totals.Sessions
	}
	// GA4 does not sort by the date dimension unless asked to.
	sort.Slice(out.Days, func(i, j int) bool { return out.Days[i].Date < out.Days[j].Date })
	return out
}

// formatGADate turns GA4's YYYYMMDD into YYYY-MM-DD.
func formatGADate(d string) string {
	if len(d) != 8 {
		return d
	}
	return d[:4] + "-" + d[4:6] + "-" + d[6:]
}

func (s *Service) search(ctx context.Context, cfg *integrations.ProviderConfig, rng DateRange) Section[*SearchReport] {
	site := cfg.Setting(integrations.SettingSearchConsoleSite)
	if site == "" {
		return notConfigured[*SearchReport](integrations.Google, "select a Search Console property")
	}

	return load(ctx, integrations.Google, "search", func(ctx context.Context) (*SearchReport, error) {
		rows, err := s.clients.Google.QuerySearchAnalytics(ctx, cfg.AccessToken, site, google.SearchQuery{
			StartDate:  rng.StartDate(),
			EndDate:    rng.EndDate(),
			Dimensions: []string{"query"},
			RowLimit:   searchRowLimit,
		})
		if err != nil {
			return nil, err
		}
		return shapeSearch(site, rows), nil
	})
}

func shapeSearch(site string, rows []google.SearchRow) *SearchReport {
	out := &SearchReport{Site: site, Queries: rows}
	if out.Queries == nil {
		out.Queries = []google.SearchRow{}
	}
	var weighted float64
	for _, r := range rows {
		out.Totals.Clicks += r.Clicks
		out.Totals.Impressions += r.Impressions
		weighted += r.Position * r.Impressions
	}
	if out.Totals.Impressions > 0 {
		out.Totals.CTR = out.Totals.Clicks / out.Totals.Impressions
		out.Totals.Position = weighted / out.Totals.Impressions
	}
	return out
}

// pageSpeed audits the configured URL, falling back to the Search Console
// site when it is a URL-prefix property.
func (s *Service) pageSpeed(ctx context.Context, orgID string, cfg *integrations.ProviderConfig, strategy string) Section[*google.PageSpeedResult] {
	target := pageSpeedTarget(cfg)
	if target == "" {
		return notConfigured[*google.PageSpeedResult](integrations.Google, "set a URL to audit")
	}

	key := cache.Key("report", orgID, "google", "pagespeed", strategy, target)
	return load(ctx, integrations.Google, "pagespeed", func(ctx context.Context) (*google.PageSpeedResult, error) {
		return cache.Memoize(ctx, s.cache, "pagespeed", key, s.ttl, func(ctx context.Context) (*google.PageSpeedResult, error) {
			return s.clients.Google.RunPageSpeed(ctx, cfg.AccessToken, target, strategy)
		})
	})
}

func pageSpeedTarget(cfg *integrations.ProviderConfig) string {
	if u := cfg.Setting(integrations.SettingPageSpeedURL); u != "" {
		return u
	}
	site := cfg.Setting(integrations.SettingSearchConsoleSite)
	if strings.HasPrefix(site, "sc-domain:") {
		return "https://" + strings.TrimPrefix(site, "sc-domain:")
	}
	if u, err := url.Parse(site); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return site
	}
	return ""
}

// PageSpeed runs an audit for the organization's configured URL with the
// given strategy.
func (s *Service) PageSpeed(ctx context.Context, orgID, strategy string) Section[*google.PageSpeedResult] {
	switch strategy {
	case "", google.StrategyMobile:
		strategy = google.StrategyMobile
	case google.StrategyDesktop:
	default:
		return Section[*google.PageSpeedResult]{
			Status: StatusError,
			Error:  apierrors.ValidationError("strategy", fmt.Sprintf("unknown strategy %q", strategy)),
		}
	}
	cfg, err := s.tokens.Token(ctx, orgID, integrations.Google)
	if err != nil {
		if cfg, err = s.keyOnlyConfig(ctx, orgID, err); err != nil {
			return failed[*google.PageSpeedResult](integrations.Google, err)
		}
	}
	return s.pageSpeed(ctx, orgID, cfg, strategy)
}

// keyOnlyConfig lets PageSpeed run on the server API key when the stored
// Google token has expired. The audited URL still comes from the stored
// settings. Any other token error is returned as is.
func (s *Service) keyOnlyConfig(ctx context.Context, orgID string, tokenErr error) (*integrations.ProviderConfig, error) {
	if !errors.Is(tokenErr, connect.ErrTokenExpired) {
		return nil, tokenErr
	}
	cfg, err := s.tokens.Config(ctx, orgID, integrations.Google)
	if err != nil {
		return nil, tokenErr
	}
	keyOnly := *cfg
	keyOnly.AccessToken = ""
	keyOnly.RefreshToken = ""
	return &keyOnly, nil
}

// Range parses request bounds relative to the current day.
func (s *Service) Range(start, end string) (DateRange, error) {
	return ParseRange(start, end, s.now())
}
