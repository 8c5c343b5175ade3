package reports

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/zfogg/beacon/internal/cache"
	"github.com/zfogg/beacon/internal/connect"
	apierrors "github.com/zfogg/beacon/internal/errors"
	"github.com/zfogg/beacon/internal/integrations"
	"github.com/zfogg/beacon/internal/providers/google"
	"github.com/zfogg/beacon/internal/providers/linkedin"
	"github.com/zfogg/beacon/internal/providers/meta"
	"github.com/zfogg/beacon/internal/providers/webflow"
)

const testOrg = "org-1"

type fakeTokens map[integrations.Provider]*integrations.ProviderConfig

func (f fakeTokens) Token(_ context.Context, _ string, p integrations.Provider) (*integrations.ProviderConfig, error) {
	cfg, ok := f[p]
	if !ok {
		return nil, integrations.ErrNotConnected
	}
	if cfg == nil || (cfg.Expiry != nil && cfg.Expiry.Before(time.Now())) {
		return nil, connect.ErrTokenExpired
	}
	return cfg, nil
}

func (f fakeTokens) Config(_ context.Context, _ string, p integrations.Provider) (*integrations.ProviderConfig, error) {
	cfg := f[p]
	if cfg == nil {
		return nil, integrations.ErrNotConnected
	}
	return cfg, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type fakeAPIs struct {
	ga4Calls       atomic.Int32
	searchCalls    atomic.Int32
	pageSpeedCalls atomic.Int32
	searchFails    atomic.Bool
	pageSpeedURL   atomic.Value
	pageSpeedAuth  atomic.Value
	url            string
}

func (f *fakeAPIs) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /data/v1beta/properties/{property}", func(w http.ResponseWriter, r *http.Request) {
		f.ga4Calls.Add(1)
		assert.Equal(t, "properties/123:runReport", "properties/"+r.PathValue("property"))
		writeJSON(w, map[string]any{
			"dimensionHeaders": []map[string]string{{"name": "date"}},
			"metricHeaders": []map[string]string{
				{"name": "sessions"}, {"name": "activeUsers"}, {"name": "screenPageViews"}, {"name": "bounceRate"},
			},
			"rows": []map[string]any{
				{
					"dimensionValues": []map[string]string{{"value": "20260102"}},
					"metricValues":    []map[string]string{{"value": "30"}, {"value": "20"}, {"value": "90"}, {"value": "0.2"}},
				},
				{
					"dimensionValues": []map[string]string{{"value": "20260101"}},
					"metricValues":    []map[string]string{{"value": "10"}, {"value": "8"}, {"value": "25"}, {"value": "0.6"}},
				},
			},
		})
	})
	mux.HandleFunc("POST /webmasters/v3/sites/{site}/searchAnalytics/query", func(w http.ResponseWriter, r *http.Request) {
		f.searchCalls.Add(1)
		if f.searchFails.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			writeJSON(w, map[string]any{"error": map[string]any{"code": 500, "message": "backend error"}})
			return
		}
		var q google.SearchQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		assert.Equal(t, []string{"query"}, q.Dimensions)
		assert.Equal(t, searchRowLimit, q.RowLimit)
		writeJSON(w, map[string]any{"rows": []map[string]any{
			{"keys": []string{"widgets"}, "clicks": 10, "impressions": 100, "ctr": 0.1, "position": 2},
			{"keys": []string{"gadgets"}, "clicks": 5, "impressions": 300, "ctr": 0.016, "position": 6},
		}})
	})
	mux.HandleFunc("GET /pagespeedonline/v5/runPagespeed", func(w http.ResponseWriter, r *http.Request) {
		f.pageSpeedCalls.Add(1)
		f.pageSpeedURL.Store(r.URL.Query().Get("url"))
		f.pageSpeedAuth.Store(r.Header.Get("Authorization") + "|" + r.URL.Query().Get("key"))
		writeJSON(w, map[string]any{
			"lighthouseResult": map[string]any{
				"categories": map[string]any{
					"performance": map[string]float64{"score": 0.87},
					"seo":         map[string]float64{"score": 1},
				},
				"audits": map[string]any{
					"largest-contentful-paint": map[string]any{"numericValue": 2100, "displayValue": "2.1 s"},
				},
			},
		})
	})

	mux.HandleFunc("GET /v19.0/page-1/insights", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "page-token", r.URL.Query().Get("access_token"))
		writeJSON(w, map[string]any{"data": []map[string]any{
			{"name": "page_impressions", "period": "days_28", "values": []map[string]any{{"value": 1200}}},
			{"name": "page_post_engagements", "period": "days_28", "values": []map[string]any{{"value": 80}}},
		}})
	})
	mux.HandleFunc("GET /v19.0/page-1/posts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": []map[string]any{{
			"id":            "page-1_1",
			"message":       "Hello world",
			"created_time":  "2026-01-01T10:00:00+0000",
			"permalink_url": "https://www.facebook.com/page-1/posts/1",
			"shares":        map[string]int{"count": 3},
			"reactions":     map[string]any{"summary": map[string]int{"total_count": 12}},
			"comments":      map[string]any{"summary": map[string]int{"total_count": 4}},
		}}})
	})

	mux.HandleFunc("GET /v19.0/ig-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": "ig-1", "username": "acme", "followers_count": 512, "media_count": 40})
	})
	mux.HandleFunc("GET /v19.0/ig-1/insights", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "total_value", r.URL.Query().Get("metric_type"))
		writeJSON(w, map[string]any{"data": []map[string]any{
			{"name": "reach", "period": "day", "total_value": map[string]any{"value": 900}},
		}})
	})
	mux.HandleFunc("GET /v19.0/ig-1/media", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": []map[string]any{{
			"id": "m1", "caption": "Launch day", "media_type": "IMAGE", "permalink": "https://instagram.com/p/m1",
			"timestamp": "2026-01-02T09:00:00+0000", "like_count": 20, "comments_count": 2,
		}}})
	})

	mux.HandleFunc("GET /v2/organizationalEntityShareStatistics", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "urn:li:organization:42", r.URL.Query().Get("organizationalEntity"))
		writeJSON(w, map[string]any{"elements": []map[string]any{{
			"totalShareStatistics": map[string]any{"impressionCount": 1000, "clickCount": 50, "engagement": 0.07},
		}}})
	})

	mux.HandleFunc("GET /v2/sites", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"sites": []map[string]any{
			{"id": "site-1", "displayName": "Acme", "shortName": "acme", "customDomains": []map[string]string{{"id": "d1", "url": "acme.com"}}},
		}})
	})
	mux.HandleFunc("GET /v2/collections/coll-1/items", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "desc", r.URL.Query().Get("sortOrder"))
		writeJSON(w, map[string]any{"items": []map[string]any{
			{"id": "i1", "isDraft": false, "lastPublished": "2026-01-03T12:00:00Z", "fieldData": map[string]any{"name": "First", "slug": "first"}},
			{"id": "i2", "isDraft": true, "createdOn": "2026-01-04T12:00:00Z", "fieldData": map[string]any{"name": "Second", "slug": "second"}},
		}})
	})
	return mux
}

type ReportsTestSuite struct {
	suite.Suite
	apis   *fakeAPIs
	tokens fakeTokens
	store  *cache.MemoryStore
	svc    *Service
	rng    DateRange
}

func (s *ReportsTestSuite) SetupTest() {
	s.apis = &fakeAPIs{}
	srv := httptest.NewServer(s.apis.handler(s.T()))
	s.T().Cleanup(srv.Close)
	s.apis.url = srv.URL

	s.tokens = fakeTokens{
		integrations.Google: {
			AccessToken: "g-token",
			Settings: map[string]string{
				integrations.SettingGA4Property:       "123",
				integrations.SettingSearchConsoleSite: "sc-domain:acme.com",
			},
		},
	}
	s.store = cache.NewMemoryStore()
	s.svc = NewService(s.tokens, Clients{
		Google:   google.New(google.EndpointsAt(srv.URL), ""),
		Meta:     meta.New(srv.URL, "v19.0"),
		LinkedIn: linkedin.New(srv.URL, "202401"),
		Webflow:  webflow.New(srv.URL),
	}, s.store, time.Minute)
	s.rng = DefaultRange(time.Date(2026, 1, 29, 15, 0, 0, 0, time.UTC))
}

func TestReportsTestSuite(t *testing.T) {
	suite.Run(t, new(ReportsTestSuite))
}

func (s *ReportsTestSuite) TestAnalyticsOverview() {
	out := s.svc.AnalyticsOverview(context.Background(), testOrg, s.rng)

	s.Require().Equal(StatusOK, out.Traffic.Status)
	traffic := out.Traffic.Data
	s.Equal("123", traffic.Property)
	s.Require().Len(traffic.Days, 2)
	s.Equal("2026-01-01", traffic.Days[0].Date)
	s.Equal(40.0, traffic.Totals.Sessions)
	s.Equal(115.0, traffic.Totals.PageViews)
	s.InDelta(0.3, traffic.Totals.BounceRate, 1e-9)

	s.Require().Equal(StatusOK, out.Search.Status)
	s.Equal(15.0, out.Search.Data.Totals.Clicks)
	s.Equal(400.0, out.Search.Data.Totals.Impressions)
	s.InDelta(0.0375, out.Search.Data.Totals.CTR, 1e-9)
	s.InDelta(5.0, out.Search.Data.Totals.Position, 1e-9)
	s.Len(out.Search.Data.Queries, 2)

	s.Require().Equal(StatusOK, out.PageSpeed.Status)
	s.Equal(87, out.PageSpeed.Data.Performance)
	s.Equal(100, out.PageSpeed.Data.SEO)
	s.Equal("https://acme.com", s.apis.pageSpeedURL.Load())
}

func (s *ReportsTestSuite) TestAnalyticsOverviewMemoizesGA4AndPageSpeed() {
	ctx := context.Background()
	s.svc.AnalyticsOverview(ctx, testOrg, s.rng)
	second := s.svc.AnalyticsOverview(ctx, testOrg, s.rng)

	s.Equal(int32(1), s.apis.ga4Calls.Load())
	s.Equal(int32(1), s.apis.pageSpeedCalls.Load())
	s.Equal(int32(2), s.apis.searchCalls.Load())
	s.Equal(StatusOK, second.Traffic.Status)
	s.Equal(40.0, second.Traffic.Data.Totals.Sessions)

	// a different range is a different key
	other := s.rng
	other.Start = other.Start.AddDate(0, 0, -7)
	s.svc.AnalyticsOverview(ctx, testOrg, other)
	s.Equal(int32(2), s.apis.ga4Calls.Load())
	s.Equal(int32(1), s.apis.pageSpeedCalls.Load())
}

func (s *ReportsTestSuite) TestOneSectionFailingKeepsTheOthers() {
	s.apis.searchFails.Store(true)

	out := s.svc.AnalyticsOverview(context.Background(), testOrg, s.rng)
	s.Equal(StatusOK, out.Traffic.Status)
	s.Equal(StatusOK, out.PageSpeed.Status)
	s.Require().Equal(StatusError, out.Search.Status)
	s.Equal(apierrors.ErrUpstream, out.Search.Error.Code)
	s.Nil(out.Search.Data)
}

func (s *ReportsTestSuite) TestMissingSettingsAreNotConfigured() {
	s.tokens[integrations.Google] = &integrations.ProviderConfig{AccessToken: "g-token"}

	out := s.svc.AnalyticsOverview(context.Background(), testOrg, s.rng)
	s.Equal(StatusNotConfigured, out.Traffic.Status)
	s.Equal(StatusNotConfigured, out.Search.Status)
	s.Equal(StatusNotConfigured, out.PageSpeed.Status)
	s.Equal(apierrors.ErrNotConnected, out.Traffic.Error.Code)
	s.Zero(s.apis.ga4Calls.Load())
}

func (s *ReportsTestSuite) TestNotConnected() {
	delete(s.tokens, integrations.Google)

	out := s.svc.AnalyticsOverview(context.Background(), testOrg, s.rng)
	for _, status := range []string{out.Traffic.Status, out.Search.Status, out.PageSpeed.Status} {
		s.Equal(StatusNotConfigured, status)
	}
	s.Equal(apierrors.ErrNotConnected, out.Search.Error.Code)
}

func (s *ReportsTestSuite) TestExpiredTokenIsNotConfigured() {
	s.tokens[integrations.Facebook] = nil

	out := s.svc.FacebookOverview(context.Background(), testOrg)
	s.Equal(StatusNotConfigured, out.Account.Status)
	s.Equal(apierrors.ErrNotConnected, out.Posts.Error.Code)
}

func (s *ReportsTestSuite) TestPageSpeedRunsOnAPIKeyWhenTokenExpired() {
	past := time.Now().Add(-time.Hour)
	s.tokens[integrations.Google].Expiry = &past
	s.svc.clients.Google = google.New(google.EndpointsAt(s.apis.url), "server-key")

	out := s.svc.AnalyticsOverview(context.Background(), testOrg, s.rng)
	s.Equal(StatusNotConfigured, out.Traffic.Status)
	s.Equal(StatusNotConfigured, out.Search.Status)
	s.Require().Equal(StatusOK, out.PageSpeed.Status)
	s.Equal(87, out.PageSpeed.Data.Performance)
	s.Equal("|server-key", s.apis.pageSpeedAuth.Load())
	s.Equal("https://acme.com", s.apis.pageSpeedURL.Load())
	s.Zero(s.apis.ga4Calls.Load())

	desktop := s.svc.PageSpeed(context.Background(), testOrg, google.StrategyDesktop)
	s.Equal(StatusOK, desktop.Status)
}

func (s *ReportsTestSuite) TestPageSpeedStrategy() {
	ctx := context.Background()
	s.tokens[integrations.Google].Settings[integrations.SettingPageSpeedURL] = "https://www.acme.com/pricing"

	desktop := s.svc.PageSpeed(ctx, testOrg, google.StrategyDesktop)
	s.Require().Equal(StatusOK, desktop.Status)
	s.Equal(google.StrategyDesktop, desktop.Data.Strategy)
	s.Equal("https://www.acme.com/pricing", s.apis.pageSpeedURL.Load())

	bad := s.svc.PageSpeed(ctx, testOrg, "tablet")
	s.Equal(StatusError, bad.Status)
	s.Equal(apierrors.ErrValidation, bad.Error.Code)
}

func (s *ReportsTestSuite) TestFacebookOverview() {
	s.tokens[integrations.Facebook] = &integrations.ProviderConfig{
		AccessToken: "user-token",
		Settings: map[string]string{
			integrations.SettingPageID:          "page-1",
			integrations.SettingPageName:        "Acme",
			integrations.SettingPageAccessToken: "page-token",
		},
	}

	out, err := s.svc.Overview(context.Background(), testOrg, integrations.Facebook)
	s.Require().NoError(err)
	s.Equal("Acme", out.Account.Data.Name)

	s.Require().Equal(StatusOK, out.Metrics.Status)
	s.Equal([]Metric{
		{Name: "page_impressions", Label: "Impressions", Value: 1200},
		{Name: "page_post_engagements", Label: "Engagements", Value: 80},
		{Name: "page_fan_adds", Label: "New followers", Value: 0},
	}, out.Metrics.Data)

	s.Require().Equal(StatusOK, out.Posts.Status)
	s.Require().Len(out.Posts.Data, 1)
	row := out.Posts.Data[0]
	s.Equal("Hello world", row.Text)
	s.Equal(12, row.Likes)
	s.Equal(4, row.Comments)
	s.Equal(3, row.Shares)
}

func (s *ReportsTestSuite) TestFacebookWithoutPage() {
	s.tokens[integrations.Facebook] = &integrations.ProviderConfig{AccessToken: "user-token"}

	out := s.svc.FacebookOverview(context.Background(), testOrg)
	s.Equal(StatusNotConfigured, out.Account.Status)
	s.Equal(StatusNotConfigured, out.Metrics.Status)
	s.Equal(StatusNotConfigured, out.Posts.Status)
}

func (s *ReportsTestSuite) TestInstagramOverview() {
	s.tokens[integrations.Instagram] = &integrations.ProviderConfig{
		AccessToken: "user-token",
		Settings:    map[string]string{integrations.SettingIGUserID: "ig-1"},
	}

	out := s.svc.InstagramOverview(context.Background(), testOrg)
	s.Require().Equal(StatusOK, out.Account.Status)
	s.Equal(512, out.Account.Data.Followers)
	s.Equal("https://www.instagram.com/acme", out.Account.Data.URL)

	s.Require().Equal(StatusOK, out.Metrics.Status)
	s.Equal(900.0, out.Metrics.Data[0].Value)

	s.Require().Equal(StatusOK, out.Posts.Status)
	s.Equal("IMAGE", out.Posts.Data[0].Kind)
	s.Equal(20, out.Posts.Data[0].Likes)
}

func (s *ReportsTestSuite) TestLinkedInOverview() {
	s.tokens[integrations.LinkedIn] = &integrations.ProviderConfig{
		AccessToken: "li-token",
		AccountName: "Ada",
		Settings:    map[string]string{integrations.SettingAuthorURN: "urn:li:person:abc"},
	}

	member := s.svc.LinkedInOverview(context.Background(), testOrg)
	s.Equal("urn:li:person:abc", member.Account.Data.ID)
	s.Equal(StatusNotConfigured, member.Metrics.Status)
	s.Equal(StatusNotConfigured, member.Posts.Status)

	s.tokens[integrations.LinkedIn].Settings[integrations.SettingOrganizationURN] = "urn:li:organization:42"
	org := s.svc.LinkedInOverview(context.Background(), testOrg)
	s.Require().Equal(StatusOK, org.Metrics.Status)
	s.Equal("impressions", org.Metrics.Data[0].Name)
	s.Equal(1000.0, org.Metrics.Data[0].Value)
	s.Equal(50.0, org.Metrics.Data[2].Value)
	s.InDelta(0.07, org.Metrics.Data[6].Value, 1e-9)
}

func (s *ReportsTestSuite) TestWebflowOverview() {
	s.tokens[integrations.Webflow] = &integrations.ProviderConfig{
		AccessToken: "wf-token",
		Settings: map[string]string{
			integrations.SettingSiteID:       "site-1",
			integrations.SettingCollectionID: "coll-1",
		},
	}

	out := s.svc.WebflowOverview(context.Background(), testOrg)
	s.Require().Equal(StatusOK, out.Account.Status)
	s.Equal("https://acme.com", out.Account.Data.URL)

	s.Require().Equal(StatusOK, out.Metrics.Status)
	s.Equal([]Metric{
		{Name: "recent_items", Label: "Recent items", Value: 2},
		{Name: "published", Label: "Published", Value: 1},
		{Name: "drafts", Label: "Drafts", Value: 1},
	}, out.Metrics.Data)

	s.Require().Len(out.Posts.Data, 2)
	s.Equal("https://acme.com/post/first", out.Posts.Data[0].URL)
	s.Equal("2026-01-03T12:00:00Z", out.Posts.Data[0].PublishedAt)
	s.Equal("2026-01-04T12:00:00Z", out.Posts.Data[1].PublishedAt)
}

func (s *ReportsTestSuite) TestWebflowUnknownSite() {
	s.tokens[integrations.Webflow] = &integrations.ProviderConfig{
		AccessToken: "wf-token",
		Settings:    map[string]string{integrations.SettingSiteID: "gone"},
	}

	out := s.svc.WebflowOverview(context.Background(), testOrg)
	s.Equal(StatusError, out.Account.Status)
	s.Equal(apierrors.ErrNotFound, out.Account.Error.Code)
	s.Equal(StatusNotConfigured, out.Posts.Status)
}

func (s *ReportsTestSuite) TestOverviewRejectsGoogle() {
	_, err := s.svc.Overview(context.Background(), testOrg, integrations.Google)
	var apiErr *apierrors.APIError
	s.Require().True(errors.As(err, &apiErr))
	s.Equal(apierrors.ErrBadRequest, apiErr.Code)
}

func TestDefaultRange(t *testing.T) {
	r := DefaultRange(time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, "2026-02-01", r.StartDate())
	assert.Equal(t, "2026-02-28", r.EndDate())
}

func TestParseRange(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	r, err := ParseRange("", "", now)
	require.NoError(t, err)
	assert.Equal(t, DefaultRange(now), r)

	r, err = ParseRange("", "2026-01-31", now)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-04", r.StartDate())

	r, err = ParseRange("2026-01-01", "2026-01-10", now)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01", r.StartDate())
	assert.Equal(t, "2026-01-10", r.EndDate())

	_, err = ParseRange("2026-01-10", "2026-01-01", now)
	assert.Error(t, err)
	_, err = ParseRange("2024-01-01", "2026-01-01", now)
	assert.Error(t, err)

	// a leap year is the longest range; one more day would not fit a daily report
	r, err = ParseRange("2024-01-01", "2024-12-31", now)
	require.NoError(t, err)
	assert.Equal(t, 366, r.Days())
	_, err = ParseRange("2024-01-01", "2025-01-01", now)
	assert.ErrorContains(t, err, "exceeds 366 days")

	r, err = ParseRange("2026-01-10", "2026-01-10", now)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Days())
	_, err = ParseRange("yesterday", "", now)
	assert.Error(t, err)
}

func TestPageSpeedTarget(t *testing.T) {
	cfg := func(settings map[string]string) *integrations.ProviderConfig {
		return &integrations.ProviderConfig{Settings: settings}
	}
	assert.Equal(t, "https://acme.com", pageSpeedTarget(cfg(map[string]string{integrations.SettingSearchConsoleSite: "sc-domain:acme.com"})))
	assert.Equal(t, "https://acme.com/", pageSpeedTarget(cfg(map[string]string{integrations.SettingSearchConsoleSite: "https://acme.com/"})))
	assert.Equal(t, "https://x.io", pageSpeedTarget(cfg(map[string]string{
		integrations.SettingSearchConsoleSite: "https://acme.com/",
		integrations.SettingPageSpeedURL:      "https://x.io",
	})))
	assert.Empty(t, pageSpeedTarget(cfg(nil)))
}
