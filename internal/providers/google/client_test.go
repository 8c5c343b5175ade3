package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFake(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(EndpointsAt(srv.URL), "api-key")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestUserInfo(t *testing.T) {
	c := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/userinfo", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, map[string]string{"sub": "1", "email": "a@example.com", "name": "Ada"})
	})

	info, err := c.UserInfo(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", info.Email)
}

func TestRunReport(t *testing.T) {
	c := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/data/v1beta/properties/123:runReport", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body["metrics"], 2)

		writeJSON(w, map[string]any{
			"dimensionHeaders": []map[string]string{{"name": "date"}},
			"metricHeaders":    []map[string]string{{"name": "sessions"}, {"name": "activeUsers"}},
			"rows": []map[string]any{
				{
					"dimensionValues": []map[string]string{{"value": "20260101"}},
					"metricValues":    []map[string]string{{"value": "10"}, {"value": "7"}},
				},
			},
			"rowCount": 1,
		})
	})

	report, err := c.RunReport(context.Background(), "tok", ReportRequest{
		Property:   "123",
		DateRange:  DateRange{StartDate: "28daysAgo", EndDate: "today"},
		Metrics:    []string{"sessions", "activeUsers"},
		Dimensions: []string{"date"},
	})
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, []string{"20260101"}, report.Rows[0].Dimensions)
	assert.Equal(t, 7.0, report.Metric(0, "activeUsers"))
	assert.Equal(t, 0.0, report.Metric(3, "activeUsers"))
}

func TestQuerySearchAnalyticsEscapesSite(t *testing.T) {
	c := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/searchAnalytics/query"))
		assert.Contains(t, r.URL.EscapedPath(), "https:%2F%2Fexample.com%2F")
		writeJSON(w, map[string]any{
			"rows": []map[string]any{
				{"keys": []string{"widgets"}, "clicks": 5, "impressions": 100, "ctr": 0.05, "position": 3.2},
			},
		})
	})

	rows, err := c.QuerySearchAnalytics(context.Background(), "tok", "https://example.com/", SearchQuery{
		StartDate:  "2026-01-01",
		EndDate:    "2026-01-28",
		Dimensions: []string{"query"},
		RowLimit:   25,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "widgets", rows[0].Keys[0])
	assert.Equal(t, 100.0, rows[0].Impressions)
}

func TestRunPageSpeedUsesAPIKeyWithoutToken(t *testing.T) {
	c := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "api-key", r.URL.Query().Get("key"))
		assert.Equal(t, "mobile", r.URL.Query().Get("strategy"))
		assert.Len(t, r.URL.Query()["category"], 4)
		writeJSON(w, map[string]any{
			"lighthouseResult": map[string]any{
				"categories": map[string]any{
					"performance":    map[string]any{"score": 0.874},
					"accessibility":  map[string]any{"score": 1},
					"best-practices": map[string]any{"score": 0.9},
					"seo":            map[string]any{"score": nil},
				},
				"audits": map[string]any{
					"largest-contentful-paint": map[string]any{"numericValue": 2100.5, "displayValue": "2.1 s"},
				},
			},
		})
	})

	res, err := c.RunPageSpeed(context.Background(), "", "https://example.com", "")
	require.NoError(t, err)
	assert.Equal(t, 87, res.Performance)
	assert.Equal(t, 100, res.Accessibility)
	assert.Equal(t, 0, res.SEO)
	assert.Equal(t, "2.1 s", res.Vitals["lcp"].Display)
}

func TestPropertyName(t *testing.T) {
	assert.Equal(t, "properties/1", PropertyName("1"))
	assert.Equal(t, "properties/1", PropertyName("properties/1"))
	assert.Equal(t, "", PropertyName(" "))
}
