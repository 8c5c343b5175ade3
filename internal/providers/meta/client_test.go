package meta

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFake(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL, "v19.0")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestExchangeLongLivedToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v19.0/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "fb_exchange_token", q.Get("grant_type"))
		assert.Equal(t, "short", q.Get("fb_exchange_token"))
		assert.Equal(t, "app", q.Get("client_id"))
		writeJSON(w, map[string]any{"access_token": "long", "token_type": "bearer", "expires_in": 5183944})
	})

	tok, err := newFake(t, mux).ExchangeLongLivedToken(context.Background(), "app", "secret", "short")
	require.NoError(t, err)
	assert.Equal(t, "long", tok.AccessToken)
	assert.Equal(t, int64(5183944), tok.ExpiresIn)
}

func TestListPagesAndInstagramAccount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v19.0/me/accounts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "user-token", r.URL.Query().Get("access_token"))
		writeJSON(w, map[string]any{"data": []map[string]string{
			{"id": "p1", "name": "Acme", "access_token": "page-token"},
		}})
	})
	mux.HandleFunc("/v19.0/p1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"id":                         "p1",
			"instagram_business_account": map[string]string{"id": "ig1", "username": "acme"},
		})
	})
	mux.HandleFunc("/v19.0/p2", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": "p2"})
	})

	c := newFake(t, mux)
	pages, err := c.ListPages(context.Background(), "user-token")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "page-token", pages[0].AccessToken)

	ig, err := c.PageInstagramAccount(context.Background(), "page-token", "p1")
	require.NoError(t, err)
	require.NotNil(t, ig)
	assert.Equal(t, "ig1", ig.ID)

	none, err := c.PageInstagramAccount(context.Background(), "page-token", "p2")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestPublishPageFeed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v19.0/p1/feed", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "hello", r.PostForm.Get("message"))
		assert.Equal(t, "https://example.com", r.PostForm.Get("link"))
		assert.Equal(t, "page-token", r.PostForm.Get("access_token"))
		writeJSON(w, map[string]string{"id": "p1_99"})
	})

	res, err := newFake(t, mux).PublishPageFeed(context.Background(), "page-token", "p1", "hello", "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "p1_99", res.ID)
	assert.Equal(t, "https://www.facebook.com/p1_99", PostURL(res.ID))
}

func TestInstagramContainerFlow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v19.0/ig1/media", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "REELS", r.PostForm.Get("media_type"))
		assert.Equal(t, "https://cdn.example.com/v.mp4", r.PostForm.Get("video_url"))
		writeJSON(w, map[string]string{"id": "c1"})
	})
	mux.HandleFunc("/v19.0/c1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status_code": ContainerFinished})
	})
	mux.HandleFunc("/v19.0/ig1/media_publish", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "c1", r.PostForm.Get("creation_id"))
		writeJSON(w, map[string]string{"id": "m1"})
	})

	c := newFake(t, mux)
	ctx := context.Background()

	id, err := c.CreateMediaContainer(ctx, "tok", "ig1", MediaContainer{VideoURL: "https://cdn.example.com/v.mp4", Caption: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "c1", id)

	status, err := c.ContainerStatus(ctx, "tok", id)
	require.NoError(t, err)
	assert.Equal(t, ContainerFinished, status)

	mediaID, err := c.PublishMediaContainer(ctx, "tok", "ig1", id)
	require.NoError(t, err)
	assert.Equal(t, "m1", mediaID)
}

func TestInsightTotal(t *testing.T) {
	series := Insight{Values: []InsightValue{{Value: 3.0}, {Value: 4.0}, {Value: map[string]any{"a": 1}}}}
	assert.Equal(t, 7.0, series.Total())

	total := Insight{TotalValue: &InsightValue{Value: 42.0}}
	assert.Equal(t, 42.0, total.Total())
}

func TestGraphErrorIsNormalized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v19.0/me", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, map[string]any{"error": map[string]any{"message": "Session has expired", "type": "OAuthException", "code": 190}})
	})

	_, err := newFake(t, mux).Me(context.Background(), "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Session has expired")
}
