package reports

import (
	"context"
	"fmt"

	apierrors "github.com/zfogg/beacon/internal/errors"
	"github.com/zfogg/beacon/internal/integrations"
	"github.com/zfogg/beacon/internal/providers/meta"
	"github.com/zfogg/beacon/internal/providers/webflow"
	"github.com/zfogg/beacon/internal/util"
	"golang.org/x/sync/errgroup"
)

// Account identifies the connected profile, page or site.
type Account struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	URL       string `json:"url,omitempty"`
	Followers int    `json:"followers,omitempty"`
	Posts     int    `json:"posts,omitempty"`
}

// Metric is one headline number.
type Metric struct {
	Name  string  `json:"name"`
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// PostRow is a recent post shaped for a table.
type PostRow struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	URL         string `json:"url,omitempty"`
	Kind        string `json:"kind,omitempty"`
	PublishedAt string `json:"publishedAt,omitempty"`
	Likes       int    `json:"likes"`
	Comments    int    `json:"comments"`
	Shares      int    `json:"shares"`
}

// SocialOverview is the per-provider social page.
type SocialOverview struct {
	Provider integrations.Provider `json:"provider"`
	Account  Section[*Account]     `json:"account"`
	Metrics  Section[[]Metric]     `json:"metrics"`
	Posts    Section[[]PostRow]    `json:"posts"`
}

const (
	recentPostLimit = 10
	postTextLimit   = 140
)

var (
	facebookMetrics = []string{"page_impressions", "page_post_engagements", "page_fan_adds"}
	facebookLabels  = map[string]string{
		"page_impressions":      "Impressions",
		"page_post_engagements": "Engagements",
		"page_fan_adds":         "New followers",
	}

	instagramMetrics = []string{"reach", "profile_views", "accounts_engaged"}
	instagramLabels  = map[string]string{
		"reach":            "Reach",
		"profile_views":    "Profile views",
		"accounts_engaged": "Accounts engaged",
	}
)

// Overview dispatches to the overview of provider.
func (s *Service) Overview(ctx context.Context, orgID string, p integrations.Provider) (*SocialOverview, error) {
	switch p {
	case integrations.Facebook:
		return s.FacebookOverview(ctx, orgID), nil
	case integrations.Instagram:
		return s.InstagramOverview(ctx, orgID), nil
	case integrations.LinkedIn:
		return s.LinkedInOverview(ctx, orgID), nil
	case integrations.Webflow:
		return s.WebflowOverview(ctx, orgID), nil
	}
	return nil, apierrors.BadRequest(fmt.Sprintf("no social overview for %s", p))
}

// unavailable fills every section of out with the same failure.
func (out *SocialOverview) unavailable(account Section[*Account], metrics Section[[]Metric], posts Section[[]PostRow]) *SocialOverview {
	out.Account = account
	out.Metrics = metrics
	out.Posts = posts
	return out
}

// FacebookOverview reads page insights for the last 28 days and the most
// recent page posts.
func (s *Service) FacebookOverview(ctx context.Context, orgID string) *SocialOverview {
	p := integrations.Facebook
	out := &SocialOverview{Provider: p}

	cfg, err := s.tokens.Token(ctx, orgID, p)
	if err != nil {
		return out.unavailable(failed[*Account](p, err), failed[[]Metric](p, err), failed[[]PostRow](p, err))
	}
	pageID := cfg.Setting(integrations.SettingPageID)
	pageToken := cfg.Setting(integrations.SettingPageAccessToken)
	if pageID == "" || pageToken == "" {
		const what = "select a Facebook page"
		return out.unavailable(notConfigured[*Account](p, what), notConfigured[[]Metric](p, what), notConfigured[[]PostRow](p, what))
	}

	out.Account = ok(&Account{
		ID:   pageID,
		Name: cfg.Setting(integrations.SettingPageName),
		URL:  meta.PostURL(pageID),
	})

	var g errgroup.Group
	g.Go(func() error {
		out.Metrics = load(ctx, p, "insights", func(ctx context.Context) ([]Metric, error) {
			insights, err := s.clients.Meta.PageInsights(ctx, pageToken, pageID, facebookMetrics, "days_28")
			if err != nil {
				return nil, err
			}
			return insightMetrics(insights, facebookMetrics, facebookLabels), nil
		})
		return nil
	})
	g.Go(func() error {
		out.Posts = load(ctx, p, "posts", func(ctx context.Context) ([]PostRow, error) {
			posts, err := s.clients.Meta.PagePosts(ctx, pageToken, pageID, recentPostLimit)
			if err != nil {
				return nil, err
			}
			rows := make([]PostRow, 0, len(posts))
			for _, post := range posts {
				rows = append(rows, PostRow{
					ID:          post.ID,
					Text:        util.Truncate(post.Message, postTextLimit),
					URL:         post.PermalinkURL,
					PublishedAt: post.CreatedTime,
					Likes:       post.Reactions.Summary.TotalCount,
					Comments:    post.Comments.Summary.TotalCount,
					Shares:      post.Shares.Count,
				})
			}
			return rows, nil
		})
		return nil
	})
	_ = g.Wait()
	return out
}

// insightMetrics orders insights as requested. Metrics the API left out are
// reported as zero.
func insightMetrics(insights []meta.Insight, names []string, labels map[string]string) []Metric {
	byName := make(map[string]float64, len(insights))
	for _, in := range insights {
		byName[in.Name] = in.Total()
	}
	out := make([]Metric, 0, len(names))
	for _, name := range names {
		out = append(out, Metric{Name: name, Label: labels[name], Value: byName[name]})
	}
	return out
}

// InstagramOverview reads the business profile, account insights and recent
// media.
func (s *Service) InstagramOverview(ctx context.Context, orgID string) *SocialOverview {
	p := integrations.Instagram
	out := &SocialOverview{Provider: p}

	cfg, err := s.tokens.Token(ctx, orgID, p)
	if err != nil {
		return out.unavailable(failed[*Account](p, err), failed[[]Metric](p, err), failed[[]PostRow](p, err))
	}
	igUserID := cfg.Setting(integrations.SettingIGUserID)
	if igUserID == "" {
		const what = "no Instagram business account is linked to the Facebook page"
		return out.unavailable(notConfigured[*Account](p, what), notConfigured[[]Metric](p, what), notConfigured[[]PostRow](p, what))
	}
	token := cfg.AccessToken

	var g errgroup.Group
	g.Go(func() error {
		out.Account = load(ctx, p, "profile", func(ctx context.Context) (*Account, error) {
			profile, err := s.clients.Meta.InstagramProfile(ctx, token, igUserID)
			if err != nil {
				return nil, err
			}
			return &Account{
				ID:        profile.ID,
				Name:      profile.Username,
				URL:       "https://www.instagram.com/" + profile.Username,
				Followers: profile.FollowersCount,
				Posts:     profile.MediaCount,
			}, nil
		})
		return nil
	})
	g.Go(func() error {
		out.Metrics = load(ctx, p, "insights", func(ctx context.Context) ([]Metric, error) {
			insights, err := s.clients.Meta.InstagramInsights(ctx, token, igUserID, instagramMetrics, "day")
			if err != nil {
				return nil, err
			}
			return insightMetrics(insights, instagramMetrics, instagramLabels), nil
		})
		return nil
	})
	g.Go(func() error {
		out.Posts = load(ctx, p, "media", func(ctx context.Context) ([]PostRow, error) {
			media, err := s.clients.Meta.InstagramMedia(ctx, token, igUserID, recentPostLimit)
			if err != nil {
				return nil, err
			}
			rows := make([]PostRow, 0, len(media))
			for _, m := range media {
				rows = append(rows, PostRow{
					ID:          m.ID,
					Text:        util.Truncate(m.Caption, postTextLimit),
					URL:         m.Permalink,
					Kind:        m.MediaType,
					PublishedAt: m.Timestamp,
					Likes:       m.LikeCount,
					Comments:    m.CommentsCount,
				})
			}
			return rows, nil
		})
		return nil
	})
	_ = g.Wait()
	return out
}

// LinkedInOverview reports organization share statistics. Member accounts
// have no readable statistics and LinkedIn does not expose post history to
// this integration.
func (s *Service) LinkedInOverview(ctx context.Context, orgID string) *SocialOverview {
	p := integrations.LinkedIn
	out := &SocialOverview{Provider: p}

	cfg, err := s.tokens.Token(ctx, orgID, p)
	if err != nil {
		return out.unavailable(failed[*Account](p, err), failed[[]Metric](p, err), failed[[]PostRow](p, err))
	}

	out.Posts = notConfigured[[]PostRow](p, "post history is not available")

	orgURN := cfg.Setting(integrations.SettingOrganizationURN)
	if orgURN == "" {
		out.Account = ok(&Account{ID: cfg.Setting(integrations.SettingAuthorURN), Name: cfg.AccountName})
		out.Metrics = notConfigured[[]Metric](p, "select an organization page")
		return out
	}

	out.Account = ok(&Account{ID: orgURN, Name: cfg.AccountName})
	out.Metrics = load(ctx, p, "share_statistics", func(ctx context.Context) ([]Metric, error) {
		st, err := s.clients.LinkedIn.ShareStatistics(ctx, cfg.AccessToken, orgURN)
		if err != nil {
			return nil, err
		}
		return []Metric{
			{Name: "impressions", Label: "Impressions", Value: float64(st.ImpressionCount)},
			{Name: "unique_impressions", Label: "Unique impressions", Value: float64(st.UniqueImpressionsCount)},
			{Name: "clicks", Label: "Clicks", Value: float64(st.ClickCount)},
			{Name: "likes", Label: "Likes", Value: float64(st.LikeCount)},
			{Name: "comments", Label: "Comments", Value: float64(st.CommentCount)},
			{Name: "shares", Label: "Shares", Value: float64(st.ShareCount)},
			{Name: "engagement", Label: "Engagement rate", Value: st.Engagement},
		}, nil
	})
	return out
}

// WebflowOverview reads the selected site and the newest CMS items.
func (s *Service) WebflowOverview(ctx context.Context, orgID string) *SocialOverview {
	p := integrations.Webflow
	out := &SocialOverview{Provider: p}

	cfg, err := s.tokens.Token(ctx, orgID, p)
	if err != nil {
		return out.unavailable(failed[*Account](p, err), failed[[]Metric](p, err), failed[[]PostRow](p, err))
	}
	siteID := cfg.Setting(integrations.SettingSiteID)
	collectionID := cfg.Setting(integrations.SettingCollectionID)
	if siteID == "" {
		const what = "select a Webflow site"
		return out.unavailable(notConfigured[*Account](p, what), notConfigured[[]Metric](p, what), notConfigured[[]PostRow](p, what))
	}
	token := cfg.AccessToken

	var siteURL string
	out.Account = load(ctx, p, "site", func(ctx context.Context) (*Account, error) {
		sites, err := s.clients.Webflow.ListSites(ctx, token)
		if err != nil {
			return nil, err
		}
		for _, site := range sites {
			if site.ID == siteID {
				siteURL = siteAddress(site)
				return &Account{ID: site.ID, Name: site.DisplayName, URL: siteURL}, nil
			}
		}
		return nil, apierrors.NotFound("webflow site")
	})

	if collectionID == "" {
		const what = "select a CMS collection"
		out.Metrics = notConfigured[[]Metric](p, what)
		out.Posts = notConfigured[[]PostRow](p, what)
		return out
	}

	items, err := s.clients.Webflow.ListCollectionItems(ctx, token, collectionID, recentPostLimit)
	if err != nil {
		out.Metrics = failed[[]Metric](p, err)
		out.Posts = failed[[]PostRow](p, err)
		return out
	}

	var published, drafts float64
	rows := make([]PostRow, 0, len(items))
	for _, item := range items {
		if item.IsDraft {
			drafts++
		} else if item.LastPublished != nil {
			published++
		}
		rows = append(rows, itemRow(item, siteURL))
	}
	out.Metrics = ok([]Metric{
		{Name: "recent_items", Label: "Recent items", Value: float64(len(items))},
		{Name: "published", Label: "Published", Value: published},
		{Name: "drafts", Label: "Drafts", Value: drafts},
	})
	out.Posts = ok(rows)
	return out
}

func siteAddress(site webflow.Site) string {
	if len(site.CustomDomains) > 0 {
		return "https://" + site.CustomDomains[0].URL
	}
	if site.ShortName != "" {
		return "https://" + site.ShortName + ".webflow.io"
	}
	return ""
}

func itemRow(item webflow.Item, siteURL string) PostRow {
	row := PostRow{ID: item.ID, Text: util.Truncate(item.Field("name"), postTextLimit), Kind: "cms_item"}
	if item.LastPublished != nil {
		row.PublishedAt = item.LastPublished.UTC().Format("2006-01-02T15:04:05Z")
	} else if item.CreatedOn != nil {
		row.PublishedAt = item.CreatedOn.UTC().Format("2006-01-02T15:04:05Z")
	}
	if slug := item.Field("slug"); slug != "" && siteURL != "" {
		row.URL = siteURL + "/post/" + slug
	}
	return row
}
