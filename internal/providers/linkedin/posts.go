package linkedin

import (
	"context"
	"errors"
)

// ShareRequest is the content of a member or organization post.
type ShareRequest struct {
	Author string // urn:li:person:... or urn:li:organization:...
	Text   string
	Link   string
	Title  string
}

var errMissingID = errors.New("post created but no id returned")

type ugcText struct {
	Text string `json:"text"`
}

type ugcMedia struct {
	Status      string   `json:"status"`
	OriginalURL string   `json:"originalUrl"`
	Title       *ugcText `json:"title,omitempty"`
}

type ugcShareContent struct {
	ShareCommentary    ugcText    `json:"shareCommentary"`
	ShareMediaCategory string     `json:"shareMediaCategory"`
	Media              []ugcMedia `json:"media,omitempty"`
}

type ugcPostBody struct {
	Author          string                     `json:"author"`
	LifecycleState  string                     `json:"lifecycleState"`
	SpecificContent map[string]ugcShareContent `json:"specificContent"`
	Visibility      map[string]string          `json:"visibility"`
}

// CreateUGCPost publishes through the legacy v2 ugcPosts API and returns the
// post URN.
func (c *Client) CreateUGCPost(ctx context.Context, token string, s ShareRequest) (string, error) {
	content := ugcShareContent{
		ShareCommentary:    ugcText{Text: s.Text},
		ShareMediaCategory: "NONE",
	}
	if s.Link != "" {
		content.ShareMediaCategory = "ARTICLE"
		media := ugcMedia{Status: "READY", OriginalURL: s.Link}
		if s.Title != "" {
			media.Title = &ugcText{Text: s.Title}
		}
		content.Media = []ugcMedia{media}
	}

	body := ugcPostBody{
		Author:          s.Author,
		LifecycleState:  "PUBLISHED",
		SpecificContent: map[string]ugcShareContent{"com.linkedin.ugc.ShareContent": content},
		Visibility:      map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	}

	var out struct {
		ID string `json:"id"`
	}
	req := c.http.R(ctx).
		SetAuthToken(token).
		SetHeader("X-Restli-Protocol-Version", restliProtocolVersion).
		SetBody(body)
	resp, err := c.http.Post(req, "create_ugc_post", "/v2/ugcPosts", &out)
	if err != nil {
		return "", err
	}
	if out.ID == "" {
		out.ID = resp.Header().Get("X-RestLi-Id")
	}
	if out.ID == "" {
		return "", errMissingID
	}
	return out.ID, nil
}

type postArticle struct {
	Source string `json:"source"`
	Title  string `json:"title,omitempty"`
}

type postBody struct {
	Author       string `json:"author"`
	Commentary   string `json:"commentary"`
	Visibility   string `json:"visibility"`
	Distribution struct {
		FeedDistribution               string   `json:"feedDistribution"`
		TargetEntities                 []string `json:"targetEntities"`
		ThirdPartyDistributionChannels []string `json:"thirdPartyDistributionChannels"`
	} `json:"distribution"`
	Content *struct {
		Article postArticle `json:"article"`
	} `json:"content,omitempty"`
	LifecycleState            string `json:"lifecycleState"`
	IsReshareDisabledByAuthor bool   `json:"isReshareDisabledByAuthor"`
}

// CreatePost publishes through the versioned rest/posts API. The API answers
// 201 with an empty body and the URN in the x-restli-id header.
func (c *Client) CreatePost(ctx context.Context, token string, s ShareRequest) (string, error) {
	body := postBody{
		Author:         s.Author,
		Commentary:     s.Text,
		Visibility:     "PUBLIC",
		LifecycleState: "PUBLISHED",
	}
	body.Distribution.FeedDistribution = "MAIN_FEED"
	body.Distribution.TargetEntities = []string{}
	body.Distribution.ThirdPartyDistributionChannels = []string{}
	if s.Link != "" {
		body.Content = &struct {
			Article postArticle `json:"article"`
		}{Article: postArticle{Source: s.Link, Title: s.Title}}
	}

	req := c.http.R(ctx).
		SetAuthToken(token).
		SetHeader("X-Restli-Protocol-Version", restliProtocolVersion).
		SetHeader("LinkedIn-Version", c.version).
		SetBody(body)
	resp, err := c.http.Post(req, "create_post", "/rest/posts", nil)
	if err != nil {
		return "", err
	}
	id := resp.Header().Get("X-RestLi-Id")
	if id == "" {
		return "", errMissingID
	}
	return id, nil
}
