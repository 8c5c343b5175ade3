package meta

import (
	"context"
	"fmt"
)

// Container status codes reported by the Graph API.
const (
	ContainerFinished   = "FINISHED"
	ContainerInProgress = "IN_PROGRESS"
	ContainerError      = "ERROR"
	ContainerExpired    = "EXPIRED"
	ContainerPublished  = "PUBLISHED"
)

// MediaContainer describes the media to upload. Exactly one of ImageURL or
// VideoURL is set; videos are published as reels.
type MediaContainer struct {
	ImageURL string
	VideoURL string
	Caption  string
}

// IsVideo reports whether the container needs processing before publishing.
func (m MediaContainer) IsVideo() bool {
	return m.VideoURL != ""
}

// CreateMediaContainer is step one of Instagram publishing.
func (c *Client) CreateMediaContainer(ctx context.Context, token, igUserID string, m MediaContainer) (string, error) {
	form := map[string]string{
		"access_token": token,
		"caption":      m.Caption,
	}
	if m.IsVideo() {
		form["media_type"] = "REELS"
		form["video_url"] = m.VideoURL
	} else {
		form["image_url"] = m.ImageURL
	}

	var out PublishResult
	req := c.http.R(ctx).SetFormData(form)
	if _, err := c.http.Post(req, "create_container", "/"+igUserID+"/media", &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// ContainerStatus returns the processing status_code of a container.
func (c *Client) ContainerStatus(ctx context.Context, token, containerID string) (string, error) {
	var out struct {
		StatusCode string `json:"status_code"`
		Status     string `json:"status"`
	}
	req := c.http.R(ctx).
		SetQueryParam("access_token", token).
		SetQueryParam("fields", "status_code,status")
	if _, err := c.http.Get(req, "container_status", "/"+containerID, &out); err != nil {
		return "", err
	}
	return out.StatusCode, nil
}

// PublishMediaContainer is the final step and returns the media id.
func (c *Client) PublishMediaContainer(ctx context.Context, token, igUserID, containerID string) (string, error) {
	var out PublishResult
	req := c.http.R(ctx).SetFormData(map[string]string{
		"access_token": token,
		"creation_id":  containerID,
	})
	if _, err := c.http.Post(req, "publish_container", "/"+igUserID+"/media_publish", &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// Media is a published Instagram media object.
type Media struct {
	ID            string `json:"id"`
	Caption       string `json:"caption"`
	MediaType     string `json:"media_type"`
	MediaURL      string `json:"media_url"`
	Permalink     string `json:"permalink"`
	Timestamp     string `json:"timestamp"`
	LikeCount     int    `json:"like_count"`
	CommentsCount int    `json:"comments_count"`
}

// MediaPermalink returns the public URL of a media object.
func (c *Client) MediaPermalink(ctx context.Context, token, mediaID string) (string, error) {
	var out Media
	req := c.http.R(ctx).
		SetQueryParam("access_token", token).
		SetQueryParam("fields", "permalink")
	if _, err := c.http.Get(req, "media_permalink", "/"+mediaID, &out); err != nil {
		return "", err
	}
	return out.Permalink, nil
}

// InstagramMedia lists recent media of the account.
func (c *Client) InstagramMedia(ctx context.Context, token, igUserID string, limit int) ([]Media, error) {
	var out struct {
		Data []Media `json:"data"`
	}
	req := c.http.R(ctx).SetQueryParams(map[string]string{
		"access_token": token,
		"fields":       "id,caption,media_type,media_url,permalink,timestamp,like_count,comments_count",
		"limit":        fmt.Sprint(limitOr(limit, 12)),
	})
	if _, err := c.http.Get(req, "instagram_media", "/"+igUserID+"/media", &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// InstagramInsights reads account metrics such as reach and profile_views.
func (c *Client) InstagramInsights(ctx context.Context, token, igUserID string, metrics []string, period string) ([]Insight, error) {
	return c.insights(ctx, "instagram_insights", token, igUserID, metrics, period, map[string]string{"metric_type": "total_value"})
}

// Profile is the Instagram business account profile.
type Profile struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	Name              string `json:"name"`
	FollowersCount    int    `json:"followers_count"`
	MediaCount        int    `json:"media_count"`
	ProfilePictureURL string `json:"profile_picture_url"`
}

// InstagramProfile returns the account profile and counters.
func (c *Client) InstagramProfile(ctx context.Context, token, igUserID string) (*Profile, error) {
	var out Profile
	req := c.http.R(ctx).
		SetQueryParam("access_token", token).
		SetQueryParam("fields", "id,username,name,followers_count,media_count,profile_picture_url")
	if _, err := c.http.Get(req, "instagram_profile", "/"+igUserID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
