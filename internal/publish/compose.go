package publish

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	apierrors "github.com/zfogg/beacon/internal/errors"
	"github.com/zfogg/beacon/internal/integrations"
)

// Text limits per platform, in characters.
var textLimits = map[integrations.Provider]int{
	integrations.Facebook:  63206,
	integrations.Instagram: 2200,
	integrations.LinkedIn:  3000,
}

// Compose is a post as written in the dashboard composer.
type Compose struct {
	Title         string                  `json:"title"`
	Text          string                  `json:"text"`
	Link          string                  `json:"link"`
	ImageURL      string                  `json:"image_url"`
	VideoURL      string                  `json:"video_url"`
	Platforms     []integrations.Provider `json:"platforms"`
	LinkedInAsOrg bool                    `json:"linkedin_as_org"`
}

// Validate normalizes c in place and reports the first problem found.
func (c *Compose) Validate() *apierrors.APIError {
	c.Title = strings.TrimSpace(c.Title)
	c.Text = strings.TrimSpace(c.Text)
	c.Link = strings.TrimSpace(c.Link)
	c.ImageURL = strings.TrimSpace(c.ImageURL)
	c.VideoURL = strings.TrimSpace(c.VideoURL)

	if len(c.Platforms) == 0 {
		return apierrors.ValidationError("platforms", "select at least one platform")
	}
	seen := make(map[integrations.Provider]bool, len(c.Platforms))
	platforms := c.Platforms[:0]
	for _, p := range c.Platforms {
		if !p.CanPublish() {
			return apierrors.ValidationError("platforms", fmt.Sprintf("cannot publish to %q", p))
		}
		if !seen[p] {
			seen[p] = true
			platforms = append(platforms, p)
		}
	}
	c.Platforms = platforms

	if c.Text == "" && c.ImageURL == "" && c.VideoURL == "" {
		return apierrors.ValidationError("text", "text or media is required")
	}
	if c.ImageURL != "" && c.VideoURL != "" {
		return apierrors.ValidationError("video_url", "attach either an image or a video, not both")
	}
	for field, v := range map[string]string{"link": c.Link, "image_url": c.ImageURL, "video_url": c.VideoURL} {
		if v != "" && !isHTTPURL(v) {
			return apierrors.ValidationError(field, "must be an absolute http(s) URL")
		}
	}

	if seen[integrations.Instagram] && c.ImageURL == "" && c.VideoURL == "" {
		return apierrors.ValidationError("image_url", "Instagram posts need an image or a video")
	}
	if seen[integrations.Webflow] && c.Title == "" && c.Text == "" {
		return apierrors.ValidationError("title", "Webflow posts need a title or text")
	}

	n := utf8.RuneCountInString(c.Text)
	for _, p := range c.Platforms {
		if limit, ok := textLimits[p]; ok && n > limit {
			return apierrors.ValidationError("text", fmt.Sprintf("%s allows at most %d characters", p, limit))
		}
	}
	return nil
}

// link is the URL shared on link-oriented platforms. Videos fall back to a
// link post there.
func (c *Compose) link() string {
	if c.Link != "" {
		return c.Link
	}
	return c.VideoURL
}

// caption is the text with the link appended, for platforms without link
// attachments.
func (c *Compose) caption() string {
	if c.Link == "" {
		return c.Text
	}
	if c.Text == "" {
		return c.Link
	}
	return c.Text + "\n\n" + c.Link
}

func isHTTPURL(s string) bool {
	u, err := url.ParseRequestURI(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
