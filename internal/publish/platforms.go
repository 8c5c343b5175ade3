package publish

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/zfogg/beacon/internal/connect"
	apierrors "github.com/zfogg/beacon/internal/errors"
	"github.com/zfogg/beacon/internal/integrations"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/models"
	"github.com/zfogg/beacon/internal/providers/linkedin"
	"github.com/zfogg/beacon/internal/providers/meta"
	"github.com/zfogg/beacon/internal/util"
	"go.uber.org/zap"
)

// Delivery steps, recorded on failure.
const (
	StepToken     = "token"
	StepTarget    = "target"
	StepPublish   = "publish"
	StepContainer = "create_container"
	StepProcess   = "processing"
	StepCreate    = "create_item"
	StepSite      = "publish_site"
)

var errContainerTimeout = errors.New("media is still processing")

// delivery accumulates the outcome of one platform.
type delivery struct {
	models.PostDelivery
}

func newDelivery(p integrations.Provider) *delivery {
	return &delivery{models.PostDelivery{Platform: string(p)}}
}

func (d *delivery) fail(step string, apiErr *apierrors.APIError) models.PostDelivery {
	d.Status = models.DeliveryFailed
	d.Step = step
	d.ErrorCode = string(apiErr.Code)
	d.ErrorMessage = apiErr.Message
	if apiErr.Details != "" {
		d.ErrorMessage += ": " + apiErr.Details
	}
	return d.PostDelivery
}

func (d *delivery) ok(externalID, url string, at time.Time) models.PostDelivery {
	d.Status = models.DeliveryPublished
	d.ExternalID = externalID
	d.URL = url
	d.PublishedAt = &at
	return d.PostDelivery
}

func missingTarget(p integrations.Provider, what string) *apierrors.APIError {
	return apierrors.NotConnected(string(p)).WithDetails(what + " is not set")
}

// deliver publishes to one platform. Failures are captured in the returned
// delivery, never returned.
func (s *Service) deliver(ctx context.Context, orgID, postID string, p integrations.Provider, c *Compose) models.PostDelivery {
	d := newDelivery(p)

	cfg, err := s.tokens.Token(ctx, orgID, p)
	if err != nil {
		return d.fail(StepToken, connect.APIError(p, err))
	}

	var out models.PostDelivery
	switch p {
	case integrations.Facebook:
		out = s.deliverFacebook(ctx, d, cfg, c)
	case integrations.Instagram:
		out = s.deliverInstagram(ctx, orgID, d, cfg, c)
	case integrations.LinkedIn:
		out = s.deliverLinkedIn(ctx, d, cfg, c)
	case integrations.Webflow:
		out = s.deliverWebflow(ctx, postID, d, cfg, c)
	default:
		out = d.fail(StepTarget, apierrors.BadRequest(fmt.Sprintf("cannot publish to %s", p)))
	}

	if out.Status == models.DeliveryFailed {
		logger.Log.Warn("Delivery failed",
			logger.WithOrgID(orgID),
			logger.WithProvider(string(p)),
			zap.String("post_id", postID),
			zap.String("step", out.Step),
			zap.String("error_code", out.ErrorCode),
			zap.String("error", out.ErrorMessage),
		)
	}
	return out
}

// deliverFacebook posts as the selected page: a photo post when an image is
// attached, a feed post otherwise.
func (s *Service) deliverFacebook(ctx context.Context, d *delivery, cfg *integrations.ProviderConfig, c *Compose) models.PostDelivery {
	pageID := cfg.Setting(integrations.SettingPageID)
	pageToken := cfg.Setting(integrations.SettingPageAccessToken)
	if pageID == "" || pageToken == "" {
		return d.fail(StepTarget, missingTarget(integrations.Facebook, "page"))
	}

	var res *meta.PublishResult
	var err error
	if c.ImageURL != "" {
		res, err = s.clients.Meta.PublishPagePhoto(ctx, pageToken, pageID, c.ImageURL, c.caption())
	} else {
		res, err = s.clients.Meta.PublishPageFeed(ctx, pageToken, pageID, c.Text, c.link())
	}
	if err != nil {
		return d.fail(StepPublish, apierrors.From(err))
	}

	id := res.PostID
	if id == "" {
		id = res.ID
	}
	return d.ok(id, meta.PostURL(id), s.now())
}

// deliverInstagram runs the container flow: create, wait for processing
// (videos only), publish.
func (s *Service) deliverInstagram(ctx context.Context, orgID string, d *delivery, cfg *integrations.ProviderConfig, c *Compose) models.PostDelivery {
	client := s.clients.Meta
	token := cfg.AccessToken

	igUserID, err := s.instagramUser(ctx, orgID, cfg)
	if err != nil {
		return d.fail(StepTarget, apierrors.From(err))
	}
	if igUserID == "" {
		return d.fail(StepTarget, missingTarget(integrations.Instagram, "business account"))
	}

	container := meta.MediaContainer{ImageURL: c.ImageURL, VideoURL: c.VideoURL, Caption: c.caption()}
	containerID, err := client.CreateMediaContainer(ctx, token, igUserID, container)
	if err != nil {
		return d.fail(StepContainer, apierrors.From(err))
	}

	if container.IsVideo() {
		if err := s.waitForContainer(ctx, token, containerID); err != nil {
			return d.fail(StepProcess, processingError(err))
		}
	}

	mediaID, err := client.PublishMediaContainer(ctx, token, igUserID, containerID)
	if err != nil {
		return d.fail(StepPublish, apierrors.From(err))
	}

	permalink, err := client.MediaPermalink(ctx, token, mediaID)
	if err != nil {
		logger.Log.Debug("Instagram permalink lookup failed", zap.String("media_id", mediaID), zap.Error(err))
	}
	return d.ok(mediaID, permalink, s.now())
}

// instagramUser returns the business account id, resolving it from the
// linked page and storing it back when the config does not have it yet.
func (s *Service) instagramUser(ctx context.Context, orgID string, cfg *integrations.ProviderConfig) (string, error) {
	if id := cfg.Setting(integrations.SettingIGUserID); id != "" {
		return id, nil
	}
	pageID := cfg.Setting(integrations.SettingPageID)
	if pageID == "" {
		return "", nil
	}

	account, err := s.clients.Meta.PageInstagramAccount(ctx, cfg.AccessToken, pageID)
	if err != nil || account == nil {
		return "", err
	}

	update := integrations.ProviderConfig{Settings: map[string]string{
		integrations.SettingIGUserID:   account.ID,
		integrations.SettingIGUsername: account.Username,
	}}
	if _, err := s.store.Merge(ctx, orgID, integrations.Instagram, update); err != nil {
		logger.Log.Warn("Failed to store Instagram account id", logger.WithOrgID(orgID), zap.Error(err))
	}
	return account.ID, nil
}

func (s *Service) waitForContainer(ctx context.Context, token, containerID string) error {
	for attempt := 0; attempt < s.pollAttempts; attempt++ {
		status, err := s.clients.Meta.ContainerStatus(ctx, token, containerID)
		if err != nil {
			return err
		}
		switch status {
		case meta.ContainerFinished, meta.ContainerPublished:
			return nil
		case meta.ContainerError, meta.ContainerExpired:
			return fmt.Errorf("container status %s", status)
		}

		timer := time.NewTimer(s.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return errContainerTimeout
}

func processingError(err error) *apierrors.APIError {
	var conv apierrors.Converter
	if errors.As(err, &conv) {
		return conv.AsAPIError()
	}
	if errors.Is(err, errContainerTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return apierrors.New(apierrors.ErrTimeout, "Instagram is still processing the video")
	}
	return apierrors.Upstream(string(integrations.Instagram), err.Error())
}

// deliverLinkedIn posts as the member, or as the administered organization
// when requested.
func (s *Service) deliverLinkedIn(ctx context.Context, d *delivery, cfg *integrations.ProviderConfig, c *Compose) models.PostDelivery {
	author := cfg.Setting(integrations.SettingAuthorURN)
	if c.LinkedInAsOrg {
		author = cfg.Setting(integrations.SettingOrganizationURN)
		if author == "" {
			return d.fail(StepTarget, missingTarget(integrations.LinkedIn, "organization"))
		}
	}
	if author == "" {
		return d.fail(StepTarget, missingTarget(integrations.LinkedIn, "author"))
	}

	share := linkedin.ShareRequest{Author: author, Text: c.Text, Link: c.link(), Title: c.Title}

	var id string
	var err error
	if s.postsAPI {
		id, err = s.clients.LinkedIn.CreatePost(ctx, cfg.AccessToken, share)
	} else {
		id, err = s.clients.LinkedIn.CreateUGCPost(ctx, cfg.AccessToken, share)
	}
	if err != nil {
		return d.fail(StepPublish, apierrors.From(err))
	}
	return d.ok(id, linkedin.PostURL(id), s.now())
}

// deliverWebflow creates a CMS item and publishes the site.
func (s *Service) deliverWebflow(ctx context.Context, postID string, d *delivery, cfg *integrations.ProviderConfig, c *Compose) models.PostDelivery {
	siteID := cfg.Setting(integrations.SettingSiteID)
	collectionID := cfg.Setting(integrations.SettingCollectionID)
	if siteID == "" || collectionID == "" {
		return d.fail(StepTarget, missingTarget(integrations.Webflow, "site and collection"))
	}

	name := c.Title
	if name == "" {
		name = util.Truncate(c.Text, 80)
	}
	fields := map[string]any{
		"name":      name,
		"slug":      itemSlug(name, postID),
		"post-body": bodyHTML(c),
	}
	if c.ImageURL != "" {
		fields["main-image"] = map[string]string{"url": c.ImageURL}
	}

	item, err := s.clients.Webflow.CreateCollectionItem(ctx, cfg.AccessToken, collectionID, fields, false)
	if err != nil {
		return d.fail(StepCreate, apierrors.From(err))
	}
	if err := s.clients.Webflow.PublishSite(ctx, cfg.AccessToken, siteID, nil); err != nil {
		d.ExternalID = item.ID
		return d.fail(StepSite, apierrors.From(err))
	}
	return d.ok(item.ID, "", s.now())
}

func itemSlug(name, postID string) string {
	slug := util.Slugify(name)
	if len(slug) > 60 {
		slug = strings.TrimSuffix(slug[:60], "-")
	}
	suffix := postID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	if slug == "" {
		return "post-" + suffix
	}
	return slug + "-" + suffix
}

// bodyHTML renders the text as rich-text paragraphs.
func bodyHTML(c *Compose) string {
	var b strings.Builder
	for _, para := range strings.Split(c.Text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>"))
		b.WriteString("</p>")
	}
	if c.Link != "" {
		link := html.EscapeString(c.Link)
		fmt.Fprintf(&b, `<p><a href="%s">%s</a></p>`, link, link)
	}
	return b.String()
}
