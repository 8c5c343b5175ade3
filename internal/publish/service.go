// Package publish sends composed posts to every selected platform and records
// a normalized delivery per platform.
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	apierrors "github.com/zfogg/beacon/internal/errors"
	"github.com/zfogg/beacon/internal/integrations"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/metrics"
	"github.com/zfogg/beacon/internal/models"
	"github.com/zfogg/beacon/internal/providers/linkedin"
	"github.com/zfogg/beacon/internal/providers/meta"
	"github.com/zfogg/beacon/internal/providers/webflow"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ErrPostNotFound is returned by GetPost.
var ErrPostNotFound = errors.New("post not found")

// TokenSource resolves a usable provider config, refreshing it if needed.
type TokenSource interface {
	Token(ctx context.Context, orgID string, p integrations.Provider) (*integrations.ProviderConfig, error)
}

// Clients are the provider API clients posts are sent through.
type Clients struct {
	Meta     *meta.Client
	LinkedIn *linkedin.Client
	Webflow  *webflow.Client
}

// Options configures a Service.
type Options struct {
	DB      *gorm.DB
	Store   integrations.Store
	Tokens  TokenSource
	Clients Clients

	// LinkedInPostsAPI selects rest/posts over v2/ugcPosts.
	LinkedInPostsAPI bool

	// Instagram video containers are polled until processed.
	PollInterval time.Duration
	PollAttempts int
}

// Service publishes posts.
type Service struct {
	db           *gorm.DB
	store        integrations.Store
	tokens       TokenSource
	clients      Clients
	postsAPI     bool
	pollInterval time.Duration
	pollAttempts int
	now          func() time.Time
}

// NewService creates a publish service.
func NewService(opts Options) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = 20
	}
	return &Service{
		db:           opts.DB,
		store:        opts.Store,
		tokens:       opts.Tokens,
		clients:      opts.Clients,
		postsAPI:     opts.LinkedInPostsAPI,
		pollInterval: opts.PollInterval,
		pollAttempts: opts.PollAttempts,
		now:          time.Now,
	}
}

// Outcome is the stored post with its deliveries. Partial is set when at
// least one platform failed and at least one succeeded.
type Outcome struct {
	Post    *models.Post `json:"post"`
	Partial bool         `json:"partial"`
}

// Publish stores the post and sends it to every platform concurrently. It
// never returns an error: validation problems, storage failures and
// per-platform failures are all reported in the Result.
func (s *Service) Publish(ctx context.Context, orgID, authorID string, c Compose) apierrors.Result[Outcome] {
	if verr := c.Validate(); verr != nil {
		return apierrors.Fail[Outcome](verr)
	}

	post := &models.Post{
		OrgID:     orgID,
		AuthorID:  authorID,
		Title:     c.Title,
		Text:      c.Text,
		Link:      c.Link,
		ImageURL:  c.ImageURL,
		VideoURL:  c.VideoURL,
		Platforms: platformNames(c.Platforms),
		Status:    models.PostStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		logger.Log.Error("Failed to store post", logger.WithOrgID(orgID), zap.Error(err))
		return apierrors.Fail[Outcome](apierrors.InternalError("failed to store post"))
	}

	deliveries := make([]models.PostDelivery, len(c.Platforms))
	var g errgroup.Group
	for i, p := range c.Platforms {
		g.Go(func() error {
			deliveries[i] = s.deliver(ctx, orgID, post.ID, p, &c)
			return nil
		})
	}
	_ = g.Wait()

	published := 0
	m := metrics.Get()
	for i := range deliveries {
		deliveries[i].PostID = post.ID
		if deliveries[i].Status == models.DeliveryPublished {
			published++
		}
		m.PublishDeliveriesTotal.WithLabelValues(deliveries[i].Platform, deliveries[i].Status).Inc()
	}

	switch {
	case published == len(deliveries):
		post.Status = models.PostStatusPublished
	case published == 0:
		post.Status = models.PostStatusFailed
	default:
		post.Status = models.PostStatusPartial
	}

	// Deliveries are recorded even if the request was cancelled meanwhile.
	saveCtx := context.WithoutCancel(ctx)
	err := s.db.WithContext(saveCtx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&deliveries).Error; err != nil {
			return err
		}
		return tx.Model(post).Update("status", post.Status).Error
	})
	if err != nil {
		logger.Log.Error("Failed to record deliveries",
			logger.WithOrgID(orgID),
			zap.String("post_id", post.ID),
			zap.Error(err),
		)
	}
	post.Deliveries = deliveries

	logger.Log.Info("Post published",
		logger.WithOrgID(orgID),
		zap.String("post_id", post.ID),
		zap.String("status", post.Status),
		zap.Int("published", published),
		zap.Int("platforms", len(deliveries)),
	)

	out := Outcome{Post: post, Partial: post.Status == models.PostStatusPartial}
	if published == 0 {
		return apierrors.FailWith(out, failureError(deliveries))
	}
	return apierrors.OK(out)
}

// failureError summarizes deliveries that all failed. A single platform keeps
// its own error code.
func failureError(ds []models.PostDelivery) *apierrors.APIError {
	if len(ds) == 1 {
		return apierrors.New(apierrors.ErrorCode(ds[0].ErrorCode), ds[0].ErrorMessage)
	}
	return apierrors.New(apierrors.ErrUpstream, "publishing failed on every platform")
}

func platformNames(ps []integrations.Provider) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

// ListPosts returns the organization's posts, newest first, with the total
// count for pagination.
func (s *Service) ListPosts(ctx context.Context, orgID string, limit, offset int) ([]models.Post, int64, error) {
	var total int64
	q := s.db.WithContext(ctx).Model(&models.Post{}).Where("org_id = ?", orgID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	var posts []models.Post
	err := s.db.WithContext(ctx).
		Preload("Deliveries").
		Where("org_id = ?", orgID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	return posts, total, nil
}

// GetPost returns one post of the organization with its deliveries.
func (s *Service) GetPost(ctx context.Context, orgID, postID string) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).
		Preload("Deliveries").
		Where("org_id = ? AND id = ?", orgID, postID).
		First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return &post, nil
}
