package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/zfogg/beacon/internal/errors"
	"github.com/zfogg/beacon/internal/integrations"
	"github.com/zfogg/beacon/internal/models"
	"github.com/zfogg/beacon/internal/reports"
	"github.com/zfogg/beacon/internal/util"
	"golang.org/x/sync/errgroup"
)

const dashboardRecentPosts = 5

// DashboardPage is the organization home page.
type DashboardPage struct {
	Organization models.Organization        `json:"organization"`
	Role         models.Role                `json:"role"`
	Connections  []integrations.Status      `json:"connections"`
	Analytics    *reports.AnalyticsOverview `json:"analytics"`
	RecentPosts  []models.Post              `json:"recent_posts"`
}

// dateRange parses ?start=&end=, responding 422 when they are invalid.
func (h *Handlers) dateRange(c *gin.Context) (reports.DateRange, bool) {
	rng, err := h.reports.Range(c.Query("start"), c.Query("end"))
	if err != nil {
		util.RespondValidationError(c, "start", err.Error())
		return rng, false
	}
	return rng, true
}

// Dashboard returns connection statuses, the analytics overview and recent
// posts in one document
// GET /api/v1/orgs/:org/dashboard
func (h *Handlers) Dashboard(c *gin.Context) {
	m, ok := util.GetMembershipFromContext(c)
	if !ok {
		return
	}
	rng, ok := h.dateRange(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	page := DashboardPage{Organization: m.Organization, Role: m.Role}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		statuses, err := integrations.Statuses(gctx, h.configs, m.OrgID)
		page.Connections = statuses
		return err
	})
	g.Go(func() error {
		posts, _, err := h.publish.ListPosts(gctx, m.OrgID, dashboardRecentPosts, 0)
		page.RecentPosts = posts
		return err
	})
	// the analytics overview reports its own failures per section
	g.Go(func() error {
		page.Analytics = h.reports.AnalyticsOverview(ctx, m.OrgID, rng)
		return nil
	})
	if err := g.Wait(); err != nil {
		util.RespondWithError(c, err)
		return
	}
	if page.RecentPosts == nil {
		page.RecentPosts = []models.Post{}
	}
	c.JSON(http.StatusOK, page)
}

// Analytics returns the GA4, Search Console and PageSpeed overview
// GET /api/v1/orgs/:org/analytics?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *Handlers) Analytics(c *gin.Context) {
	m, ok := util.GetMembershipFromContext(c)
	if !ok {
		return
	}
	rng, ok := h.dateRange(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.reports.AnalyticsOverview(c.Request.Context(), m.OrgID, rng))
}

// PageSpeed runs a PageSpeed audit for the configured site
// GET /api/v1/orgs/:org/analytics/pagespeed?strategy=mobile|desktop
func (h *Handlers) PageSpeed(c *gin.Context) {
	m, ok := util.GetMembershipFromContext(c)
	if !ok {
		return
	}
	section := h.reports.PageSpeed(c.Request.Context(), m.OrgID, c.Query("strategy"))
	if section.Error != nil && section.Error.Code == apierrors.ErrValidation {
		util.RespondWithAPIError(c, section.Error)
		return
	}
	c.JSON(http.StatusOK, section)
}

// SocialOverview returns a social provider's account, insights and recent posts
// GET /api/v1/orgs/:org/social/:provider
func (h *Handlers) SocialOverview(c *gin.Context) {
	m, ok := util.GetMembershipFromContext(c)
	if !ok {
		return
	}
	p, ok := providerParam(c)
	if !ok {
		return
	}
	overview, err := h.reports.Overview(c.Request.Context(), m.OrgID, p)
	if err != nil {
		util.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}
