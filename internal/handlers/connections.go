package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/beacon/internal/connect"
	apierrors "github.com/zfogg/beacon/internal/errors"
	"github.com/zfogg/beacon/internal/integrations"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/util"
	"go.uber.org/zap"
)

// providerParam parses the :provider route parameter, responding 400 when it
// names no supported provider.
func providerParam(c *gin.Context) (integrations.Provider, bool) {
	p, err := integrations.ParseProvider(c.Param("provider"))
	if err != nil {
		util.RespondWithAPIError(c, apierrors.BadRequest(err.Error()))
		return "", false
	}
	return p, true
}

// ListConnections returns the connection status of every provider
// GET /api/v1/orgs/:org/connections
func (h *Handlers) ListConnections(c *gin.Context) {
	m, ok := util.GetMembershipFromContext(c)
	if !ok {
		return
	}
	statuses, err := integrations.Statuses(c.Request.Context(), h.configs, m.OrgID)
	if err != nil {
		util.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": statuses})
}

// GetConnection returns one provider's status
// GET /api/v1/orgs/:org/connections/:provider
func (h *Handlers) GetConnection(c *gin.Context) {
	m, ok := util.GetMembershipFromContext(c)
	if !ok {
		return
	}
	p, ok := providerParam(c)
	if !ok {
		return
	}
	cfg, err := h.configs.Load(c.Request.Context(), m.OrgID, p)
	if err != nil && !errors.Is(err, integrations.ErrNotConnected) {
		util.RespondWithAPIError(c, connect.APIError(p, err))
		return
	}
	c.JSON(http.StatusOK, integrations.StatusOf(p, cfg, h.now()))
}

// Disconnect removes a provider connection
// DELETE /api/v1/orgs/:org/connections/:provider
func (h *Handlers) Disconnect(c *gin.Context) {
	m, ok := util.GetMembershipFromContext(c)
	if !ok {
		return
	}
	p, ok := providerParam(c)
	if !ok {
		return
	}
	if err := h.connect.Disconnect(c.Request.Context(), m.OrgID, p); err != nil {
		util.RespondWithAPIError(c, connect.APIError(p, err))
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateConnectionSettings changes user-editable settings such as the GA4
// property or the Webflow collection
// PATCH /api/v1/orgs/:org/connections/:provider/settings
func (h *Handlers) UpdateConnectionSettings(c *gin.Context) {
	m, ok := util.GetMembershipFromContext(c)
	if !ok {
		return
	}
	p, ok := providerParam(c)
	if !ok {
		return
	}
	var settings map[string]string
	if err := c.ShouldBindJSON(&settings); err != nil {
		util.RespondBadRequest(c, "settings must be an object of strings")
		return
	}
	if len(settings) == 0 {
		util.RespondValidationError(c, "settings", "no settings given")
		return
	}

	for k := range settings {
		if !integrations.IsEditableSetting(p, k) && !(p == integrations.Facebook && k == integrations.SettingPageID) {
			util.RespondWithAPIError(c, connect.APIError(p, fmt.Errorf("%w: %s", integrations.ErrSettingNotEditable, k)))
			return
		}
	}

	ctx := c.Request.Context()
	var cfg *integrations.ProviderConfig
	var err error
	if pageID, ok := settings[integrations.SettingPageID]; ok && p == integrations.Facebook {
		// the page token must follow the page
		delete(settings, integrations.SettingPageID)
		if pageID == "" {
			util.RespondValidationError(c, integrations.SettingPageID, "page_id cannot be cleared")
			return
		}
		cfg, err = h.connect.SelectFacebookPage(ctx, m.OrgID, pageID)
		if err != nil {
			util.RespondWithAPIError(c, connect.APIError(p, err))
			return
		}
	}
	if len(settings) > 0 {
		cfg, err = h.configs.UpdateSettings(ctx, m.OrgID, p, settings)
		if err != nil {
			util.RespondWithAPIError(c, connect.APIError(p, err))
			return
		}
	}
	logger.Log.Info("Connection settings updated",
		logger.WithOrgID(m.OrgID),
		logger.WithProvider(string(p)),
		zap.Int("keys", len(settings)),
	)
	c.JSON(http.StatusOK, integrations.StatusOf(p, cfg, h.now()))
}

// ConnectWebflow stores a Webflow API token
// POST /api/v1/orgs/:org/connections/webflow
func (h *Handlers) ConnectWebflow(c *gin.Context) {
	m, ok := util.GetMembershipFromContext(c)
	if !ok {
		return
	}
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondValidationError(c, "token", "token is required")
		return
	}

	cfg, err := h.connect.ConnectWithToken(c.Request.Context(), m.OrgID, req.Token)
	if err != nil {
		util.RespondWithAPIError(c, connect.APIError(integrations.Webflow, err))
		return
	}
	c.JSON(http.StatusCreated, integrations.StatusOf(integrations.Webflow, cfg, h.now()))
}

// BeginConnect redirects to the provider's consent screen. With
// ?format=json the URL is returned instead, for clients that cannot follow a
// redirect carrying their bearer token.
// GET /api/v1/orgs/:org/connect/:provider
func (h *Handlers) BeginConnect(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	m, ok := util.GetMembershipFromContext(c)
	if !ok {
		return
	}
	p, ok := providerParam(c)
	if !ok {
		return
	}

	authURL, err := h.connect.Begin(c.Request.Context(), m.OrgID, user.ID, p, c.Query("return_to"))
	if err != nil {
		util.RespondWithAPIError(c, connect.APIError(p, err))
		return
	}
	if c.Query("format") == "json" {
		c.JSON(http.StatusOK, gin.H{"url": authURL})
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// ConnectCallback completes the authorization and sends the browser back to
// the dashboard. Failures are reported through the redirect query.
// GET /api/v1/connect/:provider/callback
func (h *Handlers) ConnectCallback(c *gin.Context) {
	p, ok := providerParam(c)
	if !ok {
		return
	}
	target, err := h.connect.Complete(c.Request.Context(), p, connect.CallbackParams{
		Code:             c.Query("code"),
		State:            c.Query("state"),
		Error:            c.Query("error"),
		ErrorDescription: c.Query("error_description"),
	})
	if err != nil {
		logger.Log.Warn("OAuth callback failed",
			logger.WithProvider(string(p)),
			logger.WithRequestID(c.GetString("request_id")),
			zap.Error(err),
		)
	}
	c.Redirect(http.StatusFound, target)
}
