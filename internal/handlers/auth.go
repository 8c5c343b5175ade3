package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/beacon/internal/auth"
	"github.com/zfogg/beacon/internal/models"
	"github.com/zfogg/beacon/internal/util"
)

// Register creates an account and its first organization
// POST /api/v1/auth/register
func (h *Handlers) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	resp, err := h.auth.Register(c.Request.Context(), req)
	if err != nil {
		util.RespondWithAPIError(c, auth.APIError(err))
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Login exchanges credentials (and a TOTP code when enabled) for a session token
// POST /api/v1/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	resp, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		util.RespondWithAPIError(c, auth.APIError(err))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Me returns the current user and their organizations
// GET /api/v1/auth/me
func (h *Handlers) Me(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	orgs, err := h.auth.ListOrganizations(c.Request.Context(), user.ID)
	if err != nil {
		util.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":          user,
		"organizations": orgs,
	})
}

type totpCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// SetupTOTP starts authenticator enrollment
// POST /api/v1/auth/2fa/setup
func (h *Handlers) SetupTOTP(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	setup, err := h.auth.SetupTOTP(c.Request.Context(), user)
	if err != nil {
		util.RespondWithAPIError(c, auth.APIError(err))
		return
	}
	c.JSON(http.StatusOK, setup)
}

// EnableTOTP confirms enrollment with a first code
// POST /api/v1/auth/2fa/enable
func (h *Handlers) EnableTOTP(c *gin.Context) {
	h.totpChange(c, h.auth.EnableTOTP, true)
}

// DisableTOTP turns two-factor login off
// POST /api/v1/auth/2fa/disable
func (h *Handlers) DisableTOTP(c *gin.Context) {
	h.totpChange(c, h.auth.DisableTOTP, false)
}

func (h *Handlers) totpChange(c *gin.Context, change func(ctx context.Context, user *models.User, code string) error, enabled bool) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	var req totpCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	if err := change(c.Request.Context(), user, req.Code); err != nil {
		util.RespondWithAPIError(c, auth.APIError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"totp_enabled": enabled})
}
