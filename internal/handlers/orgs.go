package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/beacon/internal/auth"
	"github.com/zfogg/beacon/internal/models"
	"github.com/zfogg/beacon/internal/util"
)

// ListOrganizations returns the caller's organizations with their role
// GET /api/v1/orgs
func (h *Handlers) ListOrganizations(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	orgs, err := h.auth.ListOrganizations(c.Request.Context(), user.ID)
	if err != nil {
		util.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizations": orgs})
}

// CreateOrganization creates an organization owned by the caller
// POST /api/v1/orgs
func (h *Handlers) CreateOrganization(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name" binding:"required,min=1,max=120"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	org, err := h.auth.CreateOrganization(c.Request.Context(), user, req.Name)
	if err != nil {
		util.RespondWithAPIError(c, auth.APIError(err))
		return
	}
	c.JSON(http.StatusCreated, auth.OrganizationSummary{Organization: *org, Role: models.RoleOwner})
}

// GetOrganization returns the organization of the route with the caller's role
// GET /api/v1/orgs/:org
func (h *Handlers) GetOrganization(c *gin.Context) {
	m, ok := util.GetMembershipFromContext(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, auth.OrganizationSummary{Organization: m.Organization, Role: m.Role})
}

// ListMembers lists the organization's members
// GET /api/v1/orgs/:org/members
func (h *Handlers) ListMembers(c *gin.Context) {
	m, ok := util.GetMembershipFromContext(c)
	if !ok {
		return
	}
	members, err := h.auth.ListMembers(c.Request.Context(), m.OrgID)
	if err != nil {
		util.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// InviteMember invites someone by email
// POST /api/v1/orgs/:org/invitations
func (h *Handlers) InviteMember(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	m, ok := util.GetMembershipFromContext(c)
	if !ok {
		return
	}
	var req struct {
		Email string      `json:"email" binding:"required,email"`
		Role  models.Role `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	if req.Role == "" {
		req.Role = models.RoleMember
	}

	inv, err := h.auth.InviteMember(c.Request.Context(), m, user.DisplayName, req.Email, req.Role)
	if err != nil {
		util.RespondWithAPIError(c, auth.APIError(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         inv.ID,
		"email":      inv.Email,
		"role":       inv.Role,
		"expires_at": inv.ExpiresAt,
	})
}

// AcceptInvitation joins the caller to the invitation's organization
// POST /api/v1/invitations/:token/accept
func (h *Handlers) AcceptInvitation(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	m, err := h.auth.AcceptInvitation(c.Request.Context(), user, c.Param("token"))
	if err != nil {
		util.RespondWithAPIError(c, auth.APIError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"org_id": m.OrgID, "role": m.Role})
}
