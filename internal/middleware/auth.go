package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/beacon/internal/auth"
	"github.com/zfogg/beacon/internal/models"
	"github.com/zfogg/beacon/internal/util"
)

const (
	userIDKey = util.ContextUserID
	orgIDKey  = util.ContextOrgID
)

// TokenValidator resolves a session token to its user.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*models.User, error)
}

// MembershipLookup finds a user's membership in an organization.
type MembershipLookup interface {
	Membership(ctx context.Context, userID, orgID string) (*models.Membership, error)
}

// RequireAuth validates the bearer token and puts the user in the context.
func RequireAuth(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			util.RespondUnauthorized(c, "missing bearer token")
			return
		}

		user, err := tokens.ValidateToken(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			util.RespondWithAPIError(c, auth.APIError(err))
			return
		}

		c.Set(util.ContextUser, user)
		c.Set(userIDKey, user.ID)
		c.Next()
	}
}

// RequireMember loads the caller's membership in the :org route parameter.
// It must run after RequireAuth.
func RequireMember(members MembershipLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := util.GetUserFromContext(c)
		if !ok {
			return
		}
		orgID := c.Param("org")
		if orgID == "" {
			util.RespondBadRequest(c, "missing organization")
			return
		}

		m, err := members.Membership(c.Request.Context(), user.ID, orgID)
		if err != nil {
			util.RespondWithAPIError(c, auth.APIError(err))
			return
		}

		c.Set(util.ContextMembership, m)
		c.Set(orgIDKey, m.OrgID)
		c.Next()
	}
}

// RequireManager allows owners and admins only. It must run after
// RequireMember.
func RequireManager() gin.HandlerFunc {
	return func(c *gin.Context) {
		m, ok := util.GetMembershipFromContext(c)
		if !ok {
			return
		}
		if !m.Role.CanManage() {
			util.RespondWithAPIError(c, auth.APIError(auth.ErrForbidden))
			return
		}
		c.Next()
	}
}
