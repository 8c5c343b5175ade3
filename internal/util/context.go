package util

import (
	"github.com/gin-gonic/gin"
	"github.com/zfogg/beacon/internal/models"
)

// Context keys set by the auth and organization middleware.
const (
	ContextUser       = "user"
	ContextUserID     = "user_id"
	ContextMembership = "membership"
	ContextOrgID      = "org_id"
)

// GetUserFromContext extracts the authenticated user from the Gin context.
// If the user is not authenticated, it responds with 401 Unauthorized.
func GetUserFromContext(c *gin.Context) (*models.User, bool) {
	user, exists := c.Get(ContextUser)
	if !exists {
		RespondUnauthorized(c)
		return nil, false
	}
	userPtr, ok := user.(*models.User)
	if !ok {
		RespondInternalError(c, "invalid user data in context")
		return nil, false
	}
	return userPtr, true
}

// GetMembershipFromContext returns the caller's membership in the
// organization of the current route.
func GetMembershipFromContext(c *gin.Context) (*models.Membership, bool) {
	m, exists := c.Get(ContextMembership)
	if !exists {
		RespondForbidden(c, "not a member of this organization")
		return nil, false
	}
	membership, ok := m.(*models.Membership)
	if !ok {
		RespondInternalError(c, "invalid membership data in context")
		return nil, false
	}
	return membership, true
}
