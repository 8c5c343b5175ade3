package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/beacon/internal/publish"
	"github.com/zfogg/beacon/internal/util"
)

// CreatePost publishes a composed post to the selected platforms. The body is
// always the tagged publish result; the status code says whether the post was
// stored (201), stored but delivered nowhere (502) or rejected.
// POST /api/v1/orgs/:org/posts
func (h *Handlers) CreatePost(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	m, ok := util.GetMembershipFromContext(c)
	if !ok {
		return
	}
	var compose publish.Compose
	if err := c.ShouldBindJSON(&compose); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	result := h.publish.Publish(c.Request.Context(), m.OrgID, user.ID, compose)
	switch {
	case result.Success:
		c.JSON(http.StatusCreated, result)
	case result.Data.Post != nil:
		c.JSON(http.StatusBadGateway, result)
	default:
		c.JSON(result.Error.Status, result)
	}
}

// ListPosts returns the organization's posts, newest first
// GET /api/v1/orgs/:org/posts?limit=&offset=
func (h *Handlers) ListPosts(c *gin.Context) {
	m, ok := util.GetMembershipFromContext(c)
	if !ok {
		return
	}
	limit := util.ParseBoundedInt(c.Query("limit"), 20, 1, 100)
	offset := util.ParseBoundedInt(c.Query("offset"), 0, 0, 1_000_000)

	posts, total, err := h.publish.ListPosts(c.Request.Context(), m.OrgID, limit, offset)
	if err != nil {
		util.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"posts":  posts,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetPost returns one post with its deliveries
// GET /api/v1/orgs/:org/posts/:id
func (h *Handlers) GetPost(c *gin.Context) {
	m, ok := util.GetMembershipFromContext(c)
	if !ok {
		return
	}
	post, err := h.publish.GetPost(c.Request.Context(), m.OrgID, c.Param("id"))
	if errors.Is(err, publish.ErrPostNotFound) {
		util.RespondNotFound(c, "post")
		return
	} else if err != nil {
		util.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}
