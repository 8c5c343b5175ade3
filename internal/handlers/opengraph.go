package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/opengraph"
	"github.com/zfogg/beacon/internal/util"
	"go.uber.org/zap"
)

const pngContentType = "image/png"

// ListTemplates lists the organization's Open Graph templates
// GET /api/v1/orgs/:org/og/templates
func (h *Handlers) ListTemplates(c *gin.Context) {
	m, ok := util.GetMembershipFromContext(c)
	if !ok {
		return
	}
	templates, err := h.og.List(c.Request.Context(), m.OrgID)
	if err != nil {
		util.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

// CreateTemplate stores a new template
// POST /api/v1/orgs/:org/og/templates
func (h *Handlers) CreateTemplate(c *gin.Context) {
	m, ok := util.GetMembershipFromContext(c)
	if !ok {
		return
	}
	var t opengraph.Template
	if err := c.ShouldBindJSON(&t); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	created, err := h.og.Create(c.Request.Context(), m.OrgID, t)
	if err != nil {
		util.RespondWithAPIError(c, opengraph.APIError(err))
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GetTemplate returns one template
// GET /api/v1/orgs/:org/og/templates/:id
func (h *Handlers) GetTemplate(c *gin.Context) {
	m, ok := util.GetMembershipFromContext(c)
	if !ok {
		return
	}
	t, err := h.og.Get(c.Request.Context(), m.OrgID, c.Param("id"))
	if err != nil {
		util.RespondWithAPIError(c, opengraph.APIError(err))
		return
	}
	c.JSON(http.StatusOK, t)
}

// UpdateTemplate replaces a template's definition
// PUT /api/v1/orgs/:org/og/templates/:id
func (h *Handlers) UpdateTemplate(c *gin.Context) {
	m, ok := util.GetMembershipFromContext(c)
	if !ok {
		return
	}
	var t opengraph.Template
	if err := c.ShouldBindJSON(&t); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	updated, err := h.og.Update(c.Request.Context(), m.OrgID, c.Param("id"), t)
	if err != nil {
		util.RespondWithAPIError(c, opengraph.APIError(err))
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteTemplate removes a template
// DELETE /api/v1/orgs/:org/og/templates/:id
func (h *Handlers) DeleteTemplate(c *gin.Context) {
	m, ok := util.GetMembershipFromContext(c)
	if !ok {
		return
	}
	if err := h.og.Delete(c.Request.Context(), m.OrgID, c.Param("id")); err != nil {
		util.RespondWithAPIError(c, opengraph.APIError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// EditElement applies one canvas edit (move, resize, front, remove, update)
// PATCH /api/v1/orgs/:org/og/templates/:id/elements/:element
func (h *Handlers) EditElement(c *gin.Context) {
	m, ok := util.GetMembershipFromContext(c)
	if !ok {
		return
	}
	var patch opengraph.ElementPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	updated, err := h.og.UpdateElement(c.Request.Context(), m.OrgID, c.Param("id"), c.Param("element"), patch)
	if err != nil {
		util.RespondWithAPIError(c, opengraph.APIError(err))
		return
	}
	c.JSON(http.StatusOK, updated)
}

type previewRequest struct {
	Template opengraph.Template `json:"template"`
	Vars     map[string]string  `json:"vars"`
}

// PreviewTemplate renders an unsaved template as PNG
// POST /api/v1/orgs/:org/og/preview
func (h *Handlers) PreviewTemplate(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	data, err := h.og.Draw(c.Request.Context(), &req.Template, req.Vars, opengraph.SourcePreview)
	if err != nil {
		util.RespondWithAPIError(c, opengraph.APIError(err))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, pngContentType, data)
}

// RenderTemplate renders a stored template and returns where the image lives
// POST /api/v1/orgs/:org/og/templates/:id/render
func (h *Handlers) RenderTemplate(c *gin.Context) {
	m, ok := util.GetMembershipFromContext(c)
	if !ok {
		return
	}
	var req struct {
		Vars map[string]string `json:"vars"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			util.RespondBadRequest(c, err.Error())
			return
		}
	}

	t, err := h.og.Get(c.Request.Context(), m.OrgID, c.Param("id"))
	if err != nil {
		util.RespondWithAPIError(c, opengraph.APIError(err))
		return
	}
	out, err := h.og.Render(c.Request.Context(), t, req.Vars)
	if err != nil {
		util.RespondWithAPIError(c, opengraph.APIError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"key":    out.Key,
		"url":    out.URL,
		"cached": out.Cached,
		"public": "/og/" + t.ID + ".png",
	})
}

// PublicImage serves a rendered template to crawlers. Query parameters fill
// the template's variables. Only renders already stored from the app are
// served from storage; other variable sets are drawn per request.
// GET /og/:file (":template.png")
func (h *Handlers) PublicImage(c *gin.Context) {
	id, ok := strings.CutSuffix(c.Param("file"), ".png")
	if !ok || id == "" {
		util.RespondNotFound(c, "image")
		return
	}

	t, err := h.og.GetPublic(c.Request.Context(), id)
	if err != nil {
		util.RespondWithAPIError(c, opengraph.APIError(err))
		return
	}
	vars := make(map[string]string)
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			vars[k] = v[0]
		}
	}

	out, err := h.og.RenderPublic(c.Request.Context(), t, vars)
	if errors.Is(err, opengraph.ErrVarTooLong) {
		util.RespondWithAPIError(c, opengraph.APIError(err))
		return
	}
	if err != nil {
		logger.Log.Error("Open Graph render failed", zap.String("template_id", id), zap.Error(err))
		util.RespondWithAPIError(c, opengraph.APIError(err))
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.Header("ETag", `"`+out.Key+`"`)
	if c.GetHeader("If-None-Match") == `"`+out.Key+`"` {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, pngContentType, out.Data)
}
