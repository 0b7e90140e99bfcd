package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"instasend/mailer/internal/apperr"
	"instasend/mailer/internal/compose"
	"instasend/mailer/internal/editor"
	"instasend/mailer/internal/services"
)

// TemplateHandler handles REST requests for the caller's templates.
type TemplateHandler struct {
	templates services.ITemplateService
	compose   compose.IService
}

// NewTemplateHandler creates a new TemplateHandler. Saved templates are
// promoted into the caller's composition when it has them selected.
func NewTemplateHandler(templates services.ITemplateService, composeSvc compose.IService) *TemplateHandler {
	return &TemplateHandler{templates: templates, compose: composeSvc}
}

// List handles GET /v1/templates
func (h *TemplateHandler) List(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	templates, err := h.templates.List(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to fetch templates")
		return
	}
	c.JSON(http.StatusOK, templates)
}

// Get handles GET /v1/templates/:id
func (h *TemplateHandler) Get(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	t, err := h.templates.Get(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to fetch template")
		return
	}
	c.JSON(http.StatusOK, t)
}

// Create handles POST /v1/templates
func (h *TemplateHandler) Create(c *gin.Context) {
	h.save(c, "", http.StatusCreated)
}

// Update handles PUT /v1/templates/:id
func (h *TemplateHandler) Update(c *gin.Context) {
	h.save(c, c.Param("id"), http.StatusOK)
}

func (h *TemplateHandler) save(c *gin.Context, templateID string, status int) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var in services.TemplateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, apperr.Validation("Invalid request body"), "")
		return
	}

	ctx := c.Request.Context()
	saved, err := editor.DraftFromInput(templateID, in).Save(ctx, h.templates, id)
	if err != nil {
		respondError(c, err, "Failed to save template")
		return
	}

	if h.compose != nil {
		if _, err := h.compose.Promote(ctx, id, saved); err != nil {
			// The template is saved; the composition picks it up on next select.
			log.WithError(err).WithField("template_id", saved.ID.Hex()).Warn("failed to promote saved template")
		}
	}
	c.JSON(status, saved)
}

// Delete handles DELETE /v1/templates/:id
func (h *TemplateHandler) Delete(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	if err := h.templates.Delete(c.Request.Context(), id, c.Param("id")); err != nil {
		respondError(c, err, "Failed to delete template")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
