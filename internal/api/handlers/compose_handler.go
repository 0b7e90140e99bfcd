package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"instasend/mailer/internal/apperr"
	"instasend/mailer/internal/auth"
	"instasend/mailer/internal/compose"
	"instasend/mailer/internal/config"
)

// ComposeHandler exposes the caller's composition session.
type ComposeHandler struct {
	cfg     *config.Config
	compose compose.IService
}

func NewComposeHandler(cfg *config.Config, composeSvc compose.IService) *ComposeHandler {
	return &ComposeHandler{cfg: cfg, compose: composeSvc}
}

type selectTemplateRequest struct {
	TemplateID string `json:"template_id" binding:"required"`
}

type updateDraftRequest struct {
	Subject *string `json:"subject"`
	Body    *string `json:"body"`
}

type placeholderValueRequest struct {
	Value string `json:"value"`
}

type recipientRequest struct {
	Recipient string `json:"recipient"`
}

// sessionResponse is returned by every compose endpoint. Preview is set only
// by POST /v1/compose/preview.
type sessionResponse struct {
	Session *compose.Session  `json:"session"`
	Preview *compose.Rendered `json:"preview,omitempty"`
}

// run authenticates the caller, invokes op and writes the resulting session.
func (h *ComposeHandler) run(c *gin.Context, fallback string, op func(id auth.Identity) (*compose.Session, error)) {
	id, ok := identity(c)
	if !ok {
		return
	}
	sess, err := op(id)
	if err != nil {
		respondError(c, err, fallback)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{Session: sess})
}

// bind decodes the JSON body into req, writing a 400 on failure.
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondError(c, apperr.Validation("Invalid request body"), "")
		return false
	}
	return true
}

// Get handles GET /v1/compose
func (h *ComposeHandler) Get(c *gin.Context) {
	h.run(c, "Failed to load composition", func(id auth.Identity) (*compose.Session, error) {
		return h.compose.Get(c.Request.Context(), id)
	})
}

// SelectTemplate handles POST /v1/compose/template
func (h *ComposeHandler) SelectTemplate(c *gin.Context) {
	var req selectTemplateRequest
	if !bind(c, &req) {
		return
	}
	h.run(c, "Failed to select template", func(id auth.Identity) (*compose.Session, error) {
		return h.compose.SelectTemplate(c.Request.Context(), id, req.TemplateID)
	})
}

// UpdateDraft handles PUT /v1/compose/draft
func (h *ComposeHandler) UpdateDraft(c *gin.Context) {
	var req updateDraftRequest
	if !bind(c, &req) {
		return
	}
	h.run(c, "Failed to update draft", func(id auth.Identity) (*compose.Session, error) {
		return h.compose.UpdateDraft(c.Request.Context(), id, req.Subject, req.Body)
	})
}

// SetPlaceholder handles PUT /v1/compose/placeholders/:key
func (h *ComposeHandler) SetPlaceholder(c *gin.Context) {
	var req placeholderValueRequest
	if !bind(c, &req) {
		return
	}
	h.run(c, "Failed to set placeholder", func(id auth.Identity) (*compose.Session, error) {
		return h.compose.SetPlaceholder(c.Request.Context(), id, c.Param("key"), req.Value)
	})
}

// SetRecipient handles PUT /v1/compose/recipient
func (h *ComposeHandler) SetRecipient(c *gin.Context) {
	var req recipientRequest
	if !bind(c, &req) {
		return
	}
	h.run(c, "Failed to set recipient", func(id auth.Identity) (*compose.Session, error) {
		return h.compose.SetRecipient(c.Request.Context(), id, req.Recipient)
	})
}

// Attach handles POST /v1/compose/attachment (multipart: attachment)
func (h *ComposeHandler) Attach(c *gin.Context) {
	fh, err := c.FormFile("attachment")
	if err != nil {
		respondError(c, apperr.Validation("Attachment is required"), "")
		return
	}
	h.run(c, "Failed to attach file", func(id auth.Identity) (*compose.Session, error) {
		a, err := readAttachment(h.cfg, fh)
		if err != nil {
			return nil, err
		}
		return h.compose.Attach(c.Request.Context(), id, a.Filename, a.ContentType, a.Data)
	})
}

// RemoveAttachment handles DELETE /v1/compose/attachment
func (h *ComposeHandler) RemoveAttachment(c *gin.Context) {
	h.run(c, "Failed to remove attachment", func(id auth.Identity) (*compose.Session, error) {
		return h.compose.RemoveAttachment(c.Request.Context(), id)
	})
}

// Preview handles POST /v1/compose/preview
func (h *ComposeHandler) Preview(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	rendered, sess, err := h.compose.Preview(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to render preview")
		return
	}
	c.JSON(http.StatusOK, sessionResponse{Session: sess, Preview: &rendered})
}

// Back handles POST /v1/compose/back
func (h *ComposeHandler) Back(c *gin.Context) {
	h.run(c, "Failed to leave preview", func(id auth.Identity) (*compose.Session, error) {
		return h.compose.Back(c.Request.Context(), id)
	})
}

// Send handles POST /v1/compose/send. A failed send answers with the error
// and the preserved session so the client can show both.
func (h *ComposeHandler) Send(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	sess, err := h.compose.Send(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		c.JSON(apperr.HTTPStatus(err), gin.H{
			"error":   apperr.Message(err, "Failed to send email"),
			"session": sess,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": sess})
}

// Acknowledge handles POST /v1/compose/ack
func (h *ComposeHandler) Acknowledge(c *gin.Context) {
	h.run(c, "Failed to acknowledge", func(id auth.Identity) (*compose.Session, error) {
		return h.compose.Acknowledge(c.Request.Context(), id)
	})
}

// Discard handles DELETE /v1/compose
func (h *ComposeHandler) Discard(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	if err := h.compose.Discard(c.Request.Context(), id); err != nil {
		respondError(c, err, "Failed to discard composition")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
