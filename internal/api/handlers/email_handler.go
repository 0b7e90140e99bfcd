package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"instasend/mailer/internal/apperr"
	"instasend/mailer/internal/config"
	"instasend/mailer/internal/email"
)

// EmailHandler sends one-off emails that bypass the composition flow.
type EmailHandler struct {
	cfg    *config.Config
	sender email.Sender
}

func NewEmailHandler(cfg *config.Config, sender email.Sender) *EmailHandler {
	return &EmailHandler{cfg: cfg, sender: sender}
}

// Send handles POST /v1/email/send (multipart: subject, content, recipient,
// optional attachment).
func (h *EmailHandler) Send(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	recipient := strings.TrimSpace(c.PostForm("recipient"))
	if recipient == "" {
		respondError(c, apperr.Validation("Recipient email is required"), "")
		return
	}
	msg := &email.Message{
		To:      recipient,
		Subject: c.PostForm("subject"),
		HTML:    c.PostForm("content"),
	}

	fh, err := c.FormFile("attachment")
	switch {
	case err == nil:
		attachment, err := readAttachment(h.cfg, fh)
		if err != nil {
			respondError(c, err, "Failed to read attachment")
			return
		}
		msg.Attachment = attachment
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		respondError(c, apperr.Validation("Invalid attachment"), "")
		return
	}

	if err := h.sender.Send(c.Request.Context(), id, msg); err != nil {
		log.WithError(err).WithFields(log.Fields{"user_id": id.UserID, "to": recipient}).Warn("email send failed")
		respondError(c, err, "Failed to send email")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// readAttachment loads an uploaded file, enforcing the configured size and
// type limits.
func readAttachment(cfg *config.Config, fh *multipart.FileHeader) (*email.Attachment, error) {
	if fh.Size > cfg.AttachmentMaxBytes() {
		return nil, apperr.Validation("Attachment exceeds %d MB", cfg.AttachmentMaxSizeMB)
	}
	contentType := fh.Header.Get("Content-Type")
	if !cfg.AttachmentTypeAllowed(contentType) {
		return nil, apperr.Validation("Attachment type %q is not allowed", contentType)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperr.Validation("Invalid attachment")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, cfg.AttachmentMaxBytes()+1))
	if err != nil {
		return nil, apperr.Validation("Invalid attachment")
	}
	if int64(len(data)) > cfg.AttachmentMaxBytes() {
		return nil, apperr.Validation("Attachment exceeds %d MB", cfg.AttachmentMaxSizeMB)
	}
	return &email.Attachment{Filename: fh.Filename, ContentType: contentType, Data: data}, nil
}
