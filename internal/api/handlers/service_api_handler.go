package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"instasend/mailer/internal/apperr"
	"instasend/mailer/internal/auth"
	"instasend/mailer/internal/config"
	"instasend/mailer/internal/email"
	"instasend/mailer/internal/services"
)

const (
	testEmailPollAttempts = 10
	testEmailPollInterval = 200 * time.Millisecond
)

// IMockMailbox reads emails captured by the mock sender.
type IMockMailbox interface {
	LastEmail(ctx context.Context, recipient string) (*email.MockEmail, error)
}

// JsonApiRequest defines the expected structure for service API requests.
type JsonApiRequest struct {
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// JsonApiResponse defines the structure for service API responses.
type JsonApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// apiMethodFunc defines the signature for service API methods.
type apiMethodFunc func(c *gin.Context, args json.RawMessage) (interface{}, error)

// ServiceApiHandler serves the internal-port POST /api endpoint used by
// operators and end-to-end tests.
type ServiceApiHandler struct {
	cfg          *config.Config
	users        services.IUserService
	mailbox      IMockMailbox
	shutdownChan chan<- struct{}
	methods      map[string]apiMethodFunc
}

// NewServiceApiHandler creates the handler. mailbox may be nil when mock
// services are off, in which case getTestEmail fails.
func NewServiceApiHandler(cfg *config.Config, users services.IUserService, mailbox IMockMailbox, shutdownChan chan<- struct{}) *ServiceApiHandler {
	h := &ServiceApiHandler{
		cfg:          cfg,
		users:        users,
		mailbox:      mailbox,
		shutdownChan: shutdownChan,
	}
	h.methods = map[string]apiMethodFunc{
		"shutdown":     h.shutdown,
		"getTestEmail": h.getTestEmail,
		"issueToken":   h.issueToken,
	}
	return h
}

// HandleRequest is the entry point for POST /api.
func (h *ServiceApiHandler) HandleRequest(c *gin.Context) {
	var req JsonApiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, JsonApiResponse{Error: "Invalid request format"})
		return
	}

	handlerFunc, ok := h.methods[req.Method]
	if !ok {
		c.JSON(http.StatusNotFound, JsonApiResponse{Error: fmt.Sprintf("Unknown service method: %s", req.Method)})
		return
	}

	result, err := handlerFunc(c, req.Arguments)
	if err != nil {
		_ = c.Error(err)
		c.JSON(apperr.HTTPStatus(err), JsonApiResponse{Error: apperr.Message(err, "Internal error")})
		return
	}
	c.JSON(http.StatusOK, JsonApiResponse{Success: true, Data: result})
}

func (h *ServiceApiHandler) shutdown(_ *gin.Context, _ json.RawMessage) (interface{}, error) {
	log.Info("received shutdown command via service API")
	select {
	case h.shutdownChan <- struct{}{}:
	default:
		log.Warn("shutdown already signaled")
	}
	return "Shutdown initiated", nil
}

// getTestEmail expects ["recipient"] and polls briefly for the mock email.
func (h *ServiceApiHandler) getTestEmail(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	var args []string
	if err := json.Unmarshal(raw, &args); err != nil || len(args) != 1 || args[0] == "" {
		return nil, apperr.Validation("Invalid arguments: expected JSON array [recipient]")
	}
	if h.mailbox == nil {
		return nil, apperr.NotFound("Mock services are disabled")
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	for i := 0; ; i++ {
		msg, err := h.mailbox.LastEmail(ctx, args[0])
		if err == nil {
			return msg, nil
		}
		if !apperr.Is(err, apperr.KindNotFound) || i == testEmailPollAttempts-1 {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(testEmailPollInterval):
		}
	}
}

// issueToken expects ["email", "name"] and returns a JWT for that user,
// creating the user when needed.
func (h *ServiceApiHandler) issueToken(c *gin.Context, raw json.RawMessage) (interface{}, error) {
	var args []string
	if err := json.Unmarshal(raw, &args); err != nil || len(args) != 2 || args[0] == "" {
		return nil, apperr.Validation("Invalid arguments: expected JSON array [email, name]")
	}
	ctx := c.Request.Context()

	user, err := h.users.FindByEmail(ctx, args[0])
	if errors.Is(err, mongo.ErrNoDocuments) {
		user, err = h.users.UpsertGoogleUser(ctx, &auth.GoogleUser{Email: args[0], Name: args[1]})
	}
	if err != nil {
		return nil, apperr.Network("Failed to load user", err)
	}

	id := auth.Identity{UserID: user.ID.Hex(), Email: user.Email, Name: user.Name}
	token, err := auth.GenerateJWT(id, h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		return nil, err
	}
	return AuthResponse{Token: token, User: user}, nil
}
