package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"instasend/mailer/internal/apperr"
	"instasend/mailer/internal/auth"
	"instasend/mailer/internal/config"
	"instasend/mailer/internal/models"
	"instasend/mailer/internal/services"
)

// AuthHandler signs users in with Google and issues API tokens.
type AuthHandler struct {
	cfg    *config.Config
	oauth  auth.IGoogleOAuth
	tokens auth.ITokenStore
	users  services.IUserService
}

func NewAuthHandler(cfg *config.Config, oauth auth.IGoogleOAuth, tokens auth.ITokenStore, users services.IUserService) *AuthHandler {
	return &AuthHandler{cfg: cfg, oauth: oauth, tokens: tokens, users: users}
}

// AuthResponse is returned after a successful sign-in.
type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// GoogleLogin handles GET /v1/auth/google/login by redirecting to the
// consent page.
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	state := uuid.NewString()
	if err := h.tokens.SaveState(c.Request.Context(), state); err != nil {
		respondError(c, err, "Failed to start sign-in")
		return
	}
	c.Redirect(http.StatusFound, h.oauth.AuthCodeURL(state))
}

// GoogleCallback handles GET /v1/auth/google/callback.
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	ctx := c.Request.Context()

	if e := c.Query("error"); e != "" {
		respondError(c, apperr.Auth("Google sign-in was cancelled"), "")
		return
	}
	state, code := c.Query("state"), c.Query("code")
	if state == "" || code == "" {
		respondError(c, apperr.Validation("Missing state or code"), "")
		return
	}
	valid, err := h.tokens.ConsumeState(ctx, state)
	if err != nil {
		respondError(c, err, "Failed to verify sign-in")
		return
	}
	if !valid {
		respondError(c, apperr.Auth("Sign-in expired, please try again"), "")
		return
	}

	tok, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		log.WithError(err).Warn("google code exchange failed")
		respondError(c, apperr.Auth("Google sign-in failed"), "")
		return
	}
	googleUser, err := h.oauth.FetchUser(ctx, tok)
	if err != nil {
		log.WithError(err).Warn("google userinfo failed")
		respondError(c, apperr.Auth("Google sign-in failed"), "")
		return
	}

	user, err := h.users.UpsertGoogleUser(ctx, googleUser)
	if err != nil {
		respondError(c, err, "Failed to sign in")
		return
	}
	id := auth.Identity{UserID: user.ID.Hex(), Email: user.Email, Name: user.Name}
	if err := h.tokens.SaveToken(ctx, id.UserID, tok); err != nil {
		respondError(c, err, "Failed to store Google credentials")
		return
	}

	h.respondWithToken(c, id, user)
}

func (h *AuthHandler) respondWithToken(c *gin.Context, id auth.Identity, user *models.User) {
	jwtToken, err := auth.GenerateJWT(id, h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		respondError(c, err, "Failed to issue token")
		return
	}
	log.WithField("user_id", id.UserID).Info("user signed in")
	c.JSON(http.StatusOK, AuthResponse{Token: jwtToken, User: user})
}

// Ping handles GET /v1/ping
func Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}
