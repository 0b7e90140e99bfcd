package handlers

import (
	"github.com/gin-gonic/gin"

	"instasend/mailer/internal/apperr"
	"instasend/mailer/internal/api/middleware"
	"instasend/mailer/internal/auth"
)

// respondError writes err as a JSON {error} body with the status of its kind.
// Errors outside the apperr taxonomy are reported with fallback.
func respondError(c *gin.Context, err error, fallback string) {
	_ = c.Error(err)
	c.JSON(apperr.HTTPStatus(err), gin.H{"error": apperr.Message(err, fallback)})
}

// identity returns the caller, writing a 401 when the request is not
// authenticated.
func identity(c *gin.Context) (auth.Identity, bool) {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		respondError(c, apperr.Auth("Unauthorized"), "")
		return auth.Identity{}, false
	}
	return id, true
}
