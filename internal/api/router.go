package api

import (
	"github.com/gin-gonic/gin"

	"instasend/mailer/internal/api/handlers"
	"instasend/mailer/internal/api/middleware"
	"instasend/mailer/internal/auth"
	"instasend/mailer/internal/compose"
	"instasend/mailer/internal/config"
	"instasend/mailer/internal/email"
	"instasend/mailer/internal/services"
)

// Deps are the services the public API is built on.
type Deps struct {
	Templates services.ITemplateService
	Users     services.IUserService
	Compose   compose.IService
	Sender    email.Sender
	OAuth     auth.IGoogleOAuth
	Tokens    auth.ITokenStore
}

// SetupRouter configures and returns the main Gin engine. The returned rate
// limiter must be stopped on shutdown.
func SetupRouter(cfg *config.Config, deps Deps) (*gin.Engine, *middleware.RateLimiterMiddleware) {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(), middleware.CORSMiddleware(cfg.CORSAllowedOrigin))

	sendLimiter := middleware.NewRateLimiterMiddleware(cfg.SendRateLimitPerMinute, cfg.SendRateLimitBurst)

	templateHandler := handlers.NewTemplateHandler(deps.Templates, deps.Compose)
	emailHandler := handlers.NewEmailHandler(cfg, deps.Sender)
	composeHandler := handlers.NewComposeHandler(cfg, deps.Compose)
	authHandler := handlers.NewAuthHandler(cfg, deps.OAuth, deps.Tokens, deps.Users)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", handlers.Ping)
		v1.GET("/auth/google/login", authHandler.GoogleLogin)
		v1.GET("/auth/google/callback", authHandler.GoogleCallback)

		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.GET("/templates", templateHandler.List)
			authRequired.POST("/templates", templateHandler.Create)
			authRequired.GET("/templates/:id", templateHandler.Get)
			authRequired.PUT("/templates/:id", templateHandler.Update)
			authRequired.DELETE("/templates/:id", templateHandler.Delete)

			authRequired.POST("/email/send", sendLimiter.Limit(), emailHandler.Send)

			c := authRequired.Group("/compose")
			c.GET("", composeHandler.Get)
			c.DELETE("", composeHandler.Discard)
			c.POST("/template", composeHandler.SelectTemplate)
			c.PUT("/draft", composeHandler.UpdateDraft)
			c.PUT("/placeholders/:key", composeHandler.SetPlaceholder)
			c.PUT("/recipient", composeHandler.SetRecipient)
			c.POST("/attachment", composeHandler.Attach)
			c.DELETE("/attachment", composeHandler.RemoveAttachment)
			c.POST("/preview", composeHandler.Preview)
			c.POST("/back", composeHandler.Back)
			c.POST("/send", sendLimiter.Limit(), composeHandler.Send)
			c.POST("/ack", composeHandler.Acknowledge)
		}
	}

	return r, sendLimiter
}

// SetupServiceRouter configures and returns the service Gin engine, served on
// the internal port only.
func SetupServiceRouter(cfg *config.Config, users services.IUserService, mailbox handlers.IMockMailbox, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())

	serviceHandler := handlers.NewServiceApiHandler(cfg, users, mailbox, shutdownChan)
	r.POST("/api", serviceHandler.HandleRequest)
	return r
}
