package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"instasend/mailer/internal/api"
	"instasend/mailer/internal/api/handlers"
	"instasend/mailer/internal/api/middleware"
	"instasend/mailer/internal/auth"
	"instasend/mailer/internal/cache"
	"instasend/mailer/internal/compose"
	"instasend/mailer/internal/config"
	"instasend/mailer/internal/db"
	"instasend/mailer/internal/email"
	"instasend/mailer/internal/logging"
	"instasend/mailer/internal/services"
	"instasend/mailer/internal/storage"
	"instasend/mailer/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default)")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logging.Setup(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	// Initialize Database
	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient); err != nil {
			log.WithError(err).Error("error disconnecting from MongoDB")
		}
	}()
	indexCtx, cancelIndex := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.EnsureIndexes(indexCtx, mongoDb); err != nil {
		log.Fatalf("Failed to ensure indexes: %v", err)
	}
	cancelIndex()

	// Initialize Cache (Redis)
	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			log.WithError(err).Error("error disconnecting from Redis")
		}
	}()

	// Attachment staging (S3)
	attachmentStorage, err := storage.NewS3Storage(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize S3 storage: %v", err)
	}

	// Google sign-in and provider tokens
	googleOAuth := auth.NewGoogleOAuth(cfg)
	tokenStore := auth.NewRedisTokenStore(redisClient)

	sender, mailbox := newEmailSender(cfg, redisClient, googleOAuth, tokenStore)

	// Services
	userService := services.NewUserService(mongoDb)
	templateService := services.NewTemplateService(mongoDb)

	// Task client for attachment purges
	taskClient := tasks.NewClient(redisClient)
	defer taskClient.Close()
	purger := tasks.NewEnqueuer(taskClient)

	composeService := compose.NewService(
		cfg,
		compose.NewRedisStore(redisClient, cfg.ComposeSessionTTL),
		templateService,
		sender,
		attachmentStorage,
		purger,
	)

	// WaitGroup for managing goroutines
	var wg sync.WaitGroup

	// Channel to signal shutdown from Service API
	shutdownChan := make(chan struct{}, 1)

	// Start Service API (always runs)
	var mockMailbox handlers.IMockMailbox
	if mailbox != nil {
		mockMailbox = mailbox
	}
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: api.SetupServiceRouter(cfg, userService, mockMailbox, shutdownChan),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.WithField("port", cfg.ServiceApiPort).Info("service API listening")
		if err := serviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Service API ListenAndServe error: %v", err)
		}
		log.Info("service API server stopped")
	}()

	// --- Mode-specific servers ---
	var mainApiSrv *http.Server
	var sendLimiter *middleware.RateLimiterMiddleware
	var backgroundTaskSrv *asynq.Server

	log.WithField("mode", cfg.RunMode).Info("starting application")

	apiMode := func() {
		router, limiter := api.SetupRouter(cfg, api.Deps{
			Templates: templateService,
			Users:     userService,
			Compose:   composeService,
			Sender:    sender,
			OAuth:     googleOAuth,
			Tokens:    tokenStore,
		})
		sendLimiter = limiter
		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: router,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.WithField("port", cfg.ApiPort).Info("main API listening")
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Main API ListenAndServe error: %v", err)
			}
			log.Info("main API server stopped")
		}()
	}

	bgMode := func() {
		srv, mux := tasks.SetupServer(redisClient, tasks.NewTaskProcessor(attachmentStorage))
		if err := srv.Start(mux); err != nil {
			log.Fatalf("Background task server error: %v", err)
		}
		backgroundTaskSrv = srv
		log.Info("background task server started")
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	default:
		log.Fatalf("Invalid run mode specified in config: %s.", cfg.RunMode)
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("shutting down gracefully")
	case <-shutdownChan:
		log.Info("shutdown requested via service API")
	}

	// In-flight sends run up to SendTimeout; give them time to finish.
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), cfg.SendTimeout+15*time.Second)
	defer cancelShutdown()

	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		log.WithError(err).Error("service API server shutdown error")
	}
	if mainApiSrv != nil {
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			log.WithError(err).Error("main API server shutdown error")
		}
	}
	if sendLimiter != nil {
		sendLimiter.Stop()
	}
	if backgroundTaskSrv != nil {
		backgroundTaskSrv.Shutdown()
	}

	wg.Wait()
	log.Info("server gracefully stopped")
}

// newEmailSender builds the sender for MAIL_PROVIDER. With MOCK_SERVICES the
// Redis sender replaces the provider and is also returned as the test mailbox.
// LOG_EMAILS additionally appends every message to a file.
func newEmailSender(cfg *config.Config, rdb *redis.Client, oauth auth.IGoogleOAuth, tokens auth.ITokenStore) (email.Sender, *email.RedisSender) {
	var (
		primary email.Sender
		mailbox *email.RedisSender
		err     error
	)
	switch {
	case cfg.MockServices:
		log.Info("MOCK_SERVICES enabled: using Redis email sender")
		mailbox = email.NewRedisSender(rdb, cfg)
		primary = mailbox
	case cfg.MailProvider == config.MailProviderGmail:
		primary = email.NewGmailSender(oauth, tokens)
	case cfg.MailProvider == config.MailProviderPostmark:
		primary, err = email.NewPostmarkSender(cfg)
	case cfg.MailProvider == config.MailProviderResend:
		primary, err = email.NewResendSender(cfg)
	case cfg.MailProvider == config.MailProviderSMTP:
		primary = email.NewSMTPSender(cfg)
	default:
		primary = email.NewLoggingSender(cfg)
	}
	if err != nil {
		log.Fatalf("Failed to initialize %s email sender: %v", cfg.MailProvider, err)
	}
	log.WithField("provider", cfg.MailProvider).Info("email sender configured")

	if cfg.LogEmailsPath == "" {
		return primary, mailbox
	}
	composite := email.NewCompositeEmailSender(primary)
	fileSender, err := email.NewFileEmailSender(cfg.LogEmailsPath, cfg)
	if err != nil {
		log.WithError(err).WithField("path", cfg.LogEmailsPath).Warn("failed to initialize file email logger, proceeding without it")
	} else {
		composite.AddSender(fileSender)
	}
	return composite, mailbox
}
