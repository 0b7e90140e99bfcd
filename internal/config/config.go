package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Mail provider names accepted in MAIL_PROVIDER.
const (
	MailProviderGmail    = "gmail"
	MailProviderPostmark = "postmark"
	MailProviderResend   = "resend"
	MailProviderSMTP     = "smtp"
	MailProviderLog      = "log"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode  string // Set via flag, not env
	AppName  string `env:"APP_NAME" envDefault:"InstaSend"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// MongoDB
	MongoURI    string `env:"MONGO_URI,required,notEmpty"`
	MongoDbName string `env:"MONGO_DB_NAME" envDefault:"instasend"`

	// Redis
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// JWT
	JwtSecret string        `env:"JWT_SECRET,required,notEmpty"`
	JwtTTL    time.Duration `env:"JWT_TTL" envDefault:"1h"`

	// Server
	ApiPort           string `env:"API_PORT" envDefault:"8080"`
	ServiceApiPort    string `env:"SERVICE_API_PORT" envDefault:"12345"`
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"*"`

	// Google sign-in, also the Gmail send credentials
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL" envDefault:"http://localhost:8080/v1/auth/google/callback"`

	// Email
	MailProvider         string `env:"MAIL_PROVIDER" envDefault:"gmail"`
	MockServices         bool   `env:"MOCK_SERVICES" envDefault:"false"`
	LogEmailsPath        string `env:"LOG_EMAILS"`
	SmtpHost             string `env:"SMTP_HOST"`
	SmtpPort             int    `env:"SMTP_PORT" envDefault:"587"`
	SmtpUsername         string `env:"SMTP_USERNAME"`
	SmtpPassword         string `env:"SMTP_PASSWORD"`
	SmtpFromAddress      string `env:"SMTP_FROM_ADDRESS" envDefault:"noreply@instasend.example.com"`
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	ResendAPIKey         string `env:"RESEND_API_KEY"`

	// AWS S3 (composition attachments)
	AwsAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AwsSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	AwsRegion          string `env:"AWS_REGION" envDefault:"us-east-1"`
	AwsS3Bucket        string `env:"AWS_S3_BUCKET"`

	// Composition
	ComposeSessionTTL      time.Duration `env:"COMPOSE_SESSION_TTL" envDefault:"24h"`
	SendTimeout            time.Duration `env:"SEND_TIMEOUT" envDefault:"30s"`
	AttachmentMaxSizeMB    int           `env:"ATTACHMENT_MAX_SIZE_MB" envDefault:"10"`
	AttachmentAllowedTypes []string      `env:"ATTACHMENT_ALLOWED_TYPES" envSeparator:"," envDefault:"application/pdf,application/msword,application/vnd.openxmlformats-officedocument.wordprocessingml.document"`

	// Rate limiting of send endpoints, per user
	SendRateLimitPerMinute int `env:"SEND_RATE_LIMIT_PER_MINUTE" envDefault:"10"`
	SendRateLimitBurst     int `env:"SEND_RATE_LIMIT_BURST" envDefault:"3"`
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{RunMode: runMode}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.RunMode {
	case "api", "bg", "all":
	default:
		return fmt.Errorf("invalid run mode %q: expected api, bg or all", c.RunMode)
	}
	switch c.MailProvider {
	case MailProviderGmail, MailProviderPostmark, MailProviderResend, MailProviderSMTP, MailProviderLog:
	default:
		return fmt.Errorf("invalid MAIL_PROVIDER %q", c.MailProvider)
	}
	if c.AttachmentMaxSizeMB <= 0 {
		return fmt.Errorf("invalid ATTACHMENT_MAX_SIZE_MB: %d", c.AttachmentMaxSizeMB)
	}
	if c.SendRateLimitPerMinute <= 0 || c.SendRateLimitBurst <= 0 {
		return fmt.Errorf("send rate limit values must be positive")
	}
	return nil
}

// AttachmentMaxBytes is the upload limit for a single attachment.
func (c *Config) AttachmentMaxBytes() int64 {
	return int64(c.AttachmentMaxSizeMB) * 1024 * 1024
}

// AttachmentTypeAllowed reports whether contentType may be attached.
func (c *Config) AttachmentTypeAllowed(contentType string) bool {
	for _, t := range c.AttachmentAllowedTypes {
		if t == contentType {
			return true
		}
	}
	return false
}
