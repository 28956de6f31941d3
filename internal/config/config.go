package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Port                             string `mapstructure:"PORT"`
	GinMode                          string `mapstructure:"GIN_MODE"`
	FirebaseProjectID                string `mapstructure:"FIREBASE_PROJECT_ID"`
	GoogleApplicationCredentials     string `mapstructure:"GOOGLE_APPLICATION_CREDENTIALS"`
	FirebaseServiceAccountJSONBase64 string `mapstructure:"FIREBASE_SERVICE_ACCOUNT_JSON_BASE64"`
	StorageBucket                    string `mapstructure:"STORAGE_BUCKET"`
	EncryptionKey                    string `mapstructure:"ENCRYPTION_KEY"` // Base64 encoded, 32 bytes
	ClientURL                        string `mapstructure:"CLIENT_URL"`
	CatalogPath                      string `mapstructure:"CATALOG_PATH"`

	GeminiAPIKey       string        `mapstructure:"GEMINI_API_KEY"`
	GeminiAPIKeySecret string        `mapstructure:"GEMINI_API_KEY_SECRET"`
	GeminiModel        string        `mapstructure:"GEMINI_MODEL"`
	GeminiBaseURL      string        `mapstructure:"GEMINI_BASE_URL"`
	GeminiTimeout      time.Duration `mapstructure:"GEMINI_TIMEOUT"`
	InsightCacheTTL    time.Duration `mapstructure:"INSIGHT_CACHE_TTL"`

	RedisAddress  string `mapstructure:"REDIS_ADDRESS"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	QueueDriver        string `mapstructure:"QUEUE_DRIVER"` // "rabbitmq", "pubsub" or "log"
	RabbitMQURL        string `mapstructure:"RABBITMQ_URL"`
	NotificationQueue  string `mapstructure:"NOTIFICATION_QUEUE"`
	PubSubSubscription string `mapstructure:"PUBSUB_SUBSCRIPTION"`

	MailFrom       string `mapstructure:"MAIL_FROM"`
	MailFromName   string `mapstructure:"MAIL_FROM_NAME"`
	SMTPHost       string `mapstructure:"SMTP_HOST"`
	SMTPPort       string `mapstructure:"SMTP_PORT"`
	SMTPUser       string `mapstructure:"SMTP_USER"`
	SMTPPass       string `mapstructure:"SMTP_PASS"`
	SendGridAPIKey string `mapstructure:"SENDGRID_API_KEY"`

	StripeSecretKey       string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeSecretKeySecret string `mapstructure:"STRIPE_SECRET_KEY_SECRET"`
	StripeWebhookSecret   string `mapstructure:"STRIPE_WEBHOOK_SECRET"`

	ExpirySweepInterval time.Duration `mapstructure:"EXPIRY_SWEEP_INTERVAL"`
}

// LoadConfig loads configuration from environment variables using Viper.
func LoadConfig() (*Config, error) {
	return load((*Config).Validate)
}

// LoadNotifierConfig loads the configuration for the notifier worker, which only needs the
// queue and mail settings.
func LoadNotifierConfig() (*Config, error) {
	return load((*Config).ValidateNotifier)
}

func load(validate func(*Config) error) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.New("failed to unmarshal config: " + err.Error())
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	v.SetDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("GEMINI_TIMEOUT", 30*time.Second)
	v.SetDefault("INSIGHT_CACHE_TTL", 6*time.Hour)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("QUEUE_DRIVER", "log")
	v.SetDefault("NOTIFICATION_QUEUE", "notifications")
	v.SetDefault("MAIL_FROM_NAME", "TrackFlow")
	v.SetDefault("SMTP_HOST", "smtp.mailtrap.io")
	v.SetDefault("SMTP_PORT", "2525")
	v.SetDefault("EXPIRY_SWEEP_INTERVAL", time.Hour)
}

var envKeys = []string{
	"PORT", "GIN_MODE", "FIREBASE_PROJECT_ID", "GOOGLE_APPLICATION_CREDENTIALS",
	"FIREBASE_SERVICE_ACCOUNT_JSON_BASE64", "STORAGE_BUCKET", "ENCRYPTION_KEY", "CLIENT_URL", "CATALOG_PATH",
	"GEMINI_API_KEY", "GEMINI_API_KEY_SECRET", "GEMINI_MODEL", "GEMINI_BASE_URL", "GEMINI_TIMEOUT",
	"INSIGHT_CACHE_TTL", "REDIS_ADDRESS", "REDIS_PASSWORD", "REDIS_DB",
	"QUEUE_DRIVER", "RABBITMQ_URL", "NOTIFICATION_QUEUE", "PUBSUB_SUBSCRIPTION",
	"MAIL_FROM", "MAIL_FROM_NAME", "SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASS", "SENDGRID_API_KEY",
	"STRIPE_SECRET_KEY", "STRIPE_SECRET_KEY_SECRET", "STRIPE_WEBHOOK_SECRET", "EXPIRY_SWEEP_INTERVAL",
}

// Validate checks required fields and driver-specific settings.
func (c *Config) Validate() error {
	if c.FirebaseProjectID == "" {
		return errors.New("FIREBASE_PROJECT_ID is required")
	}
	if c.EncryptionKey == "" {
		return errors.New("ENCRYPTION_KEY is required")
	}
	if c.ClientURL == "" {
		return errors.New("CLIENT_URL is required")
	}
	if c.GeminiAPIKey == "" && c.GeminiAPIKeySecret == "" {
		return errors.New("either GEMINI_API_KEY or GEMINI_API_KEY_SECRET is required")
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if (c.StripeSecretKey != "" || c.StripeSecretKeySecret != "") && c.StripeWebhookSecret == "" {
		return errors.New("STRIPE_WEBHOOK_SECRET is required when Stripe is configured")
	}
	if c.ExpirySweepInterval < 0 {
		return errors.New("EXPIRY_SWEEP_INTERVAL cannot be negative; use 0 to disable the sweep")
	}
	return nil
}

// ValidateNotifier checks the queue and mail settings.
func (c *Config) ValidateNotifier() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if strings.EqualFold(c.QueueDriver, "log") {
		return errors.New("the notifier cannot consume from QUEUE_DRIVER=log")
	}
	if strings.EqualFold(c.QueueDriver, "pubsub") && (c.PubSubSubscription == "" || c.FirebaseProjectID == "") {
		return errors.New("PUBSUB_SUBSCRIPTION and FIREBASE_PROJECT_ID are required when QUEUE_DRIVER=pubsub")
	}
	if c.MailFrom == "" {
		return errors.New("MAIL_FROM is required")
	}
	return nil
}

func (c *Config) validateQueue() error {
	switch strings.ToLower(c.QueueDriver) {
	case "rabbitmq":
		if c.RabbitMQURL == "" {
			return errors.New("RABBITMQ_URL is required when QUEUE_DRIVER=rabbitmq")
		}
	case "pubsub", "log":
	default:
		return errors.New("QUEUE_DRIVER must be one of rabbitmq, pubsub, log")
	}
	return nil
}

// StripeEnabled reports whether the paid checkout path is configured.
func (c *Config) StripeEnabled() bool {
	return c.StripeSecretKey != ""
}

// ExpirySweepEnabled reports whether the premium expiry worker should run.
func (c *Config) ExpirySweepEnabled() bool {
	return c.ExpirySweepInterval > 0
}

// IsRelease reports whether gin should run in release mode.
func (c *Config) IsRelease() bool {
	return strings.EqualFold(c.GinMode, "release")
}
