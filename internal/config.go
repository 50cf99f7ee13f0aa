package internal

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/text/language"
)

type Config struct {
	Env         string `env:"ENV" envDefault:"development"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"debug"`
	DatabaseUrl string `env:"DATABASE_URL,required,notEmpty"`

	// Application base URL (for checkout redirects)
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Entitlement core
	Timezone      string        `env:"APP_TIMEZONE" envDefault:"Europe/Berlin"` // Day boundaries for quota rollover
	Locale        string        `env:"APP_LOCALE" envDefault:"de"`              // Price formatting
	TrialDuration time.Duration `env:"TRIAL_DURATION" envDefault:"336h"`
	TxMaxAttempts int           `env:"DB_TX_MAX_ATTEMPTS" envDefault:"3"`

	// Request audit log
	AuditBufferSize      int           `env:"AUDIT_BUFFER_SIZE" envDefault:"256"`
	AuditShutdownTimeout time.Duration `env:"AUDIT_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Identity is established by the upstream auth layer and forwarded in this header.
	UserIDHeader string `env:"USER_ID_HEADER" envDefault:"X-User-ID"`

	// Stripe Billing Configuration
	// In development, billing handlers answer 501 if these are empty.
	StripeSecretKey      string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret  string `env:"STRIPE_WEBHOOK_SECRET"`
	StripeBasicPriceID   string `env:"STRIPE_BASIC_PRICE_ID"`
	StripePremiumPriceID string `env:"STRIPE_PREMIUM_PRICE_ID"`

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string `env:"METRICS_USERNAME"`
	MetricsPassword string `env:"METRICS_PASSWORD"`

	location *time.Location
	language language.Tag
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseUrl == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}

	// Postgres cannot resolve the process-local zone by name.
	if c.Timezone == "Local" {
		return fmt.Errorf("APP_TIMEZONE must name an IANA zone, not %q", c.Timezone)
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("APP_TIMEZONE %q is not a valid IANA zone: %w", c.Timezone, err)
	}
	c.location = loc

	tag, err := language.Parse(c.Locale)
	if err != nil {
		return fmt.Errorf("APP_LOCALE %q is not a valid BCP 47 tag: %w", c.Locale, err)
	}
	c.language = tag

	if c.TrialDuration < time.Hour {
		return fmt.Errorf("TRIAL_DURATION must be at least 1h, got %v", c.TrialDuration)
	}
	if c.TxMaxAttempts < 1 || c.TxMaxAttempts > 10 {
		return fmt.Errorf("DB_TX_MAX_ATTEMPTS must be between 1 and 10, got %d", c.TxMaxAttempts)
	}
	if c.AuditBufferSize < 1 {
		return fmt.Errorf("AUDIT_BUFFER_SIZE must be at least 1, got %d", c.AuditBufferSize)
	}
	if c.UserIDHeader == "" {
		return fmt.Errorf("USER_ID_HEADER must not be empty")
	}

	if c.StripeSecretKey != "" && c.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}

	return nil
}

// Location returns the canonical timezone used for day boundaries.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// Language returns the locale used for display formatting.
func (c *Config) Language() language.Tag {
	if c.language == language.Und {
		return language.German
	}
	return c.language
}

// BillingEnabled reports whether Stripe credentials are configured.
func (c *Config) BillingEnabled() bool {
	return c.StripeSecretKey != ""
}
