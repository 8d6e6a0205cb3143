// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Stripe
	StripeSecretKey     string // sk_... API key for refunds and checkout sessions
	StripeWebhookSecret string // whsec_... for webhook signature verification
	SuccessURL          string // checkout redirect targets
	CancelURL           string

	// Pricing: one pack = PackPriceDollars -> PanelsPerPack credits
	PackPriceDollars int64
	PanelsPerPack    int64

	// Security
	AdminSecret  string // Admin API secret
	SpendRateRPS int    // per-client rate limit on the spend endpoint

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; empty disables tracing
}

const (
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultPackPriceDollars = 5
	DefaultPanelsPerPack    = 50
	DefaultSpendRateRPS     = 25
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:           getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		SuccessURL:          getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/credits?status=success"),
		CancelURL:           getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/credits?status=cancelled"),
		PackPriceDollars:    getEnvInt64("PACK_PRICE_DOLLARS", DefaultPackPriceDollars),
		PanelsPerPack:       getEnvInt64("PANELS_PER_PACK", DefaultPanelsPerPack),
		AdminSecret:         os.Getenv("ADMIN_SECRET"),
		SpendRateRPS:        int(getEnvInt64("SPEND_RATE_RPS", DefaultSpendRateRPS)),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are coherent.
func (c *Config) Validate() error {
	if c.PackPriceDollars <= 0 {
		return fmt.Errorf("PACK_PRICE_DOLLARS must be positive, got %d", c.PackPriceDollars)
	}
	if c.PanelsPerPack <= 0 {
		return fmt.Errorf("PANELS_PER_PACK must be positive, got %d", c.PanelsPerPack)
	}
	if c.Env == "production" && c.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required in production")
	}
	if c.Env == "production" && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
	}
	return nil
}

// IsProduction returns true when running in production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
