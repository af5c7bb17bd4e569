package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all configuration for the checkout service.
type Config struct {
	Port        string
	Environment string // development | production

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	RedisURL string

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string

	KafkaBrokers      string
	PaymentEventTopic string

	// PaymentChannelMode selects the channel strategy: "message" for
	// the in-process listener, "poll" for hand-off slot polling.
	PaymentChannelMode string
	PaymentTimeout     time.Duration

	// AllowLocalFallback enables order creation without a gateway
	// session when Razorpay is unreachable. Refused in production.
	AllowLocalFallback bool
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8088"),
		Environment: getEnv("ENVIRONMENT", "development"),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "Asia/Kolkata"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		RazorpayKeyID:         os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),

		KafkaBrokers:      getEnv("KAFKA_BROKERS", "localhost:9092"),
		PaymentEventTopic: getEnv("PAYMENT_EVENT_TOPIC", "payment-events"),

		PaymentChannelMode: getEnv("PAYMENT_CHANNEL_MODE", "message"),
		PaymentTimeout:     10 * time.Minute,

		AllowLocalFallback: strings.EqualFold(os.Getenv("ALLOW_LOCAL_FALLBACK"), "true"),
	}

	if v := os.Getenv("PAYMENT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PAYMENT_TIMEOUT: %w", err)
		}
		cfg.PaymentTimeout = d
	}

	if cfg.PostgresUser == "" || cfg.PostgresPassword == "" || cfg.PostgresDB == "" || cfg.PostgresHost == "" {
		return nil, fmt.Errorf("database config incomplete")
	}
	if cfg.RazorpayKeyID == "" || cfg.RazorpayKeySecret == "" {
		return nil, fmt.Errorf("razorpay credentials missing")
	}
	if cfg.RazorpayWebhookSecret == "" {
		return nil, fmt.Errorf("RAZORPAY_WEBHOOK_SECRET not set")
	}
	if cfg.PaymentChannelMode != "message" && cfg.PaymentChannelMode != "poll" {
		return nil, fmt.Errorf("PAYMENT_CHANNEL_MODE must be message or poll, got %q", cfg.PaymentChannelMode)
	}
	if cfg.AllowLocalFallback && cfg.Environment == "production" {
		return nil, fmt.Errorf("ALLOW_LOCAL_FALLBACK is not permitted in production")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
