package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port int
	Env  string

	// Database
	DatabaseURL string

	// Redis (asynq broker + idempotency cache)
	RedisURL string

	// Upstream SMTP relay
	HarakaHost string
	HarakaPort int

	// Tracking
	TrackingBaseURL     string
	EnableOpenTracking  bool
	EnableClickTracking bool

	// External event ingestion
	WebhookSecret string

	// Worker
	WorkerEnabled      bool
	WorkerConcurrency  int
	WorkerRateLimit    int
	WorkerMaxAttempts  int
	WorkerRetryBaseSec int

	// Email Provider ("smtp" or "ses")
	EmailProvider string

	// SMTP (used when EmailProvider is "smtp")
	SMTPUser          string
	SMTPPassword      string
	SMTPFromName      string
	SMTPTLS           bool
	SMTPSkipTLSVerify bool

	// AWS SES (used when EmailProvider is "ses")
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
}

func Load() (*Config, error) {
	godotenv.Load("../../.env")

	port, _ := strconv.Atoi(getEnv("API_PORT", "3001"))
	harakaPort, _ := strconv.Atoi(getEnv("HARAKA_PORT", "25"))

	enableOpenTracking, _ := strconv.ParseBool(getEnv("ENABLE_OPEN_TRACKING", "true"))
	enableClickTracking, _ := strconv.ParseBool(getEnv("ENABLE_CLICK_TRACKING", "true"))

	workerEnabled, _ := strconv.ParseBool(getEnv("WORKER_ENABLED", "false"))
	workerConcurrency, _ := strconv.Atoi(getEnv("WORKER_CONCURRENCY", "5"))
	workerRateLimit, _ := strconv.Atoi(getEnv("WORKER_RATE_LIMIT", "100"))
	workerMaxAttempts, _ := strconv.Atoi(getEnv("WORKER_MAX_ATTEMPTS", "3"))
	workerRetryBaseSec, _ := strconv.Atoi(getEnv("WORKER_RETRY_BASE_SECONDS", "1"))

	smtpTLS, _ := strconv.ParseBool(getEnv("SMTP_TLS", "true"))
	smtpSkipVerify, _ := strconv.ParseBool(getEnv("SMTP_SKIP_TLS_VERIFY", "false"))

	cfg := &Config{
		Port: port,
		Env:  getEnv("NODE_ENV", "development"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisURL: normalizeRedisURL(getEnv("REDIS_URL", "redis://localhost:6379")),

		HarakaHost: getEnv("HARAKA_HOST", "localhost"),
		HarakaPort: harakaPort,

		TrackingBaseURL:     getEnv("TRACKING_BASE_URL", "http://localhost:3001"),
		EnableOpenTracking:  enableOpenTracking,
		EnableClickTracking: enableClickTracking,

		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),

		WorkerEnabled:      workerEnabled,
		WorkerConcurrency:  workerConcurrency,
		WorkerRateLimit:    workerRateLimit,
		WorkerMaxAttempts:  workerMaxAttempts,
		WorkerRetryBaseSec: workerRetryBaseSec,

		EmailProvider: getEnv("EMAIL_PROVIDER", "smtp"),

		SMTPUser:          getEnv("SMTP_USER", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
		SMTPFromName:      getEnv("SMTP_FROM_NAME", ""),
		SMTPTLS:           smtpTLS,
		SMTPSkipTLSVerify: smtpSkipVerify,

		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// normalizeRedisURL ensures the URL has the redis:// prefix for redis.ParseURL.
func normalizeRedisURL(url string) string {
	if len(url) >= 8 && (url[:8] == "redis://" || (len(url) >= 9 && url[:9] == "rediss://")) {
		return url
	}
	return "redis://" + url
}
