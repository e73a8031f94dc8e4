package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	PublicBaseURL string

	// Payment gateway
	GatewayAPIKey        string
	GatewayBaseURL       string
	GatewayWebhookSecret string
	PlatformFeePercent   float64

	// Video session provider
	VideoAPIKey  string
	VideoBaseURL string

	// Ledger RPC gateway
	LedgerBaseURL        string
	LedgerAPIKey         string
	LedgerCustodyAddress string
	LedgerRetryAttempts  int
	LedgerRetryBaseDelay time.Duration
	SagaStepTimeout      time.Duration
	OutboxPollInterval   time.Duration
	OrphanSweepInterval  time.Duration
	OrphanMaxAge         time.Duration
	DefaultDurationMins  int

	// Notifications (AWS SES)
	AWSRegion       string
	NotifyFromEmail string
	NotifyFromName  string
	NotificationsOn bool

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		GatewayAPIKey:        getEnv("GATEWAY_API_KEY", ""),
		GatewayBaseURL:       getEnv("GATEWAY_BASE_URL", ""),
		GatewayWebhookSecret: getEnv("GATEWAY_WEBHOOK_SECRET", ""),
		PlatformFeePercent:   getEnvAsFloat("PLATFORM_FEE_PERCENT", 12),

		VideoAPIKey:  getEnv("VIDEO_API_KEY", ""),
		VideoBaseURL: getEnv("VIDEO_BASE_URL", ""),

		LedgerBaseURL:        getEnv("LEDGER_BASE_URL", ""),
		LedgerAPIKey:         getEnv("LEDGER_API_KEY", ""),
		LedgerCustodyAddress: getEnv("LEDGER_CUSTODY_ADDRESS", ""),
		LedgerRetryAttempts:  getEnvAsInt("LEDGER_RETRY_ATTEMPTS", 3),
		LedgerRetryBaseDelay: getEnvAsDuration("LEDGER_RETRY_BASE_DELAY", 2*time.Second),
		SagaStepTimeout:      getEnvAsDuration("SAGA_STEP_TIMEOUT", 15*time.Second),
		OutboxPollInterval:   getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OrphanSweepInterval:  getEnvAsDuration("ORPHAN_SWEEP_INTERVAL", 5*time.Minute),
		OrphanMaxAge:         getEnvAsDuration("ORPHAN_MAX_AGE", 15*time.Minute),
		DefaultDurationMins:  getEnvAsInt("DEFAULT_DURATION_MINS", 30),

		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
		NotifyFromEmail: getEnv("NOTIFY_FROM_EMAIL", ""),
		NotifyFromName:  getEnv("NOTIFY_FROM_NAME", "CareSlot"),
		NotificationsOn: getEnvAsBool("NOTIFICATIONS_ENABLED", false),

		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
