package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL    string
	UseMemoryStore bool

	// WhatsApp Cloud API
	WhatsAppVerifyToken   string
	WhatsAppAppSecret     string
	WhatsAppAPIBaseURL    string
	WhatsAppPhoneNumberID string
	WhatsAppAccessToken   string
	WhatsAppMockMode      bool
	WhatsAppHTTPTimeout   time.Duration

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Sessions
	SessionLockTTL         time.Duration
	SessionMaxIdle         time.Duration
	SessionCleanupInterval time.Duration
	// SessionCleanupInAPI runs the idle-session janitor inside the API
	// process; disable it when cmd/session-worker is deployed.
	SessionCleanupInAPI bool
	EventConcurrency    int

	// Analytics sink
	AnalyticsBackend  string
	AnalyticsTable    string
	AnalyticsQueueURL string
	AnalyticsTimeout  time.Duration

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	AdminJWTSecret   string
	AdminCORSOrigins []string
	WebhookRateLimit float64
	WebhookRateBurst int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		UseMemoryStore: getEnvAsBool("USE_MEMORY_STORE", false),

		WhatsAppVerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAppSecret:     getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppAPIBaseURL:    strings.TrimRight(getEnv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com/v18.0"), "/"),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppAccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppMockMode:      getEnvAsBool("WHATSAPP_MOCK_MODE", true),
		WhatsAppHTTPTimeout:   getEnvAsDuration("WHATSAPP_HTTP_TIMEOUT", 10*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SessionLockTTL:         getEnvAsDuration("SESSION_LOCK_TTL", 10*time.Second),
		SessionMaxIdle:         getEnvAsDuration("SESSION_MAX_IDLE", 24*time.Hour),
		SessionCleanupInterval: getEnvAsDuration("SESSION_CLEANUP_INTERVAL", time.Hour),
		SessionCleanupInAPI:    getEnvAsBool("SESSION_CLEANUP_IN_API", true),
		EventConcurrency:       getEnvAsInt("EVENT_CONCURRENCY", 4),

		AnalyticsBackend:  strings.ToLower(strings.TrimSpace(getEnv("ANALYTICS_BACKEND", "none"))),
		AnalyticsTable:    getEnv("ANALYTICS_TABLE", "chatbot_analytics"),
		AnalyticsQueueURL: getEnv("ANALYTICS_QUEUE_URL", ""),
		AnalyticsTimeout:  getEnvAsDuration("ANALYTICS_TIMEOUT", 5*time.Second),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		AdminJWTSecret:   getEnv("ADMIN_JWT_SECRET", ""),
		AdminCORSOrigins: getEnvAsList("ADMIN_CORS_ORIGINS"),
		WebhookRateLimit: getEnvAsFloat("WEBHOOK_RATE_LIMIT", 50),
		WebhookRateBurst: getEnvAsInt("WEBHOOK_RATE_BURST", 100),
	}
}

// WhatsAppLiveReady reports whether enough credentials exist to talk to the Graph API.
func (c *Config) WhatsAppLiveReady() bool {
	return c.WhatsAppPhoneNumberID != "" && c.WhatsAppAccessToken != ""
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

// getEnvAsList splits a comma separated variable, dropping empty items.
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
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
