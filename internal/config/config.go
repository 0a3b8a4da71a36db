package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	RedisAddr            string
	RedisPassword        string
	RedisTLS             bool
	AvailabilityCacheTTL time.Duration

	DefaultServiceDurationMins int
	BookingHoldTTL             time.Duration
	BookingExpiryInterval      time.Duration
	DefaultDepositAmount       int64

	JWTSecret          string
	CORSAllowedOrigins []string
	PublicRateLimitRPS float64
	PublicRateBurst    int

	// SePay bank transfer configuration
	SepayAPIKey        string
	SepayBankCode      string
	SepayAccountNo     string
	SepayContentPrefix string

	// EmailProvider selects the notification transport: sendgrid or ses.
	EmailProvider string

	// SendGrid Email Configuration
	SendGridAPIKey     string
	SendGridFromEmail  string
	SendGridFromName   string
	BookingNotifyEmail string

	// AWS SES Email Configuration
	SESFromEmail        string
	SESFromName         string
	SESConfigurationSet string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	OutboxPollInterval time.Duration
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first without overriding the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:            getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisTLS:             getEnvAsBool("REDIS_TLS", false),
		AvailabilityCacheTTL: getEnvAsDuration("AVAILABILITY_CACHE_TTL", 30*time.Second),

		DefaultServiceDurationMins: getEnvAsInt("DEFAULT_SERVICE_DURATION_MINS", 30),
		BookingHoldTTL:             getEnvAsDuration("BOOKING_HOLD_TTL", 5*time.Minute),
		BookingExpiryInterval:      getEnvAsDuration("BOOKING_EXPIRY_INTERVAL", time.Minute),
		DefaultDepositAmount:       int64(getEnvAsInt("DEFAULT_DEPOSIT_AMOUNT", 2000)),

		JWTSecret:          getEnv("JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		PublicRateLimitRPS: getEnvAsFloat("PUBLIC_RATE_LIMIT_RPS", 10),
		PublicRateBurst:    getEnvAsInt("PUBLIC_RATE_LIMIT_BURST", 20),

		SepayAPIKey:        getEnv("SEPAY_API_KEY", ""),
		SepayBankCode:      getEnv("SEPAY_BANK_CODE", ""),
		SepayAccountNo:     getEnv("SEPAY_ACCOUNT_NO", ""),
		SepayContentPrefix: getEnv("SEPAY_CONTENT_PREFIX", "DATLICH"),

		EmailProvider: strings.ToLower(getEnv("EMAIL_PROVIDER", "sendgrid")),

		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:  getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:   getEnv("SENDGRID_FROM_NAME", "Clinic Booking"),
		BookingNotifyEmail: getEnv("BOOKING_NOTIFY_EMAIL", ""),

		SESFromEmail:        getEnv("SES_FROM_EMAIL", ""),
		SESFromName:         getEnv("SES_FROM_NAME", "Clinic Booking"),
		SESConfigurationSet: getEnv("SES_CONFIGURATION_SET", ""),
		AWSRegion:           getEnv("AWS_REGION", "ap-southeast-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		OutboxPollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
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

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
