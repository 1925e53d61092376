package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreBackendMongo  = "mongo"
	StoreBackendMemory = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode  string // Set via flag, not env
	LogLevel string

	// Store
	StoreBackend string
	StoreTimeout time.Duration
	MongoURI     string
	MongoDbName  string
	SeedFile     string // memory backend only

	// Redis; an empty address disables the owner cache and background jobs
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret string
	JwtTTL    time.Duration

	// Server
	ApiPort        string
	ServiceApiPort string

	// Cloudflare
	CloudflareTurnstileSecretKey string
	CloudflareSiteVerifyURL      string
	CaptchaTokenTTL              time.Duration

	// Messaging
	AppendMaxRetries int
	MessageMaxLength int
	PollPageLimit    int

	// Listing directory
	ListingCacheTTL time.Duration

	// Email
	SmtpHost         string
	SmtpPort         int
	SmtpUsername     string
	SmtpPassword     string
	SmtpFromAddress  string
	EmailOutboxFile  string // optional; every email is also appended here
	MockEmailToRedis bool

	// AWS S3
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string
	BiometricURLTTL    time.Duration

	// App Defaults
	AppName string

	// Rate Limiting Defaults
	RateLimitSoftBucketSize int
	RateLimitSoftRefillRate int // tokens per second
	RateLimitHardBucketSize int
	RateLimitHardRefillRate int
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		RunMode: runMode,
	}

	var err error

	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists || value == "" {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	getInt := func(key, defaultValue string) (int, error) {
		v, err := strconv.Atoi(getEnv(key, defaultValue))
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return v, nil
	}

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.StoreBackend = getEnv("STORE_BACKEND", StoreBackendMongo)
	switch cfg.StoreBackend {
	case StoreBackendMongo:
		cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
		if err != nil {
			return nil, err
		}
	case StoreBackendMemory:
		cfg.MongoURI = getEnv("MONGO_URI", "")
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND: %q", cfg.StoreBackend)
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "estate")
	cfg.SeedFile = getEnv("MEMORY_SEED_FILE", "")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")
	cfg.CloudflareTurnstileSecretKey = getEnv("CLOUDFLARE_TURNSTILE_SECRET_KEY", "")
	cfg.CloudflareSiteVerifyURL = getEnv("CLOUDFLARE_SITEVERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify")
	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "noreply@estate.example.com")
	cfg.EmailOutboxFile = getEnv("EMAIL_OUTBOX_FILE", "")
	cfg.MockEmailToRedis = getEnv("MOCK_EMAIL_TO_REDIS", "false") == "true"
	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")
	cfg.AppName = getEnv("APP_NAME", "Estate")

	cfg.RedisDB, err = getInt("REDIS_DB", "0")
	if err != nil {
		return nil, err
	}

	storeTimeoutMs, err := getInt("STORE_TIMEOUT_MS", "3000")
	if err != nil {
		return nil, err
	}
	if storeTimeoutMs <= 0 {
		return nil, fmt.Errorf("invalid STORE_TIMEOUT_MS: must be positive")
	}
	cfg.StoreTimeout = time.Duration(storeTimeoutMs) * time.Millisecond

	jwtTTLSeconds, err := getInt("JWT_TTL_SECONDS", "3600")
	if err != nil {
		return nil, err
	}
	cfg.JwtTTL = time.Duration(jwtTTLSeconds) * time.Second

	cfg.SmtpPort, err = getInt("SMTP_PORT", "587")
	if err != nil {
		return nil, err
	}

	cfg.AppendMaxRetries, err = getInt("APPEND_MAX_RETRIES", "8")
	if err != nil {
		return nil, err
	}
	cfg.MessageMaxLength, err = getInt("MESSAGE_MAX_LENGTH", "5000")
	if err != nil {
		return nil, err
	}
	cfg.PollPageLimit, err = getInt("POLL_PAGE_LIMIT", "200")
	if err != nil {
		return nil, err
	}

	listingCacheTTLSeconds, err := getInt("LISTING_CACHE_TTL_SECONDS", "300")
	if err != nil {
		return nil, err
	}
	cfg.ListingCacheTTL = time.Duration(listingCacheTTLSeconds) * time.Second

	biometricURLTTLMinutes, err := getInt("BIOMETRIC_URL_TTL_MINUTES", "15")
	if err != nil {
		return nil, err
	}
	cfg.BiometricURLTTL = time.Duration(biometricURLTTLMinutes) * time.Minute

	captchaTTLMinutes, err := getInt("CAPTCHA_TOKEN_TTL_MINUTES", "30")
	if err != nil {
		return nil, err
	}
	cfg.CaptchaTokenTTL = time.Duration(captchaTTLMinutes) * time.Minute

	cfg.RateLimitSoftBucketSize, err = getInt("RATE_LIMIT_SOFT_BUCKET_SIZE", "20")
	if err != nil {
		return nil, err
	}
	cfg.RateLimitSoftRefillRate, err = getInt("RATE_LIMIT_SOFT_REFILL_RATE", "2")
	if err != nil {
		return nil, err
	}
	cfg.RateLimitHardBucketSize, err = getInt("RATE_LIMIT_HARD_BUCKET_SIZE", "100")
	if err != nil {
		return nil, err
	}
	cfg.RateLimitHardRefillRate, err = getInt("RATE_LIMIT_HARD_REFILL_RATE", "10")
	if err != nil {
		return nil, err
	}

	return cfg, nil
}
