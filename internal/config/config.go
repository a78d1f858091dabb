package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config holds the application configuration.
type Config struct {
	AppEnv          string
	Debug           bool
	Version         string
	BotToken        string
	AdminChatID     int64
	SentryDSN       string
	DefaultLanguage string

	DatabaseURL     string
	MongoDBURI      string
	MongoDBDatabase string

	S3Bucket       string
	S3Region       string
	AWSAccessKeyID string
	AWSSecretKey   string

	MaxAttachments int
	UploadTimeout  time.Duration
	UpdateTimeout  time.Duration
	MetricsAddr    string
	RateLimit      int
}

// LoadConfig loads configuration from environment variables.
// A .env file is read when present, but variables already set in the
// environment (e.g. by Docker) take precedence.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, relying on environment variables")
	}

	debug, _ := strconv.ParseBool(getEnv("DEBUG", "false"))

	adminChatID, err := strconv.ParseInt(getEnv("ADMIN_CHAT_ID", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_CHAT_ID: %w", err)
	}

	maxAttachments, err := strconv.Atoi(getEnv("MAX_ATTACHMENTS", "10"))
	if err != nil || maxAttachments < 0 {
		return nil, fmt.Errorf("invalid MAX_ATTACHMENTS %q", getEnv("MAX_ATTACHMENTS", ""))
	}

	uploadTimeout, err := time.ParseDuration(getEnv("UPLOAD_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid UPLOAD_TIMEOUT: %w", err)
	}

	updateTimeout, err := time.ParseDuration(getEnv("UPDATE_TIMEOUT", "60s"))
	if err != nil {
		return nil, fmt.Errorf("invalid UPDATE_TIMEOUT: %w", err)
	}

	rateLimit, err := strconv.Atoi(getEnv("RATE_LIMIT", "20"))
	if err != nil || rateLimit <= 0 {
		return nil, fmt.Errorf("invalid RATE_LIMIT %q", getEnv("RATE_LIMIT", ""))
	}

	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		Debug:           debug,
		Version:         getEnv("VERSION", "dev"),
		BotToken:        getEnv("TELEGRAM_BOT_TOKEN", ""),
		AdminChatID:     adminChatID,
		SentryDSN:       getEnv("SENTRY_DSN", ""),
		DefaultLanguage: getEnv("DEFAULT_LANGUAGE", "uk"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		MongoDBURI:      getEnv("MONGODB_URI", ""),
		MongoDBDatabase: getEnv("MONGODB_DATABASE", ""),
		S3Bucket:        ExtractBucketName(getEnv("S3_BUCKET", "")),
		S3Region:        getEnv("S3_REGION", ""),
		AWSAccessKeyID:  getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
		MaxAttachments:  maxAttachments,
		UploadTimeout:   uploadTimeout,
		UpdateTimeout:   updateTimeout,
		MetricsAddr:     getEnv("METRICS_ADDR", ":9090"),
		RateLimit:       rateLimit,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.SentryDSN == "" {
		log.Warn("SENTRY_DSN is not set. Error tracking disabled.")
	}
	return cfg, nil
}

func (c *Config) validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"TELEGRAM_BOT_TOKEN", c.BotToken},
		{"DATABASE_URL", c.DatabaseURL},
		{"MONGODB_URI", c.MongoDBURI},
		{"MONGODB_DATABASE", c.MongoDBDatabase},
		{"S3_BUCKET", c.S3Bucket},
		{"S3_REGION", c.S3Region},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}
	if c.AdminChatID == 0 {
		return fmt.Errorf("ADMIN_CHAT_ID is required")
	}
	// the upload has to fail on its own clock so the update still has time
	// to save the session and tell the user
	if c.UploadTimeout <= 0 || c.UpdateTimeout <= 0 {
		return fmt.Errorf("UPLOAD_TIMEOUT and UPDATE_TIMEOUT must be positive")
	}
	if c.UploadTimeout >= c.UpdateTimeout {
		return fmt.Errorf("UPLOAD_TIMEOUT (%s) must be shorter than UPDATE_TIMEOUT (%s)", c.UploadTimeout, c.UpdateTimeout)
	}
	return nil
}

// ExtractBucketName turns whatever was pasted into S3_BUCKET into a bare
// bucket name. Console URLs, s3:// URIs and "bucket/prefix" paths are accepted.
func ExtractBucketName(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if strings.HasPrefix(raw, "s3://") {
		rest := strings.TrimPrefix(raw, "s3://")
		return strings.SplitN(rest, "/", 2)[0]
	}

	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		u, err := url.Parse(raw)
		if err != nil {
			return raw
		}
		// https://s3.console.aws.amazon.com/s3/buckets/<name>?region=...
		if idx := strings.Index(u.Path, "/buckets/"); idx >= 0 {
			rest := u.Path[idx+len("/buckets/"):]
			return strings.SplitN(rest, "/", 2)[0]
		}
		// https://<name>.s3.<region>.amazonaws.com/...
		if host := u.Hostname(); strings.Contains(host, ".s3.") || strings.Contains(host, ".s3-") {
			return host[:strings.Index(host, ".s3")]
		}
		// https://s3.<region>.amazonaws.com/<name>/...
		return strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)[0]
	}

	return strings.SplitN(raw, "/", 2)[0]
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
