package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port    string `yaml:"port"`
	BaseURL string `yaml:"base_url"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Database
	SQLiteDBPath string `yaml:"sqlite_db_path"`

	// Object storage
	StorageBackend        string        `yaml:"storage_backend"`
	StorageDir            string        `yaml:"storage_dir"`
	GCSBucket             string        `yaml:"gcs_bucket"`
	GoogleCredentialsFile string        `yaml:"google_credentials_file"`
	GoogleCredentialsJSON string        `yaml:"-"`
	MaxUploadBytes        int64         `yaml:"max_upload_bytes"`
	SignedURLTTL          time.Duration `yaml:"signed_url_ttl"`

	// Sessions
	SessionSecret string        `yaml:"-"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	RedisURL      string        `yaml:"redis_url"`

	// AMQP
	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`
	AMQPQueue    string `yaml:"amqp_queue"`

	// Report export: "none", "sheets" or "memory"
	ExportBackend       string `yaml:"export_backend"`
	GoogleSpreadsheetID string `yaml:"google_spreadsheet_id"`
	// User OAuth credentials written by sheets-auth, used instead of the
	// service account when set
	GoogleOAuthClientFile string `yaml:"google_oauth_client_file"`
	GoogleOAuthTokenFile  string `yaml:"google_oauth_token_file"`

	// Reclaim worker
	ReclaimBatchSize int           `yaml:"reclaim_batch_size"`
	ReclaimInterval  time.Duration `yaml:"reclaim_interval"`

	// Rate limiting of mutating requests
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Port:               "8081",
		BaseURL:            "http://localhost:8081",
		LogLevel:           "info",
		SQLiteDBPath:       "./data/notaspese.db",
		StorageBackend:     "local",
		StorageDir:         "./data/attachments",
		MaxUploadBytes:     10 << 20,
		SignedURLTTL:       60 * time.Second,
		SessionTTL:         30 * 24 * time.Hour,
		AMQPExchange:       "notaspese",
		AMQPQueue:          "orphaned_attachments",
		ExportBackend:      "none",
		ReclaimBatchSize:   50,
		ReclaimInterval:    5 * time.Minute,
		RateLimitPerMinute: 60,
	}
}

// Load builds the configuration from defaults, the optional CONFIG_FILE and
// the environment, in that order of precedence.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.BaseURL = strings.TrimRight(getEnv("BASE_URL", c.BaseURL), "/")
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.SQLiteDBPath = getEnv("SQLITE_DB_PATH", c.SQLiteDBPath)

	c.StorageBackend = getEnv("STORAGE_BACKEND", c.StorageBackend)
	c.StorageDir = getEnv("STORAGE_DIR", c.StorageDir)
	c.GCSBucket = getEnv("GCS_BUCKET", c.GCSBucket)
	c.GoogleCredentialsFile = getEnv("GOOGLE_CREDENTIALS_FILE", c.GoogleCredentialsFile)
	c.GoogleCredentialsJSON = getEnv("GOOGLE_CREDENTIALS_JSON", c.GoogleCredentialsJSON)
	c.MaxUploadBytes = int64(getEnvInt("MAX_UPLOAD_BYTES", int(c.MaxUploadBytes)))
	c.SignedURLTTL = getEnvDuration("SIGNED_URL_TTL", c.SignedURLTTL)

	c.SessionSecret = getEnv("SESSION_SECRET", c.SessionSecret)
	c.SessionTTL = getEnvDuration("SESSION_TTL", c.SessionTTL)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.AMQPQueue = getEnv("AMQP_QUEUE", c.AMQPQueue)

	c.ExportBackend = getEnv("EXPORT_BACKEND", c.ExportBackend)
	c.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", c.GoogleSpreadsheetID)
	c.GoogleOAuthClientFile = getEnv("GOOGLE_OAUTH_CLIENT_FILE", c.GoogleOAuthClientFile)
	c.GoogleOAuthTokenFile = getEnv("GOOGLE_OAUTH_TOKEN_FILE", c.GoogleOAuthTokenFile)
	if c.GoogleSpreadsheetID != "" && c.ExportBackend == "none" {
		c.ExportBackend = "sheets"
	}

	c.ReclaimBatchSize = getEnvInt("RECLAIM_BATCH_SIZE", c.ReclaimBatchSize)
	c.ReclaimInterval = getEnvDuration("RECLAIM_INTERVAL", c.ReclaimInterval)

	c.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", c.RateLimitPerMinute)
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid base URL '%s': must be an absolute http(s) URL", c.BaseURL))
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		// Check if directory exists or can be created
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate storage backend
	validBackends := []string{"local", "gcs", "memory"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.StorageBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid storage backend '%s': must be one of %v", c.StorageBackend, validBackends))
	}
	if c.StorageBackend == "local" && c.StorageDir == "" {
		errors = append(errors, "storage directory cannot be empty when using local storage backend")
	}
	if c.StorageBackend == "gcs" && c.GCSBucket == "" {
		errors = append(errors, "GCS bucket is required when using gcs storage backend")
	}
	if c.GoogleCredentialsFile != "" {
		if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
		}
	}
	if c.MaxUploadBytes < 1 {
		errors = append(errors, fmt.Sprintf("invalid max upload size %d: must be positive", c.MaxUploadBytes))
	}
	if c.SignedURLTTL < time.Second || c.SignedURLTTL > 7*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid signed URL TTL %v: must be between 1 second and 7 days", c.SignedURLTTL))
	}

	if c.SessionSecret != "" && len(c.SessionSecret) < 32 {
		errors = append(errors, "session secret must be at least 32 characters")
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}
	if c.RedisURL != "" && strings.Contains(c.RedisURL, "://") {
		if u, err := url.Parse(c.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errors = append(errors, fmt.Sprintf("invalid Redis URL '%s': scheme must be 'redis' or 'rediss'", c.RedisURL))
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	switch c.ExportBackend {
	case "none", "memory":
	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google spreadsheet ID is required when using sheets export backend")
		}
		if (c.GoogleOAuthClientFile == "") != (c.GoogleOAuthTokenFile == "") {
			errors = append(errors, "Google OAuth client file and token file must be set together")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid export backend '%s': must be one of [none sheets memory]", c.ExportBackend))
	}

	// Validate worker configuration
	if c.ReclaimBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid reclaim batch size %d: must be at least 1", c.ReclaimBatchSize))
	} else if c.ReclaimBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid reclaim batch size %d: must be at most 1000", c.ReclaimBatchSize))
	}
	if c.ReclaimInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid reclaim interval %v: must be at least 1 second", c.ReclaimInterval))
	} else if c.ReclaimInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid reclaim interval %v: must be at most 24 hours", c.ReclaimInterval))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// SecureCookies reports whether session cookies need the Secure attribute.
func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(c.BaseURL, "https://")
}

// ParseLogLevel maps LOG_LEVEL values onto slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level '%s': must be one of debug, info, warn, error", s)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
