package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Config holds all configuration for the application
type Config struct {
	// Environment
	Environment string // "development" or "production"
	LogLevel    string

	// Listeners
	HTTPAddr string
	SyncAddr string // Websocket live sync and /metrics

	// Storage
	StorageType string
	DataDir     string

	// Accounts and sessions
	RootAdminEmail string
	JWTSecret      string
	SessionTTL     time.Duration

	// Order audit index, disabled when URL is empty
	ElasticsearchURL      string
	ElasticsearchUser     string
	ElasticsearchPassword string
	ArchiveInterval       time.Duration

	// Media uploads go to S3 when a bucket is set
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PublicURL string
	S3AccessKey string
	S3SecretKey string
	MediaDir    string // local uploads when no bucket is set
	AvatarsPath string

	// Discord admin console, disabled when token is empty
	DiscordToken         string
	DiscordAppID         string
	DiscordGuildID       string
	DiscordOrdersChannel string
	DiscordAdminIDs      []string

	// Transient store failures
	RetryAttempts int
	RetryBackoff  time.Duration
}

// Load reads the configuration from a .env file, if present, and the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// Only return error if file exists but couldn't be loaded
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables alone
func FromEnv() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg := &Config{
		Environment:           getEnvWithDefault("ENVIRONMENT", "development"),
		LogLevel:              getEnvWithDefault("LOG_LEVEL", "info"),
		HTTPAddr:              getEnvWithDefault("HTTP_ADDR", ":8080"),
		SyncAddr:              getEnvWithDefault("SYNC_ADDR", ":8081"),
		StorageType:           strings.ToLower(getEnvWithDefault("STORAGE_TYPE", StorageSQLite)),
		DataDir:               getEnvWithDefault("DATA_DIR", filepath.Join(wd, "data")),
		RootAdminEmail:        strings.ToLower(strings.TrimSpace(getEnvWithDefault("ROOT_ADMIN_EMAIL", "admin@royal.com"))),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		ElasticsearchURL:      os.Getenv("ELASTICSEARCH_URL"),
		ElasticsearchUser:     os.Getenv("ELASTICSEARCH_USERNAME"),
		ElasticsearchPassword: os.Getenv("ELASTICSEARCH_PASSWORD"),
		S3Bucket:              os.Getenv("S3_BUCKET"),
		S3Region:              getEnvWithDefault("S3_REGION", "us-east-1"),
		S3Endpoint:            os.Getenv("S3_ENDPOINT"),
		S3PublicURL:           os.Getenv("S3_PUBLIC_URL"),
		S3AccessKey:           os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:           os.Getenv("S3_SECRET_KEY"),
		MediaDir:              getEnvWithDefault("MEDIA_DIR", filepath.Join(wd, "data", "media")),
		AvatarsPath:           getEnvWithDefault("AVATARS_PATH", filepath.Join(wd, "avatars.txt")),
		DiscordToken:          os.Getenv("DISCORD_TOKEN"),
		DiscordAppID:          os.Getenv("DISCORD_APP_ID"),
		DiscordGuildID:        os.Getenv("DISCORD_GUILD_ID"),
		DiscordOrdersChannel:  os.Getenv("DISCORD_ORDERS_CHANNEL"),
		DiscordAdminIDs:       splitList(os.Getenv("DISCORD_ADMIN_IDS")),
	}

	if cfg.SessionTTL, err = getDurationWithDefault("SESSION_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ArchiveInterval, err = getDurationWithDefault("ARCHIVE_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.RetryBackoff, err = getDurationWithDefault("RETRY_BACKOFF", 50*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.RetryAttempts, err = getIntWithDefault("RETRY_ATTEMPTS", 3); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" && cfg.IsDevelopment() {
		cfg.JWTSecret = "development-secret"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.StorageType == StorageSQLite {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return cfg, nil
}

// validate checks if all required configuration is present
func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.StorageType != StorageSQLite && c.StorageType != StorageMemory {
		return fmt.Errorf("unknown STORAGE_TYPE %q", c.StorageType)
	}
	if c.RootAdminEmail == "" {
		return fmt.Errorf("ROOT_ADMIN_EMAIL is required")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("RETRY_ATTEMPTS must be at least 1")
	}
	if c.DiscordToken != "" && c.DiscordAppID == "" {
		return fmt.Errorf("DISCORD_APP_ID is required when DISCORD_TOKEN is set")
	}
	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// DatabasePath is the SQLite file holding accounts, orders and catalog
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "royalcharge.db")
}

// getEnvWithDefault returns environment variable value or default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationWithDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getIntWithDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
