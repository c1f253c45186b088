package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendRemote = "remote"
	BackendLocal  = "local"

	SessionStoreKeyring = "keyring"
	SessionStoreFile    = "file"
)

type Config struct {
	// Application
	AppName string
	AppEnv  string
	AppURL  string
	Port    string

	// Database (server and local backend; default: sqlite)
	DBDriver     string
	DBConnection string

	// Security
	JWTSecret          string
	JWTExpiry          time.Duration
	RefreshTokenExpiry time.Duration
	TokenCleanup       time.Duration // How often used and expired refresh tokens are purged
	APIKey             string        // Optional: required "apikey" header on every request
	AuthRateLimit      int
	AuthRateWindow     time.Duration

	// Email
	EmailFrom    string
	ResendAPIKey string

	// Observability (optional)
	SentryDSN string
	Debug     bool

	// Client
	Backend      string // "remote" or "local"
	BackendURL   string
	BackendKey   string
	Timezone     string
	ConfigDir    string
	SessionStore string // "keyring" or "file"

	// Storage (S3-compatible, optional: enables export uploads)
	S3Region        string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3Endpoint      string
	S3PresignExpiry time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	configDir := envString("HABITS_CONFIG_DIR", defaultConfigDir())

	cfg := &Config{
		// Application
		AppName: envString("APP_NAME", "Habits"),
		AppEnv:  envString("APP_ENV", "production"),
		AppURL:  envString("APP_URL", "http://localhost:8090"),
		Port:    envString("PORT", "8090"),

		// Database
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", filepath.Join(configDir, "habits.db")+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"),

		// Security
		JWTSecret:          envString("JWT_SECRET", ""),
		JWTExpiry:          envDuration("JWT_EXPIRY", 1*time.Hour),
		RefreshTokenExpiry: envDuration("REFRESH_TOKEN_EXPIRY", 30*24*time.Hour), // 30 days
		TokenCleanup:       envDuration("TOKEN_CLEANUP_INTERVAL", 1*time.Hour),
		APIKey:             envString("API_KEY", ""),
		AuthRateLimit:      envInt("AUTH_RATE_LIMIT", 30),
		AuthRateWindow:     envDuration("AUTH_RATE_WINDOW", 15*time.Minute),

		// Email (RESEND_API_KEY optional in development)
		EmailFrom:    envString("EMAIL_FROM", "noreply@example.com"),
		ResendAPIKey: envString("RESEND_API_KEY", ""),

		// Observability
		SentryDSN: envString("SENTRY_DSN", ""),
		Debug:     envBool("DEBUG", false),

		// Client
		Backend:      strings.ToLower(envString("HABITS_BACKEND", BackendRemote)),
		BackendURL:   envString("HABITS_URL", "http://localhost:8090"),
		BackendKey:   envString("HABITS_API_KEY", ""),
		Timezone:     envString("HABITS_TIMEZONE", "UTC"),
		ConfigDir:    configDir,
		SessionStore: strings.ToLower(envString("HABITS_SESSION_STORE", SessionStoreKeyring)),

		// Storage
		S3Region:        envString("S3_REGION", ""),
		S3Bucket:        envString("S3_BUCKET", ""),
		S3AccessKey:     envString("S3_ACCESS_KEY", ""),
		S3SecretKey:     envString("S3_SECRET_KEY", ""),
		S3Endpoint:      envString("S3_ENDPOINT", ""),                  // Optional: for non-AWS providers
		S3PresignExpiry: envDuration("S3_PRESIGN_EXPIRY", 24*time.Hour), // Default: 1 day for export links
	}

	return cfg
}

// LoadServer loads the config for the hosted backend. A signing secret is
// mandatory there.
func LoadServer() *Config {
	cfg := Load()
	cfg.JWTSecret = envRequired("JWT_SECRET")

	// Production: validate required services
	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

// validateProduction ensures all required services are configured for production deployments.
// Development allows email to use log mode for easier local testing.
func validateProduction(cfg *Config) {
	if cfg.ResendAPIKey == "" {
		slog.Error("production deployment requires RESEND_API_KEY",
			"hint", "set APP_ENV=development for local testing with email log mode")
		os.Exit(1)
	}
	if len(cfg.JWTSecret) < 32 {
		slog.Error("production deployment requires a JWT_SECRET of at least 32 characters")
		os.Exit(1)
	}
}

// Location returns the time zone used to decide what "today" is.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid HABITS_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// LocalSecret returns the signing secret for the in-process backend. Without
// JWT_SECRET a random secret is generated once and kept in the config dir so
// persisted sessions stay valid across runs.
func (c *Config) LocalSecret() (string, error) {
	if c.JWTSecret != "" {
		return c.JWTSecret, nil
	}

	path := filepath.Join(c.ConfigDir, "local.secret")
	data, err := os.ReadFile(path)
	if err == nil && len(data) > 0 {
		return strings.TrimSpace(string(data)), nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to read local secret: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	secret := hex.EncodeToString(buf)

	if err := os.MkdirAll(c.ConfigDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(secret), 0o600); err != nil {
		return "", fmt.Errorf("failed to write local secret: %w", err)
	}
	return secret, nil
}

func (c *Config) HasS3() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func defaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".habits"
	}
	return filepath.Join(dir, "habits")
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}
