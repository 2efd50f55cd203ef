package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the vigil master.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Directory DirectoryConfig
	Inventory InventoryConfig
	Cache     CacheConfig
	Notify    NotifyConfig
	Admin     AdminConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port     int
	Env      string
	LogLevel string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
	DB  int
}

type DirectoryConfig struct {
	URL          string
	BindDN       string
	BindPassword string
	OpTimeout    time.Duration
}

type InventoryConfig struct {
	BaseURL string
	Timeout time.Duration
}

// CacheConfig bounds the in-process directory read caches.
type CacheConfig struct {
	Enabled         bool
	Size            int
	Expiry          time.Duration
	AgentProbesSize int
}

type NotifyConfig struct {
	// SMTPAddr and SMTPFrom enable the email channel. Left empty, email
	// contacts are rejected as an unsupported medium.
	SMTPAddr string
	SMTPFrom string
}

type AdminConfig struct {
	// TokenHash is the bcrypt hash of the operator token guarding the
	// admin routes. Empty disables them.
	TokenHash string
}

type RateLimitConfig struct {
	RequestsPerMin int
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     envInt("VIGIL_PORT", 8080),
			Env:      envString("VIGIL_ENV", "development"),
			LogLevel: envString("VIGIL_LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
			DB:  envInt("REDIS_DB", 0),
		},
		Directory: DirectoryConfig{
			URL:          os.Getenv("DIRECTORY_URL"),
			BindDN:       os.Getenv("DIRECTORY_BIND_DN"),
			BindPassword: os.Getenv("DIRECTORY_BIND_PASSWORD"),
			OpTimeout:    envDuration("DIRECTORY_OP_TIMEOUT", 10*time.Second),
		},
		Inventory: InventoryConfig{
			BaseURL: os.Getenv("INVENTORY_BASE_URL"),
			Timeout: envDuration("INVENTORY_TIMEOUT", 30*time.Second),
		},
		Cache: CacheConfig{
			Enabled:         envBool("VIGIL_CACHE_ENABLED", true),
			Size:            envInt("VIGIL_CACHE_SIZE", 100),
			Expiry:          envDuration("VIGIL_CACHE_EXPIRY", 5*time.Minute),
			AgentProbesSize: envInt("VIGIL_CACHE_AGENT_PROBES_SIZE", 1000000),
		},
		Notify: NotifyConfig{
			SMTPAddr: os.Getenv("SMTP_ADDR"),
			SMTPFrom: os.Getenv("SMTP_FROM"),
		},
		Admin: AdminConfig{
			TokenHash: os.Getenv("VIGIL_ADMIN_TOKEN_HASH"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMin: envInt("VIGIL_RATE_LIMIT_PER_MIN", 600),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Directory.URL == "" {
		return fmt.Errorf("DIRECTORY_URL is required")
	}
	if !strings.HasPrefix(c.Directory.URL, "ldap://") && !strings.HasPrefix(c.Directory.URL, "ldaps://") {
		return fmt.Errorf("DIRECTORY_URL must start with ldap:// or ldaps://, got %q", c.Directory.URL)
	}

	if c.Inventory.BaseURL == "" {
		return fmt.Errorf("INVENTORY_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Inventory.BaseURL, "http://") && !strings.HasPrefix(c.Inventory.BaseURL, "https://") {
		return fmt.Errorf("INVENTORY_BASE_URL must start with http:// or https://, got %q", c.Inventory.BaseURL)
	}

	if !validLogLevels[c.Server.LogLevel] {
		return fmt.Errorf("VIGIL_LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Server.LogLevel)
	}

	if c.Notify.SMTPAddr != "" && c.Notify.SMTPFrom == "" {
		return fmt.Errorf("SMTP_FROM is required when SMTP_ADDR is set")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
