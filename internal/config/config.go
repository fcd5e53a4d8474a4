package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port         string
	Environment  string
	LogLevel     string
	WriteTimeout time.Duration

	// Upstream
	UpstreamBaseURL       string
	ProxyPrefix           string
	UpstreamVersionPrefix string
	KeyQueryParam         string
	UpstreamTimeout       time.Duration

	// Key pool
	SeedKeys         []string
	ErrorLogCapacity int

	// Notifications
	RedisURL              string
	RedisEventsChannel    string
	DiscordBotToken       string
	DiscordAlertChannelID string
	AlertCooldown         time.Duration

	// Workers
	StatsReportInterval time.Duration
}

func Load() (*Config, error) {
	// Try loading from current directory first, then parent.
	// Errors are ignored since env vars may be set directly (e.g. docker/k8s).
	_ = godotenv.Load()
	_ = godotenv.Load("../.env")

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		Environment:  getEnv("ENVIRONMENT", "development"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		WriteTimeout: getDurationEnv("WRITE_TIMEOUT", 0),

		UpstreamBaseURL:       getEnv("UPSTREAM_BASE_URL", "https://generativelanguage.googleapis.com"),
		ProxyPrefix:           getEnv("PROXY_PREFIX", "/gemini"),
		UpstreamVersionPrefix: getEnv("UPSTREAM_VERSION_PREFIX", "/v1beta"),
		KeyQueryParam:         getEnv("KEY_QUERY_PARAM", "key"),
		// Zero means no timeout: a slow upstream holds the caller
		UpstreamTimeout: getDurationEnv("UPSTREAM_TIMEOUT", 0),

		ErrorLogCapacity: getIntEnv("ERROR_LOG_CAPACITY", 1000),

		RedisURL:              getEnv("REDIS_URL", ""),
		RedisEventsChannel:    getEnv("REDIS_EVENTS_CHANNEL", "keypool:failures"),
		DiscordBotToken:       getEnv("DISCORD_BOT_TOKEN", ""),
		DiscordAlertChannelID: getEnv("DISCORD_ALERT_CHANNEL_ID", ""),
		AlertCooldown:         getDurationEnv("ALERT_COOLDOWN", 5*time.Minute),

		StatsReportInterval: getDurationEnv("STATS_REPORT_INTERVAL", time.Minute),
	}

	// Parse seed keys (comma-separated)
	if keys := os.Getenv("GEMINI_API_KEYS"); keys != "" {
		cfg.SeedKeys = splitAndTrim(keys, ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail at request time.
func (c *Config) Validate() error {
	u, err := url.Parse(c.UpstreamBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid UPSTREAM_BASE_URL %q", c.UpstreamBaseURL)
	}
	if !strings.HasPrefix(c.ProxyPrefix, "/") {
		return fmt.Errorf("PROXY_PREFIX must start with '/': %q", c.ProxyPrefix)
	}
	if !strings.HasPrefix(c.UpstreamVersionPrefix, "/") {
		return fmt.Errorf("UPSTREAM_VERSION_PREFIX must start with '/': %q", c.UpstreamVersionPrefix)
	}
	if c.KeyQueryParam == "" {
		return fmt.Errorf("KEY_QUERY_PARAM must not be empty")
	}
	if c.ErrorLogCapacity < 1 {
		return fmt.Errorf("ERROR_LOG_CAPACITY must be positive, got %d", c.ErrorLogCapacity)
	}
	return nil
}

// IsDevelopment reports whether console logging should be used
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitAndTrim(s, sep string) []string {
	var result []string
	for _, part := range strings.Split(s, sep) {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
