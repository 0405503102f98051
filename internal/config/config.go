package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures runtime configuration for the scraping service.
type Config struct {
	ListenAddr        string
	BrowserUseAPIKey  string
	BrowserUseBaseURL string
	BrowserUseModel   string
	PollInterval      time.Duration
	AllowedOrigins    []string
	LogLevel          string
	ValkeyAddr        string
	ValkeyPassword    string
	CacheTTL          time.Duration
}

// FromEnv creates a configuration instance sourced from environment variables.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr:        ":" + getEnv("PORT", "8001"),
		BrowserUseAPIKey:  getEnv("BROWSER_USE_API_KEY", ""),
		BrowserUseBaseURL: getEnv("BROWSER_USE_BASE_URL", ""),
		BrowserUseModel:   getEnv("BROWSER_USE_MODEL", "gemini-flash-latest"),
		PollInterval:      2 * time.Second,
		AllowedOrigins:    splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001")),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		ValkeyAddr:        getEnv("VALKEY_ADDR", ""),
		ValkeyPassword:    getEnv("VALKEY_PASSWORD", ""),
		CacheTTL:          15 * time.Minute,
	}

	if port := os.Getenv("PORT"); port != "" {
		var n int
		if _, err := fmt.Sscanf(port, "%d", &n); err != nil || n <= 0 || n > 65535 {
			return Config{}, fmt.Errorf("parse PORT: invalid port %q", port)
		}
	}

	if poll := os.Getenv("BROWSER_USE_POLL_INTERVAL_MS"); poll != "" {
		var ms int
		if _, err := fmt.Sscanf(poll, "%d", &ms); err != nil {
			return Config{}, fmt.Errorf("parse BROWSER_USE_POLL_INTERVAL_MS: %w", err)
		}
		cfg.PollInterval = time.Duration(ms) * time.Millisecond
	}

	if ttl := os.Getenv("SCRAPE_CACHE_TTL_S"); ttl != "" {
		var secs int
		if _, err := fmt.Sscanf(ttl, "%d", &secs); err != nil {
			return Config{}, fmt.Errorf("parse SCRAPE_CACHE_TTL_S: %w", err)
		}
		cfg.CacheTTL = time.Duration(secs) * time.Second
	}

	return cfg, nil
}

// BrowserUseConfigured reports whether an agent API key is present.
func (c Config) BrowserUseConfigured() bool {
	return strings.TrimSpace(c.BrowserUseAPIKey) != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
