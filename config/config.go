package config

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"tradesignals/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Instrument and timeframes
	Symbol     string
	Timeframes string // comma-separated targets, e.g. "5m,10m,15m,30m"

	// Storage paths
	DataDir     string
	StatePath   string
	JournalPath string

	// Schwab market data credentials
	SchwabClientID     string
	SchwabClientSecret string
	SchwabRefreshToken string
	SchwabTOTPSecret   string

	// Infrastructure
	RedisAddr     string // empty disables the Redis publisher
	RedisPassword string
	MetricsAddr   string

	// Email notifications
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string
	EmailTo      string // comma-separated recipients

	// Webhook notifications (empty disables)
	WebhookURL string

	LogLevel string
}

// Load reads configuration from the environment with sensible defaults.
// A .env file in the working directory is applied first if present.
func Load() *Config {
	_ = godotenv.Load() // optional; absent .env is fine

	return &Config{
		Symbol:     getEnv("SYMBOL", "SPY"),
		Timeframes: getEnv("TIMEFRAMES", "5m,10m,15m,30m"),

		DataDir:     getEnv("DATA_DIR", "data"),
		StatePath:   getEnv("STATE_PATH", "data/position_states.json"),
		JournalPath: getEnv("JOURNAL_PATH", "data/signals.db"),

		SchwabClientID:     getEnv("SCHWAB_CLIENT_ID", ""),
		SchwabClientSecret: getEnv("SCHWAB_CLIENT_SECRET", ""),
		SchwabRefreshToken: getEnv("SCHWAB_REFRESH_TOKEN", ""),
		SchwabTOTPSecret:   getEnv("SCHWAB_TOTP_SECRET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		EmailFrom:    getEnv("EMAIL_FROM", ""),
		EmailTo:      getEnv("EMAIL_TO", ""),

		WebhookURL: getEnv("WEBHOOK_URL", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// ParseTimeframes parses the Timeframes string into timeframe values,
// skipping invalid entries.
func (c *Config) ParseTimeframes() []model.Timeframe {
	parts := strings.Split(c.Timeframes, ",")
	tfs := make([]model.Timeframe, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		tf, err := model.ParseTimeframe(p)
		if err != nil {
			log.Printf("[config] skipping invalid timeframe value: %q", p)
			continue
		}
		tfs = append(tfs, tf)
	}
	return tfs
}

// Recipients splits EmailTo into individual addresses.
func (c *Config) Recipients() []string {
	var out []string
	for _, r := range strings.Split(c.EmailTo, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// MustSchwab exits when the Schwab credentials needed for fetching are absent.
func (c *Config) MustSchwab() {
	if c.SchwabClientID == "" || c.SchwabClientSecret == "" {
		log.Fatal("[config] SCHWAB_CLIENT_ID and SCHWAB_CLIENT_SECRET must be set")
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
