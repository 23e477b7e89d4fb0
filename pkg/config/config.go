// Package config reads the runtime's environment-driven settings.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the trading runtime.
type Config struct {
	Port string

	// Symbols traded and streamed by default.
	Symbols []string

	// Event engine
	TimerInterval time.Duration

	// Paper gateway
	InitialCash float64

	// Market data
	UseMockFeed      bool
	MockFeedInterval time.Duration
	MockStartPrice   float64
	MockStep         float64

	// Strategy
	PriceAdd           float64
	StrategyConfigPath string

	// Journal
	EnableJournal bool
	JournalPath   string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:               getEnv("PORT", "8080"),
		Symbols:            splitAndTrim(getEnv("SYMBOLS", "AAPL,TSLA")),
		TimerInterval:      getEnvDuration("TIMER_INTERVAL", time.Second),
		InitialCash:        getEnvFloat("INITIAL_CASH", 100000.0),
		UseMockFeed:        getEnv("USE_MOCK_FEED", "true") == "true",
		MockFeedInterval:   getEnvDuration("MOCK_FEED_INTERVAL", time.Second),
		MockStartPrice:     getEnvFloat("MOCK_START_PRICE", 100.0),
		MockStep:           getEnvFloat("MOCK_STEP", 0.5),
		PriceAdd:           getEnvFloat("PRICE_ADD", 0.001),
		StrategyConfigPath: getEnv("STRATEGY_CONFIG_PATH", ""),
		EnableJournal:      getEnv("ENABLE_JOURNAL", "true") == "true",
		JournalPath:        getEnv("JOURNAL_PATH", "./data/journal.db"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
