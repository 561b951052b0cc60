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

// Config holds all configuration for the application.
// All environment variables are read here and nowhere else.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Redis (optional second level for the result cache)
	Redis RedisConfig

	// External collaborators
	MarketData MarketDataConfig
	News       NewsConfig

	// Pipeline
	Pipeline PipelineConfig

	// Per-stage freshness windows
	Freshness FreshnessConfig

	// Scheduler
	Scheduler SchedulerConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// MarketDataConfig holds the market-data gateway configuration.
type MarketDataConfig struct {
	BaseURL string
	APIKey  string
}

// NewsConfig holds the news source endpoints.
type NewsConfig struct {
	BusinessFeedURL string // RSS
	HeadlinesURL    string // RSS search endpoint, symbol query appended
	MarketPageURL   string // HTML headline page
}

// PipelineConfig holds executor, retry and circuit-breaker knobs.
type PipelineConfig struct {
	MaxWorkers int
	RunTimeout time.Duration

	RetryMaxAttempts  int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	RetryMaxElapsed   time.Duration
	AttemptTimeout    time.Duration
	BreakerThreshold  int
	BreakerWindow     time.Duration
	BreakerCooldown   time.Duration
	ExternalCallsRate float64 // requests per second across all stages
	ExternalCallBurst int
}

// FreshnessConfig holds per-stage cache freshness windows.
type FreshnessConfig struct {
	MarketData   time.Duration
	News         time.Duration
	Fundamentals time.Duration
	Technical    time.Duration
	Strategy     time.Duration
	Report       time.Duration
}

// SchedulerConfig holds the cache-prewarm scheduler configuration.
type SchedulerConfig struct {
	Enabled   bool
	Spec      string   // cron expression with seconds field
	Watchlist []string // symbols to keep warm
}

// Load reads configuration from environment variables.
// Only this function calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8087"),
		Env:  getEnv("ENV", "development"),

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		MarketData: MarketDataConfig{
			BaseURL: getEnv("MARKET_DATA_BASE_URL", "http://localhost:8010"),
			APIKey:  getEnv("MARKET_DATA_API_KEY", ""),
		},

		News: NewsConfig{
			BusinessFeedURL: getEnv("NEWS_BUSINESS_FEED_URL", "https://economictimes.indiatimes.com/markets/rssfeeds/1977021501.cms"),
			HeadlinesURL:    getEnv("NEWS_HEADLINES_URL", "https://news.google.com/rss/search"),
			MarketPageURL:   getEnv("NEWS_MARKET_PAGE_URL", "https://economictimes.indiatimes.com/markets/stocks/news"),
		},

		Pipeline: PipelineConfig{
			MaxWorkers:        getEnvAsInt("PIPELINE_MAX_WORKERS", 4),
			RunTimeout:        getEnvAsDuration("PIPELINE_RUN_TIMEOUT", "3m"),
			RetryMaxAttempts:  getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			RetryBaseDelay:    getEnvAsDuration("RETRY_BASE_DELAY", "500ms"),
			RetryMaxDelay:     getEnvAsDuration("RETRY_MAX_DELAY", "10s"),
			RetryMaxElapsed:   getEnvAsDuration("RETRY_MAX_ELAPSED", "30s"),
			AttemptTimeout:    getEnvAsDuration("RETRY_ATTEMPT_TIMEOUT", "15s"),
			BreakerThreshold:  getEnvAsInt("BREAKER_THRESHOLD", 5),
			BreakerWindow:     getEnvAsDuration("BREAKER_WINDOW", "1m"),
			BreakerCooldown:   getEnvAsDuration("BREAKER_COOLDOWN", "30s"),
			ExternalCallsRate: getEnvAsFloat("EXTERNAL_CALLS_PER_SEC", 5.0),
			ExternalCallBurst: getEnvAsInt("EXTERNAL_CALL_BURST", 10),
		},

		Freshness: FreshnessConfig{
			MarketData:   getEnvAsDuration("FRESHNESS_MARKET_DATA", "15m"),
			News:         getEnvAsDuration("FRESHNESS_NEWS", "30m"),
			Fundamentals: getEnvAsDuration("FRESHNESS_FUNDAMENTALS", "6h"),
			Technical:    getEnvAsDuration("FRESHNESS_TECHNICAL", "15m"),
			Strategy:     getEnvAsDuration("FRESHNESS_STRATEGY", "15m"),
			Report:       getEnvAsDuration("FRESHNESS_REPORT", "15m"),
		},

		Scheduler: SchedulerConfig{
			Enabled:   getEnvAsBool("SCHEDULER_ENABLED", false),
			Spec:      getEnv("SCHEDULER_SPEC", "0 */30 9-16 * * 1-5"),
			Watchlist: getEnvAsList("SCHEDULER_WATCHLIST", ""),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set.
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.MarketData.BaseURL == "" {
		return fmt.Errorf("MARKET_DATA_BASE_URL is required")
	}

	if c.Pipeline.MaxWorkers < 1 {
		return fmt.Errorf("PIPELINE_MAX_WORKERS must be at least 1")
	}

	if c.Pipeline.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations.
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

func getEnvAsList(key string, defaultValue string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	if valueStr == "" {
		return nil
	}

	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
