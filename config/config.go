package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisInputStream     string
	RedisInputGroup      string
	RedisConsumer        string
	RedisOutputStream    string
	RedisStreamMaxLength int

	// Memcache configuration; empty means an in-process cache is used
	MemcacheAddr string

	// Fetch and resolution configuration
	FetchTimeout      time.Duration
	MaxRedirectHops   int
	RequestsPerSecond float64
	ResolveCacheTTL   time.Duration
	CooldownTime      time.Duration

	// Extraction configuration
	ExtractConcurrency int
	AmazonMaxAttempts  int
	RetryBackoff       time.Duration
	LinkTimeout        time.Duration
	MessageTimeout     time.Duration
	DefaultCurrency    string

	// Affiliate configuration
	AffiliateConfigPath string
	Channel             string
	TrackingSecret      string

	// Optional listen address for the Prometheus endpoint
	MetricsAddr string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	return &Config{
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisInputStream:     getEnv("REDIS_INPUT_STREAM", "chat:messages"),
		RedisInputGroup:      getEnv("REDIS_INPUT_GROUP", "deallinker"),
		RedisConsumer:        getEnv("REDIS_CONSUMER", hostnameOr("deallinker-1")),
		RedisOutputStream:    getEnv("REDIS_OUTPUT_STREAM", "deallinker:products"),
		RedisStreamMaxLength: getEnvInt("REDIS_STREAM_MAX_LENGTH", 10000),
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", ""),
		FetchTimeout:         getEnvSeconds("FETCH_TIMEOUT_SECONDS", 20),
		MaxRedirectHops:      clamp(getEnvInt("MAX_REDIRECT_HOPS", 8), 5, 10),
		RequestsPerSecond:    getEnvFloat("REQUESTS_PER_SECOND", 2),
		ResolveCacheTTL:      getEnvSeconds("RESOLVE_CACHE_TTL_SECONDS", 86400),
		CooldownTime:         getEnvSeconds("COOLDOWN_SECONDS", 300),
		ExtractConcurrency:   clamp(getEnvInt("EXTRACT_CONCURRENCY", 3), 1, 5),
		AmazonMaxAttempts:    getEnvInt("AMAZON_MAX_ATTEMPTS", 3),
		RetryBackoff:         getEnvSeconds("RETRY_BACKOFF_SECONDS", 2),
		LinkTimeout:          getEnvSeconds("LINK_TIMEOUT_SECONDS", 90),
		MessageTimeout:       getEnvSeconds("MESSAGE_TIMEOUT_SECONDS", 120),
		DefaultCurrency:      strings.ToUpper(getEnv("DEFAULT_CURRENCY", "INR")),
		AffiliateConfigPath:  getEnv("AFFILIATE_CONFIG_PATH", "affiliate.yaml"),
		Channel:              getEnv("CHANNEL", ""),
		TrackingSecret:       getEnv("TRACKING_SECRET", ""),
		MetricsAddr:          getEnv("METRICS_ADDR", ""),
		Environment:          getEnv("DEALLINKER_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.RedisInputStream == "" || c.RedisOutputStream == "" {
		return fmt.Errorf("input and output streams are required")
	}
	if c.RedisInputGroup == "" || c.RedisConsumer == "" {
		return fmt.Errorf("consumer group and consumer name are required")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT_SECONDS must be positive")
	}
	if c.LinkTimeout < c.FetchTimeout {
		return fmt.Errorf("LINK_TIMEOUT_SECONDS (%s) must not be shorter than FETCH_TIMEOUT_SECONDS (%s)", c.LinkTimeout, c.FetchTimeout)
	}
	if c.MessageTimeout <= 0 {
		return fmt.Errorf("MESSAGE_TIMEOUT_SECONDS must be positive")
	}
	if c.AmazonMaxAttempts < 1 {
		return fmt.Errorf("AMAZON_MAX_ATTEMPTS must be at least 1")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("RETRY_BACKOFF_SECONDS must not be negative")
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("REQUESTS_PER_SECOND must be positive")
	}
	if len(c.DefaultCurrency) != 3 {
		return fmt.Errorf("DEFAULT_CURRENCY must be an ISO-4217 code, got %q", c.DefaultCurrency)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func hostnameOr(fallback string) string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return fallback
	}
	return name
}
