// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported brokers
const (
	BrokerKite      = "kite"
	BrokerTradernet = "tradernet"
)

// Supported text-generation providers
const (
	ProviderRules     = "rules"
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for all databases (always absolute)
	LogLevel  string
	LogPretty bool
	Port      int
	DevMode   bool

	Broker     string
	Kite       KiteConfig
	Tradernet  TradernetConfig
	Monitor    MonitorConfig
	Insights   InsightConfig
	Generation GenerationConfig
	Archive    ArchiveConfig
}

// KiteConfig holds Kite Connect credentials. The access token is issued daily
// by the broker login flow, which lives outside this service.
type KiteConfig struct {
	APIKey      string
	AccessToken string
	BaseURL     string
}

// TradernetConfig holds Tradernet keypair credentials
type TradernetConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string
}

// MonitorConfig drives the polling cycle
type MonitorConfig struct {
	PollInterval    time.Duration
	FetchTimeout    time.Duration
	ValueThreshold  float64 // Relative value move that produces a value-moved delta
	SnapshotHistory int     // Maximum snapshots retained (>= 2)
	DegradedAfter   int     // Consecutive failures before monitoring is reported degraded
}

// InsightConfig controls selection and caching of insights
type InsightConfig struct {
	SignificanceThreshold float64
	Bucket                float64 // Fingerprint magnitude band width
	Cooldown              time.Duration
	Retention             time.Duration
	CacheSize             int
	CacheTTL              time.Duration
}

// GenerationConfig selects and bounds the text-generation provider
type GenerationConfig struct {
	Provider       string
	Timeout        time.Duration
	RatePerMinute  int
	QueueDepth     int
	GeminiAPIKey   string
	GeminiModel    string
	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAIBaseURL  string
	AnthropicKey   string
	AnthropicModel string
}

// ArchiveConfig configures the optional S3-compatible archive for pruned snapshots
type ArchiveConfig struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Retention       time.Duration // Archives older than this are rotated out, 0 keeps them forever
	Timeout         time.Duration // Bounds one archive upload during pruning, 0 uses the default
}

// Enabled reports whether an archive bucket is configured
func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// FromEnv builds and validates a Config from the process environment without
// touching the filesystem beyond resolving the data directory path.
func FromEnv() (*Config, error) {
	absDataDir, err := filepath.Abs(getEnv("DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	cfg := &Config{
		DataDir:   absDataDir,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", true),
		Port:      getEnvAsInt("PORT", 8001),
		DevMode:   getEnvAsBool("DEV_MODE", false),
		Broker:    strings.ToLower(getEnv("BROKER", BrokerKite)),
		Kite: KiteConfig{
			APIKey:      getEnv("KITE_API_KEY", ""),
			AccessToken: getEnv("KITE_ACCESS_TOKEN", ""),
			BaseURL:     getEnv("KITE_BASE_URL", "https://api.kite.trade"),
		},
		Tradernet: TradernetConfig{
			APIKey:    getEnv("TRADERNET_API_KEY", ""),
			APISecret: getEnv("TRADERNET_API_SECRET", ""),
			BaseURL:   getEnv("TRADERNET_BASE_URL", "https://freedom24.com"),
		},
		Monitor: MonitorConfig{
			PollInterval:    getEnvAsDuration("MONITOR_POLL_INTERVAL", 15*time.Minute),
			FetchTimeout:    getEnvAsDuration("MONITOR_FETCH_TIMEOUT", 30*time.Second),
			ValueThreshold:  getEnvAsFloat("MONITOR_VALUE_THRESHOLD", 0.05),
			SnapshotHistory: getEnvAsInt("MONITOR_SNAPSHOT_HISTORY", 30),
			DegradedAfter:   getEnvAsInt("MONITOR_DEGRADED_AFTER", 3),
		},
		Insights: InsightConfig{
			SignificanceThreshold: getEnvAsFloat("INSIGHT_SIGNIFICANCE_THRESHOLD", 0.05),
			Bucket:                getEnvAsFloat("INSIGHT_BUCKET", 0.05),
			Cooldown:              getEnvAsDuration("INSIGHT_COOLDOWN", 24*time.Hour),
			Retention:             getEnvAsDuration("INSIGHT_RETENTION", 90*24*time.Hour),
			CacheSize:             getEnvAsInt("INSIGHT_CACHE_SIZE", 256),
			CacheTTL:              getEnvAsDuration("INSIGHT_CACHE_TTL", 24*time.Hour),
		},
		Generation: GenerationConfig{
			Provider:       strings.ToLower(getEnv("GENERATION_PROVIDER", ProviderRules)),
			Timeout:        getEnvAsDuration("GENERATION_TIMEOUT", 45*time.Second),
			RatePerMinute:  getEnvAsInt("GENERATION_RATE_PER_MINUTE", 6),
			QueueDepth:     getEnvAsInt("GENERATION_QUEUE_DEPTH", 4),
			GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
			GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
			AnthropicKey:   getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel: getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		},
		Archive: ArchiveConfig{
			Bucket:          getEnv("ARCHIVE_BUCKET", ""),
			Endpoint:        getEnv("ARCHIVE_ENDPOINT", ""),
			Region:          getEnv("ARCHIVE_REGION", "auto"),
			AccessKeyID:     getEnv("ARCHIVE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("ARCHIVE_SECRET_ACCESS_KEY", ""),
			Retention:       getEnvAsDuration("ARCHIVE_RETENTION", 0),
			Timeout:         getEnvAsDuration("ARCHIVE_TIMEOUT", 2*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks every externally supplied value and reports all problems at once
func (c *Config) Validate() error {
	var errs []error
	positiveDuration := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	positiveInt := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	fraction := func(name string, v float64) {
		if v <= 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be in (0, 1], got %v", name, v))
		}
	}

	positiveDuration("MONITOR_POLL_INTERVAL", c.Monitor.PollInterval)
	positiveDuration("MONITOR_FETCH_TIMEOUT", c.Monitor.FetchTimeout)
	fraction("MONITOR_VALUE_THRESHOLD", c.Monitor.ValueThreshold)
	if c.Monitor.SnapshotHistory < 2 {
		errs = append(errs, fmt.Errorf("MONITOR_SNAPSHOT_HISTORY must be at least 2, got %d", c.Monitor.SnapshotHistory))
	}
	positiveInt("MONITOR_DEGRADED_AFTER", c.Monitor.DegradedAfter)

	fraction("INSIGHT_SIGNIFICANCE_THRESHOLD", c.Insights.SignificanceThreshold)
	fraction("INSIGHT_BUCKET", c.Insights.Bucket)
	positiveDuration("INSIGHT_COOLDOWN", c.Insights.Cooldown)
	positiveDuration("INSIGHT_RETENTION", c.Insights.Retention)
	positiveInt("INSIGHT_CACHE_SIZE", c.Insights.CacheSize)
	positiveDuration("INSIGHT_CACHE_TTL", c.Insights.CacheTTL)

	positiveDuration("GENERATION_TIMEOUT", c.Generation.Timeout)
	positiveInt("GENERATION_RATE_PER_MINUTE", c.Generation.RatePerMinute)
	if c.Generation.QueueDepth < 0 {
		errs = append(errs, fmt.Errorf("GENERATION_QUEUE_DEPTH must not be negative, got %d", c.Generation.QueueDepth))
	}

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be a valid TCP port, got %d", c.Port))
	}

	switch c.Broker {
	case BrokerKite, BrokerTradernet:
	default:
		errs = append(errs, fmt.Errorf("BROKER must be %q or %q, got %q", BrokerKite, BrokerTradernet, c.Broker))
	}

	switch c.Generation.Provider {
	case ProviderRules:
	case ProviderGemini:
		if c.Generation.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini provider"))
		}
	case ProviderOpenAI:
		if c.Generation.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai provider"))
		}
	case ProviderAnthropic:
		if c.Generation.AnthropicKey == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is required for the anthropic provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown GENERATION_PROVIDER %q", c.Generation.Provider))
	}

	if c.Archive.Enabled() && (c.Archive.AccessKeyID == "") != (c.Archive.SecretAccessKey == "") {
		errs = append(errs, errors.New("ARCHIVE_ACCESS_KEY_ID and ARCHIVE_SECRET_ACCESS_KEY must be set together"))
	}
	if c.Archive.Retention < 0 {
		errs = append(errs, fmt.Errorf("ARCHIVE_RETENTION must not be negative, got %s", c.Archive.Retention))
	}
	if c.Archive.Timeout < 0 {
		errs = append(errs, fmt.Errorf("ARCHIVE_TIMEOUT must not be negative, got %s", c.Archive.Timeout))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		// Unparseable values become invalid so Validate rejects them
		return -1
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		return -1
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		return -1
	}
	return defaultValue
}
