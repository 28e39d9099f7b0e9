package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Common
	Environment string
	LogLevel    string

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// External collaborators
	MarketData MarketDataConfig
	Analyst    AnalystConfig

	// Services
	Watcher WatcherConfig
	Worker  WorkerConfig
	Notify  NotifyConfig
	API     APIConfig

	// Pipeline tuning
	Filter  FilterConfig
	Scoring ScoringConfig
}

// DatabaseConfig holds PostgreSQL configuration for the job store
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// MarketDataConfig holds the market data source configuration
type MarketDataConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	QuoteAsset     string // Universe filter, e.g. "USDT"
	KlineLimit     int    // Candles fetched per symbol (>= AvgVolumePeriod+1)
	DepthLimit     int    // Book levels fetched per side
}

// AnalystConfig holds the qualitative-analysis service configuration
type AnalystConfig struct {
	Endpoint       string
	APIKey         string
	Model          string
	RequestTimeout time.Duration
	MaxRetries     int
	Temperature    float64
	MaxTokens      int
}

// WatcherConfig holds market watcher configuration
type WatcherConfig struct {
	HealthCheckPort         int
	ScanInterval            time.Duration
	MaxSymbols              int // Universe size: top-N by quote volume
	UniverseRefreshInterval time.Duration
	FetchConcurrency        int // Bounded parallelism within a scan cycle
	DedupWindow             time.Duration
	AvgVolumePeriod         int // Closed candles in the rolling volume average
	RSIPeriod               int
	DepthRangePct           float64 // Book depth band around mid, e.g. 2.0 = +/-2%
	ThinBookDepthUSD        float64 // Depth below this marks the book as thin
}

// WorkerConfig holds analysis worker configuration
type WorkerConfig struct {
	HealthCheckPort int
	WorkerID        string
	PollInterval    time.Duration
	DedupWindow     time.Duration
}

// NotifyConfig holds notification dispatcher configuration
type NotifyConfig struct {
	StreamName         string
	CooldownTTL        time.Duration
	WarningThreshold   int
	OpportunityMin     int
	OpportunityMax     int
	FavorableScenarios []string
}

// APIConfig holds REST API configuration
type APIConfig struct {
	Port            int
	HealthCheckPort int
	JWTSecret       string
	DefaultLimit    int
	MaxLimit        int
}

// FilterConfig holds mechanical-filter thresholds (Layer 1)
type FilterConfig struct {
	PriceChangeThresholdPct   float64 // Minimum 5m price change, percent
	VolumeMultiplierThreshold float64 // Minimum current/average volume ratio
	MarketCapFloorUSD         float64 // Minimum estimated market cap
}

// ScoringConfig holds risk-scoring thresholds and weights (Layer 2)
type ScoringConfig struct {
	RSIOverbought       float64
	RSIPoints           int
	ThinBookRatio       float64
	ThinBookPoints      int
	VolumeToMcapRatio   float64
	VolumeToMcapPoints  int
	Spike1mThresholdPct float64
	Spike1mPoints       int
}

// Load loads configuration from environment variables
// It automatically loads .env file if it exists in the current directory or parent directories
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "anomaly_scanner"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		MarketData: MarketDataConfig{
			BaseURL:        getEnv("MARKET_DATA_BASE_URL", "https://api.binance.com"),
			RequestTimeout: getEnvAsDuration("MARKET_DATA_REQUEST_TIMEOUT", 10*time.Second),
			QuoteAsset:     getEnv("MARKET_DATA_QUOTE_ASSET", "USDT"),
			KlineLimit:     getEnvAsInt("MARKET_DATA_KLINE_LIMIT", 30),
			DepthLimit:     getEnvAsInt("MARKET_DATA_DEPTH_LIMIT", 100),
		},
		Analyst: AnalystConfig{
			Endpoint:       getEnv("ANALYST_ENDPOINT", ""),
			APIKey:         getEnv("ANALYST_API_KEY", ""),
			Model:          getEnv("ANALYST_MODEL", "gpt-4o-mini"),
			RequestTimeout: getEnvAsDuration("ANALYST_REQUEST_TIMEOUT", 30*time.Second),
			MaxRetries:     getEnvAsInt("ANALYST_MAX_RETRIES", 3),
			Temperature:    getEnvAsFloat("ANALYST_TEMPERATURE", 0.7),
			MaxTokens:      getEnvAsInt("ANALYST_MAX_TOKENS", 400),
		},
		Watcher: WatcherConfig{
			HealthCheckPort:         getEnvAsInt("WATCHER_HEALTH_PORT", 8081),
			ScanInterval:            getEnvAsDuration("WATCHER_SCAN_INTERVAL", 60*time.Second),
			MaxSymbols:              getEnvAsInt("WATCHER_MAX_SYMBOLS", 50),
			UniverseRefreshInterval: getEnvAsDuration("WATCHER_UNIVERSE_REFRESH_INTERVAL", 15*time.Minute),
			FetchConcurrency:        getEnvAsInt("WATCHER_FETCH_CONCURRENCY", 4),
			DedupWindow:             getEnvAsDuration("WATCHER_DEDUP_WINDOW", 15*time.Minute),
			AvgVolumePeriod:         getEnvAsInt("WATCHER_AVG_VOLUME_PERIOD", 20),
			RSIPeriod:               getEnvAsInt("WATCHER_RSI_PERIOD", 14),
			DepthRangePct:           getEnvAsFloat("WATCHER_DEPTH_RANGE_PCT", 2.0),
			ThinBookDepthUSD:        getEnvAsFloat("WATCHER_THIN_BOOK_DEPTH_USD", 500_000),
		},
		Worker: WorkerConfig{
			HealthCheckPort: getEnvAsInt("WORKER_HEALTH_PORT", 8083),
			WorkerID:        getEnv("WORKER_ID", "worker-1"),
			PollInterval:    getEnvAsDuration("WORKER_POLL_INTERVAL", 5*time.Second),
			DedupWindow:     getEnvAsDuration("WORKER_DEDUP_WINDOW", 15*time.Minute),
		},
		Notify: NotifyConfig{
			StreamName:         getEnv("NOTIFY_STREAM_NAME", "anomaly.alerts"),
			CooldownTTL:        getEnvAsDuration("NOTIFY_COOLDOWN_TTL", 30*time.Minute),
			WarningThreshold:   getEnvAsInt("NOTIFY_WARNING_THRESHOLD", 75),
			OpportunityMin:     getEnvAsInt("NOTIFY_OPPORTUNITY_MIN", 60),
			OpportunityMax:     getEnvAsInt("NOTIFY_OPPORTUNITY_MAX", 74),
			FavorableScenarios: getEnvAsStringSlice("NOTIFY_FAVORABLE_SCENARIOS", []string{"Organic Breakout", "Short Squeeze"}),
		},
		API: APIConfig{
			Port:            getEnvAsInt("API_PORT", 8090),
			HealthCheckPort: getEnvAsInt("API_HEALTH_PORT", 8091),
			JWTSecret:       getEnv("API_JWT_SECRET", ""),
			DefaultLimit:    getEnvAsInt("API_DEFAULT_LIMIT", 20),
			MaxLimit:        getEnvAsInt("API_MAX_LIMIT", 100),
		},
		Filter: FilterConfig{
			PriceChangeThresholdPct:   getEnvAsFloat("FILTER_PRICE_CHANGE_THRESHOLD_PCT", 2.0),
			VolumeMultiplierThreshold: getEnvAsFloat("FILTER_VOLUME_MULTIPLIER_THRESHOLD", 3.0),
			MarketCapFloorUSD:         getEnvAsFloat("FILTER_MARKET_CAP_FLOOR_USD", 10_000_000),
		},
		Scoring: ScoringConfig{
			RSIOverbought:       getEnvAsFloat("SCORING_RSI_OVERBOUGHT", 85),
			RSIPoints:           getEnvAsInt("SCORING_RSI_POINTS", 20),
			ThinBookRatio:       getEnvAsFloat("SCORING_THIN_BOOK_RATIO", 0.33),
			ThinBookPoints:      getEnvAsInt("SCORING_THIN_BOOK_POINTS", 30),
			VolumeToMcapRatio:   getEnvAsFloat("SCORING_VOLUME_TO_MCAP_RATIO", 0.2),
			VolumeToMcapPoints:  getEnvAsInt("SCORING_VOLUME_TO_MCAP_POINTS", 15),
			Spike1mThresholdPct: getEnvAsFloat("SCORING_SPIKE_1M_THRESHOLD_PCT", 5.0),
			Spike1mPoints:       getEnvAsInt("SCORING_SPIKE_1M_POINTS", 20),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.MarketData.BaseURL == "" {
		return fmt.Errorf("MARKET_DATA_BASE_URL is required")
	}
	if c.Watcher.MaxSymbols <= 0 {
		return fmt.Errorf("WATCHER_MAX_SYMBOLS must be positive")
	}
	if c.Watcher.ScanInterval <= 0 {
		return fmt.Errorf("WATCHER_SCAN_INTERVAL must be positive")
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("WORKER_POLL_INTERVAL must be positive")
	}
	if c.Notify.OpportunityMin > c.Notify.OpportunityMax {
		return fmt.Errorf("NOTIFY_OPPORTUNITY_MIN must not exceed NOTIFY_OPPORTUNITY_MAX")
	}
	if c.Notify.OpportunityMax >= c.Notify.WarningThreshold {
		return fmt.Errorf("NOTIFY_OPPORTUNITY_MAX must be below NOTIFY_WARNING_THRESHOLD")
	}
	if c.Filter.VolumeMultiplierThreshold <= 0 {
		return fmt.Errorf("FILTER_VOLUME_MULTIPLIER_THRESHOLD must be positive")
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
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Split by comma and trim spaces
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
