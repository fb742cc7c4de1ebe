package conf

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config represents application configuration
type Config struct {
	// State store
	DBPath string

	// Zoom S2S OAuth credentials (optional; Zoom scanning is skipped when unset)
	Zoom ZoomConfig

	// Teams-like platform API
	Teams TeamsConfig

	// Summarizer configuration
	OpenAI OpenAIConfig

	// Incremental scan window
	Lookback    time.Duration
	ScanOverlap time.Duration

	// Per-user cap on meeting candidates per run
	MaxMeetingsPerUser int

	// Retry policy for outbound calls
	Retry RetryConfig

	// Per-service rate budgets
	RateLimits RateLimitConfig

	// Bounded per-user parallelism within one run
	Workers int

	// Scheduling
	RunInterval time.Duration
	RunTimeout  time.Duration

	// Prometheus listen address, empty disables the listener
	MetricsAddr string

	// Debug mode
	Debug bool
}

// ZoomConfig contains Zoom server-to-server OAuth configuration
type ZoomConfig struct {
	ClientID     string
	ClientSecret string
	AccountID    string
	BaseURL      string // override for tests, empty uses the public API
}

// TeamsConfig contains Teams-like platform configuration
type TeamsConfig struct {
	BaseURL string // override for tests, empty uses the public API
}

// OpenAIConfig contains summarizer configuration
type OpenAIConfig struct {
	APIKey             string
	Model              string
	MinTranscriptChars int
}

// RetryConfig bounds the retry executor
type RetryConfig struct {
	MaxAttempts int
	BackoffBase float64
	InitialWait time.Duration
	MaxWait     time.Duration
}

// RateLimitConfig holds requests-per-interval budgets per service class
type RateLimitConfig struct {
	TeamsPerMinute         int
	ZoomRecordingPerSecond int
	ZoomGeneralPerSecond   int
	SummarizerPerMinute    int
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	dbPath := os.Getenv("RECAP_DB_PATH")
	if dbPath == "" {
		homeDir, _ := os.UserHomeDir()
		dbPath = filepath.Join(homeDir, ".meeting-recap", "recap.db")
	}

	return &Config{
		DBPath: dbPath,
		Zoom: ZoomConfig{
			ClientID:     os.Getenv("ZOOM_CLIENT_ID"),
			ClientSecret: os.Getenv("ZOOM_CLIENT_SECRET"),
			AccountID:    os.Getenv("ZOOM_ACCOUNT_ID"),
			BaseURL:      os.Getenv("ZOOM_BASE_URL"),
		},
		Teams: TeamsConfig{
			BaseURL: os.Getenv("TEAMS_BASE_URL"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             os.Getenv("OPENAI_API_KEY"),
			Model:              envString("OPENAI_MODEL", "gpt-4o-mini"),
			MinTranscriptChars: envInt("MIN_TRANSCRIPT_CHARS", 200),
		},
		Lookback:           time.Duration(envInt("LOOKBACK_HOURS", 24)) * time.Hour,
		ScanOverlap:        time.Duration(envInt("SCAN_OVERLAP_MINUTES", 60)) * time.Minute,
		MaxMeetingsPerUser: envInt("MAX_MEETINGS_PER_USER", 50),
		Retry: RetryConfig{
			MaxAttempts: envInt("RETRY_MAX_ATTEMPTS", 3),
			BackoffBase: envFloat("RETRY_BACKOFF_BASE", 2.0),
			InitialWait: time.Duration(envInt("RETRY_INITIAL_WAIT_SECONDS", 1)) * time.Second,
			MaxWait:     time.Duration(envInt("RETRY_MAX_WAIT_SECONDS", 60)) * time.Second,
		},
		RateLimits: RateLimitConfig{
			TeamsPerMinute:         envInt("TEAMS_RATE_LIMIT_PER_MINUTE", 100),
			ZoomRecordingPerSecond: envInt("ZOOM_RECORDING_RATE_LIMIT_PER_SECOND", 8),
			ZoomGeneralPerSecond:   envInt("ZOOM_RATE_LIMIT_PER_SECOND", 60),
			SummarizerPerMinute:    envInt("OPENAI_RATE_LIMIT_PER_MINUTE", 10),
		},
		Workers:     envInt("WORKER_POOL_SIZE", 4),
		RunInterval: time.Duration(envInt("RUN_INTERVAL_MINUTES", 15)) * time.Minute,
		RunTimeout:  time.Duration(envInt("RUN_TIMEOUT_MINUTES", 10)) * time.Minute,
		MetricsAddr: os.Getenv("METRICS_ADDR"),
		Debug:       os.Getenv("DEBUG") == "true",
	}
}

// IsZoomConfigured reports whether the Zoom connector can be built.
func (c *Config) IsZoomConfigured() bool {
	return c.Zoom.ClientID != "" && c.Zoom.ClientSecret != "" && c.Zoom.AccountID != ""
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return &ConfigError{Field: "OPENAI_API_KEY", Message: "required"}
	}
	if c.Workers < 1 {
		return &ConfigError{Field: "WORKER_POOL_SIZE", Message: "must be at least 1"}
	}
	if c.MaxMeetingsPerUser < 1 {
		return &ConfigError{Field: "MAX_MEETINGS_PER_USER", Message: "must be at least 1"}
	}
	if c.ScanOverlap < 0 || c.Lookback <= 0 {
		return &ConfigError{Field: "LOOKBACK_HOURS/SCAN_OVERLAP_MINUTES", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

func envString(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}
