package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// DefaultFeedURL is the USGS FDSN event query endpoint.
const DefaultFeedURL = "https://earthquake.usgs.gov/fdsnws/event/1/query"

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	DBPath string

	// Feed configuration.
	FeedURL          string
	FeedTimeout      time.Duration
	FeedMaxAttempts  int
	FeedRetryBackoff time.Duration

	IngestInterval      time.Duration
	DispatchConcurrency int
	SeenCacheSize       int
	RenotifyLookback    time.Duration

	// Push delivery configuration.
	PushEnabled         bool
	PushBaseURL         string
	PushProjectID       string
	PushCredentialsFile string // service account key; preferred over PushAccessToken
	PushAccessToken     string // pre-issued token, never refreshed
	PushTimeout         time.Duration
	BroadcastTopic      string

	// Event stream configuration.
	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaEventsTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	feedTimeout, err := parsePositiveDuration("FEED_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	feedBackoff, err := parseDuration("FEED_RETRY_BACKOFF", "500ms")
	if err != nil {
		return nil, err
	}
	feedAttempts, err := parsePositiveInt("FEED_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	interval, err := parsePositiveDuration("INGEST_INTERVAL", "15m")
	if err != nil {
		return nil, err
	}
	concurrency, err := parsePositiveInt("DISPATCH_CONCURRENCY", 8)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parsePositiveInt("SEEN_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	lookback, err := parseDuration("RENOTIFY_LOOKBACK", "0s")
	if err != nil {
		return nil, err
	}
	pushTimeout, err := parsePositiveDuration("PUSH_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DBPath: sharedcfg.EnvOrDefault("DB_PATH", "quake-alert.db"),

		FeedURL:          sharedcfg.EnvOrDefault("FEED_URL", DefaultFeedURL),
		FeedTimeout:      feedTimeout,
		FeedMaxAttempts:  feedAttempts,
		FeedRetryBackoff: feedBackoff,

		IngestInterval:      interval,
		DispatchConcurrency: concurrency,
		SeenCacheSize:       cacheSize,
		RenotifyLookback:    lookback,

		PushEnabled:         os.Getenv("PUSH_ENABLED") == "true",
		PushBaseURL:         sharedcfg.EnvOrDefault("PUSH_BASE_URL", "https://fcm.googleapis.com"),
		PushProjectID:       os.Getenv("PUSH_PROJECT_ID"),
		PushCredentialsFile: os.Getenv("PUSH_CREDENTIALS_FILE"),
		PushAccessToken:     os.Getenv("PUSH_ACCESS_TOKEN"),
		PushTimeout:         pushTimeout,
		BroadcastTopic:      sharedcfg.EnvOrDefault("BROADCAST_TOPIC", "earthquake-alerts"),

		KafkaEnabled:     os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaEventsTopic: sharedcfg.EnvOrDefault("KAFKA_EVENTS_TOPIC", "earthquake-events"),
	}

	if cfg.DBPath == "" {
		return nil, errors.New("DB_PATH is required")
	}
	if cfg.FeedURL == "" {
		return nil, errors.New("FEED_URL is required")
	}
	if cfg.PushEnabled && cfg.PushCredentialsFile == "" && (cfg.PushProjectID == "" || cfg.PushAccessToken == "") {
		return nil, errors.New("PUSH_ENABLED is true but neither PUSH_CREDENTIALS_FILE nor PUSH_PROJECT_ID with PUSH_ACCESS_TOKEN is set")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaEventsTopic == "" {
		return nil, errors.New("KAFKA_EVENTS_TOPIC is required")
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := parseDuration(key, def)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
