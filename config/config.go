package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration loaded from environment variables.
type Config struct {
	// FeedURL is the WebSocket sample source. May also arrive via CLI flag;
	// service startup fails when neither is set.
	FeedURL string

	// Detector
	Alpha       float64
	Threshold   float64
	TrackSpread bool

	// SeriesFilter restricts processing to the listed series
	// (comma-separated). Empty means every series on the feed.
	SeriesFilter string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	LiveAddr      string
	MetricsAddr   string

	// Watch loops
	StallAfter    time.Duration
	SnapshotEvery time.Duration

	// FrameInterval paces broadcast frames when serving a finished detection.
	FrameInterval time.Duration

	// Notifications
	WebhookURL     string
	TelegramToken  string
	TelegramChatID string

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		FeedURL: getEnv("FEED_URL", ""),

		Alpha:       getEnvFloat("DETECT_ALPHA", 0.3),
		Threshold:   getEnvFloat("DETECT_THRESHOLD", 2.5),
		TrackSpread: getEnv("DETECT_TRACK_SPREAD", "") == "1",

		SeriesFilter: getEnv("SERIES_FILTER", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/driftwatch.db"),
		LiveAddr:      getEnv("LIVE_ADDR", ":8090"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		StallAfter:    getEnvDuration("STALL_AFTER", 30*time.Second),
		SnapshotEvery: getEnvDuration("SNAPSHOT_EVERY", time.Minute),
		FrameInterval: getEnvDuration("FRAME_INTERVAL", 100*time.Millisecond),

		WebhookURL:     getEnv("WEBHOOK_URL", ""),
		TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),
		TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// ParseSeries parses the SeriesFilter string into a slice of series names.
// Empty entries are skipped; an empty filter returns nil (no restriction).
func (c *Config) ParseSeries() []string {
	if strings.TrimSpace(c.SeriesFilter) == "" {
		return nil
	}
	parts := strings.Split(c.SeriesFilter, ",")
	series := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			log.Printf("[config] skipping empty series filter entry")
			continue
		}
		series = append(series, p)
	}
	return series
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return d
}
