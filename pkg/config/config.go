// Package config gathers every environment-driven setting the daemon needs
// into a single struct, the way pkg/utils.LoadAuthConfig does for the
// teacher's JWT settings.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Host string
	Port string

	LogLevel string

	DBPath string

	ScraperBaseURL     string
	StagerBaseURL      string
	UploaderBaseURL    string
	CatalogBaseURL     string
	CachePurgeBaseURL  string
	EventBusBaseURL    string
	NotifyBaseURL      string

	AdminAPIKey       string
	UploaderAPIKey    string
	CatalogAPIKey     string
	CachePurgeAPIKey  string
	NotifyChannelKey  string
	EventBusKey       string
	EventTokenSecret  string

	ScannerInterval   time.Duration
	ProcessorInterval time.Duration

	MaxConcurrentScans int
	MaxConcurrentSyncs int

	DefaultChaptersPerSeries int

	FetchTimeout  time.Duration
	ScrapeTimeout time.Duration
	UploadTimeout time.Duration

	MaxTaskRetries int

	NotifyAfterFailures  int
	NotificationCooldown time.Duration

	DefaultThumbnailURL string
}

// Load reads every recognized environment variable, applying the defaults
// documented for the service. It never fails: missing or malformed values
// fall back silently, matching the teacher's LoadAuthConfig style.
func Load() Config {
	return Config{
		Host: getEnv("HOST", "0.0.0.0"),
		Port: getEnv("PORT", "3000"),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		DBPath: getEnv("AUTOMIRROR_DB_PATH", defaultDBPath()),

		ScraperBaseURL:    getEnv("SCRAPER_BASE_URL", "http://localhost:9001"),
		StagerBaseURL:     getEnv("STAGER_BASE_URL", "http://localhost:9002"),
		UploaderBaseURL:   getEnv("UPLOADER_BASE_URL", "http://localhost:9003"),
		CatalogBaseURL:    getEnv("CATALOG_BASE_URL", "http://localhost:9004"),
		CachePurgeBaseURL: getEnv("CACHE_PURGE_BASE_URL", "http://localhost:9005"),
		EventBusBaseURL:   getEnv("EVENT_BUS_BASE_URL", "http://localhost:9006"),
		NotifyBaseURL:     getEnv("NOTIFY_BASE_URL", "http://localhost:9007"),

		AdminAPIKey:      getEnv("ADMIN_API_KEY", "dev-admin-key-change-me"),
		UploaderAPIKey:   getEnv("UPLOADER_API_KEY", ""),
		CatalogAPIKey:    getEnv("CATALOG_API_KEY", ""),
		CachePurgeAPIKey: getEnv("CACHE_PURGE_API_KEY", ""),
		NotifyChannelKey: getEnv("NOTIFY_CHANNEL_KEY", ""),
		EventBusKey:      getEnv("EVENT_BUS_KEY", ""),
		EventTokenSecret: getEnv("EVENT_TOKEN_SECRET", "dev-event-secret-change-me"),

		ScannerInterval:   getMillis("SCANNER_INTERVAL_MS", 60_000),
		ProcessorInterval: getMillis("PROCESSOR_INTERVAL_MS", 10_000),

		MaxConcurrentScans: getInt("MAX_CONCURRENT_SCANS", 5),
		MaxConcurrentSyncs: getInt("MAX_CONCURRENT_SYNCS", 5),

		DefaultChaptersPerSeries: getInt("DEFAULT_CHAPTERS_PER_SERIES", 3),

		FetchTimeout:  getMillis("FETCH_TIMEOUT_MS", 30_000),
		ScrapeTimeout: getMillis("SCRAPE_TIMEOUT_MS", 60_000),
		UploadTimeout: getMillis("UPLOAD_TIMEOUT_MS", 120_000),

		MaxTaskRetries: getInt("MAX_TASK_RETRIES", 3),

		NotifyAfterFailures:  getInt("NOTIFY_AFTER_FAILURES", 3),
		NotificationCooldown: getMillis("NOTIFICATION_COOLDOWN_MS", 3_600_000),

		DefaultThumbnailURL: getEnv("DEFAULT_THUMBNAIL_URL", "https://placehold.co/300x400"),
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return home + "/.automirror/data.db"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getMillis(key string, defMs int) time.Duration {
	return time.Duration(getInt(key, defMs)) * time.Millisecond
}
