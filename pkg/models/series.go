package models

import "time"

type SeriesStatus string

const (
	SeriesIdle     SeriesStatus = "idle"
	SeriesScanning SeriesStatus = "scanning"
	SeriesSyncing  SeriesStatus = "syncing"
	SeriesError    SeriesStatus = "error"
)

// Series is one work the catalog mirrors: its policy, its derived counters,
// and the sync state machine that drives it.
type Series struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`

	// Denormalized from the priority-1 source; see Source.
	MangaURL     string `json:"manga_url"`
	SourceDomain string `json:"source_domain"`
	MangaSlug    string `json:"manga_slug"`

	AutoSyncEnabled       bool `json:"auto_sync_enabled"`
	CheckIntervalMinutes  int  `json:"check_interval_minutes"`
	Priority              int  `json:"priority"`

	SourceChapterCount int      `json:"source_chapter_count"`
	SourceLastChapter  *float64 `json:"source_last_chapter,omitempty"`
	BackendChapterCount int     `json:"backend_chapter_count"`
	BackendLastChapter *float64 `json:"backend_last_chapter,omitempty"`

	Status                 SeriesStatus `json:"status"`
	SyncProgressTotal      int          `json:"sync_progress_total"`
	SyncProgressCompleted  int          `json:"sync_progress_completed"`
	SyncProgressFailed     int          `json:"sync_progress_failed"`

	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`
	LastSyncedAt  *time.Time `json:"last_synced_at,omitempty"`
	NextScanAt    time.Time  `json:"next_scan_at"`

	LastError           string     `json:"last_error,omitempty"`
	LastErrorAt         *time.Time `json:"last_error_at,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Sources []Source `json:"sources,omitempty"`
}

// CreateSeriesInput is the payload accepted by the registry and the admin
// API to register (or bulk-register) a series.
type CreateSeriesInput struct {
	ExternalID           string   `json:"external_id"`
	Title                string   `json:"title"`
	SourceURLs           []string `json:"source_urls"`
	CheckIntervalMinutes int      `json:"check_interval_minutes"`
	Priority             int      `json:"priority"`
	AutoSyncEnabled      *bool    `json:"auto_sync_enabled"`
}

// UpdateSeriesInput is a partial patch; nil fields are left untouched.
type UpdateSeriesInput struct {
	Title                *string  `json:"title"`
	SourceURLs           []string `json:"source_urls"`
	CheckIntervalMinutes *int     `json:"check_interval_minutes"`
	Priority             *int     `json:"priority"`
	AutoSyncEnabled      *bool    `json:"auto_sync_enabled"`
}

type ListFilter struct {
	Status   SeriesStatus
	Title    string
	Page     int
	PageSize int
}
