package models

import "time"

type ScanStatus string

const (
	ScanSuccess ScanStatus = "success"
	ScanEmpty   ScanStatus = "empty"
	ScanTimeout ScanStatus = "timeout"
	ScanError   ScanStatus = "error"
)

// Source is one upstream site a Series is discovered on. 1-3 per series,
// ranked by Priority (1 is primary).
type Source struct {
	ID           string `json:"id"`
	SeriesID     string `json:"series_id"`
	URL          string `json:"url"`
	SourceDomain string `json:"source_domain"`
	MangaSlug    string `json:"manga_slug"`
	Priority     int    `json:"priority"`
	IsEnabled    bool   `json:"is_enabled"`

	LastChapterCount  int        `json:"last_chapter_count"`
	LastChapterNumber *float64   `json:"last_chapter_number,omitempty"`
	LastScanStatus    ScanStatus `json:"last_scan_status,omitempty"`
	LastScanError     string     `json:"last_scan_error,omitempty"`
	LastScanAt        *time.Time `json:"last_scan_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SourceScanResult carries the outcome of scanning a single Source, before
// it is written back to the registry.
type SourceScanResult struct {
	Source   Source
	Chapters []DiscoveredChapter
	Status   ScanStatus
	Err      error
}

// DiscoveredChapter is a chapter listing as returned by a scraper source,
// before its canonical ChapterNumber has necessarily been resolved.
type DiscoveredChapter struct {
	Title         string
	URL           string
	ChapterNumber float64
	Weight        *int
}
