package models

import "time"

const EventVersion = 1

const (
	EventSeriesCreated  = "manga.created"
	EventSeriesUpdated  = "manga.updated"
	EventSeriesDeleted  = "manga.deleted"
	EventScanStarted    = "manga.scan.started"
	EventScanFinished   = "manga.scan.finished"
	EventSyncProgress   = "manga.sync.progress"
)

// Event is the envelope published to the global and per-series channels.
type Event struct {
	Type             string    `json:"type"`
	SeriesExternalID string    `json:"series_external_id"`
	Data             any       `json:"data,omitempty"`
	EventVersion     int       `json:"event_version"`
	Timestamp        time.Time `json:"timestamp"`
}
