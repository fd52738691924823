package models

import "time"

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskScraping  TaskStatus = "scraping"
	TaskScraped   TaskStatus = "scraped"
	TaskUploading TaskStatus = "uploading"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// ActiveTaskStatuses are the non-terminal states a task passes through on
// its way from discovery to the catalog.
var ActiveTaskStatuses = []TaskStatus{TaskPending, TaskScraping, TaskScraped, TaskUploading}

func IsActiveTaskStatus(s TaskStatus) bool {
	for _, a := range ActiveTaskStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// SyncTask is the durable intent to move one chapter from a source into the
// backend catalog. Unique per (SeriesID, ChapterNumber).
type SyncTask struct {
	ID            string     `json:"id"`
	SeriesID      string     `json:"series_id"`
	SourceID      string     `json:"source_id,omitempty"`
	ChapterURL    string     `json:"chapter_url"`
	ChapterNumber float64    `json:"chapter_number"`
	Weight        int        `json:"weight"`
	Status        TaskStatus `json:"status"`
	ZipURL        string     `json:"zip_url,omitempty"`
	Error         string     `json:"error,omitempty"`
	RetryCount    int        `json:"retry_count"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewTaskInput is what the scanner supplies when creating tasks for missing
// chapters.
type NewTaskInput struct {
	SourceID      string
	ChapterURL    string
	ChapterNumber float64
	Weight        int
}
