package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/shinigamiapp/automirror/pkg/models"
)

// SetStatus sets a series' aggregate status. A non-empty errMsg records the
// failure and bumps consecutive_failures (I7); an empty one leaves the
// failure counter untouched.
func (r *Repo) SetStatus(ctx context.Context, id string, status models.SeriesStatus, errMsg string) error {
	now := time.Now().UTC()
	if errMsg != "" {
		_, err := r.DB.ExecContext(ctx, `
			UPDATE series
			SET status = ?, last_error = ?, last_error_at = ?, consecutive_failures = consecutive_failures + 1, updated_at = ?
			WHERE id = ?
		`, string(status), errMsg, now, now, id)
		if err != nil {
			return fmt.Errorf("set status (error): %w", err)
		}
		return nil
	}
	_, err := r.DB.ExecContext(ctx, `UPDATE series SET status = ?, updated_at = ? WHERE id = ?`, string(status), now, id)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

// ScanOutcome is the result RecordScanResult persists for a completed scan.
type ScanOutcome struct {
	SourceChapterCount int
	SourceLastChapter  *float64
	NextScanAt         time.Time
}

// RecordScanResult writes the scan outcome and conditionally transitions
// scanning -> idle. It never clobbers a concurrent transition to syncing
// (the scanner itself moves a series to syncing after this call when tasks
// were created), satisfying the "never clobbers syncing" requirement by
// scoping the status write to rows still in `scanning`.
func (r *Repo) RecordScanResult(ctx context.Context, id string, out ScanOutcome) error {
	now := time.Now().UTC()
	_, err := r.DB.ExecContext(ctx, `
		UPDATE series
		SET source_chapter_count = ?,
		    source_last_chapter = ?,
		    last_scanned_at = ?,
		    next_scan_at = ?,
		    last_error = '',
		    last_error_at = NULL,
		    consecutive_failures = 0,
		    status = CASE WHEN status = 'scanning' THEN 'idle' ELSE status END,
		    updated_at = ?
		WHERE id = ?
	`, out.SourceChapterCount, out.SourceLastChapter, now, out.NextScanAt, now, id)
	if err != nil {
		return fmt.Errorf("record scan result: %w", err)
	}
	return nil
}

func (r *Repo) UpdateBackendChapterStats(ctx context.Context, id string, count int, last *float64) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE series SET backend_chapter_count = ?, backend_last_chapter = ?, updated_at = ? WHERE id = ?
	`, count, last, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update backend chapter stats: %w", err)
	}
	return nil
}

// IncrementBackendChapterStats bumps the backend counters after a single
// chapter is registered in the catalog (Step D of the pipeline).
func (r *Repo) IncrementBackendChapterStats(ctx context.Context, id string, chapterNumber float64) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE series
		SET backend_chapter_count = backend_chapter_count + 1,
		    backend_last_chapter = CASE
		        WHEN backend_last_chapter IS NULL OR ? > backend_last_chapter THEN ?
		        ELSE backend_last_chapter
		    END,
		    updated_at = ?
		WHERE id = ?
	`, chapterNumber, chapterNumber, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("increment backend chapter stats: %w", err)
	}
	return nil
}

func (r *Repo) IncrementSyncProgressTotal(ctx context.Context, id string, delta int) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE series SET sync_progress_total = sync_progress_total + ?, updated_at = ? WHERE id = ?
	`, delta, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("increment sync progress total: %w", err)
	}
	return nil
}

// RefreshSyncProgress recomputes completed/failed counters from the tasks
// table, satisfying P1 regardless of how many callers raced on increments.
func (r *Repo) RefreshSyncProgress(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE series
		SET sync_progress_completed = (
		        SELECT COUNT(*) FROM sync_tasks WHERE series_id = ? AND status IN ('completed', 'skipped')
		    ),
		    sync_progress_failed = (
		        SELECT COUNT(*) FROM sync_tasks WHERE series_id = ? AND status = 'failed'
		    ),
		    updated_at = ?
		WHERE id = ?
	`, id, id, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("refresh sync progress: %w", err)
	}
	return nil
}

func (r *Repo) SetLastSyncedAt(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := r.DB.ExecContext(ctx, `UPDATE series SET last_synced_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
	if err != nil {
		return fmt.Errorf("set last synced at: %w", err)
	}
	return nil
}

// TriggerForceScan schedules an immediate scan. If the series is not
// actively syncing it is also reset to idle so the next scanner tick picks
// it up even if it was previously stuck in `error`. A series already
// `syncing` is left alone — ForceScan is a no-op on an active sync (§7
// AlreadyBusy).
func (r *Repo) TriggerForceScan(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE series
		SET next_scan_at = ?,
		    status = CASE WHEN status != 'syncing' THEN 'idle' ELSE status END,
		    updated_at = ?
		WHERE id = ?
	`, now, now, id)
	if err != nil {
		return fmt.Errorf("trigger force scan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
