package registry

import (
	"context"
	"fmt"
	"time"
)

// RecoverStaleTasks runs exactly once at boot, before the scheduler starts
// any ticker. It resets tasks interrupted mid-pipeline and recomputes the
// status of series interrupted mid-scan or mid-sync, restoring I1-I3.
func (r *Repo) RecoverStaleTasks(ctx context.Context) error {
	now := time.Now().UTC()

	// Tasks caught scraping or uploading when the process died: resume
	// from the step that was interrupted. A stored zip_url means Step B
	// already succeeded, so resume at Step C (scraped); otherwise restart
	// at Step A (pending).
	if _, err := r.DB.ExecContext(ctx, `
		UPDATE sync_tasks
		SET status = 'scraped', updated_at = ?
		WHERE status IN ('scraping', 'uploading') AND zip_url IS NOT NULL
	`, now); err != nil {
		return fmt.Errorf("recover tasks with zip_url: %w", err)
	}
	if _, err := r.DB.ExecContext(ctx, `
		UPDATE sync_tasks
		SET status = 'pending', updated_at = ?
		WHERE status IN ('scraping', 'uploading') AND zip_url IS NULL
	`, now); err != nil {
		return fmt.Errorf("recover tasks without zip_url: %w", err)
	}

	// Series caught `scanning` at boot: the scan died before
	// RecordScanResult, and the scanner only creates tasks after that call,
	// so the interrupted scan left no tasks behind. Reset to idle — the next
	// due scan will retry.
	if _, err := r.DB.ExecContext(ctx, `
		UPDATE series SET status = 'idle', updated_at = ? WHERE status = 'scanning'
	`, now); err != nil {
		return fmt.Errorf("recover scanning series: %w", err)
	}

	// Series caught `syncing`: recompute from their tasks.
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM series WHERE status = 'syncing'`)
	if err != nil {
		return fmt.Errorf("query syncing series: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan syncing series id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		var activeCount, failedCount int
		if err := r.DB.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM sync_tasks WHERE series_id = ? AND status IN ('pending', 'scraping', 'scraped', 'uploading')
		`, id).Scan(&activeCount); err != nil {
			return fmt.Errorf("count active tasks: %w", err)
		}
		if activeCount > 0 {
			continue // still syncing, leave as-is
		}
		if err := r.DB.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM sync_tasks WHERE series_id = ? AND status = 'failed'
		`, id).Scan(&failedCount); err != nil {
			return fmt.Errorf("count failed tasks: %w", err)
		}
		status := "idle"
		if failedCount > 0 {
			status = "error"
		}
		if _, err := r.DB.ExecContext(ctx, `
			UPDATE series SET status = ?, last_synced_at = COALESCE(last_synced_at, ?), updated_at = ? WHERE id = ?
		`, status, now, now, id); err != nil {
			return fmt.Errorf("recompute syncing series status: %w", err)
		}
		if err := r.RefreshSyncProgress(ctx, id); err != nil {
			return err
		}
	}

	return nil
}
