package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/shinigamiapp/automirror/pkg/models"
)

// GetDue returns auto-sync-enabled, idle series whose next_scan_at has
// elapsed, highest priority first.
func (r *Repo) GetDue(ctx context.Context) ([]models.Series, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+seriesColumns+` FROM series
		WHERE auto_sync_enabled = 1 AND status = 'idle' AND next_scan_at <= ?
		ORDER BY priority DESC, next_scan_at ASC
	`, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("query due series: %w", err)
	}
	defer rows.Close()

	var out []models.Series
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetWithActiveTasks returns syncing series that still have at least one
// task in a non-terminal state.
func (r *Repo) GetWithActiveTasks(ctx context.Context) ([]models.Series, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+seriesColumns+` FROM series
		WHERE status = 'syncing' AND EXISTS (
			SELECT 1 FROM sync_tasks t
			WHERE t.series_id = series.id AND t.status IN ('pending', 'scraping', 'scraped', 'uploading')
		)
		ORDER BY priority DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query series with active tasks: %w", err)
	}
	defer rows.Close()

	var out []models.Series
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ResolveCompletedSyncingSeries sweeps series stuck in `syncing` whose
// tasks have all reached terminal states, flipping them to `error` (if any
// failed) or `idle` otherwise. Run at the top of every processor tick so a
// series whose last task finished on a previous tick is not left stranded.
func (r *Repo) ResolveCompletedSyncingSeries(ctx context.Context) (int, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id FROM series
		WHERE status = 'syncing' AND NOT EXISTS (
			SELECT 1 FROM sync_tasks t
			WHERE t.series_id = series.id AND t.status IN ('pending', 'scraping', 'scraped', 'uploading')
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("query stuck syncing series: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan stuck series id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	resolved := 0
	for _, id := range ids {
		var failedCount int
		if err := r.DB.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM sync_tasks WHERE series_id = ? AND status = 'failed'
		`, id).Scan(&failedCount); err != nil {
			return resolved, fmt.Errorf("count failed tasks: %w", err)
		}
		now := time.Now().UTC()
		if failedCount > 0 {
			if _, err := r.DB.ExecContext(ctx, `
				UPDATE series SET status = 'error', last_error = 'Some chapters failed to sync', last_error_at = ?, updated_at = ? WHERE id = ?
			`, now, now, id); err != nil {
				return resolved, fmt.Errorf("mark series error: %w", err)
			}
		} else {
			if _, err := r.DB.ExecContext(ctx, `
				UPDATE series SET status = 'idle', last_synced_at = ?, updated_at = ? WHERE id = ?
			`, now, now, id); err != nil {
				return resolved, fmt.Errorf("mark series idle: %w", err)
			}
		}
		if err := r.RefreshSyncProgress(ctx, id); err != nil {
			return resolved, err
		}
		resolved++
	}
	return resolved, nil
}
