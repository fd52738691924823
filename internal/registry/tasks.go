package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shinigamiapp/automirror/pkg/models"
)

const taskColumns = `
	id, series_id, source_id, chapter_url, chapter_number, weight, status, zip_url, error, retry_count, created_at, updated_at
`

func scanTask(rs rowScanner) (models.SyncTask, error) {
	var (
		t        models.SyncTask
		sourceID sql.NullString
		zipURL   sql.NullString
		errMsg   sql.NullString
	)
	if err := rs.Scan(
		&t.ID, &t.SeriesID, &sourceID, &t.ChapterURL, &t.ChapterNumber, &t.Weight, &t.Status,
		&zipURL, &errMsg, &t.RetryCount, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return t, fmt.Errorf("scan task: %w", err)
	}
	t.SourceID = sourceID.String
	t.ZipURL = zipURL.String
	t.Error = errMsg.String
	return t, nil
}

// CreateTasks bulk-inserts new sync tasks inside one transaction. A task
// that already exists for (series, chapter_number) is left untouched apart
// from bumping updated_at — it is never duplicated (I5) and never regresses
// a task that has already made progress.
func (r *Repo) CreateTasks(ctx context.Context, seriesID string, inputs []models.NewTaskInput) (int, error) {
	if len(inputs) == 0 {
		return 0, nil
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	created := 0
	for _, in := range inputs {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO sync_tasks (id, series_id, source_id, chapter_url, chapter_number, weight, status, retry_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 'pending', 0, ?, ?)
			ON CONFLICT(series_id, chapter_number) DO UPDATE SET updated_at = excluded.updated_at
		`, uuid.NewString(), seriesID, nullableString(in.SourceID), in.ChapterURL, in.ChapterNumber, in.Weight, now, now)
		if err != nil {
			return 0, fmt.Errorf("upsert task: %w", err)
		}
		n, _ := res.RowsAffected()
		if n > 0 {
			// sqlite reports 1 row affected both for the insert and the
			// conflict update; distinguish by checking existence pre-insert
			// would add a round trip per row, so count optimistically and
			// let callers rely on IncrementSyncProgressTotal with the
			// pre-insert count instead when exactness matters.
			created++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return created, nil
}

// GetPending returns up to limit pending tasks for a series, FIFO by weight.
func (r *Repo) GetPending(ctx context.Context, seriesID string, limit int) ([]models.SyncTask, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM sync_tasks
		WHERE series_id = ? AND status = 'pending'
		ORDER BY weight ASC
		LIMIT ?
	`, seriesID, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending tasks: %w", err)
	}
	defer rows.Close()

	var out []models.SyncTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetAllForSeries returns every task for a series ordered by weight.
func (r *Repo) GetAllForSeries(ctx context.Context, seriesID string) ([]models.SyncTask, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM sync_tasks WHERE series_id = ? ORDER BY weight ASC
	`, seriesID)
	if err != nil {
		return nil, fmt.Errorf("query series tasks: %w", err)
	}
	defer rows.Close()

	var out []models.SyncTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repo) GetFailed(ctx context.Context, seriesID string) ([]models.SyncTask, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM sync_tasks WHERE series_id = ? AND status = 'failed' ORDER BY weight ASC
	`, seriesID)
	if err != nil {
		return nil, fmt.Errorf("query failed tasks: %w", err)
	}
	defer rows.Close()

	var out []models.SyncTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TaskStatusUpdate is the optional payload accompanying a status change.
// ZipURL uses a pointer so that nil means "leave the stored value alone" —
// required so a retried task keeps the zip_url from a previous attempt
// (P6 resume correctness).
type TaskStatusUpdate struct {
	ZipURL *string
	Error  string
}

func (r *Repo) SetTaskStatus(ctx context.Context, taskID string, status models.TaskStatus, upd TaskStatusUpdate) error {
	now := time.Now().UTC()

	if status == models.TaskFailed {
		_, err := r.DB.ExecContext(ctx, `
			UPDATE sync_tasks
			SET status = ?, error = ?, retry_count = retry_count + 1,
			    zip_url = COALESCE(?, zip_url), updated_at = ?
			WHERE id = ?
		`, string(status), upd.Error, upd.ZipURL, now, taskID)
		if err != nil {
			return fmt.Errorf("set task status (failed): %w", err)
		}
		return nil
	}

	_, err := r.DB.ExecContext(ctx, `
		UPDATE sync_tasks
		SET status = ?, error = '', zip_url = COALESCE(?, zip_url), updated_at = ?
		WHERE id = ?
	`, string(status), upd.ZipURL, now, taskID)
	if err != nil {
		return fmt.Errorf("set task status: %w", err)
	}
	return nil
}

// RetryFailed flips every failed task for a series back to pending and, if
// any row was touched, moves the series back into syncing. Returns
// ErrNoFailedTasks if nothing was eligible.
func (r *Repo) RetryFailed(ctx context.Context, seriesID string) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE sync_tasks SET status = 'pending', error = '', updated_at = ?
		WHERE series_id = ? AND status = 'failed'
	`, now, seriesID)
	if err != nil {
		return 0, fmt.Errorf("retry failed tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return 0, ErrNoFailedTasks
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE series SET status = 'syncing', updated_at = ? WHERE id = ?
	`, now, seriesID); err != nil {
		return 0, fmt.Errorf("mark series syncing: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return int(n), nil
}
