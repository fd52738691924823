package registry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shinigamiapp/automirror/pkg/models"
)

const seriesColumns = `
	id, external_id, title, manga_url, source_domain, manga_slug,
	auto_sync_enabled, check_interval_minutes, priority,
	source_chapter_count, source_last_chapter, backend_chapter_count, backend_last_chapter,
	status, sync_progress_total, sync_progress_completed, sync_progress_failed,
	last_scanned_at, last_synced_at, next_scan_at,
	last_error, last_error_at, consecutive_failures,
	created_at, updated_at
`

func scanSeries(rs rowScanner) (models.Series, error) {
	var (
		s                                        models.Series
		autoSync                                 int
		sourceLastChapter, backendLastChapter     sql.NullFloat64
		lastScannedAt, lastSyncedAt, lastErrorAt  sql.NullTime
		lastError                                 sql.NullString
		status                                    string
	)
	if err := rs.Scan(
		&s.ID, &s.ExternalID, &s.Title, &s.MangaURL, &s.SourceDomain, &s.MangaSlug,
		&autoSync, &s.CheckIntervalMinutes, &s.Priority,
		&s.SourceChapterCount, &sourceLastChapter, &s.BackendChapterCount, &backendLastChapter,
		&status, &s.SyncProgressTotal, &s.SyncProgressCompleted, &s.SyncProgressFailed,
		&lastScannedAt, &lastSyncedAt, &s.NextScanAt,
		&lastError, &lastErrorAt, &s.ConsecutiveFailures,
		&s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return s, fmt.Errorf("scan series: %w", err)
	}
	s.AutoSyncEnabled = autoSync != 0
	s.Status = models.SeriesStatus(status)
	if sourceLastChapter.Valid {
		v := sourceLastChapter.Float64
		s.SourceLastChapter = &v
	}
	if backendLastChapter.Valid {
		v := backendLastChapter.Float64
		s.BackendLastChapter = &v
	}
	if lastScannedAt.Valid {
		t := lastScannedAt.Time
		s.LastScannedAt = &t
	}
	if lastSyncedAt.Valid {
		t := lastSyncedAt.Time
		s.LastSyncedAt = &t
	}
	s.LastError = lastError.String
	if lastErrorAt.Valid {
		t := lastErrorAt.Time
		s.LastErrorAt = &t
	}
	return s, nil
}

// Create registers a new series with its sources in one transaction.
// Returns ErrAlreadyRegistered if the external id collides.
func (r *Repo) Create(ctx context.Context, in models.CreateSeriesInput) (models.Series, error) {
	if strings.TrimSpace(in.ExternalID) == "" || strings.TrimSpace(in.Title) == "" {
		return models.Series{}, fmt.Errorf("%w: external_id and title are required", ErrValidation)
	}
	norm, err := normalizeSourceURLs(in.SourceURLs)
	if err != nil {
		return models.Series{}, err
	}

	var exists int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM series WHERE external_id = ?`, in.ExternalID).Scan(&exists); err != nil {
		return models.Series{}, fmt.Errorf("check existing series: %w", err)
	}
	if exists > 0 {
		return models.Series{}, ErrAlreadyRegistered
	}

	checkInterval := in.CheckIntervalMinutes
	if checkInterval <= 0 {
		checkInterval = 360
	}
	autoSync := true
	if in.AutoSyncEnabled != nil {
		autoSync = *in.AutoSyncEnabled
	}

	now := time.Now().UTC()
	domain, slug := splitURL(norm[0])

	s := models.Series{
		ID:                   uuid.NewString(),
		ExternalID:           in.ExternalID,
		Title:                in.Title,
		MangaURL:             norm[0],
		SourceDomain:         domain,
		MangaSlug:            slug,
		AutoSyncEnabled:      autoSync,
		CheckIntervalMinutes: checkInterval,
		Priority:             in.Priority,
		Status:               models.SeriesIdle,
		NextScanAt:           now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Series{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO series (
			id, external_id, title, manga_url, source_domain, manga_slug,
			auto_sync_enabled, check_interval_minutes, priority,
			status, next_scan_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.ExternalID, s.Title, s.MangaURL, s.SourceDomain, s.MangaSlug,
		boolToInt(s.AutoSyncEnabled), s.CheckIntervalMinutes, s.Priority,
		string(s.Status), s.NextScanAt, s.CreatedAt, s.UpdatedAt,
	); err != nil {
		return models.Series{}, fmt.Errorf("insert series: %w", err)
	}

	for i, u := range norm {
		srcDomain, srcSlug := splitURL(u)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sources (id, series_id, url, source_domain, manga_slug, priority, is_enabled, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		`, uuid.NewString(), s.ID, u, srcDomain, srcSlug, i+1, now, now); err != nil {
			return models.Series{}, fmt.Errorf("insert source: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Series{}, fmt.Errorf("commit tx: %w", err)
	}

	out, err := r.Get(ctx, s.ID)
	if err != nil {
		return models.Series{}, err
	}
	return *out, nil
}

// Get returns a series with its sources attached, or ErrNotFound.
func (r *Repo) Get(ctx context.Context, id string) (*models.Series, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+seriesColumns+` FROM series WHERE id = ?`, id)
	s, err := scanSeries(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	srcs, err := r.GetEnabledSources(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	s.Sources = srcs
	return &s, nil
}

// GetByCatalogID looks a series up by its stable external catalog id.
func (r *Repo) GetByCatalogID(ctx context.Context, externalID string) (*models.Series, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+seriesColumns+` FROM series WHERE external_id = ?`, externalID)
	s, err := scanSeries(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r.Get(ctx, s.ID)
}

// List returns a page of series matching the filter.
func (r *Repo) List(ctx context.Context, f models.ListFilter) ([]models.Series, int, error) {
	page := f.Page
	if page < 1 {
		page = 1
	}
	pageSize := f.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if strings.TrimSpace(f.Title) != "" {
		where = append(where, "LOWER(title) LIKE ?")
		args = append(args, "%"+strings.ToLower(strings.TrimSpace(f.Title))+"%")
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM series`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count series: %w", err)
	}

	listArgs := append(append([]any{}, args...), pageSize, (page-1)*pageSize)
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+seriesColumns+` FROM series`+whereSQL+`
		ORDER BY priority DESC, next_scan_at ASC
		LIMIT ? OFFSET ?
	`, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list series: %w", err)
	}
	defer rows.Close()

	out := make([]models.Series, 0, pageSize)
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// Update applies a partial patch to a series and, if SourceURLs is set,
// replaces its source set.
func (r *Repo) Update(ctx context.Context, id string, in models.UpdateSeriesInput) (*models.Series, error) {
	existing, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	title := existing.Title
	if in.Title != nil {
		title = *in.Title
	}
	checkInterval := existing.CheckIntervalMinutes
	if in.CheckIntervalMinutes != nil {
		checkInterval = *in.CheckIntervalMinutes
	}
	priority := existing.Priority
	if in.Priority != nil {
		priority = *in.Priority
	}
	autoSync := existing.AutoSyncEnabled
	if in.AutoSyncEnabled != nil {
		autoSync = *in.AutoSyncEnabled
	}

	if _, err := r.DB.ExecContext(ctx, `
		UPDATE series
		SET title = ?, check_interval_minutes = ?, priority = ?, auto_sync_enabled = ?, updated_at = ?
		WHERE id = ?
	`, title, checkInterval, priority, boolToInt(autoSync), time.Now().UTC(), id); err != nil {
		return nil, fmt.Errorf("update series: %w", err)
	}

	if len(in.SourceURLs) > 0 {
		if _, err := r.ReplaceSources(ctx, id, in.SourceURLs); err != nil {
			return nil, err
		}
	}

	return r.Get(ctx, id)
}

// Delete removes a series; sources and tasks cascade via foreign keys.
func (r *Repo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM series WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete series: %w", err)
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
