package registry

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shinigamiapp/automirror/pkg/models"
)

// splitURL derives the (domain, slug) pair the store denormalizes for every
// source: domain is the hostname, slug is the last non-empty path segment.
func splitURL(raw string) (domain, slug string) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", ""
	}
	domain = u.Hostname()
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i] != "" {
			slug = segs[i]
			break
		}
	}
	return domain, slug
}

// normalizeSourceURLs trims, dedupes (case-sensitive on the full URL), and
// enforces the 1-3 count invariant, preserving input order.
func normalizeSourceURLs(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		if _, err := url.ParseRequestURI(r); err != nil {
			return nil, fmt.Errorf("%w: invalid source url %q", ErrValidation, r)
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: at least one source url is required", ErrValidation)
	}
	if len(out) > 3 {
		return nil, fmt.Errorf("%w: at most 3 source urls are allowed", ErrValidation)
	}
	return out, nil
}

// ReplaceSources atomically replaces the full source set for a series,
// reassigning 1-based priorities in input order.
func (r *Repo) ReplaceSources(ctx context.Context, seriesID string, urls []string) ([]models.Source, error) {
	norm, err := normalizeSourceURLs(urls)
	if err != nil {
		return nil, err
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE series_id = ?`, seriesID); err != nil {
		return nil, fmt.Errorf("clear sources: %w", err)
	}

	now := time.Now().UTC()
	out := make([]models.Source, 0, len(norm))
	for i, u := range norm {
		domain, slug := splitURL(u)
		src := models.Source{
			ID:           uuid.NewString(),
			SeriesID:     seriesID,
			URL:          u,
			SourceDomain: domain,
			MangaSlug:    slug,
			Priority:     i + 1,
			IsEnabled:    true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sources (id, series_id, url, source_domain, manga_slug, priority, is_enabled, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, src.ID, src.SeriesID, src.URL, src.SourceDomain, src.MangaSlug, src.Priority, boolToInt(src.IsEnabled), src.CreatedAt, src.UpdatedAt); err != nil {
			return nil, fmt.Errorf("insert source: %w", err)
		}
		out = append(out, src)
	}

	primary := out[0]
	if _, err := tx.ExecContext(ctx, `
		UPDATE series SET manga_url = ?, source_domain = ?, manga_slug = ?, updated_at = ?
		WHERE id = ?
	`, primary.URL, primary.SourceDomain, primary.MangaSlug, now, seriesID); err != nil {
		return nil, fmt.Errorf("denormalize primary source: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return out, nil
}

// GetEnabledSources returns a series' enabled sources ordered by priority.
func (r *Repo) GetEnabledSources(ctx context.Context, seriesID string) ([]models.Source, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, series_id, url, source_domain, manga_slug, priority, is_enabled,
		       last_chapter_count, last_chapter_number, last_scan_status, last_scan_error, last_scan_at,
		       created_at, updated_at
		FROM sources
		WHERE series_id = ? AND is_enabled = 1
		ORDER BY priority ASC
	`, seriesID)
	if err != nil {
		return nil, fmt.Errorf("query enabled sources: %w", err)
	}
	defer rows.Close()

	var out []models.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repo) getSourcesForSeries(ctx context.Context, tx *sql.Tx, seriesID string) ([]models.Source, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, series_id, url, source_domain, manga_slug, priority, is_enabled,
		       last_chapter_count, last_chapter_number, last_scan_status, last_scan_error, last_scan_at,
		       created_at, updated_at
		FROM sources
		WHERE series_id = ?
		ORDER BY priority ASC
	`, seriesID)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var out []models.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(rs rowScanner) (models.Source, error) {
	var (
		s                                      models.Source
		lastChapterNumber                      sql.NullFloat64
		lastScanStatus, lastScanError          sql.NullString
		lastScanAt                             sql.NullTime
		isEnabled                              int
	)
	if err := rs.Scan(
		&s.ID, &s.SeriesID, &s.URL, &s.SourceDomain, &s.MangaSlug, &s.Priority, &isEnabled,
		&s.LastChapterCount, &lastChapterNumber, &lastScanStatus, &lastScanError, &lastScanAt,
		&s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return s, fmt.Errorf("scan source: %w", err)
	}
	s.IsEnabled = isEnabled != 0
	if lastChapterNumber.Valid {
		v := lastChapterNumber.Float64
		s.LastChapterNumber = &v
	}
	if lastScanStatus.Valid {
		s.LastScanStatus = models.ScanStatus(lastScanStatus.String)
	}
	s.LastScanError = lastScanError.String
	if lastScanAt.Valid {
		t := lastScanAt.Time
		s.LastScanAt = &t
	}
	return s, nil
}

// RecordSourceScan persists one source's scan outcome, independent of the
// series-level RecordScanResult call.
func (r *Repo) RecordSourceScan(ctx context.Context, sourceID string, status models.ScanStatus, chapterCount int, lastChapter *float64, scanErr string) error {
	now := time.Now().UTC()
	_, err := r.DB.ExecContext(ctx, `
		UPDATE sources
		SET last_scan_status = ?, last_chapter_count = ?, last_chapter_number = ?, last_scan_error = ?, last_scan_at = ?, updated_at = ?
		WHERE id = ?
	`, string(status), chapterCount, lastChapter, nullableString(scanErr), now, now, sourceID)
	if err != nil {
		return fmt.Errorf("record source scan: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
