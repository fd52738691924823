package registry

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// DomainMatch is one source row that would be rewritten by a domain
// migration, used both for the dry-run preview and as the work list for
// the live application.
type DomainMatch struct {
	SeriesID         string `json:"series_id"`
	SeriesExternalID string `json:"series_external_id"`
	SourceID         string `json:"source_id"`
	OldURL           string `json:"old_url"`
	NewURL           string `json:"new_url"`
}

// rewriteHost replaces only the hostname of raw, preserving scheme, port,
// path, query, and fragment.
func rewriteHost(raw, newDomain string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse source url: %w", err)
	}
	if port := u.Port(); port != "" {
		u.Host = newDomain + ":" + port
	} else {
		u.Host = newDomain
	}
	return u.String(), nil
}

// FindDomainMatches locates every source (enabled or not) whose domain
// equals oldDomain, optionally restricted to seriesIDs. Each match carries
// its current URL in OldURL; NewURL is left empty, since the target domain
// is not an input here.
func (r *Repo) FindDomainMatches(ctx context.Context, oldDomain string, seriesIDs []string) ([]DomainMatch, string, error) {
	query := `
		SELECT s.id, s.series_id, se.external_id, s.url
		FROM sources s
		JOIN series se ON se.id = s.series_id
		WHERE s.source_domain = ?
	`
	args := []any{oldDomain}
	if len(seriesIDs) > 0 {
		placeholders := ""
		for i, id := range seriesIDs {
			if i > 0 {
				placeholders += ","
			}
			placeholders += "?"
			args = append(args, id)
		}
		query += " AND s.series_id IN (" + placeholders + ")"
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("query domain matches: %w", err)
	}
	defer rows.Close()

	var out []DomainMatch
	for rows.Next() {
		var m DomainMatch
		var oldURL string
		if err := rows.Scan(&m.SourceID, &m.SeriesID, &m.SeriesExternalID, &oldURL); err != nil {
			return nil, "", fmt.Errorf("scan domain match: %w", err)
		}
		m.OldURL = oldURL
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	return out, "", nil
}

// ApplyDomainMigration rewrites the hostname of every matching source in one
// transaction, then re-denormalizes the series fields for any series whose
// priority-1 source was among them. Returns the number of sources updated.
func (r *Repo) ApplyDomainMigration(ctx context.Context, oldDomain, newDomain string, seriesIDs []string) (int, error) {
	matches, _, err := r.FindDomainMatches(ctx, oldDomain, seriesIDs)
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, nil
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	touchedSeries := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		newURL, err := rewriteHost(m.OldURL, newDomain)
		if err != nil {
			return 0, err
		}
		domain, slug := splitURL(newURL)
		if _, err := tx.ExecContext(ctx, `
			UPDATE sources SET url = ?, source_domain = ?, manga_slug = ?, updated_at = ? WHERE id = ?
		`, newURL, domain, slug, now, m.SourceID); err != nil {
			return 0, fmt.Errorf("rewrite source url: %w", err)
		}
		touchedSeries[m.SeriesID] = struct{}{}
	}

	for seriesID := range touchedSeries {
		var primaryURL string
		err := tx.QueryRowContext(ctx, `
			SELECT url FROM sources WHERE series_id = ? AND priority = 1
		`, seriesID).Scan(&primaryURL)
		if err != nil {
			continue // no priority-1 source row could be read for this series
		}
		domain, slug := splitURL(primaryURL)
		if _, err := tx.ExecContext(ctx, `
			UPDATE series SET manga_url = ?, source_domain = ?, manga_slug = ?, updated_at = ? WHERE id = ?
		`, primaryURL, domain, slug, now, seriesID); err != nil {
			return 0, fmt.Errorf("denormalize primary source after migration: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return len(matches), nil
}
