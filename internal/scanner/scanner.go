// Package scanner is the C2 component: it discovers due series, compares
// their authoritative source against the backend catalog, and emits sync
// tasks for whatever is missing.
package scanner

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shinigamiapp/automirror/internal/registry"
	scraperclient "github.com/shinigamiapp/automirror/internal/clients/scraper"
	"github.com/shinigamiapp/automirror/pkg/models"
)

type ScraperClient interface {
	ListChaptersForSource(ctx context.Context, sourceURL string) ([]scraperclient.Chapter, error)
}

type CatalogClient interface {
	ListChapterNumbers(ctx context.Context, seriesExternalID string) (map[float64]struct{}, error)
}

type EventPublisher interface {
	Publish(eventType, seriesExternalID string, data any)
}

type Scanner struct {
	Repo    *registry.Repo
	Scraper ScraperClient
	Catalog CatalogClient
	Events  EventPublisher

	// Parallelism bounds how many series are scanned concurrently.
	Parallelism int
}

func New(repo *registry.Repo, scraper ScraperClient, cat CatalogClient, pub EventPublisher, parallelism int) *Scanner {
	if parallelism <= 0 {
		parallelism = 5
	}
	return &Scanner{Repo: repo, Scraper: scraper, Catalog: cat, Events: pub, Parallelism: parallelism}
}

// Tick scans every due series, up to Parallelism concurrently. A single
// series' failure never aborts the others.
func (s *Scanner) Tick(ctx context.Context) error {
	due, err := s.Repo.GetDue(ctx)
	if err != nil {
		return fmt.Errorf("scanner tick: load due series: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Parallelism)

	for _, series := range due {
		series := series
		g.Go(func() error {
			if err := s.Scan(gctx, series); err != nil {
				log.Printf("[scanner] scan failed for %s: %v", series.ExternalID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

type sourceOutcome struct {
	source   models.Source
	chapters []scraperclient.Chapter
	status   models.ScanStatus
	err      error
}

// Scan runs the full discovery algorithm for one series.
func (s *Scanner) Scan(ctx context.Context, series models.Series) error {
	if err := s.Repo.SetStatus(ctx, series.ID, models.SeriesScanning, ""); err != nil {
		return err
	}
	s.Events.Publish(models.EventScanStarted, series.ExternalID, nil)

	sources, err := s.Repo.GetEnabledSources(ctx, series.ID)
	if err != nil {
		return s.fail(ctx, series, fmt.Errorf("load sources: %w", err))
	}
	if len(sources) == 0 {
		return s.fail(ctx, series, fmt.Errorf("no sources"))
	}

	outcomes := s.fetchAllSources(ctx, sources)

	best, ok := pickAuthoritative(outcomes)
	if !ok {
		return s.fail(ctx, series, fmt.Errorf("all sources failed"))
	}

	backendChapters, err := s.Catalog.ListChapterNumbers(ctx, series.ExternalID)
	if err != nil {
		return s.fail(ctx, series, fmt.Errorf("list backend chapters: %w", err))
	}

	var backendLast *float64
	for n := range backendChapters {
		if backendLast == nil || n > *backendLast {
			v := n
			backendLast = &v
		}
	}
	if err := s.Repo.UpdateBackendChapterStats(ctx, series.ID, len(backendChapters), backendLast); err != nil {
		return s.fail(ctx, series, err)
	}

	missing := computeMissing(best.chapters, backendChapters)

	var sourceLast *float64
	if len(best.chapters) > 0 {
		max := 0.0
		for _, ch := range best.chapters {
			if n, ok := ResolveChapterNumber(ch.Title, ch.URL, ch.Weight); ok && n > max {
				max = n
			}
		}
		sourceLast = &max
	}

	next := time.Now().UTC().Add(time.Duration(series.CheckIntervalMinutes) * time.Minute)
	if err := s.Repo.RecordScanResult(ctx, series.ID, registry.ScanOutcome{
		SourceChapterCount: len(best.chapters),
		SourceLastChapter:  sourceLast,
		NextScanAt:         next,
	}); err != nil {
		return err
	}

	if len(missing) == 0 {
		s.Events.Publish(models.EventScanFinished, series.ExternalID, map[string]any{"status": "idle", "missing": 0})
		return nil
	}

	inputs := make([]models.NewTaskInput, 0, len(missing))
	for i, ch := range missing {
		num, _ := ResolveChapterNumber(ch.Title, ch.URL, ch.Weight)
		inputs = append(inputs, models.NewTaskInput{
			SourceID:      best.source.ID,
			ChapterURL:    ch.URL,
			ChapterNumber: num,
			Weight:        i,
		})
	}
	if _, err := s.Repo.CreateTasks(ctx, series.ID, inputs); err != nil {
		return err
	}
	if err := s.Repo.IncrementSyncProgressTotal(ctx, series.ID, len(inputs)); err != nil {
		return err
	}
	if err := s.Repo.SetStatus(ctx, series.ID, models.SeriesSyncing, ""); err != nil {
		return err
	}

	s.Events.Publish(models.EventScanFinished, series.ExternalID, map[string]any{"status": "syncing", "missing": len(missing)})
	return nil
}

func (s *Scanner) fetchAllSources(ctx context.Context, sources []models.Source) []sourceOutcome {
	outcomes := make([]sourceOutcome, len(sources))
	g, gctx := errgroup.WithContext(ctx)

	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			chapters, err := s.Scraper.ListChaptersForSource(gctx, src.URL)
			status := models.ScanSuccess
			switch {
			case err != nil:
				status = models.ScanError
			case len(chapters) == 0:
				status = models.ScanEmpty
			}
			outcomes[i] = sourceOutcome{source: src, chapters: chapters, status: status, err: err}

			errMsg := ""
			if err != nil {
				errMsg = err.Error()
			}
			return s.recordOutcome(gctx, outcomes[i], errMsg)
		})
	}
	_ = g.Wait() // per-source errors are captured in outcomes, never abort the group
	return outcomes
}

func (s *Scanner) recordOutcome(ctx context.Context, o sourceOutcome, errMsg string) error {
	var last *float64
	for _, ch := range o.chapters {
		if n, ok := ResolveChapterNumber(ch.Title, ch.URL, ch.Weight); ok {
			if last == nil || n > *last {
				v := n
				last = &v
			}
		}
	}
	return s.Repo.RecordSourceScan(ctx, o.source.ID, o.status, len(o.chapters), last, errMsg)
}

// pickAuthoritative selects the successful source with the highest chapter
// count, ties broken by input order.
func pickAuthoritative(outcomes []sourceOutcome) (sourceOutcome, bool) {
	var best sourceOutcome
	found := false
	for _, o := range outcomes {
		if o.status != models.ScanSuccess {
			continue
		}
		if !found || len(o.chapters) > len(best.chapters) {
			best = o
			found = true
		}
	}
	return best, found
}

// computeMissing returns the chapters present on the source but absent
// from the backend's chapter-number set.
func computeMissing(source []scraperclient.Chapter, backend map[float64]struct{}) []scraperclient.Chapter {
	var missing []scraperclient.Chapter
	for _, ch := range source {
		n, ok := ResolveChapterNumber(ch.Title, ch.URL, ch.Weight)
		if !ok {
			continue
		}
		if _, have := backend[n]; !have {
			missing = append(missing, ch)
		}
	}
	return missing
}

func (s *Scanner) fail(ctx context.Context, series models.Series, cause error) error {
	_ = s.Repo.SetStatus(ctx, series.ID, models.SeriesError, cause.Error())
	s.Events.Publish(models.EventScanFinished, series.ExternalID, map[string]any{"error": cause.Error()})
	return cause
}
