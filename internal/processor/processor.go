// Package processor is the C3 component: it drains a series' pending sync
// tasks through the four-step pipeline (enumerate images, stage, persist,
// register) until the series has no more active work for this tick.
package processor

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/shinigamiapp/automirror/internal/clients/catalog"
	"github.com/shinigamiapp/automirror/internal/clients/scraper"
	"github.com/shinigamiapp/automirror/internal/clients/stager"
	"github.com/shinigamiapp/automirror/internal/clients/uploader"
	"github.com/shinigamiapp/automirror/internal/registry"
	"github.com/shinigamiapp/automirror/pkg/models"
)

type ScraperClient interface {
	GetChapterImages(ctx context.Context, chapterURL string) ([]scraper.Image, error)
}

type StagerClient interface {
	Stage(ctx context.Context, images []scraper.Image, seriesExternalID, seriesTitle, chapterURL, chapterNumber string) (stager.StageResult, error)
}

type UploaderClient interface {
	UploadSingle(ctx context.Context, seriesExternalID string, chapterNumber float64, zipURL string) (uploader.Result, error)
}

type CatalogClient interface {
	CreateChapters(ctx context.Context, seriesExternalID string, chapters []catalog.CreateChapterInput) error
}

type EventPublisher interface {
	Publish(eventType, seriesExternalID string, data any)
}

// Invalidator queues cache-invalidation tags; Flush is called once per tick
// rather than once per chapter.
type Invalidator interface {
	Add(tag string)
}

// Notifier is the external failure-notification channel, silent unless a
// series has crossed its configured consecutive-failure threshold.
type Notifier interface {
	NotifyFailureIfDue(ctx context.Context, seriesID, seriesExternalID string, consecutiveFailures int, message string) error
}

type Processor struct {
	Repo     *registry.Repo
	Scraper  ScraperClient
	Stager   StagerClient
	Uploader UploaderClient
	Catalog  CatalogClient
	Events   EventPublisher
	Cache    Invalidator
	Notify   Notifier

	DefaultThumbnailURL string

	// Parallelism bounds how many series are processed concurrently.
	Parallelism int
}

func New(repo *registry.Repo, sc ScraperClient, st StagerClient, up UploaderClient, cat CatalogClient, pub EventPublisher, cache Invalidator, notify Notifier, parallelism int) *Processor {
	if parallelism <= 0 {
		parallelism = 5
	}
	return &Processor{
		Repo: repo, Scraper: sc, Stager: st, Uploader: up, Catalog: cat,
		Events: pub, Cache: cache, Notify: notify, Parallelism: parallelism,
	}
}

// Tick resolves series whose sync finished on a previous tick, then drains
// every series still actively syncing, up to Parallelism concurrently.
func (p *Processor) Tick(ctx context.Context) error {
	if _, err := p.Repo.ResolveCompletedSyncingSeries(ctx); err != nil {
		return fmt.Errorf("processor tick: resolve completed series: %w", err)
	}

	active, err := p.Repo.GetWithActiveTasks(ctx)
	if err != nil {
		return fmt.Errorf("processor tick: load active series: %w", err)
	}
	if len(active) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Parallelism)

	for _, series := range active {
		series := series
		g.Go(func() error {
			if err := p.ProcessSeries(gctx, series); err != nil {
				log.Printf("[processor] sync failed for %s: %v", series.ExternalID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// ProcessSeries drains every pending/in-flight task for one series through
// the pipeline, one chapter at a time, in weight order. It never aborts the
// series on a single chapter's failure — that chapter is marked failed and
// the next is attempted.
func (p *Processor) ProcessSeries(ctx context.Context, series models.Series) error {
	tasks, err := p.Repo.GetAllForSeries(ctx, series.ID)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	for _, t := range tasks {
		if !models.IsActiveTaskStatus(t.Status) {
			continue
		}
		if err := p.processTask(ctx, series, t); err != nil {
			log.Printf("[processor] chapter %.1f of %s failed: %v", t.ChapterNumber, series.ExternalID, err)
		}
	}

	if err := p.Repo.RefreshSyncProgress(ctx, series.ID); err != nil {
		return err
	}
	if p.Cache != nil {
		p.Cache.Add("series:" + series.ExternalID)
	}
	p.Events.Publish(models.EventSyncProgress, series.ExternalID, nil)

	got, err := p.Repo.Get(ctx, series.ID)
	if err != nil {
		return err
	}
	if got.ConsecutiveFailures > 0 && p.Notify != nil {
		_ = p.Notify.NotifyFailureIfDue(ctx, series.ID, series.ExternalID, got.ConsecutiveFailures, got.LastError)
	}
	return nil
}

// processTask resumes a task from wherever it last stopped: a task with a
// zip_url from a previous attempt skips straight to persist (Step C); a
// task with no zip_url starts at enumerate (Step A).
func (p *Processor) processTask(ctx context.Context, series models.Series, t models.SyncTask) error {
	zipURL := t.ZipURL

	if zipURL == "" {
		if err := p.Repo.SetTaskStatus(ctx, t.ID, models.TaskScraping, registry.TaskStatusUpdate{}); err != nil {
			return err
		}
		images, err := p.Scraper.GetChapterImages(ctx, t.ChapterURL)
		if err != nil {
			return p.failTask(ctx, series, t, fmt.Errorf("enumerate images: %w", err))
		}

		staged, err := p.Stager.Stage(ctx, images, series.ExternalID, series.Title, t.ChapterURL, formatChapterNumber(t.ChapterNumber))
		if err != nil {
			return p.failTask(ctx, series, t, fmt.Errorf("stage chapter: %w", err))
		}
		zipURL = staged.ZipURL

		if err := p.Repo.SetTaskStatus(ctx, t.ID, models.TaskScraped, registry.TaskStatusUpdate{ZipURL: &zipURL}); err != nil {
			return err
		}
	}

	if err := p.Repo.SetTaskStatus(ctx, t.ID, models.TaskUploading, registry.TaskStatusUpdate{ZipURL: &zipURL}); err != nil {
		return err
	}
	uploaded, err := p.Uploader.UploadSingle(ctx, series.ExternalID, t.ChapterNumber, zipURL)
	if err != nil {
		return p.failTask(ctx, series, t, fmt.Errorf("persist to storage: %w", err))
	}

	thumb := p.DefaultThumbnailURL
	if err := p.Catalog.CreateChapters(ctx, series.ExternalID, []catalog.CreateChapterInput{{
		ChapterID:         uploaded.ChapterID,
		ChapterNumber:     t.ChapterNumber,
		ChapterTitle:      "",
		ChapterImages:     uploaded.Manifest,
		Path:              uploaded.Path,
		ThumbnailImageURL: thumb,
	}}); err != nil {
		return p.failTask(ctx, series, t, fmt.Errorf("register in catalog: %w", err))
	}

	if err := p.Repo.SetTaskStatus(ctx, t.ID, models.TaskCompleted, registry.TaskStatusUpdate{ZipURL: &zipURL}); err != nil {
		return err
	}
	if err := p.Repo.IncrementBackendChapterStats(ctx, series.ID, t.ChapterNumber); err != nil {
		return err
	}
	if err := p.Repo.SetLastSyncedAt(ctx, series.ID); err != nil {
		return err
	}
	return p.Repo.SetStatus(ctx, series.ID, models.SeriesSyncing, "")
}

func (p *Processor) failTask(ctx context.Context, series models.Series, t models.SyncTask, cause error) error {
	_ = p.Repo.SetTaskStatus(ctx, t.ID, models.TaskFailed, registry.TaskStatusUpdate{Error: cause.Error()})
	_ = p.Repo.SetStatus(ctx, series.ID, series.Status, cause.Error())
	return cause
}

func formatChapterNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
