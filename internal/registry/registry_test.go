package registry_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinigamiapp/automirror/internal/registry"
	"github.com/shinigamiapp/automirror/pkg/database"
	"github.com/shinigamiapp/automirror/pkg/models"
)

func newTestRepo(t *testing.T) *registry.Repo {
	t.Helper()
	db, err := database.Open(database.Config{Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })
	return registry.NewRepo(db)
}

func TestCreate_AssignsSourcesAndPrimaryDenorm(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	s, err := r.Create(ctx, models.CreateSeriesInput{
		ExternalID: "ext-1",
		Title:      "Example Manga",
		SourceURLs: []string{"https://a.example/manga/foo", "https://b.example/series/foo-b"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.SeriesIdle, s.Status)
	require.Len(t, s.Sources, 2)
	assert.Equal(t, 1, s.Sources[0].Priority)
	assert.Equal(t, "a.example", s.SourceDomain)
	assert.Equal(t, "foo", s.MangaSlug)
}

func TestCreate_DuplicateExternalID(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	in := models.CreateSeriesInput{ExternalID: "dup", Title: "T", SourceURLs: []string{"https://a.example/x"}}
	_, err := r.Create(ctx, in)
	require.NoError(t, err)
	_, err = r.Create(ctx, in)
	assert.ErrorIs(t, err, registry.ErrAlreadyRegistered)
}

func TestCreate_RejectsTooManySources(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	_, err := r.Create(ctx, models.CreateSeriesInput{
		ExternalID: "x",
		Title:      "T",
		SourceURLs: []string{"https://a.example/1", "https://a.example/2", "https://a.example/3", "https://a.example/4"},
	})
	assert.ErrorIs(t, err, registry.ErrValidation)
}

func TestCreateTasks_NoDuplicatesPerChapter(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	s, err := r.Create(ctx, models.CreateSeriesInput{ExternalID: "s1", Title: "T", SourceURLs: []string{"https://a.example/x"}})
	require.NoError(t, err)

	_, err = r.CreateTasks(ctx, s.ID, []models.NewTaskInput{
		{ChapterURL: "https://a.example/x/chapter-1", ChapterNumber: 1, Weight: 0},
		{ChapterURL: "https://a.example/x/chapter-2", ChapterNumber: 2, Weight: 1},
	})
	require.NoError(t, err)
	// Re-create with overlapping chapter number: should not duplicate (I5).
	_, err = r.CreateTasks(ctx, s.ID, []models.NewTaskInput{
		{ChapterURL: "https://a.example/x/chapter-2", ChapterNumber: 2, Weight: 1},
		{ChapterURL: "https://a.example/x/chapter-3", ChapterNumber: 3, Weight: 2},
	})
	require.NoError(t, err)

	all, err := r.GetAllForSeries(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSetTaskStatus_FailedPreservesZipURLWhenNil(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	s, err := r.Create(ctx, models.CreateSeriesInput{ExternalID: "s2", Title: "T", SourceURLs: []string{"https://a.example/x"}})
	require.NoError(t, err)
	_, err = r.CreateTasks(ctx, s.ID, []models.NewTaskInput{{ChapterURL: "u", ChapterNumber: 1}})
	require.NoError(t, err)

	tasks, err := r.GetPending(ctx, s.ID, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	task := tasks[0]

	zip := "https://stager.example/zips/1.zip"
	require.NoError(t, r.SetTaskStatus(ctx, task.ID, models.TaskScraped, registry.TaskStatusUpdate{ZipURL: &zip}))

	// Simulate a later failure at Step C that does not touch zip_url.
	require.NoError(t, r.SetTaskStatus(ctx, task.ID, models.TaskFailed, registry.TaskStatusUpdate{Error: "upload timeout"}))

	failed, err := r.GetFailed(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, zip, failed[0].ZipURL)
	assert.Equal(t, 1, failed[0].RetryCount)
	assert.Equal(t, "upload timeout", failed[0].Error)
}

func TestRetryFailed_NoFailedTasks(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	s, err := r.Create(ctx, models.CreateSeriesInput{ExternalID: "s3", Title: "T", SourceURLs: []string{"https://a.example/x"}})
	require.NoError(t, err)
	_, err = r.RetryFailed(ctx, s.ID)
	assert.ErrorIs(t, err, registry.ErrNoFailedTasks)
}

func TestRecoverStaleTasks_ResumesFromZipURL(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	s, err := r.Create(ctx, models.CreateSeriesInput{ExternalID: "s4", Title: "T", SourceURLs: []string{"https://a.example/x"}})
	require.NoError(t, err)
	_, err = r.CreateTasks(ctx, s.ID, []models.NewTaskInput{
		{ChapterURL: "u1", ChapterNumber: 1},
		{ChapterURL: "u2", ChapterNumber: 2},
	})
	require.NoError(t, err)
	require.NoError(t, r.SetStatus(ctx, s.ID, models.SeriesSyncing, ""))

	all, err := r.GetAllForSeries(ctx, s.ID)
	require.NoError(t, err)
	zip := "z"
	require.NoError(t, r.SetTaskStatus(ctx, all[0].ID, models.TaskScraping, registry.TaskStatusUpdate{}))
	require.NoError(t, r.SetTaskStatus(ctx, all[1].ID, models.TaskUploading, registry.TaskStatusUpdate{ZipURL: &zip}))

	require.NoError(t, r.RecoverStaleTasks(ctx))

	all, err = r.GetAllForSeries(ctx, s.ID)
	require.NoError(t, err)
	byID := map[string]models.SyncTask{}
	for _, task := range all {
		byID[task.ID] = task
	}
	assert.Equal(t, models.TaskPending, byID[all[0].ID].Status)
	assert.Equal(t, models.TaskScraped, byID[all[1].ID].Status)

	got, err := r.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SeriesSyncing, got.Status)
}

func TestForceScan_NoopWhileSyncing(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	s, err := r.Create(ctx, models.CreateSeriesInput{ExternalID: "s5", Title: "T", SourceURLs: []string{"https://a.example/x"}})
	require.NoError(t, err)
	require.NoError(t, r.SetStatus(ctx, s.ID, models.SeriesSyncing, ""))

	require.NoError(t, r.TriggerForceScan(ctx, s.ID))

	got, err := r.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SeriesSyncing, got.Status)
}

func TestReplaceSources_DomainMigrationPreservesPathAndQuery(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	s, err := r.Create(ctx, models.CreateSeriesInput{
		ExternalID: "s6", Title: "T",
		SourceURLs: []string{"https://old.example/manga/foo?ref=x#frag"},
	})
	require.NoError(t, err)

	newURL := "https://new.example/manga/foo?ref=x#frag"
	srcs, err := r.ReplaceSources(ctx, s.ID, []string{newURL})
	require.NoError(t, err)
	require.Len(t, srcs, 1)
	assert.Equal(t, newURL, srcs[0].URL)
	assert.Equal(t, "new.example", srcs[0].SourceDomain)
}

func TestApplyDomainMigration_PreservesPathAndDenormalizesPrimary(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	s, err := r.Create(ctx, models.CreateSeriesInput{
		ExternalID: "s7", Title: "T",
		SourceURLs: []string{"https://old.example/manga/bar?x=1"},
	})
	require.NoError(t, err)

	matches, _, err := r.FindDomainMatches(ctx, "old.example", nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "https://new.example/manga/bar?x=1", mustRewriteForTest(t, matches[0].OldURL, "new.example"))

	n, err := r.ApplyDomainMigration(ctx, "old.example", "new.example", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := r.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "new.example", got.SourceDomain)
	assert.Equal(t, "https://new.example/manga/bar?x=1", got.MangaURL)
	require.Len(t, got.Sources, 1)
	assert.Equal(t, "new.example", got.Sources[0].SourceDomain)
}

func mustRewriteForTest(t *testing.T, raw, newDomain string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	u.Host = newDomain
	return u.String()
}
