package processor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinigamiapp/automirror/internal/clients/catalog"
	"github.com/shinigamiapp/automirror/internal/clients/scraper"
	"github.com/shinigamiapp/automirror/internal/clients/stager"
	"github.com/shinigamiapp/automirror/internal/clients/uploader"
	"github.com/shinigamiapp/automirror/internal/processor"
	"github.com/shinigamiapp/automirror/internal/registry"
	"github.com/shinigamiapp/automirror/pkg/database"
	"github.com/shinigamiapp/automirror/pkg/models"
)

type fakeScraper struct {
	failFor string
}

func (f *fakeScraper) GetChapterImages(ctx context.Context, chapterURL string) ([]scraper.Image, error) {
	if chapterURL == f.failFor {
		return nil, assertErr("no images")
	}
	return []scraper.Image{{Index: 0, DownloadURL: "https://img.example/1.png"}}, nil
}

type fakeStager struct{}

func (f *fakeStager) Stage(ctx context.Context, images []scraper.Image, seriesExternalID, seriesTitle, chapterURL, chapterNumber string) (stager.StageResult, error) {
	return stager.StageResult{ZipURL: "https://zips.example/" + chapterNumber + ".zip", TotalImages: len(images)}, nil
}

type fakeUploader struct{}

func (f *fakeUploader) UploadSingle(ctx context.Context, seriesExternalID string, chapterNumber float64, zipURL string) (uploader.Result, error) {
	return uploader.Result{ChapterID: "ch-1", Manifest: []string{"1.png"}, Path: "/x/1"}, nil
}

type fakeCatalog struct {
	created []catalog.CreateChapterInput
}

func (f *fakeCatalog) CreateChapters(ctx context.Context, seriesExternalID string, chapters []catalog.CreateChapterInput) error {
	f.created = append(f.created, chapters...)
	return nil
}

type fakePublisher struct{ events []string }

func (f *fakePublisher) Publish(eventType, seriesExternalID string, data any) {
	f.events = append(f.events, eventType)
}

type fakeInvalidator struct{ tags []string }

func (f *fakeInvalidator) Add(tag string) { f.tags = append(f.tags, tag) }

type fakeNotifier struct{ calls int }

func (f *fakeNotifier) NotifyFailureIfDue(ctx context.Context, seriesID, seriesExternalID string, consecutiveFailures int, message string) error {
	f.calls++
	return nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func newTestRepo(t *testing.T) *registry.Repo {
	t.Helper()
	db, err := database.Open(database.Config{Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })
	return registry.NewRepo(db)
}

func TestProcessSeries_CompletesAllTasks(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	s, err := repo.Create(ctx, models.CreateSeriesInput{ExternalID: "ext-1", Title: "T", SourceURLs: []string{"https://a.example/m"}})
	require.NoError(t, err)
	_, err = repo.CreateTasks(ctx, s.ID, []models.NewTaskInput{
		{SourceID: s.Sources[0].ID, ChapterURL: "https://a.example/m/chapter-1", ChapterNumber: 1, Weight: 0},
		{SourceID: s.Sources[0].ID, ChapterURL: "https://a.example/m/chapter-2", ChapterNumber: 2, Weight: 1},
	})
	require.NoError(t, err)
	require.NoError(t, repo.SetStatus(ctx, s.ID, models.SeriesSyncing, ""))

	cat := &fakeCatalog{}
	pub := &fakePublisher{}
	inv := &fakeInvalidator{}
	proc := processor.New(repo, &fakeScraper{}, &fakeStager{}, &fakeUploader{}, cat, pub, inv, &fakeNotifier{}, 5)

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	require.NoError(t, proc.ProcessSeries(ctx, *got))

	tasks, err := repo.GetAllForSeries(ctx, s.ID)
	require.NoError(t, err)
	for _, task := range tasks {
		assert.Equal(t, models.TaskCompleted, task.Status)
	}
	assert.Len(t, cat.created, 2)
	for _, c := range cat.created {
		assert.Equal(t, "", c.ChapterTitle)
	}
	assert.Contains(t, pub.events, models.EventSyncProgress)
	assert.NotEmpty(t, inv.tags)
}

func TestProcessSeries_OneFailureDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	s, err := repo.Create(ctx, models.CreateSeriesInput{ExternalID: "ext-2", Title: "T", SourceURLs: []string{"https://a.example/m"}})
	require.NoError(t, err)
	failURL := "https://a.example/m/chapter-1"
	_, err = repo.CreateTasks(ctx, s.ID, []models.NewTaskInput{
		{SourceID: s.Sources[0].ID, ChapterURL: failURL, ChapterNumber: 1, Weight: 0},
		{SourceID: s.Sources[0].ID, ChapterURL: "https://a.example/m/chapter-2", ChapterNumber: 2, Weight: 1},
	})
	require.NoError(t, err)
	require.NoError(t, repo.SetStatus(ctx, s.ID, models.SeriesSyncing, ""))

	proc := processor.New(repo, &fakeScraper{failFor: failURL}, &fakeStager{}, &fakeUploader{}, &fakeCatalog{}, &fakePublisher{}, &fakeInvalidator{}, &fakeNotifier{}, 5)

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	require.NoError(t, proc.ProcessSeries(ctx, *got))

	tasks, err := repo.GetAllForSeries(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	byChapter := map[float64]models.TaskStatus{}
	for _, task := range tasks {
		byChapter[task.ChapterNumber] = task.Status
	}
	assert.Equal(t, models.TaskFailed, byChapter[1])
	assert.Equal(t, models.TaskCompleted, byChapter[2])
}
