package scanner_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scraperclient "github.com/shinigamiapp/automirror/internal/clients/scraper"
	"github.com/shinigamiapp/automirror/internal/registry"
	"github.com/shinigamiapp/automirror/internal/scanner"
	"github.com/shinigamiapp/automirror/pkg/database"
	"github.com/shinigamiapp/automirror/pkg/models"
)

type fakeScraper struct {
	bySource map[string][]scraperclient.Chapter
	err      map[string]error
}

func (f *fakeScraper) ListChaptersForSource(ctx context.Context, sourceURL string) ([]scraperclient.Chapter, error) {
	if err, ok := f.err[sourceURL]; ok {
		return nil, err
	}
	return f.bySource[sourceURL], nil
}

type fakeCatalog struct {
	chapters map[float64]struct{}
}

func (f *fakeCatalog) ListChapterNumbers(ctx context.Context, seriesExternalID string) (map[float64]struct{}, error) {
	return f.chapters, nil
}

type fakePublisher struct {
	events []string
}

func (f *fakePublisher) Publish(eventType, seriesExternalID string, data any) {
	f.events = append(f.events, eventType)
}

func newTestRepo(t *testing.T) *registry.Repo {
	t.Helper()
	db, err := database.Open(database.Config{Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })
	return registry.NewRepo(db)
}

func TestScan_CreatesTasksForMissingChapters(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	s, err := repo.Create(ctx, models.CreateSeriesInput{
		ExternalID: "ext-1", Title: "T",
		SourceURLs: []string{"https://a.example/manga/foo"},
	})
	require.NoError(t, err)

	fs := &fakeScraper{bySource: map[string][]scraperclient.Chapter{
		"https://a.example/manga/foo": {
			{Title: "Chapter 1", URL: "https://a.example/manga/foo/chapter-1"},
			{Title: "Chapter 2", URL: "https://a.example/manga/foo/chapter-2"},
			{Title: "Chapter 4", URL: "https://a.example/manga/foo/chapter-4"},
			{Title: "Chapter 5", URL: "https://a.example/manga/foo/chapter-5"},
		},
	}}
	fc := &fakeCatalog{chapters: map[float64]struct{}{1: {}, 2: {}}}
	pub := &fakePublisher{}

	sc := scanner.New(repo, fs, fc, pub, 5)
	require.NoError(t, sc.Scan(ctx, s))

	tasks, err := repo.GetAllForSeries(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.ElementsMatch(t, []float64{4, 5}, []float64{tasks[0].ChapterNumber, tasks[1].ChapterNumber})

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SeriesSyncing, got.Status)
	assert.Contains(t, pub.events, models.EventScanFinished)
}

func TestScan_AllSourcesFailedSetsError(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	s, err := repo.Create(ctx, models.CreateSeriesInput{ExternalID: "ext-2", Title: "T", SourceURLs: []string{"https://a.example/x"}})
	require.NoError(t, err)

	fs := &fakeScraper{err: map[string]error{"https://a.example/x": assertErr("boom")}}
	sc := scanner.New(repo, fs, &fakeCatalog{chapters: map[float64]struct{}{}}, &fakePublisher{}, 5)
	err = sc.Scan(ctx, s)
	assert.Error(t, err)

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SeriesError, got.Status)
	assert.Equal(t, 1, got.ConsecutiveFailures)
}

func TestResolveChapterNumber_PrefersURL(t *testing.T) {
	n, ok := scanner.ResolveChapterNumber("SIDE 1", "https://a.example/x/chapter-36.5", nil)
	assert.True(t, ok)
	assert.Equal(t, 36.5, n)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
