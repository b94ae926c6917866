package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brandloom/brandkit-crawler/internal/crawler"
)

func newJob(id string) crawler.Job {
	return crawler.Job{
		ID:        id,
		TargetURL: "https://example.com/",
		MaxPages:  10,
		Status:    crawler.JobStatusPending,
		Submitted: time.Now().UTC(),
	}
}

func TestJobLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewJobStore()

	require.NoError(t, store.CreateJob(ctx, newJob("job-1")))
	require.Error(t, store.CreateJob(ctx, newJob("job-1")), "duplicate create must fail")

	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusPending, got.Status)

	started := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.MarkRunning(ctx, "job-1", started))
	got, err = store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusRunning, got.Status)
	require.NotNil(t, got.Started)
	require.Equal(t, started, *got.Started)

	kit := &crawler.BrandKit{CSSColors: []string{"#112233"}}
	counters := crawler.JobCounters{PagesVisited: 4, ImagesFound: 9}
	require.NoError(t, store.FinishJob(ctx, "job-1", crawler.JobStatusCompleted, "", counters, kit, []string{"https://example.com/broken: timeout"}))

	got, err = store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusCompleted, got.Status)
	require.Equal(t, 4, got.PagesVisited)
	require.Equal(t, 9, got.ImagesFound)
	require.NotNil(t, got.Finished)
	require.Equal(t, kit, got.BrandKit)
	require.Len(t, got.Errors, 1)
}

func TestJobNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewJobStore()

	_, err := store.GetJob(ctx, "missing")
	require.ErrorIs(t, err, ErrJobNotFound)
	require.ErrorIs(t, store.MarkRunning(ctx, "missing", time.Now()), ErrJobNotFound)
	require.ErrorIs(t, store.FinishJob(ctx, "missing", crawler.JobStatusFailed, "boom", crawler.JobCounters{}, nil, nil), ErrJobNotFound)
	require.ErrorIs(t, store.DeleteJob(ctx, "missing"), ErrJobNotFound)
}

func TestImages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewJobStore()
	require.NoError(t, store.CreateJob(ctx, newJob("job-1")))

	stored := "file:///blobs/images/job-1/abc.png"
	images := []crawler.AnalyzedImage{
		{
			ImageCandidate: crawler.ImageCandidate{URL: "https://example.com/a.png"},
			BlurScore:      72,
			StoredURL:      &stored,
		},
		{
			ImageCandidate: crawler.ImageCandidate{URL: "https://example.com/b.png"},
			IsBlurry:       true,
			BlurScore:      4,
		},
	}
	require.NoError(t, store.RecordImages(ctx, "job-1", images))

	listed, err := store.ListImages(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, images, listed)

	listed[0].BlurScore = 1
	again, err := store.ListImages(ctx, "job-1")
	require.NoError(t, err)
	require.InDelta(t, 72, again[0].BlurScore, 0.001, "callers must not mutate stored images")

	require.NoError(t, store.DeleteJob(ctx, "job-1"))
	empty, err := store.ListImages(ctx, "job-1")
	require.NoError(t, err)
	require.Empty(t, empty)
}
