package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/brandloom/brandkit-crawler/internal/crawler"
)

func newMockStore(t *testing.T) (*JobStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestCreateJobInsertsRow(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	submitted := time.Unix(1700000000, 0).UTC()
	job := crawler.Job{
		ID:        "job-1",
		TargetURL: "https://example.com/",
		MaxPages:  25,
		Status:    crawler.JobStatusPending,
		Submitted: submitted,
	}

	mock.ExpectExec("INSERT INTO crawl_jobs").
		WithArgs("job-1", "https://example.com/", 25, "pending", submitted).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateJob(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobScansRow(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	submitted := time.Unix(1700000000, 0).UTC()
	started := submitted.Add(time.Second)

	rows := pgxmock.NewRows([]string{
		"id", "target_url", "max_pages", "status", "pages_visited", "images_found",
		"error_text", "page_errors", "brand_kit", "submitted_at", "started_at", "finished_at",
	}).AddRow(
		"job-1", "https://example.com/", 25, "completed", 5, 12,
		"", []byte(`["https://example.com/broken: timeout"]`),
		[]byte(`{"css_colors":["#112233"]}`),
		submitted, &started, (*time.Time)(nil),
	)

	mock.ExpectQuery("SELECT (.+) FROM crawl_jobs").
		WithArgs("job-1").
		WillReturnRows(rows)

	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusCompleted, job.Status)
	require.Equal(t, 5, job.PagesVisited)
	require.Equal(t, 12, job.ImagesFound)
	require.Equal(t, []string{"https://example.com/broken: timeout"}, job.Errors)
	require.NotNil(t, job.BrandKit)
	require.Equal(t, []string{"#112233"}, job.BrandKit.CSSColors)
	require.NotNil(t, job.Started)
	require.Nil(t, job.Finished)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM crawl_jobs").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err := store.GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestMarkRunning(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("UPDATE crawl_jobs").
		WithArgs("job-1", "running", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.MarkRunning(context.Background(), "job-1", at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishJobUpdatesRow(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	kit := &crawler.BrandKit{CSSColors: []string{"#112233"}}
	mock.ExpectExec("UPDATE crawl_jobs").
		WithArgs("job-1", "completed", "", 5, 12,
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.FinishJob(context.Background(), "job-1", crawler.JobStatusCompleted, "",
		crawler.JobCounters{PagesVisited: 5, ImagesFound: 12}, kit, []string{"one error"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishJobUnknownID(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE crawl_jobs").
		WithArgs("missing", "failed", "boom", 0, 0,
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.FinishJob(context.Background(), "missing", crawler.JobStatusFailed, "boom",
		crawler.JobCounters{}, nil, nil)
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestRecordImagesReplacesRows(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM crawl_images").
		WithArgs("job-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO crawl_images").
		WithArgs("job-1", 0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO crawl_images").
		WithArgs("job-1", 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	images := []crawler.AnalyzedImage{
		{ImageCandidate: crawler.ImageCandidate{URL: "https://example.com/a.png"}},
		{ImageCandidate: crawler.ImageCandidate{URL: "https://example.com/b.png"}},
	}
	require.NoError(t, store.RecordImages(context.Background(), "job-1", images))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListImagesDecodesPayloads(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"payload"}).
		AddRow([]byte(`{"url":"https://example.com/a.png","blur_score":72,"stored_url":null}`)).
		AddRow([]byte(`{"url":"https://example.com/b.png","is_blurry":true,"blur_score":4,"stored_url":null}`))

	mock.ExpectQuery("SELECT payload FROM crawl_images").
		WithArgs("job-1").
		WillReturnRows(rows)

	images, err := store.ListImages(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, images, 2)
	require.Equal(t, "https://example.com/a.png", images[0].URL)
	require.InDelta(t, 72, images[0].BlurScore, 0.001)
	require.True(t, images[1].IsBlurry)
}

func TestDeleteJob(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM crawl_jobs").
		WithArgs("job-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, store.DeleteJob(context.Background(), "job-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
