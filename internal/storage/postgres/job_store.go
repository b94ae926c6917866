// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brandloom/brandkit-crawler/internal/crawler"
)

// ErrJobNotFound is returned for lookups of unknown job IDs.
var ErrJobNotFound = errors.New("job not found")

// Schema documents the tables this store expects. Migrations are managed
// outside the application.
const Schema = `
CREATE TABLE IF NOT EXISTS crawl_jobs (
	id            TEXT PRIMARY KEY,
	target_url    TEXT NOT NULL,
	max_pages     INT NOT NULL,
	status        TEXT NOT NULL,
	pages_visited INT NOT NULL DEFAULT 0,
	images_found  INT NOT NULL DEFAULT 0,
	error_text    TEXT NOT NULL DEFAULT '',
	page_errors   JSONB,
	brand_kit     JSONB,
	submitted_at  TIMESTAMPTZ NOT NULL,
	started_at    TIMESTAMPTZ,
	finished_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS crawl_images (
	job_id   TEXT NOT NULL REFERENCES crawl_jobs (id) ON DELETE CASCADE,
	position INT NOT NULL,
	payload  JSONB NOT NULL,
	PRIMARY KEY (job_id, position)
);
`

// JobStoreConfig controls the Postgres connection pool.
type JobStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// JobStore implements crawler.JobStore on Postgres.
type JobStore struct {
	pool dbPool
}

// NewJobStore creates a Postgres-backed JobStore using the provided config.
func NewJobStore(ctx context.Context, cfg JobStoreConfig) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &JobStore{pool: pool}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily for
// testing).
func NewJobStoreWithPool(pool dbPool) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (s *JobStore) Close() {
	s.pool.Close()
}

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job crawler.Job) error {
	query := `
		INSERT INTO crawl_jobs (id, target_url, max_pages, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5);
	`
	_, err := s.pool.Exec(ctx, query, job.ID, job.TargetURL, job.MaxPages, string(job.Status), job.Submitted)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (crawler.Job, error) {
	query := `
		SELECT id, target_url, max_pages, status, pages_visited, images_found,
		       error_text, page_errors, brand_kit, submitted_at, started_at, finished_at
		FROM crawl_jobs
		WHERE id = $1;
	`
	var (
		job        crawler.Job
		status     string
		pageErrors []byte
		brandKit   []byte
	)
	err := s.pool.QueryRow(ctx, query, jobID).Scan(
		&job.ID,
		&job.TargetURL,
		&job.MaxPages,
		&status,
		&job.PagesVisited,
		&job.ImagesFound,
		&job.ErrorText,
		&pageErrors,
		&brandKit,
		&job.Submitted,
		&job.Started,
		&job.Finished,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.Job{}, ErrJobNotFound
		}
		return crawler.Job{}, fmt.Errorf("get job: %w", err)
	}
	job.Status = crawler.JobStatus(status)
	if len(pageErrors) > 0 {
		if err := json.Unmarshal(pageErrors, &job.Errors); err != nil {
			return crawler.Job{}, fmt.Errorf("decode page errors: %w", err)
		}
	}
	if len(brandKit) > 0 {
		var kit crawler.BrandKit
		if err := json.Unmarshal(brandKit, &kit); err != nil {
			return crawler.Job{}, fmt.Errorf("decode brand kit: %w", err)
		}
		job.BrandKit = &kit
	}
	return job, nil
}

// MarkRunning flips the job to running and stamps the start time once.
func (s *JobStore) MarkRunning(ctx context.Context, jobID string, at time.Time) error {
	query := `
		UPDATE crawl_jobs
		SET status = $2, started_at = COALESCE(started_at, $3)
		WHERE id = $1;
	`
	res, err := s.pool.Exec(ctx, query, jobID, string(crawler.JobStatusRunning), at)
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// FinishJob records the terminal state, counters, and brand kit for a job.
func (s *JobStore) FinishJob(
	ctx context.Context,
	jobID string,
	status crawler.JobStatus,
	errText string,
	counters crawler.JobCounters,
	kit *crawler.BrandKit,
	pageErrors []string,
) error {
	var kitJSON []byte
	if kit != nil {
		encoded, err := json.Marshal(kit)
		if err != nil {
			return fmt.Errorf("encode brand kit: %w", err)
		}
		kitJSON = encoded
	}
	var errorsJSON []byte
	if len(pageErrors) > 0 {
		encoded, err := json.Marshal(pageErrors)
		if err != nil {
			return fmt.Errorf("encode page errors: %w", err)
		}
		errorsJSON = encoded
	}

	query := `
		UPDATE crawl_jobs
		SET status = $2, error_text = $3, pages_visited = $4, images_found = $5,
		    brand_kit = $6, page_errors = $7, finished_at = now()
		WHERE id = $1;
	`
	res, err := s.pool.Exec(ctx, query,
		jobID, string(status), errText,
		counters.PagesVisited, counters.ImagesFound,
		kitJSON, errorsJSON,
	)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// RecordImages replaces the analyzed images for a job.
func (s *JobStore) RecordImages(ctx context.Context, jobID string, images []crawler.AnalyzedImage) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM crawl_images WHERE job_id = $1;`, jobID); err != nil {
		return fmt.Errorf("clear previous images: %w", err)
	}
	query := `
		INSERT INTO crawl_images (job_id, position, payload)
		VALUES ($1, $2, $3);
	`
	for i, img := range images {
		payload, err := json.Marshal(img)
		if err != nil {
			return fmt.Errorf("encode image %d: %w", i, err)
		}
		if _, err := s.pool.Exec(ctx, query, jobID, i, payload); err != nil {
			return fmt.Errorf("insert image %d: %w", i, err)
		}
	}
	return nil
}

// ListImages returns all analyzed images recorded for a job, in crawl order.
func (s *JobStore) ListImages(ctx context.Context, jobID string) ([]crawler.AnalyzedImage, error) {
	query := `
		SELECT payload
		FROM crawl_images
		WHERE job_id = $1
		ORDER BY position;
	`
	rows, err := s.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var images []crawler.AnalyzedImage
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan image row: %w", err)
		}
		var img crawler.AnalyzedImage
		if err := json.Unmarshal(payload, &img); err != nil {
			return nil, fmt.Errorf("decode image payload: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate image rows: %w", err)
	}
	return images, nil
}

// DeleteJob removes a job; its images cascade.
func (s *JobStore) DeleteJob(ctx context.Context, jobID string) error {
	res, err := s.pool.Exec(ctx, `DELETE FROM crawl_jobs WHERE id = $1;`, jobID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}
