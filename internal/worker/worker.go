// Package worker implements the crawl execution loop.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/brandloom/brandkit-crawler/internal/crawler"
)

// Runner executes one crawl job end to end.
type Runner interface {
	Run(ctx context.Context, job crawler.Job) (crawler.CrawlResult, error)
}

// Worker consumes queue items and runs crawls until its context ends.
type Worker struct {
	queue  crawler.Queue
	jobs   crawler.JobStore
	runner Runner
	logger *zap.Logger
}

// New constructs a Worker.
func New(queue crawler.Queue, jobs crawler.JobStore, runner Runner, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:  queue,
		jobs:   jobs,
		runner: runner,
		logger: logger,
	}
}

// Run blocks, dequeuing and executing jobs until ctx is canceled. Run errors
// from individual jobs are logged and never stop the loop; the orchestrator
// has already persisted the failure.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Warn("dequeue failed", zap.Error(err))
			return
		}

		job, err := w.jobs.GetJob(ctx, item.JobID)
		if err != nil {
			w.logger.Warn("dequeued job not found; running from queue item",
				zap.String("job_id", item.JobID),
				zap.Error(err),
			)
			job = crawler.Job{
				ID:        item.JobID,
				TargetURL: item.TargetURL,
				MaxPages:  item.MaxPages,
				Status:    crawler.JobStatusPending,
			}
		}

		if _, err := w.runner.Run(ctx, job); err != nil {
			w.logger.Error("crawl job failed",
				zap.String("job_id", job.ID),
				zap.String("target_url", job.TargetURL),
				zap.Error(err),
			)
		}
	}
}
