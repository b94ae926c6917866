// Package memory provides in-memory storage backends for development and
// tests.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/brandloom/brandkit-crawler/internal/crawler"
)

// ErrJobNotFound is returned for lookups of unknown job IDs.
var ErrJobNotFound = errors.New("job not found")

// JobStore keeps jobs and analyzed images in process memory.
type JobStore struct {
	mu     sync.RWMutex
	jobs   map[string]crawler.Job
	images map[string][]crawler.AnalyzedImage
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:   make(map[string]crawler.Job),
		images: make(map[string][]crawler.AnalyzedImage),
	}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job crawler.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawler.Job{}, ErrJobNotFound
	}
	return job, nil
}

// MarkRunning flips the job to running and stamps the start time once.
func (s *JobStore) MarkRunning(_ context.Context, jobID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = crawler.JobStatusRunning
	if job.Started == nil {
		job.Started = pointerTime(at.UTC())
	}
	s.jobs[jobID] = job
	return nil
}

// FinishJob records the terminal state, counters, and brand kit for a job.
func (s *JobStore) FinishJob(
	_ context.Context,
	jobID string,
	status crawler.JobStatus,
	errText string,
	counters crawler.JobCounters,
	kit *crawler.BrandKit,
	pageErrors []string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	job.ErrorText = errText
	job.PagesVisited = counters.PagesVisited
	job.ImagesFound = counters.ImagesFound
	job.BrandKit = kit
	job.Errors = append([]string(nil), pageErrors...)
	if status.IsTerminal() {
		job.Finished = pointerTime(time.Now().UTC())
	}
	s.jobs[jobID] = job
	return nil
}

// RecordImages replaces the analyzed images for a job.
func (s *JobStore) RecordImages(_ context.Context, jobID string, images []crawler.AnalyzedImage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[jobID] = append([]crawler.AnalyzedImage(nil), images...)
	return nil
}

// ListImages returns all analyzed images recorded for a job.
func (s *JobStore) ListImages(_ context.Context, jobID string) ([]crawler.AnalyzedImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	images := s.images[jobID]
	out := make([]crawler.AnalyzedImage, len(images))
	copy(out, images)
	return out, nil
}

// DeleteJob removes a job and its images.
func (s *JobStore) DeleteJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return ErrJobNotFound
	}
	delete(s.jobs, jobID)
	delete(s.images, jobID)
	return nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
