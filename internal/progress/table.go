// Package progress keeps point-in-time crawl snapshots for polling clients.
// Snapshots are a liveness signal, not a source of truth; the job store holds
// the durable record.
package progress

import (
	"sync"

	"github.com/brandloom/brandkit-crawler/internal/crawler"
)

// DefaultMaxEntries bounds the table so abandoned jobs cannot grow it
// without limit.
const DefaultMaxEntries = 1024

// Table is an in-memory, process-local crawler.ProgressSink. Each Publish
// replaces the job's snapshot wholesale; readers never see a partially
// updated value.
type Table struct {
	mu         sync.RWMutex
	snapshots  map[string]crawler.Progress
	maxEntries int
}

// NewTable builds a Table. maxEntries <= 0 uses DefaultMaxEntries.
func NewTable(maxEntries int) *Table {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Table{
		snapshots:  make(map[string]crawler.Progress),
		maxEntries: maxEntries,
	}
}

// Publish stores the snapshot, replacing any previous one for the job. When
// the table is full, the stalest entry is evicted to make room.
func (t *Table) Publish(snapshot crawler.Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.snapshots[snapshot.JobID]; !exists && len(t.snapshots) >= t.maxEntries {
		t.evictStalest()
	}
	t.snapshots[snapshot.JobID] = snapshot
}

// Forget removes the job's snapshot once its results are durable.
func (t *Table) Forget(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.snapshots, jobID)
}

// Get returns the current snapshot for a job.
func (t *Table) Get(jobID string) (crawler.Progress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snapshot, ok := t.snapshots[jobID]
	return snapshot, ok
}

// Len reports how many jobs currently have snapshots.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.snapshots)
}

// evictStalest drops the entry with the oldest UpdatedAt. Callers hold the
// write lock.
func (t *Table) evictStalest() {
	var stalest string
	first := true
	for jobID, snapshot := range t.snapshots {
		if first || snapshot.UpdatedAt.Before(t.snapshots[stalest].UpdatedAt) {
			stalest = jobID
			first = false
		}
	}
	if stalest != "" {
		delete(t.snapshots, stalest)
	}
}
