package crawler

import (
	"context"
	"time"
)

// JobStore persists job metadata and analyzed images.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	MarkRunning(ctx context.Context, jobID string, at time.Time) error
	FinishJob(ctx context.Context, jobID string, status JobStatus, errText string, counters JobCounters, kit *BrandKit, pageErrors []string) error
	RecordImages(ctx context.Context, jobID string, images []AnalyzedImage) error
	ListImages(ctx context.Context, jobID string) ([]AnalyzedImage, error)
	DeleteJob(ctx context.Context, jobID string) error
}

// BlobStore writes raw artifacts and returns a URL.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// ByteFetcher downloads raw bytes outside the rendering session.
type ByteFetcher interface {
	Fetch(ctx context.Context, rawURL string) (FetchResult, error)
}

// Browser launches rendering sessions. A session owns one browser process
// shared across a whole crawl so cookie and session state stay consistent.
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
}

// Session is a live rendering session.
type Session interface {
	Open(ctx context.Context, rawURL string, timeout time.Duration) (Page, error)
	Close(ctx context.Context) error
}

// Page is a loaded page inside a session.
type Page interface {
	// Evaluate runs script in the page and unmarshals its JSON result into out.
	Evaluate(ctx context.Context, script string, out any) error
	// Screenshot captures the current viewport, not the full page.
	Screenshot(ctx context.Context) ([]byte, error)
	// HTML returns the rendered document markup.
	HTML(ctx context.Context) (string, error)
	// URL returns the page location after navigation.
	URL() string
}

// PageExtractor pulls image candidates and outbound links from a loaded page.
type PageExtractor interface {
	ExtractImages(ctx context.Context, page Page, pageURL string) ([]ImageCandidate, error)
	ExtractLinks(ctx context.Context, page Page, baseURL string) ([]string, error)
}

// BrandKitExtractor pulls fonts, CSS colors, and screenshot palettes.
type BrandKitExtractor interface {
	ExtractBrandKit(ctx context.Context, page Page) (BrandKitData, error)
	CaptureAndAnalyzeScreenshot(ctx context.Context, page Page) (Screenshot, error)
	MergeColorPalettes(palettes [][]ColorInfo) []ColorInfo
}

// AssetPipeline runs the per-image fetch/analyze/store stage. A failure on
// one image never fails the others; each failure surfaces as defaults with a
// nil StoredURL on that image.
type AssetPipeline interface {
	Process(ctx context.Context, jobID string, candidates []ImageCandidate) []AnalyzedImage
}

// ProgressSink receives immutable progress snapshots. Publish replaces the
// previous snapshot for the job; Forget removes it once results are durable.
type ProgressSink interface {
	Publish(snapshot Progress)
	Forget(jobID string)
}

// RobotsPolicy decides whether a URL may be visited.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for crawl jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
