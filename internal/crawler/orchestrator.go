package crawler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brandloom/brandkit-crawler/internal/metrics"
)

// Config controls orchestrator behavior.
type Config struct {
	// NavTimeout bounds a single page navigation.
	NavTimeout time.Duration
	// ScreenshotPrefix is the blob key prefix for first-page screenshots.
	ScreenshotPrefix string
	// CompletionTopic, when set alongside a Publisher, receives an event at
	// terminal job state.
	CompletionTopic string
}

// Orchestrator drives a bounded same-domain BFS over one site, accumulating
// image candidates and a merged brand kit. It is the only component holding
// mutable crawl state; extractors and the analyzer are pure functions of
// their inputs.
type Orchestrator struct {
	browser   Browser
	pages     PageExtractor
	brand     BrandKitExtractor
	assets    AssetPipeline
	jobs      JobStore
	progress  ProgressSink
	robots    RobotsPolicy
	blobs     BlobStore
	publisher Publisher
	clock     Clock
	cfg       Config
	logger    *zap.Logger
}

// NewOrchestrator wires the crawl dependencies. robots, blobs, and publisher
// may be nil; the corresponding features are skipped.
func NewOrchestrator(
	browser Browser,
	pages PageExtractor,
	brand BrandKitExtractor,
	assets AssetPipeline,
	jobs JobStore,
	progress ProgressSink,
	robots RobotsPolicy,
	blobs BlobStore,
	publisher Publisher,
	clock Clock,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if cfg.ScreenshotPrefix == "" {
		cfg.ScreenshotPrefix = "screenshots"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		browser:   browser,
		pages:     pages,
		brand:     brand,
		assets:    assets,
		jobs:      jobs,
		progress:  progress,
		robots:    robots,
		blobs:     blobs,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// crawlState is the mutable accumulator for one run.
type crawlState struct {
	queue      []string
	queued     map[string]struct{}
	visited    map[string]struct{}
	seenImages map[string]struct{}
	candidates []ImageCandidate
	palettes   [][]ColorInfo
	kitData    BrandKitData
	screenshot string
	errs       []string
	firstPage  bool
}

// Run executes the full crawl lifecycle for one job: BFS traversal, asset
// pipeline, brand-kit merge, persistence, and progress publication. The
// rendering session is released on every exit path. The returned error is
// non-nil only for invalid input or a fatal failure that marked the job
// failed; per-page errors are reported inside the result.
func (o *Orchestrator) Run(ctx context.Context, job Job) (CrawlResult, error) {
	target, err := NormalizeURL(job.TargetURL)
	if err != nil {
		failErr := fmt.Errorf("invalid target URL %q: %w", job.TargetURL, err)
		o.finishFailed(ctx, job.ID, failErr.Error(), JobCounters{})
		return CrawlResult{}, failErr
	}

	if err := o.jobs.MarkRunning(ctx, job.ID, o.clock.Now()); err != nil {
		o.logger.Error("mark job running failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	o.publish(Progress{
		JobID:      job.ID,
		TotalPages: job.MaxPages,
		CurrentURL: target,
		Status:     JobStatusRunning,
	})

	session, err := o.browser.NewSession(ctx)
	if err != nil {
		failErr := fmt.Errorf("launch rendering session: %w", err)
		o.finishFailed(ctx, job.ID, failErr.Error(), JobCounters{})
		return CrawlResult{}, failErr
	}
	defer func() {
		if closeErr := session.Close(context.WithoutCancel(ctx)); closeErr != nil {
			o.logger.Warn("close rendering session failed", zap.String("job_id", job.ID), zap.Error(closeErr))
		}
	}()

	state := &crawlState{
		queue:      []string{target},
		queued:     map[string]struct{}{target: {}},
		visited:    make(map[string]struct{}),
		seenImages: make(map[string]struct{}),
		firstPage:  true,
	}
	o.traverse(ctx, session, job, target, state)

	result := o.assemble(ctx, job, state)
	counters := JobCounters{PagesVisited: result.PagesVisited, ImagesFound: len(result.Images)}

	if err := o.jobs.RecordImages(ctx, job.ID, result.Images); err != nil {
		o.logger.Error("record images failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	kit := result.BrandKit
	if err := o.jobs.FinishJob(ctx, job.ID, JobStatusCompleted, "", counters, &kit, result.Errors); err != nil {
		o.logger.Error("finish job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	metrics.IncJob(string(JobStatusCompleted))

	o.publish(Progress{
		JobID:        job.ID,
		TotalPages:   job.MaxPages,
		PagesCrawled: result.PagesVisited,
		ImagesFound:  len(result.Images),
		Status:       JobStatusCompleted,
	})
	if o.progress != nil {
		o.progress.Forget(job.ID)
	}
	o.announce(ctx, job.ID, JobStatusCompleted, counters)

	return result, nil
}

// traverse runs the bounded BFS. A failure on one page records an error and
// marks the URL visited so it is never retried; it does not abort the crawl.
func (o *Orchestrator) traverse(ctx context.Context, session Session, job Job, target string, state *crawlState) {
	for len(state.queue) > 0 && len(state.visited) < job.MaxPages {
		current := state.queue[0]
		state.queue = state.queue[1:]
		if _, seen := state.visited[current]; seen {
			continue
		}
		state.visited[current] = struct{}{}

		if o.robots != nil && !o.robots.Allowed(ctx, current) {
			o.logger.Debug("skipping disallowed url", zap.String("url", current))
			continue
		}

		start := o.clock.Now()
		page, err := session.Open(ctx, current, o.cfg.NavTimeout)
		if err != nil {
			state.errs = append(state.errs, fmt.Sprintf("%s: %v", current, err))
			metrics.IncPage("error")
			o.logger.Warn("page load failed",
				zap.String("job_id", job.ID),
				zap.String("url", current),
				zap.Error(err),
			)
			o.publishPageProgress(job, state, current)
			continue
		}
		metrics.IncPage("ok")
		o.logger.Debug("page loaded",
			zap.String("url", current),
			zap.Duration("dur", o.clock.Now().Sub(start)),
		)

		if state.firstPage {
			state.firstPage = false
			o.captureBrandKit(ctx, job, page, state)
		}

		o.collectImages(ctx, page, current, state)
		o.collectLinks(ctx, page, current, target, state)
		o.publishPageProgress(job, state, current)
	}
}

// captureBrandKit runs the font/CSS walk and screenshot on the first loaded
// page. Failures here leave brand-kit fields at their empty defaults.
func (o *Orchestrator) captureBrandKit(ctx context.Context, job Job, page Page, state *crawlState) {
	data, err := o.brand.ExtractBrandKit(ctx, page)
	if err != nil {
		o.logger.Warn("brand kit extraction failed", zap.String("job_id", job.ID), zap.Error(err))
	} else {
		state.kitData = data
	}

	shot, err := o.brand.CaptureAndAnalyzeScreenshot(ctx, page)
	if err != nil {
		o.logger.Warn("screenshot capture failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	if len(shot.Colors) > 0 {
		state.palettes = append(state.palettes, shot.Colors)
	}
	if o.blobs != nil && len(shot.Buffer) > 0 {
		key := fmt.Sprintf("%s/%s.png", o.cfg.ScreenshotPrefix, job.ID)
		uri, putErr := o.blobs.PutObject(ctx, key, "image/png", shot.Buffer)
		if putErr != nil {
			o.logger.Warn("store screenshot failed", zap.String("job_id", job.ID), zap.Error(putErr))
			return
		}
		state.screenshot = uri
	}
}

func (o *Orchestrator) collectImages(ctx context.Context, page Page, pageURL string, state *crawlState) {
	candidates, err := o.pages.ExtractImages(ctx, page, pageURL)
	if err != nil {
		state.errs = append(state.errs, fmt.Sprintf("%s: extract images: %v", pageURL, err))
		return
	}
	for _, candidate := range candidates {
		if _, dup := state.seenImages[candidate.URL]; dup {
			continue
		}
		state.seenImages[candidate.URL] = struct{}{}
		state.candidates = append(state.candidates, candidate)
	}
}

// collectLinks appends newly discovered same-domain links. Enqueue-time
// dedup against visited and queued guarantees each URL is queued at most
// once even under BFS fan-out.
func (o *Orchestrator) collectLinks(ctx context.Context, page Page, pageURL, target string, state *crawlState) {
	links, err := o.pages.ExtractLinks(ctx, page, pageURL)
	if err != nil {
		state.errs = append(state.errs, fmt.Sprintf("%s: extract links: %v", pageURL, err))
		return
	}
	for _, link := range links {
		if !SameDomain(target, link) || !IsPageURL(link) {
			continue
		}
		if _, seen := state.visited[link]; seen {
			continue
		}
		if _, pending := state.queued[link]; pending {
			continue
		}
		state.queued[link] = struct{}{}
		state.queue = append(state.queue, link)
	}
}

// assemble runs the asset pipeline and folds per-page signals into the final
// result.
func (o *Orchestrator) assemble(ctx context.Context, job Job, state *crawlState) CrawlResult {
	var images []AnalyzedImage
	if o.assets != nil && len(state.candidates) > 0 {
		images = o.assets.Process(ctx, job.ID, state.candidates)
	}

	kit := BrandKit{
		Colors:        o.brand.MergeColorPalettes(state.palettes),
		Fonts:         state.kitData.Fonts,
		CSSColors:     state.kitData.CSSColors,
		CSSVariables:  state.kitData.CSSVariables,
		ScreenshotURL: state.screenshot,
	}

	return CrawlResult{
		Images:       images,
		PagesVisited: len(state.visited),
		Errors:       state.errs,
		BrandKit:     kit,
	}
}

func (o *Orchestrator) publishPageProgress(job Job, state *crawlState, current string) {
	o.publish(Progress{
		JobID:        job.ID,
		TotalPages:   job.MaxPages,
		PagesCrawled: len(state.visited),
		ImagesFound:  len(state.candidates),
		CurrentURL:   current,
		Status:       JobStatusRunning,
	})
}

func (o *Orchestrator) publish(snapshot Progress) {
	if o.progress == nil {
		return
	}
	snapshot.UpdatedAt = o.clock.Now()
	o.progress.Publish(snapshot)
}

func (o *Orchestrator) finishFailed(ctx context.Context, jobID, errText string, counters JobCounters) {
	if err := o.jobs.FinishJob(ctx, jobID, JobStatusFailed, errText, counters, nil, nil); err != nil {
		o.logger.Error("persist failed status", zap.String("job_id", jobID), zap.Error(err))
	}
	metrics.IncJob(string(JobStatusFailed))
	o.publish(Progress{
		JobID:        jobID,
		PagesCrawled: counters.PagesVisited,
		ImagesFound:  counters.ImagesFound,
		Status:       JobStatusFailed,
		Error:        errText,
	})
	if o.progress != nil {
		o.progress.Forget(jobID)
	}
	o.announce(ctx, jobID, JobStatusFailed, counters)
}

func (o *Orchestrator) announce(ctx context.Context, jobID string, status JobStatus, counters JobCounters) {
	if o.publisher == nil || o.cfg.CompletionTopic == "" {
		return
	}
	payload := map[string]any{
		"job_id":        jobID,
		"status":        string(status),
		"pages_visited": counters.PagesVisited,
		"images_found":  counters.ImagesFound,
		"finished_at":   o.clock.Now().Format(time.RFC3339),
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.CompletionTopic, payload); err != nil {
		o.logger.Warn("publish completion event failed", zap.String("job_id", jobID), zap.Error(err))
	}
}
