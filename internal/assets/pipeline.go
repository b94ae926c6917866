// Package assets runs the per-image stage of a crawl: download the bytes,
// analyze quality and colors, and persist the artifact. One image's failure
// never affects another's.
package assets

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/brandloom/brandkit-crawler/internal/crawler"
	"github.com/brandloom/brandkit-crawler/internal/imaging"
	"github.com/brandloom/brandkit-crawler/internal/metrics"
)

// Config controls pipeline parallelism and politeness.
type Config struct {
	// Concurrency is the number of images processed in parallel.
	Concurrency int
	// PerHostRPS limits request rate against any single host.
	PerHostRPS float64
	// Burst is the per-host limiter burst size.
	Burst int
	// Prefix is the blob key prefix for stored images.
	Prefix string
}

var extByContentType = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
}

// Pipeline implements crawler.AssetPipeline.
type Pipeline struct {
	fetcher  crawler.ByteFetcher
	analyzer *imaging.Analyzer
	blobs    crawler.BlobStore
	cfg      Config
	logger   *zap.Logger

	limiters sync.Map // host -> *rate.Limiter
}

// New wires the pipeline. blobs may be nil; images are then analyzed but not
// persisted and every StoredURL stays nil.
func New(fetcher crawler.ByteFetcher, analyzer *imaging.Analyzer, blobs crawler.BlobStore, cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.PerHostRPS <= 0 {
		cfg.PerHostRPS = 4
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 2
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "images"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		fetcher:  fetcher,
		analyzer: analyzer,
		blobs:    blobs,
		cfg:      cfg,
		logger:   logger,
	}
}

// Process analyzes every candidate and returns results in input order. It
// never returns an error; a failed image carries neutral quality, no colors,
// and a nil StoredURL.
func (p *Pipeline) Process(ctx context.Context, jobID string, candidates []crawler.ImageCandidate) []crawler.AnalyzedImage {
	results := make([]crawler.AnalyzedImage, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, candidate := range candidates {
		g.Go(func() error {
			results[i] = p.processOne(gctx, jobID, candidate)
			return nil
		})
	}
	g.Wait()
	return results
}

func (p *Pipeline) processOne(ctx context.Context, jobID string, candidate crawler.ImageCandidate) crawler.AnalyzedImage {
	result := crawler.AnalyzedImage{
		ImageCandidate: candidate,
		BlurScore:      50,
		HasDescription: candidate.HasDescription(),
	}

	if err := p.waitHostBudget(ctx, candidate.URL); err != nil {
		metrics.IncImageFailure()
		return result
	}

	fetched, err := p.fetcher.Fetch(ctx, candidate.URL)
	if err != nil || fetched.StatusCode >= 400 || len(fetched.Body) == 0 {
		if err == nil {
			err = fmt.Errorf("status %d with %d bytes", fetched.StatusCode, len(fetched.Body))
		}
		p.logger.Debug("image fetch failed",
			zap.String("job_id", jobID),
			zap.String("url", candidate.URL),
			zap.Error(err),
		)
		metrics.IncImageFailure()
		return result
	}
	result.ContentType = fetched.ContentType

	analysis := p.analyzer.Analyze(fetched.Body)
	result.IsBlurry = analysis.Quality.IsBlurry
	result.BlurScore = analysis.Quality.BlurScore
	result.Colors = analysis.Colors
	if analysis.Width > 0 {
		result.Width = analysis.Width
		result.Height = analysis.Height
	}
	metrics.IncImageAnalyzed(result.IsBlurry)

	if p.blobs != nil {
		key := p.objectKey(jobID, candidate.URL, fetched.ContentType)
		uri, putErr := p.blobs.PutObject(ctx, key, fetched.ContentType, fetched.Body)
		if putErr != nil {
			p.logger.Warn("store image failed",
				zap.String("job_id", jobID),
				zap.String("url", candidate.URL),
				zap.Error(putErr),
			)
			metrics.IncImageFailure()
			return result
		}
		result.StoredURL = &uri
	}
	return result
}

// waitHostBudget blocks until the candidate's host has request budget. URLs
// without a parsable host share one limiter.
func (p *Pipeline) waitHostBudget(ctx context.Context, rawURL string) error {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Hostname()
	}
	limiter := p.limiterFor(host)
	return limiter.Wait(ctx)
}

func (p *Pipeline) limiterFor(host string) *rate.Limiter {
	if existing, ok := p.limiters.Load(host); ok {
		return existing.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(rate.Limit(p.cfg.PerHostRPS), p.cfg.Burst)
	actual, _ := p.limiters.LoadOrStore(host, limiter)
	return actual.(*rate.Limiter)
}

// objectKey derives a stable blob key from the image URL so re-running a job
// overwrites rather than accumulates.
func (p *Pipeline) objectKey(jobID, rawURL, contentType string) string {
	sum := sha1.Sum([]byte(rawURL))
	mediaType, _, _ := strings.Cut(contentType, ";")
	ext := extByContentType[strings.ToLower(strings.TrimSpace(mediaType))]
	if ext == "" {
		if u, err := url.Parse(rawURL); err == nil {
			ext = strings.ToLower(path.Ext(u.Path))
		}
	}
	if ext == "" {
		ext = ".img"
	}
	return fmt.Sprintf("%s/%s/%s%s", p.cfg.Prefix, jobID, hex.EncodeToString(sum[:]), ext)
}
