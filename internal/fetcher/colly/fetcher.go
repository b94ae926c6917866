// Package colly downloads raw asset bytes over plain HTTP, outside the
// rendering session. Image fetches do not need JavaScript and should not
// occupy the browser tab.
package colly

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/brandloom/brandkit-crawler/internal/crawler"
)

// Config controls the HTTP collector.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBodySize caps a single download. Zero means colly's default.
	MaxBodySize int
}

// Fetcher implements crawler.ByteFetcher on top of a shared collector that is
// cloned per request, so per-request callbacks never leak across calls.
type Fetcher struct {
	base   *colly.Collector
	logger *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []colly.CollectorOption{
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	if cfg.MaxBodySize > 0 {
		opts = append(opts, colly.MaxBodySize(cfg.MaxBodySize))
	}
	base := colly.NewCollector(opts...)
	base.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{base: base, logger: logger}
}

// Fetch downloads rawURL and returns status, content type, and body. A
// transport-level failure returns an error; an HTTP error status returns a
// result with that status and no error, leaving the policy to the caller.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (crawler.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return crawler.FetchResult{}, err
	}

	collector := f.base.Clone()
	collector.Context = ctx

	var result crawler.FetchResult
	var fetchErr error

	collector.OnResponse(func(r *colly.Response) {
		result = crawler.FetchResult{
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        r.Body,
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			result = crawler.FetchResult{
				StatusCode:  r.StatusCode,
				ContentType: r.Headers.Get("Content-Type"),
				Body:        r.Body,
			}
			return
		}
		fetchErr = err
	})

	if err := collector.Visit(rawURL); err != nil {
		return crawler.FetchResult{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	collector.Wait()

	if fetchErr != nil {
		return crawler.FetchResult{}, fmt.Errorf("fetch %s: %w", rawURL, fetchErr)
	}
	if result.StatusCode == 0 {
		return crawler.FetchResult{}, fmt.Errorf("fetch %s: no response", rawURL)
	}
	f.logger.Debug("fetched bytes",
		zap.String("url", rawURL),
		zap.Int("status", result.StatusCode),
		zap.Int("bytes", len(result.Body)),
	)
	return result, nil
}
