// Package render adapts headless Chrome (via chromedp) to the crawler's
// Browser/Session/Page capability interfaces. The core never manages browser
// installation or multi-tab parallelism; one session drives one tab for the
// whole crawl so cookie and session state stay consistent.
package render

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/brandloom/brandkit-crawler/internal/crawler"
)

// Config controls the chromedp browser.
type Config struct {
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	// OpTimeout bounds evaluate/screenshot calls on an open page.
	OpTimeout time.Duration
}

// Browser implements crawler.Browser using a chromedp exec allocator.
type Browser struct {
	cfg    Config
	logger *zap.Logger
}

// NewBrowser builds a Browser factory. The underlying Chrome process is not
// started here; each NewSession launches and owns its own.
func NewBrowser(cfg Config, logger *zap.Logger) *Browser {
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = 1280
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = 800
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{cfg: cfg, logger: logger}
}

// NewSession launches a headless browser and warms it up. The caller must
// Close the session on every exit path.
func (b *Browser) NewSession(ctx context.Context) (crawler.Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(b.cfg.ViewportWidth, b.cfg.ViewportHeight),
	)
	if b.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Session{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		cfg:           b.cfg,
		logger:        b.logger,
	}, nil
}

// Session is a live browser with a single reusable tab.
type Session struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	cfg           Config
	logger        *zap.Logger
}

// Open navigates the session's tab to rawURL, waiting for the body to be
// ready, bounded by timeout.
func (s *Session) Open(ctx context.Context, rawURL string, timeout time.Duration) (crawler.Page, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	navCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	var location string
	tasks := chromedp.Tasks{
		emulation.SetDeviceMetricsOverride(int64(s.cfg.ViewportWidth), int64(s.cfg.ViewportHeight), 1, false),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&location),
	}
	if err := chromedp.Run(navCtx, tasks); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	if location == "" {
		location = rawURL
	}
	return &page{session: s, location: location}, nil
}

// Close tears down the browser and allocator contexts.
func (s *Session) Close(context.Context) error {
	s.browserCancel()
	s.allocCancel()
	return nil
}

type page struct {
	session  *Session
	location string
}

// Evaluate runs script in the page and unmarshals its JSON result into out.
func (p *page) Evaluate(ctx context.Context, script string, out any) error {
	opCtx, cancel, stop := p.opContext(ctx)
	defer cancel()
	defer stop()
	if err := chromedp.Run(opCtx, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

// Screenshot captures the visible viewport only; a full-page capture would
// skew color sampling toward below-the-fold content and cost memory.
func (p *page) Screenshot(ctx context.Context) ([]byte, error) {
	opCtx, cancel, stop := p.opContext(ctx)
	defer cancel()
	defer stop()
	var buf []byte
	if err := chromedp.Run(opCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// HTML returns the rendered document markup.
func (p *page) HTML(ctx context.Context) (string, error) {
	opCtx, cancel, stop := p.opContext(ctx)
	defer cancel()
	defer stop()
	var html string
	if err := chromedp.Run(opCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("outer html: %w", err)
	}
	return html, nil
}

func (p *page) URL() string {
	return p.location
}

func (p *page) opContext(ctx context.Context) (context.Context, context.CancelFunc, func()) {
	opCtx, cancel := context.WithTimeout(p.session.browserCtx, p.session.cfg.OpTimeout)
	stop := forwardCancel(ctx, cancel)
	return opCtx, cancel, stop
}

// forwardCancel propagates cancellation from the caller's context into a
// chromedp-derived context, which must chain from the browser context.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
