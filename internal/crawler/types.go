// Package crawler defines core types shared across subsystems.
package crawler

import (
	"time"
)

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the status is a final state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job represents the metadata persisted for each submitted crawl request.
type Job struct {
	ID           string     `json:"id"`
	TargetURL    string     `json:"target_url"`
	MaxPages     int        `json:"max_pages"`
	Status       JobStatus  `json:"status"`
	PagesVisited int        `json:"pages_visited"`
	ImagesFound  int        `json:"images_found"`
	ErrorText    string     `json:"error_text,omitempty"`
	Errors       []string   `json:"errors,omitempty"`
	BrandKit     *BrandKit  `json:"brand_kit,omitempty"`
	Submitted    time.Time  `json:"submitted_at"`
	Started      *time.Time `json:"started_at,omitempty"`
	Finished     *time.Time `json:"finished_at,omitempty"`
}

// JobCounters tracks the aggregate counts reported at terminal state.
type JobCounters struct {
	PagesVisited int `json:"pages_visited"`
	ImagesFound  int `json:"images_found"`
}

// Progress is a point-in-time snapshot of a running crawl. It is a liveness
// signal for polling clients, not a source of truth; each publish replaces
// the previous snapshot wholesale.
type Progress struct {
	JobID        string    `json:"job_id"`
	TotalPages   int       `json:"total_pages"`
	PagesCrawled int       `json:"pages_crawled"`
	ImagesFound  int       `json:"images_found"`
	CurrentURL   string    `json:"current_url,omitempty"`
	Status       JobStatus `json:"status"`
	Error        string    `json:"error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ImageCandidate is one discovered image reference before quality analysis.
// URL is the normalized origin URL and is unique within a crawl; the first
// occurrence wins and later duplicates are dropped.
type ImageCandidate struct {
	URL        string   `json:"url"`
	PageURL    string   `json:"page_url"`
	Alt        string   `json:"alt,omitempty"`
	Title      string   `json:"title,omitempty"`
	AriaLabel  string   `json:"aria_label,omitempty"`
	Figcaption string   `json:"figcaption,omitempty"`
	NearbyText string   `json:"nearby_text,omitempty"`
	Width      int      `json:"width,omitempty"`
	Height     int      `json:"height,omitempty"`
	Labels     []string `json:"labels,omitempty"`
}

// HasDescription reports whether alt, title, or figcaption carries text.
func (c ImageCandidate) HasDescription() bool {
	return c.Alt != "" || c.Title != "" || c.Figcaption != ""
}

// AnalyzedImage is an ImageCandidate plus byte-level quality results.
// StoredURL is nil when artifact storage failed for this one image.
type AnalyzedImage struct {
	ImageCandidate
	IsBlurry       bool        `json:"is_blurry"`
	BlurScore      float64     `json:"blur_score"`
	Colors         []ColorInfo `json:"colors,omitempty"`
	HasDescription bool        `json:"has_description"`
	ContentType    string      `json:"content_type,omitempty"`
	StoredURL      *string     `json:"stored_url"`
}

// ColorInfo is one quantized color bucket. Percentage is relative frequency
// among sampled pixels, not a perceptual weight.
type ColorInfo struct {
	Hex        string `json:"hex"`
	RGB        [3]int `json:"rgb"`
	Percentage int    `json:"percentage"`
}

// FontUsage classifies where a font family was observed.
type FontUsage string

// Font usage buckets, ordered heading > body > other for upgrades.
const (
	FontUsageHeading FontUsage = "heading"
	FontUsageBody    FontUsage = "body"
	FontUsageOther   FontUsage = "other"
)

// FontInfo aggregates observations of one font family across a page walk.
type FontInfo struct {
	Family  string    `json:"family"`
	Weights []string  `json:"weights,omitempty"`
	Usage   FontUsage `json:"usage"`
	Count   int       `json:"count"`
}

// BrandKit is the merged site-wide summary built during a crawl. Fonts and
// CSS data come from the first successfully loaded page; colors are merged
// across every screenshot taken.
type BrandKit struct {
	Colors        []ColorInfo       `json:"colors,omitempty"`
	Fonts         []FontInfo        `json:"fonts,omitempty"`
	CSSColors     []string          `json:"css_colors,omitempty"`
	CSSVariables  map[string]string `json:"css_variables,omitempty"`
	ScreenshotURL string            `json:"screenshot_url,omitempty"`
}

// BrandKitData is the font/CSS portion extracted from a single page.
type BrandKitData struct {
	Fonts        []FontInfo
	CSSColors    []string
	CSSVariables map[string]string
}

// Screenshot pairs a captured viewport image with its extracted palette.
type Screenshot struct {
	Buffer []byte
	Colors []ColorInfo
}

// CrawlResult is returned by the orchestrator when a crawl ends.
type CrawlResult struct {
	Images       []AnalyzedImage `json:"images"`
	PagesVisited int             `json:"pages_visited"`
	Errors       []string        `json:"errors,omitempty"`
	BrandKit     BrandKit        `json:"brand_kit"`
}

// FetchResult is the outcome of a byte-level download.
type FetchResult struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	TargetURL string
	MaxPages  int
	Submitted int64
}
