// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal    *prometheus.CounterVec
	crawlerJobsTotal     *prometheus.CounterVec
	crawlerImagesTotal   prometheus.Counter
	crawlerImageFailures prometheus.Counter
	crawlerBlurryImages  prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brandcrawler_pages_total",
				Help: "Total number of page navigations, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brandcrawler_jobs_total",
				Help: "Total number of crawl jobs reaching a terminal state, labeled by status.",
			},
			[]string{"status"},
		)

		crawlerImagesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "brandcrawler_images_analyzed_total",
			Help: "Total number of images run through the quality analyzer.",
		})

		crawlerImageFailures = promauto.NewCounter(prometheus.CounterOpts{
			Name: "brandcrawler_image_failures_total",
			Help: "Total number of images whose fetch, analysis, or storage failed.",
		})

		crawlerBlurryImages = promauto.NewCounter(prometheus.CounterOpts{
			Name: "brandcrawler_images_blurry_total",
			Help: "Total number of images classified as blurry.",
		})
	})
}

// IncPage records one page navigation outcome ("ok" or "error").
func IncPage(outcome string) {
	Init()
	crawlerPagesTotal.WithLabelValues(outcome).Inc()
}

// IncJob records one terminal job status.
func IncJob(status string) {
	Init()
	crawlerJobsTotal.WithLabelValues(status).Inc()
}

// IncImageAnalyzed records one analyzed image, flagging blurry results.
func IncImageAnalyzed(blurry bool) {
	Init()
	crawlerImagesTotal.Inc()
	if blurry {
		crawlerBlurryImages.Inc()
	}
}

// IncImageFailure records one failed image pipeline run.
func IncImageFailure() {
	Init()
	crawlerImageFailures.Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}
