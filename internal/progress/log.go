package progress

import (
	"go.uber.org/zap"

	"github.com/brandloom/brandkit-crawler/internal/crawler"
)

// LogSink writes each snapshot to the structured log. Useful in development
// and as a secondary sink behind a Fanout.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Publish logs the snapshot at debug, terminal states at info.
func (s *LogSink) Publish(snapshot crawler.Progress) {
	fields := []zap.Field{
		zap.String("job_id", snapshot.JobID),
		zap.String("status", string(snapshot.Status)),
		zap.Int("pages_crawled", snapshot.PagesCrawled),
		zap.Int("images_found", snapshot.ImagesFound),
	}
	if snapshot.CurrentURL != "" {
		fields = append(fields, zap.String("current_url", snapshot.CurrentURL))
	}
	if snapshot.Error != "" {
		fields = append(fields, zap.String("error", snapshot.Error))
	}
	if snapshot.Status.IsTerminal() {
		s.logger.Info("crawl finished", fields...)
		return
	}
	s.logger.Debug("crawl progress", fields...)
}

// Forget is a no-op; logs are append-only.
func (s *LogSink) Forget(string) {}

// Fanout publishes every snapshot to each sink in order.
type Fanout []crawler.ProgressSink

// Publish forwards the snapshot to every sink.
func (f Fanout) Publish(snapshot crawler.Progress) {
	for _, sink := range f {
		sink.Publish(snapshot)
	}
}

// Forget forwards the removal to every sink.
func (f Fanout) Forget(jobID string) {
	for _, sink := range f {
		sink.Forget(jobID)
	}
}
