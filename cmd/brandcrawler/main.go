// Package main wires together the brand-kit crawler service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/brandloom/brandkit-crawler/internal/api"
	"github.com/brandloom/brandkit-crawler/internal/assets"
	"github.com/brandloom/brandkit-crawler/internal/brandkit"
	"github.com/brandloom/brandkit-crawler/internal/clock"
	"github.com/brandloom/brandkit-crawler/internal/config"
	"github.com/brandloom/brandkit-crawler/internal/crawler"
	"github.com/brandloom/brandkit-crawler/internal/dispatcher"
	"github.com/brandloom/brandkit-crawler/internal/extract"
	collyfetcher "github.com/brandloom/brandkit-crawler/internal/fetcher/colly"
	"github.com/brandloom/brandkit-crawler/internal/id/uuid"
	"github.com/brandloom/brandkit-crawler/internal/imaging"
	"github.com/brandloom/brandkit-crawler/internal/logging"
	"github.com/brandloom/brandkit-crawler/internal/progress"
	pubsubpublisher "github.com/brandloom/brandkit-crawler/internal/publisher/pubsub"
	queuememory "github.com/brandloom/brandkit-crawler/internal/queue/memory"
	"github.com/brandloom/brandkit-crawler/internal/render"
	gcsstorage "github.com/brandloom/brandkit-crawler/internal/storage/gcs"
	localstorage "github.com/brandloom/brandkit-crawler/internal/storage/local"
	memorystorage "github.com/brandloom/brandkit-crawler/internal/storage/memory"
	"github.com/brandloom/brandkit-crawler/internal/storage/postgres"
	"github.com/brandloom/brandkit-crawler/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blobStore, cleanupBlobs, err := buildBlobStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("blob store init failed", zap.Error(err))
	}
	defer cleanupBlobs()

	jobStore, cleanupJobs, err := buildJobStore(ctx, cfg)
	if err != nil {
		logger.Fatal("job store init failed", zap.Error(err))
	}
	defer cleanupJobs()

	var publisher crawler.Publisher
	if cfg.PubSub.ProjectID != "" {
		p, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID, logger.Named("pubsub"))
		if err != nil {
			logger.Fatal("pubsub init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := p.Close(); closeErr != nil {
				logger.Warn("pubsub close failed", zap.Error(closeErr))
			}
		}()
		publisher = p
	}

	sysClock := clock.System{}
	idGen := uuid.NewUUIDGenerator()
	queue := queuememory.NewQueue(cfg.Crawler.QueueDepth)
	defer queue.Close()

	browser := render.NewBrowser(render.Config{
		UserAgent:      cfg.Crawler.UserAgent,
		ViewportWidth:  cfg.Render.ViewportWidth,
		ViewportHeight: cfg.Render.ViewportHeight,
		OpTimeout:      cfg.OpTimeout(),
	}, logger.Named("render"))

	analyzer := imaging.NewAnalyzer(imaging.Options{
		BlurThreshold: cfg.Imaging.BlurThreshold,
		VarianceScale: cfg.Imaging.VarianceScale,
		AnalyzeColors: cfg.Imaging.AnalyzeColors,
	}, logger.Named("imaging"))

	pages := extract.New(logger.Named("extract"))
	brand := brandkit.New(analyzer, brandkit.DefaultOptions(), logger.Named("brandkit"))

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	}, logger.Named("fetcher"))

	pipeline := assets.New(fetcher, analyzer, blobStore, assets.Config{
		Concurrency: cfg.Assets.Concurrency,
		PerHostRPS:  cfg.Assets.PerHostRPS,
		Burst:       cfg.Assets.Burst,
		Prefix:      cfg.Assets.Prefix,
	}, logger.Named("assets"))

	robots := crawler.NewRobotsEnforcer(cfg.Crawler.RespectRobots, cfg.Crawler.UserAgent, logger.Named("robots"))

	table := progress.NewTable(cfg.Progress.MaxEntries)
	sinks := progress.Fanout{table, progress.NewLogSink(logger.Named("progress"))}

	orchestrator := crawler.NewOrchestrator(
		browser,
		pages,
		brand,
		pipeline,
		jobStore,
		sinks,
		robots,
		blobStore,
		publisher,
		sysClock,
		crawler.Config{
			NavTimeout:       cfg.NavTimeout(),
			ScreenshotPrefix: cfg.Storage.ScreenshotPrefix,
			CompletionTopic:  cfg.PubSub.TopicName,
		},
		logger.Named("crawler"),
	)

	var workers []*worker.Worker
	for i := 0; i < cfg.Crawler.Workers; i++ {
		workers = append(workers, worker.New(
			queue,
			jobStore,
			orchestrator,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	apiServer := api.NewServer(jobStore, dispatch, table, idGen, sysClock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", cfg.Crawler.Workers))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// buildBlobStore selects the configured blob backend. A "none" backend returns
// a nil store; downstream components treat nil as analyze-only mode.
func buildBlobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawler.BlobStore, func(), error) {
	noop := func() {}
	switch cfg.Storage.Backend {
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	case "gcs":
		store, err := gcsstorage.New(ctx, cfg.Storage.GCSBucket, logger.Named("gcs"))
		if err != nil {
			return nil, noop, err
		}
		cleanup := func() {
			if err := store.Close(); err != nil {
				logger.Warn("gcs close failed", zap.Error(err))
			}
		}
		return store, cleanup, nil
	case "none":
		return nil, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// buildJobStore returns the Postgres store when a DSN is configured, the
// in-memory store otherwise.
func buildJobStore(ctx context.Context, cfg config.Config) (crawler.JobStore, func(), error) {
	noop := func() {}
	if cfg.DB.DSN == "" {
		return memorystorage.NewJobStore(), noop, nil
	}
	store, err := postgres.NewJobStore(ctx, postgres.JobStoreConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxConns),
		MinConns: int32(cfg.DB.MinConns),
	})
	if err != nil {
		return nil, noop, err
	}
	return store, store.Close, nil
}
