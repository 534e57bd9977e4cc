// Package app builds the crawl's long-lived services from configuration and
// owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/pension-crawler/internal/api"
	"github.com/JakeFAU/pension-crawler/internal/clock/system"
	"github.com/JakeFAU/pension-crawler/internal/config"
	"github.com/JakeFAU/pension-crawler/internal/crawler"
	"github.com/JakeFAU/pension-crawler/internal/download"
	"github.com/JakeFAU/pension-crawler/internal/export"
	collyfetcher "github.com/JakeFAU/pension-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/pension-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/pension-crawler/internal/headless/detector"
	"github.com/JakeFAU/pension-crawler/internal/hash/sha1"
	"github.com/JakeFAU/pension-crawler/internal/id/uuid"
	"github.com/JakeFAU/pension-crawler/internal/metrics"
	"github.com/JakeFAU/pension-crawler/internal/pdf"
	"github.com/JakeFAU/pension-crawler/internal/pipeline"
	"github.com/JakeFAU/pension-crawler/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/pension-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/pension-crawler/internal/search"
	"github.com/JakeFAU/pension-crawler/internal/storage/gcs"
	"github.com/JakeFAU/pension-crawler/internal/storage/local"
	"github.com/JakeFAU/pension-crawler/internal/storage/postgres"
)

// App holds every service a crawl run needs.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	runID        string
	started      time.Time
	orchestrator *pipeline.Orchestrator
	writer       *export.Writer
	status       *api.Server
	closers      []func() error
}

// New wires services from cfg. Anything that fails here is a configuration
// or startup error and no request has been sent yet.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	clock := system.New()
	ids := uuid.New()
	runID, err := ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	a := &App{
		cfg:     cfg,
		runID:   runID,
		started: clock.Now().UTC(),
		logger:  logger.With(zap.String("run_id", runID), zap.String("provider", cfg.Provider)),
	}
	if err := a.build(ctx, clock, ids); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, clock crawler.Clock, ids crawler.IDGenerator) error {
	cfg := a.cfg
	kind := cfg.Kind()

	strategy, err := search.New(kind, cfg.SearchSettings())
	if err != nil {
		return fmt.Errorf("init provider: %w", err)
	}

	var blocklist *crawler.Blocklist
	if cfg.Crawler.BlacklistFile != "" {
		blocklist, err = crawler.LoadBlocklist(cfg.Crawler.BlacklistFile)
		if err != nil {
			return err
		}
		a.logger.Info("loaded blacklist", zap.Int("patterns", blocklist.Len()))
	}
	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: cfg.Crawler.RPS, DefaultBurst: cfg.Crawler.Burst})

	httpFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	},
		collyfetcher.WithLimiter(limiter),
		collyfetcher.WithBlocklist(blocklist),
		collyfetcher.WithRetry(crawler.NewRetryPolicy(cfg.Crawler.RetryTimes)),
	)

	var pageFetcher crawler.Fetcher = httpFetcher
	if kind == search.KindSites && (cfg.Sites.Headless || cfg.Sites.Promote) {
		hf, err := headlessfetcher.New(headlessfetcher.Config{
			MaxParallel:       cfg.Crawler.Concurrency,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: cfg.FetchTimeout(),
		}, headlessfetcher.WithLimiter(limiter), headlessfetcher.WithBlocklist(blocklist))
		if err != nil {
			return fmt.Errorf("init headless fetcher: %w", err)
		}
		a.closers = append(a.closers, func() error { hf.Close(); return nil })
		pageFetcher = hf
		if !cfg.Sites.Headless {
			pf, err := detector.NewFetcher(httpFetcher, hf, detector.NewHeuristic(0), a.logger.Named("promote"))
			if err != nil {
				return err
			}
			pageFetcher = pf
		}
	}

	deps := pipeline.Deps{
		Strategy: strategy,
		Fetcher:  pageFetcher,
		Clock:    clock,
		Logger:   a.logger.Named("pipeline"),
	}

	if cfg.Download.Enabled {
		if err := a.buildDownloads(ctx, &deps, httpFetcher); err != nil {
			return err
		}
	}

	mode := export.ModeSearch
	if kind == search.KindSites {
		mode = export.ModeSites
	}
	writer, err := export.Create(cfg.Output.Dir, cfg.Provider, a.started,
		export.NewConfig(mode, cfg.Download.Enabled, cfg.Export.Metadata))
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	a.writer = writer
	a.closers = append(a.closers, writer.Close)
	deps.Export = writer
	a.logger.Info("exporting results", zap.String("path", writer.Path()))

	if cfg.Database.DSN != "" {
		store, err := postgres.NewResultStore(ctx, postgres.ResultStoreConfig{
			DSN:   cfg.Database.DSN,
			Table: cfg.Database.Table,
			RunID: a.runID,
		}, ids)
		if err != nil {
			return fmt.Errorf("init result store: %w", err)
		}
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("init result store: %w", err)
		}
		deps.Sinks = append(deps.Sinks, store)
	}

	if cfg.PubSub.Topic != "" {
		pub, err := pubsubpublisher.Dial(ctx, cfg.PubSub.ProjectID, cfg.PubSub.Topic,
			map[string]string{"run_id": a.runID, "provider": cfg.Provider})
		if err != nil {
			return fmt.Errorf("init pubsub: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		deps.Sinks = append(deps.Sinks, pipeline.Notifier{Publisher: pub, Topic: cfg.PubSub.Topic})
	}

	orchestrator, err := pipeline.New(pipeline.Config{
		Concurrency: cfg.Crawler.Concurrency,
		EmitEmpty:   cfg.Sites.EmitEmpty,
	}, deps)
	if err != nil {
		return err
	}
	a.orchestrator = orchestrator

	if cfg.Server.Port > 0 {
		a.status = api.NewServer(orchestrator, api.RunInfo{
			ID:       a.runID,
			Provider: cfg.Provider,
			Started:  a.started,
			Output:   writer.Path(),
		}, clock, a.logger.Named("api"))
	}
	return nil
}

func (a *App) buildDownloads(ctx context.Context, deps *pipeline.Deps, fetcher crawler.Fetcher) error {
	cfg := a.cfg
	store, err := local.New(local.Config{BaseDir: cfg.Download.Dir})
	if err != nil {
		return fmt.Errorf("init download store: %w", err)
	}
	index, err := export.BuildIndex(store.Root())
	if err != nil {
		return err
	}
	a.logger.Info("indexed existing downloads", zap.Int("files", index.Len()), zap.String("path", store.Root()))

	opts := []download.Option{download.WithIndex(index)}
	if cfg.Download.MirrorBucket != "" {
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		mirror, err := gcs.New(client, gcs.Config{Bucket: cfg.Download.MirrorBucket, Prefix: cfg.Provider})
		if err != nil {
			return fmt.Errorf("init gcs mirror: %w", err)
		}
		opts = append(opts, download.WithMirror(mirror))
	}
	downloader, err := download.New(download.Config{Concurrency: cfg.Download.Concurrency},
		fetcher, store, sha1.New(), a.logger.Named("download"), opts...)
	if err != nil {
		return fmt.Errorf("init downloader: %w", err)
	}
	deps.Downloader = downloader
	deps.Index = index

	if !cfg.PDF.Enabled {
		return nil
	}
	extractors := []pdf.Extractor{pdf.TextExtractor{}}
	if cfg.PDF.OCR {
		ocr, err := pdf.NewOCRExtractor(cfg.PDF.TempDir)
		if err != nil {
			return fmt.Errorf("pdf.ocr: %w", err)
		}
		extractors = append(extractors, ocr)
	}
	proc := pdf.NewProcessor(pdf.Config{TargetPages: cfg.PDF.TargetPages, TempDir: cfg.PDF.TempDir},
		a.logger.Named("pdf"), pdf.WithExtractors(extractors...))
	pool := pdf.NewPool(proc, cfg.PDF.Workers, cfg.PDF.Workers*4)
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	deps.PDF = pool
	return nil
}

// RunID identifies this run in logs, the result table and notifications.
func (a *App) RunID() string { return a.runID }

// OutputPath is the CSV being written.
func (a *App) OutputPath() string {
	if a.writer == nil {
		return ""
	}
	return a.writer.Path()
}

// Run crawls rows, serving status while it runs when a port is configured.
// Rows are validated first; a rejected input removes the empty export file.
func (a *App) Run(ctx context.Context, rows []crawler.InputRow) (pipeline.Stats, error) {
	if a.status != nil {
		statusCtx, stop := context.WithCancel(ctx)
		defer stop()
		go func() {
			addr := ":" + strconv.Itoa(a.cfg.Server.Port)
			if err := a.status.Serve(statusCtx, addr); err != nil {
				a.logger.Error("status server failed", zap.Error(err))
			}
		}()
		defer a.status.MarkFinished()
	}
	if _, err := a.orchestrator.Dispatch(rows); err != nil {
		if a.writer != nil {
			if derr := a.writer.Discard(); derr != nil {
				a.logger.Warn("discard export file", zap.Error(derr))
			}
		}
		return pipeline.Stats{}, fmt.Errorf("dispatch rows: %w", err)
	}
	a.logger.Info("crawl starting", zap.Int("rows", len(rows)))
	stats, err := a.orchestrator.Run(ctx, rows)
	if err != nil {
		return stats, fmt.Errorf("crawl: %w", err)
	}
	return stats, nil
}

// Close releases services in reverse order of creation. The export file is
// flushed even when the run failed.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown errors", zap.Error(err))
		return err
	}
	return nil
}
