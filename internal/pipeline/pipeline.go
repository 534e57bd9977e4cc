// Package pipeline drives rows through request dispatch, parsing, downloads,
// PDF post-processing and export.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/pension-crawler/internal/crawler"
	"github.com/JakeFAU/pension-crawler/internal/dispatcher"
	"github.com/JakeFAU/pension-crawler/internal/download"
	"github.com/JakeFAU/pension-crawler/internal/metrics"
	"github.com/JakeFAU/pension-crawler/internal/pdf"
	"github.com/JakeFAU/pension-crawler/internal/queue/memory"
	"github.com/JakeFAU/pension-crawler/internal/search"
)

// Downloader starts an asynchronous file download.
type Downloader interface {
	Start(ctx context.Context, rawURL string) <-chan download.Result
}

// PDFSubmitter queues a file for post-processing.
type PDFSubmitter interface {
	Submit(ctx context.Context, path string) <-chan pdf.Outcome
}

// DownloadIndex flags files that existed before the run.
type DownloadIndex interface {
	IsAlreadyDownloaded(item crawler.ResultItem) bool
}

// Config tunes the orchestrator.
type Config struct {
	Concurrency int
	QueueSize   int
	EmitEmpty   bool
}

// Deps are the orchestrator's collaborators. Downloader, PDF, Index and
// Sinks are optional.
type Deps struct {
	Strategy   search.Strategy
	Fetcher    crawler.Fetcher
	Downloader Downloader
	PDF        PDFSubmitter
	Index      DownloadIndex
	// Export is the primary sink; a failure aborts the run.
	Export crawler.ItemSink
	// Sinks receive every exported item; failures are logged.
	Sinks  []crawler.ItemSink
	Clock  crawler.Clock
	Logger *zap.Logger
}

// Orchestrator runs one crawl.
type Orchestrator struct {
	cfg      Config
	deps     Deps
	provider string
	logger   *zap.Logger
	stats    counters
	inflight sync.WaitGroup
}

// New validates deps and builds an Orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Strategy == nil {
		return nil, errors.New("pipeline: strategy is required")
	}
	if deps.Fetcher == nil {
		return nil, errors.New("pipeline: fetcher is required")
	}
	if deps.Export == nil {
		return nil, errors.New("pipeline: export sink is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("pipeline: clock is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Concurrency
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		provider: string(deps.Strategy.Kind()),
		logger:   logger.With(zap.String("provider", string(deps.Strategy.Kind()))),
	}, nil
}

// Stats returns live counters; safe to call during Run.
func (o *Orchestrator) Stats() Stats {
	return o.stats.snapshot()
}

// Dispatch builds the first request of every row. All rows are validated
// before any request is returned.
func (o *Orchestrator) Dispatch(rows []crawler.InputRow) ([]search.Request, error) {
	reqs := make([]search.Request, 0, len(rows))
	var errs []error
	for _, row := range rows {
		req, err := o.deps.Strategy.FirstRequest(row)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		reqs = append(reqs, req)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return reqs, nil
}

// OnResponse parses resp into items and returns the row's continuation, if
// any. A malformed body abandons the row: no items and no continuation.
func (o *Orchestrator) OnResponse(req search.Request, resp crawler.FetchResponse) ([]crawler.ResultItem, *search.Request) {
	logger := o.logger.With(zap.Int("row", req.Row.ID), zap.String("url", req.Fetch.URL))
	page, err := o.deps.Strategy.Parse(req, resp)
	if err != nil {
		logger.Warn("response not parsed; abandoning row", zap.Error(err))
		o.abandon()
		return nil, nil
	}
	if page.Skipped > 0 {
		logger.Debug("skipped result nodes", zap.Int("skipped", page.Skipped))
	}

	now := o.deps.Clock.Now().UTC()
	items := make([]crawler.ResultItem, 0, len(page.Hits))
	for _, hit := range page.Hits {
		item := crawler.ResultItem{
			Keyword:   firstNonEmpty(page.Keyword, req.Query),
			Total:     page.Total,
			URL:       hit.URL,
			Title:     hit.Title,
			Snippet:   hit.Snippet,
			Href:      hit.Href,
			Text:      hit.Text,
			Timestamp: now,
		}
		file := hit.URL
		if hit.Href != "" {
			file = hit.Href
		}
		item.FileURLs = []string{file}
		item.MergeRow(req.Row)
		items = append(items, item)
	}
	if len(items) == 0 && o.cfg.EmitEmpty && o.deps.Strategy.Kind() == search.KindSites {
		item := crawler.ResultItem{URL: firstNonEmpty(resp.URL, req.Fetch.URL), Timestamp: now}
		item.MergeRow(req.Row)
		items = append(items, item)
	}
	metrics.ObserveItems(o.provider, len(items))

	next, ok := o.deps.Strategy.NextRequest(req, page)
	if !ok {
		return items, nil
	}
	return items, &next
}

// Run crawls rows to completion and waits for every in-flight item. The
// first export failure cancels the run and is returned.
func (o *Orchestrator) Run(ctx context.Context, rows []crawler.InputRow) (Stats, error) {
	if _, err := o.Dispatch(rows); err != nil {
		return o.Stats(), fmt.Errorf("dispatch rows: %w", err)
	}
	o.stats.rows.Add(int64(len(rows)))

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	d := dispatcher.New(memory.NewQueue(o.cfg.QueueSize), o.cfg.Concurrency, func(ctx context.Context, item crawler.QueueItem) {
		o.crawlRow(ctx, cancel, item.Row)
	})
	feedErr := make(chan error, 1)
	go func() {
		feedErr <- d.Feed(ctx, rows)
	}()
	d.Run(ctx)
	o.inflight.Wait()

	stats := o.Stats()
	o.logger.Info("crawl finished",
		zap.Int64("rows", stats.Rows),
		zap.Int64("requests", stats.Requests),
		zap.Int64("items", stats.Items),
		zap.Int64("exported", stats.Exported),
		zap.Int64("abandoned", stats.RowsAbandoned),
	)
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return stats, cause
	}
	if err := <-feedErr; err != nil && ctx.Err() == nil {
		return stats, err
	}
	return stats, ctx.Err()
}

func (o *Orchestrator) crawlRow(ctx context.Context, abort context.CancelCauseFunc, row crawler.InputRow) {
	req, err := o.deps.Strategy.FirstRequest(row)
	if err != nil {
		o.logger.Warn("row rejected", zap.Int("row", row.ID), zap.String("label", row.Label()), zap.Error(err))
		o.abandon()
		return
	}
	for {
		if ctx.Err() != nil {
			return
		}
		o.stats.requests.Add(1)
		resp, err := o.deps.Fetcher.Fetch(ctx, req.Fetch)
		if err != nil {
			status := "error"
			if errors.Is(err, crawler.ErrBlocked) {
				status = "blocked"
			}
			metrics.ObserveRequest(o.provider, status)
			if ctx.Err() == nil {
				o.logger.Warn("request failed; abandoning row",
					zap.Int("row", row.ID),
					zap.String("label", row.Label()),
					zap.String("url", req.Fetch.URL),
					zap.Error(err),
				)
				o.abandon()
			}
			return
		}
		metrics.ObserveRequest(o.provider, "ok")

		items, next := o.OnResponse(req, resp)
		for _, item := range items {
			o.handleItem(ctx, abort, item)
		}
		if next == nil {
			return
		}
		req = *next
	}
}

func (o *Orchestrator) handleItem(ctx context.Context, abort context.CancelCauseFunc, item crawler.ResultItem) {
	o.stats.items.Add(1)
	if o.deps.Downloader == nil || len(item.FileURLs) == 0 {
		o.export(ctx, abort, item)
		return
	}
	o.inflight.Add(1)
	results := o.deps.Downloader.Start(ctx, item.FileURLs[0])
	go func() {
		defer o.inflight.Done()
		o.finishItem(ctx, abort, item, <-results)
	}()
}

func (o *Orchestrator) finishItem(ctx context.Context, abort context.CancelCauseFunc, item crawler.ResultItem, res download.Result) {
	o.stats.downloads.Add(1)
	if res.Err != nil {
		o.stats.downloadFailures.Add(1)
	} else {
		item.DownloadedPath = res.Path
	}
	if o.deps.Index != nil && o.deps.Index.IsAlreadyDownloaded(item) {
		item.Downloaded = true
		o.stats.alreadyDownloaded.Add(1)
	}
	if o.deps.PDF != nil && res.Err == nil && isPDF(res.FullPath) {
		out := <-o.deps.PDF.Submit(ctx, res.FullPath)
		o.stats.pdfProcessed.Add(1)
		if !out.Succeeded {
			o.stats.pdfFailures.Add(1)
		}
		item.Year = out.Year
		item.PageCount = out.PageCount
	}
	o.export(ctx, abort, item)
}

func (o *Orchestrator) export(ctx context.Context, abort context.CancelCauseFunc, item crawler.ResultItem) {
	if err := o.deps.Export.Export(ctx, item); err != nil {
		o.logger.Error("export failed; stopping run", zap.Int("row", item.RowID), zap.String("url", item.URL), zap.Error(err))
		abort(fmt.Errorf("export item: %w", err))
		return
	}
	o.stats.exported.Add(1)
	for _, sink := range o.deps.Sinks {
		if err := sink.Export(ctx, item); err != nil {
			o.stats.sinkFailures.Add(1)
			o.logger.Warn("sink failed", zap.Int("row", item.RowID), zap.String("url", item.URL), zap.Error(err))
		}
	}
}

func (o *Orchestrator) abandon() {
	o.stats.rowsAbandoned.Add(1)
	metrics.ObserveRowAbandoned(o.provider)
}

var pdfMagic = []byte("%PDF-")

// isPDF sniffs the file header rather than trusting the URL suffix.
func isPDF(path string) bool {
	f, err := os.Open(path) // #nosec G304 -- path produced by the download store.
	if err != nil {
		return false
	}
	defer f.Close() //nolint:errcheck // read-only handle
	head := make([]byte, 1024)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return false
	}
	return bytes.Contains(head[:n], pdfMagic)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
