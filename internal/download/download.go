// Package download fetches discovered files into the downloads store.
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/pension-crawler/internal/crawler"
	"github.com/JakeFAU/pension-crawler/internal/metrics"
)

// Dir is the store subdirectory files are written under.
const Dir = "full"

// Outcome labels used for metrics and logs.
const (
	StatusFetched = "fetched"
	StatusCached  = "cached"
	StatusFailed  = "failed"
	StatusBlocked = "blocked"
)

// Index reports identifiers that were already on disk before the run.
type Index interface {
	Contains(id string) bool
}

// Mirror receives a copy of every fetched file.
type Mirror interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Result describes one finished download.
type Result struct {
	URL string
	// Path is relative to the store root, e.g. "full/<sha1>.pdf".
	Path     string
	FullPath string
	Status   string
	Bytes    int
	Err      error
}

// Config controls the Downloader.
type Config struct {
	Concurrency int
}

// Downloader fetches files with bounded concurrency. Concurrent requests for
// the same URL share one fetch.
type Downloader struct {
	fetcher crawler.Fetcher
	store   crawler.BlobStore
	hasher  crawler.Hasher
	index   Index
	mirror  Mirror
	logger  *zap.Logger
	slots   chan struct{}
	group   singleflight.Group
}

// Option customizes a Downloader.
type Option func(*Downloader)

// WithIndex skips fetching identifiers already present before the run.
func WithIndex(idx Index) Option {
	return func(d *Downloader) { d.index = idx }
}

// WithMirror copies fetched files to m.
func WithMirror(m Mirror) Option {
	return func(d *Downloader) { d.mirror = m }
}

// New builds a Downloader.
func New(cfg Config, fetcher crawler.Fetcher, store crawler.BlobStore, hasher crawler.Hasher, logger *zap.Logger, opts ...Option) (*Downloader, error) {
	if fetcher == nil || store == nil || hasher == nil {
		return nil, errors.New("fetcher, store and hasher are required")
	}
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("download concurrency must be > 0, got %d", cfg.Concurrency)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Downloader{
		fetcher: fetcher,
		store:   store,
		hasher:  hasher,
		logger:  logger,
		slots:   make(chan struct{}, cfg.Concurrency),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// FilePath returns the store path for rawURL: Dir/<sha1(url)><ext>.
func FilePath(hasher crawler.Hasher, rawURL string) (string, error) {
	sum, err := hasher.Hash([]byte(rawURL))
	if err != nil {
		return "", fmt.Errorf("hash url: %w", err)
	}
	return path.Join(Dir, sum+extension(rawURL)), nil
}

// extension keeps a URL's suffix only when it is a known media type.
func extension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" || mime.TypeByExtension(ext) == "" {
		return ""
	}
	return ext
}

// Start begins downloading rawURL and returns a channel that yields exactly
// one Result. It never blocks the caller.
func (d *Downloader) Start(ctx context.Context, rawURL string) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		out <- d.Download(ctx, rawURL)
	}()
	return out
}

// Download fetches rawURL unless its file already exists, waiting for a free
// slot first.
func (d *Downloader) Download(ctx context.Context, rawURL string) Result {
	rel, err := FilePath(d.hasher, rawURL)
	if err != nil {
		return d.finish(Result{URL: rawURL, Status: StatusFailed, Err: err})
	}
	res := Result{URL: rawURL, Path: rel, FullPath: filepath.Join(d.store.Root(), filepath.FromSlash(rel))}
	if d.present(rel) {
		res.Status = StatusCached
		return d.finish(res)
	}

	v, err, _ := d.group.Do(rel, func() (any, error) {
		if d.store.Exists(rel) {
			return Result{Status: StatusCached}, nil
		}
		if err := d.acquire(ctx); err != nil {
			return nil, err
		}
		defer d.release()
		return d.fetch(ctx, rawURL, rel)
	})
	if err != nil {
		res.Status = StatusFailed
		if errors.Is(err, crawler.ErrBlocked) {
			res.Status = StatusBlocked
		}
		res.Err = err
		return d.finish(res)
	}
	shared := v.(Result)
	res.Status = shared.Status
	res.Bytes = shared.Bytes
	if shared.FullPath != "" {
		res.FullPath = shared.FullPath
	}
	return d.finish(res)
}

func (d *Downloader) present(rel string) bool {
	if d.index != nil && d.index.Contains(crawler.FileIdentifier(rel)) {
		return true
	}
	return d.store.Exists(rel)
}

func (d *Downloader) fetch(ctx context.Context, rawURL, rel string) (Result, error) {
	resp, err := d.fetcher.Fetch(ctx, crawler.FetchRequest{URL: rawURL})
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("fetch %s: http status %d", rawURL, resp.StatusCode)
	}
	contentType := resp.Headers.Get("Content-Type")
	fullPath, err := d.store.PutObject(ctx, rel, contentType, bytes.NewReader(resp.Body))
	if err != nil {
		return Result{}, fmt.Errorf("store %s: %w", rel, err)
	}
	if d.mirror != nil {
		if uri, err := d.mirror.PutObject(ctx, rel, contentType, bytes.NewReader(resp.Body)); err != nil {
			d.logger.Warn("mirror upload failed", zap.String("path", rel), zap.Error(err))
		} else {
			d.logger.Debug("mirrored file", zap.String("path", rel), zap.String("uri", uri))
		}
	}
	return Result{Status: StatusFetched, FullPath: fullPath, Bytes: len(resp.Body)}, nil
}

func (d *Downloader) finish(res Result) Result {
	metrics.ObserveDownload(res.URL, res.Status, res.Bytes)
	if res.Err != nil {
		d.logger.Warn("download failed", zap.String("url", res.URL), zap.String("status", res.Status), zap.Error(res.Err))
	} else {
		d.logger.Debug("download finished", zap.String("url", res.URL), zap.String("path", res.Path), zap.String("status", res.Status))
	}
	return res
}

func (d *Downloader) acquire(ctx context.Context) error {
	select {
	case d.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for download slot: %w", ctx.Err())
	}
}

func (d *Downloader) release() {
	<-d.slots
}
