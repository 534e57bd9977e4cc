package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/JakeFAU/pension-crawler/internal/crawler"
	"github.com/JakeFAU/pension-crawler/internal/metrics"
)

// FileTimeLayout stamps export file names.
const FileTimeLayout = "20060102T150405Z"

// ErrClosed is returned by Export after Close.
var ErrClosed = errors.New("export writer closed")

// FileName returns "<provider>_<start>.csv".
func FileName(provider string, start time.Time) string {
	return fmt.Sprintf("%s_%s.csv", provider, start.UTC().Format(FileTimeLayout))
}

// Writer appends projected items to one CSV file. Safe for concurrent use.
type Writer struct {
	cfg  Config
	path string

	mu     sync.Mutex
	file   *os.File
	csv    *csv.Writer
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// Create opens a new export file in dir and writes the header.
func Create(dir, provider string, start time.Time, cfg Config) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, FileName(provider, start))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640) // #nosec G304 -- path built from config.
	if err != nil {
		return nil, fmt.Errorf("open export file: %w", err)
	}
	w := &Writer{cfg: cfg, path: path, file: f, csv: csv.NewWriter(f)}
	if err := w.csv.Write(cfg.Fields); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	return w, nil
}

// Path returns the file being written.
func (w *Writer) Path() string { return w.path }

// Export writes one row and flushes it.
func (w *Writer) Export(_ context.Context, item crawler.ResultItem) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if err := w.csv.Write(w.cfg.Project(item)); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	metrics.ObserveExportRow()
	return nil
}

// Close flushes and closes the file. Later calls return the first result.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.closed = true
		w.csv.Flush()
		flushErr := w.csv.Error()
		closeErr := w.file.Close()
		w.closeErr = errors.Join(flushErr, closeErr)
	})
	return w.closeErr
}

// Discard closes the file and removes it. It is used when a run is rejected
// before any row was crawled.
func (w *Writer) Discard() error {
	closeErr := w.Close()
	if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Join(closeErr, fmt.Errorf("remove export file: %w", err))
	}
	return closeErr
}
