// Package pdf reads page counts, text and report years from downloaded PDFs.
package pdf

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pension-crawler/internal/metrics"
)

// DefaultTargetPages bounds how much of a document is read for text.
const DefaultTargetPages = 5

// Outcome is the post-processing result for one file. Year and PageCount are
// nil when unknown.
type Outcome struct {
	Year      *string
	PageCount *int
	Succeeded bool
	Method    string
}

// Config tunes a Processor.
type Config struct {
	TargetPages int
	TempDir     string
}

// Processor runs the page-count, truncate, extract and year steps.
type Processor struct {
	cfg        Config
	extractors []Extractor
	logger     *zap.Logger

	countPages func(path string) (int, error)
	truncate   func(in, tempDir string, pages int) (string, error)
}

// Option customizes a Processor.
type Option func(*Processor)

// WithExtractors replaces the extraction strategies, tried in order.
func WithExtractors(extractors ...Extractor) Option {
	return func(p *Processor) {
		p.extractors = extractors
	}
}

// WithTruncator swaps the page trimming step.
func WithTruncator(fn func(in, tempDir string, pages int) (string, error)) Option {
	return func(p *Processor) {
		if fn != nil {
			p.truncate = fn
		}
	}
}

// NewProcessor builds a Processor that extracts the text layer only. Add OCR
// with WithExtractors.
func NewProcessor(cfg Config, logger *zap.Logger, opts ...Option) *Processor {
	if cfg.TargetPages <= 0 {
		cfg.TargetPages = DefaultTargetPages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		cfg:        cfg,
		extractors: []Extractor{TextExtractor{}},
		logger:     logger,
		countPages: CountPages,
		truncate:   Truncate,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process never returns an error; failures degrade to nil fields.
func (p *Processor) Process(ctx context.Context, path string) Outcome {
	start := time.Now()
	out := p.process(ctx, path)
	status := "ok"
	switch {
	case !out.Succeeded:
		status = "unreadable"
	case out.Year == nil:
		status = "no_year"
	}
	metrics.ObservePDF(status, time.Since(start))
	return out
}

func (p *Processor) process(ctx context.Context, path string) Outcome {
	logger := p.logger.With(zap.String("path", path))

	total, err := p.countPages(path)
	if err != nil {
		logger.Warn("pdf unreadable", zap.Error(err))
		return Outcome{}
	}
	out := Outcome{PageCount: &total, Succeeded: true}

	source := path
	if total > p.cfg.TargetPages {
		trimmed, err := p.truncate(path, p.cfg.TempDir, p.cfg.TargetPages)
		if err != nil {
			logger.Warn("pdf truncate failed; reading the full document", zap.Int("pages", total), zap.Error(err))
		} else {
			defer func() {
				if err := os.Remove(trimmed); err != nil && !errors.Is(err, os.ErrNotExist) {
					logger.Warn("remove truncated pdf", zap.String("temp", trimmed), zap.Error(err))
				}
			}()
			source = trimmed
		}
	}

	for _, ex := range p.extractors {
		if ctx.Err() != nil {
			return out
		}
		text, err := ex.Extract(ctx, source)
		if err != nil {
			logger.Debug("pdf extraction failed", zap.String("method", ex.Name()), zap.Error(err))
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		out.Method = ex.Name()
		out.Year = InferYear(text)
		return out
	}
	logger.Debug("pdf has no extractable text", zap.Int("pages", total))
	return out
}
