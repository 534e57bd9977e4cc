package detector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/pension-crawler/internal/crawler"
	"github.com/JakeFAU/pension-crawler/internal/metrics"
)

// Promoter decides whether a fetched page needs rendering.
type Promoter interface {
	ShouldPromote(resp crawler.FetchResponse) bool
}

// Fetcher tries a plain HTTP fetch first and re-fetches through the renderer
// only when the promoter asks for it.
type Fetcher struct {
	fast     crawler.Fetcher
	renderer crawler.Fetcher
	promoter Promoter
	logger   *zap.Logger
}

// NewFetcher wires the two fetch paths together.
func NewFetcher(fast, renderer crawler.Fetcher, promoter Promoter, logger *zap.Logger) (*Fetcher, error) {
	if fast == nil || renderer == nil {
		return nil, fmt.Errorf("promoting fetcher needs both a fast and a rendering fetcher")
	}
	if promoter == nil {
		promoter = NewHeuristic(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{fast: fast, renderer: renderer, promoter: promoter, logger: logger}, nil
}

// Fetch implements crawler.Fetcher. Errors from the fast path are returned
// as is; a failed render falls back to the fast response.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	resp, err := f.fast.Fetch(ctx, request)
	if err != nil || !f.promoter.ShouldPromote(resp) {
		return resp, err
	}
	metrics.ObservePromotion(request.URL)
	rendered, rerr := f.renderer.Fetch(ctx, request)
	if rerr != nil {
		if ctx.Err() != nil {
			return crawler.FetchResponse{}, rerr
		}
		f.logger.Warn("headless render failed, keeping plain response",
			zap.String("url", request.URL),
			zap.Error(rerr),
		)
		return resp, nil
	}
	f.logger.Debug("page promoted to headless", zap.String("url", request.URL))
	return rendered, nil
}
