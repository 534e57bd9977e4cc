package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// BlobStore writes downloaded artifacts and reports what already exists.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	Exists(path string) bool
	Root() string
}

// Publisher pushes per-item notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ItemSink receives finalized items.
type ItemSink interface {
	Export(ctx context.Context, item ResultItem) error
}

// Hasher computes content identifiers.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// RateLimiter blocks until a request to url may proceed.
type RateLimiter interface {
	Wait(ctx context.Context, url string) error
}

// QueueItem wraps a row ready to crawl.
type QueueItem struct {
	Row InputRow
}
