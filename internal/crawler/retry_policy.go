package crawler

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"
)

// StatusCoder is implemented by fetch errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// retryableStatus lists responses worth asking for again.
var retryableStatus = map[int]struct{}{
	408: {},
	429: {},
	500: {},
	502: {},
	503: {},
	504: {},
	522: {},
	524: {},
}

// RetryPolicy decides whether a failed fetch is attempted again and how long
// to wait first. A nil policy never retries.
type RetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetryPolicy allows up to retries extra attempts per request.
func NewRetryPolicy(retries int) *RetryPolicy {
	if retries < 0 {
		retries = 0
	}
	return &RetryPolicy{
		maxRetries: retries,
		baseDelay:  250 * time.Millisecond,
		maxDelay:   5 * time.Second,
	}
}

// WithDelays overrides the backoff bounds.
func (p *RetryPolicy) WithDelays(base, maxDelay time.Duration) *RetryPolicy {
	p.baseDelay = base
	p.maxDelay = maxDelay
	return p
}

// MaxRetries reports the retry budget.
func (p *RetryPolicy) MaxRetries() int {
	if p == nil {
		return 0
	}
	return p.maxRetries
}

// ShouldRetry reports whether err, seen on the given zero-based attempt,
// deserves another try. Blacklisted hosts, cancellation and non-transient
// statuses are final.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if p == nil || err == nil || attempt >= p.maxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrBlocked) {
		return false
	}
	var status StatusCoder
	if errors.As(err, &status) {
		_, ok := retryableStatus[status.HTTPStatus()]
		return ok
	}
	return true
}

// Backoff returns the wait duration before the next attempt.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
