// Package limiter defines interfaces and implementations for request rate limiting.
package limiter

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Rule caps the number of hits per key within a window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Limiter counts hits per key.
type Limiter interface {
	// Allow records a hit for key and reports whether it is within rule,
	// with a retry-after hint when it is not.
	Allow(ctx context.Context, key string, rule Rule) (bool, time.Duration, error)
}

// FailOpen wraps a Limiter so backend failures allow the request.
type FailOpen struct {
	next Limiter
	log  *zap.Logger
}

// NewFailOpen constructs a fail-open limiter.
func NewFailOpen(next Limiter, log *zap.Logger) *FailOpen {
	if log == nil {
		log = zap.NewNop()
	}
	return &FailOpen{next: next, log: log}
}

// Allow implements Limiter. It never returns an error.
func (f *FailOpen) Allow(ctx context.Context, key string, rule Rule) (bool, time.Duration, error) {
	ok, retry, err := f.next.Allow(ctx, key, rule)
	if err != nil {
		f.log.Warn("rate limiter unavailable, allowing request", zap.String("key", key), zap.Error(err))
		return true, 0, nil
	}
	return ok, retry, nil
}
