// Package ratelimit enforces a per-caller sliding window over a cache
// client. Counters live in the cache under a key derived from the operation
// and caller, so any number of server instances sharing a cache share one
// window. Cache failures never block the caller: the limiter logs and allows.
package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/examcraft/qbank/internal/cache"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed bool
	// Remaining is the number of requests left in the current window.
	Remaining int
	// RetryAfter is how long until the window resets. Zero when allowed.
	RetryAfter time.Duration
}

type counter struct {
	Count     int   `json:"count"`
	ExpiresAt int64 `json:"expires_at"`
}

// Limiter implements a fixed window counter per (operation, caller) pair.
type Limiter struct {
	cache       cache.Client
	maxRequests int
	window      time.Duration
	logger      *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates a limiter allowing maxRequests per window for each caller.
func New(client cache.Client, maxRequests int, window time.Duration, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		cache:       client,
		maxRequests: maxRequests,
		window:      window,
		logger:      logger,
		now:         time.Now,
	}
}

// CheckAndIncrement records one request for callerID against operation and
// reports whether it is within the limit. Rejected requests do not consume
// quota. If the cache is unreachable the request is allowed.
func (l *Limiter) CheckAndIncrement(ctx context.Context, operation, callerID string) Decision {
	key := fmt.Sprintf("ratelimit:%s:%s", operation, callerID)
	now := l.now()

	cur, err := l.load(ctx, key)
	if err != nil {
		l.logger.WarnContext(ctx, "rate limit cache unavailable, allowing request",
			"operation", operation, "caller_id", callerID, "error", err)
		return Decision{Allowed: true, Remaining: l.maxRequests - 1}
	}

	// No counter yet, or the stored window has elapsed: start a new one.
	if cur == nil || now.Unix() >= cur.ExpiresAt {
		fresh := counter{Count: 1, ExpiresAt: now.Add(l.window).Unix()}
		if err := l.store(ctx, key, fresh, l.window); err != nil {
			l.logger.WarnContext(ctx, "rate limit cache unavailable, allowing request",
				"operation", operation, "caller_id", callerID, "error", err)
		}
		return Decision{Allowed: true, Remaining: l.maxRequests - 1}
	}

	if cur.Count >= l.maxRequests {
		retry := time.Unix(cur.ExpiresAt, 0).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retry}
	}

	cur.Count++
	ttl := time.Unix(cur.ExpiresAt, 0).Sub(now)
	if err := l.store(ctx, key, *cur, ttl); err != nil {
		l.logger.WarnContext(ctx, "rate limit cache unavailable, allowing request",
			"operation", operation, "caller_id", callerID, "error", err)
	}

	remaining := l.maxRequests - cur.Count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining}
}

// Reset clears the counter for callerID on operation.
func (l *Limiter) Reset(ctx context.Context, operation, callerID string) error {
	key := fmt.Sprintf("ratelimit:%s:%s", operation, callerID)
	return l.cache.Delete(ctx, key)
}

func (l *Limiter) load(ctx context.Context, key string) (*counter, error) {
	raw, err := l.cache.Get(ctx, key)
	if errors.Is(err, cache.ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var c counter
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		// A corrupt counter is treated as absent rather than blocking.
		return nil, nil
	}
	return &c, nil
}

func (l *Limiter) store(ctx context.Context, key string, c counter, ttl time.Duration) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return l.cache.Set(ctx, key, string(raw), ttl)
}
