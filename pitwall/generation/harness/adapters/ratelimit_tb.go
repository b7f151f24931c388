package adapters

import (
	"context"
	"errors"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness/ports"
)

// ErrRateLimitExceeded is returned by a non-blocking bucket with no tokens left.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// TokenBucket implements a keyed token bucket. A blocking bucket waits for the
// next refill instead of failing, which is what upstream clients want; the chat
// endpoint uses a non-blocking one and answers 429.
type TokenBucket struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	capacity   int           // max tokens per bucket
	refillRate time.Duration // time between token refills
	blocking   bool
	now        func() time.Time
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewTokenBucket creates a non-blocking token bucket rate limiter.
func NewTokenBucket(capacity int, refillRate time.Duration) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	if refillRate <= 0 {
		refillRate = time.Second
	}
	return &TokenBucket{
		buckets:    make(map[string]*bucket),
		capacity:   capacity,
		refillRate: refillRate,
		now:        time.Now,
	}
}

// NewBlockingTokenBucket creates a token bucket whose Acquire waits for a token.
func NewBlockingTokenBucket(capacity int, refillRate time.Duration) *TokenBucket {
	tb := NewTokenBucket(capacity, refillRate)
	tb.blocking = true
	return tb
}

// Acquire takes a token for key. The returned release is a no-op kept for the
// RateLimiter contract; tokens only come back through refill.
func (tb *TokenBucket) Acquire(ctx context.Context, key string) (release func(), err error) {
	for {
		wait, ok := tb.take(key)
		if ok {
			return func() {}, nil
		}
		if !tb.blocking {
			return nil, ErrRateLimitExceeded
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// take consumes a token or reports how long until the next refill.
func (tb *TokenBucket) take(key string) (time.Duration, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	b, exists := tb.buckets[key]
	if !exists {
		b = &bucket{tokens: tb.capacity, lastRefill: now}
		tb.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill)
	if added := int(elapsed / tb.refillRate); added > 0 {
		b.tokens = min(b.tokens+added, tb.capacity)
		b.lastRefill = b.lastRefill.Add(time.Duration(added) * tb.refillRate)
	}

	if b.tokens <= 0 {
		return tb.refillRate - now.Sub(b.lastRefill), false
	}
	b.tokens--
	return 0, true
}

var _ ports.RateLimiter = (*TokenBucket)(nil)
