package harnessports

import "context"

// RateLimiter coordinates throughput against a shared resource.
type RateLimiter interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
