package enrichment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// ErrLoadTimeout is returned when GetOrLoad gives up waiting. The load keeps
// running and its result lands in the store.
var ErrLoadTimeout = errors.New("enrichment: load timed out")

// LoaderLock admits one loader execution at a time across the process,
// whatever the key.
type LoaderLock struct {
	sem *semaphore.Weighted
}

// NewLoaderLock creates an unlocked LoaderLock.
func NewLoaderLock() *LoaderLock {
	return &LoaderLock{sem: semaphore.NewWeighted(1)}
}

// Lock blocks until the lock is held or ctx is done.
func (l *LoaderLock) Lock(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// TryLock takes the lock if it is free.
func (l *LoaderLock) TryLock() bool {
	return l.sem.TryAcquire(1)
}

// Unlock releases the lock.
func (l *LoaderLock) Unlock() {
	l.sem.Release(1)
}

// Cache is the read-through front of a Store. Concurrent callers of one key
// share a single load; loads of different keys queue on the LoaderLock.
type Cache struct {
	store  *Store
	lock   *LoaderLock
	loader Loader
	group  singleflight.Group
	buffer time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the clock used to decide whether an event concluded.
func WithClock(clock func() time.Time) Option {
	return func(c *Cache) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithCompletionBuffer sets how long after its concluding session an event
// becomes cacheable.
func WithCompletionBuffer(d time.Duration) Option {
	return func(c *Cache) {
		c.buffer = d
	}
}

// NewCache creates a Cache over store. The lock is shared with anything
// else that must not overlap a load.
func NewCache(store *Store, lock *LoaderLock, loader Loader, logger zerolog.Logger, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		lock:   lock,
		loader: loader,
		buffer: 3 * time.Hour,
		now:    time.Now,
		logger: logger.With().Str("component", "enrichment_cache").Logger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Store returns the backing store.
func (c *Cache) Store() *Store {
	return c.store
}

// Get returns a cached payload without loading.
func (c *Cache) Get(key Key) (*Payload, bool) {
	return c.store.Get(key)
}

// GetOrLoad returns the payload for key, loading it if needed. A cached key
// is returned without touching the lock. Waiting is bounded by timeout; on
// expiry ErrLoadTimeout is returned and the load continues in the background.
func (c *Cache) GetOrLoad(ctx context.Context, key Key, timeout time.Duration) (*Payload, error) {
	if p, ok := c.store.Get(key); ok {
		return p, nil
	}

	ch := c.group.DoChan(key.String(), func() (any, error) {
		// detached: the load outlives a caller that stops waiting
		return c.load(context.WithoutCancel(ctx), key)
	})

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Payload), nil
	case <-timer:
		c.logger.Warn().Str("key", key.String()).Dur("timeout", timeout).Msg("load still running after timeout")
		return nil, fmt.Errorf("%w: %s after %s", ErrLoadTimeout, key, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) load(ctx context.Context, key Key) (*Payload, error) {
	if err := c.lock.Lock(ctx); err != nil {
		return nil, err
	}
	defer c.lock.Unlock()

	// a load of this key may have finished while we queued
	if p, ok := c.store.Get(key); ok {
		return p, nil
	}

	start := c.now()
	p, err := c.loader.Load(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("load failed")
		return nil, err
	}

	switch {
	case !p.HasIdentity():
		c.logger.Info().Str("key", key.String()).Msg("payload has no venue info, not cached")
	case !p.ResultsAttempted:
		c.logger.Debug().Str("key", key.String()).Time("concludes_at", p.ConcludesAt).Msg("results not fetched yet, not cached")
	case !p.Concluded(c.now(), c.buffer):
		c.logger.Debug().Str("key", key.String()).Time("concludes_at", p.ConcludesAt).Msg("event not concluded, not cached")
	default:
		if c.store.Put(key, p) {
			c.logger.Info().
				Str("key", key.String()).
				Bool("race", p.HasRaceResults).
				Bool("qualifying", p.HasQualifying).
				Int("failures", len(p.Failures)).
				Dur("took", c.now().Sub(start)).
				Msg("payload cached")
		}
	}
	return p, nil
}
