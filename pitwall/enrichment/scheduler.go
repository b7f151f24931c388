package enrichment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/pitwall/pitwall/upstream"
)

// ScheduleSource lists the rounds of a season.
type ScheduleSource interface {
	Schedule(ctx context.Context, season int) ([]upstream.Event, error)
}

// SchedulerConfig holds the refill timings.
type SchedulerConfig struct {
	StartupDelay    time.Duration
	Interval        time.Duration
	InterRoundDelay time.Duration
	RoundTimeout    time.Duration
	Buffer          time.Duration
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Season    int
	Rounds    int // rounds in the schedule
	Pending   int // not yet concluded
	Cached    int // already cached before the sweep
	Loaded    int // newly cached
	Uncached  int // loaded but not cacheable
	Failed    int // errors and timeouts
	StartedAt time.Time
}

// Scheduler periodically fills the cache with concluded, uncached rounds of
// the current season. It goes through Cache.GetOrLoad and so queues on the
// same LoaderLock as requests.
type Scheduler struct {
	cache    *Cache
	schedule ScheduleSource
	cfg      SchedulerConfig
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	logger   zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerClock overrides the scheduler clock.
func WithSchedulerClock(clock func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithSleeper swaps the delay function, mainly for tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) SchedulerOption {
	return func(s *Scheduler) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(cache *Cache, schedule ScheduleSource, cfg SchedulerConfig, logger zerolog.Logger, opts ...SchedulerOption) *Scheduler {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 3 * time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Minute
	}
	s := &Scheduler{
		cache:    cache,
		schedule: schedule,
		cfg:      cfg,
		now:      time.Now,
		sleep:    sleepCtx,
		logger:   logger.With().Str("component", "refill_scheduler").Logger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start runs the scheduler in the background until Stop or ctx is done.
// Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("scheduler stopped")
		}
	}(s.done)
}

// Stop cancels the scheduler and waits for the current sweep to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run waits the startup delay, then sweeps every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().
		Dur("startup_delay", s.cfg.StartupDelay).
		Dur("interval", s.cfg.Interval).
		Msg("refill scheduler started")

	if err := s.sleep(ctx, s.cfg.StartupDelay); err != nil {
		return err
	}
	for {
		report := s.Sweep(ctx)
		s.logger.Info().
			Int("season", report.Season).
			Int("loaded", report.Loaded).
			Int("failed", report.Failed).
			Int("pending", report.Pending).
			Msg("sweep finished")

		if err := s.sleep(ctx, s.cfg.Interval); err != nil {
			return err
		}
	}
}

// Sweep makes one pass over the current season. A slow or failing round is
// logged and left for the next sweep.
func (s *Scheduler) Sweep(ctx context.Context) SweepReport {
	now := s.now()
	report := SweepReport{Season: now.Year(), StartedAt: now}

	events, err := s.schedule.Schedule(ctx, report.Season)
	if err != nil {
		s.logger.Warn().Err(err).Int("season", report.Season).Msg("schedule unavailable, skipping sweep")
		report.Failed++
		return report
	}
	report.Rounds = len(events)

	attempted := 0
	for _, ev := range events {
		if ctx.Err() != nil {
			return report
		}
		key := Key{Season: ev.Season, Round: ev.Round}
		if key.Season == 0 {
			key.Season = report.Season
		}

		if !ev.Concluded(s.now(), s.cfg.Buffer) {
			report.Pending++
			continue
		}
		if s.cache.Store().Has(key) {
			report.Cached++
			continue
		}

		if attempted > 0 {
			if err := s.sleep(ctx, s.cfg.InterRoundDelay); err != nil {
				return report
			}
		}
		attempted++

		p, err := s.cache.GetOrLoad(ctx, key, s.cfg.RoundTimeout)
		switch {
		case err != nil:
			report.Failed++
			s.logger.Warn().Err(err).Str("key", key.String()).Msg("refill failed, retrying next sweep")
		case s.cache.Store().Has(key):
			report.Loaded++
		default:
			report.Uncached++
			s.logger.Info().Str("key", key.String()).Bool("venue", p.HasIdentity()).Msg("refilled payload not cacheable")
		}
	}
	return report
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
