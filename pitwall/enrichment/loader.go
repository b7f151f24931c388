package enrichment

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/pitwall/pitwall/upstream"
)

// Loader builds the payload for a key. Implementations are not required to
// be safe for concurrent use; the Cache serializes them. The Cache only
// stores payloads with ResultsAttempted set.
type Loader interface {
	Load(ctx context.Context, key Key) (*Payload, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, key Key) (*Payload, error)

func (f LoaderFunc) Load(ctx context.Context, key Key) (*Payload, error) { return f(ctx, key) }

// SessionSource is the upstream data the SessionLoader reads.
type SessionSource interface {
	Event(ctx context.Context, season, round int) (upstream.Event, error)
	RaceResults(ctx context.Context, season, round int) ([]upstream.Classification, error)
	QualifyingResults(ctx context.Context, season, round int) ([]upstream.QualifyingEntry, error)
	SprintResults(ctx context.Context, season, round int) ([]upstream.Classification, error)
	SprintQualifyingResults(ctx context.Context, season, round int) ([]upstream.QualifyingEntry, error)
}

// SessionLoader assembles a payload from the event schedule and its
// session results. Sub-fetches run one after another; a failing sub-fetch is
// recorded in Payload.Failures and does not stop the others.
type SessionLoader struct {
	src    SessionSource
	buffer time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewSessionLoader creates a loader. Results are only fetched for events
// that concluded more than buffer ago.
func NewSessionLoader(src SessionSource, buffer time.Duration, logger zerolog.Logger) *SessionLoader {
	return &SessionLoader{
		src:    src,
		buffer: buffer,
		now:    time.Now,
		logger: logger.With().Str("component", "session_loader").Logger(),
	}
}

// Load fetches the event, then its race, qualifying and sprint sessions.
func (l *SessionLoader) Load(ctx context.Context, key Key) (*Payload, error) {
	ev, err := l.src.Event(ctx, key.Season, key.Round)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}

	p := newPayload(ev)
	if !p.Concluded(l.now(), l.buffer) {
		return p, nil
	}
	p.ResultsAttempted = true

	if rows, err := l.src.RaceResults(ctx, key.Season, key.Round); err != nil {
		l.subFetchFailed(p, key, FetchRace, err)
	} else {
		p.RaceResults = resultRows(rows)
		p.Podium = podium(p.RaceResults)
		p.HasRaceResults = len(p.RaceResults) > 0
	}

	if entries, err := l.src.QualifyingResults(ctx, key.Season, key.Round); err != nil {
		l.subFetchFailed(p, key, FetchQualifying, err)
	} else {
		p.Qualifying = qualifyingSegments(entries)
		p.HasQualifying = p.Qualifying != nil
	}

	if !p.IsSprint {
		return p, nil
	}

	if rows, err := l.src.SprintResults(ctx, key.Season, key.Round); err != nil {
		l.subFetchFailed(p, key, FetchSprint, err)
	} else if len(rows) > 0 {
		p.SprintResults = resultRows(rows)
	}

	if entries, err := l.src.SprintQualifyingResults(ctx, key.Season, key.Round); err != nil {
		l.subFetchFailed(p, key, FetchSprintQualifying, err)
	} else {
		p.SprintQualifying = qualifyingSegments(entries)
	}

	return p, nil
}

func (l *SessionLoader) subFetchFailed(p *Payload, key Key, fetch string, err error) {
	p.fail(fetch, err)
	l.logger.Warn().Err(err).Str("key", key.String()).Str("fetch", fetch).Msg("sub-fetch failed")
}
