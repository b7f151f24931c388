package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/pitwall/pitwall/enrichment"
	"github.com/ZanzyTHEbar/pitwall/pitwall/upstream"
)

const eventArgsSchema = `{
  "type": "object",
  "properties": {
    "year": {"type": "integer", "minimum": 1950, "description": "Season, e.g. 2025"},
    "grand_prix": {"type": "string", "minLength": 1, "description": "Grand Prix name, host city, country or round number"}
  },
  "required": ["year", "grand_prix"]
}`

type eventArgs struct {
	Year      int    `json:"year"`
	GrandPrix string `json:"grand_prix"`
}

// notice is a user-facing answer in place of data. It is returned to the
// model as the capability result, not as an error.
type notice string

func (n notice) Error() string { return string(n) }

// loadEvent resolves a Grand Prix in the season schedule and returns its
// payload through the cache.
func loadEvent(ctx context.Context, src Sources, a eventArgs) (*enrichment.Payload, error) {
	events, err := src.Season.Schedule(ctx, a.Year)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return nil, notice(fmt.Sprintf("No schedule data available for %d.", a.Year))
		}
		return nil, err
	}
	ev, ok := upstream.MatchEvent(events, a.GrandPrix)
	if !ok {
		return nil, notice(fmt.Sprintf("Could not find a Grand Prix matching '%s' in %d.", a.GrandPrix, a.Year))
	}

	p, err := src.Cache.GetOrLoad(ctx, enrichment.Key{Season: a.Year, Round: ev.Round}, src.LoadTimeout)
	if err != nil {
		if errors.Is(err, enrichment.ErrLoadTimeout) {
			return nil, notice(fmt.Sprintf("Data for the %d %s is still loading. Try again in a moment.", a.Year, ev.Name))
		}
		return nil, err
	}
	return p, nil
}

// respond turns a notice into a successful result.
func respond(out string, err error) (string, error) {
	var n notice
	if errors.As(err, &n) {
		return string(n), nil
	}
	return out, err
}

func title(p *enrichment.Payload) string {
	return fmt.Sprintf("%s %d", p.Name, p.Season)
}

func notConcluded(p *enrichment.Payload) bool {
	_, failed := p.Failures[enrichment.FetchRace]
	return !p.HasRaceResults && !failed
}
