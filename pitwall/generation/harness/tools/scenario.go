package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/pitwall/pitwall/analysis"
	"github.com/ZanzyTHEbar/pitwall/pitwall/upstream"
)

const scenarioSchema = `{
  "type": "object",
  "properties": {
    "year": {"type": "integer", "minimum": 1950},
    "driver": {"type": "string", "minLength": 1, "description": "Driver code or name"}
  },
  "required": ["year", "driver"]
}`

type scenarioTool struct{ src Sources }

func (t *scenarioTool) Name() string { return "calculate_championship_scenario" }

func (t *scenarioTool) Description() string {
	return "Round-by-round title picture for one driver: gap to the leader, races remaining and points per race needed to win the championship."
}

func (t *scenarioTool) Schema() []byte { return []byte(scenarioSchema) }

func (t *scenarioTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var a struct {
		Year   int    `json:"year"`
		Driver string `json:"driver"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return "", err
	}

	events, err := t.src.Season.Schedule(ctx, a.Year)
	if errors.Is(err, upstream.ErrNotFound) {
		return fmt.Sprintf("No schedule data available for %d.", a.Year), nil
	}
	if err != nil {
		return "", err
	}

	now := t.src.now()
	var rounds []analysis.RoundStandings
	for _, ev := range events {
		if ev.Status(now) != upstream.StatusCompleted {
			break
		}
		rows, err := t.src.Season.DriverStandings(ctx, a.Year, ev.Round)
		if errors.Is(err, upstream.ErrNotFound) {
			break
		}
		if err != nil {
			return "", err
		}
		rounds = append(rounds, analysis.RoundStandings{Round: ev.Round, RaceName: ev.Name, Standings: rows})
	}
	if len(rounds) == 0 {
		return fmt.Sprintf("No completed rounds in %d yet.", a.Year), nil
	}

	sc, err := analysis.TitleScenario(a.Year, a.Driver, len(events), rounds)
	if errors.Is(err, analysis.ErrDriverNotFound) {
		return fmt.Sprintf("Could not find driver matching '%s' in the %d standings.", a.Driver, a.Year), nil
	}
	if err != nil {
		return "", err
	}
	return sc.Markdown(), nil
}
