package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/pitwall/pitwall/upstream"
)

const seasonSchema = `{
  "type": "object",
  "properties": {
    "year": {"type": "integer", "minimum": 1950, "description": "Season, e.g. 2025"}
  },
  "required": ["year"]
}`

type seasonArgs struct {
	Year int `json:"year"`
}

type driverStandingsTool struct{ src Sources }

func (t *driverStandingsTool) Name() string { return "get_driver_standings" }

func (t *driverStandingsTool) Description() string {
	return "Current drivers' championship standings of a season."
}

func (t *driverStandingsTool) Schema() []byte { return []byte(seasonSchema) }

func (t *driverStandingsTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var a seasonArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", err
	}
	rows, err := t.src.Season.DriverStandings(ctx, a.Year, 0)
	if errors.Is(err, upstream.ErrNotFound) || (err == nil && len(rows) == 0) {
		return fmt.Sprintf("No driver standings found for %d.", a.Year), nil
	}
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### Driver Standings %d\n\n", a.Year)
	b.WriteString("| Pos | Driver | Team | Points | Wins |\n")
	b.WriteString("| :-- | :----- | :--- | :----- | :--- |\n")
	for _, r := range rows {
		team := "Unknown"
		if len(r.Teams) > 0 {
			team = r.Teams[len(r.Teams)-1]
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %d |\n", r.Position, r.Driver.FullName(), team, points(r.Points), r.Wins)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

type constructorStandingsTool struct{ src Sources }

func (t *constructorStandingsTool) Name() string { return "get_constructor_standings" }

func (t *constructorStandingsTool) Description() string {
	return "Current constructors' championship standings of a season."
}

func (t *constructorStandingsTool) Schema() []byte { return []byte(seasonSchema) }

func (t *constructorStandingsTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var a seasonArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", err
	}
	rows, err := t.src.Season.ConstructorStandings(ctx, a.Year, 0)
	if errors.Is(err, upstream.ErrNotFound) || (err == nil && len(rows) == 0) {
		return fmt.Sprintf("No constructor standings found for %d.", a.Year), nil
	}
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### Constructor Standings %d\n\n", a.Year)
	b.WriteString("| Pos | Team | Points | Wins |\n")
	b.WriteString("| :-- | :--- | :----- | :--- |\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "| %d | %s | %s | %d |\n", r.Position, r.Team, points(r.Points), r.Wins)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
