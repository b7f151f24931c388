package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/pitwall/pitwall/analysis"
	"github.com/ZanzyTHEbar/pitwall/pitwall/enrichment"
)

const compareSchema = `{
  "type": "object",
  "properties": {
    "year": {"type": "integer", "minimum": 1950},
    "grand_prix": {"type": "string", "minLength": 1},
    "driver1": {"type": "string", "minLength": 1, "description": "Driver code or name, e.g. NOR or Norris"},
    "driver2": {"type": "string", "minLength": 1}
  },
  "required": ["year", "grand_prix", "driver1", "driver2"]
}`

type compareTool struct{ src Sources }

func (t *compareTool) Name() string { return "compare_drivers" }

func (t *compareTool) Description() string {
	return "Compare two drivers' qualifying lap times at one Grand Prix, segment by segment, with the gap between them."
}

func (t *compareTool) Schema() []byte { return []byte(compareSchema) }

func (t *compareTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var a struct {
		eventArgs
		Driver1 string `json:"driver1"`
		Driver2 string `json:"driver2"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return "", err
	}

	p, err := loadEvent(ctx, t.src, a.eventArgs)
	if err != nil {
		return respond("", err)
	}
	if len(p.Qualifying) == 0 {
		return pendingResults(p, enrichment.FetchQualifying, "qualifying results"), nil
	}

	code1, ok1 := qualifierCode(p, a.Driver1)
	code2, ok2 := qualifierCode(p, a.Driver2)
	switch {
	case !ok1:
		return fmt.Sprintf("Could not find driver '%s' in the %s qualifying.", a.Driver1, title(p)), nil
	case !ok2:
		return fmt.Sprintf("Could not find driver '%s' in the %s qualifying.", a.Driver2, title(p)), nil
	}

	deltas, err := analysis.QualifyingDeltas(p, code1, code2)
	if errors.Is(err, analysis.ErrDriverNotFound) {
		return fmt.Sprintf("No comparable qualifying laps for %s and %s at the %s.", code1, code2, title(p)), nil
	}
	if err != nil {
		return "", err
	}
	return analysis.DeltasMarkdown(title(p), code1, code2, deltas), nil
}

// qualifierCode resolves a driver query against everyone who set a time.
func qualifierCode(p *enrichment.Payload, query string) (string, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return "", false
	}
	for _, seg := range []string{"Q1", "Q2", "Q3"} {
		for _, r := range p.Qualifying[seg] {
			if strings.ToLower(r.Driver) == q || strings.Contains(strings.ToLower(r.FullName), q) {
				return r.Driver, true
			}
		}
	}
	return "", false
}
