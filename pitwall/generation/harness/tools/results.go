package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/pitwall/pitwall/enrichment"
)

type raceResultsTool struct{ src Sources }

func (t *raceResultsTool) Name() string { return "get_race_results" }

func (t *raceResultsTool) Description() string {
	return "Full race classification of a Grand Prix: finishing order, grid, positions gained, gaps and points."
}

func (t *raceResultsTool) Schema() []byte { return []byte(eventArgsSchema) }

func (t *raceResultsTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var a eventArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", err
	}
	return respond(t.invoke(ctx, a))
}

func (t *raceResultsTool) invoke(ctx context.Context, a eventArgs) (string, error) {
	p, err := loadEvent(ctx, t.src, a)
	if err != nil {
		return "", err
	}
	if len(p.RaceResults) == 0 {
		return pendingResults(p, enrichment.FetchRace, "race results"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### Race Classification: %s\n\n", title(p))
	b.WriteString("| Pos | Driver | Team | Grid | +/- | Time/Gap | Pts |\n")
	b.WriteString("| :-- | :----- | :--- | :--- | :-- | :------- | :-- |\n")
	for _, r := range p.RaceResults {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
			position(r.Position), r.Driver, truncate(r.Team, 15), grid(r.Grid), gained(r), r.Time, points(r.Points))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

type sprintResultsTool struct{ src Sources }

func (t *sprintResultsTool) Name() string { return "get_sprint_results" }

func (t *sprintResultsTool) Description() string {
	return "Sprint race classification of a sprint weekend."
}

func (t *sprintResultsTool) Schema() []byte { return []byte(eventArgsSchema) }

func (t *sprintResultsTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var a eventArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", err
	}
	return respond(t.invoke(ctx, a))
}

func (t *sprintResultsTool) invoke(ctx context.Context, a eventArgs) (string, error) {
	p, err := loadEvent(ctx, t.src, a)
	if err != nil {
		return "", err
	}
	if !p.IsSprint {
		return fmt.Sprintf("The %s was not a sprint weekend.", title(p)), nil
	}
	if len(p.SprintResults) == 0 {
		return pendingResults(p, enrichment.FetchSprint, "sprint results"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### Sprint Results: %s\n\n", title(p))
	b.WriteString("| Pos | Driver | Team | Time | Pts |\n")
	b.WriteString("| :-- | :----- | :--- | :--- | :-- |\n")
	for _, r := range p.SprintResults {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			position(r.Position), r.Driver, truncate(r.Team, 15), r.Time, points(r.Points))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

type qualifyingTool struct{ src Sources }

func (t *qualifyingTool) Name() string { return "get_qualifying_results" }

func (t *qualifyingTool) Description() string {
	return "Qualifying results of a Grand Prix split into Q1, Q2 and Q3, each ordered by lap time."
}

func (t *qualifyingTool) Schema() []byte { return []byte(eventArgsSchema) }

func (t *qualifyingTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var a eventArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", err
	}
	return respond(t.invoke(ctx, a))
}

func (t *qualifyingTool) invoke(ctx context.Context, a eventArgs) (string, error) {
	p, err := loadEvent(ctx, t.src, a)
	if err != nil {
		return "", err
	}
	if len(p.Qualifying) == 0 {
		return pendingResults(p, enrichment.FetchQualifying, "qualifying results"), nil
	}
	return segmentTables(title(p), "", p.Qualifying), nil
}

type sprintQualifyingTool struct{ src Sources }

func (t *sprintQualifyingTool) Name() string { return "get_sprint_qualifying_results" }

func (t *sprintQualifyingTool) Description() string {
	return "Sprint qualifying (shootout) results of a sprint weekend, split into SQ1, SQ2 and SQ3."
}

func (t *sprintQualifyingTool) Schema() []byte { return []byte(eventArgsSchema) }

func (t *sprintQualifyingTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var a eventArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", err
	}
	return respond(t.invoke(ctx, a))
}

func (t *sprintQualifyingTool) invoke(ctx context.Context, a eventArgs) (string, error) {
	p, err := loadEvent(ctx, t.src, a)
	if err != nil {
		return "", err
	}
	if !p.IsSprint {
		return fmt.Sprintf("The %s was not a sprint weekend.", title(p)), nil
	}
	if len(p.SprintQualifying) == 0 {
		return fmt.Sprintf("Sprint qualifying data is not available for the %s.", title(p)), nil
	}
	return segmentTables(title(p), "S", p.SprintQualifying), nil
}

// segmentTables renders one table per segment; prefix is "S" for sprint
// qualifying.
func segmentTables(heading, prefix string, segments map[string][]enrichment.QualifyingRow) string {
	var parts []string
	for _, seg := range []string{"Q1", "Q2", "Q3"} {
		rows, ok := segments[seg]
		if !ok {
			continue
		}
		name := prefix + seg
		var b strings.Builder
		fmt.Fprintf(&b, "### %s Results: %s", name, heading)
		if seg == "Q3" {
			b.WriteString(" (Pole Position)")
		}
		fmt.Fprintf(&b, "\n\n| Pos | Driver | Team | %s Time |\n", name)
		b.WriteString("| :-- | :----- | :--- | :------ |\n")
		for _, r := range rows {
			fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", r.Position, r.Driver, truncate(r.Team, 15), r.Time)
		}
		parts = append(parts, strings.TrimRight(b.String(), "\n"))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func pendingResults(p *enrichment.Payload, fetch, what string) string {
	if msg, failed := p.Failures[fetch]; failed {
		return fmt.Sprintf("The %s for the %s could not be retrieved (%s).", what, title(p), msg)
	}
	if notConcluded(p) {
		return fmt.Sprintf("The %s has not concluded yet. Results are published about three hours after the race.", title(p))
	}
	return fmt.Sprintf("No %s available for the %s.", what, title(p))
}

func position(p *int) string {
	if p == nil {
		return "NC"
	}
	return strconv.Itoa(*p)
}

func grid(g *int) string {
	if g == nil {
		return "PL"
	}
	return strconv.Itoa(*g)
}

// gained is grid minus finish, "-" for pit-lane starters and non-classified.
func gained(r enrichment.ResultRow) string {
	if r.Position == nil || r.Grid == nil {
		return "-"
	}
	d := *r.Grid - *r.Position
	switch {
	case d > 0:
		return fmt.Sprintf("+%d", d)
	case d < 0:
		return strconv.Itoa(d)
	}
	return "="
}

func points(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
