package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/pitwall/pitwall/upstream"
)

type scheduleTool struct{ src Sources }

func (t *scheduleTool) Name() string { return "get_season_schedule" }

func (t *scheduleTool) Description() string {
	return "Race calendar of a season with the status of every round relative to today. Use it to find the latest completed race."
}

func (t *scheduleTool) Schema() []byte { return []byte(seasonSchema) }

func (t *scheduleTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var a seasonArgs
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
	var b strings.Builder
	fmt.Fprintf(&b, "### F1 Season Schedule (%d)\n", a.Year)
	fmt.Fprintf(&b, "*(Current Date: %s)*\n\n", now.UTC().Format("2006-01-02"))
	b.WriteString("| Round | Grand Prix | Date | Status |\n")
	b.WriteString("| :---- | :--------- | :--- | :----- |\n")

	var last *upstream.Event
	for i, ev := range events {
		status := ev.Status(now)
		if status == upstream.StatusCompleted {
			last = &events[i]
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", ev.Round, ev.Name, ev.ConcludesAt().UTC().Format("Jan 02"), statusLabel(status))
	}

	if last != nil {
		fmt.Fprintf(&b, "\n**Context:** The last completed race was the **%s**.", last.Name)
	} else {
		b.WriteString("\n**Context:** No race of this season has been completed yet.")
	}
	return b.String(), nil
}

func statusLabel(s string) string {
	switch s {
	case upstream.StatusCompleted:
		return "Completed"
	case upstream.StatusInProgress:
		return "In Progress"
	}
	return "Upcoming"
}
