package harness

import (
	"fmt"
	"strings"
	"time"

	ports "github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness/ports"
)

// RaceEngineerPersona is the fixed persona placed at the top of every system prompt.
const RaceEngineerPersona = `You are a top-tier F1 Race Engineer and Strategy Analyst.
Your goal is not just to fetch data, but to analyze it and explain the strategic implications to the user.

Guidelines:
1. Be insightful. Don't just list results; explain context.
2. When discussing points, mention the title battle.
3. When citing rules, act like a Sporting Director.
4. Use correct F1 terms (undercut, delta, dirty air, box lap).
5. Be direct and efficient.

You have access to race data, the official regulations and championship standings.
Always answer as if you are on the pit wall making critical decisions.`

// PromptBuilder assembles model-ready inputs from system text, messages, and tools.
type PromptBuilder struct {
	persona string
}

func NewPromptBuilder() *PromptBuilder { return &PromptBuilder{persona: RaceEngineerPersona} }

// System renders the system prompt for a request made at now.
func (b *PromptBuilder) System(now time.Time) string {
	var sb strings.Builder
	sb.WriteString(b.persona)
	sb.WriteString("\n\nCURRENT CONTEXT:\n")
	fmt.Fprintf(&sb, "- TODAY'S DATE: %s\n", now.Format("Monday, January 2, 2006"))
	sb.WriteString("\nTOOL USAGE:\n")
	fmt.Fprintf(&sb, "- If the user asks for the \"last race\", \"next race\" or the schedule, ALWAYS call get_season_schedule(%d) FIRST to identify the correct Grand Prix before calling any results tool.\n", now.Year())
	sb.WriteString("- Use get_race_results for final race classifications.\n")
	sb.WriteString("- Use compare_drivers for head-to-head qualifying comparisons.\n")
	sb.WriteString("- Use perform_web_search for recent news or information beyond your knowledge.\n")
	sb.WriteString("- If a tool returns a Markdown table, present it exactly as-is.\n")
	return sb.String()
}

// Build flattens system + chat messages into a Provider PromptInput.
func (b *PromptBuilder) Build(system string, messages []ports.PromptMessage, toolSpecs []ports.ToolSpec, meta map[string]string) ports.PromptInput {
	norm := func(s string) string { return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n")) }

	out := make([]ports.PromptMessage, len(messages))
	for i, m := range messages {
		m.Content = norm(m.Content)
		out[i] = m
	}

	return ports.PromptInput{
		System:   norm(system),
		Messages: out,
		Tools:    toolSpecs,
		Meta:     meta,
	}
}
