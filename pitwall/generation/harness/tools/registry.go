// Package tools implements the race-engineer capabilities the orchestrator
// can call. Every capability returns markdown or plain text for the model.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ZanzyTHEbar/pitwall/pitwall/enrichment"
	ports "github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness/ports"
	"github.com/ZanzyTHEbar/pitwall/pitwall/rulebook"
	"github.com/ZanzyTHEbar/pitwall/pitwall/upstream"
)

// SeasonSource serves schedules and championship tables.
type SeasonSource interface {
	Schedule(ctx context.Context, season int) ([]upstream.Event, error)
	DriverStandings(ctx context.Context, season, round int) ([]upstream.DriverStanding, error)
	ConstructorStandings(ctx context.Context, season, round int) ([]upstream.ConstructorStanding, error)
}

// RulebookSearcher answers regulation queries.
type RulebookSearcher interface {
	Search(ctx context.Context, year int, query string, k int) ([]rulebook.Excerpt, error)
	DefaultYear(ctx context.Context, now time.Time) int
}

// WebSearcher runs a web search.
type WebSearcher interface {
	Search(ctx context.Context, query string, max int) ([]upstream.SearchResult, error)
}

// Sources are the backends the default capability set reads from. Rulebook
// and Web may be nil; their capabilities then report that they are offline.
type Sources struct {
	Season      SeasonSource
	Cache       *enrichment.Cache
	LoadTimeout time.Duration
	Rulebook    RulebookSearcher
	RulebookTop int // excerpts per rulebook query, 6 when zero
	Web         WebSearcher
	Now         func() time.Time
}

func (s Sources) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Registry is a static name table of capabilities.
type Registry struct {
	tools map[string]ports.Tool
	order []string
}

// NewRegistry indexes tools by name. A later tool with the same name
// replaces an earlier one.
func NewRegistry(tools ...ports.Tool) *Registry {
	r := &Registry{tools: make(map[string]ports.Tool, len(tools))}
	for _, t := range tools {
		if _, dup := r.tools[t.Name()]; !dup {
			r.order = append(r.order, t.Name())
		}
		r.tools[t.Name()] = t
	}
	return r
}

// Default builds the full race-engineer capability set.
func Default(src Sources) *Registry {
	return NewRegistry(
		&scheduleTool{src: src},
		&raceResultsTool{src: src},
		&qualifyingTool{src: src},
		&sprintResultsTool{src: src},
		&sprintQualifyingTool{src: src},
		&compareTool{src: src},
		&driverStandingsTool{src: src},
		&constructorStandingsTool{src: src},
		&scenarioTool{src: src},
		&rulebookTool{src: src},
		&webSearchTool{src: src},
		&trackConditionsTool{},
	)
}

// Resolve returns the capability registered under name.
func (r *Registry) Resolve(name string) (ports.Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Specs describes every capability in registration order.
func (r *Registry) Specs() []ports.ToolSpec {
	specs := make([]ports.ToolSpec, 0, len(r.order))
	for _, t := range r.Tools() {
		specs = append(specs, ports.ToolSpec{Name: t.Name(), Description: t.Description(), JSONSchema: t.Schema()})
	}
	return specs
}

// Tools returns the capabilities in registration order.
func (r *Registry) Tools() []ports.Tool {
	out := make([]ports.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns the registered names sorted.
func (r *Registry) Names() []string {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

var _ ports.ToolResolver = (*Registry)(nil)

func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
