package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	rulebookResults = 6
	excerptLength   = 500
)

const rulebookSchema = `{
  "type": "object",
  "properties": {
    "query": {"type": "string", "minLength": 1, "description": "What to look up in the regulations, e.g. 'DRS activation'"},
    "year": {"type": "integer", "minimum": 1950, "description": "Rulebook season; defaults to the current one"}
  },
  "required": ["query"]
}`

type rulebookTool struct{ src Sources }

func (t *rulebookTool) Name() string { return "consult_rulebook" }

func (t *rulebookTool) Description() string {
	return "Search the FIA sporting, technical and financial regulations for a season and return the most relevant excerpts."
}

func (t *rulebookTool) Schema() []byte { return []byte(rulebookSchema) }

func (t *rulebookTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var a struct {
		Query string `json:"query"`
		Year  int    `json:"year"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return "", err
	}
	if t.src.Rulebook == nil {
		return "The rulebook is not loaded. Run `pitwall ingest` to index the regulations.", nil
	}
	if a.Year == 0 {
		a.Year = t.src.Rulebook.DefaultYear(ctx, t.src.now())
	}

	k := t.src.RulebookTop
	if k <= 0 {
		k = rulebookResults
	}
	hits, err := t.src.Rulebook.Search(ctx, a.Year, a.Query, k)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return fmt.Sprintf("No regulations found for '%s' in the %d rulebook.", a.Query, a.Year), nil
	}

	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, fmt.Sprintf("**Source:** %s\n**Excerpt:** ...%s...", h.Filename, excerpt(h.Content)))
	}
	return strings.Join(parts, "\n\n"), nil
}

func excerpt(content string) string {
	return truncate(strings.Join(strings.Fields(content), " "), excerptLength)
}
