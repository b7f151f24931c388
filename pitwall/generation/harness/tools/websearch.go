package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const webResults = 3

const webSearchSchema = `{
  "type": "object",
  "properties": {
    "query": {"type": "string", "minLength": 1}
  },
  "required": ["query"]
}`

type webSearchTool struct{ src Sources }

func (t *webSearchTool) Name() string { return "perform_web_search" }

func (t *webSearchTool) Description() string {
	return "Search the web for recent news, driver market rumours, penalties or anything the other tools do not cover."
}

func (t *webSearchTool) Schema() []byte { return []byte(webSearchSchema) }

// Invoke reports search failures as text so the model can carry on.
func (t *webSearchTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var a struct {
		Query string `json:"query"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return "", err
	}
	if t.src.Web == nil {
		return "Search failed: web search is not configured", nil
	}

	results, err := t.src.Web.Search(ctx, a.Query, webResults)
	if err != nil {
		return fmt.Sprintf("Search failed: %v", err), nil
	}
	if len(results) == 0 {
		return "No search results found.", nil
	}

	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("Source: %s\nSnippet: %s\nURL: %s", r.Title, r.Content, r.URL))
	}
	return strings.Join(parts, "\n\n"), nil
}
