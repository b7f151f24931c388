package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNoAPIKey is returned when a keyed source is not configured.
var ErrNoAPIKey = errors.New("upstream: api key not configured")

// Tavily is the web search source.
type Tavily struct {
	client  *Client
	baseURL string
	apiKey  string
}

// NewTavily creates a Tavily source.
func NewTavily(client *Client, baseURL, apiKey string) *Tavily {
	return &Tavily{client: client, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

type tavilyRequest struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

// Search returns up to max results for query.
func (t *Tavily) Search(ctx context.Context, query string, max int) ([]SearchResult, error) {
	if t.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if max <= 0 {
		max = 3
	}

	payload, err := json.Marshal(tavilyRequest{Query: query, SearchDepth: "basic", MaxResults: max})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	body, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily search: %w", err)
	}

	var resp struct {
		Results []SearchResult `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("tavily search: decode: %w", err)
	}
	if len(resp.Results) > max {
		resp.Results = resp.Results[:max]
	}
	return resp.Results, nil
}
