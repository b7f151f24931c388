package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ports "github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness/ports"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLRUCache_BasicOperations tests get, set, eviction and expiry.
func TestLRUCache_BasicOperations(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(2)
	now := time.Date(2025, 5, 25, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(ctx, "a", []byte("1"), 60))
	require.NoError(t, cache.Set(ctx, "b", []byte("2"), 60))

	v, ok := cache.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	// "b" is now least recently used
	require.NoError(t, cache.Set(ctx, "c", []byte("3"), 60))
	_, ok = cache.Get(ctx, "b")
	assert.False(t, ok)
	assert.Equal(t, 2, cache.Len())

	now = now.Add(2 * time.Minute)
	_, ok = cache.Get(ctx, "a")
	assert.False(t, ok, "entry should expire after its ttl")

	require.NoError(t, cache.Delete(ctx, "c"))
	assert.Equal(t, 0, cache.Len())
}

// TestTokenBucket_NonBlocking tests that an empty bucket fails fast.
func TestTokenBucket_NonBlocking(t *testing.T) {
	tb := NewTokenBucket(2, time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		release, err := tb.Acquire(ctx, "chat")
		require.NoError(t, err)
		release()
	}

	_, err := tb.Acquire(ctx, "chat")
	assert.ErrorIs(t, err, ErrRateLimitExceeded)

	// keys are independent
	_, err = tb.Acquire(ctx, "other")
	assert.NoError(t, err)
}

// TestTokenBucket_BlockingWaitsForRefill tests that a blocking bucket waits.
func TestTokenBucket_BlockingWaitsForRefill(t *testing.T) {
	tb := NewBlockingTokenBucket(1, 20*time.Millisecond)
	ctx := context.Background()

	_, err := tb.Acquire(ctx, "ergast")
	require.NoError(t, err)

	start := time.Now()
	_, err = tb.Acquire(ctx, "ergast")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

// TestTokenBucket_BlockingHonoursContext tests cancellation while waiting.
func TestTokenBucket_BlockingHonoursContext(t *testing.T) {
	tb := NewBlockingTokenBucket(1, time.Hour)
	_, err := tb.Acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = tb.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestZerologTracer_SpanAttributes tests that span attributes reach events.
func TestZerologTracer_SpanAttributes(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewZerologTracer(zerolog.New(&buf).Level(zerolog.DebugLevel))

	ctx, finish := tracer.StartSpan(context.Background(), "model_call", map[string]any{"turn": 1})
	tracer.Event(ctx, "tool_result", map[string]any{"name": "get_race_results"})
	finish(fmt.Errorf("boom"))

	out := buf.String()
	assert.Contains(t, out, `"span":"model_call"`)
	assert.Contains(t, out, `"event":"tool_result"`)
	assert.Contains(t, out, `"turn":1`)
	assert.Contains(t, out, `"error":"boom"`)
}

func TestZerologTracer_EventOutsideSpan(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewZerologTracer(zerolog.New(&buf))

	tracer.Event(context.Background(), "cache_hit", map[string]any{"round": 5})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "cache_hit", line["event"])
	assert.Equal(t, float64(5), line["round"])
	assert.NotContains(t, line, "span")

	buf.Reset()
	ctx, finish := tracer.StartSpan(context.Background(), "load", nil)
	buf.Reset()
	tracer.Event(ctx, "sub_fetch", nil)
	finish(nil)

	first, _, _ := bytes.Cut(buf.Bytes(), []byte("\n"))
	line = nil
	require.NoError(t, json.Unmarshal(first, &line))
	assert.Equal(t, "load", line["span"])
	assert.Equal(t, "sub_fetch", line["event"])
}

func newChatServer(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		handler(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestOpenAIProvider_CompleteWithToolCalls tests request shape and tool call decoding.
func TestOpenAIProvider_CompleteWithToolCalls(t *testing.T) {
	var seen map[string]any
	srv := newChatServer(t, func(w http.ResponseWriter, body map[string]any) {
		seen = body
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id":"x","object":"chat.completion","model":"m",
			"choices":[{"index":0,"finish_reason":"tool_calls","message":{
				"role":"assistant","content":"",
				"tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_season_schedule","arguments":"{\"year\":2025}"}}]}}],
			"usage":{"prompt_tokens":10,"completion_tokens":3,"total_tokens":13}}`)
	})

	p := NewOpenAIProvider("k", srv.URL+"/v1", "m")
	out, err := p.Complete(context.Background(), ports.PromptInput{
		System: "sys",
		Messages: []ports.PromptMessage{
			{Role: ports.RoleUser, Content: "who won the last race"},
			{Role: ports.RoleAssistant, ToolCalls: []ports.ToolCall{{ID: "c0", Name: "x", Args: json.RawMessage(`{}`)}}},
			{Role: ports.RoleTool, ToolCallID: "c0", Name: "x", Content: "ok"},
		},
		Tools: []ports.ToolSpec{{Name: "get_season_schedule", Description: "d", JSONSchema: []byte(`{"type":"object"}`)}},
	}, ports.Options{MaxNewTokens: 100})
	require.NoError(t, err)

	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "call_1", out.ToolCalls[0].ID)
	assert.Equal(t, "get_season_schedule", out.ToolCalls[0].Name)
	assert.JSONEq(t, `{"year":2025}`, string(out.ToolCalls[0].Args))
	assert.Equal(t, 13, out.Usage.TotalTokens)

	msgs := seen["messages"].([]any)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "c0", msgs[3].(map[string]any)["tool_call_id"])
	tools := seen["tools"].([]any)
	require.Len(t, tools, 1)
}

// TestOpenAIProvider_StreamAssemblesToolCalls tests SSE delta assembly.
func TestOpenAIProvider_StreamAssemblesToolCalls(t *testing.T) {
	srv := newChatServer(t, func(w http.ResponseWriter, body map[string]any) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"Box "}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"box."}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_9","type":"function","function":{"name":"get_race_results","arguments":"{\"year\":"}}]}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"2025}"}}]}}]}`,
		}
		for _, e := range events {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", e)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})

	p := NewOpenAIProvider("k", srv.URL+"/v1", "m")
	ch, err := p.Stream(context.Background(), ports.PromptInput{}, ports.Options{})
	require.NoError(t, err)

	var text string
	var final ports.CompletionChunk
	for chunk := range ch {
		text += chunk.DeltaText
		if chunk.Done {
			final = chunk
		}
	}

	assert.Equal(t, "Box box.", text)
	require.NoError(t, final.Err)
	require.Len(t, final.ToolCalls, 1)
	assert.Equal(t, "call_9", final.ToolCalls[0].ID)
	assert.JSONEq(t, `{"year":2025}`, string(final.ToolCalls[0].Args))
}
