package harnessports

import (
	"context"
)

// Chat roles understood by providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// PromptMessage represents a single chat message used to build prompts.
type PromptMessage struct {
	Role       string     // "system", "user", "assistant", "tool"
	Content    string
	ToolCalls  []ToolCall // set on assistant intents
	ToolCallID string     // set on tool results
	Name       string     // capability name on tool results
}

// PromptInput aggregates everything the provider needs to produce a completion.
type PromptInput struct {
	System   string            // system instructions
	Messages []PromptMessage   // ordered chat history
	Tools    []ToolSpec        // tool declarations available to the model
	Meta     map[string]string // lightweight metadata for tracing
}

// Options controls sampling and limits.
type Options struct {
	MaxNewTokens int
	Temperature  float32
	Seed         int
	// ToolChoice: "auto" | "none" | specific tool name (if the provider supports it)
	ToolChoice string
}

// Usage captures token accounting for telemetry.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the provider's non-streaming response.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
	Raw       any    // raw provider payload for debugging/telemetry
	Usage     *Usage // optional usage information
}

// CompletionChunk is the provider's streaming delta. ToolCalls are only set
// once they are complete.
type CompletionChunk struct {
	DeltaText string
	ToolCalls []ToolCall
	Done      bool
	Err       error  // terminal stream error
	Usage     *Usage // on final chunk when available
}

// Provider is the abstraction for all LLM backends.
type Provider interface {
	Complete(ctx context.Context, in PromptInput, opts Options) (Completion, error)
	Stream(ctx context.Context, in PromptInput, opts Options) (<-chan CompletionChunk, error)
}
