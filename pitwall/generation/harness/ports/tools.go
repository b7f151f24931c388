package harnessports

import (
	"context"
	"encoding/json"
)

// ToolSpec describes a callable tool exposed to the model.
type ToolSpec struct {
	Name        string // unique logical name
	Description string // concise doc for model selection
	JSONSchema  []byte // JSON schema for args
}

// ToolCall represents a model-invoked function with JSON arguments.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// Tool defines the runtime that executes a tool call.
type Tool interface {
	Name() string
	Description() string
	Schema() []byte
	Invoke(ctx context.Context, args json.RawMessage) (string, error)
}

// ToolResolver looks tools up by name.
type ToolResolver interface {
	Resolve(name string) (Tool, bool)
	Specs() []ToolSpec
}

// ResultKind tags how a tool call ended.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultTimeout
	ResultError
)

func (k ResultKind) String() string {
	switch k {
	case ResultSuccess:
		return "success"
	case ResultTimeout:
		return "timeout"
	default:
		return "error"
	}
}

// ToolResult is the outcome of one tool call. Content is always set so it can
// be fed back to the model.
type ToolResult struct {
	CallID  string
	Name    string
	Kind    ResultKind
	Content string
	Err     error
}
