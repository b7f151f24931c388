package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	ports "github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness/ports"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint,
// Gemini's compatibility layer included.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider builds a provider for baseURL. An empty baseURL keeps the
// library default.
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg), model: model}
}

// Complete runs a single non-streaming completion.
func (p *OpenAIProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.request(in, opts, false))
	if err != nil {
		return ports.Completion{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ports.Completion{}, errors.New("chat completion: empty choices")
	}

	msg := resp.Choices[0].Message
	return ports.Completion{
		Text:      msg.Content,
		ToolCalls: fromOpenAIToolCalls(msg.ToolCalls),
		Raw:       resp,
		Usage: &ports.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Stream forwards text deltas as they arrive. Tool call fragments are
// assembled and delivered on the final chunk.
func (p *OpenAIProvider) Stream(ctx context.Context, in ports.PromptInput, opts ports.Options) (<-chan ports.CompletionChunk, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.request(in, opts, true))
	if err != nil {
		return nil, fmt.Errorf("chat completion stream: %w", err)
	}

	out := make(chan ports.CompletionChunk, 16)
	go func() {
		defer close(out)
		defer stream.Close()

		calls := map[int]*openai.ToolCall{}
		var usage *ports.Usage

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				out <- ports.CompletionChunk{Done: true, Err: fmt.Errorf("chat completion stream: %w", err)}
				return
			}
			if resp.Usage != nil {
				usage = &ports.Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				}
			}
			for _, choice := range resp.Choices {
				for i, tc := range choice.Delta.ToolCalls {
					idx := i
					if tc.Index != nil {
						idx = *tc.Index
					}
					acc, ok := calls[idx]
					if !ok {
						acc = &openai.ToolCall{Type: openai.ToolTypeFunction}
						calls[idx] = acc
					}
					if tc.ID != "" {
						acc.ID = tc.ID
					}
					if tc.Function.Name != "" {
						acc.Function.Name = tc.Function.Name
					}
					acc.Function.Arguments += tc.Function.Arguments
				}
				if choice.Delta.Content != "" {
					out <- ports.CompletionChunk{DeltaText: choice.Delta.Content}
				}
			}
		}

		idxs := make([]int, 0, len(calls))
		for idx := range calls {
			idxs = append(idxs, idx)
		}
		sort.Ints(idxs)
		assembled := make([]openai.ToolCall, 0, len(idxs))
		for _, idx := range idxs {
			assembled = append(assembled, *calls[idx])
		}

		out <- ports.CompletionChunk{Done: true, ToolCalls: fromOpenAIToolCalls(assembled), Usage: usage}
	}()

	return out, nil
}

func (p *OpenAIProvider) request(in ports.PromptInput, opts ports.Options, stream bool) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    toOpenAIMessages(in),
		MaxTokens:   opts.MaxNewTokens,
		Temperature: opts.Temperature,
		Stream:      stream,
	}
	if opts.Seed != 0 {
		seed := opts.Seed
		req.Seed = &seed
	}
	for _, spec := range in.Tools {
		var params any = json.RawMessage(spec.JSONSchema)
		if len(spec.JSONSchema) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  params,
			},
		})
	}
	if opts.ToolChoice != "" && len(req.Tools) > 0 {
		req.ToolChoice = opts.ToolChoice
	}
	if stream {
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return req
}

func toOpenAIMessages(in ports.PromptInput) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(in.Messages)+1)
	if in.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: in.System})
	}
	for _, m := range in.Messages {
		msg := openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
		switch m.Role {
		case ports.RoleAssistant:
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Args),
					},
				})
			}
		case ports.RoleTool:
			msg.ToolCallID = m.ToolCallID
			msg.Name = m.Name
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func fromOpenAIToolCalls(in []openai.ToolCall) []ports.ToolCall {
	if len(in) == 0 {
		return nil
	}
	out := make([]ports.ToolCall, 0, len(in))
	for _, tc := range in {
		args := json.RawMessage(tc.Function.Arguments)
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		out = append(out, ports.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}
	return out
}

var _ ports.Provider = (*OpenAIProvider)(nil)
