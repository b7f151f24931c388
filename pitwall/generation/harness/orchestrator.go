package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ports "github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness/ports"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// MaxTurnsNotice is streamed when the capability round-trip bound is hit.
	MaxTurnsNotice = "**System Notice:** Reached the maximum number of reasoning steps. Please try a more specific question."
	failurePrefix  = "**System Error:** My telemetry failed. Reason: "
)

// ErrBusy is returned by Start when the request rate limit is exhausted.
var ErrBusy = errors.New("orchestrator busy")

// Request configures one orchestration run.
type Request struct {
	Conversation *Conversation
	Policy       *Policy
}

// Policy controls orchestration behavior.
type Policy struct {
	MaxTurns     int           // capability round trips before the notice
	ToolTimeout  time.Duration // per-call timeout, informational; the executor enforces it
	MaxNewTokens int
	Temperature  float32
	Seed         int
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxTurns:     5,
		ToolTimeout:  30 * time.Second,
		MaxNewTokens: 2048,
		Temperature:  0,
	}
}

// HarnessOrchestrator drives the model/capability loop for one conversation
// at a time per Start call; it holds no per-request state itself.
type HarnessOrchestrator struct {
	provider ports.Provider
	tools    ports.ToolResolver
	executor *Executor
	builder  *PromptBuilder
	store    ports.ConversationStore
	limiter  ports.RateLimiter
	tracer   ports.Tracer
	logger   zerolog.Logger
	now      func() time.Time
}

// NewHarnessOrchestrator creates a new orchestrator with dependencies. Nil
// store, limiter and tracer fall back to no-op implementations.
func NewHarnessOrchestrator(
	provider ports.Provider,
	tools ports.ToolResolver,
	executor *Executor,
	builder *PromptBuilder,
	store ports.ConversationStore,
	limiter ports.RateLimiter,
	tracer ports.Tracer,
	logger zerolog.Logger,
) *HarnessOrchestrator {
	if builder == nil {
		builder = NewPromptBuilder()
	}
	if store == nil {
		store = &noOpStore{}
	}
	if limiter == nil {
		limiter = &noOpRateLimiter{}
	}
	if tracer == nil {
		tracer = &noOpTracer{}
	}
	return &HarnessOrchestrator{
		provider: provider,
		tools:    tools,
		executor: executor,
		builder:  builder,
		store:    store,
		limiter:  limiter,
		tracer:   tracer,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
		now:      time.Now,
	}
}

// Start admits the request and runs it in its own goroutine. Events must be
// drained by the caller until the channel closes.
func (o *HarnessOrchestrator) Start(ctx context.Context, req *Request) (*Stream, error) {
	if req == nil || req.Conversation == nil {
		return nil, errors.New("orchestrator: nil conversation")
	}
	if req.Policy == nil {
		req.Policy = DefaultPolicy()
	}

	release, err := o.limiter.Acquire(ctx, "chat")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBusy, err)
	}

	events := make(chan Event, 16)
	s := &Stream{Events: events, done: make(chan struct{})}

	go func() {
		defer close(s.done)
		defer close(events)
		defer release()
		s.outcome = o.run(ctx, req, events)
	}()

	return s, nil
}

// run is the outer boundary: anything escaping the loop, panics included,
// becomes one error chunk.
func (o *HarnessOrchestrator) run(ctx context.Context, req *Request, events chan<- Event) (out Outcome) {
	conv := req.Conversation
	ctx, finish := o.tracer.StartSpan(ctx, "orchestrate", map[string]any{
		"conversation_id": conv.ID,
		"max_turns":       req.Policy.MaxTurns,
	})

	defer func() {
		if r := recover(); r != nil {
			out.Reason = TerminatedFailed
			out.Err = fmt.Errorf("panic: %v", r)
		}
		if out.Reason == TerminatedFailed {
			o.logger.Error().Err(out.Err).Str("conversation_id", conv.ID).Msg("turn loop failed")
			events <- TextChunk(failurePrefix + out.Err.Error())
		}
		finish(out.Err)
	}()

	if q := conv.LastUserMessage(); q != "" {
		o.persist(ctx, conv.ID, ports.RoleUser, q)
	}

	out = o.loop(ctx, req, events)
	return out
}

func (o *HarnessOrchestrator) loop(ctx context.Context, req *Request, events chan<- Event) Outcome {
	conv := req.Conversation
	policy := req.Policy
	system := o.builder.System(o.now())
	specs := o.tools.Specs()

	var out Outcome

	for {
		if conv.Pending() > 0 {
			out.Reason, out.Err = TerminatedFailed, fmt.Errorf("model invoked with %d pending results", conv.Pending())
			return out
		}

		prompt := o.builder.Build(system, conv.Messages, specs, map[string]string{
			"conversation_id": conv.ID,
		})
		out.ModelCalls++
		turn, err := o.invokeModel(ctx, prompt, policy, out.ModelCalls)
		if err != nil {
			out.Reason, out.Err = TerminatedFailed, err
			return out
		}

		if len(turn.calls) == 0 {
			o.logState(conv.ID, StateStreamingFinal, out)
			for _, delta := range turn.deltas {
				events <- TextChunk(delta)
			}
			o.persist(ctx, conv.ID, ports.RoleAssistant, turn.text)
			out.Reason = TerminatedFinal
			return out
		}

		if out.Turns >= policy.MaxTurns {
			events <- TextChunk(MaxTurnsNotice)
			out.Reason = TerminatedMaxTurns
			o.logState(conv.ID, StateTerminated, out)
			return out
		}

		out.Turns++
		o.logState(conv.ID, StateExecutingCapabilities, out)

		calls := normalizeCalls(turn.calls)
		if err := conv.AppendIntent(turn.text, calls); err != nil {
			out.Reason, out.Err = TerminatedFailed, err
			return out
		}

		for _, call := range calls {
			res := o.dispatch(ctx, call, events)
			if err := conv.AppendResult(res); err != nil {
				out.Reason, out.Err = TerminatedFailed, err
				return out
			}
		}
		o.logState(conv.ID, StateAwaitingModel, out)
	}
}

// dispatch resolves and runs one call. Unresolved names get a result but no
// start/end markers.
func (o *HarnessOrchestrator) dispatch(ctx context.Context, call ports.ToolCall, events chan<- Event) ports.ToolResult {
	tool, ok := o.tools.Resolve(call.Name)
	if !ok {
		o.logger.Warn().Str("tool", call.Name).Msg("model requested unknown tool")
		return unknownToolResult(call)
	}

	events <- CapabilityStarted(call)
	res := o.executor.Execute(ctx, tool, call)
	events <- CapabilityFinished(res)

	if res.Kind != ports.ResultSuccess {
		o.logger.Warn().Err(res.Err).Str("tool", call.Name).Str("result", res.Kind.String()).Msg("tool call did not succeed")
	}
	return res
}

type modelTurn struct {
	text   string
	deltas []string
	calls  []ports.ToolCall
}

// invokeModel streams one completion. Text deltas are held back until the
// turn is known to be final.
func (o *HarnessOrchestrator) invokeModel(ctx context.Context, prompt ports.PromptInput, policy *Policy, n int) (modelTurn, error) {
	ctx, finish := o.tracer.StartSpan(ctx, "provider_call", map[string]any{"invocation": n})

	opts := ports.Options{
		MaxNewTokens: policy.MaxNewTokens,
		Temperature:  policy.Temperature,
		Seed:         policy.Seed,
	}

	stream, err := o.provider.Stream(ctx, prompt, opts)
	if err != nil {
		finish(err)
		return modelTurn{}, fmt.Errorf("provider stream failed: %w", err)
	}

	agg := newStreamingAggregator()
	for chunk := range stream {
		agg.addChunk(chunk)
	}
	finish(agg.err)
	if agg.err != nil {
		return modelTurn{}, agg.err
	}

	return modelTurn{text: agg.text(), deltas: agg.deltas, calls: agg.toolCalls}, nil
}

// streamingAggregator accumulates streaming chunks for one model invocation.
type streamingAggregator struct {
	deltas    []string
	toolCalls []ports.ToolCall
	usage     *ports.Usage
	err       error
}

func newStreamingAggregator() *streamingAggregator {
	return &streamingAggregator{}
}

func (a *streamingAggregator) addChunk(chunk ports.CompletionChunk) {
	if chunk.Err != nil && a.err == nil {
		a.err = chunk.Err
	}
	if chunk.DeltaText != "" {
		a.deltas = append(a.deltas, chunk.DeltaText)
	}
	if len(chunk.ToolCalls) > 0 {
		a.toolCalls = append(a.toolCalls, chunk.ToolCalls...)
	}
	if chunk.Usage != nil {
		a.usage = chunk.Usage
	}
}

func (a *streamingAggregator) text() string {
	return strings.Join(a.deltas, "")
}

// normalizeCalls gives every call a unique id so each result can be matched.
func normalizeCalls(calls []ports.ToolCall) []ports.ToolCall {
	out := make([]ports.ToolCall, len(calls))
	seen := make(map[string]bool, len(calls))
	for i, c := range calls {
		if c.ID == "" || seen[c.ID] {
			c.ID = "call_" + uuid.NewString()
		}
		seen[c.ID] = true
		out[i] = c
	}
	return out
}

func (o *HarnessOrchestrator) persist(ctx context.Context, conversationID, role, content string) {
	if err := o.store.SaveTurn(ctx, conversationID, ports.Turn{
		Role:      role,
		Content:   content,
		CreatedAt: o.now(),
	}); err != nil {
		o.tracer.Event(ctx, "store_error", map[string]any{"error": err.Error()})
	}
}

func (o *HarnessOrchestrator) logState(conversationID string, state State, out Outcome) {
	o.logger.Debug().
		Str("conversation_id", conversationID).
		Str("state", state.String()).
		Int("turns", out.Turns).
		Int("model_calls", out.ModelCalls).
		Msg("state transition")
}
