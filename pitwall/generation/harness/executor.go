package harness

import (
	"context"
	"fmt"
	"time"

	ports "github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness/ports"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/semaphore"
)

// Executor runs capability calls on a bounded worker pool and turns every
// outcome into a ToolResult.
type Executor struct {
	guard   *Guardrails
	pool    *semaphore.Weighted
	timeout time.Duration
	tracer  ports.Tracer
}

// NewExecutor creates an executor with workers concurrent handler slots.
func NewExecutor(guard *Guardrails, workers int, timeout time.Duration, tracer ports.Tracer) *Executor {
	if workers < 1 {
		workers = 1
	}
	if guard == nil {
		guard = NewGuardrails()
	}
	if tracer == nil {
		tracer = &noOpTracer{}
	}
	return &Executor{
		guard:   guard,
		pool:    semaphore.NewWeighted(int64(workers)),
		timeout: timeout,
		tracer:  tracer,
	}
}

// Timeout returns the per-call bound.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Execute runs one call. It never returns an error: failures become
// ResultError and overruns become ResultTimeout. A timed-out handler keeps its
// worker slot until it actually returns.
func (e *Executor) Execute(ctx context.Context, tool ports.Tool, call ports.ToolCall) ports.ToolResult {
	ctx, finish := e.tracer.StartSpan(ctx, "tool_call", map[string]any{
		"tool":    call.Name,
		"call_id": call.ID,
	})

	res := e.execute(ctx, tool, call)
	finish(res.Err)
	return res
}

func (e *Executor) execute(ctx context.Context, tool ports.Tool, call ports.ToolCall) ports.ToolResult {
	if err := e.guard.ValidateToolCall(call, tool.Schema()); err != nil {
		return errorResult(call, err)
	}

	toolCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.pool.Acquire(toolCtx, 1); err != nil {
		return e.timeoutResult(call)
	}

	type outcome struct {
		content string
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		defer e.pool.Release(1)

		var out outcome
		if r := panics.Try(func() {
			out.content, out.err = tool.Invoke(toolCtx, call.Args)
		}); r != nil {
			out.err = r.AsError()
		}
		done <- out
	}()

	select {
	case out := <-done:
		return e.result(toolCtx, call, out.content, out.err)
	case <-toolCtx.Done():
		// a handler that returned as the deadline fired still counts
		select {
		case out := <-done:
			return e.result(toolCtx, call, out.content, out.err)
		default:
		}
		if ctx.Err() != nil {
			return errorResult(call, ctx.Err())
		}
		return e.timeoutResult(call)
	}
}

func (e *Executor) result(toolCtx context.Context, call ports.ToolCall, content string, err error) ports.ToolResult {
	if err != nil {
		if toolCtx.Err() == context.DeadlineExceeded {
			return e.timeoutResult(call)
		}
		return errorResult(call, err)
	}
	return ports.ToolResult{CallID: call.ID, Name: call.Name, Kind: ports.ResultSuccess, Content: content}
}

func (e *Executor) timeoutResult(call ports.ToolCall) ports.ToolResult {
	err := fmt.Errorf("%s: %w", call.Name, context.DeadlineExceeded)
	return ports.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Kind:    ports.ResultTimeout,
		Content: TimeoutMessage(call.Name, e.timeout),
		Err:     err,
	}
}

func errorResult(call ports.ToolCall, err error) ports.ToolResult {
	return ports.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Kind:    ports.ResultError,
		Content: ErrorMessage(call.Name, err),
		Err:     err,
	}
}

// unknownToolResult answers a call whose name does not resolve.
func unknownToolResult(call ports.ToolCall) ports.ToolResult {
	err := fmt.Errorf("unknown tool: %s", call.Name)
	return ports.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Kind:    ports.ResultError,
		Content: fmt.Sprintf("Tool '%s' is not available. Use one of the declared tools.", call.Name),
		Err:     err,
	}
}

// TimeoutMessage is the text fed back to the model when a call overruns.
func TimeoutMessage(name string, timeout time.Duration) string {
	return fmt.Sprintf("Tool '%s' timed out after %s. The data source may be slow, try again.", name, humanDuration(timeout))
}

// ErrorMessage is the text fed back to the model when a call fails.
func ErrorMessage(name string, err error) string {
	return fmt.Sprintf("Error executing tool '%s': %v", name, err)
}

func humanDuration(d time.Duration) string {
	if d >= time.Second && d%time.Second == 0 {
		return fmt.Sprintf("%d seconds", int(d/time.Second))
	}
	return d.String()
}
