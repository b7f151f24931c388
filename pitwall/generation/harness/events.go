package harness

import (
	ports "github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness/ports"
)

// EventKind tags an orchestrator event.
type EventKind int

const (
	EventTextChunk EventKind = iota
	EventCapabilityStarted
	EventCapabilityFinished
)

func (k EventKind) String() string {
	switch k {
	case EventTextChunk:
		return "text_chunk"
	case EventCapabilityStarted:
		return "capability_started"
	case EventCapabilityFinished:
		return "capability_finished"
	default:
		return "unknown"
	}
}

// Event is one item of the orchestrator's output stream. Text is set on text
// chunks; Capability and CallID on capability boundaries; Result on finish.
type Event struct {
	Kind       EventKind
	Text       string
	Capability string
	CallID     string
	Result     ports.ResultKind
}

func TextChunk(text string) Event {
	return Event{Kind: EventTextChunk, Text: text}
}

func CapabilityStarted(call ports.ToolCall) Event {
	return Event{Kind: EventCapabilityStarted, Capability: call.Name, CallID: call.ID}
}

func CapabilityFinished(res ports.ToolResult) Event {
	return Event{Kind: EventCapabilityFinished, Capability: res.Name, CallID: res.CallID, Result: res.Kind}
}

// State is the orchestrator state machine position.
type State int

const (
	StateAwaitingModel State = iota
	StateExecutingCapabilities
	StateStreamingFinal
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "AWAITING_MODEL"
	case StateExecutingCapabilities:
		return "EXECUTING_CAPABILITIES"
	case StateStreamingFinal:
		return "STREAMING_FINAL"
	default:
		return "TERMINATED"
	}
}

// Termination explains why a run ended.
type Termination int

const (
	TerminatedFinal Termination = iota
	TerminatedMaxTurns
	TerminatedFailed
)

func (t Termination) String() string {
	switch t {
	case TerminatedFinal:
		return "final"
	case TerminatedMaxTurns:
		return "max_turns"
	default:
		return "failed"
	}
}

// Outcome summarizes a finished run.
type Outcome struct {
	Reason     Termination
	Turns      int // capability round trips
	ModelCalls int
	Err        error // set when Reason is TerminatedFailed
}

// Stream carries the events of one run. Outcome is valid once Events is closed.
type Stream struct {
	Events <-chan Event

	done    chan struct{}
	outcome Outcome
}

// Wait blocks until the run has finished and returns its outcome. The caller
// must keep reading Events or the run cannot finish.
func (s *Stream) Wait() Outcome {
	<-s.done
	return s.outcome
}
