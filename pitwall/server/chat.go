package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	apierrors "github.com/ZanzyTHEbar/pitwall/pitwall/errors"
	"github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness"
	ports "github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness/ports"
)

const maxChatBody = 1 << 20

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	ConversationID string        `json:"conversation_id,omitempty"`
	Messages       []chatMessage `json:"messages"`
}

// handleChat streams the answer as text/plain with capability markers. The
// run is detached from the request so a client that goes away mid-answer
// does not cancel capability calls; events are drained regardless.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxChatBody)).Decode(&req); err != nil {
		writeError(w, apierrors.NewInvalidRequest("invalid chat body: "+err.Error()))
		return
	}
	history := chatHistory(req.Messages)
	if len(history) == 0 {
		writeError(w, apierrors.NewInvalidRequest("messages must contain at least one user or assistant message"))
		return
	}

	id := req.ConversationID
	if id == "" {
		id = uuid.NewString()
	}
	policy := *s.deps.Policy
	stream, err := s.deps.Orchestrator.Start(context.WithoutCancel(r.Context()), &harness.Request{
		Conversation: harness.NewConversation(id, history),
		Policy:       &policy,
	})
	if errors.Is(err, harness.ErrBusy) {
		writeError(w, apierrors.NewRateLimited())
		return
	}
	if err != nil {
		writeError(w, apierrors.NewInternal(err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Conversation-Id", id)
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	gone := false
	for ev := range stream.Events {
		if gone {
			continue
		}
		if _, err := io.WriteString(w, marker(ev)); err != nil {
			gone = true
			continue
		}
		_ = rc.Flush()
	}

	out := stream.Wait()
	s.logger.Info().
		Str("conversation_id", id).
		Str("reason", out.Reason.String()).
		Int("turns", out.Turns).
		Int("model_calls", out.ModelCalls).
		Bool("client_gone", gone).
		Msg("chat finished")
}

// chatHistory keeps user and assistant turns only.
func chatHistory(msgs []chatMessage) []ports.PromptMessage {
	out := make([]ports.PromptMessage, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case ports.RoleUser, ports.RoleAssistant:
			out = append(out, ports.PromptMessage{Role: m.Role, Content: m.Content})
		}
	}
	return out
}

// marker serializes one orchestrator event to the chat wire format.
func marker(ev harness.Event) string {
	switch ev.Kind {
	case harness.EventCapabilityStarted:
		return fmt.Sprintf("[TOOL_START]%s[/TOOL_START]", FriendlyName(ev.Capability))
	case harness.EventCapabilityFinished:
		return fmt.Sprintf("[TOOL_END]%s[/TOOL_END]", FriendlyName(ev.Capability))
	}
	return ev.Text
}

// FriendlyName turns "get_race_results" into "Get Race Results".
func FriendlyName(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
