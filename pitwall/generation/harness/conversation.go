package harness

import (
	"fmt"

	ports "github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness/ports"
)

// Conversation is the append-only message history of one request. Every
// capability result must answer a call of the immediately preceding intent.
type Conversation struct {
	ID       string
	Messages []ports.PromptMessage

	pending map[string]string // call id -> name
	order   []string
}

// NewConversation seeds a conversation with prior user/assistant messages.
func NewConversation(id string, history []ports.PromptMessage) *Conversation {
	msgs := make([]ports.PromptMessage, len(history))
	copy(msgs, history)
	return &Conversation{ID: id, Messages: msgs}
}

// AppendIntent records an assistant message requesting calls and opens them.
func (c *Conversation) AppendIntent(text string, calls []ports.ToolCall) error {
	if len(c.pending) > 0 {
		return fmt.Errorf("conversation %s: %d results still pending", c.ID, len(c.pending))
	}
	c.pending = make(map[string]string, len(calls))
	c.order = c.order[:0]
	for _, call := range calls {
		if _, dup := c.pending[call.ID]; dup || call.ID == "" {
			return fmt.Errorf("conversation %s: invalid call id %q", c.ID, call.ID)
		}
		c.pending[call.ID] = call.Name
		c.order = append(c.order, call.ID)
	}
	c.Messages = append(c.Messages, ports.PromptMessage{
		Role:      ports.RoleAssistant,
		Content:   text,
		ToolCalls: calls,
	})
	return nil
}

// AppendResult closes one pending call. Results must follow request order.
func (c *Conversation) AppendResult(res ports.ToolResult) error {
	if len(c.order) == 0 {
		return fmt.Errorf("conversation %s: no pending call for %q", c.ID, res.CallID)
	}
	if c.order[0] != res.CallID {
		return fmt.Errorf("conversation %s: result %q out of order, expected %q", c.ID, res.CallID, c.order[0])
	}
	c.order = c.order[1:]
	delete(c.pending, res.CallID)

	c.Messages = append(c.Messages, ports.PromptMessage{
		Role:       ports.RoleTool,
		Content:    res.Content,
		ToolCallID: res.CallID,
		Name:       res.Name,
	})
	return nil
}

// Pending reports how many calls of the last intent still lack a result.
func (c *Conversation) Pending() int {
	return len(c.pending)
}

// LastUserMessage returns the most recent user content, if any.
func (c *Conversation) LastUserMessage() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == ports.RoleUser {
			return c.Messages[i].Content
		}
	}
	return ""
}
