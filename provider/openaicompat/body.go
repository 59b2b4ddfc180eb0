package openaicompat

import (
	"github.com/nevindra/lumen"
)

// BuildBody converts lumen ChatMessages and a model name into an OpenAI-format
// ChatRequest. Tool observations are sent as user messages: the agent carries
// tool results as text, with no tool_call_id to attach them to.
func BuildBody(messages []lumen.ChatMessage, model string, opts ...Option) ChatRequest {
	msgs := make([]Message, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role == lumen.RoleTool {
			role = lumen.RoleUser
		}
		msgs = append(msgs, Message{Role: role, Content: m.Content})
	}

	req := ChatRequest{
		Model:    model,
		Messages: msgs,
	}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}
