package core

// Role is the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model issued request to invoke a local tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON text as produced by the model
}

// Message is one entry of a conversation. Assistant messages may carry
// ToolCalls; tool messages carry ToolCallID and ToolName of the call they answer.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

// SystemMessage creates a system message.
func SystemMessage(text string) Message { return Message{Role: RoleSystem, Content: text} }

// UserMessage creates a user message.
func UserMessage(text string) Message { return Message{Role: RoleUser, Content: text} }

// AssistantMessage creates a plain assistant message.
func AssistantMessage(text string) Message { return Message{Role: RoleAssistant, Content: text} }

// ToolResultMessage creates the tool message answering callID.
func ToolResultMessage(callID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, ToolName: name}
}

// HasToolCalls reports whether m is an assistant message requesting tool calls.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// ValidateConversation checks the pairing invariant providers enforce: every
// tool call issued by an assistant message is answered by exactly one tool
// message, in issue order, before any other message follows.
func ValidateConversation(msgs []Message) error {
	var pending []ToolCall
	for i, m := range msgs {
		if m.Role == RoleTool {
			if len(pending) == 0 {
				return NewValidationError("message %d: tool result %q without a preceding tool call", i, m.ToolCallID)
			}
			if pending[0].ID != m.ToolCallID {
				return NewValidationError("message %d: tool result %q out of order, expected %q", i, m.ToolCallID, pending[0].ID)
			}
			pending = pending[1:]
			continue
		}
		if len(pending) > 0 {
			return NewValidationError("message %d: tool call %q has no result", i, pending[0].ID)
		}
		if m.HasToolCalls() {
			pending = append(pending, m.ToolCalls...)
		}
	}
	if len(pending) > 0 {
		return NewValidationError("tool call %q has no result", pending[0].ID)
	}
	return nil
}
