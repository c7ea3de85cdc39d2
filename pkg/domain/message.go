package domain

import (
	"encoding/json"
	"fmt"
)

// Role discriminates the variants of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a thread.
//
// A single struct carries the three variants; Role selects which fields are meaningful:
//   - user: Content.
//   - assistant: Content and ToolCalls (possibly empty).
//   - tool: ToolName, CallID, Content (the text the model reads), Result and Error.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	ToolName  string     `json:"tool_name,omitempty"`
	CallID    string     `json:"call_id,omitempty"`
	Result    any        `json:"result,omitempty"`
	Error     *ToolError `json:"error,omitempty"`
}

// UserMessage creates a message authored by the user.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage creates a model reply, optionally requesting tool calls.
func AssistantMessage(content string, calls ...ToolCall) Message {
	m := Message{Role: RoleAssistant, Content: content}
	if len(calls) > 0 {
		m.ToolCalls = append([]ToolCall(nil), calls...)
	}
	return m
}

// ToolResultMessage answers call with a successful result.
func ToolResultMessage(call ToolCall, result any) Message {
	return Message{
		Role:     RoleTool,
		ToolName: call.Name,
		CallID:   call.ID,
		Content:  renderResult(result),
		Result:   result,
	}
}

// ToolErrorMessage answers call with a failure the model can react to.
func ToolErrorMessage(call ToolCall, err *ToolError) Message {
	body, _ := json.Marshal(map[string]string{
		"error":  string(err.Reason),
		"detail": err.Detail,
	})
	return Message{
		Role:     RoleTool,
		ToolName: call.Name,
		CallID:   call.ID,
		Content:  string(body),
		Error:    err,
	}
}

// HasToolCalls reports whether an assistant message requests any tool.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// IsError reports whether a tool result carries a failure.
func (m Message) IsError() bool {
	return m.Role == RoleTool && m.Error != nil
}

// Validate checks that the fields set match the message role.
func (m Message) Validate() error {
	switch m.Role {
	case RoleUser:
		if len(m.ToolCalls) > 0 || m.CallID != "" {
			return fmt.Errorf("user message: %w", ErrInvalidMessage)
		}
	case RoleAssistant:
		seen := make(map[string]struct{}, len(m.ToolCalls))
		for i, call := range m.ToolCalls {
			if call.Name == "" {
				return fmt.Errorf("assistant message: tool call %d has no name: %w", i, ErrInvalidMessage)
			}
			if call.ID == "" {
				return fmt.Errorf("assistant message: tool call %d has no id: %w", i, ErrInvalidMessage)
			}
			if _, dup := seen[call.ID]; dup {
				return fmt.Errorf("assistant message: duplicate call id %q: %w", call.ID, ErrInvalidMessage)
			}
			seen[call.ID] = struct{}{}
		}
	case RoleTool:
		if m.CallID == "" || m.ToolName == "" {
			return fmt.Errorf("tool message: call id and tool name are required: %w", ErrInvalidMessage)
		}
	default:
		return fmt.Errorf("unknown role %q: %w", m.Role, ErrInvalidMessage)
	}
	return nil
}

// Clone returns a copy that shares no mutable state with m.
func (m Message) Clone() Message {
	if m.ToolCalls != nil {
		calls := make([]ToolCall, len(m.ToolCalls))
		for i, c := range m.ToolCalls {
			calls[i] = c.Clone()
		}
		m.ToolCalls = calls
	}
	m.Result = cloneValue(m.Result)
	if m.Error != nil {
		e := *m.Error
		m.Error = &e
	}
	return m
}

func renderResult(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprint(result)
	}
	return string(body)
}
