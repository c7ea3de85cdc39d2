package domain

// ToolCall is a request, emitted by the model, to run a named tool.
// ID is unique within the assistant message that carries it.
type ToolCall struct {
	ID        string         `json:"id" yaml:"id" mapstructure:"id"`
	Name      string         `json:"name" yaml:"name" mapstructure:"name"`
	Arguments map[string]any `json:"arguments,omitempty" yaml:"arguments,omitempty" mapstructure:"arguments"`
}

// ToolDefinition describes a tool to the model.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name" yaml:"name" mapstructure:"name"`
	Description string         `json:"description" yaml:"description" mapstructure:"description"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty" mapstructure:"parameters"`
}

// Clone returns a deep copy of the call arguments so handlers can't mutate history.
func (c ToolCall) Clone() ToolCall {
	c.Arguments = cloneMap(c.Arguments)
	return c
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return cloneMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
