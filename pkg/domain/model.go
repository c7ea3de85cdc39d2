package domain

// ModelRequest is the input of one model invocation: the full thread history and
// the tools the model may request.
type ModelRequest struct {
	ThreadID string           `json:"thread_id"`
	Messages []Message        `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}
