// Package openai implements ports.Model against an OpenAI-compatible chat completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/itinera/pkg/domain"
	"github.com/aretw0/itinera/pkg/ports"
)

const (
	defaultBaseURL  = "https://api.openai.com/v1"
	defaultEndpoint = "/chat/completions"
	defaultModel    = "gpt-4"
	defaultTimeout  = 2 * time.Minute
	maxResponseSize = 2 << 20
)

// Config configures the model adapter.
type Config struct {
	APIKey string
	// Model defaults to gpt-4.
	Model   string
	BaseURL string
	// SystemPrompt, when set, is sent ahead of the conversation on every request.
	SystemPrompt string
	Temperature  float64
	HTTPClient   *http.Client
}

// Model talks to the chat completions API.
type Model struct {
	apiKey       string
	model        string
	endpointURL  string
	systemPrompt string
	temperature  float64
	httpClient   *http.Client
}

var _ ports.Model = (*Model)(nil)

// New validates cfg and builds a Model.
func New(cfg Config) (*Model, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("new model adapter: api key is required")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Model{
		apiKey:       apiKey,
		model:        model,
		endpointURL:  strings.TrimRight(baseURL, "/") + defaultEndpoint,
		systemPrompt: cfg.SystemPrompt,
		temperature:  cfg.Temperature,
		httpClient:   httpClient,
	}, nil
}

// Generate sends the conversation and returns the assistant reply.
func (m *Model) Generate(ctx context.Context, req domain.ModelRequest) (domain.Message, error) {
	payload, err := m.buildRequest(req)
	if err != nil {
		return domain.Message{}, fmt.Errorf("provider request: %w", err)
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return domain.Message{}, fmt.Errorf("provider request encode: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpointURL, bytes.NewReader(encoded))
	if err != nil {
		return domain.Message{}, fmt.Errorf("provider request build: %w", err)
	}
	httpRequest.Header.Set("Authorization", "Bearer "+m.apiKey)
	httpRequest.Header.Set("Content-Type", "application/json")

	response, err := m.httpClient.Do(httpRequest)
	if err != nil {
		return domain.Message{}, fmt.Errorf("provider request execute: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return domain.Message{}, fmt.Errorf("provider response read: %w", err)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return domain.Message{}, &StatusError{Code: response.StatusCode, Body: string(body)}
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.Message{}, fmt.Errorf("provider response decode: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return domain.Message{}, fmt.Errorf("provider response decode: no choices")
	}

	msg, err := toDomainMessage(parsed.Choices[0].Message)
	if err != nil {
		return domain.Message{}, fmt.Errorf("provider response decode: %w", err)
	}
	return msg, nil
}

// StatusError is returned for non-2xx provider responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider response status=%d body=%s", e.Code, e.Body)
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
}

type chatTool struct {
	Type     string           `json:"type"`
	Function chatToolFunction `json:"function"`
}

type chatToolCall struct {
	ID       string               `json:"id"`
	Type     string               `json:"type"`
	Function chatToolCallFunction `json:"function"`
}

type chatToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func (m *Model) buildRequest(req domain.ModelRequest) (chatCompletionRequest, error) {
	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if m.systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: m.systemPrompt})
	}
	for i, msg := range req.Messages {
		converted, err := toChatMessage(msg)
		if err != nil {
			return chatCompletionRequest{}, fmt.Errorf("message %d: %w", i, err)
		}
		messages = append(messages, converted)
	}

	tools := make([]chatTool, len(req.Tools))
	for i, def := range req.Tools {
		tools[i] = chatTool{
			Type: "function",
			Function: chatToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		}
	}

	return chatCompletionRequest{
		Model:       m.model,
		Messages:    messages,
		Tools:       tools,
		Temperature: m.temperature,
	}, nil
}

func toChatMessage(msg domain.Message) (chatMessage, error) {
	switch msg.Role {
	case domain.RoleUser:
		return chatMessage{Role: "user", Content: msg.Content}, nil
	case domain.RoleTool:
		if msg.CallID == "" {
			return chatMessage{}, fmt.Errorf("tool message missing call id")
		}
		return chatMessage{Role: "tool", Content: msg.Content, Name: msg.ToolName, ToolCallID: msg.CallID}, nil
	case domain.RoleAssistant:
		calls := make([]chatToolCall, len(msg.ToolCalls))
		for i, call := range msg.ToolCalls {
			arguments := "{}"
			if len(call.Arguments) > 0 {
				encoded, err := json.Marshal(call.Arguments)
				if err != nil {
					return chatMessage{}, fmt.Errorf("encode tool call arguments: %w", err)
				}
				arguments = string(encoded)
			}
			calls[i] = chatToolCall{
				ID:       call.ID,
				Type:     "function",
				Function: chatToolCallFunction{Name: call.Name, Arguments: arguments},
			}
		}
		return chatMessage{Role: "assistant", Content: msg.Content, ToolCalls: calls}, nil
	default:
		return chatMessage{}, fmt.Errorf("unsupported message role %q", msg.Role)
	}
}

func toDomainMessage(msg chatMessage) (domain.Message, error) {
	if msg.Role != "assistant" {
		return domain.Message{}, fmt.Errorf("expected assistant message role, got %q", msg.Role)
	}

	calls := make([]domain.ToolCall, len(msg.ToolCalls))
	for i, call := range msg.ToolCalls {
		arguments := map[string]any{}
		if strings.TrimSpace(call.Function.Arguments) != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &arguments); err != nil {
				return domain.Message{}, fmt.Errorf("decode tool call arguments for %q: %w", call.Function.Name, err)
			}
		}
		calls[i] = domain.ToolCall{ID: call.ID, Name: call.Function.Name, Arguments: arguments}
	}
	return domain.AssistantMessage(msg.Content, calls...), nil
}
