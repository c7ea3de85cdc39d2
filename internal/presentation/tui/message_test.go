package tui

import (
	"bytes"
	"errors"
	"testing"

	"github.com/aretw0/itinera/pkg/domain"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func TestFormatCall(t *testing.T) {
	call := domain.ToolCall{ID: "c1", Name: "add", Arguments: map[string]any{"b": 3.0, "a": "2"}}
	assert.Equal(t, `add(a="2", b=3)`, FormatCall(call))
	assert.Equal(t, "now()", FormatCall(domain.ToolCall{Name: "now"}))
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinterWithProfile(&buf, nil, termenv.Ascii)

	call := domain.ToolCall{ID: "c1", Name: "add", Arguments: map[string]any{"a": 2.0, "b": 3.0}}
	p.Print(domain.UserMessage("what is 2+3?"))
	p.Print(domain.AssistantMessage("", call))
	p.Print(domain.ToolResultMessage(call, 5.0))
	p.Print(domain.ToolErrorMessage(domain.ToolCall{ID: "c2", Name: "divide"},
		domain.NewToolError(domain.ReasonInvalidArguments, "division by zero")))
	p.Print(domain.AssistantMessage("2 + 3 = 5"))

	assert.Equal(t, "→ add(a=2, b=3)\n"+
		"← add: 5\n"+
		"✗ divide: invalid-arguments: division by zero\n"+
		"2 + 3 = 5\n", buf.String())
}

func TestPrinter_RenderFailureFallsBack(t *testing.T) {
	var buf bytes.Buffer
	failing := func(string) (string, error) { return "", errors.New("boom") }
	p := NewPrinterWithProfile(&buf, failing, termenv.Ascii)

	p.Print(domain.AssistantMessage("**bold**"))
	p.System("thread %s", "t-1")

	assert.Equal(t, "**bold**\n>>> thread t-1\n", buf.String())
}
