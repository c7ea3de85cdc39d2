package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aretw0/itinera/pkg/domain"
	"github.com/muesli/termenv"
)

// Printer writes conversation messages to a terminal.
type Printer struct {
	out     io.Writer
	profile termenv.Profile
	render  Renderer
}

// NewPrinter detects the color profile of the terminal. A nil render prints assistant text raw.
func NewPrinter(out io.Writer, render Renderer) *Printer {
	return NewPrinterWithProfile(out, render, termenv.ColorProfile())
}

// NewPrinterWithProfile is NewPrinter with an explicit color profile.
func NewPrinterWithProfile(out io.Writer, render Renderer, profile termenv.Profile) *Printer {
	if render == nil {
		render = PlainRenderer
	}
	return &Printer{out: out, profile: profile, render: render}
}

func (p *Printer) style(s, color string) termenv.Style {
	return p.profile.String(s).Foreground(p.profile.Color(color))
}

// Print writes msg. User messages are skipped since the user just typed them.
func (p *Printer) Print(msg domain.Message) {
	switch msg.Role {
	case domain.RoleAssistant:
		for _, call := range msg.ToolCalls {
			fmt.Fprintf(p.out, "%s %s\n", p.style("→", "#818cf8"), p.style(FormatCall(call), "#a78bfa"))
		}
		if strings.TrimSpace(msg.Content) == "" {
			return
		}
		text, err := p.render(msg.Content)
		if err != nil {
			text = msg.Content
		}
		fmt.Fprintln(p.out, text)
	case domain.RoleTool:
		if msg.IsError() {
			fmt.Fprintf(p.out, "%s %s\n", p.style("✗", "#fb7185"),
				p.style(fmt.Sprintf("%s: %s", msg.ToolName, msg.Error), "#fb7185"))
			return
		}
		fmt.Fprintf(p.out, "%s %s\n", p.style("←", "#818cf8"),
			p.profile.String(fmt.Sprintf("%s: %s", msg.ToolName, msg.Content)).Faint())
	}
}

// System writes a standardized status line.
func (p *Printer) System(format string, args ...any) {
	fmt.Fprintf(p.out, "%s\n", p.style(">>> "+fmt.Sprintf(format, args...), "#c084fc"))
}

// Error writes err in the error color.
func (p *Printer) Error(err error) {
	fmt.Fprintf(p.out, "%s\n", p.style("error: "+err.Error(), "#fb7185"))
}

// FormatCall renders a call as name(key=value, ...) with keys sorted.
func FormatCall(call domain.ToolCall) string {
	keys := make([]string, 0, len(call.Arguments))
	for k := range call.Arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := json.Marshal(call.Arguments[k])
		if err != nil {
			v = []byte(fmt.Sprint(call.Arguments[k]))
		}
		parts = append(parts, k+"="+string(v))
	}
	return call.Name + "(" + strings.Join(parts, ", ") + ")"
}
