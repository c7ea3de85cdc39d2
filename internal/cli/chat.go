package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/itinera"
	"github.com/aretw0/itinera/internal/presentation/tui"
	"github.com/aretw0/itinera/pkg/domain"
	"github.com/aretw0/itinera/pkg/input"
)

// ChatOptions configures an interactive chat session.
type ChatOptions struct {
	// ThreadID resumes a thread; empty starts a new one.
	ThreadID string
	// Quiet suppresses status lines.
	Quiet bool
}

// Chat is a line-oriented REPL over one thread at a time.
//
// Lines are sent as user turns. The commands are:
//
//	/new      start a new thread
//	/thread   print the current thread id
//	/history  reprint the current thread
//	/tools    list the available tools
//	q, quit, exit
type Chat struct {
	app      *App
	printer  *tui.Printer
	opts     ChatOptions
	threadID string
}

// NewChat creates a chat session writing through printer.
func NewChat(app *App, printer *tui.Printer, opts ChatOptions) *Chat {
	return &Chat{app: app, printer: printer, opts: opts}
}

// ThreadID returns the thread the session is on.
func (c *Chat) ThreadID() string {
	return c.threadID
}

// Run reads lines from in until EOF, a quit command or ctx ends.
// Interruptions return nil.
func (c *Chat) Run(ctx context.Context, in io.Reader, prompt io.Writer) error {
	if err := c.open(ctx, c.opts.ThreadID); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(prompt, "> ")
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			return handleExecutionError(ctx.Err())
		case line, ok = <-lines:
		}
		if !ok {
			return nil
		}

		quit, err := c.handle(ctx, line)
		if quit {
			return nil
		}
		if err != nil {
			if isInterrupted(err) {
				return nil
			}
			c.printer.Error(err)
		}
	}
}

func (c *Chat) handle(ctx context.Context, line string) (quit bool, err error) {
	switch cmd := strings.TrimSpace(line); cmd {
	case "q", "quit", "exit":
		return true, nil
	case "/new":
		return false, c.open(ctx, "")
	case "/thread":
		c.printer.System("Thread '%s'.", c.threadID)
		return false, nil
	case "/history":
		history, err := c.app.Engine.History(ctx, c.threadID)
		if err != nil {
			return false, err
		}
		printHistory(c.printer, history)
		return false, nil
	case "/tools":
		for _, def := range c.app.Engine.Tools() {
			c.printer.System("%s: %s", def.Name, def.Description)
		}
		return false, nil
	}

	text, err := input.Sanitize(line)
	if errors.Is(err, input.ErrEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return false, c.Send(ctx, text)
}

// Send runs one turn and prints its messages as they arrive.
func (c *Chat) Send(ctx context.Context, text string) error {
	stream := c.app.Engine.Stream(c.threadID, text)
	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		switch ev.Kind {
		case domain.EventMessage:
			c.printer.Print(*ev.Message)
		case domain.EventError:
			return ev.Err
		case domain.EventDone:
			return nil
		}
	}
}

func (c *Chat) open(ctx context.Context, threadID string) error {
	if threadID == "" {
		c.threadID = itinera.NewThreadID()
		if !c.opts.Quiet {
			c.printer.System("Thread '%s' active.", c.threadID)
		}
		return nil
	}

	history, err := c.app.Engine.History(ctx, threadID)
	if err != nil {
		return err
	}
	c.threadID = threadID
	if !c.opts.Quiet {
		if len(history) > 0 {
			c.printer.System("Resuming thread '%s' (%d messages).", threadID, len(history))
		} else {
			c.printer.System("Thread '%s' active.", threadID)
		}
	}
	return nil
}

// printHistory replays a thread, user lines included.
func printHistory(p *tui.Printer, history []domain.Message) {
	for _, msg := range history {
		if msg.Role == domain.RoleUser {
			p.System("user: %s", msg.Content)
			continue
		}
		p.Print(msg)
	}
}
