package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aretw0/itinera/internal/presentation/tui"
	"github.com/aretw0/itinera/pkg/domain"
)

// Watch follows a thread on a running server and prints every turn as it happens.
// It returns nil when ctx ends or the server closes the stream.
func Watch(ctx context.Context, client *http.Client, baseURL, threadID string, printer *tui.Printer) error {
	if client == nil {
		client = http.DefaultClient
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/threads/" + url.PathEscape(threadID) + "/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		return handleExecutionError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("watch %s: unexpected status %d", threadID, resp.StatusCode)
	}

	var kind string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			kind = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			handleWatchEvent(printer, threadID, kind, strings.TrimPrefix(line, "data: "))
		case line == "":
			kind = ""
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func handleWatchEvent(printer *tui.Printer, threadID, kind, data string) {
	if kind == "ping" {
		printer.System("Watching thread '%s'.", threadID)
		return
	}
	var ev domain.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		printer.Error(fmt.Errorf("malformed %s event: %w", kind, err))
		return
	}
	switch ev.Kind {
	case domain.EventMessage:
		if ev.Message == nil {
			return
		}
		if ev.Message.Role == domain.RoleUser {
			printer.System("user: %s", ev.Message.Content)
			return
		}
		printer.Print(*ev.Message)
	case domain.EventError:
		printer.Error(fmt.Errorf("turn failed: %s", ev.Error))
	case domain.EventDone:
		printer.System("Turn finished.")
	}
}
