package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/aretw0/itinera/internal/presentation/tui"
)

// ListThreads prints every known thread id, sorted.
func ListThreads(ctx context.Context, app *App, out io.Writer) error {
	ids, err := app.Engine.Threads(ctx)
	if err != nil {
		return err
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return nil
}

// ShowThread prints a thread, either rendered or as JSON Lines.
func ShowThread(ctx context.Context, app *App, threadID string, out io.Writer, asJSON bool) error {
	history, err := app.Engine.History(ctx, threadID)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return fmt.Errorf("thread %q has no messages", threadID)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		for _, msg := range history {
			if err := enc.Encode(msg); err != nil {
				return err
			}
		}
		return nil
	}
	printHistory(tui.NewPrinter(out, tui.NewRenderer()), history)
	return nil
}
