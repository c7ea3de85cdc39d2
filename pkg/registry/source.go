package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Source provides a batch of tools at startup, e.g. the built-ins or one MCP server.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]Tool, error)
}

// LoadResult reports what one Source contributed.
// A source that failed, or that lost tools to name collisions, is degraded.
type LoadResult struct {
	Source string
	Tools  []string
	Err    error
}

// Degraded reports whether the source did not load cleanly.
func (r LoadResult) Degraded() bool { return r.Err != nil }

func (r LoadResult) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: degraded (%v), %d tools", r.Source, r.Err, len(r.Tools))
	}
	return fmt.Sprintf("%s: ok, %d tools", r.Source, len(r.Tools))
}

// Load collects tools from every source in order. A failing source never aborts the
// others; its failure is returned in its LoadResult. A tool whose name was already
// provided by an earlier source is dropped and degrades the later source.
func Load(ctx context.Context, logger *slog.Logger, sources ...Source) ([]Tool, []LoadResult) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var (
		tools   []Tool
		results = make([]LoadResult, 0, len(sources))
		seen    = make(map[string]string)
	)
	for _, src := range sources {
		res := LoadResult{Source: src.Name()}
		loaded, err := src.Load(ctx)
		if err != nil {
			res.Err = err
		}
		var clashes []string
		for _, tool := range loaded {
			if owner, dup := seen[tool.Name]; dup {
				clashes = append(clashes, fmt.Sprintf("%s (already from %s)", tool.Name, owner))
				continue
			}
			seen[tool.Name] = src.Name()
			tools = append(tools, tool)
			res.Tools = append(res.Tools, tool.Name)
		}
		if len(clashes) > 0 && res.Err == nil {
			res.Err = fmt.Errorf("duplicate tool names: %s", strings.Join(clashes, ", "))
		}

		if res.Degraded() {
			logger.Warn("tool source degraded", "source", res.Source, "tools", len(res.Tools), "error", res.Err)
		} else {
			logger.Info("tool source loaded", "source", res.Source, "tools", len(res.Tools))
		}
		results = append(results, res)
	}
	return tools, results
}

// StaticSource serves a fixed list of tools.
type StaticSource struct {
	Label string
	Tools []Tool
}

func (s StaticSource) Name() string { return s.Label }

func (s StaticSource) Load(context.Context) ([]Tool, error) { return s.Tools, nil }
