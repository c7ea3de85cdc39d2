package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/aretw0/itinera/pkg/domain"
	"github.com/aretw0/itinera/pkg/ports"
)

// Mask replaces redacted values.
const Mask = "***"

type piiMiddleware struct {
	next     ports.CheckpointStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks tool argument and result values whose
// key matches one of the patterns, e.g. "(?i)password" or "(?i)api_?key".
// Masking happens before the write; the caller's messages are left untouched.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Append(ctx context.Context, threadID string, msgs ...domain.Message) (domain.Checkpoint, error) {
	masked := make([]domain.Message, len(msgs))
	for i, msg := range msgs {
		// Clone so the in-memory history of the running turn keeps the real values.
		msg = msg.Clone()
		for j := range msg.ToolCalls {
			maskMap(msg.ToolCalls[j].Arguments, m.patterns)
		}
		if result, ok := msg.Result.(map[string]any); ok && maskMap(result, m.patterns) && msg.Error == nil {
			if body, err := json.Marshal(result); err == nil {
				msg.Content = string(body)
			}
		}
		masked[i] = msg
	}
	return m.next.Append(ctx, threadID, masked...)
}

func (m *piiMiddleware) Latest(ctx context.Context, threadID string) (*domain.ConversationState, error) {
	return m.next.Latest(ctx, threadID)
}

func (m *piiMiddleware) ListThreads(ctx context.Context) ([]string, error) {
	return m.next.ListThreads(ctx)
}

// maskMap masks m in place and reports whether anything changed.
func maskMap(m map[string]any, patterns []*regexp.Regexp) bool {
	changed := false
	for k, v := range m {
		if matchesAny(k, patterns) {
			m[k] = Mask
			changed = true
			continue
		}

		switch sub := v.(type) {
		case map[string]any:
			changed = maskMap(sub, patterns) || changed
		case []any:
			for _, item := range sub {
				if subMap, ok := item.(map[string]any); ok {
					changed = maskMap(subMap, patterns) || changed
				}
			}
		}
	}
	return changed
}

func matchesAny(key string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
