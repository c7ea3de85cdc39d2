package runtime

import "github.com/aretw0/itinera/pkg/domain"

// Phase is a state of the turn loop.
type Phase string

const (
	PhaseModelTurn Phase = "MODEL_TURN"
	PhaseToolTurn  Phase = "TOOL_TURN"
	PhaseDone      Phase = "DONE"
)

// Route picks the phase that follows an assistant message.
// It looks only at the requested tool calls, never at the content.
func Route(msg domain.Message) Phase {
	if len(msg.ToolCalls) == 0 {
		return PhaseDone
	}
	return PhaseToolTurn
}

// pendingCalls returns the calls of the trailing assistant message that have no
// result yet. A thread interrupted mid tool turn ends this way.
func pendingCalls(history []domain.Message) []domain.ToolCall {
	answered := make(map[string]bool)
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		switch msg.Role {
		case domain.RoleTool:
			answered[msg.CallID] = true
		case domain.RoleAssistant:
			var pending []domain.ToolCall
			for _, call := range msg.ToolCalls {
				if !answered[call.ID] {
					pending = append(pending, call)
				}
			}
			return pending
		default:
			return nil
		}
	}
	return nil
}
