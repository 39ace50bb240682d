package agent

import (
	"context"

	"github.com/convodesk/convodesk/types"
)

// Action enumerates the two outcomes a handler can request for a turn.
type Action string

const (
	// ActionStay keeps conversation ownership with the responding handler.
	ActionStay Action = "stay"
	// ActionHandoff transfers ownership to another handler.
	ActionHandoff Action = "handoff"
)

// Decision is the transient handoff outcome a handler emits alongside its
// response. It is never persisted on its own; the orchestrator folds it into
// the turn result and the next agent message's attribution.
type Decision struct {
	Action Action `json:"action"`
	Target string `json:"target,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Stay returns a decision that keeps ownership with the current handler.
func Stay() Decision {
	return Decision{Action: ActionStay}
}

// HandoffTo returns a decision transferring ownership to target.
func HandoffTo(target, reason string) Decision {
	return Decision{Action: ActionHandoff, Target: target, Reason: reason}
}

// Request carries one turn's input to a handler: the new user text plus the
// retained context snapshot it may consult.
type Request struct {
	DialogID string
	UserText string
	Context  []types.Message
	Summary  *types.Summary
}

// Result is what a handler returns for one dispatch. Metadata is merged into
// the turn result by the orchestrator; handlers must not persist anything
// themselves.
type Result struct {
	Response string
	Decision Decision
	Metadata map[string]any
}

// Handler is the specialist contract. Implementations produce a response for
// the user text and may request a handoff in the same turn; the caller
// decides whether the handoff completes.
type Handler interface {
	Name() string
	Handle(ctx context.Context, req *Request) (*Result, error)
}
