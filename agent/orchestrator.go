package agent

import (
	"context"

	"github.com/convodesk/convodesk/types"
	"go.uber.org/zap"
)

// turnState tracks where a turn is in its resolution lifecycle. States are
// per-turn only; nothing survives past ProcessTurn returning.
type turnState string

const (
	stateUnresolved     turnState = "unresolved"
	stateRouted         turnState = "routed"
	stateDispatched     turnState = "dispatched"
	stateHandoffPending turnState = "handoff_pending"
	stateResolved       turnState = "resolved"
	stateFailed         turnState = "failed"
)

// ReasonRoutingLoop marks a turn whose handoff chain exceeded the reroute
// bound and was force-resolved to the escalation handler.
const ReasonRoutingLoop = "routing_loop"

// ReasonHandlerUnavailable marks a turn where the prior owner went
// unavailable and routing reassigned the dialog.
const ReasonHandlerUnavailable = "handler_unavailable"

// MetaRerouteCount is the turn-result metadata key carrying how many
// handoffs were resolved within the turn.
const MetaRerouteCount = "reroute_count"

// OrchestratorConfig bounds handoff chains.
type OrchestratorConfig struct {
	// MaxReroutes is the loop guard: a turn resolving more handoffs than
	// this is force-routed to the escalation handler.
	MaxReroutes int `yaml:"max_reroutes" json:"max_reroutes"`

	// EscalationHandler receives force-routed loops.
	EscalationHandler string `yaml:"escalation_handler" json:"escalation_handler"`
}

// DefaultOrchestratorConfig allows three reroutes per turn.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxReroutes:       3,
		EscalationHandler: HandlerEscalation,
	}
}

// Snapshot is the retained context a turn operates on: the bounded message
// window plus at most one summary of compacted history.
type Snapshot struct {
	Messages []types.Message
	Summary  *types.Summary
}

// Orchestrator drives one turn end to end: resolve the owning handler from
// history, route when unowned, dispatch, resolve handoff chains under the
// loop guard, and assemble the turn result. It holds no per-dialog state;
// ownership is re-derived from the snapshot on every call.
type Orchestrator struct {
	registry *Registry
	router   *IntentRouter
	cfg      OrchestratorConfig
	logger   *zap.Logger
}

// NewOrchestrator wires the turn engine over a registry and router.
func NewOrchestrator(registry *Registry, router *IntentRouter, cfg OrchestratorConfig, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxReroutes <= 0 {
		cfg.MaxReroutes = 3
	}
	if cfg.EscalationHandler == "" {
		cfg.EscalationHandler = HandlerEscalation
	}
	return &Orchestrator{
		registry: registry,
		router:   router,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "orchestrator")),
	}
}

// CurrentHandler returns the attributed handler of the most recent
// agent-authored message, or empty when no agent message exists yet.
func CurrentHandler(messages []types.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleAgent && messages[i].AgentName != "" {
			return messages[i].AgentName
		}
	}
	return ""
}

// ProcessTurn resolves one user message into a turn result.
//
// Internal routing and handoff anomalies (self-handoff, unknown or
// unavailable targets, reroute loops) are recovered locally and still yield
// a valid result. Only provider exhaustion and an unavailable default
// handler surface as errors; on error nothing is produced, so the caller
// persists nothing and the dialog's ownership is unchanged.
func (o *Orchestrator) ProcessTurn(ctx context.Context, dialogID, userText string, snapshot *Snapshot) (*types.TurnResult, error) {
	if snapshot == nil {
		snapshot = &Snapshot{}
	}
	log := o.logger.With(zap.String("dialog_id", dialogID))

	prevOwner := CurrentHandler(snapshot.Messages)
	state := stateUnresolved
	current := ""
	intent := ""

	if prevOwner != "" {
		if o.registry.IsAvailable(prevOwner) {
			current = prevOwner
			state = stateDispatched
		} else {
			log.Warn("prior owner unavailable, rerouting", zap.String("owner", prevOwner))
		}
	}

	if state == stateUnresolved {
		route, err := o.router.Route(ctx, userText, snapshot.Messages)
		if err != nil {
			return nil, o.fail(log, err)
		}
		current = route.Target
		intent = route.Intent
		state = stateRouted
		log.Debug("turn routed", zap.String("state", string(state)), zap.String("target", current))
		state = stateDispatched
	}
	initial := current

	req := &Request{
		DialogID: dialogID,
		UserText: userText,
		Context:  snapshot.Messages,
		Summary:  snapshot.Summary,
	}

	var previous, reason string
	reroutes := 0
	var last *Result

	for {
		handler, err := o.registry.Handler(current)
		if err != nil {
			return nil, o.fail(log, err)
		}
		log.Debug("dispatching", zap.String("state", string(state)), zap.String("handler", current))

		res, err := handler.Handle(ctx, req)
		if err != nil {
			return nil, o.fail(log, err)
		}
		last = res

		if res.Decision.Action != ActionHandoff {
			break
		}

		target := res.Decision.Target
		handoffReason := res.Decision.Reason

		if target == current {
			// Self-handoff is not a meaningful transition. Logged and
			// finalized as a stay.
			log.Warn("invalid transition: self-handoff ignored",
				zap.String("handler", current),
				zap.String("reason", handoffReason),
			)
			break
		}

		if !o.registry.IsAvailable(target) {
			// The named target cannot take the dialog; ask the router
			// instead of completing the invalid handoff.
			log.Warn("handoff target unavailable, falling back to routing",
				zap.String("from", current),
				zap.String("target", target),
			)
			route, err := o.router.Route(ctx, userText, snapshot.Messages)
			if err != nil {
				return nil, o.fail(log, err)
			}
			if route.Target == current {
				break // routing kept ownership here; treat as a stay
			}
			target = route.Target
			if intent == "" {
				intent = route.Intent
			}
		}

		reroutes++
		if reroutes > o.cfg.MaxReroutes {
			// Loop guard: resolve by forced escalation, no further chaining.
			previous = current
			current = o.cfg.EscalationHandler
			reason = ReasonRoutingLoop
			log.Warn("reroute bound exceeded, forcing escalation",
				zap.Int("reroutes", reroutes),
				zap.Int("max_reroutes", o.cfg.MaxReroutes),
			)
			break
		}

		previous = current
		current = target
		reason = handoffReason
		state = stateHandoffPending
		log.Info("handoff resolved",
			zap.String("state", string(state)),
			zap.String("from", previous),
			zap.String("to", current),
			zap.String("reason", reason),
		)
	}
	state = stateResolved

	// The handoff reason is set exactly when ownership ends up somewhere
	// other than the owner of record: the prior turn's owner, or for a
	// first-contact turn the handler routing selected.
	ownerOfRecord := prevOwner
	if ownerOfRecord == "" {
		ownerOfRecord = initial
	}
	if current == ownerOfRecord {
		previous = ""
		reason = ""
	} else if reason == "" {
		previous = prevOwner
		reason = ReasonHandlerUnavailable
	}

	metadata := make(map[string]any, len(last.Metadata)+1)
	for k, v := range last.Metadata {
		metadata[k] = v
	}
	metadata[MetaRerouteCount] = reroutes

	log.Info("turn resolved",
		zap.String("state", string(state)),
		zap.String("current", current),
		zap.String("previous", previous),
		zap.String("handoff_reason", reason),
		zap.String("intent", intent),
		zap.Int("reroutes", reroutes),
	)

	return &types.TurnResult{
		Response:      last.Response,
		CurrentAgent:  current,
		PreviousAgent: previous,
		HandoffReason: reason,
		Intent:        intent,
		Metadata:      metadata,
	}, nil
}

func (o *Orchestrator) fail(log *zap.Logger, err error) error {
	log.Error("turn failed", zap.String("state", string(stateFailed)), zap.Error(err))
	return err
}
