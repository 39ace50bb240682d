package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/convodesk/convodesk/llm"
	"github.com/convodesk/convodesk/types"
	"go.uber.org/zap"
)

// MetaUnresolvedTurns is the metadata key under which a specialist carries
// its repeated-failure counter across turns. The counter lives on persisted
// agent messages, never in handler state.
const MetaUnresolvedTurns = "unresolved_turns"

// unresolvedMarkers are user phrasings that signal the previous answer did
// not resolve the issue.
var unresolvedMarkers = []string{
	"still not working",
	"still doesn't work",
	"still broken",
	"didn't help",
	"does not help",
	"doesn't help",
	"same problem",
	"same issue",
	"not resolved",
	"tried that already",
}

// HandoffRule is a declared trigger condition for a self-initiated handoff.
// The first rule whose keywords match the user text wins.
type HandoffRule struct {
	Keywords []string
	Target   string
	Reason   string
}

// SpecialistConfig declares one specialist variant: its capability metadata,
// the prompt it answers with, and its handoff triggers.
type SpecialistConfig struct {
	Name           string
	Specialization string
	Skills         []string
	SystemPrompt   string
	Rules          []HandoffRule

	// FailureTarget receives the conversation after FailureAfter turns in
	// which the user signalled the issue remains unresolved. Zero
	// FailureAfter disables the trigger.
	FailureTarget string
	FailureAfter  int
}

// Specialist is the shared handler implementation behind all four variants.
// Behavior differences between variants are entirely declarative: the same
// dispatch logic runs a different prompt and rule set.
type Specialist struct {
	cfg      SpecialistConfig
	provider llm.Provider
	logger   *zap.Logger
}

// NewSpecialist builds a handler from its declarative config.
func NewSpecialist(cfg SpecialistConfig, provider llm.Provider, logger *zap.Logger) *Specialist {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Specialist{
		cfg:      cfg,
		provider: provider,
		logger:   logger.With(zap.String("component", "specialist"), zap.String("handler", cfg.Name)),
	}
}

func (s *Specialist) Name() string { return s.cfg.Name }

// Capability returns the registry entry for this specialist, available by
// default.
func (s *Specialist) Capability() types.Capability {
	return types.Capability{
		Name:           s.cfg.Name,
		Specialization: s.cfg.Specialization,
		Skills:         s.cfg.Skills,
		Available:      true,
	}
}

// Handle produces a response for the user text and decides whether to keep
// or transfer ownership. Trigger evaluation is deterministic and happens
// before any provider call, so handoff turns cost no generation.
func (s *Specialist) Handle(ctx context.Context, req *Request) (*Result, error) {
	lower := strings.ToLower(req.UserText)

	if rule := s.matchRule(lower); rule != nil {
		s.logger.Debug("handoff rule matched",
			zap.String("dialog_id", req.DialogID),
			zap.String("target", rule.Target),
			zap.String("reason", rule.Reason),
		)
		return &Result{
			Response: transferLine(rule.Target),
			Decision: HandoffTo(rule.Target, rule.Reason),
			Metadata: map[string]any{MetaUnresolvedTurns: 0},
		}, nil
	}

	unresolved := s.unresolvedCount(req.Context)
	if containsAny(lower, unresolvedMarkers) {
		unresolved++
	}
	if s.cfg.FailureAfter > 0 && unresolved >= s.cfg.FailureAfter && s.cfg.FailureTarget != s.cfg.Name {
		s.logger.Info("repeated failure threshold reached",
			zap.String("dialog_id", req.DialogID),
			zap.Int("unresolved_turns", unresolved),
		)
		return &Result{
			Response: transferLine(s.cfg.FailureTarget),
			Decision: HandoffTo(s.cfg.FailureTarget, "repeated_failure"),
			Metadata: map[string]any{MetaUnresolvedTurns: 0},
		}, nil
	}

	resp, err := s.provider.Completion(ctx, s.buildRequest(req))
	if err != nil {
		return nil, err
	}

	return &Result{
		Response: resp.Content,
		Decision: Stay(),
		Metadata: map[string]any{MetaUnresolvedTurns: unresolved},
	}, nil
}

// matchRule returns the first matching trigger, skipping any rule that would
// hand off to this handler itself.
func (s *Specialist) matchRule(lowerText string) *HandoffRule {
	for i := range s.cfg.Rules {
		rule := &s.cfg.Rules[i]
		if rule.Target == s.cfg.Name {
			continue
		}
		if containsAny(lowerText, rule.Keywords) {
			return rule
		}
	}
	return nil
}

// unresolvedCount reads the failure counter carried on the most recent agent
// message attributed to this handler.
func (s *Specialist) unresolvedCount(context []types.Message) int {
	for i := len(context) - 1; i >= 0; i-- {
		m := context[i]
		if m.Role != types.RoleAgent {
			continue
		}
		if m.AgentName != s.cfg.Name {
			return 0 // another handler owned the dialog since
		}
		return m.MetaInt(MetaUnresolvedTurns)
	}
	return 0
}

func (s *Specialist) buildRequest(req *Request) *llm.CompletionRequest {
	messages := make([]types.Message, 0, len(req.Context)+3)
	messages = append(messages, types.NewSystemMessage(s.cfg.SystemPrompt))
	if req.Summary != nil && req.Summary.Text != "" {
		messages = append(messages, types.NewSystemMessage("Conversation so far: "+req.Summary.Text))
	}
	messages = append(messages, req.Context...)
	messages = append(messages, types.NewUserMessage(req.UserText))
	return &llm.CompletionRequest{Messages: messages}
}

func transferLine(target string) string {
	return fmt.Sprintf("Let me connect you with our %s team.", target)
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
