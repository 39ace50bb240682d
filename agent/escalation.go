package agent

import (
	"github.com/convodesk/convodesk/llm"
	"go.uber.org/zap"
)

// HandlerEscalation is reserved for supervisory handling. It is reachable
// only via handoff, never via initial routing.
const HandlerEscalation = "escalation"

// NewEscalation builds the escalation specialist. It is terminal-preferring:
// it hands the conversation back to the general specialist once the customer
// signals the issue is settled, and never hands off to itself (self-targeted
// rules are skipped by the shared dispatch logic, and the repeated-failure
// trigger is disabled).
func NewEscalation(provider llm.Provider, logger *zap.Logger) *Specialist {
	return NewSpecialist(SpecialistConfig{
		Name:           HandlerEscalation,
		Specialization: "escalations and supervision",
		Skills:         []string{"complaints", "refund_approval", "supervision", "retention"},
		SystemPrompt: "You are a senior support supervisor handling escalated cases. " +
			"Acknowledge the customer's frustration, take ownership, and state exactly " +
			"what will happen next and when.",
		Rules: []HandoffRule{
			{
				Keywords: []string{"that's resolved", "issue is resolved", "all set now", "no further questions", "that settles it"},
				Target:   HandlerGeneral,
				Reason:   "issue_resolved",
			},
		},
	}, provider, logger)
}
