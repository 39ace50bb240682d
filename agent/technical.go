package agent

import (
	"github.com/convodesk/convodesk/llm"
	"go.uber.org/zap"
)

// HandlerTechnical handles product malfunctions and troubleshooting.
const HandlerTechnical = "technical"

// NewTechnical builds the technical support specialist.
func NewTechnical(provider llm.Provider, logger *zap.Logger) *Specialist {
	return NewSpecialist(SpecialistConfig{
		Name:           HandlerTechnical,
		Specialization: "technical support",
		Skills:         []string{"troubleshooting", "errors", "installation", "connectivity"},
		SystemPrompt: "You are a technical support agent. Diagnose step by step, ask for the " +
			"exact error message when needed, and give one concrete next step per reply.",
		Rules: []HandoffRule{
			{
				Keywords: []string{"supervisor", "manager", "human agent"},
				Target:   HandlerEscalation,
				Reason:   "supervisor_request",
			},
			{
				Keywords: []string{"refund", "billing", "invoice", "charged", "pricing", "upgrade my plan"},
				Target:   HandlerSales,
				Reason:   "out_of_scope",
			},
		},
		FailureTarget: HandlerEscalation,
		FailureAfter:  3,
	}, provider, logger)
}
