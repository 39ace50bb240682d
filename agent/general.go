package agent

import (
	"github.com/convodesk/convodesk/llm"
	"go.uber.org/zap"
)

// HandlerGeneral is the default first-contact handler name.
const HandlerGeneral = "general"

// NewGeneral builds the general-inquiry specialist. It is the routing
// default, so it mostly answers directly and hands off only on clear
// sales/technical/supervisor signals.
func NewGeneral(provider llm.Provider, logger *zap.Logger) *Specialist {
	return NewSpecialist(SpecialistConfig{
		Name:           HandlerGeneral,
		Specialization: "general inquiries",
		Skills:         []string{"faq", "account", "orders", "company_info"},
		SystemPrompt: "You are a friendly customer support agent handling general inquiries. " +
			"Answer concisely and helpfully. If you do not know something, say so.",
		Rules: []HandoffRule{
			{
				Keywords: []string{"supervisor", "manager", "human agent", "real person"},
				Target:   HandlerEscalation,
				Reason:   "supervisor_request",
			},
			{
				Keywords: []string{"refund", "chargeback", "billing", "invoice", "charged", "buy", "purchase", "pricing", "upgrade my plan"},
				Target:   HandlerSales,
				Reason:   "out_of_scope",
			},
			{
				Keywords: []string{"error", "crash", "bug", "can't log in", "cannot log in", "not loading", "broken"},
				Target:   HandlerTechnical,
				Reason:   "out_of_scope",
			},
		},
		FailureTarget: HandlerEscalation,
		FailureAfter:  3,
	}, provider, logger)
}
