package agent

import (
	"github.com/convodesk/convodesk/llm"
	"go.uber.org/zap"
)

// HandlerSales handles purchases, billing, and plan questions.
const HandlerSales = "sales"

// NewSales builds the sales and billing specialist. Refund demands go
// straight to escalation; sales agents do not approve refunds.
func NewSales(provider llm.Provider, logger *zap.Logger) *Specialist {
	return NewSpecialist(SpecialistConfig{
		Name:           HandlerSales,
		Specialization: "sales and billing",
		Skills:         []string{"billing", "pricing", "plans", "purchases", "invoices"},
		SystemPrompt: "You are a sales and billing support agent. Help with pricing, plans, " +
			"purchases, and invoices. Never promise refunds or discounts you cannot grant.",
		Rules: []HandoffRule{
			{
				Keywords: []string{"refund", "money back", "chargeback", "cancel and refund"},
				Target:   HandlerEscalation,
				Reason:   "refund_escalation",
			},
			{
				Keywords: []string{"supervisor", "manager", "human agent"},
				Target:   HandlerEscalation,
				Reason:   "supervisor_request",
			},
			{
				Keywords: []string{"error", "crash", "bug", "not loading", "won't start", "broken"},
				Target:   HandlerTechnical,
				Reason:   "out_of_scope",
			},
		},
		FailureTarget: HandlerEscalation,
		FailureAfter:  3,
	}, provider, logger)
}
