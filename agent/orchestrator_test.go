package agent

import (
	"context"
	"testing"

	"github.com/convodesk/convodesk/llm"
	"github.com/convodesk/convodesk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestOrchestrator(provider llm.Provider, reg *Registry) *Orchestrator {
	router := NewIntentRouter(provider, reg, DefaultRouterConfig(), zap.NewNop())
	return NewOrchestrator(reg, router, DefaultOrchestratorConfig(), zap.NewNop())
}

func TestOrchestrator_FirstContactRoutesExactlyOnce(t *testing.T) {
	t.Parallel()

	general := &scriptedHandler{name: HandlerGeneral, results: []*Result{stayResult("hello!")}}
	reg := newTestRegistry(general,
		&scriptedHandler{name: HandlerSales},
		&scriptedHandler{name: HandlerTechnical},
		&scriptedHandler{name: HandlerEscalation},
	)
	provider := &mockProvider{classification: &llm.Classification{Label: "general_inquiry", Confidence: 0.9}}
	orc := newTestOrchestrator(provider, reg)

	result, err := orc.ProcessTurn(context.Background(), "d1", "hi there", &Snapshot{})
	require.NoError(t, err)

	assert.Equal(t, 1, provider.classifies())
	assert.Equal(t, HandlerGeneral, result.CurrentAgent)
	assert.Empty(t, result.PreviousAgent)
	assert.Empty(t, result.HandoffReason)
	assert.Equal(t, "general_inquiry", result.Intent)
	assert.Equal(t, "hello!", result.Response)
	assert.Equal(t, 0, result.Metadata[MetaRerouteCount])
}

func TestOrchestrator_PriorOwnerSkipsRouting(t *testing.T) {
	t.Parallel()

	technical := &scriptedHandler{name: HandlerTechnical, results: []*Result{stayResult("try rebooting")}}
	reg := newTestRegistry(technical,
		&scriptedHandler{name: HandlerGeneral},
		&scriptedHandler{name: HandlerEscalation},
	)
	provider := &mockProvider{}
	orc := newTestOrchestrator(provider, reg)

	snapshot := &Snapshot{Messages: []types.Message{
		types.NewUserMessage("my app crashes"),
		types.NewAgentMessage(HandlerTechnical, "what does the error say?"),
	}}

	result, err := orc.ProcessTurn(context.Background(), "d1", "it says code 37", snapshot)
	require.NoError(t, err)

	assert.Equal(t, 0, provider.classifies(), "router must not run when ownership is resolved")
	assert.Equal(t, HandlerTechnical, result.CurrentAgent)
	assert.Empty(t, result.HandoffReason)
	assert.Empty(t, result.Intent)
}

func TestOrchestrator_RefundScenario(t *testing.T) {
	t.Parallel()

	sales := &scriptedHandler{name: HandlerSales, results: []*Result{
		handoffResult("let me get a supervisor", HandlerEscalation, "refund_escalation"),
	}}
	escalation := &scriptedHandler{name: HandlerEscalation, results: []*Result{
		stayResult("I can approve that refund."),
	}}
	reg := newTestRegistry(sales, escalation, &scriptedHandler{name: HandlerGeneral})
	provider := &mockProvider{classification: &llm.Classification{Label: "billing_issue", Confidence: 0.95}}
	orc := newTestOrchestrator(provider, reg)

	result, err := orc.ProcessTurn(context.Background(), "d1", "I want a refund", &Snapshot{})
	require.NoError(t, err)

	assert.Equal(t, HandlerEscalation, result.CurrentAgent)
	assert.Equal(t, HandlerSales, result.PreviousAgent)
	assert.Equal(t, "refund_escalation", result.HandoffReason)
	assert.Equal(t, "billing_issue", result.Intent)
	assert.Equal(t, "I can approve that refund.", result.Response, "user receives only the final response")
	assert.Equal(t, 1, result.Metadata[MetaRerouteCount])
}

func TestOrchestrator_AlternatingHandoffsForceEscalation(t *testing.T) {
	t.Parallel()

	sales := &scriptedHandler{name: HandlerSales, results: []*Result{
		handoffResult("over to technical", HandlerTechnical, "out_of_scope"),
	}}
	technical := &scriptedHandler{name: HandlerTechnical, results: []*Result{
		handoffResult("back to sales", HandlerSales, "out_of_scope"),
	}}
	reg := newTestRegistry(sales, technical,
		&scriptedHandler{name: HandlerGeneral},
		&scriptedHandler{name: HandlerEscalation},
	)
	provider := &mockProvider{classification: &llm.Classification{Label: "billing_issue", Confidence: 0.9}}
	orc := newTestOrchestrator(provider, reg)

	result, err := orc.ProcessTurn(context.Background(), "d1", "weird billing error", &Snapshot{})
	require.NoError(t, err)

	assert.Equal(t, HandlerEscalation, result.CurrentAgent)
	assert.Equal(t, ReasonRoutingLoop, result.HandoffReason)
	maxReroutes := DefaultOrchestratorConfig().MaxReroutes
	assert.LessOrEqual(t, sales.calls+technical.calls, maxReroutes+1,
		"dispatches stay within the reroute bound")
}

func TestOrchestrator_SelfHandoffIsIgnored(t *testing.T) {
	t.Parallel()

	general := &scriptedHandler{name: HandlerGeneral, results: []*Result{
		handoffResult("let me handle this", HandlerGeneral, "confused"),
	}}
	reg := newTestRegistry(general, &scriptedHandler{name: HandlerEscalation})
	provider := &mockProvider{classification: &llm.Classification{Label: "general_inquiry", Confidence: 0.9}}
	orc := newTestOrchestrator(provider, reg)

	result, err := orc.ProcessTurn(context.Background(), "d1", "hello", &Snapshot{})
	require.NoError(t, err)

	assert.Equal(t, HandlerGeneral, result.CurrentAgent)
	assert.Empty(t, result.PreviousAgent)
	assert.Empty(t, result.HandoffReason)
	assert.Equal(t, 1, general.calls)
}

func TestOrchestrator_UnavailableHandoffTargetFallsBackToRouting(t *testing.T) {
	t.Parallel()

	sales := &scriptedHandler{name: HandlerSales, results: []*Result{
		handoffResult("technical should see this", HandlerTechnical, "out_of_scope"),
	}}
	general := &scriptedHandler{name: HandlerGeneral, results: []*Result{
		stayResult("I can take it from here."),
	}}
	reg := newTestRegistry(sales, general,
		&scriptedHandler{name: HandlerTechnical},
		&scriptedHandler{name: HandlerEscalation},
	)
	require.NoError(t, reg.SetAvailable(HandlerTechnical, false))

	provider := &mockProvider{classification: &llm.Classification{Label: "general_inquiry", Confidence: 0.9}}
	orc := newTestOrchestrator(provider, reg)

	snapshot := &Snapshot{Messages: []types.Message{
		types.NewAgentMessage(HandlerSales, "anything else?"),
	}}
	result, err := orc.ProcessTurn(context.Background(), "d1", "the app shows an error", snapshot)
	require.NoError(t, err)

	assert.Equal(t, 1, provider.classifies(), "router replaces the invalid handoff")
	assert.Equal(t, HandlerGeneral, result.CurrentAgent)
	assert.Equal(t, HandlerSales, result.PreviousAgent)
	assert.Equal(t, "out_of_scope", result.HandoffReason)
	assert.Equal(t, "I can take it from here.", result.Response)
}

func TestOrchestrator_PriorOwnerUnavailableReroutes(t *testing.T) {
	t.Parallel()

	general := &scriptedHandler{name: HandlerGeneral, results: []*Result{stayResult("happy to help")}}
	reg := newTestRegistry(general,
		&scriptedHandler{name: HandlerTechnical},
		&scriptedHandler{name: HandlerEscalation},
	)
	require.NoError(t, reg.SetAvailable(HandlerTechnical, false))

	provider := &mockProvider{classification: &llm.Classification{Label: "general_inquiry", Confidence: 0.9}}
	orc := newTestOrchestrator(provider, reg)

	snapshot := &Snapshot{Messages: []types.Message{
		types.NewAgentMessage(HandlerTechnical, "checking that for you"),
	}}
	result, err := orc.ProcessTurn(context.Background(), "d1", "any update?", snapshot)
	require.NoError(t, err)

	assert.Equal(t, HandlerGeneral, result.CurrentAgent)
	assert.Equal(t, HandlerTechnical, result.PreviousAgent)
	assert.Equal(t, ReasonHandlerUnavailable, result.HandoffReason)
}

func TestOrchestrator_HandoffBackToOwnerClearsReason(t *testing.T) {
	t.Parallel()

	// escalation hands back to sales, which already owned the dialog: no net
	// ownership change, so no handoff reason.
	sales := &scriptedHandler{name: HandlerSales, results: []*Result{
		handoffResult("escalating", HandlerEscalation, "supervisor_request"),
	}}
	escalation := &scriptedHandler{name: HandlerEscalation, results: []*Result{
		handoffResult("sending you back", HandlerSales, "issue_resolved"),
	}}
	reg := newTestRegistry(sales, escalation, &scriptedHandler{name: HandlerGeneral})
	provider := &mockProvider{}
	orc := newTestOrchestrator(provider, reg)

	snapshot := &Snapshot{Messages: []types.Message{
		types.NewAgentMessage(HandlerSales, "your invoice is attached"),
	}}

	// sales hands off once; escalation immediately hands back.
	sales.results = append(sales.results, stayResult("back with sales"))
	result, err := orc.ProcessTurn(context.Background(), "d1", "I need a manager and then my invoice", snapshot)
	require.NoError(t, err)

	assert.Equal(t, HandlerSales, result.CurrentAgent)
	assert.Empty(t, result.PreviousAgent)
	assert.Empty(t, result.HandoffReason)
}

func TestOrchestrator_ProviderFailureAbortsTurn(t *testing.T) {
	t.Parallel()

	boom := types.NewError(types.ErrProvider, "generation failed").WithHTTPStatus(502)
	general := &scriptedHandler{name: HandlerGeneral, err: boom}
	reg := newTestRegistry(general, &scriptedHandler{name: HandlerEscalation})
	provider := &mockProvider{classification: &llm.Classification{Label: "general_inquiry", Confidence: 0.9}}
	orc := newTestOrchestrator(provider, reg)

	result, err := orc.ProcessTurn(context.Background(), "d1", "hello", &Snapshot{})
	require.Error(t, err)
	assert.Nil(t, result, "a failed turn produces nothing to persist")
	assert.True(t, types.IsErrorCode(err, types.ErrProvider))
}

func TestOrchestrator_RouterFailureAbortsTurn(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(&scriptedHandler{name: HandlerGeneral})
	provider := &mockProvider{classifyErr: types.NewError(types.ErrProvider, "classifier down")}
	orc := newTestOrchestrator(provider, reg)

	result, err := orc.ProcessTurn(context.Background(), "d1", "hello", &Snapshot{})
	require.Error(t, err)
	assert.Nil(t, result)
}

func TestCurrentHandler(t *testing.T) {
	t.Parallel()

	assert.Empty(t, CurrentHandler(nil))
	assert.Empty(t, CurrentHandler([]types.Message{types.NewUserMessage("hi")}))

	msgs := []types.Message{
		types.NewUserMessage("hi"),
		types.NewAgentMessage(HandlerGeneral, "hello"),
		types.NewUserMessage("billing question"),
		types.NewAgentMessage(HandlerSales, "sure"),
		types.NewUserMessage("thanks"),
	}
	assert.Equal(t, HandlerSales, CurrentHandler(msgs))
}

func TestOrchestrator_MetadataCarriesHandlerCounters(t *testing.T) {
	t.Parallel()

	general := &scriptedHandler{name: HandlerGeneral, results: []*Result{
		{Response: "ok", Decision: Stay(), Metadata: map[string]any{MetaUnresolvedTurns: 2}},
	}}
	reg := newTestRegistry(general)
	provider := &mockProvider{classification: &llm.Classification{Label: "general_inquiry", Confidence: 0.9}}
	orc := newTestOrchestrator(provider, reg)

	result, err := orc.ProcessTurn(context.Background(), "d1", "still broken", &Snapshot{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Metadata[MetaUnresolvedTurns])
	assert.Equal(t, 0, result.Metadata[MetaRerouteCount])
}
