package dialog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/convodesk/convodesk/agent"
	"github.com/convodesk/convodesk/testutil/mocks"
	"github.com/convodesk/convodesk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestManager wires the real orchestration pipeline over a mock provider
// and an in-memory store.
func newTestManager(t *testing.T, provider *mocks.MockProvider, maxMessages int) (*Manager, Store) {
	t.Helper()

	logger := zap.NewNop()
	reg := agent.NewRegistry(logger)
	for _, s := range []*agent.Specialist{
		agent.NewGeneral(provider, logger),
		agent.NewSales(provider, logger),
		agent.NewTechnical(provider, logger),
		agent.NewEscalation(provider, logger),
	} {
		require.NoError(t, reg.Register(s, s.Capability()))
	}

	router := agent.NewIntentRouter(provider, reg, agent.DefaultRouterConfig(), logger)
	orc := agent.NewOrchestrator(reg, router, agent.DefaultOrchestratorConfig(), logger)
	compactor := NewCompactor(CompactorConfig{MaxMessages: maxMessages}, nil, logger)
	store := NewMemoryStore()

	return NewManager(store, orc, compactor, DefaultManagerConfig(), nil, logger), store
}

func TestManager_CreateDialog(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, mocks.NewProvider(), 40)

	d, err := m.CreateDialog(context.Background(), CustomerInfo{ID: "c1", Name: "Dana"}, "", "")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, d.Status)
	assert.Equal(t, PriorityNormal, d.Priority)
	assert.NotEmpty(t, d.ID)

	_, err = m.CreateDialog(context.Background(), CustomerInfo{ID: "", Name: "Dana"}, "", "")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestManager_TurnPersistsUserAndAgentRecords(t *testing.T) {
	t.Parallel()

	provider := mocks.NewProvider().
		WithResponse("Happy to help!").
		WithClassification("general_inquiry", 0.9)
	m, _ := newTestManager(t, provider, 40)

	d, err := m.CreateDialog(context.Background(), CustomerInfo{ID: "c1", Name: "Dana"}, "", "")
	require.NoError(t, err)

	result, err := m.SendMessage(context.Background(), d.ID, "hello there")
	require.NoError(t, err)
	assert.Equal(t, agent.HandlerGeneral, result.CurrentAgent)
	assert.Equal(t, "Happy to help!", result.Response)

	got, err := m.GetDialog(context.Background(), d.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, types.RoleUser, got.Messages[0].Role)
	assert.Equal(t, "hello there", got.Messages[0].Content)
	assert.Equal(t, types.RoleAgent, got.Messages[1].Role)
	assert.Equal(t, agent.HandlerGeneral, got.Messages[1].AgentName)
	assert.Equal(t, agent.HandlerGeneral, got.CurrentAgent)
}

func TestManager_RefundEscalatesDialog(t *testing.T) {
	t.Parallel()

	provider := mocks.NewProvider().WithClassification("billing_issue", 0.95)
	m, _ := newTestManager(t, provider, 40)

	d, err := m.CreateDialog(context.Background(), CustomerInfo{ID: "c1", Name: "Dana"}, "", "")
	require.NoError(t, err)

	result, err := m.SendMessage(context.Background(), d.ID, "I want a refund")
	require.NoError(t, err)

	assert.Equal(t, agent.HandlerEscalation, result.CurrentAgent)
	assert.Equal(t, agent.HandlerSales, result.PreviousAgent)
	assert.Equal(t, "refund_escalation", result.HandoffReason)
	assert.Equal(t, "billing_issue", result.Intent)

	got, err := m.GetDialog(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEscalated, got.Status)
	assert.Equal(t, PriorityHigh, got.Priority)
	assert.Equal(t, agent.HandlerEscalation, got.CurrentAgent)
}

func TestManager_OwnershipSurvivesAcrossTurns(t *testing.T) {
	t.Parallel()

	provider := mocks.NewProvider().WithClassification("technical_issue", 0.9)
	m, _ := newTestManager(t, provider, 40)

	d, err := m.CreateDialog(context.Background(), CustomerInfo{ID: "c1", Name: "Dana"}, "", "")
	require.NoError(t, err)

	_, err = m.SendMessage(context.Background(), d.ID, "the app shows error 37")
	require.NoError(t, err)
	require.Equal(t, 1, provider.ClassifyCalls())

	result, err := m.SendMessage(context.Background(), d.ID, "yes, on startup")
	require.NoError(t, err)

	assert.Equal(t, agent.HandlerTechnical, result.CurrentAgent)
	assert.Equal(t, 1, provider.ClassifyCalls(), "owned dialogs skip routing")
	assert.Empty(t, result.HandoffReason)
}

func TestManager_FailedTurnPersistsNothing(t *testing.T) {
	t.Parallel()

	provider := mocks.NewProvider().
		WithClassification("general_inquiry", 0.9).
		WithCompletionError(types.NewError(types.ErrProvider, "generation down"))
	m, _ := newTestManager(t, provider, 40)

	d, err := m.CreateDialog(context.Background(), CustomerInfo{ID: "c1", Name: "Dana"}, "", "")
	require.NoError(t, err)

	_, err = m.SendMessage(context.Background(), d.ID, "hello")
	require.Error(t, err)

	got, err := m.GetDialog(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Messages, "atomic turn: nothing persisted on failure")
	assert.Empty(t, got.CurrentAgent, "ownership unchanged on failure")
}

func TestManager_ClosedDialogRejectsTurns(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, mocks.NewProvider(), 40)
	d, err := m.CreateDialog(context.Background(), CustomerInfo{ID: "c1", Name: "Dana"}, "", "")
	require.NoError(t, err)
	require.NoError(t, m.CloseDialog(context.Background(), d.ID, "resolved"))

	_, err = m.SendMessage(context.Background(), d.ID, "anyone there?")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrDialogClosed))
}

func TestManager_EmptyMessageRejected(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, mocks.NewProvider(), 40)
	_, err := m.SendMessage(context.Background(), "whatever", "   ")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestManager_CompactionKeepsWindowBounded(t *testing.T) {
	t.Parallel()

	provider := mocks.NewProvider().WithClassification("general_inquiry", 0.9)
	m, _ := newTestManager(t, provider, 6)

	d, err := m.CreateDialog(context.Background(), CustomerInfo{ID: "c1", Name: "Dana"}, "", "")
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		_, err = m.SendMessage(context.Background(), d.ID, "tell me more")
		require.NoError(t, err)
	}

	got, err := m.GetDialog(context.Background(), d.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got.Messages), 6)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 16-len(got.Messages), got.Summary.CoveredCount)
	assert.Equal(t, agent.HandlerGeneral, got.CurrentAgent, "ownership survives compaction")
}

func TestManager_ConcurrentTurnsOnOneDialogSerialize(t *testing.T) {
	t.Parallel()

	provider := mocks.NewProvider().WithClassification("general_inquiry", 0.9)
	m, _ := newTestManager(t, provider, 100)

	d, err := m.CreateDialog(context.Background(), CustomerInfo{ID: "c1", Name: "Dana"}, "", "")
	require.NoError(t, err)

	const turns = 10
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.SendMessage(context.Background(), d.ID, "ping")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := m.GetDialog(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, turns*2, "no turn is lost to a read-modify-write race")
}

func TestManager_CleanupInactive(t *testing.T) {
	t.Parallel()

	provider := mocks.NewProvider()
	logger := zap.NewNop()
	reg := agent.NewRegistry(logger)
	g := agent.NewGeneral(provider, logger)
	require.NoError(t, reg.Register(g, g.Capability()))
	router := agent.NewIntentRouter(provider, reg, agent.DefaultRouterConfig(), logger)
	orc := agent.NewOrchestrator(reg, router, agent.DefaultOrchestratorConfig(), logger)
	store := NewMemoryStore()
	m := NewManager(store, orc, NewCompactor(DefaultCompactorConfig(), nil, logger),
		ManagerConfig{InactiveAfter: time.Hour}, nil, logger)

	stale := NewDialog(CustomerInfo{ID: "c1", Name: "Dana"})
	stale.UpdatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, store.Save(context.Background(), stale))

	fresh := NewDialog(CustomerInfo{ID: "c2", Name: "Robin"})
	require.NoError(t, store.Save(context.Background(), fresh))

	closed, err := m.CleanupInactive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	got, err := store.Load(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, got.Status)

	got, err = store.Load(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
}

func TestManager_PurgeClosed(t *testing.T) {
	t.Parallel()

	m, store := newTestManager(t, mocks.NewProvider(), 40)

	old := NewDialog(CustomerInfo{ID: "c1", Name: "Dana"})
	old.Status = StatusClosed
	old.UpdatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Save(context.Background(), old))

	recent := NewDialog(CustomerInfo{ID: "c2", Name: "Robin"})
	recent.Status = StatusClosed
	require.NoError(t, store.Save(context.Background(), recent))

	purged, err := m.PurgeClosed(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = store.Load(context.Background(), old.ID)
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
}

func TestManager_CreateDialogWithInitialMessage(t *testing.T) {
	t.Parallel()

	provider := mocks.NewProvider().
		WithResponse("Welcome aboard!").
		WithClassification("general_inquiry", 0.9)
	m, _ := newTestManager(t, provider, 40)

	d, err := m.CreateDialog(context.Background(),
		CustomerInfo{ID: "c1", Name: "Dana"}, "", "hi, I just signed up")
	require.NoError(t, err)

	require.Len(t, d.Messages, 2, "initial message runs as the first turn")
	assert.Equal(t, "hi, I just signed up", d.Messages[0].Content)
	assert.Equal(t, agent.HandlerGeneral, d.CurrentAgent)
	assert.Equal(t, "general_inquiry", d.Metadata["last_intent"])
}

func TestManager_CloseDialogRecordsReason(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, mocks.NewProvider(), 40)
	d, err := m.CreateDialog(context.Background(), CustomerInfo{ID: "c1", Name: "Dana"}, "", "")
	require.NoError(t, err)

	require.NoError(t, m.CloseDialog(context.Background(), d.ID, "issue_resolved"))

	got, err := m.GetDialog(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, got.Status)
	assert.Equal(t, "issue_resolved", got.Metadata["close_reason"])
}

func TestManager_DeleteRequiresClosedUnlessForced(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, mocks.NewProvider(), 40)
	d, err := m.CreateDialog(context.Background(), CustomerInfo{ID: "c1", Name: "Dana"}, "", "")
	require.NoError(t, err)

	err = m.DeleteDialog(context.Background(), d.ID, false)
	require.Error(t, err, "open dialogs are not deleted without force")

	require.NoError(t, m.DeleteDialog(context.Background(), d.ID, true))
	_, err = m.GetDialog(context.Background(), d.ID)
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
}

func TestManager_GetHistory(t *testing.T) {
	t.Parallel()

	provider := mocks.NewProvider().WithClassification("general_inquiry", 0.9)
	m, _ := newTestManager(t, provider, 40)

	d, err := m.CreateDialog(context.Background(), CustomerInfo{ID: "c1", Name: "Dana"}, "", "")
	require.NoError(t, err)
	_, err = m.SendMessage(context.Background(), d.ID, "hello")
	require.NoError(t, err)

	messages, summary, err := m.GetHistory(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
	assert.Nil(t, summary, "no summary until the window overflows")

	_, _, err = m.GetHistory(context.Background(), "missing")
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
}
