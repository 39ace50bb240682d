package agent

import (
	"context"
	"sync"

	"github.com/convodesk/convodesk/llm"
	"github.com/convodesk/convodesk/types"
	"go.uber.org/zap"
)

// --- mocks ---

// mockProvider scripts classification and completion results for tests.
type mockProvider struct {
	mu sync.Mutex

	classification *llm.Classification
	classifyErr    error
	classifyCalls  int

	completionText  string
	completionErr   error
	completionCalls int
}

func (m *mockProvider) Completion(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionCalls++
	if m.completionErr != nil {
		return nil, m.completionErr
	}
	text := m.completionText
	if text == "" {
		text = "How can I help you?"
	}
	return &llm.CompletionResponse{Content: text, Provider: "mock"}, nil
}

func (m *mockProvider) Classify(ctx context.Context, text string, contextMsgs []types.Message) (*llm.Classification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classifyCalls++
	if m.classifyErr != nil {
		return nil, m.classifyErr
	}
	if m.classification != nil {
		return m.classification, nil
	}
	return &llm.Classification{Label: "general_inquiry", Confidence: 0.9}, nil
}

func (m *mockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) classifies() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.classifyCalls
}

// scriptedHandler returns canned results in order, repeating the last one.
type scriptedHandler struct {
	name    string
	results []*Result
	err     error
	calls   int
}

func (h *scriptedHandler) Name() string { return h.name }

func (h *scriptedHandler) Handle(ctx context.Context, req *Request) (*Result, error) {
	h.calls++
	if h.err != nil {
		return nil, h.err
	}
	idx := h.calls - 1
	if idx >= len(h.results) {
		idx = len(h.results) - 1
	}
	return h.results[idx], nil
}

func stayResult(response string) *Result {
	return &Result{Response: response, Decision: Stay(), Metadata: map[string]any{}}
}

func handoffResult(response, target, reason string) *Result {
	return &Result{Response: response, Decision: HandoffTo(target, reason), Metadata: map[string]any{}}
}

// newTestRegistry registers scripted handlers under the four standard names.
func newTestRegistry(handlers ...Handler) *Registry {
	reg := NewRegistry(zap.NewNop())
	for _, h := range handlers {
		_ = reg.Register(h, types.Capability{Name: h.Name(), Available: true})
	}
	return reg
}
