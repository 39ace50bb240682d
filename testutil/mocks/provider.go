// Package mocks provides test doubles for the provider contract.
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/convodesk/convodesk/llm"
	"github.com/convodesk/convodesk/types"
)

// MockProvider is a scriptable llm.Provider: fixed responses, fixed
// classifications, error injection, and call recording.
type MockProvider struct {
	mu sync.Mutex

	response       string
	classification llm.Classification
	completionErr  error
	classifyErr    error
	delay          time.Duration

	completionCalls int
	classifyCalls   int
	lastPrompt      []types.Message
	lastClassified  string
}

// NewProvider returns a provider that answers every completion with a stock
// reply and classifies everything as a confident general inquiry.
func NewProvider() *MockProvider {
	return &MockProvider{
		response:       "Mock response",
		classification: llm.Classification{Label: "general_inquiry", Confidence: 0.9},
	}
}

// WithResponse sets the fixed completion text.
func (m *MockProvider) WithResponse(text string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = text
	return m
}

// WithClassification sets the fixed classification verdict.
func (m *MockProvider) WithClassification(label string, confidence float64) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classification = llm.Classification{Label: label, Confidence: confidence}
	return m
}

// WithCompletionError makes Completion fail.
func (m *MockProvider) WithCompletionError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionErr = err
	return m
}

// WithClassifyError makes Classify fail.
func (m *MockProvider) WithClassifyError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classifyErr = err
	return m
}

// WithDelay makes every call sleep, for timeout and cancellation tests.
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

func (m *MockProvider) Completion(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.mu.Lock()
	m.completionCalls++
	m.lastPrompt = req.Messages
	err := m.completionErr
	text := m.response
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{
		Content:   text,
		Model:     "mock-model",
		Provider:  "mock",
		Usage:     llm.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		CreatedAt: time.Now(),
	}, nil
}

func (m *MockProvider) Classify(ctx context.Context, text string, contextMsgs []types.Message) (*llm.Classification, error) {
	m.mu.Lock()
	m.classifyCalls++
	m.lastClassified = text
	err := m.classifyErr
	cls := m.classification
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	return &cls, nil
}

func (m *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true, Latency: time.Millisecond}, nil
}

func (m *MockProvider) Name() string { return "mock" }

// CompletionCalls reports how many completions were requested.
func (m *MockProvider) CompletionCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completionCalls
}

// ClassifyCalls reports how many classifications were requested.
func (m *MockProvider) ClassifyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.classifyCalls
}

// LastPrompt returns the messages of the most recent completion request.
func (m *MockProvider) LastPrompt() []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrompt
}

// LastClassified returns the text of the most recent classify call.
func (m *MockProvider) LastClassified() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastClassified
}
