package llm

import (
	"context"
	"time"

	"github.com/convodesk/convodesk/types"
)

// CompletionRequest is a synchronous text-generation request.
type CompletionRequest struct {
	Model       string            `json:"model,omitempty"`
	Messages    []types.Message   `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float32           `json:"temperature,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Usage reports token consumption for one provider call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// CompletionResponse is the full response to a CompletionRequest.
type CompletionResponse struct {
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Usage     Usage     `json:"usage,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Classification is the result of classifying a user message into an
// intent label with a confidence score in [0, 1].
type Classification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// HealthStatus reports a provider health probe result.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// Provider is the unified generation/classification interface. All failures
// surface as *types.Error with code PROVIDER_ERROR (or a more specific
// provider code wrapped beneath it); quota, timeout and malformed-response
// conditions are never swallowed.
type Provider interface {
	// Completion issues a synchronous generation request.
	Completion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Classify labels a user message given the retained dialog context.
	Classify(ctx context.Context, text string, contextMsgs []types.Message) (*Classification, error)

	// HealthCheck performs a lightweight availability probe.
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Name returns the provider's unique identifier.
	Name() string
}
