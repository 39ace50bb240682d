// Package openai implements the llm.Provider contract against any
// OpenAI-compatible chat completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/convodesk/convodesk/llm"
	"github.com/convodesk/convodesk/types"
	"go.uber.org/zap"
)

// Config configures the OpenAI-compatible provider.
type Config struct {
	APIKey      string        `yaml:"api_key" json:"api_key"`
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	Model       string        `yaml:"model" json:"model"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	Temperature float32       `yaml:"temperature" json:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens"`
}

// Provider calls an OpenAI-compatible chat completions endpoint.
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// classifyPrompt instructs the model to emit a single JSON object so the
// response can be parsed deterministically.
const classifyPrompt = `You are an intent classifier for a customer support desk.
Classify the user's latest message into exactly one of these intent labels:
general_inquiry, billing_issue, purchase_interest, technical_issue, account_issue, complaint.
Respond with a single JSON object and nothing else, for example:
{"label":"billing_issue","confidence":0.92}`

// New creates a provider instance. BaseURL defaults to the OpenAI API.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("component", "openai_provider")),
	}
}

func (p *Provider) Name() string { return "openai" }

// --- wire types ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Completion implements llm.Provider.Completion.
func (p *Provider) Completion(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.cfg.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.cfg.MaxTokens
	}

	wire := chatRequest{
		Model:       model,
		Messages:    toChatMessages(req.Messages),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	resp, err := p.post(ctx, wire)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, types.NewError(types.ErrMalformedOutput, "completion returned no choices")
	}

	return &llm.CompletionResponse{
		Content:  resp.Choices[0].Message.Content,
		Model:    resp.Model,
		Provider: p.Name(),
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		CreatedAt: time.Now(),
	}, nil
}

// Classify implements llm.Provider.Classify using a JSON-forcing prompt at
// low temperature, so identical input yields identical classification.
func (p *Provider) Classify(ctx context.Context, text string, contextMsgs []types.Message) (*llm.Classification, error) {
	messages := []chatMessage{{Role: "system", Content: classifyPrompt}}
	for _, m := range tailMessages(contextMsgs, 6) {
		messages = append(messages, chatMessage{Role: roleToWire(m.Role), Content: m.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: text})

	wire := chatRequest{
		Model:       p.cfg.Model,
		Messages:    messages,
		MaxTokens:   64,
		Temperature: 0.0,
	}

	resp, err := p.post(ctx, wire)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, types.NewError(types.ErrMalformedOutput, "classification returned no choices")
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var cls llm.Classification
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &cls); err != nil {
		return nil, types.NewError(types.ErrMalformedOutput, "classification output is not valid JSON").WithCause(err)
	}
	if cls.Label == "" {
		return nil, types.NewError(types.ErrMalformedOutput, "classification output missing label")
	}
	if cls.Confidence < 0 || cls.Confidence > 1 {
		return nil, types.NewError(types.ErrMalformedOutput,
			fmt.Sprintf("classification confidence %v out of range", cls.Confidence))
	}
	return &cls, nil
}

// HealthCheck probes the models endpoint.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/models"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("health check failed: status=%d", resp.StatusCode)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// post sends a chat request and maps HTTP failures to the error taxonomy.
func (p *Provider) post(ctx context.Context, wire chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "encode request").WithCause(err)
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "build request").WithCause(err)
	}
	p.setHeaders(httpReq)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "request failed").
			WithCause(err).
			WithRetryable(true)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "read response").
			WithCause(err).
			WithRetryable(true)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, p.mapStatusError(httpResp.StatusCode, respBody)
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, types.NewError(types.ErrMalformedOutput, "decode response").WithCause(err)
	}
	return &resp, nil
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
}

func (p *Provider) mapStatusError(status int, body []byte) error {
	msg := "upstream error"
	var ae apiError
	if json.Unmarshal(body, &ae) == nil && ae.Error.Message != "" {
		msg = ae.Error.Message
	}

	switch {
	case status == http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, msg).WithHTTPStatus(status).WithRetryable(true)
	case status == http.StatusPaymentRequired:
		return types.NewError(types.ErrQuotaExceeded, msg).WithHTTPStatus(status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return types.NewError(types.ErrUnauthorized, msg).WithHTTPStatus(status)
	case status == http.StatusBadRequest:
		return types.NewError(types.ErrInvalidRequest, msg).WithHTTPStatus(status)
	case status == http.StatusGatewayTimeout:
		return types.NewError(types.ErrTimeout, msg).WithHTTPStatus(status).WithRetryable(true)
	case status >= 500:
		return types.NewError(types.ErrUpstreamError, msg).WithHTTPStatus(status).WithRetryable(true)
	default:
		return types.NewError(types.ErrUpstreamError, msg).WithHTTPStatus(status)
	}
}

func toChatMessages(msgs []types.Message) []chatMessage {
	out := make([]chatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, chatMessage{Role: roleToWire(m.Role), Content: m.Content})
	}
	return out
}

// roleToWire maps dialog roles onto the wire protocol's role vocabulary.
// Handler attribution stays on types.Message and is never needed upstream.
func roleToWire(r types.Role) string {
	switch r {
	case types.RoleAgent:
		return "assistant"
	case types.RoleSystem:
		return "system"
	default:
		return "user"
	}
}

// tailMessages returns the last n messages of the context.
func tailMessages(msgs []types.Message, n int) []types.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
