package dialog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/convodesk/convodesk/types"
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// Summarizer compresses a dropped message range into summary text. Optional:
// when nil the compactor composes a deterministic extract itself.
type Summarizer interface {
	Summarize(ctx context.Context, dropped []types.Message, prior *types.Summary) (string, error)
}

// CompactorConfig bounds the retained context window.
type CompactorConfig struct {
	// MaxMessages is the retained window's length bound.
	MaxMessages int `yaml:"max_messages" json:"max_messages"`

	// MaxSummaryLen caps the composed summary text in runes.
	MaxSummaryLen int `yaml:"max_summary_len" json:"max_summary_len"`
}

// DefaultCompactorConfig keeps the last 40 messages and summaries under 2000
// runes.
func DefaultCompactorConfig() CompactorConfig {
	return CompactorConfig{MaxMessages: 40, MaxSummaryLen: 2000}
}

// Compactor keeps a dialog's message window within its size bound. When the
// window overflows, the oldest excess records are dropped and replaced by
// exactly one summary; an existing summary is folded into the new one, so a
// dialog never carries more than one.
type Compactor struct {
	cfg        CompactorConfig
	summarizer Summarizer
	logger     *zap.Logger

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

// NewCompactor creates a compactor. summarizer may be nil.
func NewCompactor(cfg CompactorConfig, summarizer Summarizer, logger *zap.Logger) *Compactor {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultCompactorConfig().MaxMessages
	}
	if cfg.MaxSummaryLen <= 0 {
		cfg.MaxSummaryLen = DefaultCompactorConfig().MaxSummaryLen
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compactor{
		cfg:        cfg,
		summarizer: summarizer,
		logger:     logger.With(zap.String("component", "compactor")),
	}
}

// Compact returns the bounded window and the active summary. When the input
// already fits, both come back unchanged. The returned summary's covered
// count accumulates: prior coverage plus every record dropped now.
func (c *Compactor) Compact(ctx context.Context, messages []types.Message, prior *types.Summary) ([]types.Message, *types.Summary, error) {
	if len(messages) <= c.cfg.MaxMessages {
		return messages, prior, nil
	}

	cut := len(messages) - c.cfg.MaxMessages
	dropped := messages[:cut]
	retained := messages[cut:]

	text, err := c.summaryText(ctx, dropped, prior)
	if err != nil {
		return nil, nil, err
	}

	covered := len(dropped)
	if prior != nil {
		covered += prior.CoveredCount
	}
	summary := &types.Summary{
		Text:         text,
		CoveredCount: covered,
		CreatedAt:    time.Now(),
	}

	c.logger.Info("window compacted",
		zap.Int("dropped", len(dropped)),
		zap.Int("retained", len(retained)),
		zap.Int("covered_total", covered),
		zap.Int("summary_tokens", c.estimateTokens(text)),
	)
	return retained, summary, nil
}

func (c *Compactor) summaryText(ctx context.Context, dropped []types.Message, prior *types.Summary) (string, error) {
	if c.summarizer != nil {
		return c.summarizer.Summarize(ctx, dropped, prior)
	}
	return c.compose(dropped, prior), nil
}

// compose builds a deterministic extract of the dropped range: topic signal
// from user records, resolutions from agent records, folded onto any prior
// summary.
func (c *Compactor) compose(dropped []types.Message, prior *types.Summary) string {
	var topics, resolutions []string
	for _, m := range dropped {
		switch m.Role {
		case types.RoleUser:
			topics = append(topics, clip(m.Content, 120))
		case types.RoleAgent:
			line := clip(m.Content, 120)
			if m.AgentName != "" {
				line = m.AgentName + ": " + line
			}
			resolutions = append(resolutions, line)
		}
	}

	var b strings.Builder
	if prior != nil && prior.Text != "" {
		b.WriteString(prior.Text)
		b.WriteString("\n")
	}
	if len(topics) > 0 {
		b.WriteString(fmt.Sprintf("Customer raised: %s.", strings.Join(topics, "; ")))
	}
	if len(resolutions) > 0 {
		if len(topics) > 0 {
			b.WriteString(" ")
		}
		b.WriteString(fmt.Sprintf("Responses: %s.", strings.Join(resolutions, "; ")))
	}

	// Old material clips from the front so recent coverage survives.
	out := b.String()
	if runes := []rune(out); len(runes) > c.cfg.MaxSummaryLen {
		out = string(runes[len(runes)-c.cfg.MaxSummaryLen:])
	}
	return out
}

// estimateTokens reports an approximate token count for observability. The
// encoding initializes lazily; on failure it falls back to len/4.
func (c *Compactor) estimateTokens(text string) int {
	c.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			c.logger.Debug("tiktoken unavailable, using len/4 estimate", zap.Error(err))
			return
		}
		c.enc = enc
	})
	if c.enc == nil {
		return len(text) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}

func clip(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
