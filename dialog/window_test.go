package dialog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/convodesk/convodesk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func messagePairs(n int) []types.Message {
	msgs := make([]types.Message, 0, n*2)
	for i := 0; i < n; i++ {
		msgs = append(msgs,
			types.NewUserMessage(fmt.Sprintf("question %d", i)),
			types.NewAgentMessage("general", fmt.Sprintf("answer %d", i)),
		)
	}
	return msgs
}

func TestCompactor_NoopUnderBound(t *testing.T) {
	t.Parallel()

	c := NewCompactor(CompactorConfig{MaxMessages: 10}, nil, zap.NewNop())
	msgs := messagePairs(4) // 8 messages

	retained, summary, err := c.Compact(context.Background(), msgs, nil)
	require.NoError(t, err)
	assert.Len(t, retained, 8)
	assert.Nil(t, summary)
}

func TestCompactor_DropsOldestAndSummarizes(t *testing.T) {
	t.Parallel()

	c := NewCompactor(CompactorConfig{MaxMessages: 6}, nil, zap.NewNop())
	msgs := messagePairs(5) // 10 messages, 4 dropped

	retained, summary, err := c.Compact(context.Background(), msgs, nil)
	require.NoError(t, err)

	assert.Len(t, retained, 6)
	assert.Equal(t, "question 2", retained[0].Content, "the oldest records are the ones dropped")

	require.NotNil(t, summary)
	assert.Equal(t, 4, summary.CoveredCount)
	assert.Contains(t, summary.Text, "question 0", "topic signal from dropped user records survives")
	assert.Contains(t, summary.Text, "answer 1", "resolutions from dropped agent records survive")
}

func TestCompactor_CoverageAccumulates(t *testing.T) {
	t.Parallel()

	c := NewCompactor(CompactorConfig{MaxMessages: 4}, nil, zap.NewNop())
	prior := &types.Summary{Text: "Customer asked about invoices.", CoveredCount: 12}

	retained, summary, err := c.Compact(context.Background(), messagePairs(4), prior)
	require.NoError(t, err)

	assert.Len(t, retained, 4)
	require.NotNil(t, summary)
	assert.Equal(t, 16, summary.CoveredCount, "prior coverage plus newly dropped records")
	assert.Contains(t, summary.Text, "invoices", "the prior summary folds into the new one")
}

func TestCompactor_SummaryLengthBounded(t *testing.T) {
	t.Parallel()

	c := NewCompactor(CompactorConfig{MaxMessages: 2, MaxSummaryLen: 200}, nil, zap.NewNop())

	msgs := messagePairs(2)
	summary := (*types.Summary)(nil)
	var err error
	for i := 0; i < 30; i++ {
		msgs = append(msgs, messagePairs(3)...)
		msgs, summary, err = c.Compact(context.Background(), msgs, summary)
		require.NoError(t, err)
	}

	require.NotNil(t, summary)
	assert.LessOrEqual(t, len([]rune(summary.Text)), 200)
}

func TestCompactor_PluggableSummarizer(t *testing.T) {
	t.Parallel()

	s := summarizerFunc(func(ctx context.Context, dropped []types.Message, prior *types.Summary) (string, error) {
		return fmt.Sprintf("compressed %d records", len(dropped)), nil
	})
	c := NewCompactor(CompactorConfig{MaxMessages: 4}, s, zap.NewNop())

	_, summary, err := c.Compact(context.Background(), messagePairs(4), nil)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "compressed 4 records", summary.Text)
}

func TestCompactor_SummarizerErrorPropagates(t *testing.T) {
	t.Parallel()

	s := summarizerFunc(func(ctx context.Context, dropped []types.Message, prior *types.Summary) (string, error) {
		return "", errors.New("summarizer down")
	})
	c := NewCompactor(CompactorConfig{MaxMessages: 2}, s, zap.NewNop())

	_, _, err := c.Compact(context.Background(), messagePairs(3), nil)
	require.Error(t, err)
}

type summarizerFunc func(ctx context.Context, dropped []types.Message, prior *types.Summary) (string, error)

func (f summarizerFunc) Summarize(ctx context.Context, dropped []types.Message, prior *types.Summary) (string, error) {
	return f(ctx, dropped, prior)
}

// TestCompactor_WindowInvariants drives random append/compact sequences and
// checks the window bound, the single-summary rule, and total coverage.
func TestCompactor_WindowInvariants(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		maxMessages := rapid.IntRange(2, 20).Draw(rt, "max_messages")
		c := NewCompactor(CompactorConfig{MaxMessages: maxMessages}, nil, zap.NewNop())

		var msgs []types.Message
		var summary *types.Summary
		total := 0

		steps := rapid.IntRange(1, 25).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			appended := rapid.IntRange(1, 10).Draw(rt, "appended")
			for j := 0; j < appended; j++ {
				msgs = append(msgs, types.NewUserMessage(fmt.Sprintf("m%d-%d", i, j)))
			}
			total += appended

			var err error
			msgs, summary, err = c.Compact(context.Background(), msgs, summary)
			if err != nil {
				rt.Fatalf("compact failed: %v", err)
			}

			if len(msgs) > maxMessages {
				rt.Fatalf("window %d exceeds bound %d", len(msgs), maxMessages)
			}
			covered := 0
			if summary != nil {
				covered = summary.CoveredCount
			}
			if covered+len(msgs) != total {
				rt.Fatalf("coverage %d + window %d != appended %d", covered, len(msgs), total)
			}
		}
	})
}
