// Package testutil provides shared helpers for package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/convodesk/convodesk/types"
)

// TestContext returns a context that expires with a 30s safety timeout and
// is cancelled on test cleanup.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext returns an already-cancelled context.
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// Conversation builds an alternating user/agent message sequence attributed
// to handler, n pairs long.
func Conversation(handler string, pairs int) []types.Message {
	msgs := make([]types.Message, 0, pairs*2)
	for i := 0; i < pairs; i++ {
		msgs = append(msgs,
			types.NewUserMessage("user turn"),
			types.NewAgentMessage(handler, "agent turn"),
		)
	}
	return msgs
}

// AssertMessagesEqual compares two message sequences on role, content, and
// attribution.
func AssertMessagesEqual(t *testing.T, expected, actual []types.Message) {
	t.Helper()

	if len(expected) != len(actual) {
		t.Errorf("message count mismatch: expected %d, got %d", len(expected), len(actual))
		return
	}
	for i := range expected {
		if expected[i].Role != actual[i].Role {
			t.Errorf("message[%d] role mismatch: expected %q, got %q", i, expected[i].Role, actual[i].Role)
		}
		if expected[i].Content != actual[i].Content {
			t.Errorf("message[%d] content mismatch: expected %q, got %q", i, expected[i].Content, actual[i].Content)
		}
		if expected[i].AgentName != actual[i].AgentName {
			t.Errorf("message[%d] attribution mismatch: expected %q, got %q", i, expected[i].AgentName, actual[i].AgentName)
		}
	}
}
