// Package agent implements the dialogue orchestration core: the capability
// registry, the intent router, the specialist handlers, and the turn
// orchestrator that resolves handoff chains.
//
// The orchestrator is stateless between turns. Conversation ownership is
// derived from the persisted message sequence on every call, so the package
// holds no per-dialog state of its own.
package agent
