// Package dialog owns the persisted conversation records and the lifecycle
// around the orchestration core: loading a dialog, running a turn under a
// per-dialog lock, appending the turn's messages, compacting the context
// window, and saving. Each turn is atomic against the store.
package dialog
