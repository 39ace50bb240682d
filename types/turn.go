package types

import "time"

// TurnResult is the outcome of one successfully processed turn.
// It is produced exactly once per turn and never mutated afterwards.
//
// HandoffReason is non-empty iff CurrentAgent differs from the handler
// that owned the dialog when the turn started (or, on a first turn, from
// the handler the router initially selected).
type TurnResult struct {
	Response      string         `json:"response"`
	CurrentAgent  string         `json:"current_agent"`
	PreviousAgent string         `json:"previous_agent,omitempty"`
	HandoffReason string         `json:"handoff_reason,omitempty"`
	Intent        string         `json:"intent,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Summary is the single compacted-history record of a dialog. At most one
// summary is active per dialog; when compaction runs again the summary is
// replaced with a new one whose CoveredCount includes the prior coverage.
type Summary struct {
	Text         string    `json:"text"`
	CoveredCount int       `json:"covered_count"`
	CreatedAt    time.Time `json:"created_at"`
}
