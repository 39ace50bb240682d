package types

import "time"

// Role identifies the sender of a dialog message.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Message is a single record in a dialog's ordered message sequence.
// Insertion order is chronological and semantically significant.
//
// AgentName is set only when Role is RoleAgent. It carries the handler
// attribution end-to-end: current-handler resolution depends on it, so it
// must survive every serialization step unchanged.
type Message struct {
	ID        string         `json:"id,omitempty"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	AgentName string         `json:"agent_name,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewMessage creates a new message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewAgentMessage creates a new agent message attributed to the named handler.
func NewAgentMessage(agentName, content string) Message {
	m := NewMessage(RoleAgent, content)
	m.AgentName = agentName
	return m
}

// WithID sets the message ID.
func (m Message) WithID(id string) Message {
	m.ID = id
	return m
}

// WithMetadata sets the metadata mapping.
func (m Message) WithMetadata(metadata map[string]any) Message {
	m.Metadata = metadata
	return m
}

// MetaInt reads an integer metadata value, tolerating the float64 values
// produced by JSON round-trips. Returns 0 when the key is absent.
func (m Message) MetaInt(key string) int {
	if m.Metadata == nil {
		return 0
	}
	switch v := m.Metadata[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
