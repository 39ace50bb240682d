package dialog

import (
	"strings"
	"time"

	"github.com/convodesk/convodesk/types"
	"github.com/google/uuid"
)

// Status is a dialog's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusPending   Status = "pending"
	StatusEscalated Status = "escalated"
	StatusClosed    Status = "closed"
)

// Priority orders dialogs for human review queues.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// CustomerInfo identifies the customer a dialog belongs to.
type CustomerInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Validate checks the fields a dialog cannot be created without.
func (c CustomerInfo) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return types.NewError(types.ErrInvalidRequest, "customer id is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return types.NewError(types.ErrInvalidRequest, "customer name is required")
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return types.NewError(types.ErrInvalidRequest, "customer email is malformed")
	}
	if c.Phone != "" && !strings.ContainsAny(c.Phone, "0123456789") {
		return types.NewError(types.ErrInvalidRequest, "customer phone is malformed")
	}
	return nil
}

// Dialog is one customer conversation: the bounded message window, at most
// one summary of compacted history, and the handler that currently owns it.
type Dialog struct {
	ID           string          `json:"id"`
	Customer     CustomerInfo    `json:"customer"`
	Status       Status          `json:"status"`
	Priority     Priority        `json:"priority"`
	CurrentAgent string          `json:"current_agent,omitempty"`
	Messages     []types.Message `json:"messages"`
	Summary      *types.Summary  `json:"summary,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewDialog creates an active dialog for the given customer.
func NewDialog(customer CustomerInfo) *Dialog {
	now := time.Now()
	return &Dialog{
		ID:        uuid.NewString(),
		Customer:  customer,
		Status:    StatusActive,
		Priority:  PriorityNormal,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds records to the message sequence and bumps UpdatedAt.
func (d *Dialog) Append(msgs ...types.Message) {
	d.Messages = append(d.Messages, msgs...)
	d.UpdatedAt = time.Now()
}

// setMeta records a key in the dialog metadata, allocating the map lazily.
func (d *Dialog) setMeta(key string, value any) {
	if d.Metadata == nil {
		d.Metadata = make(map[string]any)
	}
	d.Metadata[key] = value
}

// Clone returns a deep copy so stores can hand out records without aliasing
// their internal state.
func (d *Dialog) Clone() *Dialog {
	out := *d
	out.Messages = make([]types.Message, len(d.Messages))
	copy(out.Messages, d.Messages)
	if d.Summary != nil {
		s := *d.Summary
		out.Summary = &s
	}
	if d.Metadata != nil {
		out.Metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
