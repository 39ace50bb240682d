package dialog

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/convodesk/convodesk/agent"
	"github.com/convodesk/convodesk/internal/metrics"
	"github.com/convodesk/convodesk/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// cleanupConcurrency bounds how many dialogs a housekeeping sweep touches
// at once.
const cleanupConcurrency = 4

// ManagerConfig tunes dialog lifecycle housekeeping.
type ManagerConfig struct {
	// InactiveAfter closes dialogs idle longer than this during cleanup
	// sweeps. Zero disables inactivity closing.
	InactiveAfter time.Duration `yaml:"inactive_after" json:"inactive_after"`
}

// DefaultManagerConfig closes dialogs after 24 hours of inactivity.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{InactiveAfter: 24 * time.Hour}
}

// Manager ties the orchestration core to persistence. Every turn runs under
// the dialog's keyed lock with atomic semantics: either the full turn is
// appended and saved, or the stored record is untouched.
type Manager struct {
	store        Store
	orchestrator *agent.Orchestrator
	compactor    *Compactor
	locks        *KeyedMutex
	cfg          ManagerConfig
	collector    *metrics.Collector
	logger       *zap.Logger
}

// NewManager wires the turn pipeline. collector may be nil.
func NewManager(
	store Store,
	orchestrator *agent.Orchestrator,
	compactor *Compactor,
	cfg ManagerConfig,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.InactiveAfter < 0 {
		cfg.InactiveAfter = 0
	}
	return &Manager{
		store:        store,
		orchestrator: orchestrator,
		compactor:    compactor,
		locks:        NewKeyedMutex(),
		cfg:          cfg,
		collector:    collector,
		logger:       logger.With(zap.String("component", "dialog_manager")),
	}
}

// CreateDialog validates the customer and persists a fresh active dialog.
// A non-empty initialText is processed as the dialog's first turn, so the
// returned record already carries the opening exchange and its owner.
func (m *Manager) CreateDialog(ctx context.Context, customer CustomerInfo, priority Priority, initialText string) (*Dialog, error) {
	if err := customer.Validate(); err != nil {
		return nil, err
	}

	d := NewDialog(customer)
	if priority != "" {
		d.Priority = priority
	}

	err := m.store.Save(ctx, d)
	m.recordStoreOp("save", err)
	if err != nil {
		return nil, err
	}

	m.logger.Info("dialog created",
		zap.String("dialog_id", d.ID),
		zap.String("customer_id", customer.ID),
		zap.String("priority", string(d.Priority)),
	)

	if strings.TrimSpace(initialText) == "" {
		return d, nil
	}
	if _, err := m.SendMessage(ctx, d.ID, initialText); err != nil {
		return nil, err
	}
	return m.GetDialog(ctx, d.ID)
}

// GetDialog loads a dialog by id.
func (m *Manager) GetDialog(ctx context.Context, id string) (*Dialog, error) {
	d, err := m.store.Load(ctx, id)
	m.recordStoreOp("load", err)
	return d, err
}

// ListDialogs returns all stored dialogs.
func (m *Manager) ListDialogs(ctx context.Context) ([]*Dialog, error) {
	ds, err := m.store.List(ctx)
	m.recordStoreOp("list", err)
	return ds, err
}

// SendMessage runs one turn: load under the dialog's lock, orchestrate,
// append the user and agent records, compact the window, save. A failed turn
// persists nothing and leaves ownership unchanged.
func (m *Manager) SendMessage(ctx context.Context, dialogID, text string) (*types.TurnResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "message text is required").WithHTTPStatus(400)
	}

	unlock := m.locks.Lock(dialogID)
	defer unlock()

	d, err := m.store.Load(ctx, dialogID)
	m.recordStoreOp("load", err)
	if err != nil {
		return nil, err
	}
	if d.Status == StatusClosed {
		return nil, types.NewError(types.ErrDialogClosed, "dialog is closed").WithHTTPStatus(409)
	}

	start := time.Now()
	result, err := m.orchestrator.ProcessTurn(ctx, dialogID, text, &agent.Snapshot{
		Messages: d.Messages,
		Summary:  d.Summary,
	})
	if m.collector != nil {
		handler := ""
		if result != nil {
			handler = result.CurrentAgent
		}
		m.collector.ObserveTurn(handler, time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}

	d.Append(
		types.NewUserMessage(text),
		types.NewAgentMessage(result.CurrentAgent, result.Response).WithMetadata(result.Metadata),
	)
	d.CurrentAgent = result.CurrentAgent

	switch {
	case result.CurrentAgent == agent.HandlerEscalation:
		d.Status = StatusEscalated
		d.Priority = PriorityHigh
	case d.Status == StatusEscalated:
		d.Status = StatusActive
	}

	if result.Intent != "" {
		d.setMeta("last_intent", result.Intent)
	}
	if result.HandoffReason != "" {
		d.setMeta("last_handoff_reason", result.HandoffReason)
	}

	before := len(d.Messages)
	d.Messages, d.Summary, err = m.compactor.Compact(ctx, d.Messages, d.Summary)
	if err != nil {
		return nil, err
	}
	if dropped := before - len(d.Messages); dropped > 0 && m.collector != nil {
		m.collector.RecordCompaction(dropped)
	}

	err = m.store.Save(ctx, d)
	m.recordStoreOp("save", err)
	if err != nil {
		return nil, err
	}

	if m.collector != nil {
		if result.HandoffReason != "" {
			m.collector.RecordHandoff(result.HandoffReason)
		}
		if result.Intent != "" {
			m.collector.RecordRouting(result.Intent)
		}
	}

	m.logger.Info("turn persisted",
		zap.String("dialog_id", dialogID),
		zap.String("current_agent", result.CurrentAgent),
		zap.String("handoff_reason", result.HandoffReason),
		zap.Int("window_len", len(d.Messages)),
	)
	return result, nil
}

// GetHistory returns a dialog's retained message window and its summary of
// compacted history, if any.
func (m *Manager) GetHistory(ctx context.Context, id string) ([]types.Message, *types.Summary, error) {
	d, err := m.store.Load(ctx, id)
	m.recordStoreOp("load", err)
	if err != nil {
		return nil, nil, err
	}
	return d.Messages, d.Summary, nil
}

// CloseDialog marks a dialog closed; further turns are rejected. A non-empty
// reason is recorded in the dialog metadata.
func (m *Manager) CloseDialog(ctx context.Context, id, reason string) error {
	unlock := m.locks.Lock(id)
	defer unlock()

	d, err := m.store.Load(ctx, id)
	m.recordStoreOp("load", err)
	if err != nil {
		return err
	}
	if d.Status == StatusClosed {
		return nil
	}

	d.Status = StatusClosed
	if reason != "" {
		d.setMeta("close_reason", reason)
	}
	d.UpdatedAt = time.Now()
	err = m.store.Save(ctx, d)
	m.recordStoreOp("save", err)
	if err != nil {
		return err
	}
	m.logger.Info("dialog closed",
		zap.String("dialog_id", id),
		zap.String("reason", reason),
	)
	return nil
}

// DeleteDialog removes a dialog permanently. Dialogs that are still open are
// only deleted when force is set.
func (m *Manager) DeleteDialog(ctx context.Context, id string, force bool) error {
	unlock := m.locks.Lock(id)
	defer unlock()

	if !force {
		d, err := m.store.Load(ctx, id)
		m.recordStoreOp("load", err)
		if err != nil {
			return err
		}
		if d.Status != StatusClosed {
			return types.NewError(types.ErrInvalidRequest,
				"dialog is still open; close it first or delete with force").WithHTTPStatus(409)
		}
	}

	err := m.store.Delete(ctx, id)
	m.recordStoreOp("delete", err)
	return err
}

// CleanupInactive closes dialogs whose last activity is older than the
// configured window and reports how many were closed. The activity signal is
// the stored UpdatedAt field; nothing is tracked in process memory.
func (m *Manager) CleanupInactive(ctx context.Context) (int, error) {
	if m.cfg.InactiveAfter <= 0 {
		return 0, nil
	}

	dialogs, err := m.store.List(ctx)
	m.recordStoreOp("list", err)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-m.cfg.InactiveAfter)
	var closed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cleanupConcurrency)
	for _, d := range dialogs {
		if d.Status == StatusClosed || !d.UpdatedAt.Before(cutoff) {
			continue
		}
		id := d.ID
		g.Go(func() error {
			if err := m.CloseDialog(gctx, id, "inactive_timeout"); err != nil {
				return err
			}
			closed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(closed.Load()), err
	}
	if n := int(closed.Load()); n > 0 {
		m.logger.Info("inactive dialogs closed", zap.Int("count", n))
		return n, nil
	}
	return 0, nil
}

// PurgeClosed deletes closed dialogs untouched for longer than olderThan.
func (m *Manager) PurgeClosed(ctx context.Context, olderThan time.Duration) (int, error) {
	dialogs, err := m.store.List(ctx)
	m.recordStoreOp("list", err)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)
	var purged atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cleanupConcurrency)
	for _, d := range dialogs {
		if d.Status != StatusClosed || !d.UpdatedAt.Before(cutoff) {
			continue
		}
		id := d.ID
		g.Go(func() error {
			if err := m.DeleteDialog(gctx, id, false); err != nil {
				return err
			}
			purged.Add(1)
			return nil
		})
	}
	err = g.Wait()
	return int(purged.Load()), err
}

// Ping reports store health.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

func (m *Manager) recordStoreOp(op string, err error) {
	if m.collector != nil {
		m.collector.RecordStoreOp(op, err)
	}
}
