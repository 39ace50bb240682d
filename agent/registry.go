package agent

import (
	"fmt"
	"sort"
	"sync"

	"github.com/convodesk/convodesk/types"
	"go.uber.org/zap"
)

// Registry is the capability catalog: every dispatchable handler is
// registered here together with its capability metadata. Lookups are
// read-mostly; availability may be toggled between turns by external health
// signals, so callers must query fresh each turn and never cache.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
	logger  *zap.Logger
}

type registryEntry struct {
	capability types.Capability
	handler    Handler
}

// NewRegistry creates an empty capability registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]*registryEntry),
		logger:  logger.With(zap.String("component", "registry")),
	}
}

// Register adds a handler under its capability. Capability names are unique;
// registering a duplicate fails.
func (r *Registry) Register(handler Handler, capability types.Capability) error {
	if handler == nil {
		return types.NewError(types.ErrInvalidRequest, "handler must not be nil")
	}
	if capability.Name == "" {
		capability.Name = handler.Name()
	}
	if capability.Name != handler.Name() {
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("capability name %q does not match handler %q", capability.Name, handler.Name()))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[capability.Name]; exists {
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("capability %q already registered", capability.Name))
	}
	r.entries[capability.Name] = &registryEntry{capability: capability, handler: handler}

	r.logger.Info("capability registered",
		zap.String("name", capability.Name),
		zap.String("specialization", capability.Specialization),
		zap.Strings("skills", capability.Skills),
	)
	return nil
}

// List returns all registered capabilities sorted by name.
func (r *Registry) List() []types.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.Capability, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.capability)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns the capability registered under name.
func (r *Registry) Get(name string) (types.Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return types.Capability{}, types.NewError(types.ErrNotFound,
			fmt.Sprintf("capability %q not registered", name))
	}
	return e.capability, nil
}

// Handler returns the handler registered under name.
func (r *Registry) Handler(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, types.NewError(types.ErrNotFound,
			fmt.Sprintf("capability %q not registered", name))
	}
	return e.handler, nil
}

// IsAvailable reports whether name is registered and currently available.
func (r *Registry) IsAvailable(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	return ok && e.capability.Available
}

// SetAvailable toggles a capability's availability flag, typically driven by
// an external health signal.
func (r *Registry) SetAvailable(name string, available bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return types.NewError(types.ErrNotFound,
			fmt.Sprintf("capability %q not registered", name))
	}
	if e.capability.Available != available {
		e.capability.Available = available
		r.logger.Info("capability availability changed",
			zap.String("name", name),
			zap.Bool("available", available),
		)
	}
	return nil
}
