package dialog

import (
	"context"
	"fmt"
	"sync"

	"github.com/convodesk/convodesk/types"
)

// MemoryStore keeps dialogs in process memory. Intended for tests and
// single-process development runs.
type MemoryStore struct {
	mu      sync.RWMutex
	dialogs map[string]*Dialog
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{dialogs: make(map[string]*Dialog)}
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*Dialog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.dialogs[id]
	if !ok {
		return nil, notFound(id)
	}
	return d.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, d *Dialog) error {
	if d == nil || d.ID == "" {
		return types.NewError(types.ErrInvalidRequest, "dialog id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialogs[d.ID] = d.Clone()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dialogs[id]; !ok {
		return notFound(id)
	}
	delete(s.dialogs, id)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*Dialog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Dialog, 0, len(s.dialogs))
	for _, d := range s.dialogs {
		out = append(out, d.Clone())
	}
	return out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func notFound(id string) error {
	return types.NewError(types.ErrNotFound, fmt.Sprintf("dialog %q not found", id)).WithHTTPStatus(404)
}
