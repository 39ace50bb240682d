package dialog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/convodesk/convodesk/types"
)

// FileStore persists one JSON document per dialog under a base directory.
// Writes go through a temp file and rename, so a crash mid-write never
// leaves a truncated record. Suitable for single-node deployments.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates the base directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, storage("create store directory", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) Load(ctx context.Context, id string) (*Dialog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, storage("read dialog", err)
	}

	var d Dialog
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, storage("decode dialog", err)
	}
	return &d, nil
}

func (s *FileStore) Save(ctx context.Context, d *Dialog) error {
	if d == nil || d.ID == "" {
		return types.NewError(types.ErrInvalidRequest, "dialog id is required")
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return storage("encode dialog", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.path(d.ID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return storage("write dialog", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return storage("commit dialog", err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(id))
	if os.IsNotExist(err) {
		return notFound(id)
	}
	if err != nil {
		return storage("delete dialog", err)
	}
	return nil
}

func (s *FileStore) List(ctx context.Context) ([]*Dialog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, storage("list dialogs", err)
	}

	out := make([]*Dialog, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, storage("read dialog", err)
		}
		var d Dialog
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, storage("decode dialog", err)
		}
		out = append(out, &d)
	}
	return out, nil
}

func (s *FileStore) Ping(ctx context.Context) error {
	if _, err := os.Stat(s.dir); err != nil {
		return storage("stat store directory", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func storage(op string, err error) error {
	return types.NewError(types.ErrStorage, fmt.Sprintf("%s failed", op)).
		WithCause(err).
		WithHTTPStatus(500)
}
