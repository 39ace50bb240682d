package dialog

import "context"

// Store persists dialogs. Implementations must be safe for concurrent use;
// turn-level serialization per dialog is the caller's job (see KeyedMutex),
// not the store's.
type Store interface {
	// Load returns the dialog by id, or an ErrNotFound error.
	Load(ctx context.Context, id string) (*Dialog, error)

	// Save writes the full dialog record, creating or replacing it.
	Save(ctx context.Context, d *Dialog) error

	// Delete removes the dialog. Deleting an unknown id is ErrNotFound.
	Delete(ctx context.Context, id string) error

	// List returns all stored dialogs.
	List(ctx context.Context) ([]*Dialog, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
