package connection

import "context"

// Store persists connection records between process lifetimes. The manager
// works entirely from memory; a store only has to survive restarts. A nil
// store leaves the manager memory-only, which tests and the sandbox
// environment rely on.
//
// Implementations receive records containing credentials and cursors and
// are responsible for protecting them at rest.
type Store interface {
	// LoadAll returns every persisted record.
	LoadAll(ctx context.Context) ([]Record, error)

	// Save inserts or replaces one record.
	Save(ctx context.Context, rec Record) error

	// Delete removes one record. Deleting an absent record is not an error.
	Delete(ctx context.Context, id string) error
}
