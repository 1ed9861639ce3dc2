// Package remote defines the storage transport the sync controller talks to
// and an in-process implementation of it.
package remote

import "context"

// File is one entry returned by a listing
type File struct {
	ID   string
	Name string
}

// Transport lists, creates, reads and overwrites named blobs inside a
// per-user private namespace. Implementations return errors marked with the
// sentinels of package errors (ErrNotFound, ErrUnauthorized, ...) where the
// backend makes the cause known.
type Transport interface {
	// List returns entries named name in namespace. A backend may match
	// loosely; callers filter by exact name.
	List(ctx context.Context, name, namespace string) ([]File, error)
	// Create makes one new empty entry and returns its identifier.
	Create(ctx context.Context, name, namespace string) (string, error)
	// Get returns the full content of the entry.
	Get(ctx context.Context, id string) (string, error)
	// Patch replaces the content of the entry.
	Patch(ctx context.Context, id, content string) error
}
