package audit

import "context"

// Store persists audit entries. Implementations must support concurrent
// appends with atomic single-entry writes and preserve per-entity append
// order. No mutation methods exist.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ByEntity(ctx context.Context, entityType EntityType, entityID string) ([]Entry, error)
}

// Publisher streams entries to an external sink after they are durably
// stored. Implementations must not be load-bearing for correctness; the
// store remains the source of truth.
type Publisher interface {
	Publish(ctx context.Context, entry Entry) error
}
