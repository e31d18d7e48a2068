package checklist

import (
	"context"

	id "sebenza/pkg/domain"
)

// Store persists checklist items keyed by (candidate, item type).
// Implementations return sentinel.ErrNotFound when the row does not exist.
type Store interface {
	SaveAll(ctx context.Context, items []Item) error
	Get(ctx context.Context, candidateID id.CandidateID, itemType ItemType) (Item, error)
	Update(ctx context.Context, item Item) error
	ListByCandidate(ctx context.Context, candidateID id.CandidateID) ([]Item, error)
	DeleteByCandidate(ctx context.Context, candidateID id.CandidateID) error
}
