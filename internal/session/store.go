package session

import (
	"context"

	id "sebenza/pkg/domain"
)

// Store persists onboarding sessions. Implementations return
// sentinel.ErrNotFound for unknown sessions and sentinel.ErrConflict when a
// session id already exists on create.
type Store interface {
	Create(ctx context.Context, session Session) error
	Get(ctx context.Context, sessionID id.SessionID) (Session, error)
	Update(ctx context.Context, session Session) error
}
