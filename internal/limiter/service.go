// Package limiter enforces the hard six-interaction ceiling on onboarding
// sessions. Reaching the ceiling locks the session within the same operation,
// so there is no observable window where the count is at the limit and the
// session is still open.
package limiter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"sebenza/internal/audit"
	"sebenza/internal/platform/metrics"
	"sebenza/internal/session"
	id "sebenza/pkg/domain"
	dErrors "sebenza/pkg/domain-errors"
	"sebenza/pkg/platform/locks"
	"sebenza/pkg/platform/sentinel"
)

// Lock reasons are fixed programme-wide strings; compliance reports key on
// them.
const (
	LockReasonLimitReached  = "Response limit reached (6/6)"
	LockReasonLimitExceeded = "Maximum response count exceeded"
)

// Service increments a session's response counter under the state machine's
// per-session lock and auto-locks at the ceiling.
type Service struct {
	store   session.Store
	auditor session.AuditRecorder
	tx      session.TxRunner
	locks   *locks.Keyed
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTxRunner(tx session.TxRunner) Option {
	return func(s *Service) { s.tx = tx }
}

// New builds the limiter. The lock registry must be the one the state machine
// uses so counter bumps serialize with transitions for the same session.
func New(store session.Store, auditor session.AuditRecorder, sharedLocks *locks.Keyed, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if auditor == nil {
		return nil, errors.New("audit recorder is required")
	}
	if sharedLocks == nil {
		return nil, errors.New("shared session locks are required")
	}
	svc := &Service{
		store:   store,
		auditor: auditor,
		tx:      session.NopTx{},
		locks:   sharedLocks,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// IncrementAndCheck bumps the session's response count and returns the new
// value. Reaching the ceiling locks the session in the same operation. An
// increment attempted at the ceiling fails with LimitExceeded, leaves the
// count unchanged, and force-locks the session if it somehow was not locked.
func (s *Service) IncrementAndCheck(ctx context.Context, sessionID id.SessionID, actor, actorRole string) (int, error) {
	var newCount int
	err := s.locks.WithLock(sessionID.String(), func() error {
		sess, err := s.store.Get(ctx, sessionID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "session %s not found", sessionID)
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load session")
		}

		if sess.ResponseCount >= session.MaxResponseCount {
			if s.metrics != nil {
				s.metrics.ResponseLimitRejects.Inc()
			}
			if !sess.Locked {
				// A session at the ceiling must never stay open.
				if _, lockErr := session.ApplyLock(ctx, s.store, s.auditor, s.tx, sess,
					LockReasonLimitExceeded, actor, actorRole, s.logger); lockErr != nil {
					return lockErr
				}
				if s.metrics != nil {
					s.metrics.SessionsLockedTotal.Inc()
				}
			}
			newCount = sess.ResponseCount
			return dErrors.Newf(dErrors.CodeLimitExceeded,
				"session %s already at response limit (%d/%d)",
				sessionID, sess.ResponseCount, session.MaxResponseCount)
		}

		previous := sess
		sess.ResponseCount++
		sess.UpdatedAt = time.Now().UTC()
		newCount = sess.ResponseCount

		if sess.ResponseCount < session.MaxResponseCount {
			if err := s.store.Update(ctx, sess); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "update session")
			}
			return nil
		}

		// Sixth response: the counter write and the lock land together with
		// their audit entry, or not at all.
		sess.Locked = true
		sess.LockReason = LockReasonLimitReached
		entry := audit.Entry{
			EntityType:        audit.EntitySession,
			EntityID:          sessionID.String(),
			Action:            audit.ActionUpdated,
			Actor:             actor,
			ActorRole:         actorRole,
			ReasonCode:        session.ReasonSessionLocked,
			ReasonDescription: LockReasonLimitReached,
		}
		if err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			if err := s.store.Update(txCtx, sess); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "update session")
			}
			if _, err := s.auditor.Create(txCtx, entry); err != nil {
				if restoreErr := s.store.Update(txCtx, previous); restoreErr != nil && s.logger != nil {
					s.logger.ErrorContext(ctx, "session rollback failed after audit error",
						"session_id", sessionID,
						"error", restoreErr,
					)
				}
				return err
			}
			return nil
		}); err != nil {
			newCount = previous.ResponseCount
			return err
		}

		if s.metrics != nil {
			s.metrics.SessionsLockedTotal.Inc()
		}
		if s.logger != nil {
			s.logger.WarnContext(ctx, "response limit reached, session locked",
				"session_id", sessionID,
				"count", sess.ResponseCount,
			)
		}
		return nil
	})
	return newCount, err
}
