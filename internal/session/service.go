package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"sebenza/internal/audit"
	"sebenza/internal/checklist"
	"sebenza/internal/platform/metrics"
	id "sebenza/pkg/domain"
	dErrors "sebenza/pkg/domain-errors"
	"sebenza/pkg/platform/locks"
	"sebenza/pkg/platform/sentinel"
)

var tracer = otel.Tracer("sebenza/internal/session")

// Reason codes written by state machine operations.
const (
	ReasonSessionLocked = "SESSION_LOCKED"
)

// AuditRecorder appends compliance entries. Fail-closed: a state mutation and
// its audit entry must succeed or fail together.
type AuditRecorder interface {
	Create(ctx context.Context, entry audit.Entry) (id.EntryID, error)
}

// VerificationGate answers whether a candidate's checklist allows
// verification. Implemented by the checklist service. WithCandidateLock
// serializes against item mutations so a gate read and the state write it
// authorizes see one consistent checklist.
type VerificationGate interface {
	Status(ctx context.Context, candidateID id.CandidateID) (checklist.Status, error)
	WithCandidateLock(candidateID id.CandidateID, fn func() error) error
}

// TxRunner wraps a state mutation and its audit append in one atomic unit.
// The postgres runner opens a sql.Tx and threads it through context; the
// default passthrough relies on service-level compensation under the
// per-session lock.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NopTx runs the function directly. Suitable for in-memory stores where the
// service compensates on audit failure while holding the session lock.
type NopTx struct{}

func (NopTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Service is the state machine: it owns session state and transition
// legality. All mutations for one session are serialized through a per-session
// lock shared with the response limiter.
type Service struct {
	store   Store
	gate    VerificationGate
	auditor AuditRecorder
	tx      TxRunner
	locks   *locks.Keyed
	logger  *slog.Logger
	metrics *metrics.Metrics

	// restartResetsResponses controls whether a FAILED→IN_PROGRESS restart
	// clears the response counter. Checklist completions always survive.
	restartResetsResponses bool
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTxRunner(tx TxRunner) Option {
	return func(s *Service) { s.tx = tx }
}

// WithSharedLocks injects the per-session lock registry shared with the
// response limiter so both serialize on the same keys.
func WithSharedLocks(k *locks.Keyed) Option {
	return func(s *Service) { s.locks = k }
}

func WithRestartResetsResponses(reset bool) Option {
	return func(s *Service) { s.restartResetsResponses = reset }
}

func NewService(store Store, gate VerificationGate, auditor AuditRecorder, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if gate == nil {
		return nil, errors.New("verification gate is required")
	}
	if auditor == nil {
		return nil, errors.New("audit recorder is required")
	}
	svc := &Service{
		store:   store,
		gate:    gate,
		auditor: auditor,
		tx:      NopTx{},
		locks:   locks.NewKeyed(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Locks exposes the per-session lock registry for components that share the
// session consistency unit.
func (s *Service) Locks() *locks.Keyed { return s.locks }

// Get loads one session.
//
// Errors: CodeNotFound when the session does not exist.
func (s *Service) Get(ctx context.Context, sessionID id.SessionID) (Session, error) {
	session, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Session{}, dErrors.Newf(dErrors.CodeNotFound, "session %s not found", sessionID)
	}
	if err != nil {
		return Session{}, dErrors.Wrap(err, dErrors.CodeInternal, "load session")
	}
	return session, nil
}

// Create bootstraps a session in NOT_STARTED. The creation audit entry is the
// bootstrap record integrity verification later looks for.
func (s *Service) Create(ctx context.Context, sessionID id.SessionID, candidateID id.CandidateID, actor, actorRole string) (Session, error) {
	if sessionID == "" || candidateID == "" {
		return Session{}, dErrors.New(dErrors.CodeInvalidInput, "session id and candidate id are required")
	}

	now := time.Now().UTC()
	session := Session{
		ID:          sessionID,
		CandidateID: candidateID,
		State:       StateNotStarted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.locks.WithLock(sessionID.String(), func() error {
		return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			if err := s.store.Create(txCtx, session); err != nil {
				if errors.Is(err, sentinel.ErrConflict) {
					return dErrors.Newf(dErrors.CodeConflict, "session %s already exists", sessionID)
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, "create session")
			}
			entry := audit.Entry{
				EntityType: audit.EntitySession,
				EntityID:   sessionID.String(),
				Action:     audit.ActionCreated,
				Actor:      actor,
				ActorRole:  actorRole,
				NewState:   string(StateNotStarted),
				ReasonCode: audit.BootstrapReasonCode,
			}
			if _, err := s.auditor.Create(txCtx, entry); err != nil {
				return err
			}
			return nil
		})
	})
	if err != nil {
		return Session{}, err
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "session created",
			"session_id", sessionID,
			"candidate_id", candidateID,
		)
	}
	return session, nil
}

// RequestTransition moves a session to targetState.
//
// A transition along a graph edge executes as STATE_TRANSITION. Anything off
// the graph requires a non-empty reason code and executes as OVERRIDE, always
// distinguishable in the trail. Entry to VERIFIED along the normal edge is
// gated on the candidate's checklist; a reason code bypasses the gate but is
// then recorded as an override of it.
//
// Errors: CodeNotFound, CodeSessionLocked (carrying the lock reason),
// CodeInvalidTransition, CodeValidationGate.
func (s *Service) RequestTransition(ctx context.Context, sessionID id.SessionID, targetState State, actor, actorRole, reasonCode, reasonDescription string) (Session, error) {
	ctx, span := tracer.Start(ctx, "session.RequestTransition")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sessionID.String()),
		attribute.String("session.target_state", string(targetState)),
	)

	if !targetState.IsValid() {
		return Session{}, dErrors.Newf(dErrors.CodeInvalidInput, "invalid target state %q", targetState)
	}

	var result Session
	err := s.locks.WithLock(sessionID.String(), func() error {
		session, err := s.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Locked {
			return dErrors.Newf(dErrors.CodeSessionLocked, "session %s is locked: %s", sessionID, session.LockReason)
		}

		// Entering VERIFIED freezes the candidate's checklist so no item can
		// change between the gate read and the state write. Lock order is
		// session then candidate everywhere.
		if targetState == StateVerified {
			return s.gate.WithCandidateLock(session.CandidateID, func() error {
				return s.applyTransition(ctx, session, targetState, actor, actorRole, reasonCode, reasonDescription, &result)
			})
		}
		return s.applyTransition(ctx, session, targetState, actor, actorRole, reasonCode, reasonDescription, &result)
	})
	if err != nil {
		return Session{}, err
	}
	return result, nil
}

// applyTransition runs the gate check, the state write, and its audit append.
// Callers hold the per-session lock, plus the candidate checklist lock when
// targetState is VERIFIED.
func (s *Service) applyTransition(ctx context.Context, session Session, targetState State, actor, actorRole, reasonCode, reasonDescription string, result *Session) error {
	sessionID := session.ID
	action := audit.ActionStateTransition
	if ValidEdge(session.State, targetState) {
		if targetState == StateVerified {
			status, err := s.gate.Status(ctx, session.CandidateID)
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				status = checklist.EmptyStatus()
			} else if err != nil {
				return err
			}
			if !status.IsComplete {
				if reasonCode == "" {
					return checklist.GateError(status)
				}
				action = audit.ActionOverride
			}
		}
	} else {
		if reasonCode == "" {
			return dErrors.Newf(dErrors.CodeInvalidTransition,
				"no edge %s→%s; a reason code is required to override", session.State, targetState)
		}
		action = audit.ActionOverride
	}

	previous := session
	now := time.Now().UTC()
	session.State = targetState
	session.UpdatedAt = now
	if targetState == StateVerified || targetState == StateSyncReady {
		session.CompletedAt = &now
	}
	if targetState == StateInProgress && previous.State == StateFailed && s.restartResetsResponses {
		session.ResponseCount = 0
	}

	entry := audit.Entry{
		EntityType:        audit.EntitySession,
		EntityID:          sessionID.String(),
		Action:            action,
		Actor:             actor,
		ActorRole:         actorRole,
		PreviousState:     string(previous.State),
		NewState:          string(targetState),
		ReasonCode:        reasonCode,
		ReasonDescription: reasonDescription,
	}

	if err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Update(txCtx, session); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update session")
		}
		if _, err := s.auditor.Create(txCtx, entry); err != nil {
			// No state change without its audit entry: restore the prior
			// session while still holding the per-session lock. Inside a
			// real transaction the rollback makes this a no-op.
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
		return err
	}

	if s.metrics != nil {
		s.metrics.TransitionsTotal.WithLabelValues(string(targetState)).Inc()
		if action == audit.ActionOverride {
			s.metrics.OverridesTotal.Inc()
		}
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "session transitioned",
			"session_id", sessionID,
			"from", previous.State,
			"to", targetState,
			"action", action,
			"actor", actor,
		)
	}
	*result = session
	return nil
}

// Lock marks a session locked with a reason. Locking an already-locked
// session is a no-op. Once locked, no normal transition may occur.
func (s *Service) Lock(ctx context.Context, sessionID id.SessionID, reason, actor, actorRole string) (Session, error) {
	var result Session
	err := s.locks.WithLock(sessionID.String(), func() error {
		session, err := s.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		updated, err := ApplyLock(ctx, s.store, s.auditor, s.tx, session, reason, actor, actorRole, s.logger)
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	if s.metrics != nil && result.Locked {
		s.metrics.SessionsLockedTotal.Inc()
	}
	return result, nil
}

// ApplyLock performs the lock mutation and its audit append without acquiring
// the per-session lock. Callers must already hold it; the response limiter
// uses this to lock within the same operation that hits the ceiling.
func ApplyLock(ctx context.Context, store Store, auditor AuditRecorder, tx TxRunner, session Session, reason, actor, actorRole string, logger *slog.Logger) (Session, error) {
	if session.Locked {
		return session, nil
	}

	previous := session
	session.Locked = true
	session.LockReason = reason
	session.UpdatedAt = time.Now().UTC()

	entry := audit.Entry{
		EntityType:        audit.EntitySession,
		EntityID:          session.ID.String(),
		Action:            audit.ActionUpdated,
		Actor:             actor,
		ActorRole:         actorRole,
		ReasonCode:        ReasonSessionLocked,
		ReasonDescription: reason,
	}

	err := tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := store.Update(txCtx, session); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update session")
		}
		if _, err := auditor.Create(txCtx, entry); err != nil {
			if restoreErr := store.Update(txCtx, previous); restoreErr != nil && logger != nil {
				logger.ErrorContext(ctx, "session rollback failed after audit error",
					"session_id", session.ID,
					"error", restoreErr,
				)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return Session{}, err
	}

	if logger != nil {
		logger.WarnContext(ctx, "session locked",
			"session_id", session.ID,
			"reason", reason,
		)
	}
	return session, nil
}
