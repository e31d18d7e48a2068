// Package events maps domain events from collaborator systems onto state
// machine transitions. An event that does not apply in the session's current
// state is rejected, never silently dropped.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"sebenza/internal/audit"
	"sebenza/internal/platform/metrics"
	"sebenza/internal/session"
	id "sebenza/pkg/domain"
	dErrors "sebenza/pkg/domain-errors"
)

var tracer = otel.Tracer("sebenza/internal/events")

// AuditRecorder appends the event-level "why" entries.
type AuditRecorder interface {
	Create(ctx context.Context, entry audit.Entry) (id.EntryID, error)
}

// StateMachine is the subset of the session service the router drives.
type StateMachine interface {
	Get(ctx context.Context, sessionID id.SessionID) (session.Session, error)
	Create(ctx context.Context, sessionID id.SessionID, candidateID id.CandidateID, actor, actorRole string) (session.Session, error)
	RequestTransition(ctx context.Context, sessionID id.SessionID, targetState session.State, actor, actorRole, reasonCode, reasonDescription string) (session.Session, error)
}

// Router turns collaborator events into transition requests.
type Router struct {
	machine StateMachine
	auditor AuditRecorder
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Router)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

func NewRouter(machine StateMachine, auditor AuditRecorder, opts ...Option) (*Router, error) {
	if machine == nil {
		return nil, errors.New("state machine is required")
	}
	if auditor == nil {
		return nil, errors.New("audit recorder is required")
	}
	r := &Router{machine: machine, auditor: auditor}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// eventAction picks the audit action for the event-level entry. Rejections
// and payroll authorizations are first-class actions; the rest are updates.
func eventAction(trigger session.Trigger) audit.Action {
	switch trigger {
	case session.TriggerValidationFailed:
		return audit.ActionRejection
	case session.TriggerPayrollSyncAuthorized:
		return audit.ActionAuthorization
	default:
		return audit.ActionUpdated
	}
}

// ProcessEvent routes one domain event for a session.
//
// A successful mapped event leaves two related audit rows: the event-level
// entry (why) and the transition entry (what changed). Log-only events leave
// just the event-level entry. OnboardingStarted bootstraps the session when
// it does not exist yet; the creation entry doubles as its event record.
//
// Errors: CodeInvalidInput, CodeNotFound, CodeEventNotApplicable, plus
// whatever the transition itself returns.
func (r *Router) ProcessEvent(ctx context.Context, trigger session.Trigger, sessionID id.SessionID, candidateID id.CandidateID, actor, actorRole string, data json.RawMessage) (session.Session, error) {
	ctx, span := tracer.Start(ctx, "events.ProcessEvent")
	defer span.End()
	span.SetAttributes(
		attribute.String("event", string(trigger)),
		attribute.String("session.id", sessionID.String()),
	)

	if _, err := session.ParseTrigger(string(trigger)); err != nil {
		r.count(trigger, "invalid")
		return session.Session{}, err
	}

	created := false
	sess, err := r.machine.Get(ctx, sessionID)
	if dErrors.HasCode(err, dErrors.CodeNotFound) && trigger == session.TriggerOnboardingStarted {
		sess, err = r.machine.Create(ctx, sessionID, candidateID, actor, actorRole)
		created = true
	}
	if err != nil {
		r.count(trigger, "error")
		return session.Session{}, err
	}

	if trigger.IsLogOnly() {
		entry := audit.Entry{
			EntityType:        audit.EntitySession,
			EntityID:          sessionID.String(),
			Action:            eventAction(trigger),
			Actor:             actor,
			ActorRole:         actorRole,
			ReasonCode:        string(trigger),
			ReasonDescription: describe(data),
		}
		if _, err := r.auditor.Create(ctx, entry); err != nil {
			r.count(trigger, "error")
			return session.Session{}, err
		}
		r.count(trigger, "logged")
		return sess, nil
	}

	edge, ok := session.EdgeForTrigger(sess.State, trigger)
	if !ok {
		r.count(trigger, "not_applicable")
		if r.logger != nil {
			r.logger.WarnContext(ctx, "event not applicable in state",
				"event", trigger,
				"session_id", sessionID,
				"state", sess.State,
			)
		}
		return session.Session{}, dErrors.Newf(dErrors.CodeEventNotApplicable,
			"event %s does not apply to session %s in state %s", trigger, sessionID, sess.State)
	}

	// Event-level entry first: the why, distinct from the transition's what.
	// Session creation above already recorded the bootstrap event.
	if !created {
		entry := audit.Entry{
			EntityType:        audit.EntitySession,
			EntityID:          sessionID.String(),
			Action:            eventAction(trigger),
			Actor:             actor,
			ActorRole:         actorRole,
			ReasonCode:        string(trigger),
			ReasonDescription: describe(data),
		}
		if _, err := r.auditor.Create(ctx, entry); err != nil {
			r.count(trigger, "error")
			return session.Session{}, err
		}
	}

	updated, err := r.machine.RequestTransition(ctx, sessionID, edge.To, actor, actorRole, "", "")
	if err != nil {
		r.count(trigger, "rejected")
		return session.Session{}, err
	}

	r.count(trigger, "transitioned")
	if r.logger != nil {
		r.logger.InfoContext(ctx, "domain event processed",
			"event", trigger,
			"session_id", sessionID,
			"to", edge.To,
		)
	}
	return updated, nil
}

func (r *Router) count(trigger session.Trigger, result string) {
	if r.metrics != nil {
		r.metrics.EventsProcessed.WithLabelValues(string(trigger), result).Inc()
	}
}

// describe compacts the opaque collaborator payload for the audit trail.
// Field contents are pre-validated upstream and never re-validated here.
func describe(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	compact := make(map[string]any)
	if err := json.Unmarshal(data, &compact); err != nil {
		return ""
	}
	out, err := json.Marshal(compact)
	if err != nil {
		return ""
	}
	const maxLen = 512
	if len(out) > maxLen {
		return string(out[:maxLen])
	}
	return string(out)
}
