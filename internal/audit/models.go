package audit

import (
	"time"

	id "sebenza/pkg/domain"
)

// EntityType names the kind of record an audit entry is about. The set is
// closed so unrelated tables cannot share free-form type strings.
type EntityType string

const (
	EntitySession       EntityType = "SESSION"
	EntityChecklistItem EntityType = "CHECKLIST_ITEM"
	EntityDocument      EntityType = "DOCUMENT"
	EntityCandidate     EntityType = "CANDIDATE"
)

var validEntityTypes = map[EntityType]bool{
	EntitySession:       true,
	EntityChecklistItem: true,
	EntityDocument:      true,
	EntityCandidate:     true,
}

// IsValid checks the entity type against the closed set.
func (t EntityType) IsValid() bool { return validEntityTypes[t] }

// Action classifies what happened. Overrides are a distinct action so
// compliance review can flag them separately from ordinary transitions.
type Action string

const (
	ActionStateTransition Action = "STATE_TRANSITION"
	ActionOverride        Action = "OVERRIDE"
	ActionCreated         Action = "CREATED"
	ActionUpdated         Action = "UPDATED"
	ActionRejection       Action = "REJECTION"
	ActionAuthorization   Action = "AUTHORIZATION"
)

var validActions = map[Action]bool{
	ActionStateTransition: true,
	ActionOverride:        true,
	ActionCreated:         true,
	ActionUpdated:         true,
	ActionRejection:       true,
	ActionAuthorization:   true,
}

// IsValid checks the action against the closed set.
func (a Action) IsValid() bool { return validActions[a] }

// ChangesState reports whether entries with this action participate in the
// state-continuity chain during integrity verification.
func (a Action) ChangesState() bool {
	return a == ActionStateTransition || a == ActionOverride
}

// BootstrapReasonCode marks the event-level entry written when a session is
// created. Integrity verification requires its presence.
const BootstrapReasonCode = "OnboardingStarted"

// Entry is one append-only audit record. Immutable once written; no update or
// delete operation exists anywhere in the public contract.
type Entry struct {
	ID                id.EntryID `json:"id"`
	EntityType        EntityType `json:"entityType"`
	EntityID          string     `json:"entityId"`
	Action            Action     `json:"action"`
	Actor             string     `json:"actor"`
	ActorRole         string     `json:"actorRole"`
	PreviousState     string     `json:"previousState,omitempty"`
	NewState          string     `json:"newState,omitempty"`
	ReasonCode        string     `json:"reasonCode,omitempty"`
	ReasonDescription string     `json:"reasonDescription,omitempty"`
	Timestamp         time.Time  `json:"timestamp"`
}

// EntityRef points at one entity's trail. The log does not own the
// candidate-to-entity mapping, so cross-entity queries take explicit refs.
type EntityRef struct {
	Type EntityType `json:"type"`
	ID   string     `json:"id"`
}

// IntegrityReport is the outcome of trail verification. Issues are reported,
// never repaired.
type IntegrityReport struct {
	IsValid  bool     `json:"isValid"`
	Issues   []string `json:"issues"`
	LogCount int      `json:"logCount"`
}
