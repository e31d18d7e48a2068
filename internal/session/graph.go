package session

import dErrors "sebenza/pkg/domain-errors"

// Trigger is a domain event name that can drive a transition. Collaborators
// emit these through the event router; SessionLocked and OverrideApplied are
// log-only notifications with no state effect.
type Trigger string

const (
	TriggerOnboardingStarted     Trigger = "OnboardingStarted"
	TriggerDocumentsUploaded     Trigger = "DocumentsUploaded"
	TriggerExtractionCompleted   Trigger = "ExtractionCompleted"
	TriggerValidationFailed      Trigger = "ValidationFailed"
	TriggerConfirmationCompleted Trigger = "ConfirmationCompleted"
	TriggerOnboardingVerified    Trigger = "OnboardingVerified"
	TriggerPayrollSyncAuthorized Trigger = "PayrollSyncAuthorized"
	TriggerSessionLocked         Trigger = "SessionLocked"
	TriggerOverrideApplied       Trigger = "OverrideApplied"
)

var logOnlyTriggers = map[Trigger]bool{
	TriggerSessionLocked:   true,
	TriggerOverrideApplied: true,
}

// IsLogOnly reports whether the trigger only records an audit entry.
func (t Trigger) IsLogOnly() bool { return logOnlyTriggers[t] }

// ParseTrigger constructs a Trigger from external input.
//
// Errors: returns CodeInvalidInput for empty or unknown event names.
func ParseTrigger(s string) (Trigger, error) {
	t := Trigger(s)
	for _, edge := range edges {
		if edge.Trigger == t {
			return t, nil
		}
	}
	if logOnlyTriggers[t] {
		return t, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown domain event %q", s)
}

// Edge is one legal forward transition. Trigger is empty for edges only
// reachable through a direct transition request.
type Edge struct {
	From    State
	To      State
	Trigger Trigger
}

// edges is the single authoritative transition graph. The event mapping is
// derived from it rather than maintained as a second structure that could
// drift.
var edges = []Edge{
	{From: StateNotStarted, To: StateInProgress, Trigger: TriggerOnboardingStarted},
	{From: StateInProgress, To: StateDocumentsUploaded, Trigger: TriggerDocumentsUploaded},
	{From: StateInProgress, To: StateFailed},
	{From: StateDocumentsUploaded, To: StateProcessing, Trigger: TriggerExtractionCompleted},
	{From: StateDocumentsUploaded, To: StateFailed},
	{From: StateProcessing, To: StateAwaitingConfirmation, Trigger: TriggerConfirmationCompleted},
	{From: StateProcessing, To: StateFailed, Trigger: TriggerValidationFailed},
	{From: StateAwaitingConfirmation, To: StateVerified, Trigger: TriggerOnboardingVerified},
	{From: StateAwaitingConfirmation, To: StateFailed},
	{From: StateAwaitingConfirmation, To: StateInProgress},
	{From: StateVerified, To: StateSyncReady, Trigger: TriggerPayrollSyncAuthorized},
	{From: StateFailed, To: StateInProgress},
}

// ValidEdge reports whether from→to is in the transition graph.
func ValidEdge(from, to State) bool {
	for _, edge := range edges {
		if edge.From == from && edge.To == to {
			return true
		}
	}
	return false
}

// EdgeForTrigger finds the edge the trigger drives from the given state.
func EdgeForTrigger(from State, trigger Trigger) (Edge, bool) {
	for _, edge := range edges {
		if edge.From == from && edge.Trigger == trigger {
			return edge, true
		}
	}
	return Edge{}, false
}
