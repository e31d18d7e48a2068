// Package domainerrors provides typed, code-carrying errors for the onboarding
// core. Services create these at the point of failure; transports translate
// codes into responses without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a failure. The set is closed: collaborators branch on codes,
// so adding one is an API change.
type Code string

const (
	// CodeNotFound signals the referenced session, item, or entry does not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeSessionLocked signals the session is locked and refuses normal
	// transitions. The message carries the lock reason.
	CodeSessionLocked Code = "SESSION_LOCKED"

	// CodeInvalidTransition signals a non-edge transition was attempted
	// without a reason code to authorize it as an override.
	CodeInvalidTransition Code = "INVALID_TRANSITION_NO_REASON"

	// CodeLimitExceeded signals the interaction ceiling was already reached.
	CodeLimitExceeded Code = "LIMIT_EXCEEDED"

	// CodeEventNotApplicable signals a domain event arrived in a state with no
	// matching transition edge. Events are never silently dropped.
	CodeEventNotApplicable Code = "EVENT_NOT_APPLICABLE_IN_STATE"

	// CodeValidationGate signals the checklist gate blocked verification. The
	// message enumerates missing items so the candidate can be rerouted.
	CodeValidationGate Code = "VALIDATION_GATE_FAILED"

	// CodeIntegrityViolation is reported by audit trail verification. Never
	// auto-corrected.
	CodeIntegrityViolation Code = "INTEGRITY_VIOLATION"

	CodeInvalidInput Code = "INVALID_INPUT"
	CodeBadRequest   Code = "BAD_REQUEST"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeConflict     Code = "CONFLICT"
	CodeTimeout      Code = "TIMEOUT"
	CodeInternal     Code = "INTERNAL"
)

// Error is the concrete error type carried across layers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error with a message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is/As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that never passed through this package.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
