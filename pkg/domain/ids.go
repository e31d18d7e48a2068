package domain

import (
	"github.com/google/uuid"

	dErrors "sebenza/pkg/domain-errors"
)

// CandidateID identifies the person being onboarded. The candidate record is
// owned by collaborator systems; this core only references it.
type CandidateID string

// SessionID identifies one onboarding workflow instance. Collaborators may
// supply their own identifiers, so the type stays an opaque string.
type SessionID string

// ItemID identifies a single checklist item row.
type ItemID string

// EntryID identifies an audit log entry. Always generated, never supplied.
type EntryID string

func (c CandidateID) String() string { return string(c) }
func (s SessionID) String() string   { return string(s) }
func (i ItemID) String() string      { return string(i) }
func (e EntryID) String() string     { return string(e) }

// NewCandidateID mints a candidate identifier for flows that create the
// candidate reference locally rather than receiving one from a collaborator.
func NewCandidateID() CandidateID { return CandidateID(uuid.NewString()) }

// NewSessionID mints a session identifier for flows where the application
// layer owns ID generation (the web wizard supplies its own otherwise).
func NewSessionID() SessionID { return SessionID(uuid.NewString()) }

// NewItemID mints a checklist item identifier.
func NewItemID() ItemID { return ItemID(uuid.NewString()) }

// NewEntryID mints an audit entry identifier.
func NewEntryID() EntryID { return EntryID(uuid.NewString()) }

// ParseCandidateID constructs a CandidateID from external input.
//
// Errors: returns CodeInvalidInput when the value is empty.
func ParseCandidateID(s string) (CandidateID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "candidate id cannot be empty")
	}
	return CandidateID(s), nil
}

// ParseSessionID constructs a SessionID from external input.
//
// Errors: returns CodeInvalidInput when the value is empty.
func ParseSessionID(s string) (SessionID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "session id cannot be empty")
	}
	return SessionID(s), nil
}
