package session

import (
	"time"

	id "sebenza/pkg/domain"
	dErrors "sebenza/pkg/domain-errors"
)

// State is a session's position in the onboarding lifecycle.
type State string

const (
	StateNotStarted           State = "NOT_STARTED"
	StateInProgress           State = "IN_PROGRESS"
	StateDocumentsUploaded    State = "DOCUMENTS_UPLOADED"
	StateProcessing           State = "PROCESSING"
	StateAwaitingConfirmation State = "AWAITING_CONFIRMATION"
	StateVerified             State = "VERIFIED"
	StateSyncReady            State = "SYNC_READY"
	StateFailed               State = "FAILED"
)

var validStates = map[State]bool{
	StateNotStarted:           true,
	StateInProgress:           true,
	StateDocumentsUploaded:    true,
	StateProcessing:           true,
	StateAwaitingConfirmation: true,
	StateVerified:             true,
	StateSyncReady:            true,
	StateFailed:               true,
}

// IsValid checks the state against the eight-value enum.
func (s State) IsValid() bool { return validStates[s] }

// IsTerminal reports whether no further transition exists. SYNC_READY is the
// sole fully-terminal success state.
func (s State) IsTerminal() bool { return s == StateSyncReady }

// ParseState constructs a State from external input.
//
// Errors: returns CodeInvalidInput for empty or unknown values.
func ParseState(s string) (State, error) {
	state := State(s)
	if !state.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid state %q", s)
	}
	return state, nil
}

// MaxResponseCount is the hard interactive-exchange ceiling. Programme-wide
// constant, not configurable per session.
const MaxResponseCount = 6

// Session is one candidate's onboarding workflow instance.
type Session struct {
	ID            id.SessionID   `json:"id"`
	CandidateID   id.CandidateID `json:"candidateId"`
	State         State          `json:"state"`
	ResponseCount int            `json:"responseCount"`
	Locked        bool           `json:"locked"`
	LockReason    string         `json:"lockReason,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
}
