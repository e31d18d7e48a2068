package session

//go:generate mockgen -source=service.go -destination=mocks/service_mocks.go -package=mocks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"sebenza/internal/audit"
	"sebenza/internal/checklist"
	"sebenza/internal/session/mocks"
	id "sebenza/pkg/domain"
	dErrors "sebenza/pkg/domain-errors"
)

type SessionServiceSuite struct {
	suite.Suite
	ctx          context.Context
	store        *InMemoryStore
	auditStore   *audit.InMemoryStore
	checklistSvc *checklist.Service
	service      *Service
	candidate    id.CandidateID
}

func TestSessionServiceSuite(t *testing.T) {
	suite.Run(t, new(SessionServiceSuite))
}

func (s *SessionServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryStore()
	s.auditStore = audit.NewInMemoryStore()
	auditSvc, err := audit.NewService(s.auditStore)
	s.Require().NoError(err)
	checklistSvc, err := checklist.NewService(checklist.NewInMemoryStore(), auditSvc)
	s.Require().NoError(err)
	s.checklistSvc = checklistSvc
	svc, err := NewService(s.store, checklistSvc, auditSvc)
	s.Require().NoError(err)
	s.service = svc
	s.candidate = id.NewCandidateID()
}

// seed writes a session directly, bypassing the service, to start a test
// from an arbitrary state.
func (s *SessionServiceSuite) seed(state State) Session {
	now := time.Now().UTC()
	session := Session{
		ID:          id.NewSessionID(),
		CandidateID: s.candidate,
		State:       state,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.Require().NoError(s.store.Create(s.ctx, session))
	return session
}

func (s *SessionServiceSuite) completeChecklist() {
	_, err := s.checklistSvc.Initialize(s.ctx, s.candidate, "agent-1", "ONBOARDING_AGENT")
	s.Require().NoError(err)
	for _, t := range checklist.AllItemTypes() {
		if t == checklist.ItemPOPIAConsent {
			_, err = s.checklistSvc.RecordConsent(s.ctx, s.candidate, "cand-self", "CANDIDATE", "")
		} else {
			_, err = s.checklistSvc.CompleteItem(s.ctx, s.candidate, t, "agent-1", "ONBOARDING_AGENT", "")
		}
		s.Require().NoError(err)
	}
}

func (s *SessionServiceSuite) TestCreateBootstrapsSession() {
	sessionID := id.NewSessionID()
	sess, err := s.service.Create(s.ctx, sessionID, s.candidate, "agent-1", "ONBOARDING_AGENT")
	s.Require().NoError(err)
	s.Equal(StateNotStarted, sess.State)
	s.Zero(sess.ResponseCount)
	s.False(sess.Locked)

	entries, err := s.auditStore.ByEntity(s.ctx, audit.EntitySession, sessionID.String())
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionCreated, entries[0].Action)
	s.Equal(audit.BootstrapReasonCode, entries[0].ReasonCode)
	s.Equal(string(StateNotStarted), entries[0].NewState)
}

func (s *SessionServiceSuite) TestCreateDuplicateConflicts() {
	sessionID := id.NewSessionID()
	_, err := s.service.Create(s.ctx, sessionID, s.candidate, "agent-1", "ONBOARDING_AGENT")
	s.Require().NoError(err)

	_, err = s.service.Create(s.ctx, sessionID, s.candidate, "agent-1", "ONBOARDING_AGENT")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *SessionServiceSuite) TestTransitionAlongGraphEdge() {
	sess := s.seed(StateNotStarted)

	updated, err := s.service.RequestTransition(s.ctx, sess.ID, StateInProgress,
		"agent-1", "ONBOARDING_AGENT", "", "")
	s.Require().NoError(err)
	s.Equal(StateInProgress, updated.State)

	entries, err := s.auditStore.ByEntity(s.ctx, audit.EntitySession, sess.ID.String())
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionStateTransition, entries[0].Action)
	s.Equal(string(StateNotStarted), entries[0].PreviousState)
	s.Equal(string(StateInProgress), entries[0].NewState)
}

func (s *SessionServiceSuite) TestTransitionOffGraphRequiresReason() {
	sess := s.seed(StateNotStarted)

	_, err := s.service.RequestTransition(s.ctx, sess.ID, StateProcessing,
		"agent-1", "ONBOARDING_AGENT", "", "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	stored, err := s.store.Get(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(StateNotStarted, stored.State, "rejected transition must not change state")
}

func (s *SessionServiceSuite) TestTransitionOffGraphWithReasonIsOverride() {
	sess := s.seed(StateNotStarted)

	updated, err := s.service.RequestTransition(s.ctx, sess.ID, StateProcessing,
		"supervisor-1", "SUPERVISOR", "MANUAL_CORRECTION", "documents couriered directly")
	s.Require().NoError(err)
	s.Equal(StateProcessing, updated.State)

	entries, err := s.auditStore.ByEntity(s.ctx, audit.EntitySession, sess.ID.String())
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionOverride, entries[0].Action)
	s.Equal("MANUAL_CORRECTION", entries[0].ReasonCode)
}

func (s *SessionServiceSuite) TestVerificationGate() {
	s.Run("incomplete checklist without reason fails the gate", func() {
		s.SetupTest()
		sess := s.seed(StateAwaitingConfirmation)
		_, err := s.checklistSvc.Initialize(s.ctx, s.candidate, "agent-1", "ONBOARDING_AGENT")
		s.Require().NoError(err)

		_, err = s.service.RequestTransition(s.ctx, sess.ID, StateVerified,
			"agent-1", "ONBOARDING_AGENT", "", "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidationGate))
		s.Contains(err.Error(), "POPIA_CONSENT")
	})

	s.Run("uninitialized checklist fails the gate naming all items", func() {
		s.SetupTest()
		sess := s.seed(StateAwaitingConfirmation)

		_, err := s.service.RequestTransition(s.ctx, sess.ID, StateVerified,
			"agent-1", "ONBOARDING_AGENT", "", "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidationGate))
		s.Contains(err.Error(), "0/13")
	})

	s.Run("incomplete checklist with reason is an override", func() {
		s.SetupTest()
		sess := s.seed(StateAwaitingConfirmation)

		updated, err := s.service.RequestTransition(s.ctx, sess.ID, StateVerified,
			"supervisor-1", "SUPERVISOR", "EXEC_APPROVAL", "board-approved hire")
		s.Require().NoError(err)
		s.Equal(StateVerified, updated.State)
		s.Require().NotNil(updated.CompletedAt)

		entries, err := s.auditStore.ByEntity(s.ctx, audit.EntitySession, sess.ID.String())
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(audit.ActionOverride, entries[0].Action)
	})

	s.Run("complete checklist verifies normally", func() {
		s.SetupTest()
		sess := s.seed(StateAwaitingConfirmation)
		s.completeChecklist()

		updated, err := s.service.RequestTransition(s.ctx, sess.ID, StateVerified,
			"agent-1", "ONBOARDING_AGENT", "", "")
		s.Require().NoError(err)
		s.Equal(StateVerified, updated.State)
		s.Require().NotNil(updated.CompletedAt)
	})
}

func (s *SessionServiceSuite) TestVerifiedTransitionHoldsChecklistLock() {
	sess := s.seed(StateAwaitingConfirmation)

	ctrl := gomock.NewController(s.T())
	gate := mocks.NewMockVerificationGate(ctrl)
	held := false
	gate.EXPECT().WithCandidateLock(s.candidate, gomock.Any()).DoAndReturn(
		func(_ id.CandidateID, fn func() error) error {
			held = true
			defer func() { held = false }()
			return fn()
		})
	gate.EXPECT().Status(gomock.Any(), s.candidate).DoAndReturn(
		func(context.Context, id.CandidateID) (checklist.Status, error) {
			s.True(held, "gate must be read under the candidate checklist lock")
			return checklist.Status{Total: 13, Completed: 13, Percentage: 100, IsComplete: true}, nil
		})

	auditSvc, err := audit.NewService(s.auditStore)
	s.Require().NoError(err)
	svc, err := NewService(s.store, gate, auditSvc)
	s.Require().NoError(err)

	updated, err := svc.RequestTransition(s.ctx, sess.ID, StateVerified,
		"agent-1", "ONBOARDING_AGENT", "", "")
	s.Require().NoError(err)
	s.Equal(StateVerified, updated.State)

	// Other targets never touch the checklist lock; an unexpected call on the
	// mock would fail the test.
	other := s.seed(StateNotStarted)
	_, err = svc.RequestTransition(s.ctx, other.ID, StateInProgress,
		"agent-1", "ONBOARDING_AGENT", "", "")
	s.Require().NoError(err)
}

func (s *SessionServiceSuite) TestLockedSessionRejectsTransitions() {
	sess := s.seed(StateInProgress)

	locked, err := s.service.Lock(s.ctx, sess.ID, "manual review", "supervisor-1", "SUPERVISOR")
	s.Require().NoError(err)
	s.True(locked.Locked)

	_, err = s.service.RequestTransition(s.ctx, sess.ID, StateDocumentsUploaded,
		"agent-1", "ONBOARDING_AGENT", "", "")
	s.True(dErrors.HasCode(err, dErrors.CodeSessionLocked))
	s.Contains(err.Error(), "manual review")
}

func (s *SessionServiceSuite) TestLockIsIdempotent() {
	sess := s.seed(StateInProgress)

	_, err := s.service.Lock(s.ctx, sess.ID, "first reason", "supervisor-1", "SUPERVISOR")
	s.Require().NoError(err)
	locked, err := s.service.Lock(s.ctx, sess.ID, "second reason", "supervisor-1", "SUPERVISOR")
	s.Require().NoError(err)
	s.Equal("first reason", locked.LockReason)

	entries, err := s.auditStore.ByEntity(s.ctx, audit.EntitySession, sess.ID.String())
	s.Require().NoError(err)
	s.Len(entries, 1, "repeat lock writes no second entry")
	s.Equal(ReasonSessionLocked, entries[0].ReasonCode)
}

func (s *SessionServiceSuite) TestTransitionRollsBackWhenAuditFails() {
	sess := s.seed(StateNotStarted)

	ctrl := gomock.NewController(s.T())
	auditor := mocks.NewMockAuditRecorder(ctrl)
	auditor.EXPECT().Create(gomock.Any(), gomock.Any()).
		Return(id.EntryID(""), errors.New("audit store down"))

	broken, err := NewService(s.store, s.checklistSvc, auditor)
	s.Require().NoError(err)

	_, err = broken.RequestTransition(s.ctx, sess.ID, StateInProgress,
		"agent-1", "ONBOARDING_AGENT", "", "")
	s.Require().Error(err)

	stored, err := s.store.Get(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(StateNotStarted, stored.State, "state change must not survive a failed audit write")
}

func (s *SessionServiceSuite) TestRestartResponseCountPolicy() {
	s.Run("default keeps the response count", func() {
		s.SetupTest()
		sess := s.seed(StateFailed)
		sess.ResponseCount = 4
		s.Require().NoError(s.store.Update(s.ctx, sess))

		updated, err := s.service.RequestTransition(s.ctx, sess.ID, StateInProgress,
			"agent-1", "ONBOARDING_AGENT", "", "")
		s.Require().NoError(err)
		s.Equal(4, updated.ResponseCount)
	})

	s.Run("configured reset clears the response count", func() {
		s.SetupTest()
		auditSvc, err := audit.NewService(s.auditStore)
		s.Require().NoError(err)
		svc, err := NewService(s.store, s.checklistSvc, auditSvc,
			WithRestartResetsResponses(true))
		s.Require().NoError(err)

		sess := s.seed(StateFailed)
		sess.ResponseCount = 4
		s.Require().NoError(s.store.Update(s.ctx, sess))

		updated, err := svc.RequestTransition(s.ctx, sess.ID, StateInProgress,
			"agent-1", "ONBOARDING_AGENT", "", "")
		s.Require().NoError(err)
		s.Zero(updated.ResponseCount)
	})
}

func (s *SessionServiceSuite) TestGetUnknownSessionIsNotFound() {
	_, err := s.service.Get(s.ctx, id.NewSessionID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestGraphEdges(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{"start onboarding", StateNotStarted, StateInProgress, true},
		{"upload documents", StateInProgress, StateDocumentsUploaded, true},
		{"extraction", StateDocumentsUploaded, StateProcessing, true},
		{"confirmation", StateProcessing, StateAwaitingConfirmation, true},
		{"verify", StateAwaitingConfirmation, StateVerified, true},
		{"authorize sync", StateVerified, StateSyncReady, true},
		{"restart", StateFailed, StateInProgress, true},
		{"send back for rework", StateAwaitingConfirmation, StateInProgress, true},
		{"skip ahead", StateNotStarted, StateVerified, false},
		{"backwards", StateProcessing, StateDocumentsUploaded, false},
		{"out of terminal", StateSyncReady, StateInProgress, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidEdge(tt.from, tt.to); got != tt.want {
				t.Errorf("ValidEdge(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}
