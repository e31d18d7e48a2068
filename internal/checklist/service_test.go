package checklist

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"sebenza/internal/audit"
	id "sebenza/pkg/domain"
	dErrors "sebenza/pkg/domain-errors"
)

type ChecklistServiceSuite struct {
	suite.Suite
	ctx        context.Context
	store      *InMemoryStore
	auditStore *audit.InMemoryStore
	service    *Service
	candidate  id.CandidateID
}

func TestChecklistServiceSuite(t *testing.T) {
	suite.Run(t, new(ChecklistServiceSuite))
}

func (s *ChecklistServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryStore()
	s.auditStore = audit.NewInMemoryStore()
	auditSvc, err := audit.NewService(s.auditStore)
	s.Require().NoError(err)
	svc, err := NewService(s.store, auditSvc)
	s.Require().NoError(err)
	s.service = svc
	s.candidate = id.NewCandidateID()
}

func (s *ChecklistServiceSuite) initialize() []Item {
	items, err := s.service.Initialize(s.ctx, s.candidate, "agent-1", "ONBOARDING_AGENT")
	s.Require().NoError(err)
	return items
}

func (s *ChecklistServiceSuite) TestInitializeCreatesThirteenPendingItems() {
	items := s.initialize()
	s.Require().Len(items, 13)

	seen := map[ItemType]bool{}
	for _, item := range items {
		s.False(item.Completed)
		s.Equal(StatusPending, item.ValidationStatus)
		s.Nil(item.CompletedAt)
		seen[item.Type] = true
	}
	s.Len(seen, 13)

	// One creation entry per item.
	for _, item := range items {
		entries, err := s.auditStore.ByEntity(s.ctx, audit.EntityChecklistItem, item.ID.String())
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(audit.ActionCreated, entries[0].Action)
		s.Equal(ReasonChecklistInitialized, entries[0].ReasonCode)
	}
}

func (s *ChecklistServiceSuite) TestCompleteItem() {
	s.initialize()

	item, err := s.service.CompleteItem(s.ctx, s.candidate, ItemDocCV, "agent-1", "ONBOARDING_AGENT", "certified copy on file")
	s.Require().NoError(err)
	s.True(item.Completed)
	s.Equal(StatusValid, item.ValidationStatus)
	s.Require().NotNil(item.CompletedAt)
	s.Equal("agent-1", item.CompletedBy)

	entries, err := s.auditStore.ByEntity(s.ctx, audit.EntityChecklistItem, item.ID.String())
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(audit.ActionUpdated, entries[1].Action)
	s.Equal(ReasonItemCompleted, entries[1].ReasonCode)
}

func (s *ChecklistServiceSuite) TestCompleteItemIsIdempotent() {
	s.initialize()

	first, err := s.service.CompleteItem(s.ctx, s.candidate, ItemDocCV, "agent-1", "ONBOARDING_AGENT", "")
	s.Require().NoError(err)

	second, err := s.service.CompleteItem(s.ctx, s.candidate, ItemDocCV, "agent-2", "ONBOARDING_AGENT", "")
	s.Require().NoError(err)

	s.Equal(first.CompletedAt, second.CompletedAt)
	s.Equal("agent-1", second.CompletedBy)

	entries, err := s.auditStore.ByEntity(s.ctx, audit.EntityChecklistItem, first.ID.String())
	s.Require().NoError(err)
	s.Len(entries, 2, "no second completion entry for a repeat")
}

func (s *ChecklistServiceSuite) TestCompleteItemRefusesConsent() {
	s.initialize()

	_, err := s.service.CompleteItem(s.ctx, s.candidate, ItemPOPIAConsent, "agent-1", "ONBOARDING_AGENT", "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ChecklistServiceSuite) TestRecordConsent() {
	s.initialize()

	item, err := s.service.RecordConsent(s.ctx, s.candidate, "cand-self", "CANDIDATE", "accepted v2 notice")
	s.Require().NoError(err)
	s.Equal(ItemPOPIAConsent, item.Type)
	s.True(item.IsSatisfied())

	entries, err := s.auditStore.ByEntity(s.ctx, audit.EntityChecklistItem, item.ID.String())
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(ReasonConsentGranted, entries[1].ReasonCode)
}

func (s *ChecklistServiceSuite) TestInvalidateItem() {
	s.initialize()

	_, err := s.service.CompleteItem(s.ctx, s.candidate, ItemDocBankProof, "agent-1", "ONBOARDING_AGENT", "")
	s.Require().NoError(err)

	item, err := s.service.InvalidateItem(s.ctx, s.candidate, ItemDocBankProof, "reviewer-1", "COMPLIANCE_REVIEWER", "statement older than 3 months")
	s.Require().NoError(err)
	s.False(item.Completed)
	s.Equal(StatusInvalid, item.ValidationStatus)
	s.Nil(item.CompletedAt)
	s.Empty(item.CompletedBy)
}

func (s *ChecklistServiceSuite) TestInvalidateRequiresReason() {
	s.initialize()

	_, err := s.service.InvalidateItem(s.ctx, s.candidate, ItemDocBankProof, "reviewer-1", "COMPLIANCE_REVIEWER", "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ChecklistServiceSuite) TestRepeatInvalidationStillAudits() {
	s.initialize()

	item, err := s.service.InvalidateItem(s.ctx, s.candidate, ItemDocBankProof, "reviewer-1", "COMPLIANCE_REVIEWER", "illegible")
	s.Require().NoError(err)

	_, err = s.service.InvalidateItem(s.ctx, s.candidate, ItemDocBankProof, "reviewer-1", "COMPLIANCE_REVIEWER", "still illegible")
	s.Require().NoError(err)

	entries, err := s.auditStore.ByEntity(s.ctx, audit.EntityChecklistItem, item.ID.String())
	s.Require().NoError(err)
	s.Len(entries, 3, "creation plus one entry per invalidation")
	s.Equal(audit.ActionRejection, entries[1].Action)
	s.Equal(audit.ActionRejection, entries[2].Action)
}

func (s *ChecklistServiceSuite) TestStatus() {
	s.initialize()

	status, err := s.service.Status(s.ctx, s.candidate)
	s.Require().NoError(err)
	s.Equal(13, status.Total)
	s.Equal(0, status.Completed)
	s.False(status.IsComplete)
	s.Len(status.MissingItems, 13)

	for _, t := range []ItemType{ItemIdentityConfirmed, ItemDocCV} {
		_, err := s.service.CompleteItem(s.ctx, s.candidate, t, "agent-1", "ONBOARDING_AGENT", "")
		s.Require().NoError(err)
	}

	status, err = s.service.Status(s.ctx, s.candidate)
	s.Require().NoError(err)
	s.Equal(2, status.Completed)
	s.Equal(11, status.Pending)
	s.Equal(15, status.Percentage)
	s.False(status.IsComplete)
}

func (s *ChecklistServiceSuite) TestStatusUninitializedIsNotFound() {
	_, err := s.service.Status(s.ctx, s.candidate)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ChecklistServiceSuite) completeAll() {
	for _, t := range AllItemTypes() {
		var err error
		if t == ItemPOPIAConsent {
			_, err = s.service.RecordConsent(s.ctx, s.candidate, "cand-self", "CANDIDATE", "")
		} else {
			_, err = s.service.CompleteItem(s.ctx, s.candidate, t, "agent-1", "ONBOARDING_AGENT", "")
		}
		s.Require().NoError(err)
	}
}

func (s *ChecklistServiceSuite) TestCanVerify() {
	s.Run("uninitialized checklist cannot verify", func() {
		ok, err := s.service.CanVerify(s.ctx, s.candidate)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("twelve of thirteen cannot verify", func() {
		s.initialize()
		for _, t := range AllItemTypes() {
			if t == ItemPOPIAConsent {
				continue
			}
			_, err := s.service.CompleteItem(s.ctx, s.candidate, t, "agent-1", "ONBOARDING_AGENT", "")
			s.Require().NoError(err)
		}
		ok, err := s.service.CanVerify(s.ctx, s.candidate)
		s.Require().NoError(err)
		s.False(ok, "missing consent blocks verification")
	})

	s.Run("all thirteen can verify", func() {
		_, err := s.service.RecordConsent(s.ctx, s.candidate, "cand-self", "CANDIDATE", "")
		s.Require().NoError(err)
		ok, err := s.service.CanVerify(s.ctx, s.candidate)
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("invalidated item revokes eligibility", func() {
		_, err := s.service.InvalidateItem(s.ctx, s.candidate, ItemDocCV, "reviewer-1", "COMPLIANCE_REVIEWER", "forged")
		s.Require().NoError(err)
		ok, err := s.service.CanVerify(s.ctx, s.candidate)
		s.Require().NoError(err)
		s.False(ok)
	})
}

type failingRecorder struct{}

func (failingRecorder) Create(context.Context, audit.Entry) (id.EntryID, error) {
	return "", errors.New("audit store down")
}

// failAfterRecorder delegates until the nth create, then fails every call.
type failAfterRecorder struct {
	inner  AuditRecorder
	failAt int
	calls  int
}

func (r *failAfterRecorder) Create(ctx context.Context, entry audit.Entry) (id.EntryID, error) {
	r.calls++
	if r.calls >= r.failAt {
		return "", errors.New("audit store down")
	}
	return r.inner.Create(ctx, entry)
}

func (s *ChecklistServiceSuite) TestInitializeRollsBackWhenAuditFailsMidBatch() {
	auditSvc, err := audit.NewService(s.auditStore)
	s.Require().NoError(err)
	broken, err := NewService(s.store, &failAfterRecorder{inner: auditSvc, failAt: 7})
	s.Require().NoError(err)

	_, err = broken.Initialize(s.ctx, s.candidate, "agent-1", "ONBOARDING_AGENT")
	s.Require().Error(err)

	items, err := s.store.ListByCandidate(s.ctx, s.candidate)
	s.Require().NoError(err)
	s.Empty(items, "no item may survive a failed trail write")

	// A clean retry must not hit the already-initialized conflict.
	retried, err := s.service.Initialize(s.ctx, s.candidate, "agent-1", "ONBOARDING_AGENT")
	s.Require().NoError(err)
	s.Len(retried, 13)
}

func (s *ChecklistServiceSuite) TestCompletionRollsBackWhenAuditFails() {
	s.initialize()

	broken, err := NewService(s.store, failingRecorder{})
	s.Require().NoError(err)

	_, err = broken.CompleteItem(s.ctx, s.candidate, ItemDocCV, "agent-1", "ONBOARDING_AGENT", "")
	s.Require().Error(err)

	item, err := s.store.Get(s.ctx, s.candidate, ItemDocCV)
	s.Require().NoError(err)
	s.False(item.Completed, "completion must not survive a failed audit write")
	s.Equal(StatusPending, item.ValidationStatus)
}

func (s *ChecklistServiceSuite) TestGateErrorNamesMissingItems() {
	status := Status{
		Total:        13,
		Completed:    11,
		MissingItems: []ItemType{ItemPOPIAConsent, ItemFinalDeclaration},
	}
	err := GateError(status)
	s.True(dErrors.HasCode(err, dErrors.CodeValidationGate))
	s.Contains(err.Error(), "POPIA_CONSENT")
	s.Contains(err.Error(), "FINAL_DECLARATION")
	s.Contains(err.Error(), "11/13")
}
