package handler

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"sebenza/internal/audit"
	id "sebenza/pkg/domain"
	dErrors "sebenza/pkg/domain-errors"
	"sebenza/pkg/testutil"
)

type AuditHandlerSuite struct {
	suite.Suite
	router    chi.Router
	service   *audit.Service
	candidate id.CandidateID
	sessionID id.SessionID
}

func TestAuditHandlerSuite(t *testing.T) {
	suite.Run(t, new(AuditHandlerSuite))
}

func (s *AuditHandlerSuite) SetupTest() {
	var err error
	s.service, err = audit.NewService(audit.NewInMemoryStore())
	s.Require().NoError(err)

	h := New(s.service, slog.Default())
	s.router = chi.NewRouter()
	h.Register(s.router)

	s.candidate = id.NewCandidateID()
	s.sessionID = id.NewSessionID()
}

func (s *AuditHandlerSuite) record(entry audit.Entry) {
	_, err := s.service.Create(context.Background(), entry)
	s.Require().NoError(err)
}

func (s *AuditHandlerSuite) seedSessionTrail() {
	s.record(audit.Entry{
		EntityType: audit.EntitySession,
		EntityID:   s.sessionID.String(),
		Action:     audit.ActionCreated,
		Actor:      "agent-1",
		ActorRole:  "ONBOARDING_AGENT",
		ReasonCode: audit.BootstrapReasonCode,
		NewState:   "NOT_STARTED",
	})
	time.Sleep(time.Millisecond)
	s.record(audit.Entry{
		EntityType:    audit.EntitySession,
		EntityID:      s.sessionID.String(),
		Action:        audit.ActionStateTransition,
		Actor:         "agent-1",
		ActorRole:     "ONBOARDING_AGENT",
		PreviousState: "NOT_STARTED",
		NewState:      "IN_PROGRESS",
	})
}

func (s *AuditHandlerSuite) TestByEntity() {
	s.seedSessionTrail()

	req := testutil.NewRequest(s.T(), http.MethodGet,
		"/audit/entities/SESSION/"+s.sessionID.String())
	rr := testutil.DoRequest(s.router, testutil.WithActor(req, "auditor-1", "COMPLIANCE_REVIEWER"))

	testutil.AssertStatusOK(s.T(), rr)
	entries := testutil.UnmarshalResponse[[]audit.Entry](s.T(), rr)
	s.Require().Len(*entries, 2)
	s.Equal(audit.ActionCreated, (*entries)[0].Action)
	s.Equal(audit.ActionStateTransition, (*entries)[1].Action)
}

func (s *AuditHandlerSuite) TestByEntityUnknownType() {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/audit/entities/SPACESHIP/x-1")
	rr := testutil.DoRequest(s.router, testutil.WithActor(req, "auditor-1", "COMPLIANCE_REVIEWER"))

	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
}

func (s *AuditHandlerSuite) TestByCandidate() {
	s.seedSessionTrail()

	req := testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/audit/candidates/"+s.candidate.String()+"/entries",
		map[string]any{
			"refs": []map[string]string{
				{"type": string(audit.EntitySession), "id": s.sessionID.String()},
			},
		})
	rr := testutil.DoRequest(s.router, testutil.WithActor(req, "auditor-1", "COMPLIANCE_REVIEWER"))

	testutil.AssertStatusOK(s.T(), rr)
	entries := testutil.UnmarshalResponse[[]audit.Entry](s.T(), rr)
	s.Len(*entries, 2)
}

func (s *AuditHandlerSuite) TestIntegrityValidTrail() {
	s.seedSessionTrail()

	req := testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/audit/candidates/"+s.candidate.String()+"/integrity",
		map[string]any{
			"refs": []map[string]string{
				{"type": string(audit.EntitySession), "id": s.sessionID.String()},
			},
		})
	rr := testutil.DoRequest(s.router, testutil.WithActor(req, "auditor-1", "COMPLIANCE_REVIEWER"))

	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "isValid", true)
}

func (s *AuditHandlerSuite) TestIntegrityBrokenTrailIsConflict() {
	// A transition entry with no preceding creation entry.
	s.record(audit.Entry{
		EntityType:    audit.EntitySession,
		EntityID:      s.sessionID.String(),
		Action:        audit.ActionStateTransition,
		Actor:         "agent-1",
		ActorRole:     "ONBOARDING_AGENT",
		PreviousState: "NOT_STARTED",
		NewState:      "IN_PROGRESS",
	})

	req := testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/audit/candidates/"+s.candidate.String()+"/integrity",
		map[string]any{
			"refs": []map[string]string{
				{"type": string(audit.EntitySession), "id": s.sessionID.String()},
			},
		})
	rr := testutil.DoRequest(s.router, testutil.WithActor(req, "auditor-1", "COMPLIANCE_REVIEWER"))

	testutil.AssertStatus(s.T(), rr, http.StatusConflict)
	testutil.AssertJSONContains(s.T(), rr, "isValid", false)
}
