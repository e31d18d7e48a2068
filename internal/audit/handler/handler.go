// Package handler exposes the audit trail over HTTP. All routes are
// read-only; entries are only ever written by domain operations.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"sebenza/internal/audit"
	"sebenza/internal/transport/http/shared"
	id "sebenza/pkg/domain"
	dErrors "sebenza/pkg/domain-errors"
	"sebenza/pkg/requestcontext"
)

// Service defines the audit queries the handler delegates to.
type Service interface {
	ByEntity(ctx context.Context, entityType audit.EntityType, entityID string) ([]audit.Entry, error)
	ByCandidate(ctx context.Context, candidateID id.CandidateID, refs []audit.EntityRef) ([]audit.Entry, error)
	VerifyIntegrity(ctx context.Context, candidateID id.CandidateID, refs []audit.EntityRef) (audit.IntegrityReport, error)
}

// Handler handles audit trail endpoints.
type Handler struct {
	audit  Service
	logger *slog.Logger
}

func New(audit Service, logger *slog.Logger) *Handler {
	return &Handler{audit: audit, logger: logger}
}

// Register registers the audit routes. Candidate-scoped queries take the
// entity references in the body because the log does not own the mapping
// from candidate to entities.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit/entities/{entityType}/{entityID}", h.handleByEntity)
	r.Post("/audit/candidates/{candidateID}/entries", h.handleByCandidate)
	r.Post("/audit/candidates/{candidateID}/integrity", h.handleIntegrity)
}

func (h *Handler) handleByEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityType := audit.EntityType(chi.URLParam(r, "entityType"))
	if !entityType.IsValid() {
		shared.WriteError(w, dErrors.Newf(dErrors.CodeInvalidInput, "unknown entity type %q", entityType))
		return
	}
	entityID := chi.URLParam(r, "entityID")

	entries, err := h.audit.ByEntity(ctx, entityType, entityID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, entries)
}

type candidateQuery struct {
	Refs []audit.EntityRef `json:"refs"`
}

func (h *Handler) handleByCandidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	candidateID, err := id.ParseCandidateID(chi.URLParam(r, "candidateID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req candidateQuery
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	entries, err := h.audit.ByCandidate(ctx, candidateID, req.Refs)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, entries)
}

// handleIntegrity verifies the candidate's trail. A failed verification is a
// 409 carrying the full report so operators can see every issue at once.
func (h *Handler) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	candidateID, err := id.ParseCandidateID(chi.URLParam(r, "candidateID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req candidateQuery
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	report, err := h.audit.VerifyIntegrity(ctx, candidateID, req.Refs)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if !report.IsValid {
		h.logger.WarnContext(ctx, "audit integrity verification failed",
			"candidate_id", candidateID,
			"issues", len(report.Issues),
			"request_id", requestcontext.RequestID(ctx),
		)
		shared.WriteJSON(w, http.StatusConflict, report)
		return
	}
	shared.WriteJSON(w, http.StatusOK, report)
}
