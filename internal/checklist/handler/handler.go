// Package handler exposes checklist operations over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"sebenza/internal/checklist"
	"sebenza/internal/transport/http/shared"
	id "sebenza/pkg/domain"
	dErrors "sebenza/pkg/domain-errors"
	"sebenza/pkg/requestcontext"
)

// Service defines the checklist operations the handler delegates to.
type Service interface {
	Initialize(ctx context.Context, candidateID id.CandidateID, actor, actorRole string) ([]checklist.Item, error)
	CompleteItem(ctx context.Context, candidateID id.CandidateID, itemType checklist.ItemType, actor, actorRole, notes string) (checklist.Item, error)
	RecordConsent(ctx context.Context, candidateID id.CandidateID, actor, actorRole, notes string) (checklist.Item, error)
	InvalidateItem(ctx context.Context, candidateID id.CandidateID, itemType checklist.ItemType, actor, actorRole, reason string) (checklist.Item, error)
	Status(ctx context.Context, candidateID id.CandidateID) (checklist.Status, error)
	CanVerify(ctx context.Context, candidateID id.CandidateID) (bool, error)
}

// Handler handles checklist endpoints.
type Handler struct {
	checklist Service
	logger    *slog.Logger
}

func New(checklist Service, logger *slog.Logger) *Handler {
	return &Handler{checklist: checklist, logger: logger}
}

// Register registers the checklist routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/candidates/{candidateID}/checklist", h.handleInitialize)
	r.Get("/candidates/{candidateID}/checklist", h.handleStatus)
	r.Get("/candidates/{candidateID}/checklist/eligibility", h.handleEligibility)
	r.Post("/candidates/{candidateID}/checklist/{itemType}/complete", h.handleComplete)
	r.Post("/candidates/{candidateID}/checklist/{itemType}/invalidate", h.handleInvalidate)
	r.Post("/candidates/{candidateID}/consent", h.handleConsent)
}

func candidateParam(r *http.Request) (id.CandidateID, error) {
	return id.ParseCandidateID(chi.URLParam(r, "candidateID"))
}

// decodeOptional decodes a request body whose fields are all optional. A
// missing body leaves req at its zero value; malformed JSON is rejected.
func decodeOptional(r *http.Request, req any) error {
	err := json.NewDecoder(r.Body).Decode(req)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
}

func (h *Handler) handleInitialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	candidateID, err := candidateParam(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	items, err := h.checklist.Initialize(ctx, candidateID,
		requestcontext.Actor(ctx), requestcontext.ActorRole(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "checklist initialization failed",
			"candidate_id", candidateID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, items)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	candidateID, err := candidateParam(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	status, err := h.checklist.Status(ctx, candidateID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, status)
}

type eligibilityResult struct {
	CanVerify bool `json:"can_verify"`
}

func (h *Handler) handleEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	candidateID, err := candidateParam(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	ok, err := h.checklist.CanVerify(ctx, candidateID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, eligibilityResult{CanVerify: ok})
}

type completeRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	candidateID, err := candidateParam(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	itemType := checklist.ItemType(chi.URLParam(r, "itemType"))

	var req completeRequest
	if err := decodeOptional(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	item, err := h.checklist.CompleteItem(ctx, candidateID, itemType,
		requestcontext.Actor(ctx), requestcontext.ActorRole(ctx), req.Notes)
	if err != nil {
		h.logger.WarnContext(ctx, "checklist completion failed",
			"candidate_id", candidateID,
			"item_type", itemType,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, item)
}

type invalidateRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	candidateID, err := candidateParam(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	itemType := checklist.ItemType(chi.URLParam(r, "itemType"))

	var req invalidateRequest
	if err := decodeOptional(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	item, err := h.checklist.InvalidateItem(ctx, candidateID, itemType,
		requestcontext.Actor(ctx), requestcontext.ActorRole(ctx), req.Reason)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, item)
}

type consentRequest struct {
	Notes string `json:"notes"`
}

// handleConsent records POPIA consent. This is the only route that can
// complete the consent item.
func (h *Handler) handleConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	candidateID, err := candidateParam(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req consentRequest
	if err := decodeOptional(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	item, err := h.checklist.RecordConsent(ctx, candidateID,
		requestcontext.Actor(ctx), requestcontext.ActorRole(ctx), req.Notes)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, item)
}
