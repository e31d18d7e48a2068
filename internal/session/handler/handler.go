// Package handler exposes session state machine operations over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"sebenza/internal/session"
	"sebenza/internal/transport/http/shared"
	id "sebenza/pkg/domain"
	dErrors "sebenza/pkg/domain-errors"
	"sebenza/pkg/requestcontext"
)

// Service defines the session operations the handler delegates to.
type Service interface {
	Get(ctx context.Context, sessionID id.SessionID) (session.Session, error)
	Create(ctx context.Context, sessionID id.SessionID, candidateID id.CandidateID, actor, actorRole string) (session.Session, error)
	RequestTransition(ctx context.Context, sessionID id.SessionID, targetState session.State, actor, actorRole, reasonCode, reasonDescription string) (session.Session, error)
	Lock(ctx context.Context, sessionID id.SessionID, reason, actor, actorRole string) (session.Session, error)
}

// Limiter defines the response counter operation.
type Limiter interface {
	IncrementAndCheck(ctx context.Context, sessionID id.SessionID, actor, actorRole string) (int, error)
}

// Handler handles session endpoints.
type Handler struct {
	sessions Service
	limiter  Limiter
	logger   *slog.Logger
}

func New(sessions Service, limiter Limiter, logger *slog.Logger) *Handler {
	return &Handler{sessions: sessions, limiter: limiter, logger: logger}
}

// Register registers the session routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/sessions", h.handleCreate)
	r.Get("/sessions/{sessionID}", h.handleGet)
	r.Post("/sessions/{sessionID}/transitions", h.handleTransition)
	r.Post("/sessions/{sessionID}/lock", h.handleLock)
	r.Post("/sessions/{sessionID}/responses", h.handleResponse)
}

type createRequest struct {
	SessionID   string `json:"session_id"`
	CandidateID string `json:"candidate_id"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	candidateID, err := id.ParseCandidateID(req.CandidateID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	sessionID := id.SessionID(req.SessionID)
	if sessionID == "" {
		sessionID = id.NewSessionID()
	}

	sess, err := h.sessions.Create(ctx, sessionID, candidateID,
		requestcontext.Actor(ctx), requestcontext.ActorRole(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "session create failed",
			"candidate_id", candidateID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	sess, err := h.sessions.Get(ctx, sessionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, sess)
}

type transitionRequest struct {
	TargetState       string `json:"target_state"`
	ReasonCode        string `json:"reason_code"`
	ReasonDescription string `json:"reason_description"`
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	targetState, err := session.ParseState(req.TargetState)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	sess, err := h.sessions.RequestTransition(ctx, sessionID, targetState,
		requestcontext.Actor(ctx), requestcontext.ActorRole(ctx),
		req.ReasonCode, req.ReasonDescription)
	if err != nil {
		h.logger.WarnContext(ctx, "transition rejected",
			"session_id", sessionID,
			"target_state", targetState,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, sess)
}

type lockRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleLock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Reason == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "lock reason cannot be empty"))
		return
	}

	sess, err := h.sessions.Lock(ctx, sessionID, req.Reason,
		requestcontext.Actor(ctx), requestcontext.ActorRole(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, sess)
}

type responseResult struct {
	ResponseCount int `json:"response_count"`
	Remaining     int `json:"remaining"`
}

func (h *Handler) handleResponse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	count, err := h.limiter.IncrementAndCheck(ctx, sessionID,
		requestcontext.Actor(ctx), requestcontext.ActorRole(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, responseResult{
		ResponseCount: count,
		Remaining:     session.MaxResponseCount - count,
	})
}
