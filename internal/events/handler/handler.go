// Package handler accepts domain events from collaborator systems.
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

// Router defines the event processing operation.
type Router interface {
	ProcessEvent(ctx context.Context, trigger session.Trigger, sessionID id.SessionID, candidateID id.CandidateID, actor, actorRole string, data json.RawMessage) (session.Session, error)
}

// Handler handles the event intake endpoint.
type Handler struct {
	router Router
	logger *slog.Logger
}

func New(router Router, logger *slog.Logger) *Handler {
	return &Handler{router: router, logger: logger}
}

// Register registers the event route.
func (h *Handler) Register(r chi.Router) {
	r.Post("/events", h.handleEvent)
}

type eventRequest struct {
	Event       string          `json:"event"`
	SessionID   string          `json:"session_id"`
	CandidateID string          `json:"candidate_id"`
	Data        json.RawMessage `json:"data"`
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	sessionID, err := id.ParseSessionID(req.SessionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	sess, err := h.router.ProcessEvent(ctx, session.Trigger(req.Event), sessionID,
		id.CandidateID(req.CandidateID),
		requestcontext.Actor(ctx), requestcontext.ActorRole(ctx), req.Data)
	if err != nil {
		h.logger.WarnContext(ctx, "event rejected",
			"event", req.Event,
			"session_id", req.SessionID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, sess)
}
