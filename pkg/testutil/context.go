package testutil

import (
	"net/http"

	"sebenza/pkg/requestcontext"
)

// WithActor adds an actor identity to the request context, simulating what
// the auth middleware does for authenticated requests.
func WithActor(req *http.Request, actor, role string) *http.Request {
	ctx := req.Context()
	if actor != "" {
		ctx = requestcontext.WithActor(ctx, actor)
	}
	if role != "" {
		ctx = requestcontext.WithActorRole(ctx, role)
	}
	return req.WithContext(ctx)
}
