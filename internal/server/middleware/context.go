// Package middleware holds the gin middleware shared by every route: actor resolution from bearer
// credentials, request logging, panic recovery, and Prometheus request metrics.
package middleware

import (
	"context"

	"passwordless-auth/backend/internal/authz"
)

type contextKey struct{ name string }

var actorKey = contextKey{"actor"}

// WithActor returns a context carrying actor. Services read it back with ActorFromContext.
func WithActor(ctx context.Context, actor authz.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the actor set by WithActor, or the Guest actor when none is set.
func ActorFromContext(ctx context.Context) authz.Actor {
	if a, ok := ctx.Value(actorKey).(authz.Actor); ok {
		return a
	}
	return authz.Guest()
}
