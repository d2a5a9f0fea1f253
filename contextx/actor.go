package contextx

import "context"

// Actor is the signed-in user on whose behalf a request is made. The
// session package stores it in contexts handed to fetches and mutations so
// that transport middleware can log and trace it.
type Actor struct {
	UserID int64
	Email  string
	Role   string
}

// WithActor returns a derived context that carries the given Actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext extracts the Actor stored in ctx.
// The boolean return value indicates whether an Actor was present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}
