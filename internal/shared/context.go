package shared

import "context"

type actorContextKey struct{}

type actor struct {
	id   string
	name string
}

// ContextWithActor stores the requesting actor in context.
func ContextWithActor(ctx context.Context, id, name string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor{id: id, name: name})
}

// ActorFromContext extracts the requesting actor from context.
func ActorFromContext(ctx context.Context) (id, name string) {
	a, _ := ctx.Value(actorContextKey{}).(actor)
	return a.id, a.name
}
