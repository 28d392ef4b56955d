package rbac

import "context"

// Actor is the request-scoped identity and effective role asserted by the
// upstream gateway. It is threaded explicitly through the workflow, never
// held as ambient state.
type Actor struct {
	Name string
	Role string
}

type contextKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(contextKey{}).(Actor)
	return a, ok && a.Name != ""
}
