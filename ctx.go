package campus

import (
	"context"

	"github.com/goliatone/go-router"
)

var storeCtxKey = &contextKey{"session_store"}

type contextKey struct {
	name string
}

// StoreLocalsKey is the router locals key holding the visitor's store.
const StoreLocalsKey = "campus.store"

// WithStore sets the SessionStore in the given context
func WithStore(ctx context.Context, store *SessionStore) context.Context {
	return context.WithValue(ctx, storeCtxKey, store)
}

// StoreFromContext finds the SessionStore in the context.
func StoreFromContext(ctx context.Context) (*SessionStore, bool) {
	store, ok := ctx.Value(storeCtxKey).(*SessionStore)
	return store, ok && store != nil
}

// StoreFromRouter extracts the SessionStore from the router context locals,
// falling back to the request context.
func StoreFromRouter(ctx router.Context) (*SessionStore, bool) {
	if store, ok := ctx.Locals(StoreLocalsKey).(*SessionStore); ok && store != nil {
		return store, true
	}
	return StoreFromContext(ctx.Context())
}

// StateFromRouter returns the visitor's current AuthState, or Loading when no
// store is attached.
func StateFromRouter(ctx router.Context) AuthState {
	store, ok := StoreFromRouter(ctx)
	if !ok {
		return Loading()
	}
	return store.State()
}
