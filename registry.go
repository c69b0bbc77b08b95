package campus

import (
	"context"
	"sync"
	"time"
)

// StoreFactory builds the SessionStore for a visitor.
type StoreFactory func(visitorID string) *SessionStore

// RegistryOption customizes Registry construction.
type RegistryOption func(*Registry)

// WithIdleTTL sets how long an unused store is kept. Zero disables eviction.
func WithIdleTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		r.ttl = ttl
	}
}

// WithRegistryClock injects a custom clock (useful for tests).
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRegistryLogger overrides the registry logger.
func WithRegistryLogger(logger Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRegistryLoggerProvider resolves the registry logger from provider.
func WithRegistryLoggerProvider(provider LoggerProvider) RegistryOption {
	return func(r *Registry) {
		_, r.logger = ResolveLogger("campus.registry", provider, r.logger)
	}
}

type registryEntry struct {
	store    *SessionStore
	lastSeen time.Time
}

// Registry keeps one SessionStore per visitor.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
	factory StoreFactory
	ttl     time.Duration
	now     func() time.Time
	logger  Logger
}

// NewRegistry returns a registry that creates stores with factory.
func NewRegistry(factory StoreFactory, opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: map[string]*registryEntry{},
		factory: factory,
		ttl:     30 * time.Minute,
		now:     time.Now,
		logger:  defaultLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	if r.factory == nil {
		r.factory = func(string) *SessionStore {
			return NewSessionStore(nil)
		}
	}

	return r
}

// Get returns the visitor's store, creating and initializing it on first
// use. Concurrent first requests share the store; the ones that arrive while
// it restores observe Loading.
func (r *Registry) Get(ctx context.Context, visitorID string) *SessionStore {
	r.mu.Lock()
	entry, ok := r.entries[visitorID]
	if ok {
		entry.lastSeen = r.now()
		r.mu.Unlock()
		return entry.store
	}

	store := r.factory(visitorID)
	r.entries[visitorID] = &registryEntry{store: store, lastSeen: r.now()}
	r.mu.Unlock()

	r.logger.Debug("session store created", "visitor", visitorID)
	store.Initialize(ctx)

	return store
}

// Peek returns the visitor's store without creating one.
func (r *Registry) Peek(visitorID string) (*SessionStore, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[visitorID]
	if !ok {
		return nil, false
	}
	return entry.store, true
}

// Evict closes and forgets the visitor's store.
func (r *Registry) Evict(visitorID string) {
	r.mu.Lock()
	entry, ok := r.entries[visitorID]
	delete(r.entries, visitorID)
	r.mu.Unlock()

	if ok {
		entry.store.Close()
	}
}

// Sweep evicts stores idle for longer than the TTL and returns how many
// were removed.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}

	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	stale := []*registryEntry{}
	for id, entry := range r.entries {
		if entry.lastSeen.Before(cutoff) {
			stale = append(stale, entry)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, entry := range stale {
		entry.store.Close()
	}

	if len(stale) > 0 {
		r.logger.Debug("evicted idle session stores", "count", len(stale))
	}

	return len(stale)
}

// Run sweeps on every tick until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Len returns the number of live stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close evicts every store.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = map[string]*registryEntry{}
	r.mu.Unlock()

	for _, entry := range entries {
		entry.store.Close()
	}
}
