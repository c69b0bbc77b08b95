package campus

import (
	"context"
	"strings"
	"sync"
	"time"
)

// StateListener is called with every applied AuthState.
type StateListener func(state AuthState)

// StoreOption customizes SessionStore construction.
type StoreOption func(*SessionStore)

// WithNotifier sets where user facing notifications go.
func WithNotifier(n Notifier) StoreOption {
	return func(s *SessionStore) {
		s.notifier = normalizeNotifier(n)
	}
}

// WithActivitySink sets the ActivitySink used to publish audit events.
func WithActivitySink(sink ActivitySink) StoreOption {
	return func(s *SessionStore) {
		s.activity = normalizeActivitySink(sink)
	}
}

// WithFixtures replaces the demo fixtures. An empty list disables them.
func WithFixtures(fixtures []Fixture) StoreOption {
	return func(s *SessionStore) {
		s.fixtures = fixtures
		s.customProviders = nil
	}
}

// WithIdentityProviders replaces the provider chain entirely.
func WithIdentityProviders(providers ...IdentityProvider) StoreOption {
	return func(s *SessionStore) {
		s.customProviders = providers
	}
}

// WithStoreClock injects a custom clock (useful for tests).
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *SessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStoreLogger overrides the store logger.
func WithStoreLogger(logger Logger) StoreOption {
	return func(s *SessionStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStoreLoggerProvider resolves the store logger from provider.
func WithStoreLoggerProvider(provider LoggerProvider) StoreOption {
	return func(s *SessionStore) {
		_, s.logger = ResolveLogger("campus.store", provider, s.logger)
	}
}

// SessionStore is the single source of truth for a visitor's AuthState.
type SessionStore struct {
	mu          sync.RWMutex
	state       AuthState
	generation  uint64
	initialized bool
	unsubscribe func()

	listenersMu  sync.Mutex
	listeners    map[int]StateListener
	nextListener int

	backend         Backend
	fixtures        []Fixture
	customProviders []IdentityProvider
	providers       []IdentityProvider
	transitions     *authStateMachine
	notifier        Notifier
	activity        ActivitySink
	logger          Logger
	now             func() time.Time
}

// NewSessionStore builds a store in the Loading state. A nil backend yields
// a store where only fixture identities can sign in.
func NewSessionStore(backend Backend, opts ...StoreOption) *SessionStore {
	if backend == nil {
		backend = unavailableBackend{}
	}

	s := &SessionStore{
		state:       Loading(),
		backend:     backend,
		fixtures:    DefaultFixtures(),
		listeners:   map[int]StateListener{},
		transitions: newAuthStateMachine(),
		notifier:    NewNotificationQueue(0),
		activity:    noopActivitySink{},
		logger:      defaultLogger(),
		now:         time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if len(s.customProviders) > 0 {
		s.providers = s.customProviders
	} else {
		if len(s.fixtures) > 0 {
			s.providers = append(s.providers, NewFixtureProvider(s.fixtures).WithClock(s.now))
		}
		s.providers = append(s.providers, NewRemoteProvider(s.backend))
	}

	return s
}

// Initialize restores the backend session and registers the push listener.
// It never leaves the store in Loading: restore failures resolve to
// Anonymous. Calling it again is a no-op.
func (s *SessionStore) Initialize(ctx context.Context) {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return
	}
	s.initialized = true
	s.mu.Unlock()

	unsubscribe := s.backend.OnSessionChange(func(event SessionEvent, session *Session) {
		s.handleSessionEvent(context.WithoutCancel(ctx), event, session)
	})

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	session, err := s.backend.RestoreSession(ctx)
	if err != nil {
		s.logger.Warn("restore session failed, continuing anonymous", "error", err)
		session = nil
	}

	s.ApplySession(ctx, session)

	if session != nil {
		s.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventSessionRestored,
			UserID:    session.UserID,
			Email:     session.Email,
		})
	}
}

// Close drops the backend subscription and all listeners. Backends with a
// Close method are owned by the store and closed too.
func (s *SessionStore) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}

	if closer, ok := s.backend.(interface{ Close() }); ok {
		closer.Close()
	}

	s.listenersMu.Lock()
	s.listeners = map[int]StateListener{}
	s.listenersMu.Unlock()
}

// State returns a copy of the current AuthState.
func (s *SessionStore) State() AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Session returns a copy of the current session or nil.
func (s *SessionStore) Session() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Session.Clone()
}

// Profile returns a copy of the current profile or nil.
func (s *SessionStore) Profile() *Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Profile.Clone()
}

// Subscribe registers fn for every applied state and returns its
// unsubscribe handle.
func (s *SessionStore) Subscribe(fn StateListener) func() {
	if fn == nil {
		return func() {}
	}

	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

// Notify forwards n to the configured notifier.
func (s *SessionStore) Notify(ctx context.Context, n Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	s.notifier.Notify(ctx, n)
}

// Notifications drains queued notifications when the notifier buffers them.
func (s *SessionStore) Notifications() []Notification {
	if q, ok := s.notifier.(interface{ Drain() []Notification }); ok {
		return q.Drain()
	}
	return nil
}

// ApplySession is the single transition function for backend sessions.
// A nil session resolves to Anonymous; otherwise the matching profile is
// fetched and Session and Profile are committed together. Concurrent calls
// converge on the most recently started one.
func (s *SessionStore) ApplySession(ctx context.Context, session *Session) {
	gen := s.beginApply()

	if session == nil || session.UserID == "" {
		s.commit(gen, Anonymous())
		return
	}

	session = session.Clone()
	profile := s.resolveProfile(ctx, session.UserID)
	s.commit(gen, Authenticated(session, profile))
}

// SignIn authenticates with email and password. Fixture identities are
// resolved locally; everything else goes to the backend, whose push event
// updates the state. Navigation is left to the caller.
func (s *SessionStore) SignIn(ctx context.Context, email, password string) error {
	// fixtures match the raw input; the remote provider trims on its own
	address := strings.TrimSpace(email)
	if address == "" || password == "" {
		err := WrapError(ErrMissingCredentials, nil, nil)
		s.Notify(ctx, noticeSignInFailed(err))
		return err
	}

	for _, provider := range s.providers {
		result, err := provider.SignIn(ctx, email, password)
		if err != nil {
			s.logger.Info("sign in failed", "provider", provider.Name(), "error", err)
			s.Notify(ctx, noticeSignInFailed(err))
			s.recordActivity(ctx, ActivityEvent{
				EventType: ActivityEventLoginFailure,
				Email:     address,
				Provider:  provider.Name(),
				Metadata:  map[string]any{"error": ErrorMessage(err)},
			})
			return err
		}

		if !result.Handled {
			continue
		}

		if result.Session != nil {
			s.applyResolved(result.Session, result.Profile)
		} else if !s.State().IsAuthenticated() {
			s.pullSession(ctx)
		}

		state := s.State()
		s.Notify(ctx, noticeSignedIn(state.Profile))
		s.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventLoginSuccess,
			UserID:    state.UserID(),
			Email:     address,
			Provider:  provider.Name(),
		})
		return nil
	}

	err := WrapError(ErrBackendUnavailable, nil, map[string]any{"reason": "no identity provider handled sign in"})
	s.Notify(ctx, noticeSignInFailed(err))
	return err
}

// SignUp registers a new account. No session is established; the user must
// confirm the email first.
func (s *SessionStore) SignUp(ctx context.Context, email, password string, metadata map[string]any) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		err := WrapError(ErrMissingCredentials, nil, nil)
		s.Notify(ctx, noticeSignUpFailed(err))
		return err
	}

	if err := s.backend.SignUp(ctx, email, password, metadata); err != nil {
		s.logger.Info("sign up failed", "email", email, "error", err)
		s.Notify(ctx, noticeSignUpFailed(err))
		s.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventSignUpFailure,
			Email:     email,
			Metadata:  map[string]any{"error": ErrorMessage(err)},
		})
		return err
	}

	s.Notify(ctx, noticeSignedUp())
	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventSignUp,
		Email:     email,
	})
	return nil
}

// SignOut ends the session. Fixture users are cleared locally without a
// backend call.
func (s *SessionStore) SignOut(ctx context.Context) error {
	state := s.State()
	userID := state.UserID()

	provider := s.owner(userID)
	if userID != "" && provider != nil {
		if err := provider.SignOut(ctx, userID); err != nil {
			s.logger.Info("sign out failed", "provider", provider.Name(), "error", err)
			s.Notify(ctx, noticeSignOutFailed(err))
			return err
		}
	}

	if !state.IsLoading() {
		s.commit(s.beginApply(), Anonymous())
	}

	if userID == "" {
		return nil
	}

	s.Notify(ctx, noticeSignedOut())
	event := ActivityEvent{EventType: ActivityEventLogout, UserID: userID}
	if provider != nil {
		event.Provider = provider.Name()
	}
	s.recordActivity(ctx, event)
	return nil
}

// UpdateProfile applies a partial profile update for the current user.
// Without a user it returns ErrNotAuthenticated and emits nothing.
func (s *SessionStore) UpdateProfile(ctx context.Context, update ProfileUpdate) error {
	state := s.State()
	if !state.IsAuthenticated() {
		return WrapError(ErrNotAuthenticated, nil, nil)
	}

	userID := state.UserID()

	if err := update.Validate(); err != nil {
		richErr := WrapError(ErrInvalidProfile, err, map[string]any{"user_id": userID})
		richErr.Message = err.Error()
		s.Notify(ctx, noticeProfileUpdateFailed(richErr))
		return richErr
	}

	provider := s.owner(userID)
	if provider == nil {
		err := WrapError(ErrNotAuthenticated, nil, map[string]any{"user_id": userID})
		s.Notify(ctx, noticeProfileUpdateFailed(err))
		return err
	}

	profile, err := provider.UpdateProfile(ctx, userID, state.Profile, update)
	if err != nil {
		s.logger.Info("profile update failed", "user_id", userID, "error", err)
		s.Notify(ctx, noticeProfileUpdateFailed(err))
		return err
	}

	s.commitProfile(userID, profile)

	s.Notify(ctx, noticeProfileUpdated())
	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventProfileUpdated,
		UserID:    userID,
		Provider:  provider.Name(),
		Metadata:  map[string]any{"fields": updatedFields(update)},
	})
	return nil
}

func (s *SessionStore) handleSessionEvent(ctx context.Context, event SessionEvent, session *Session) {
	s.logger.Debug("session event", "event", string(event), "has_session", session != nil)

	previous := s.State()
	s.ApplySession(ctx, session)

	if session == nil && previous.IsAuthenticated() {
		s.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventSessionRevoked,
			UserID:    previous.UserID(),
			Metadata:  map[string]any{"event": string(event)},
		})
	}
}

// pullSession covers backends that do not push synchronously on sign in.
func (s *SessionStore) pullSession(ctx context.Context) {
	session, err := s.backend.RestoreSession(ctx)
	if err != nil {
		s.logger.Warn("restore after sign in failed", "error", err)
		return
	}
	if session != nil {
		s.ApplySession(ctx, session)
	}
}

func (s *SessionStore) applyResolved(session *Session, profile *Profile) {
	s.commit(s.beginApply(), Authenticated(session.Clone(), profile.Clone()))
}

func (s *SessionStore) resolveProfile(ctx context.Context, userID string) *Profile {
	provider := s.owner(userID)
	if provider == nil {
		return nil
	}

	profile, err := provider.Profile(ctx, userID)
	if err != nil {
		s.logger.Warn("profile fetch failed", "user_id", userID, "provider", provider.Name(), "error", err)
		return nil
	}
	return profile
}

func (s *SessionStore) owner(userID string) IdentityProvider {
	for _, provider := range s.providers {
		if provider.Owns(userID) {
			return provider
		}
	}
	return nil
}

func (s *SessionStore) beginApply() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation
}

// commit installs next if no newer apply started since gen was issued.
func (s *SessionStore) commit(gen uint64, next AuthState) bool {
	next = s.sanitize(next)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("discarding stale session apply", "generation", gen, "user_id", next.UserID())
		return false
	}
	if err := s.transitions.validate(s.state, next); err != nil {
		s.mu.Unlock()
		s.logger.Error("rejected auth state transition", "error", err)
		return false
	}
	s.state = next
	snapshot := next.Clone()
	s.mu.Unlock()

	s.publish(snapshot)
	return true
}

// commitProfile swaps the profile if the session it was fetched for is
// still current.
func (s *SessionStore) commitProfile(userID string, profile *Profile) bool {
	if profile != nil && profile.ID != userID {
		s.logger.Warn("profile id does not match session, dropping", "user_id", userID, "profile_id", profile.ID)
		profile = nil
	}

	s.mu.Lock()
	if !s.state.IsAuthenticated() || s.state.UserID() != userID {
		s.mu.Unlock()
		s.logger.Debug("discarding profile for stale session", "user_id", userID)
		return false
	}
	s.state = Authenticated(s.state.Session, profile.Clone())
	snapshot := s.state.Clone()
	s.mu.Unlock()

	s.publish(snapshot)
	return true
}

func (s *SessionStore) sanitize(next AuthState) AuthState {
	if next.IsAuthenticated() && next.Profile != nil && next.Session != nil && next.Profile.ID != next.Session.UserID {
		s.logger.Warn("profile id does not match session, dropping", "user_id", next.Session.UserID, "profile_id", next.Profile.ID)
		next.Profile = nil
	}
	return next
}

func (s *SessionStore) publish(state AuthState) {
	s.listenersMu.Lock()
	listeners := make([]StateListener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(state.Clone())
	}
}

func (s *SessionStore) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	sink := normalizeActivitySink(s.activity)
	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("store activity sink error", "error", err)
	}
}

func updatedFields(update ProfileUpdate) []string {
	fields := []string{}
	if update.Name != nil {
		fields = append(fields, "name")
	}
	if update.Email != nil {
		fields = append(fields, "email")
	}
	if update.Password != nil {
		fields = append(fields, "password")
	}
	return fields
}

type unavailableBackend struct{}

func (unavailableBackend) RestoreSession(context.Context) (*Session, error) { return nil, nil }

func (unavailableBackend) OnSessionChange(SessionChangeFunc) func() { return func() {} }

func (unavailableBackend) SignInWithPassword(context.Context, string, string) error {
	return WrapError(ErrBackendUnavailable, nil, nil)
}

func (unavailableBackend) SignUp(context.Context, string, string, map[string]any) error {
	return WrapError(ErrBackendUnavailable, nil, nil)
}

func (unavailableBackend) SignOut(context.Context) error {
	return WrapError(ErrBackendUnavailable, nil, nil)
}

func (unavailableBackend) GetProfileByID(context.Context, string) (*Profile, error) {
	return nil, WrapError(ErrBackendUnavailable, nil, nil)
}

func (unavailableBackend) UpdateProfile(context.Context, string, ProfileUpdate) error {
	return WrapError(ErrBackendUnavailable, nil, nil)
}
