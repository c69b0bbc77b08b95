package backend

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-campus"
	goerrors "github.com/goliatone/go-errors"
)

const defaultRefreshMargin = time.Minute

// Option configures a Client.
type Option func(*Client)

// WithStorage sets where the session is persisted. Defaults to memory.
func WithStorage(storage SessionStorage) Option {
	return func(c *Client) {
		if storage != nil {
			c.storage = storage
		}
	}
}

// WithVerifier checks restored access tokens before they are trusted.
func WithVerifier(verifier TokenVerifier) Option {
	return func(c *Client) {
		c.verifier = verifier
	}
}

// WithAutoRefresh toggles background refresh ahead of expiry.
func WithAutoRefresh(enabled bool) Option {
	return func(c *Client) {
		c.autoRefresh = enabled
	}
}

// WithRefreshMargin sets how long before expiry a session is refreshed.
func WithRefreshMargin(margin time.Duration) Option {
	return func(c *Client) {
		if margin > 0 {
			c.refreshMargin = margin
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger campus.Logger) Option {
	return func(c *Client) {
		_, c.logger = campus.ResolveLogger("backend.client", nil, logger)
	}
}

// WithLoggerProvider resolves the client logger from provider.
func WithLoggerProvider(provider campus.LoggerProvider) Option {
	return func(c *Client) {
		_, c.logger = campus.ResolveLogger("backend.client", provider, c.logger)
	}
}

// Client implements campus.Backend for a single visitor.
type Client struct {
	transport     Transport
	storage       SessionStorage
	verifier      TokenVerifier
	autoRefresh   bool
	refreshMargin time.Duration
	now           func() time.Time
	logger        campus.Logger

	mu        sync.Mutex
	session   *campus.Session
	restored  bool
	listeners map[int]campus.SessionChangeFunc
	nextID    int
	timer     *time.Timer
	closed    bool
}

var _ campus.Backend = (*Client)(nil)

// New creates a client over transport. A nil transport yields an
// unconfigured client where every call fails with ErrBackendUnavailable.
func New(transport Transport, opts ...Option) *Client {
	c := &Client{
		storage:       NewMemoryStorage(),
		autoRefresh:   true,
		refreshMargin: defaultRefreshMargin,
		now:           time.Now,
		listeners:     map[int]campus.SessionChangeFunc{},
	}
	_, c.logger = campus.ResolveLogger("backend.client", nil, nil)

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if transport == nil {
		c.logger.Warn("backend URL or API key missing, remote auth disabled")
		transport = unconfiguredTransport{logger: c.logger}
	}
	c.transport = transport

	return c
}

// NewFromConfig creates an HTTP backed client, or an unconfigured one when
// cfg lacks URL or key.
func NewFromConfig(cfg HTTPConfig, opts ...Option) *Client {
	if !cfg.Configured() {
		return New(nil, opts...)
	}
	return New(NewHTTPTransport(cfg), opts...)
}

// RestoreSession returns the current session, loading it from storage on the
// first call. Expired sessions are refreshed; sessions that fail
// verification or refresh are discarded.
func (c *Client) RestoreSession(ctx context.Context) (*campus.Session, error) {
	c.mu.Lock()
	if c.restored || c.session != nil {
		session := c.session.Clone()
		c.mu.Unlock()
		return session, nil
	}
	c.mu.Unlock()

	stored, err := c.storage.Load(ctx)
	if err != nil {
		return nil, MapError(err)
	}

	if stored == nil {
		c.markRestored(nil)
		return nil, nil
	}

	if stored.Expired(c.now(), c.refreshMargin) {
		if stored.RefreshToken == "" {
			c.logger.Info("stored session expired", "user_id", stored.UserID)
			c.discard(ctx)
			return nil, nil
		}
		c.markRestored(stored)
		if err := c.Refresh(ctx); err != nil {
			if campus.IsNetworkError(err) {
				return nil, err
			}
			return nil, nil
		}
		return c.currentSession(), nil
	}

	if c.verifier != nil {
		if err := c.verifier.Verify(ctx, stored.AccessToken); err != nil {
			c.logger.Warn("stored session failed verification", "user_id", stored.UserID, "error", err)
			c.discard(ctx)
			return nil, nil
		}
	}

	c.markRestored(stored)
	c.scheduleRefresh(stored)
	return stored.Clone(), nil
}

// OnSessionChange registers fn for pushed session changes. Listeners run
// synchronously on the goroutine that changed the session.
func (c *Client) OnSessionChange(fn campus.SessionChangeFunc) func() {
	if fn == nil {
		return func() {}
	}

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return campus.WrapError(campus.ErrMissingCredentials, nil, nil)
	}

	tok, err := c.transport.PasswordGrant(ctx, email, password)
	if err != nil {
		return MapError(err)
	}

	session := SessionFromToken(tok, c.now())
	if session == nil || session.UserID == "" {
		return campus.WrapError(campus.ErrAuthFailed, nil, map[string]any{
			"operation": OpPasswordGrant,
			"reason":    "token response without user",
		})
	}

	c.store(ctx, session)
	c.emit(campus.SessionEventSignedIn, session)
	c.scheduleRefresh(session)
	return nil
}

// SignUp registers the account. The service decides whether a confirmation
// email is needed, so no session is started here.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return campus.WrapError(campus.ErrMissingCredentials, nil, nil)
	}

	user, err := c.transport.SignUp(ctx, email, password, metadata)
	if err != nil {
		return MapError(err)
	}

	c.logger.Info("account registered", "user_id", user.ID, "confirmed", user.EmailConfirmedAt != nil)
	return nil
}

// SignOut revokes the session remotely, then clears it locally and pushes
// SIGNED_OUT. A token the service already considers invalid is cleared
// without error.
func (c *Client) SignOut(ctx context.Context) error {
	session := c.currentSession()
	if session != nil && session.AccessToken != "" {
		if err := c.transport.Logout(ctx, session.AccessToken); err != nil {
			var apiErr *APIError
			stale := goerrors.As(err, &apiErr) &&
				(apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden || apiErr.Status == http.StatusNotFound)
			if !stale {
				return MapError(err)
			}
			c.logger.Debug("logout with stale token", "status", apiErr.Status)
		}
	}

	c.discard(ctx)
	c.emit(campus.SessionEventSignedOut, nil)
	return nil
}

// GetProfileByID fetches and normalizes the profile row of id.
func (c *Client) GetProfileByID(ctx context.Context, id string) (*campus.Profile, error) {
	row, err := c.transport.FetchProfile(ctx, c.accessToken(), id)
	if err != nil {
		return nil, MapError(err)
	}
	if row == nil {
		return nil, nil
	}

	profile, err := NormalizeProfile(row)
	if err != nil {
		c.logger.Warn("profile row rejected", "user_id", id, "error", err)
		return nil, err
	}
	return profile, nil
}

// UpdateProfile writes name and email to the profile row and email and
// password to the account. Account changes push USER_UPDATED.
func (c *Client) UpdateProfile(ctx context.Context, id string, update campus.ProfileUpdate) error {
	session := c.currentSession()
	if session == nil || session.UserID != id {
		return campus.WrapError(campus.ErrNotAuthenticated, nil, map[string]any{"user_id": id})
	}

	if fields := update.Fields(); len(fields) > 0 {
		if err := c.transport.PatchProfile(ctx, session.AccessToken, id, fields); err != nil {
			return MapError(err)
		}
	}

	attrs := UserAttributes{}
	if update.Email != nil {
		attrs.Email = strings.TrimSpace(*update.Email)
	}
	if update.Password != nil {
		attrs.Password = *update.Password
	}
	if update.Name != nil {
		attrs.Data = map[string]any{"full_name": strings.TrimSpace(*update.Name)}
	}

	if attrs.Email == "" && attrs.Password == "" {
		return nil
	}

	user, err := c.transport.UpdateUser(ctx, session.AccessToken, attrs)
	if err != nil {
		return MapError(err)
	}

	updated := session.Clone()
	if user != nil && user.ID == updated.UserID {
		updated.Email = user.Email
		updated.User = userMap(user)
	}

	if !c.replace(ctx, session, updated) {
		return nil
	}
	c.emit(campus.SessionEventUserUpdated, updated)
	c.scheduleRefresh(updated)
	return nil
}

// Refresh exchanges the refresh token for a new session and pushes
// TOKEN_REFRESHED. A refused refresh clears the session and pushes
// SIGNED_OUT with a nil session.
func (c *Client) Refresh(ctx context.Context) error {
	session := c.currentSession()
	if session == nil || session.RefreshToken == "" {
		return campus.WrapError(campus.ErrNotAuthenticated, nil, nil)
	}

	tok, err := c.transport.RefreshGrant(ctx, session.RefreshToken)
	if err != nil {
		mapped := MapError(err)
		if campus.IsNetworkError(mapped) {
			c.logger.Warn("session refresh failed, will retry", "user_id", session.UserID, "error", mapped)
			c.retryRefresh()
			return mapped
		}

		c.logger.Info("session refresh refused, signing out", "user_id", session.UserID, "error", mapped)
		if c.replace(ctx, session, nil) {
			c.emit(campus.SessionEventSignedOut, nil)
		}
		return mapped
	}

	refreshed := SessionFromToken(tok, c.now())
	if refreshed.UserID == "" {
		refreshed.UserID = session.UserID
		refreshed.Email = session.Email
		refreshed.User = session.User
	}

	if !c.replace(ctx, session, refreshed) {
		c.logger.Debug("session changed during refresh, dropping result", "user_id", session.UserID)
		return nil
	}
	c.emit(campus.SessionEventTokenRefreshed, refreshed)
	c.scheduleRefresh(refreshed)
	return nil
}

// Close stops the refresh timer and drops every listener.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopTimerLocked()
	c.listeners = map[int]campus.SessionChangeFunc{}
}

func (c *Client) currentSession() *campus.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

func (c *Client) accessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
}

func (c *Client) markRestored(session *campus.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restored = true
	c.session = session.Clone()
}

// store makes session current and persists it.
func (c *Client) store(ctx context.Context, session *campus.Session) {
	c.mu.Lock()
	c.session = session.Clone()
	c.restored = true
	c.mu.Unlock()

	c.persist(ctx, session)
}

// replace swaps expected for next only if expected is still current.
func (c *Client) replace(ctx context.Context, expected, next *campus.Session) bool {
	c.mu.Lock()
	if c.session == nil || c.session.AccessToken != expected.AccessToken {
		c.mu.Unlock()
		return false
	}
	c.session = next.Clone()
	if next == nil {
		c.stopTimerLocked()
	}
	c.mu.Unlock()

	c.persist(ctx, next)
	return true
}

func (c *Client) discard(ctx context.Context) {
	c.mu.Lock()
	c.session = nil
	c.restored = true
	c.stopTimerLocked()
	c.mu.Unlock()

	c.persist(ctx, nil)
}

func (c *Client) persist(ctx context.Context, session *campus.Session) {
	var err error
	if session == nil {
		err = c.storage.Clear(ctx)
	} else {
		err = c.storage.Save(ctx, session)
	}
	if err != nil {
		c.logger.Warn("session storage failed", "error", err)
	}
}

func (c *Client) emit(event campus.SessionEvent, session *campus.Session) {
	c.mu.Lock()
	fns := make([]campus.SessionChangeFunc, 0, len(c.listeners))
	for id := 0; id < c.nextID; id++ {
		if fn, ok := c.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(event, session.Clone())
	}
}

func (c *Client) scheduleRefresh(session *campus.Session) {
	if !c.autoRefresh || session == nil || session.RefreshToken == "" || session.ExpiresAt.IsZero() {
		return
	}

	delay := session.ExpiresAt.Sub(c.now()) - c.refreshMargin
	if delay < 0 {
		delay = 0
	}
	c.arm(delay)
}

func (c *Client) retryRefresh() {
	if !c.autoRefresh {
		return
	}
	c.arm(30 * time.Second)
}

func (c *Client) arm(delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.stopTimerLocked()
	c.timer = time.AfterFunc(delay, func() {
		if err := c.Refresh(context.Background()); err != nil {
			c.logger.Debug("background refresh ended", "error", err)
		}
	})
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// unconfiguredTransport backs clients created without URL or key.
type unconfiguredTransport struct {
	logger campus.Logger
}

func (t unconfiguredTransport) fail(op string) error {
	t.logger.Warn("backend not configured", "operation", op)
	return campus.WrapError(campus.ErrBackendUnavailable, nil, map[string]any{"operation": op})
}

func (t unconfiguredTransport) PasswordGrant(context.Context, string, string) (*TokenResponse, error) {
	return nil, t.fail(OpPasswordGrant)
}

func (t unconfiguredTransport) RefreshGrant(context.Context, string) (*TokenResponse, error) {
	return nil, t.fail(OpRefreshGrant)
}

func (t unconfiguredTransport) SignUp(context.Context, string, string, map[string]any) (*User, error) {
	return nil, t.fail(OpSignUp)
}

func (t unconfiguredTransport) Logout(context.Context, string) error {
	return t.fail(OpLogout)
}

func (t unconfiguredTransport) UpdateUser(context.Context, string, UserAttributes) (*User, error) {
	return nil, t.fail(OpUpdateUser)
}

func (t unconfiguredTransport) FetchProfile(context.Context, string, string) (map[string]any, error) {
	return nil, t.fail(OpFetchProfile)
}

func (t unconfiguredTransport) PatchProfile(context.Context, string, string, map[string]any) error {
	return t.fail(OpPatchProfile)
}
