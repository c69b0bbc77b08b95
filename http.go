package campus

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// HTTPConfig configures the portal middleware.
type HTTPConfig struct {
	// VisitorCookie holds the anonymous visitor id mapping a browser to its
	// SessionStore.
	VisitorCookie string
	// ReturnCookie remembers the page an anonymous visitor asked for.
	ReturnCookie   string
	CookieDuration time.Duration
	SecureCookies  bool
	LoadingView    string
	// LoadingRefresh is the number of seconds the loading view waits before
	// reloading the page.
	LoadingRefresh int
	Policy         RoutePolicy
}

func (c HTTPConfig) withDefaults() HTTPConfig {
	if c.VisitorCookie == "" {
		c.VisitorCookie = "campus_visitor"
	}
	if c.ReturnCookie == "" {
		c.ReturnCookie = "campus_return_to"
	}
	if c.CookieDuration <= 0 {
		c.CookieDuration = 24 * time.Hour * 30
	}
	if c.LoadingView == "" {
		c.LoadingView = "loading"
	}
	if c.LoadingRefresh <= 0 {
		c.LoadingRefresh = 1
	}
	c.Policy = c.Policy.withDefaults()
	return c
}

// PortalMiddleware binds visitors to their SessionStore and enforces the
// route policy on every request.
type PortalMiddleware struct {
	registry     *Registry
	cfg          HTTPConfig
	activity     ActivitySink
	Logger       Logger
	ErrorHandler router.ErrorHandler
}

// NewPortalMiddleware creates the middleware over a visitor registry.
func NewPortalMiddleware(registry *Registry, cfg HTTPConfig) *PortalMiddleware {
	m := &PortalMiddleware{
		registry: registry,
		cfg:      cfg.withDefaults(),
		activity: normalizeActivitySink(nil),
	}
	_, m.Logger = ResolveLogger("campus.http", nil, nil)
	m.ErrorHandler = m.defaultErrHandler
	return m
}

// WithLogger sets the logger used by the middleware.
func (m *PortalMiddleware) WithLogger(logger Logger) *PortalMiddleware {
	_, m.Logger = ResolveLogger("campus.http", nil, logger)
	return m
}

// WithLoggerProvider resolves the middleware logger from provider.
func (m *PortalMiddleware) WithLoggerProvider(provider LoggerProvider) *PortalMiddleware {
	_, m.Logger = ResolveLogger("campus.http", provider, m.Logger)
	return m
}

// WithActivitySink records access denials to sink.
func (m *PortalMiddleware) WithActivitySink(sink ActivitySink) *PortalMiddleware {
	m.activity = normalizeActivitySink(sink)
	return m
}

// Policy returns the route policy in effect.
func (m *PortalMiddleware) Policy() RoutePolicy {
	return m.cfg.Policy
}

// Config returns the effective configuration.
func (m *PortalMiddleware) Config() HTTPConfig {
	return m.cfg
}

// Visitor attaches the visitor's SessionStore to the request locals, minting
// a visitor cookie for first time browsers.
func (m *PortalMiddleware) Visitor() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if _, ok := StoreFromRouter(ctx); !ok {
				m.attach(ctx)
			}
			return next(ctx)
		}
	}
}

func (m *PortalMiddleware) attach(ctx router.Context) *SessionStore {
	visitorID := ctx.Cookies(m.cfg.VisitorCookie)
	if _, err := uuid.Parse(visitorID); err != nil {
		visitorID = uuid.NewString()
		m.Logger.Debug("new visitor", "visitor", visitorID)
	}
	m.setCookie(ctx, m.cfg.VisitorCookie, visitorID, m.cfg.CookieDuration)

	store := m.registry.Get(ctx.Context(), visitorID)
	ctx.Locals(StoreLocalsKey, store)
	ctx.SetContext(WithStore(ctx.Context(), store))
	return store
}

// Guard applies the portal redirect rules to the request path. Requests that
// did not pass through Visitor get their store attached here.
func (m *PortalMiddleware) Guard() router.MiddlewareFunc {
	return m.guard(m.cfg.Policy.Evaluate)
}

// AdminArea applies the admin area rules. Mount it on the admin group.
func (m *PortalMiddleware) AdminArea() router.MiddlewareFunc {
	return m.guard(m.cfg.Policy.EvaluateArea)
}

func (m *PortalMiddleware) guard(evaluate func(AuthState, string) Decision) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			store, ok := StoreFromRouter(ctx)
			if !ok && m.registry != nil {
				store, ok = m.attach(ctx), true
			}
			if !ok {
				return m.ErrorHandler(ctx, errors.New("session store not attached to request", errors.CategoryInternal).
					WithTextCode("STORE_MISSING").
					WithCode(errors.CodeInternal))
			}

			state := store.State()
			path := ctx.Path()
			decision := evaluate(state, path)

			switch decision.Action {
			case ActionShowSpinner:
				return ctx.Status(http.StatusOK).Render(m.cfg.LoadingView, router.ViewContext{
					"path":            path,
					"refresh_seconds": m.cfg.LoadingRefresh,
				})
			case ActionRedirect:
				if decision.Notice != nil {
					store.Notify(ctx.Context(), *decision.Notice)
					m.recordDenied(ctx, state, path)
				}
				if state.IsAnonymous() && decision.Location == m.cfg.Policy.LoginPath {
					m.SetReturnPath(ctx, path)
				}
				return ctx.Redirect(decision.Location, redirectStatus(ctx))
			default:
				return next(ctx)
			}
		}
	}
}

// SetReturnPath remembers path so the visitor lands there after signing in.
func (m *PortalMiddleware) SetReturnPath(ctx router.Context, path string) {
	m.Logger.Debug("setting return path", "path", path)
	m.setCookie(ctx, m.cfg.ReturnCookie, path, 5*time.Minute)
}

// ReturnPath consumes the remembered path, falling back to def. Only local
// paths outside the login page are honored.
func (m *PortalMiddleware) ReturnPath(ctx router.Context, def string) string {
	r := ctx.Cookies(m.cfg.ReturnCookie)
	if r == "" {
		return def
	}
	m.setCookie(ctx, m.cfg.ReturnCookie, "", -time.Hour*(24*365))

	if !isLocalPath(r) {
		return def
	}
	if NormalizePath(r) == m.cfg.Policy.LoginPath {
		return def
	}
	return r
}

// isLocalPath accepts same origin absolute paths only. Browsers treat a
// backslash like a slash, so "/\host" would leave the site.
func isLocalPath(p string) bool {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
		return false
	}
	if strings.ContainsAny(p, "\\\r\n\t") {
		return false
	}
	u, err := url.Parse(p)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}

func (m *PortalMiddleware) recordDenied(ctx router.Context, state AuthState, path string) {
	event := ActivityEvent{
		EventType:  ActivityEventAccessDenied,
		UserID:     state.UserID(),
		Path:       path,
		OccurredAt: time.Now(),
	}
	if state.Profile != nil {
		event.Email = state.Profile.Email
		event.Metadata = map[string]any{"role": string(state.Profile.Role)}
	}
	if err := m.activity.Record(ctx.Context(), event); err != nil {
		m.Logger.Warn("failed to record access denial", "error", err)
	}
}

func (m *PortalMiddleware) setCookie(ctx router.Context, name, val string, duration time.Duration) {
	ctx.Cookie(&router.Cookie{
		Name:     name,
		Value:    val,
		Path:     "/",
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   m.cfg.SecureCookies,
		SameSite: "Lax",
	})
}

func (m *PortalMiddleware) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	m.Logger.Error(
		"portal middleware error",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.Path(),
	)

	return c.Status(richErr.Code).Render("errors/500", router.ViewContext{
		"message": richErr.Message,
	})
}

func redirectStatus(ctx router.Context) int {
	if ctx.Method() == string(router.GET) {
		return http.StatusFound
	}
	return http.StatusSeeOther
}
