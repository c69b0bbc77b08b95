package campus_test

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-campus"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/mock"
)

type MockBackend struct {
	mock.Mock

	mu       sync.Mutex
	listener campus.SessionChangeFunc
}

func (m *MockBackend) RestoreSession(ctx context.Context) (*campus.Session, error) {
	args := m.Called(ctx)
	session, _ := args.Get(0).(*campus.Session)
	return session, args.Error(1)
}

func (m *MockBackend) OnSessionChange(fn campus.SessionChangeFunc) func() {
	m.mu.Lock()
	m.listener = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.listener = nil
		m.mu.Unlock()
	}
}

// Emit delivers a session event the way a backend push would.
func (m *MockBackend) Emit(event campus.SessionEvent, session *campus.Session) {
	m.mu.Lock()
	fn := m.listener
	m.mu.Unlock()
	if fn != nil {
		fn(event, session)
	}
}

func (m *MockBackend) Subscribed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listener != nil
}

func (m *MockBackend) SignInWithPassword(ctx context.Context, email, password string) error {
	args := m.Called(ctx, email, password)
	return args.Error(0)
}

func (m *MockBackend) SignUp(ctx context.Context, email, password string, metadata map[string]any) error {
	args := m.Called(ctx, email, password, metadata)
	return args.Error(0)
}

func (m *MockBackend) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBackend) GetProfileByID(ctx context.Context, id string) (*campus.Profile, error) {
	args := m.Called(ctx, id)
	profile, _ := args.Get(0).(*campus.Profile)
	return profile, args.Error(1)
}

func (m *MockBackend) UpdateProfile(ctx context.Context, id string, update campus.ProfileUpdate) error {
	args := m.Called(ctx, id, update)
	return args.Error(0)
}

type recordingSink struct {
	mu     sync.Mutex
	events []campus.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, event campus.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) Types() []campus.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]campus.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

func remoteSession(userID, email string) *campus.Session {
	return &campus.Session{
		UserID:       userID,
		Email:        email,
		AccessToken:  "access-" + userID,
		RefreshToken: "refresh-" + userID,
	}
}

func studentProfile(userID, email, name string) *campus.Profile {
	return &campus.Profile{ID: userID, Email: email, Name: name, Role: campus.RoleStudent}
}

func titles(notices []campus.Notification) []string {
	out := make([]string, 0, len(notices))
	for _, n := range notices {
		out = append(out, n.Title)
	}
	return out
}

// MockContext is a testify backed router.Context. Cookies, locals, params
// and queries read from plain maps so tests only stub the calls they assert.
type MockContext struct {
	mock.Mock
	NextCalled bool

	HeadersM   map[string]string
	CookiesM   map[string]string
	ParamsM    map[string]string
	QueriesM   map[string]string
	LocalsMock map[any]any
}

var _ router.Context = (*MockContext)(nil)

func NewMockContext() *MockContext {
	return &MockContext{
		HeadersM:   map[string]string{},
		CookiesM:   map[string]string{},
		ParamsM:    map[string]string{},
		QueriesM:   map[string]string{},
		LocalsMock: map[any]any{},
	}
}

func (m *MockContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *MockContext) Context() context.Context {
	args := m.Called()
	c, ok := args.Get(0).(context.Context)
	if !ok {
		return context.Background()
	}
	return c
}

func (m *MockContext) SetContext(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockContext) Method() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Path() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Param(name string, defaultValue ...string) string {
	if v, ok := m.ParamsM[name]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (m *MockContext) ParamsInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Query(name, defaultValue string) string {
	if v, ok := m.QueriesM[name]; ok {
		return v
	}
	return defaultValue
}

func (m *MockContext) QueryInt(name string, defaultValue int) int {
	args := m.Called(name, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Queries() map[string]string {
	return m.QueriesM
}

func (m *MockContext) Body() []byte {
	args := m.Called()
	b, _ := args.Get(0).([]byte)
	return b
}

func (m *MockContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.Called(key, value[0])
		m.LocalsMock[key] = value[0]
		return nil
	}
	return m.LocalsMock[key]
}

func (m *MockContext) Render(name string, bind any, layouts ...string) error {
	if len(layouts) > 0 {
		args := m.Called(name, bind, layouts[0])
		return args.Error(0)
	}
	args := m.Called(name, bind)
	return args.Error(0)
}

func (m *MockContext) Cookie(cookie *router.Cookie) {
	m.Called(cookie)
	if !cookie.Expires.IsZero() && cookie.Expires.Before(time.Now()) || cookie.MaxAge < 0 {
		delete(m.CookiesM, cookie.Name)
		return
	}
	m.CookiesM[cookie.Name] = cookie.Value
}

func (m *MockContext) Cookies(key string, defaultValue ...string) string {
	if v, ok := m.CookiesM[key]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (m *MockContext) CookieParser(out any) error {
	args := m.Called(out)
	return args.Error(0)
}

func (m *MockContext) Redirect(location string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(location, status)
		return args.Error(0)
	}
	args := m.Called(location)
	return args.Error(0)
}

func (m *MockContext) RedirectToRoute(name string, data router.ViewContext, status ...int) error {
	args := m.Called(name, data, status)
	return args.Error(0)
}

func (m *MockContext) RedirectBack(fallback string, status ...int) error {
	args := m.Called(fallback, status)
	return args.Error(0)
}

func (m *MockContext) Header(key string) string {
	return m.HeadersM[key]
}

func (m *MockContext) Referer() string {
	return m.HeadersM["Referer"]
}

func (m *MockContext) OriginalURL() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Status(code int) router.Context {
	m.Called(code)
	return m
}

func (m *MockContext) Send(body []byte) error {
	args := m.Called(body)
	return args.Error(0)
}

func (m *MockContext) SendString(body string) error {
	args := m.Called(body)
	return args.Error(0)
}

func (m *MockContext) JSON(code int, v any) error {
	args := m.Called(code, v)
	return args.Error(0)
}

func (m *MockContext) NoContent(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) SetHeader(key, value string) router.Context {
	m.HeadersM[key] = value
	return m
}

func (m *MockContext) Set(key string, value any) {
	m.LocalsMock[key] = value
}

func (m *MockContext) Get(key string, def any) any {
	if v, ok := m.LocalsMock[key]; ok {
		return v
	}
	return def
}

func (m *MockContext) GetString(key string, def string) string {
	if v, ok := m.LocalsMock[key].(string); ok {
		return v
	}
	return def
}

func (m *MockContext) GetInt(key string, def int) int {
	if v, ok := m.LocalsMock[key].(int); ok {
		return v
	}
	return def
}

func (m *MockContext) GetBool(key string, def bool) bool {
	if v, ok := m.LocalsMock[key].(bool); ok {
		return v
	}
	return def
}

func (m *MockContext) Bind(v any) error {
	args := m.Called(v)
	return args.Error(0)
}
