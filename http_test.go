package campus_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/goliatone/go-campus"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func signedInStore(t *testing.T, email string, opts ...campus.StoreOption) (*campus.SessionStore, *campus.NotificationQueue) {
	t.Helper()
	store, queue := newTestStore(t, nil, opts...)
	store.Initialize(context.Background())
	if email != "" {
		require.NoError(t, store.SignIn(context.Background(), email, campus.DemoPassword))
		queue.Drain()
	}
	return store, queue
}

func guardContext(store *campus.SessionStore, method, path string) *MockContext {
	ctx := NewMockContext()
	ctx.LocalsMock[campus.StoreLocalsKey] = store
	ctx.On("Context").Return(context.Background())
	ctx.On("Method").Return(method)
	ctx.On("Path").Return(path)
	return ctx
}

func nextRecorder(called *bool) router.HandlerFunc {
	return func(router.Context) error {
		*called = true
		return nil
	}
}

func TestPortalGuardRedirectsAnonymousToLogin(t *testing.T) {
	store, _ := signedInStore(t, "")
	mw := campus.NewPortalMiddleware(nil, campus.HTTPConfig{})

	ctx := guardContext(store, "GET", "/conteudo")
	ctx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == "campus_return_to" && c.Value == "/conteudo" && c.HTTPOnly
	})).Return()
	ctx.On("Redirect", "/login", []int{http.StatusFound}).Return(nil)

	called := false
	err := mw.Guard()(nextRecorder(&called))(ctx)
	require.NoError(t, err)
	assert.False(t, called)
	ctx.AssertExpectations(t)
}

func TestPortalGuardRendersLoginForAnonymous(t *testing.T) {
	store, _ := signedInStore(t, "")
	mw := campus.NewPortalMiddleware(nil, campus.HTTPConfig{})

	ctx := guardContext(store, "GET", "/login")
	called := false
	require.NoError(t, mw.Guard()(nextRecorder(&called))(ctx))
	assert.True(t, called)
}

func TestPortalGuardDeniesStudentInAdminArea(t *testing.T) {
	sink := &recordingSink{}
	store, queue := signedInStore(t, campus.DemoStudentEmail)
	mw := campus.NewPortalMiddleware(nil, campus.HTTPConfig{}).WithActivitySink(sink)

	ctx := guardContext(store, "POST", "/admin/users")
	ctx.On("Redirect", "/", []int{http.StatusSeeOther}).Return(nil)

	called := false
	require.NoError(t, mw.Guard()(nextRecorder(&called))(ctx))
	assert.False(t, called)

	notices := queue.Drain()
	require.Len(t, notices, 1)
	assert.Equal(t, "Acesso Negado", notices[0].Title)
	assert.Equal(t, "Você não tem permissão para acessar o painel de administrador.", notices[0].Description)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.events, 1)
	assert.Equal(t, campus.ActivityEventAccessDenied, sink.events[0].EventType)
	assert.Equal(t, campus.DemoStudentID, sink.events[0].UserID)
	assert.Equal(t, "/admin/users", sink.events[0].Path)
	ctx.AssertExpectations(t)
}

func TestPortalGuardLetsAdminThrough(t *testing.T) {
	store, _ := signedInStore(t, campus.DemoAdminEmail)
	mw := campus.NewPortalMiddleware(nil, campus.HTTPConfig{})

	ctx := guardContext(store, "GET", "/admin/users")
	called := false
	require.NoError(t, mw.Guard()(nextRecorder(&called))(ctx))
	assert.True(t, called)

	called = false
	require.NoError(t, mw.AdminArea()(nextRecorder(&called))(ctx))
	assert.True(t, called)
}

func TestPortalGuardSendsSignedInAdminAwayFromLogin(t *testing.T) {
	store, _ := signedInStore(t, campus.DemoAdminEmail)
	mw := campus.NewPortalMiddleware(nil, campus.HTTPConfig{})

	ctx := guardContext(store, "GET", "/login")
	ctx.On("Redirect", "/admin/dashboard", []int{http.StatusFound}).Return(nil)

	called := false
	require.NoError(t, mw.Guard()(nextRecorder(&called))(ctx))
	assert.False(t, called)
	ctx.AssertExpectations(t)
}

func TestPortalAdminAreaRedirectsEntry(t *testing.T) {
	store, _ := signedInStore(t, campus.DemoAdminEmail)
	mw := campus.NewPortalMiddleware(nil, campus.HTTPConfig{})

	ctx := guardContext(store, "GET", "/admin")
	ctx.On("Redirect", "/admin/dashboard", []int{http.StatusFound}).Return(nil)

	called := false
	require.NoError(t, mw.AdminArea()(nextRecorder(&called))(ctx))
	assert.False(t, called)
	ctx.AssertExpectations(t)
}

func TestPortalGuardShowsSpinnerWhileLoading(t *testing.T) {
	store := campus.NewSessionStore(nil)
	mw := campus.NewPortalMiddleware(nil, campus.HTTPConfig{LoadingView: "loading"})

	ctx := guardContext(store, "GET", "/perfil")
	ctx.On("Status", http.StatusOK).Return(ctx).Maybe()
	ctx.On("Render", "loading", mock.MatchedBy(func(data router.ViewContext) bool {
		return data["path"] == "/perfil" && data["refresh_seconds"] == 1
	})).Return(nil)

	called := false
	require.NoError(t, mw.Guard()(nextRecorder(&called))(ctx))
	assert.False(t, called)
}

func TestPortalGuardWithoutStore(t *testing.T) {
	mw := campus.NewPortalMiddleware(nil, campus.HTTPConfig{})
	var captured error
	mw.ErrorHandler = func(_ router.Context, err error) error {
		captured = err
		return nil
	}

	ctx := NewMockContext()
	ctx.On("Context").Return(context.Background())
	called := false
	require.NoError(t, mw.Guard()(nextRecorder(&called))(ctx))
	assert.False(t, called)
	require.Error(t, captured)
	assert.True(t, campus.HasTextCode(captured, "STORE_MISSING"))
}

func TestPortalVisitorCreatesStore(t *testing.T) {
	reg := campus.NewRegistry(nil)
	t.Cleanup(reg.Close)
	mw := campus.NewPortalMiddleware(reg, campus.HTTPConfig{})

	var visitorID string
	ctx := NewMockContext()
	ctx.On("Context").Return(context.Background())
	ctx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		visitorID = c.Value
		return c.Name == "campus_visitor" && c.HTTPOnly && c.Path == "/"
	})).Return()
	ctx.On("Locals", campus.StoreLocalsKey, mock.Anything).Return(nil)
	ctx.On("SetContext", mock.Anything).Return()

	called := false
	require.NoError(t, mw.Visitor()(nextRecorder(&called))(ctx))
	assert.True(t, called)

	_, err := uuid.Parse(visitorID)
	require.NoError(t, err)
	store, ok := reg.Peek(visitorID)
	require.True(t, ok)
	assert.True(t, store.State().IsAnonymous())
}

func TestPortalVisitorReusesCookie(t *testing.T) {
	reg := campus.NewRegistry(nil)
	t.Cleanup(reg.Close)
	mw := campus.NewPortalMiddleware(reg, campus.HTTPConfig{})

	visitorID := uuid.NewString()
	existing := reg.Get(context.Background(), visitorID)

	ctx := NewMockContext()
	ctx.CookiesM["campus_visitor"] = visitorID
	ctx.On("Context").Return(context.Background())
	ctx.On("Cookie", mock.Anything).Return()
	ctx.On("Locals", campus.StoreLocalsKey, mock.Anything).Return(nil)
	ctx.On("SetContext", mock.Anything).Return()

	var seen *campus.SessionStore
	handler := mw.Visitor()(func(c router.Context) error {
		seen, _ = campus.StoreFromRouter(c)
		return nil
	})
	require.NoError(t, handler(ctx))
	assert.Same(t, existing, seen)
	assert.Equal(t, 1, reg.Len())
}

func TestPortalVisitorCarriesStoreInRequestContext(t *testing.T) {
	reg := campus.NewRegistry(nil)
	t.Cleanup(reg.Close)
	mw := campus.NewPortalMiddleware(reg, campus.HTTPConfig{})

	var requestCtx context.Context
	ctx := NewMockContext()
	ctx.On("Context").Return(context.Background())
	ctx.On("Cookie", mock.Anything).Return()
	ctx.On("Locals", campus.StoreLocalsKey, mock.Anything).Return(nil)
	ctx.On("SetContext", mock.Anything).Run(func(args mock.Arguments) {
		requestCtx, _ = args.Get(0).(context.Context)
	}).Return()

	var seen *campus.SessionStore
	handler := mw.Visitor()(func(c router.Context) error {
		seen, _ = campus.StoreFromRouter(c)
		return nil
	})
	require.NoError(t, handler(ctx))
	require.NotNil(t, seen)
	require.NotNil(t, requestCtx)

	fromCtx, ok := campus.StoreFromContext(requestCtx)
	require.True(t, ok)
	assert.Same(t, seen, fromCtx)
	ctx.AssertExpectations(t)
}

func TestPortalReturnPath(t *testing.T) {
	mw := campus.NewPortalMiddleware(nil, campus.HTTPConfig{})

	tests := []struct {
		cookie string
		want   string
	}{
		{cookie: "", want: "/"},
		{cookie: "/ferramentas", want: "/ferramentas"},
		{cookie: "//evil.example.com", want: "/"},
		{cookie: "https://evil.example.com", want: "/"},
		{cookie: "/login", want: "/"},
		{cookie: `/\evil.example.com`, want: "/"},
		{cookie: `/\\evil.example.com`, want: "/"},
		{cookie: "/\tevil.example.com", want: "/"},
		{cookie: "/cursos/42?aba=aulas", want: "/cursos/42?aba=aulas"},
	}

	for _, tt := range tests {
		ctx := NewMockContext()
		if tt.cookie != "" {
			ctx.CookiesM["campus_return_to"] = tt.cookie
		}
		ctx.On("Cookie", mock.Anything).Return()
		assert.Equal(t, tt.want, mw.ReturnPath(ctx, "/"), tt.cookie)
	}
}
