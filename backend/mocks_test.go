package backend_test

import (
	"context"
	"sync"

	"github.com/goliatone/go-campus"
	"github.com/goliatone/go-campus/backend"
	"github.com/stretchr/testify/mock"
)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) PasswordGrant(ctx context.Context, email, password string) (*backend.TokenResponse, error) {
	args := m.Called(ctx, email, password)
	tok, _ := args.Get(0).(*backend.TokenResponse)
	return tok, args.Error(1)
}

func (m *MockTransport) RefreshGrant(ctx context.Context, refreshToken string) (*backend.TokenResponse, error) {
	args := m.Called(ctx, refreshToken)
	tok, _ := args.Get(0).(*backend.TokenResponse)
	return tok, args.Error(1)
}

func (m *MockTransport) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*backend.User, error) {
	args := m.Called(ctx, email, password, metadata)
	user, _ := args.Get(0).(*backend.User)
	return user, args.Error(1)
}

func (m *MockTransport) Logout(ctx context.Context, accessToken string) error {
	args := m.Called(ctx, accessToken)
	return args.Error(0)
}

func (m *MockTransport) UpdateUser(ctx context.Context, accessToken string, attrs backend.UserAttributes) (*backend.User, error) {
	args := m.Called(ctx, accessToken, attrs)
	user, _ := args.Get(0).(*backend.User)
	return user, args.Error(1)
}

func (m *MockTransport) FetchProfile(ctx context.Context, accessToken, userID string) (map[string]any, error) {
	args := m.Called(ctx, accessToken, userID)
	row, _ := args.Get(0).(map[string]any)
	return row, args.Error(1)
}

func (m *MockTransport) PatchProfile(ctx context.Context, accessToken, userID string, fields map[string]any) error {
	args := m.Called(ctx, accessToken, userID, fields)
	return args.Error(0)
}

type sessionEvent struct {
	Event   campus.SessionEvent
	Session *campus.Session
}

type eventRecorder struct {
	mu     sync.Mutex
	events []sessionEvent
}

func (r *eventRecorder) record(event campus.SessionEvent, session *campus.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sessionEvent{Event: event, Session: session})
}

func (r *eventRecorder) Events() []sessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sessionEvent(nil), r.events...)
}

func (r *eventRecorder) Names() []campus.SessionEvent {
	out := []campus.SessionEvent{}
	for _, e := range r.Events() {
		out = append(out, e.Event)
	}
	return out
}

func tokenFor(userID, email, access string, expiresIn int64) *backend.TokenResponse {
	return &backend.TokenResponse{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    expiresIn,
		RefreshToken: "refresh-" + access,
		User: &backend.User{
			ID:           userID,
			Email:        email,
			UserMetadata: map[string]any{"full_name": "Maria Souza"},
		},
	}
}
