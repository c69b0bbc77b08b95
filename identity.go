package campus

import (
	"context"
	"strings"
	"time"
)

// SignInResult reports how a provider handled a sign in attempt.
type SignInResult struct {
	// Handled is false when the provider does not know the credentials and
	// the next provider must be asked.
	Handled bool
	// Session and Profile are set when the provider resolved the identity
	// locally. Remote providers leave them nil and deliver the session
	// through the backend push listener.
	Session *Session
	Profile *Profile
}

// IdentityProvider resolves credentials and profiles for a set of users.
// Providers are consulted in order; the first that handles a request wins.
type IdentityProvider interface {
	Name() string
	// Owns reports whether the provider is authoritative for userID.
	Owns(userID string) bool
	SignIn(ctx context.Context, email, password string) (SignInResult, error)
	SignOut(ctx context.Context, userID string) error
	// Profile returns nil, nil when the user has no profile.
	Profile(ctx context.Context, userID string) (*Profile, error)
	// UpdateProfile applies update and returns the profile to store.
	UpdateProfile(ctx context.Context, userID string, current *Profile, update ProfileUpdate) (*Profile, error)
}

// FixtureProvider serves the demo identities from memory.
type FixtureProvider struct {
	byEmail map[string]Fixture
	byID    map[string]Fixture
	created time.Time
	now     func() time.Time
}

// NewFixtureProvider indexes fixtures by email and id.
func NewFixtureProvider(fixtures []Fixture) *FixtureProvider {
	p := &FixtureProvider{
		byEmail: make(map[string]Fixture, len(fixtures)),
		byID:    make(map[string]Fixture, len(fixtures)),
		now:     time.Now,
	}
	p.created = p.now()
	for _, f := range fixtures {
		p.byEmail[f.Email] = f
		p.byID[f.ID] = f
	}
	return p
}

// WithClock sets the clock used for profile timestamps.
func (p *FixtureProvider) WithClock(now func() time.Time) *FixtureProvider {
	if now != nil {
		p.now = now
		p.created = now()
	}
	return p
}

func (p *FixtureProvider) Name() string { return "fixture" }

func (p *FixtureProvider) Owns(userID string) bool {
	_, ok := p.byID[userID]
	return ok
}

// SignIn matches email and password by exact equality.
func (p *FixtureProvider) SignIn(_ context.Context, email, password string) (SignInResult, error) {
	f, ok := p.byEmail[email]
	if !ok || f.Password != password {
		return SignInResult{}, nil
	}

	return SignInResult{
		Handled: true,
		Session: p.session(f),
		Profile: p.profile(f),
	}, nil
}

func (p *FixtureProvider) SignOut(context.Context, string) error {
	return nil
}

func (p *FixtureProvider) Profile(_ context.Context, userID string) (*Profile, error) {
	f, ok := p.byID[userID]
	if !ok {
		return nil, nil
	}
	return p.profile(f), nil
}

// UpdateProfile merges into the in-memory profile only.
func (p *FixtureProvider) UpdateProfile(_ context.Context, userID string, current *Profile, update ProfileUpdate) (*Profile, error) {
	if current == nil {
		f, ok := p.byID[userID]
		if !ok {
			return nil, WrapError(ErrNotAuthenticated, nil, map[string]any{"user_id": userID})
		}
		current = p.profile(f)
	}
	return update.Apply(current, p.now()), nil
}

func (p *FixtureProvider) profile(f Fixture) *Profile {
	return &Profile{
		ID:        f.ID,
		Name:      f.Name,
		Email:     f.Email,
		Role:      f.Role,
		CreatedAt: p.created,
		UpdatedAt: p.created,
	}
}

func (p *FixtureProvider) session(f Fixture) *Session {
	return &Session{
		UserID:       f.ID,
		Email:        f.Email,
		AccessToken:  demoAccessToken,
		RefreshToken: demoRefreshToken,
		User: map[string]any{
			"id":    f.ID,
			"email": f.Email,
			"user_metadata": map[string]any{
				"full_name": f.Name,
			},
		},
	}
}

// RemoteProvider delegates to the Backend. It owns every user id, so it
// must be the last provider in the chain.
type RemoteProvider struct {
	backend Backend
}

// NewRemoteProvider wraps backend.
func NewRemoteProvider(backend Backend) *RemoteProvider {
	return &RemoteProvider{backend: backend}
}

func (p *RemoteProvider) Name() string { return "remote" }

func (p *RemoteProvider) Owns(string) bool { return true }

func (p *RemoteProvider) SignIn(ctx context.Context, email, password string) (SignInResult, error) {
	if err := p.backend.SignInWithPassword(ctx, strings.TrimSpace(email), password); err != nil {
		return SignInResult{Handled: true}, err
	}
	return SignInResult{Handled: true}, nil
}

func (p *RemoteProvider) SignOut(ctx context.Context, _ string) error {
	return p.backend.SignOut(ctx)
}

func (p *RemoteProvider) Profile(ctx context.Context, userID string) (*Profile, error) {
	return p.backend.GetProfileByID(ctx, userID)
}

// UpdateProfile persists the partial update and re-fetches the profile
// instead of trusting a local merge.
func (p *RemoteProvider) UpdateProfile(ctx context.Context, userID string, _ *Profile, update ProfileUpdate) (*Profile, error) {
	if err := p.backend.UpdateProfile(ctx, userID, update); err != nil {
		return nil, err
	}
	return p.backend.GetProfileByID(ctx, userID)
}
