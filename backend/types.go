package backend

import (
	"context"
	"time"

	"github.com/goliatone/go-campus"
)

// User is the account record returned by the auth service.
type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
	AppMetadata      map[string]any `json:"app_metadata,omitempty"`
}

// TokenResponse is the payload of a successful token grant.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// UserAttributes is the body of an account update. Empty fields are omitted.
type UserAttributes struct {
	Email    string         `json:"email,omitempty"`
	Password string         `json:"password,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// IsEmpty reports whether the update carries no changes.
func (a UserAttributes) IsEmpty() bool {
	return a.Email == "" && a.Password == "" && len(a.Data) == 0
}

// Transport performs the raw calls against the auth and profile service.
// Implementations return *APIError for service refusals.
type Transport interface {
	PasswordGrant(ctx context.Context, email, password string) (*TokenResponse, error)
	RefreshGrant(ctx context.Context, refreshToken string) (*TokenResponse, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*User, error)
	Logout(ctx context.Context, accessToken string) error
	UpdateUser(ctx context.Context, accessToken string, attrs UserAttributes) (*User, error)
	// FetchProfile returns the raw profile row, or nil when there is none.
	FetchProfile(ctx context.Context, accessToken, userID string) (map[string]any, error)
	PatchProfile(ctx context.Context, accessToken, userID string, fields map[string]any) error
}

// SessionStorage persists the current session between restores.
type SessionStorage interface {
	// Load returns nil, nil when nothing is stored.
	Load(ctx context.Context) (*campus.Session, error)
	Save(ctx context.Context, session *campus.Session) error
	Clear(ctx context.Context) error
}

// SessionFromToken builds the local session view of a token grant.
func SessionFromToken(tok *TokenResponse, now time.Time) *campus.Session {
	if tok == nil {
		return nil
	}

	session := &campus.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}

	switch {
	case tok.ExpiresAt > 0:
		session.ExpiresAt = time.Unix(tok.ExpiresAt, 0)
	case tok.ExpiresIn > 0:
		session.ExpiresAt = now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	default:
		if exp, ok := TokenExpiry(tok.AccessToken); ok {
			session.ExpiresAt = exp
		}
	}

	if tok.User != nil {
		session.UserID = tok.User.ID
		session.Email = tok.User.Email
		session.User = userMap(tok.User)
	}

	return session
}

func userMap(u *User) map[string]any {
	out := map[string]any{
		"id":    u.ID,
		"email": u.Email,
	}
	if len(u.UserMetadata) > 0 {
		out["user_metadata"] = u.UserMetadata
	}
	if len(u.AppMetadata) > 0 {
		out["app_metadata"] = u.AppMetadata
	}
	return out
}
