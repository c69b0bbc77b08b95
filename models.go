package campus

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Profile is the role bearing record of a portal user.
type Profile struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Email     string    `json:"email" yaml:"email"`
	Role      Role      `json:"role" yaml:"role"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"updated_at"`
}

// Clone returns a copy safe to hand out of the store.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// IsAdmin reports whether the profile carries the admin role.
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role.IsAtLeast(RoleAdmin)
}

// FirstName returns the first word of Name.
func (p *Profile) FirstName() string {
	if p == nil {
		return ""
	}
	fields := strings.Fields(p.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Session is the process local view of an authenticated backend session.
type Session struct {
	UserID       string         `json:"user_id"`
	Email        string         `json:"email,omitempty"`
	AccessToken  string         `json:"access_token,omitempty"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time      `json:"expires_at,omitempty"`
	User         map[string]any `json:"user,omitempty"`
}

// Clone returns a copy of the session. User is copied one level deep.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.User != nil {
		c.User = make(map[string]any, len(s.User))
		for k, v := range s.User {
			c.User[k] = v
		}
	}
	return &c
}

// Expired reports whether the session expires before now+margin. Sessions
// without an expiry never expire.
func (s *Session) Expired(now time.Time, margin time.Duration) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(margin).Before(s.ExpiresAt)
}

// ProfileUpdate is a partial profile update. Nil fields are left untouched.
type ProfileUpdate struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"-"`
}

// IsEmpty reports whether the update changes nothing.
func (u ProfileUpdate) IsEmpty() bool {
	return u.Name == nil && u.Email == nil && u.Password == nil
}

// Validate checks the fields that are present.
func (u ProfileUpdate) Validate() error {
	payload := struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}{deref(u.Name), deref(u.Email), deref(u.Password)}

	rules := []*validation.FieldRules{}
	if u.Name != nil {
		rules = append(rules, validation.Field(&payload.Name, validation.Required, validation.Length(1, 200)))
	}
	if u.Email != nil {
		rules = append(rules, validation.Field(&payload.Email, validation.Required, is.Email))
	}
	if u.Password != nil {
		rules = append(rules, validation.Field(&payload.Password, validation.Required, validation.Length(6, 100)))
	}

	return validation.ValidateStruct(&payload, rules...)
}

// Apply merges the update into a copy of p.
func (u ProfileUpdate) Apply(p *Profile, now time.Time) *Profile {
	out := p.Clone()
	if out == nil {
		out = &Profile{}
	}
	if u.Name != nil {
		out.Name = strings.TrimSpace(*u.Name)
	}
	if u.Email != nil {
		out.Email = strings.TrimSpace(*u.Email)
	}
	out.UpdatedAt = now
	return out
}

// Fields returns the profile columns touched by the update. Password is not
// a profile column and is never included.
func (u ProfileUpdate) Fields() map[string]any {
	fields := map[string]any{}
	if u.Name != nil {
		fields["name"] = strings.TrimSpace(*u.Name)
	}
	if u.Email != nil {
		fields["email"] = strings.TrimSpace(*u.Email)
	}
	return fields
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr is a helper to build ProfileUpdate values.
func StringPtr(s string) *string {
	return &s
}

// StateKind enumerates AuthState variants.
type StateKind string

const (
	StateLoading       StateKind = "loading"
	StateAnonymous     StateKind = "anonymous"
	StateAuthenticated StateKind = "authenticated"
)

// AuthState is the value of the session state machine. Session and Profile
// are only set when Kind is StateAuthenticated; Profile may be nil when the
// user has no profile row yet.
type AuthState struct {
	Kind    StateKind `json:"kind"`
	Session *Session  `json:"session,omitempty"`
	Profile *Profile  `json:"profile,omitempty"`
}

// Loading is the initial state.
func Loading() AuthState {
	return AuthState{Kind: StateLoading}
}

// Anonymous is the signed out state.
func Anonymous() AuthState {
	return AuthState{Kind: StateAnonymous}
}

// Authenticated builds a signed in state.
func Authenticated(session *Session, profile *Profile) AuthState {
	return AuthState{Kind: StateAuthenticated, Session: session, Profile: profile}
}

func (s AuthState) IsLoading() bool       { return s.Kind == StateLoading || s.Kind == "" }
func (s AuthState) IsAnonymous() bool     { return s.Kind == StateAnonymous }
func (s AuthState) IsAuthenticated() bool { return s.Kind == StateAuthenticated }

// IsAdmin reports whether the state is authenticated with an admin profile.
func (s AuthState) IsAdmin() bool {
	return s.IsAuthenticated() && s.Profile.IsAdmin()
}

// UserID returns the session user id or an empty string.
func (s AuthState) UserID() string {
	if s.Session == nil {
		return ""
	}
	return s.Session.UserID
}

// Clone deep copies session and profile.
func (s AuthState) Clone() AuthState {
	return AuthState{Kind: s.Kind, Session: s.Session.Clone(), Profile: s.Profile.Clone()}
}
