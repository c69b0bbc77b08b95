package local

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is a locally registered login.
type Account struct {
	bun.BaseModel    `bun:"table:accounts,alias:acc"`
	ID               uuid.UUID      `bun:"id,pk" json:"id"`
	Email            string         `bun:"email,notnull,unique" json:"email"`
	PasswordHash     string         `bun:"password_hash,notnull" json:"-"`
	Metadata         map[string]any `bun:"metadata" json:"metadata,omitempty"`
	EmailConfirmedAt *time.Time     `bun:"email_confirmed_at,nullzero" json:"email_confirmed_at,omitempty"`
	LastSignInAt     *time.Time     `bun:"last_sign_in_at,nullzero" json:"last_sign_in_at,omitempty"`
	CreatedAt        time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt        time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// Confirmed reports whether the account email was confirmed.
func (a *Account) Confirmed() bool {
	return a != nil && a.EmailConfirmedAt != nil
}

// ProfileRecord is the row behind campus.Profile.
type ProfileRecord struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`
	ID            uuid.UUID `bun:"id,pk" json:"id"`
	Name          string    `bun:"name,notnull" json:"name"`
	Email         string    `bun:"email,notnull" json:"email"`
	Role          string    `bun:"role,notnull" json:"role"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// AuthSession tracks an issued refresh token so it can be revoked.
type AuthSession struct {
	bun.BaseModel `bun:"table:auth_sessions,alias:ses"`
	ID            uuid.UUID  `bun:"id,pk" json:"id"`
	AccountID     uuid.UUID  `bun:"account_id,notnull" json:"account_id"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	RevokedAt     *time.Time `bun:"revoked_at,nullzero" json:"revoked_at,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// Active reports whether the session can still be refreshed at now.
func (s *AuthSession) Active(now time.Time) bool {
	return s != nil && s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
