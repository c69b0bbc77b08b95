package local

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Repositories groups the tables behind the local backend.
type Repositories struct {
	db       *bun.DB
	accounts repository.Repository[*Account]
	profiles repository.Repository[*ProfileRecord]
	sessions repository.Repository[*AuthSession]
}

// NewRepositories wires the repositories over db.
func NewRepositories(db *bun.DB) *Repositories {
	return &Repositories{
		db: db,
		accounts: repository.NewRepository(db, repository.ModelHandlers[*Account]{
			NewRecord: func() *Account { return &Account{} },
			GetID: func(a *Account) uuid.UUID {
				if a == nil {
					return uuid.Nil
				}
				return a.ID
			},
			SetID: func(a *Account, id uuid.UUID) {
				if a != nil {
					a.ID = id
				}
			},
			GetIdentifier: func() string {
				return "email"
			},
		}),
		profiles: repository.NewRepository(db, repository.ModelHandlers[*ProfileRecord]{
			NewRecord: func() *ProfileRecord { return &ProfileRecord{} },
			GetID: func(p *ProfileRecord) uuid.UUID {
				if p == nil {
					return uuid.Nil
				}
				return p.ID
			},
			SetID: func(p *ProfileRecord, id uuid.UUID) {
				if p != nil {
					p.ID = id
				}
			},
			GetIdentifier: func() string {
				return "email"
			},
		}),
		sessions: repository.NewRepository(db, repository.ModelHandlers[*AuthSession]{
			NewRecord: func() *AuthSession { return &AuthSession{} },
			GetID: func(s *AuthSession) uuid.UUID {
				if s == nil {
					return uuid.Nil
				}
				return s.ID
			},
			SetID: func(s *AuthSession, id uuid.UUID) {
				if s != nil {
					s.ID = id
				}
			},
		}),
	}
}

// RunInTx runs fn inside a database transaction.
func (r *Repositories) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return r.db.RunInTx(ctx, nil, fn)
}

// Accounts returns the accounts repository.
func (r *Repositories) Accounts() repository.Repository[*Account] {
	return r.accounts
}

// Profiles returns the profiles repository.
func (r *Repositories) Profiles() repository.Repository[*ProfileRecord] {
	return r.profiles
}

// Sessions returns the auth sessions repository.
func (r *Repositories) Sessions() repository.Repository[*AuthSession] {
	return r.sessions
}

// AccountByEmail looks an account up by its normalized email.
func (r *Repositories) AccountByEmail(ctx context.Context, email string) (*Account, error) {
	return r.accounts.GetByIdentifier(ctx, NormalizeEmail(email))
}

// NormalizeEmail lower cases and trims email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
