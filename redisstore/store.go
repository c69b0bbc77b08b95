// Package redisstore persists visitor sessions in Redis so a restored
// session survives process restarts.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/goliatone/go-campus"
	"github.com/goliatone/go-campus/backend"
	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "campus:session:"
	defaultTTL    = 7 * 24 * time.Hour
)

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL sets how long an idle session is kept. The refresh token usually
// outlives the access token, so this is not derived from ExpiresAt.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// Store hands out per visitor SessionStorage values over one client.
type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New creates a Store over client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: defaultPrefix,
		ttl:    defaultTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "redis ping failed").
			WithTextCode("REDIS_UNAVAILABLE")
	}
	return nil
}

// For returns the storage bound to visitorID.
func (s *Store) For(visitorID string) backend.SessionStorage {
	return &visitorStorage{store: s, key: s.prefix + visitorID}
}

type visitorStorage struct {
	store *Store
	key   string
}

func (v *visitorStorage) Load(ctx context.Context) (*campus.Session, error) {
	val, err := v.store.client.Get(ctx, v.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to load session").
			WithMetadata(map[string]any{"key": v.key})
	}

	var session campus.Session
	if err := json.Unmarshal(val, &session); err != nil {
		// unreadable entries are dropped so the visitor starts anonymous
		_ = v.store.client.Del(ctx, v.key).Err()
		return nil, nil
	}
	return &session, nil
}

func (v *visitorStorage) Save(ctx context.Context, session *campus.Session) error {
	if session == nil {
		return v.Clear(ctx)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode session")
	}

	if err := v.store.client.Set(ctx, v.key, data, v.store.ttl).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to save session").
			WithMetadata(map[string]any{"key": v.key})
	}
	return nil
}

func (v *visitorStorage) Clear(ctx context.Context) error {
	if err := v.store.client.Del(ctx, v.key).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to clear session").
			WithMetadata(map[string]any{"key": v.key})
	}
	return nil
}
