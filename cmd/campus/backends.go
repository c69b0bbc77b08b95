package main

import (
	"context"
	"time"

	"github.com/goliatone/go-campus"
	"github.com/goliatone/go-campus/backend"
	"github.com/goliatone/go-campus/config"
	"github.com/goliatone/go-campus/local"
	"github.com/goliatone/go-campus/redisstore"
	"github.com/goliatone/go-logger/glog"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
)

// backends holds the process wide pieces shared by every visitor client.
type backends struct {
	cfg       config.Backend
	transport backend.Transport
	verifier  backend.TokenVerifier
	sessions  *redisstore.Store
	provider  campus.LoggerProvider
	logger    glog.Logger
	activity  campus.ActivitySink

	closers []func()
}

// WithBackends selects the transport and session storage from config.
func WithBackends(ctx context.Context, app *App) error {
	cfg := app.Config()
	b := &backends{
		cfg:      cfg.GetBackend(),
		provider: app.Provider(),
		logger:   app.GetLogger("backends"),
		activity: activityLogger(app.GetLogger("activity")),
	}
	app.backends = b

	switch b.cfg.Mode {
	case config.BackendModeLocal:
		if err := b.withLocal(ctx, cfg.GetLocal()); err != nil {
			return err
		}
	default:
		if err := b.withRemote(ctx); err != nil {
			return err
		}
	}

	if cfg.GetStorage().Driver == config.StorageRedis {
		return b.withRedis(ctx, cfg.GetStorage())
	}
	return nil
}

func (b *backends) withRemote(ctx context.Context) error {
	if !b.cfg.Configured() {
		b.logger.Warn("backend URL or API key missing, only demo accounts can sign in")
		return nil
	}

	b.transport = backend.NewHTTPTransport(backend.HTTPConfig{
		URL:     b.cfg.URL,
		AnonKey: b.cfg.AnonKey,
		Timeout: b.cfg.GetRequestTimeout(),
	}).WithLoggerProvider(b.provider)

	if b.cfg.JWKSURL == "" {
		return nil
	}

	jwks, err := backend.NewJWKSVerifier(ctx, b.cfg.JWKSURL, b.provider.GetLogger("backend.jwks"))
	if err != nil {
		return err
	}
	b.verifier = jwks
	b.closers = append(b.closers, jwks.Close)
	return nil
}

func (b *backends) withLocal(ctx context.Context, cfg config.Local) error {
	db, err := local.Open(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return err
	}
	b.closers = append(b.closers, func() { closeDB(db, b.logger) })

	transport := local.NewTransport(db, local.Config{
		SigningKey:  []byte(cfg.SigningKey),
		AccessTTL:   cfg.GetAccessTTL(),
		RefreshTTL:  cfg.GetRefreshTTL(),
		AutoConfirm: cfg.AutoConfirm,
	}).WithLoggerProvider(b.provider)

	b.transport = transport
	b.verifier = backend.TokenVerifierFunc(func(_ context.Context, accessToken string) error {
		_, err := transport.Tokens().Validate(accessToken, local.TokenKindAccess)
		return err
	})

	if cfg.AdminEmail == "" {
		return nil
	}

	_, err = transport.CreateAccount(ctx, local.AccountInput{
		Email:     cfg.AdminEmail,
		Password:  cfg.AdminPassword,
		Name:      cfg.AdminName,
		Role:      campus.RoleAdmin,
		Confirmed: true,
	})
	if err != nil {
		if mapped := backend.MapError(err); campus.HasTextCode(mapped, campus.TextCodeUserExists) {
			b.logger.Debug("local admin already present", "email", cfg.AdminEmail)
			return nil
		}
		return backend.MapError(err)
	}
	b.logger.Info("local admin created", "email", cfg.AdminEmail)
	return nil
}

func (b *backends) withRedis(ctx context.Context, cfg config.Storage) error {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	store := redisstore.New(client,
		redisstore.WithPrefix(cfg.Prefix),
		redisstore.WithTTL(cfg.GetTTL()),
	)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		client.Close()
		return err
	}

	b.sessions = store
	b.closers = append(b.closers, func() {
		if err := client.Close(); err != nil {
			b.logger.Warn("redis close failed", "error", err)
		}
	})
	return nil
}

// StoreFactory builds a SessionStore with its own backend client for each
// visitor. The store owns and closes the client.
func (b *backends) StoreFactory(fixtures []campus.Fixture) campus.StoreFactory {
	return func(visitorID string) *campus.SessionStore {
		opts := []backend.Option{
			backend.WithAutoRefresh(b.cfg.AutoRefresh),
			backend.WithRefreshMargin(b.cfg.GetRefreshMargin()),
			backend.WithLoggerProvider(b.provider),
		}
		if b.sessions != nil {
			opts = append(opts, backend.WithStorage(b.sessions.For(visitorID)))
		}
		if b.verifier != nil {
			opts = append(opts, backend.WithVerifier(b.verifier))
		}

		client := backend.New(b.transport, opts...)

		return campus.NewSessionStore(client,
			campus.WithNotifier(campus.NewNotificationQueue(0)),
			campus.WithFixtures(fixtures),
			campus.WithActivitySink(b.activity),
			campus.WithStoreLoggerProvider(b.provider),
		)
	}
}

// Close releases shared resources in reverse order.
func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func closeDB(db *bun.DB, logger glog.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("database close failed", "error", err)
	}
}
