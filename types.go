package campus

import (
	"context"
	"sync"

	"github.com/goliatone/go-logger/glog"
)

// Logger is the structured logger used across the module.
type Logger = glog.Logger

// LoggerProvider hands out named loggers.
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// SessionEvent names a backend pushed session change.
type SessionEvent string

const (
	SessionEventInitial        SessionEvent = "INITIAL_SESSION"
	SessionEventSignedIn       SessionEvent = "SIGNED_IN"
	SessionEventSignedOut      SessionEvent = "SIGNED_OUT"
	SessionEventTokenRefreshed SessionEvent = "TOKEN_REFRESHED"
	SessionEventUserUpdated    SessionEvent = "USER_UPDATED"
)

// SessionChangeFunc receives backend pushed session changes. A nil session
// means the session was revoked or expired.
type SessionChangeFunc func(event SessionEvent, session *Session)

// Backend is the remote authentication and profile service.
type Backend interface {
	// RestoreSession returns the persisted session, if any.
	RestoreSession(ctx context.Context) (*Session, error)
	// OnSessionChange registers a push listener and returns its unsubscribe handle.
	OnSessionChange(fn SessionChangeFunc) (unsubscribe func())
	SignInWithPassword(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password string, metadata map[string]any) error
	SignOut(ctx context.Context) error
	// GetProfileByID returns nil, nil when the profile row does not exist.
	GetProfileByID(ctx context.Context, id string) (*Profile, error)
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) error
}

var (
	defaultLoggerOnce sync.Once
	defaultRoot       *glog.BaseLogger
)

func defaultLogger() Logger {
	defaultLoggerOnce.Do(func() {
		defaultRoot = glog.NewLogger(
			glog.WithLoggerTypePretty(),
			glog.WithLevel(glog.Info),
			glog.WithName("campus"),
			glog.WithAddSource(false),
		)
	})
	return defaultRoot.GetLogger("campus")
}

// ResolveLogger returns the scoped logger for name. The provider wins when it
// yields a logger, otherwise the fallback logger (or the default) is used.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if provider != nil {
		if scoped := provider.GetLogger(name); scoped != nil {
			return provider, scoped
		}
	}

	if logger == nil {
		logger = defaultLogger()
	}

	return staticProvider{logger: logger}, logger
}

// ProviderFromRoot exposes a glog root logger as a LoggerProvider, handing
// out children named after each component.
func ProviderFromRoot(root *glog.BaseLogger) LoggerProvider {
	if root == nil {
		return nil
	}
	return rootProvider{root: root}
}

type rootProvider struct {
	root *glog.BaseLogger
}

func (p rootProvider) GetLogger(name string) Logger {
	return p.root.GetLogger(name)
}

// staticProvider returns the same logger for every name.
type staticProvider struct {
	logger Logger
}

func (p staticProvider) GetLogger(string) Logger {
	return p.logger
}
