package campus

import (
	"context"
	"sync"
	"testing"

	"github.com/goliatone/go-logger/glog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logCall struct {
	level   string
	message string
	args    []any
}

type captureLogger struct {
	mu    sync.Mutex
	calls []logCall
}

func (l *captureLogger) record(level, message string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, logCall{level: level, message: message, args: args})
}

func (l *captureLogger) Trace(message string, args ...any) { l.record("trace", message, args...) }
func (l *captureLogger) Debug(message string, args ...any) { l.record("debug", message, args...) }
func (l *captureLogger) Info(message string, args ...any)  { l.record("info", message, args...) }
func (l *captureLogger) Warn(message string, args ...any)  { l.record("warn", message, args...) }
func (l *captureLogger) Error(message string, args ...any) { l.record("error", message, args...) }
func (l *captureLogger) Fatal(message string, args ...any) { l.record("fatal", message, args...) }
func (l *captureLogger) WithContext(context.Context) Logger {
	return l
}

func (l *captureLogger) has(level, message string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.calls {
		if c.level == level && c.message == message {
			return true
		}
	}
	return false
}

type namedProvider struct {
	mu    sync.Mutex
	names []string
	log   Logger
}

func (p *namedProvider) GetLogger(name string) Logger {
	p.mu.Lock()
	p.names = append(p.names, name)
	p.mu.Unlock()
	return p.log
}

func TestResolveLoggerPrefersProvider(t *testing.T) {
	capture := &captureLogger{}
	provider := &namedProvider{log: capture}

	gotProvider, logger := ResolveLogger("campus.store", provider, nil)
	assert.Same(t, provider, gotProvider)
	assert.Same(t, capture, logger)
	assert.Equal(t, []string{"campus.store"}, provider.names)
}

func TestResolveLoggerFallsBack(t *testing.T) {
	capture := &captureLogger{}

	provider, logger := ResolveLogger("campus.store", nil, capture)
	assert.Same(t, capture, logger)
	require.NotNil(t, provider)

	_, def := ResolveLogger("campus.store", nil, nil)
	assert.NotNil(t, def)

	_, fallback := ResolveLogger("campus.store", &namedProvider{}, capture)
	assert.Same(t, capture, fallback)
}

func TestSessionStoreLogsRestoreFailure(t *testing.T) {
	capture := &captureLogger{}
	backend := failingRestoreBackend{}

	store := NewSessionStore(backend, WithStoreLogger(capture))
	store.Initialize(context.Background())

	assert.True(t, store.State().IsAnonymous())
	assert.True(t, capture.has("warn", "restore session failed, continuing anonymous"))
}

func TestSessionStoreLoggerProviderScope(t *testing.T) {
	provider := &namedProvider{log: &captureLogger{}}
	NewSessionStore(nil, WithStoreLoggerProvider(provider))
	assert.Contains(t, provider.names, "campus.store")
}

type failingRestoreBackend struct {
	unavailableBackend
}

func (failingRestoreBackend) RestoreSession(context.Context) (*Session, error) {
	return nil, ErrNetwork.Clone()
}

func TestResolveLoggerFallbackProviderReturnsSameLogger(t *testing.T) {
	capture := &captureLogger{}

	provider, _ := ResolveLogger("campus.store", nil, capture)
	assert.Same(t, capture, provider.GetLogger("campus.http"))
}

func TestProviderFromRoot(t *testing.T) {
	assert.Nil(t, ProviderFromRoot(nil))

	root := glog.NewLogger(glog.WithName("test"), glog.WithLevel(glog.Error))
	provider := ProviderFromRoot(root)
	require.NotNil(t, provider)
	assert.NotNil(t, provider.GetLogger("campus.store"))
}
