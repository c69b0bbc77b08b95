package campus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthStateMachineTransitions(t *testing.T) {
	sm := newAuthStateMachine()

	assert.True(t, sm.canTransition(StateLoading, StateAnonymous))
	assert.True(t, sm.canTransition(StateLoading, StateAuthenticated))
	assert.True(t, sm.canTransition("", StateAnonymous))
	assert.True(t, sm.canTransition(StateAnonymous, StateAuthenticated))
	assert.True(t, sm.canTransition(StateAuthenticated, StateAnonymous))
	assert.True(t, sm.canTransition(StateAuthenticated, StateAuthenticated))

	assert.False(t, sm.canTransition(StateAnonymous, StateLoading))
	assert.False(t, sm.canTransition(StateAuthenticated, StateLoading))
}

func TestAuthStateMachineValidate(t *testing.T) {
	sm := newAuthStateMachine()
	session := &Session{UserID: "u1"}

	require.NoError(t, sm.validate(Loading(), Authenticated(session, &Profile{ID: "u1"})))
	require.NoError(t, sm.validate(Anonymous(), Authenticated(session, nil)))

	err := sm.validate(Anonymous(), Loading())
	require.Error(t, err)
	assert.True(t, HasTextCode(err, TextCodeInvalidTransition))

	err = sm.validate(Anonymous(), Authenticated(nil, nil))
	assert.True(t, HasTextCode(err, TextCodeInvalidTransition))

	err = sm.validate(Anonymous(), Authenticated(session, &Profile{ID: "u2"}))
	assert.True(t, HasTextCode(err, TextCodeInvalidTransition))
}

func TestSessionStoreRejectsInvalidCommit(t *testing.T) {
	store := NewSessionStore(nil)
	store.ApplySession(context.Background(), nil)
	require.True(t, store.State().IsAnonymous())

	assert.False(t, store.commit(store.beginApply(), Loading()))
	assert.True(t, store.State().IsAnonymous())
}

func TestSessionStoreDropsMismatchedProfile(t *testing.T) {
	store := NewSessionStore(nil)
	gen := store.beginApply()
	require.True(t, store.commit(gen, Authenticated(&Session{UserID: "u1"}, &Profile{ID: "other"})))

	state := store.State()
	assert.True(t, state.IsAuthenticated())
	assert.Nil(t, state.Profile)
}

func TestSessionStoreCommitProfileIgnoresOtherUser(t *testing.T) {
	store := NewSessionStore(nil)
	require.True(t, store.commit(store.beginApply(), Authenticated(&Session{UserID: "u1"}, nil)))

	assert.False(t, store.commitProfile("u2", &Profile{ID: "u2"}))
	assert.True(t, store.commitProfile("u1", &Profile{ID: "u1", Name: "Ana"}))
	assert.Equal(t, "Ana", store.Profile().Name)
}
