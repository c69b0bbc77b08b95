package activitymap_test

import (
	"testing"
	"time"

	"github.com/goliatone/go-campus"
	"github.com/goliatone/go-campus/activitymap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUserEvent(t *testing.T) {
	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := campus.ActivityEvent{
		EventType:  campus.ActivityEventLoginSuccess,
		UserID:     "user-100",
		Email:      "aluno@campus.test",
		Provider:   "demo",
		Metadata:   map[string]any{"visitor": "v-1"},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	assert.Equal(t, activitymap.Normalized{
		ActorID:    "user-100",
		Verb:       "auth.login.success",
		ObjectType: "user",
		ObjectID:   "user-100",
		Channel:    "campus",
		Metadata: map[string]any{
			"visitor":  "v-1",
			"email":    "aluno@campus.test",
			"provider": "demo",
		},
		OccurredAt: ts,
	}, out)

	// source metadata is not touched
	assert.Len(t, event.Metadata, 1)
}

func TestNormalizeAccessDeniedTargetsRoute(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	mapper := activitymap.Mapper{Now: func() time.Time { return now }}

	out := mapper.Normalize(campus.ActivityEvent{
		EventType: campus.ActivityEventAccessDenied,
		UserID:    "student-1",
		Path:      "/admin/users",
	})

	assert.Equal(t, "student-1", out.ActorID)
	assert.Equal(t, "route", out.ObjectType)
	assert.Equal(t, "/admin/users", out.ObjectID)
	assert.Equal(t, "/admin/users", out.Metadata[activitymap.MetadataKeyPath])
	assert.Equal(t, now, out.OccurredAt)
}

func TestMapperOverrides(t *testing.T) {
	mapper := activitymap.Mapper{
		Channel:    "security",
		ObjectType: "account",
		Anonymous:  "visitor",
		ObjectID: func(e campus.ActivityEvent) string {
			code, _ := e.Metadata["text_code"].(string)
			return code
		},
	}

	out := mapper.Normalize(campus.ActivityEvent{
		EventType: campus.ActivityEventSignUpFailure,
		Email:     "new@campus.test",
		Metadata: map[string]any{
			"text_code": "USER_ALREADY_EXISTS",
			"email":     "kept",
		},
	})

	assert.Equal(t, "visitor", out.ActorID)
	assert.Equal(t, "security", out.Channel)
	assert.Equal(t, "account", out.ObjectType)
	assert.Equal(t, "USER_ALREADY_EXISTS", out.ObjectID)
	assert.Equal(t, "kept", out.Metadata[activitymap.MetadataKeyEmail])
}

func TestNormalizeWithoutUser(t *testing.T) {
	out := activitymap.Normalize(campus.ActivityEvent{EventType: campus.ActivityEventSignUp, Email: "x@campus.test"})

	assert.Equal(t, "system", out.ActorID)
	assert.Equal(t, "x@campus.test", out.ObjectID)
	require.False(t, out.OccurredAt.IsZero())
	assert.Equal(t, time.UTC, out.OccurredAt.Location())
}
