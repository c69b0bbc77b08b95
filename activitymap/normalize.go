package activitymap

import (
	"maps"
	"strings"
	"time"

	"github.com/goliatone/go-campus"
)

// Metadata keys filled from the event when the caller did not set them.
const (
	MetadataKeyEmail    = "email"
	MetadataKeyProvider = "provider"
	MetadataKeyPath     = "path"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Mapper turns campus activity events into Normalized records. Empty fields
// take the DefaultMapper values.
type Mapper struct {
	Channel    string
	ObjectType string
	// Anonymous is the actor id for events without a user.
	Anonymous string
	// ObjectID overrides how the object id is picked.
	ObjectID func(campus.ActivityEvent) string
	Now      func() time.Time
}

// DefaultMapper reports user events on the "campus" channel.
var DefaultMapper = Mapper{
	Channel:    "campus",
	ObjectType: "user",
	Anonymous:  "system",
}

// Normalize maps event with DefaultMapper.
func Normalize(event campus.ActivityEvent) Normalized {
	return DefaultMapper.Normalize(event)
}

// Normalize maps event. Access denials are reported against the route
// unless ObjectID is set.
func (m Mapper) Normalize(event campus.ActivityEvent) Normalized {
	m = m.withDefaults()

	out := Normalized{
		ActorID:    pick(event.UserID, m.Anonymous),
		Verb:       string(event.EventType),
		ObjectType: m.ObjectType,
		Channel:    m.Channel,
		Metadata:   metadataFor(event),
		OccurredAt: event.OccurredAt,
	}

	switch {
	case m.ObjectID != nil:
		out.ObjectID = strings.TrimSpace(m.ObjectID(event))
	case event.EventType == campus.ActivityEventAccessDenied:
		out.ObjectType = "route"
		out.ObjectID = strings.TrimSpace(event.Path)
	default:
		out.ObjectID = pick(event.UserID, event.Email)
	}

	if out.OccurredAt.IsZero() {
		out.OccurredAt = m.Now().UTC()
	}
	return out
}

func (m Mapper) withDefaults() Mapper {
	m.Channel = pick(m.Channel, DefaultMapper.Channel)
	m.ObjectType = pick(m.ObjectType, DefaultMapper.ObjectType)
	m.Anonymous = pick(m.Anonymous, DefaultMapper.Anonymous)
	if m.Now == nil {
		m.Now = time.Now
	}
	return m
}

func metadataFor(event campus.ActivityEvent) map[string]any {
	var out map[string]any
	if len(event.Metadata) > 0 {
		out = maps.Clone(event.Metadata)
	}

	for key, value := range map[string]string{
		MetadataKeyEmail:    event.Email,
		MetadataKeyProvider: event.Provider,
		MetadataKeyPath:     event.Path,
	} {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if out == nil {
			out = map[string]any{}
		}
		if _, set := out[key]; !set {
			out[key] = value
		}
	}
	return out
}

func pick(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
