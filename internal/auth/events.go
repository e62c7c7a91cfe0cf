package auth

import (
	"context"
	"time"
)

// EventType names an auth event.
type EventType string

const (
	EventLogin                EventType = "login"
	EventLoginFailed          EventType = "login_failed"
	EventRefresh              EventType = "refresh"
	EventLogout               EventType = "logout"
	EventPasswordChanged      EventType = "password_changed"
	EventPrincipalCreated     EventType = "principal_created"
	EventPrincipalUpdated     EventType = "principal_updated"
	EventPrincipalDeactivated EventType = "principal_deactivated"
	EventSessionsRevoked      EventType = "sessions_revoked"
)

// Event describes something that happened to a principal.
// It never carries credentials.
type Event struct {
	Type        EventType `json:"type"`
	PrincipalID int64     `json:"principal_id,omitempty"`
	Username    string    `json:"username,omitempty"`
	Role        Role      `json:"role,omitempty"`
	ActorID     int64     `json:"actor_id,omitempty"`
	ClientIP    string    `json:"client_ip,omitempty"`
	At          time.Time `json:"at"`
}

// EventRecorder receives auth events. Implementations must not block the caller.
type EventRecorder interface {
	Record(ctx context.Context, e Event)
}

// NopRecorder discards events.
type NopRecorder struct{}

// Record implements EventRecorder.
func (NopRecorder) Record(context.Context, Event) {}
