package session

import (
	"context"
	"time"

	"fintrack/internal/credstore"
)

type EventType string

const (
	EventLogin    EventType = "login"
	EventRegister EventType = "register"
	EventLogout   EventType = "logout"
	EventRefresh  EventType = "refresh"
	EventExpired  EventType = "expired"
)

// Event describes a session lifecycle change. Tokens are never included.
type Event struct {
	Type       EventType `json:"type"`
	UserID     int64     `json:"userId,omitempty"`
	Email      string    `json:"email,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func NewEvent(kind EventType, user *credstore.User) Event {
	e := Event{Type: kind, OccurredAt: time.Now().UTC()}
	if user != nil {
		e.UserID = user.ID
		e.Email = user.Email
	}
	return e
}

// EventPublisher receives session events. Publishing is best effort; a
// failure is logged and never undoes the session change.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }
