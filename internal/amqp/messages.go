package amqp

import (
	"encoding/json"
	"time"

	"fintrack/internal/session"
)

// SessionEventMessage is the wire form of a session lifecycle event. It
// identifies the user but never carries a token.
type SessionEventMessage struct {
	Event     string    `json:"event"`
	UserID    int64     `json:"userId,omitempty"`
	Email     string    `json:"email,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSessionEventMessage converts a session event for publishing
func NewSessionEventMessage(e session.Event) *SessionEventMessage {
	ts := e.OccurredAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return &SessionEventMessage{
		Event:     string(e.Type),
		UserID:    e.UserID,
		Email:     e.Email,
		Timestamp: ts,
	}
}

// RoutingKey routes each event type separately, e.g. "session.login".
func (m *SessionEventMessage) RoutingKey() string {
	return "session." + m.Event
}

// ToJSON converts the message to JSON bytes
func (m *SessionEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SessionEventMessageFromJSON creates a message from JSON bytes
func SessionEventMessageFromJSON(data []byte) (*SessionEventMessage, error) {
	var msg SessionEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
