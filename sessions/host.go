package sessions

import (
	"context"
	"errors"
)

// ErrEventNotFound is returned by SubscribeSession when lastEventID is not in
// the session's stream.
var ErrEventNotFound = errors.New("last event id not found")

// MessageHandlerFunction receives one event of a session stream.
type MessageHandlerFunction func(ctx context.Context, eventID string, data []byte) error

// SessionHost is an ordered, resumable message stream per session.
type SessionHost interface {
	// PublishSession appends data to the session stream and returns its
	// event id.
	PublishSession(ctx context.Context, sessionID string, data []byte) (eventID string, err error)
	// SubscribeSession delivers events after lastEventID (or only future
	// events when it is empty) in order until ctx ends, the handler fails or
	// the stream is cleaned up.
	SubscribeSession(ctx context.Context, sessionID string, lastEventID string, handler MessageHandlerFunction) error
	// CleanupSession drops the stream and stops its subscribers.
	CleanupSession(ctx context.Context, sessionID string) error
}
