package memoryhost

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/latex-mcp-go/sessions"
)

// DefaultMaxEvents bounds the events retained per session for resumption.
const DefaultMaxEvents = 1024

// Host is an in-memory implementation of sessions.SessionHost.
type Host struct {
	mu        sync.Mutex
	streams   map[string]*stream
	counter   atomic.Int64
	maxEvents int
}

type stream struct {
	messages []message
	// dropped counts messages trimmed from the head of messages.
	dropped int
	// wake is closed and replaced on every publish.
	wake   chan struct{}
	closed chan struct{}
}

type message struct {
	id   string
	data []byte
}

// Option configures a Host.
type Option func(*Host)

// WithMaxEvents bounds the events retained per session.
func WithMaxEvents(n int) Option {
	return func(h *Host) {
		if n > 0 {
			h.maxEvents = n
		}
	}
}

// New returns an empty Host.
func New(opts ...Option) *Host {
	h := &Host{streams: make(map[string]*stream), maxEvents: DefaultMaxEvents}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ sessions.SessionHost = (*Host)(nil)

// ensure must be called with h.mu held.
func (h *Host) ensure(sessionID string) *stream {
	st, ok := h.streams[sessionID]
	if !ok {
		st = &stream{wake: make(chan struct{}), closed: make(chan struct{})}
		h.streams[sessionID] = st
	}
	return st
}

func (h *Host) PublishSession(ctx context.Context, sessionID string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	evID := strconv.FormatInt(h.counter.Add(1), 10)

	h.mu.Lock()
	st := h.ensure(sessionID)
	st.messages = append(st.messages, message{id: evID, data: append([]byte(nil), data...)})
	if over := len(st.messages) - h.maxEvents; over > 0 {
		st.messages = append([]message(nil), st.messages[over:]...)
		st.dropped += over
	}
	close(st.wake)
	st.wake = make(chan struct{})
	h.mu.Unlock()

	return evID, nil
}

func (h *Host) SubscribeSession(ctx context.Context, sessionID string, lastEventID string, handler sessions.MessageHandlerFunction) error {
	h.mu.Lock()
	st := h.ensure(sessionID)
	// cursor is an absolute position: dropped + index.
	cursor := st.dropped + len(st.messages)
	if lastEventID != "" {
		found := false
		for i := range st.messages {
			if st.messages[i].id == lastEventID {
				cursor = st.dropped + i + 1
				found = true
				break
			}
		}
		if !found {
			h.mu.Unlock()
			return fmt.Errorf("%w: %s", sessions.ErrEventNotFound, lastEventID)
		}
	}
	h.mu.Unlock()

	for {
		h.mu.Lock()
		if cursor < st.dropped {
			cursor = st.dropped
		}
		pending := append([]message(nil), st.messages[cursor-st.dropped:]...)
		wake := st.wake
		h.mu.Unlock()

		for _, m := range pending {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := handler(ctx, m.id, m.data); err != nil {
				return err
			}
			cursor++
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-st.closed:
			return nil
		case <-wake:
		}
	}
}

func (h *Host) CleanupSession(ctx context.Context, sessionID string) error {
	h.mu.Lock()
	st, ok := h.streams[sessionID]
	if ok {
		delete(h.streams, sessionID)
		close(st.closed)
	}
	h.mu.Unlock()
	return nil
}
