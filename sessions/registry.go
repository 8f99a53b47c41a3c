package sessions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrUnknownSession is returned for identifiers that were never issued or
	// belong to a closed session.
	ErrUnknownSession = errors.New("unknown session")
	// ErrIDExhausted is returned when the id generator keeps producing
	// identifiers that were already issued.
	ErrIDExhausted = errors.New("could not generate a fresh session id")
	// ErrNoHost is returned by Publish on a registry without a SessionHost.
	ErrNoHost = errors.New("no session host configured")
)

const (
	maxIDAttempts = 8
	// DefaultRetiredIDLimit bounds how many closed ids are remembered.
	DefaultRetiredIDLimit = 1 << 16
)

// Registry is the set of live sessions of the multiplexed binding.
//
// An id is never handed out while its session is live, nor while it is among
// the most recent closed ids (DefaultRetiredIDLimit unless changed with
// WithRetiredIDLimit). Older closed ids are forgotten so memory stays bounded
// on a long-running gateway; with uuid v4 ids a repeat beyond that window is
// not a practical concern.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	retired  map[string]struct{}
	// retiredOrder is a FIFO of retired ids, oldest first.
	retiredOrder []string
	retiredLimit int

	newID func() string
	host  SessionHost
	log   *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithHost makes Close clean up the session's event stream on host.
func WithHost(h SessionHost) RegistryOption {
	return func(r *Registry) { r.host = h }
}

// WithLogger sets the logger for session lifecycle events.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithIDGenerator replaces the uuid v4 generator.
func WithIDGenerator(fn func() string) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// WithRetiredIDLimit sets how many closed ids are remembered and refused by
// Create. Non-positive values keep the default.
func WithRetiredIDLimit(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.retiredLimit = n
		}
	}
}

// NewRegistry returns an empty Registry. Without WithHost, Close does no
// stream cleanup and Publish fails with ErrNoHost.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions:     make(map[string]*Session),
		retired:      make(map[string]struct{}),
		retiredLimit: DefaultRetiredIDLimit,
		newID:        uuid.NewString,
		log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create generates a fresh identifier, registers a new session under it and
// activates it, all under the registry lock.
func (r *Registry) Create(ctx context.Context, binding Binding) (*Session, error) {
	r.mu.Lock()
	var id string
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		candidate := r.newID()
		if candidate != "" && !r.usedLocked(candidate) {
			id = candidate
			break
		}
	}
	if id == "" {
		r.mu.Unlock()
		r.log.ErrorContext(ctx, "session.create.fail", slog.String("err", ErrIDExhausted.Error()))
		return nil, ErrIDExhausted
	}

	s := newSession(id, binding)
	r.sessions[id] = s
	s.activate()
	r.mu.Unlock()

	r.log.InfoContext(ctx, "session.create.ok", slog.String("session_id", id), slog.String("binding", string(binding)))
	return s, nil
}

// Lookup returns the live session for id.
func (r *Registry) Lookup(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok || s.Closed() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return s, nil
}

// Alive reports whether id still names a live session.
func (r *Registry) Alive(id string) bool {
	_, err := r.Lookup(id)
	return err == nil
}

// Close removes the session, marks it closed and cleans up its event
// stream. Later lookups of id fail with ErrUnknownSession.
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		r.retireLocked(id)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	// Waits for in-flight Publish calls on s, so none can recreate the
	// stream after the cleanup below.
	s.Close()

	if r.host != nil {
		if err := r.host.CleanupSession(ctx, id); err != nil {
			r.log.WarnContext(ctx, "session.close.cleanup_fail", slog.String("session_id", id), slog.String("err", err.Error()))
			return fmt.Errorf("cleanup session %s: %w", id, err)
		}
	}

	r.log.InfoContext(ctx, "session.close.ok", slog.String("session_id", id))
	return nil
}

// CloseAll closes every live session. A failure on one session is logged and
// does not stop the others; the joined failures are returned.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	var errs []error
	for _, id := range ids {
		if err := r.Close(ctx, id); err != nil && !errors.Is(err, ErrUnknownSession) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publish appends data to the event stream of the live session id. Once the
// session is closed Publish fails with ErrUnknownSession, so a cleaned up
// stream is never recreated.
func (r *Registry) Publish(ctx context.Context, id string, data []byte) (string, error) {
	if r.host == nil {
		return "", ErrNoHost
	}
	s, err := r.Lookup(id)
	if err != nil {
		return "", err
	}
	var eventID string
	err = s.whileOpen(func() error {
		var err error
		eventID, err = r.host.PublishSession(ctx, id, data)
		return err
	})
	if errors.Is(err, errSessionClosed) {
		return "", fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return eventID, err
}

// usedLocked must be called with r.mu held.
func (r *Registry) usedLocked(id string) bool {
	if _, live := r.sessions[id]; live {
		return true
	}
	_, retired := r.retired[id]
	return retired
}

// retireLocked must be called with r.mu held.
func (r *Registry) retireLocked(id string) {
	r.retired[id] = struct{}{}
	r.retiredOrder = append(r.retiredOrder, id)
	for len(r.retiredOrder) > r.retiredLimit {
		delete(r.retired, r.retiredOrder[0])
		r.retiredOrder = r.retiredOrder[1:]
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
