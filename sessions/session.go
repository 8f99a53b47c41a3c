package sessions

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var errSessionClosed = errors.New("session closed")

// Binding names the transport that owns a session.
type Binding string

const (
	BindingStdio         Binding = "stdio"
	BindingStreamingHTTP Binding = "streaminghttp"
)

// State is the lifecycle state of a session.
type State string

const (
	StatePending State = "pending"
	StateActive  State = "active"
	StateClosed  State = "closed"
)

// Session is the per-client context handed to the dispatcher and tool
// handlers. Its identity fields are immutable.
type Session struct {
	id        string
	binding   Binding
	createdAt time.Time

	mu              sync.RWMutex
	state           State
	protocolVersion string
	clientName      string
	done            chan struct{}
}

func newSession(id string, binding Binding) *Session {
	return &Session{
		id:        id,
		binding:   binding,
		createdAt: time.Now(),
		state:     StatePending,
		done:      make(chan struct{}),
	}
}

// NewImplicit returns an active session that is not tracked by any
// Registry. The persistent binding uses it for its single channel.
func NewImplicit(binding Binding) *Session {
	s := newSession(uuid.NewString(), binding)
	s.activate()
	return s
}

func (s *Session) ID() string           { return s.id }
func (s *Session) Binding() Binding     { return s.binding }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool { return s.State() == StateClosed }

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} { return s.done }

// ProtocolVersion returns the version negotiated during initialize, if any.
func (s *Session) ProtocolVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.protocolVersion
}

// ClientName returns the client name reported during initialize, if any.
func (s *Session) ClientName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientName
}

// RecordInitialize stores the outcome of the initialize handshake.
func (s *Session) RecordInitialize(protocolVersion, clientName string) {
	s.mu.Lock()
	s.protocolVersion = protocolVersion
	s.clientName = clientName
	s.mu.Unlock()
}

func (s *Session) activate() {
	s.mu.Lock()
	if s.state == StatePending {
		s.state = StateActive
	}
	s.mu.Unlock()
}

// Close marks the session closed. It reports whether this call performed the
// transition.
func (s *Session) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.state = StateClosed
	close(s.done)
	return true
}

// whileOpen runs fn while holding off Close. It returns errSessionClosed
// without calling fn when the session is already closed.
func (s *Session) whileOpen(fn func() error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == StateClosed {
		return errSessionClosed
	}
	return fn()
}
