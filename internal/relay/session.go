package relay

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrSessionClosed is returned for operations on a terminated session.
	ErrSessionClosed = errors.New("session closed")
	// ErrBufferFull means the session's outbound queue had no room.
	ErrBufferFull = errors.New("session outbound buffer full")
)

// SessionState is the lifecycle state of a client session.
type SessionState int

const (
	StateConnected SessionState = iota
	StateSubscribed
	StateTerminated
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Session is one connected client. Its outbound channel is drained by the
// transport's writer goroutine and closed exactly once, on termination.
type Session struct {
	id          string
	remote      string
	connectedAt time.Time

	// mu guards state, devices and sends on out. The directory takes it
	// before any shard lock.
	mu      sync.Mutex
	state   SessionState
	devices map[string]struct{}
	out     chan Message
}

func newSession(id, remote string, buffer int) *Session {
	return &Session{
		id:          id,
		remote:      remote,
		connectedAt: time.Now(),
		devices:     make(map[string]struct{}),
		out:         make(chan Message, buffer),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Remote returns the peer address given at connect time.
func (s *Session) Remote() string { return s.remote }

// Outbound is the queue the transport drains. It is closed when the
// session terminates.
func (s *Session) Outbound() <-chan Message { return s.out }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Devices returns the device ids the session is subscribed to.
func (s *Session) Devices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.devices))
	for id := range s.devices {
		out = append(out, id)
	}
	return out
}

// Enqueue queues m without blocking. A send racing termination either
// lands before the channel closes or fails with ErrSessionClosed.
func (s *Session) Enqueue(m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return ErrSessionClosed
	}
	select {
	case s.out <- m:
		return nil
	default:
		return ErrBufferFull
	}
}

// terminate moves the session to StateTerminated and closes the outbound
// channel. Only the first call returns true.
func (s *Session) terminate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return false
	}
	s.state = StateTerminated
	close(s.out)
	return true
}
