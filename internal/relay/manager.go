package relay

import (
	"sync"

	"github.com/HerbHall/guardian/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSessionBuffer is the outbound queue length per session.
const DefaultSessionBuffer = 256

// SessionManager owns session lifecycles: connect, join, disconnect.
type SessionManager struct {
	dir    *Directory
	buffer int
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager creates a manager whose sessions subscribe through dir.
func NewSessionManager(dir *Directory, buffer int, logger *zap.Logger) *SessionManager {
	if buffer <= 0 {
		buffer = DefaultSessionBuffer
	}
	return &SessionManager{
		dir:      dir,
		buffer:   buffer,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Connect registers a new session for the peer at remote.
func (m *SessionManager) Connect(remote string) *Session {
	s := newSession(uuid.New().String(), remote, m.buffer)
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Debug("session connected", zap.String("session_id", s.id), zap.String("remote", remote))
	return s
}

// Join subscribes the session to a device's events. Joining the same
// device again is harmless.
func (m *SessionManager) Join(s *Session, deviceID string) error {
	if deviceID == "" {
		return models.Invalid("device_id", "is required")
	}
	if err := m.dir.Subscribe(s, deviceID); err != nil {
		return err
	}
	m.logger.Debug("session joined device",
		zap.String("session_id", s.id),
		zap.String("device_id", deviceID),
	)
	return nil
}

// Disconnect terminates the session and drops all of its subscriptions.
// It never waits on fan-out in progress and is safe to call repeatedly.
func (m *SessionManager) Disconnect(s *Session) {
	if !s.terminate() {
		return
	}
	m.dir.UnsubscribeAll(s)

	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()

	m.logger.Debug("session disconnected", zap.String("session_id", s.id))
}

// Get returns a live session by id.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll disconnects every live session.
func (m *SessionManager) CloseAll() {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	for _, s := range all {
		m.Disconnect(s)
	}
	if len(all) > 0 {
		m.logger.Info("closed all sessions", zap.Int("count", len(all)))
	}
}
