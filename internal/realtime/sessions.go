package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/creditchat-backend/internal/observability"
	"github.com/yungbote/creditchat-backend/internal/platform/logger"
)

// SessionManager tracks open websocket sessions per user.
type SessionManager struct {
	mu     sync.RWMutex
	log    *logger.Logger
	active map[uuid.UUID]map[uuid.UUID]*Conn
}

func NewSessionManager(log *logger.Logger) *SessionManager {
	return &SessionManager{
		log:    log.With("component", "SessionManager"),
		active: make(map[uuid.UUID]map[uuid.UUID]*Conn),
	}
}

func (m *SessionManager) Register(conn *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, ok := m.active[conn.UserID]
	if !ok {
		sessions = make(map[uuid.UUID]*Conn)
		m.active[conn.UserID] = sessions
	}
	sessions[conn.ID] = conn
	observability.Current().RealtimeSessionOpened()
	m.log.Info("Realtime session registered", "user_id", conn.UserID, "conn_id", conn.ID)
}

// Unregister removes conn only if it is still the registered session.
func (m *SessionManager) Unregister(conn *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, ok := m.active[conn.UserID]
	if !ok {
		return
	}
	if current, exists := sessions[conn.ID]; exists && current == conn {
		delete(sessions, conn.ID)
		if len(sessions) == 0 {
			delete(m.active, conn.UserID)
		}
		observability.Current().RealtimeSessionClosed()
		m.log.Info("Realtime session unregistered", "user_id", conn.UserID, "conn_id", conn.ID)
	}
}

func (m *SessionManager) Count(userID uuid.UUID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active[userID])
}

// CloseUser terminates every session of a user.
func (m *SessionManager) CloseUser(userID uuid.UUID) {
	m.mu.Lock()
	sessions := m.active[userID]
	delete(m.active, userID)
	m.mu.Unlock()

	for _, conn := range sessions {
		conn.Close("session closed")
		observability.Current().RealtimeSessionClosed()
	}
}

// CloseAll is used on shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	all := m.active
	m.active = make(map[uuid.UUID]map[uuid.UUID]*Conn)
	m.mu.Unlock()

	for _, sessions := range all {
		for _, conn := range sessions {
			conn.Close("server shutting down")
			observability.Current().RealtimeSessionClosed()
		}
	}
}
