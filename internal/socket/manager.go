// Package socket provides the WebSocket chat transport and its session registry.
package socket

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// SessionManager tracks active WebSocket connections per user and tab session.
type SessionManager struct {
	mu     sync.RWMutex
	active map[int64]map[string]*websocket.Conn
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		active: make(map[int64]map[string]*websocket.Conn),
	}
}

// GetActive returns the active connection for a user and session.
func (m *SessionManager) GetActive(userID int64, sessionID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessions, ok := m.active[userID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Count returns the number of open connections.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}

// Register adds a connection, replacing any previous one for the same session.
// The replaced connection is closed after the lock is released.
func (m *SessionManager) Register(userID int64, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	if _, exists := m.active[userID]; !exists {
		m.active[userID] = make(map[string]*websocket.Conn)
	}
	existing := m.active[userID][sessionID]
	m.active[userID][sessionID] = conn
	m.mu.Unlock()

	if existing != nil && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}
	slog.Info("Chat session registered", "user_id", userID, "session_id", sessionID)
}

// Unregister removes a connection if it is still the current one for the session.
func (m *SessionManager) Unregister(userID int64, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessions, ok := m.active[userID]; ok {
		if current, exists := sessions[sessionID]; exists && current == conn {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(m.active, userID)
			}
			slog.Info("Chat session unregistered", "user_id", userID, "session_id", sessionID)
		}
	}
}

// CloseAll terminates every session, used during shutdown. Close handshakes
// run concurrently and outside the lock.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	var conns []*websocket.Conn
	for userID, sessions := range m.active {
		for _, conn := range sessions {
			conns = append(conns, conn)
		}
		delete(m.active, userID)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c *websocket.Conn) {
			defer wg.Done()
			_ = c.Close(websocket.StatusGoingAway, "server shutting down")
		}(conn)
	}
	wg.Wait()
}
