package session

import (
	"sync"
	"time"

	"github.com/AmyangXYZ/rtseries/pkg/core"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type SessionManager struct {
	engine   core.Engine
	Sessions sync.Map
}

func NewSessionManager(engine core.Engine) *SessionManager {
	return &SessionManager{
		engine: engine,
	}
}

func (m *SessionManager) Start() {
	go m.Housekeeping()

	<-m.engine.Ctx().Done()
	m.RemoveAllSessions()
}

func (m *SessionManager) CreateSession(principal string, conn *websocket.Conn) core.Session {
	session := NewSession(m.engine, uuid.NewString(), principal, conn)
	m.Sessions.Store(session.ID(), session)
	return session
}

func (m *SessionManager) GetSession(id string) core.Session {
	session, exists := m.Sessions.Load(id)
	if !exists {
		return nil
	}
	return session.(core.Session)
}

func (m *SessionManager) GetAllSessions() []core.Session {
	sessions := []core.Session{}
	m.Sessions.Range(func(_, v interface{}) bool {
		sessions = append(sessions, v.(core.Session))
		return true
	})
	return sessions
}

func (m *SessionManager) RemoveSession(id string) {
	if session, ok := m.Sessions.LoadAndDelete(id); ok {
		session.(core.Session).Stop()
	}
}

func (m *SessionManager) RemoveAllSessions() {
	m.Sessions.Range(func(_, v interface{}) bool {
		session := v.(core.Session)
		session.Stop()
		m.Sessions.Delete(session.ID())
		return true
	})
}

// Housekeeping stops sessions that have been idle for their whole lifetime.
func (m *SessionManager) Housekeeping() {
	ticker := time.NewTicker(m.engine.Config().Server.HouseKeepingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.engine.Ctx().Done():
			return
		case <-ticker.C:
			m.Sessions.Range(func(id, v interface{}) bool {
				session := v.(core.Session)
				if session.Lifetime() == 0 {
					session.Stop()
					m.Sessions.Delete(id)
				}
				return true
			})
		}
	}
}
