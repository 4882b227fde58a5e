package wizard

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound - 없거나 만료된 세션
var ErrSessionNotFound = errors.New("session not found")

// ServerMetrics - 세션 메트릭
type ServerMetrics struct {
	TotalSessions   int       `json:"totalSessions"`
	ActiveSessions  int       `json:"activeSessions"`
	ExpiredSessions int       `json:"expiredSessions"`
	StartTime       time.Time `json:"startTime"`
}

// Manager - 세션 매니저. 세션 id(UUID) → Session
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
	metrics  ServerMetrics

	deps Deps
	ttl  time.Duration
	hub  *Hub
}

func NewManager(deps Deps, ttl time.Duration, hub *Hub) *Manager {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if hub != nil && deps.Publisher == nil {
		deps.Publisher = hub
	}
	return &Manager{
		sessions: make(map[string]*Session),
		metrics:  ServerMetrics{StartTime: deps.Now()},
		deps:     deps,
		ttl:      ttl,
		hub:      hub,
	}
}

// Create - 새 위자드 세션
func (m *Manager) Create() *Session {
	session := NewSession(uuid.New().String(), m.deps)

	m.mutex.Lock()
	m.sessions[session.ID] = session
	m.metrics.TotalSessions++
	m.metrics.ActiveSessions++
	total, active := m.metrics.TotalSessions, m.metrics.ActiveSessions
	m.mutex.Unlock()

	log.Printf("✅ [Wizard] Created new session: %s (Total: %d, Active: %d)", session.ID, total, active)
	return session
}

// Get - 세션 조회 + 활동 시간 갱신
func (m *Manager) Get(id string) (*Session, error) {
	m.mutex.RLock()
	session, exists := m.sessions[id]
	m.mutex.RUnlock()

	if !exists {
		return nil, ErrSessionNotFound
	}
	session.touch()
	return session, nil
}

// Remove - 세션 폐기
func (m *Manager) Remove(id string) bool {
	m.mutex.Lock()
	session, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
		m.metrics.ActiveSessions--
	}
	m.mutex.Unlock()

	if !exists {
		return false
	}
	m.closeSession(session)
	return true
}

func (m *Manager) closeSession(session *Session) {
	session.Close()
	if m.hub != nil {
		m.hub.CloseSession(session.ID)
	}
}

// CleanupExpired - ttl 동안 활동이 없는 세션 정리
func (m *Manager) CleanupExpired() int {
	now := m.deps.Now()

	m.mutex.Lock()
	var expired []*Session
	for id, session := range m.sessions {
		if now.Sub(session.idleSince()) > m.ttl {
			delete(m.sessions, id)
			expired = append(expired, session)
		}
	}
	m.metrics.ActiveSessions -= len(expired)
	m.metrics.ExpiredSessions += len(expired)
	active := m.metrics.ActiveSessions
	m.mutex.Unlock()

	for _, session := range expired {
		m.closeSession(session)
		log.Printf("⏰ [Wizard] Cleaned up inactive session: %s (Age: %v)", session.ID, now.Sub(session.createdAt))
	}
	if len(expired) > 0 {
		log.Printf("🧼 [Wizard] Cleaned up %d inactive sessions (Active: %d)", len(expired), active)
	}
	return len(expired)
}

// StartCleanupRoutine - ctx 가 끝날 때까지 주기적으로 만료 세션 정리
func (m *Manager) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CleanupExpired()
			}
		}
	}()

	log.Printf("🔄 [Wizard] Started session cleanup routine (Interval: %v, TTL: %v)", interval, m.ttl)
}

// Metrics - 메트릭 스냅샷
func (m *Manager) Metrics() ServerMetrics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.metrics
}
