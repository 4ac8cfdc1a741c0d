package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ============================================================
// Session Manager
// ============================================================

type session struct {
	userID  string
	expires time.Time
}

type SessionManager struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	tokens map[string]session // token -> session
}

// NewSessionManager создаёт менеджер; ttl <= 0 - токены бессрочные.
func NewSessionManager(ttl time.Duration) *SessionManager {
	return &SessionManager{
		ttl:    ttl,
		now:    time.Now,
		tokens: make(map[string]session),
	}
}

func (m *SessionManager) Issue(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	token := uuid.NewString()
	s := session{userID: userID}
	if m.ttl > 0 {
		s.expires = m.now().Add(m.ttl)
	}
	m.tokens[token] = s
	return token
}

func (m *SessionManager) Resolve(token string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.tokens[token]
	if !ok {
		return "", false
	}
	if m.expired(s) {
		delete(m.tokens, token)
		return "", false
	}
	return s.userID, true
}

func (m *SessionManager) Revoke(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
}

// Sweep удаляет просроченные токены, возвращает их число.
func (m *SessionManager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for token, s := range m.tokens {
		if m.expired(s) {
			delete(m.tokens, token)
			n++
		}
	}
	return n
}

func (m *SessionManager) expired(s session) bool {
	return !s.expires.IsZero() && !m.now().Before(s.expires)
}
