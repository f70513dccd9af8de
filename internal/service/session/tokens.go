package session

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

type tokenMeta struct {
	DeviceID  string
	ExpiresAt time.Time
}

type tokenManager struct {
	mu     sync.RWMutex
	tokens map[string]tokenMeta
	now    func() time.Time
}

func newTokenManager() *tokenManager {
	return &tokenManager{
		tokens: make(map[string]tokenMeta),
		now:    time.Now,
	}
}

func (m *tokenManager) Issue(deviceID string, ttl time.Duration) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", err
	}
	meta := tokenMeta{
		DeviceID:  deviceID,
		ExpiresAt: m.now().Add(ttl),
	}
	m.mu.Lock()
	m.tokens[token] = meta
	m.mu.Unlock()
	return token, nil
}

func (m *tokenManager) Validate(token string) (tokenMeta, bool) {
	m.mu.RLock()
	meta, ok := m.tokens[token]
	m.mu.RUnlock()
	if !ok {
		return tokenMeta{}, false
	}
	if m.now().After(meta.ExpiresAt) {
		m.mu.Lock()
		delete(m.tokens, token)
		m.mu.Unlock()
		return tokenMeta{}, false
	}
	return meta, true
}

// Expire drops expired tokens and returns the device ids that no longer
// have a live token.
func (m *tokenManager) Expire() []string {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	live := make(map[string]bool)
	dead := make(map[string]bool)
	for token, meta := range m.tokens {
		if now.After(meta.ExpiresAt) {
			delete(m.tokens, token)
			dead[meta.DeviceID] = true
			continue
		}
		live[meta.DeviceID] = true
	}
	out := make([]string, 0, len(dead))
	for id := range dead {
		if !live[id] {
			out = append(out, id)
		}
	}
	return out
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
