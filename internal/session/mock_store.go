package session

import (
	"sort"
	"sync"
	"time"
)

type mockStore struct {
	mu       sync.Mutex
	sessions map[string]*Session // keyed by token hash
}

func newMockStore() *mockStore {
	return &mockStore{
		sessions: make(map[string]*Session),
	}
}

func (m *mockStore) Append(sess *Session, maxActive int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *sess
	m.sessions[clone.TokenHash] = &clone

	if maxActive <= 0 {
		return nil
	}

	now := time.Now().UTC()
	var active []*Session
	for _, s := range m.sessions {
		if s.AccountID == sess.AccountID && s.Active(now) {
			active = append(active, s)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	for _, s := range active[min(maxActive, len(active)):] {
		s.Revoked = true
		s.RevokedAt = &now
	}

	return nil
}

func (m *mockStore) FindByHash(hash string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[hash]
	if !ok {
		return nil, ErrSessionNotFound
	}
	clone := *sess
	return &clone, nil
}

func (m *mockStore) RevokeByHash(hash, replacedBy string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[hash]
	if !ok || sess.Revoked {
		return false, nil
	}

	now := time.Now().UTC()
	sess.Revoked = true
	sess.RevokedAt = &now
	sess.ReplacedBy = replacedBy
	return true, nil
}

func (m *mockStore) Revoke(accountID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sess := range m.sessions {
		if sess.ID == sessionID && sess.AccountID == accountID && !sess.Revoked {
			now := time.Now().UTC()
			sess.Revoked = true
			sess.RevokedAt = &now
			return nil
		}
	}
	return ErrSessionNotFound
}

func (m *mockStore) RevokeAll(accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for _, sess := range m.sessions {
		if sess.AccountID == accountID && !sess.Revoked {
			sess.Revoked = true
			sess.RevokedAt = &now
		}
	}
	return nil
}

func (m *mockStore) ListActive(accountID string) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var active []Session
	for _, sess := range m.sessions {
		if sess.AccountID == accountID && sess.Active(now) {
			active = append(active, *sess)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	return active, nil
}

func (m *mockStore) Prune(retention time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	cutoff := now.Add(-retention)

	var removed int64
	for hash, sess := range m.sessions {
		expired := sess.ExpiresAt.Before(now)
		staleRevoked := sess.Revoked && sess.RevokedAt != nil && sess.RevokedAt.Before(cutoff)
		if expired || staleRevoked {
			delete(m.sessions, hash)
			removed++
		}
	}

	return removed, nil
}
