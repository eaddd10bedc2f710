package auth

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Sh1v4nk/Simple-Authentication/internal/config"
	"github.com/Sh1v4nk/Simple-Authentication/internal/lockout"
	"github.com/Sh1v4nk/Simple-Authentication/internal/mailer"
	"github.com/Sh1v4nk/Simple-Authentication/internal/password"
	"github.com/Sh1v4nk/Simple-Authentication/internal/session"
	"github.com/Sh1v4nk/Simple-Authentication/internal/token"
)

func newTestLogger(t *testing.T) *zap.Logger {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return logger
}

func newTestConfig() *config.AppConfig {
	return &config.AppConfig{
		Auth: config.AuthConfig{
			JWTSecret:                "test-secret-key",
			AccessTokenDuration:      15 * time.Minute,
			RefreshTokenDuration:     24 * time.Hour,
			RefreshSecretBytes:       32,
			BcryptCost:               bcrypt.MinCost,
			PasswordMinLength:        8,
			MaxActiveSessions:        5,
			RevokedRetention:         24 * time.Hour,
			VerificationCodeDuration: 15 * time.Minute,
			ResetTokenDuration:       time.Hour,
		},
		Lockout: config.LockoutConfig{
			BaseDuration:     5 * time.Minute,
			AddressWindow:    15 * time.Minute,
			MaxEntries:       100,
			CounterTTL:       24 * time.Hour,
			RevealRetryAfter: true,
		},
	}
}

// testEnv bundles a Service with the fakes behind it so tests can reach
// into each collaborator.
type testEnv struct {
	cfg      *config.AppConfig
	service  *Service
	repo     *mockRepository
	hasher   *password.Hasher
	sessions *session.Manager
	store    *memorySessionStore
	guard    *lockout.Guard
	mail     *captureSender
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithConfig(t, newTestConfig())
}

func newTestEnvWithConfig(t *testing.T, cfg *config.AppConfig) *testEnv {
	log := newTestLogger(t)

	hasher, err := password.NewHasher(cfg.Auth.BcryptCost)
	require.NoError(t, err)

	codec, err := token.NewCodec(&cfg.Auth)
	require.NoError(t, err)

	repo := newMockRepository()
	store := newMemorySessionStore()
	sessions := session.NewManager(&cfg.Auth, log, codec, store)
	guard := lockout.NewGuard(&cfg.Lockout, log)
	mail := &captureSender{}

	svc := NewService(&cfg.Auth, log, repo, hasher, sessions, guard, mail)

	return &testEnv{
		cfg:      cfg,
		service:  svc,
		repo:     repo,
		hasher:   hasher,
		sessions: sessions,
		store:    store,
		guard:    guard,
		mail:     mail,
	}
}

func newTestHandler(t *testing.T) (*Handler, *testEnv) {
	env := newTestEnv(t)
	h := NewHandler(env.cfg, env.service, newTestLogger(t))
	return h, env
}

type sentMail struct {
	kind  mailer.Kind
	email string
	token string
}

type captureSender struct {
	mu    sync.Mutex
	sends []sentMail
}

func (c *captureSender) Send(_ context.Context, kind mailer.Kind, _, email, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, sentMail{kind: kind, email: email, token: token})
	return nil
}

func (c *captureSender) last() (sentMail, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sends) == 0 {
		return sentMail{}, false
	}
	return c.sends[len(c.sends)-1], true
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sends)
}

// memorySessionStore implements session.Store for service-level tests.
type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{sessions: make(map[string]*session.Session)}
}

func (m *memorySessionStore) Append(sess *session.Session, maxActive int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *sess
	m.sessions[clone.TokenHash] = &clone

	if maxActive <= 0 {
		return nil
	}

	now := time.Now().UTC()
	var active []*session.Session
	for _, s := range m.sessions {
		if s.AccountID == sess.AccountID && s.Active(now) {
			active = append(active, s)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	if len(active) > maxActive {
		for _, s := range active[maxActive:] {
			s.Revoked = true
			s.RevokedAt = &now
		}
	}
	return nil
}

func (m *memorySessionStore) FindByHash(hash string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[hash]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	clone := *sess
	return &clone, nil
}

func (m *memorySessionStore) RevokeByHash(hash, replacedBy string) (bool, error) {
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

func (m *memorySessionStore) Revoke(accountID, sessionID string) error {
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
	return session.ErrSessionNotFound
}

func (m *memorySessionStore) RevokeAll(accountID string) error {
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

func (m *memorySessionStore) ListActive(accountID string) ([]session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var active []session.Session
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

func (m *memorySessionStore) Prune(retention time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	cutoff := now.Add(-retention)
	var removed int64
	for hash, sess := range m.sessions {
		if sess.ExpiresAt.Before(now) || (sess.Revoked && sess.RevokedAt != nil && sess.RevokedAt.Before(cutoff)) {
			delete(m.sessions, hash)
			removed++
		}
	}
	return removed, nil
}
