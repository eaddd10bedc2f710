package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Sh1v4nk/Simple-Authentication/internal/config"
	"github.com/Sh1v4nk/Simple-Authentication/internal/token"
)

// Manager owns the session lifecycle: issuing token pairs, rotating refresh
// secrets on use, detecting reuse of rotated secrets, and revocation.
type Manager struct {
	cfg   *config.AuthConfig
	log   *zap.Logger
	codec *token.Codec
	store Store
}

// Issued is the result of issuing or rotating a session. RefreshSecret is
// the raw opaque secret and exists only in this value; the store keeps its
// hash.
type Issued struct {
	SessionID        string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshSecret    string
	RefreshExpiresAt time.Time
}

func NewManager(cfg *config.AuthConfig, log *zap.Logger, codec *token.Codec, store Store) *Manager {
	return &Manager{
		cfg:   cfg,
		log:   log,
		codec: codec,
		store: store,
	}
}

// Issue mints an access token and a fresh refresh session for the account.
func (m *Manager) Issue(accountID, userAgent, sourceAddr string) (*Issued, error) {
	secret, err := m.codec.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		TokenHash:  secret.Hash,
		UserAgent:  userAgent,
		SourceAddr: sourceAddr,
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  secret.ExpiresAt,
	}

	if err := m.store.Append(sess, m.cfg.MaxActiveSessions); err != nil {
		return nil, err
	}

	accessToken, accessExp, err := m.codec.IssueAccess(accountID)
	if err != nil {
		return nil, err
	}

	return &Issued{
		SessionID:        sess.ID,
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshSecret:    secret.Raw,
		RefreshExpiresAt: secret.ExpiresAt,
	}, nil
}

// VerifyAccess is the stateless fast path: signature and expiry only, no
// store round trip.
func (m *Manager) VerifyAccess(accessToken string) (string, error) {
	return m.codec.VerifyAccess(accessToken)
}

// Refresh exchanges a valid refresh secret for a new token pair, revoking
// the presented session (rotation). A secret whose session is already
// revoked is a reuse signal: a rotated token has come back, so every
// session for that account is revoked to force re-authentication.
//
// Two racing calls with the same secret resolve deterministically: the
// conditional revoke in the store admits exactly one winner; the loser
// observes ErrRefreshRevoked.
func (m *Manager) Refresh(rawSecret, userAgent, sourceAddr string) (*Issued, error) {
	hash := token.HashSecret(rawSecret)

	sess, err := m.store.FindByHash(hash)
	if err != nil {
		if err == ErrSessionNotFound {
			return nil, ErrRefreshNotFound
		}
		return nil, err
	}

	if sess.Revoked {
		m.log.Warn("revoked refresh secret presented, revoking all sessions",
			zap.String("account_id", sess.AccountID),
			zap.String("session_id", sess.ID),
			zap.String("source", sourceAddr))
		if err := m.store.RevokeAll(sess.AccountID); err != nil {
			m.log.Error("failed to revoke sessions after reuse",
				zap.String("account_id", sess.AccountID),
				zap.Error(err))
		}
		return nil, ErrRefreshRevoked
	}

	now := time.Now().UTC()
	if !sess.ExpiresAt.After(now) {
		return nil, ErrRefreshExpired
	}

	secret, err := m.codec.NewRefreshSecret()
	if err != nil {
		return nil, err
	}
	successorID := uuid.NewString()

	won, err := m.store.RevokeByHash(hash, successorID)
	if err != nil {
		return nil, err
	}
	if !won {
		// Lost a rotation race on the same secret.
		return nil, ErrRefreshRevoked
	}

	successor := &Session{
		ID:         successorID,
		AccountID:  sess.AccountID,
		TokenHash:  secret.Hash,
		UserAgent:  userAgent,
		SourceAddr: sourceAddr,
		CreatedAt:  now,
		ExpiresAt:  secret.ExpiresAt,
	}
	if err := m.store.Append(successor, m.cfg.MaxActiveSessions); err != nil {
		return nil, err
	}

	accessToken, accessExp, err := m.codec.IssueAccess(sess.AccountID)
	if err != nil {
		return nil, err
	}

	return &Issued{
		SessionID:        successor.ID,
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshSecret:    secret.Raw,
		RefreshExpiresAt: secret.ExpiresAt,
	}, nil
}

// RevokeBySecret revokes the single session matching the presented refresh
// secret (single-device logout).
func (m *Manager) RevokeBySecret(rawSecret string) error {
	hash := token.HashSecret(rawSecret)

	sess, err := m.store.FindByHash(hash)
	if err != nil {
		if err == ErrSessionNotFound {
			return ErrRefreshNotFound
		}
		return err
	}

	return m.store.Revoke(sess.AccountID, sess.ID)
}

// RevokeOne revokes a single session by ID.
func (m *Manager) RevokeOne(accountID, sessionID string) error {
	return m.store.Revoke(accountID, sessionID)
}

// RevokeAll revokes every session for the account (logout everywhere).
func (m *Manager) RevokeAll(accountID string) error {
	return m.store.RevokeAll(accountID)
}

// ListDevices returns the account's active sessions, newest first.
func (m *Manager) ListDevices(accountID string) ([]Session, error) {
	return m.store.ListActive(accountID)
}

// RunCleanup prunes expired sessions and revoked records past the audit
// retention window on a fixed interval, independent of request handling.
func (m *Manager) RunCleanup(ctx context.Context) {
	interval := m.cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := m.store.Prune(m.cfg.RevokedRetention)
			if err != nil {
				m.log.Error("session cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				m.log.Info("pruned stale sessions", zap.Int64("removed", removed))
			}
		}
	}
}
