package session

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("session not found")

// Store is the persistence contract the session manager requires. All
// operations are atomic at single-account granularity; RevokeByHash is the
// linearization point for concurrent rotation attempts on the same secret.
type Store interface {
	Append(sess *Session, maxActive int) error
	FindByHash(hash string) (*Session, error)
	// RevokeByHash conditionally revokes the active session with the given
	// hash and records its replacement. It reports whether this call
	// performed the revocation; false means another caller got there first
	// or the session was already revoked.
	RevokeByHash(hash, replacedBy string) (bool, error)
	Revoke(accountID, sessionID string) error
	RevokeAll(accountID string) error
	ListActive(accountID string) ([]Session, error)
	// Prune deletes expired sessions and revoked sessions older than the
	// retention window, returning the number of rows removed.
	Prune(retention time.Duration) (int64, error)
}

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Append(sess *Session, maxActive int) error {
	now := time.Now().UTC()

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sess).Error; err != nil {
			return err
		}

		if maxActive <= 0 {
			return nil
		}

		// Cap concurrent sessions per account: revoke the oldest active
		// records beyond the limit.
		var stale []string
		err := tx.Model(&Session{}).
			Where("account_id = ? AND revoked = ? AND expires_at > ?", sess.AccountID, false, now).
			Order("created_at DESC").
			Offset(maxActive).
			Pluck("id", &stale).Error
		if err != nil {
			return err
		}
		if len(stale) == 0 {
			return nil
		}

		return tx.Model(&Session{}).
			Where("id IN ?", stale).
			Updates(map[string]interface{}{"revoked": true, "revoked_at": now}).Error
	})
}

func (s *gormStore) FindByHash(hash string) (*Session, error) {
	var sess Session
	if err := s.db.Where("token_hash = ?", hash).First(&sess).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (s *gormStore) RevokeByHash(hash, replacedBy string) (bool, error) {
	now := time.Now().UTC()

	res := s.db.Model(&Session{}).
		Where("token_hash = ? AND revoked = ?", hash, false).
		Updates(map[string]interface{}{
			"revoked":     true,
			"revoked_at":  now,
			"replaced_by": replacedBy,
		})
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected == 1, nil
}

func (s *gormStore) Revoke(accountID, sessionID string) error {
	now := time.Now().UTC()

	res := s.db.Model(&Session{}).
		Where("id = ? AND account_id = ? AND revoked = ?", sessionID, accountID, false).
		Updates(map[string]interface{}{"revoked": true, "revoked_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}

	return nil
}

func (s *gormStore) RevokeAll(accountID string) error {
	now := time.Now().UTC()

	return s.db.Model(&Session{}).
		Where("account_id = ? AND revoked = ?", accountID, false).
		Updates(map[string]interface{}{"revoked": true, "revoked_at": now}).Error
}

func (s *gormStore) ListActive(accountID string) ([]Session, error) {
	var sessions []Session
	err := s.db.
		Where("account_id = ? AND revoked = ? AND expires_at > ?", accountID, false, time.Now().UTC()).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

func (s *gormStore) Prune(retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)

	res := s.db.
		Where("expires_at < ?", time.Now().UTC()).
		Or("revoked = ? AND revoked_at < ?", true, cutoff).
		Delete(&Session{})

	return res.RowsAffected, res.Error
}
