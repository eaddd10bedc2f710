package session

import (
	"time"
)

// Session is one refresh-token record. TokenHash is the SHA-256 of the raw
// opaque secret; the raw secret itself is never persisted.
type Session struct {
	ID         string `gorm:"primaryKey;size:36"`
	AccountID  string `gorm:"index;size:36;not null"`
	TokenHash  string `gorm:"uniqueIndex;size:64;not null"`
	UserAgent  string
	SourceAddr string
	Revoked    bool `gorm:"default:false"`
	RevokedAt  *time.Time
	ReplacedBy string `gorm:"size:36"`
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

func (Session) TableName() string {
	return "sessions"
}

// Active reports whether the session is usable at the given instant.
// Revocation is monotonic; expiry is a time predicate, not a transition.
func (s *Session) Active(now time.Time) bool {
	return !s.Revoked && s.ExpiresAt.After(now)
}
