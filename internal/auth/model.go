package auth

import (
	"time"
)

// Account is the identity record. Email is stored case-normalized; the
// password is stored only as a bcrypt digest.
type Account struct {
	ID           string `gorm:"primaryKey;size:36"`
	Username     string `gorm:"uniqueIndex;not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Verified     bool   `gorm:"default:false"`

	VerificationCode          string
	VerificationCodeExpiresAt *time.Time
	ResetToken                string
	ResetTokenExpiresAt       *time.Time

	FailedLoginCount int
	LockUntil        *time.Time
	LastLoginAt      *time.Time

	// LastLoginAddrs holds the most recent source addresses, newest first,
	// capped at maxAddrHistory.
	LastLoginAddrs []string `gorm:"serializer:json;type:jsonb"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Account) TableName() string {
	return "accounts"
}

// maxAddrHistory bounds the per-account source-address history.
const maxAddrHistory = 5
