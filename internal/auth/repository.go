package auth

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
)

type Repository interface {
	Create(acc *Account) error
	GetByID(id string) (*Account, error)
	GetByEmail(email string) (*Account, error)
	GetByUsername(username string) (*Account, error)
	// GetByVerificationCode and GetByResetToken match only unexpired tokens.
	GetByVerificationCode(code string) (*Account, error)
	GetByResetToken(token string) (*Account, error)
	MarkVerified(id string) error
	SetResetToken(id, token string, expiresAt time.Time) error
	// UpdatePassword replaces the digest and clears any pending reset token.
	UpdatePassword(id, passwordHash string) error
	RecordLogin(id, sourceAddr string) error
	RecordLoginFailure(id string, count int, lockUntil *time.Time) error
	ClearLoginFailures(id string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(acc *Account) error {
	if err := r.db.Create(acc).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAccountExists
		}
		return err
	}
	return nil
}

func (r *repository) GetByID(id string) (*Account, error) {
	return r.getOne("id = ?", id)
}

func (r *repository) GetByEmail(email string) (*Account, error) {
	return r.getOne("email = ?", email)
}

func (r *repository) GetByUsername(username string) (*Account, error) {
	return r.getOne("username = ?", username)
}

func (r *repository) GetByVerificationCode(code string) (*Account, error) {
	return r.getOne("verification_code = ? AND verification_code_expires_at > ?",
		code, time.Now().UTC())
}

func (r *repository) GetByResetToken(token string) (*Account, error) {
	return r.getOne("reset_token = ? AND reset_token_expires_at > ?",
		token, time.Now().UTC())
}

func (r *repository) getOne(query string, args ...interface{}) (*Account, error) {
	var acc Account
	if err := r.db.Where(query, args...).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acc, nil
}

func (r *repository) MarkVerified(id string) error {
	return r.db.Model(&Account{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"verified":                     true,
			"verification_code":            "",
			"verification_code_expires_at": nil,
		}).Error
}

func (r *repository) SetResetToken(id, token string, expiresAt time.Time) error {
	return r.db.Model(&Account{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"reset_token":            token,
			"reset_token_expires_at": expiresAt,
		}).Error
}

func (r *repository) UpdatePassword(id, passwordHash string) error {
	return r.db.Model(&Account{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"password_hash":          passwordHash,
			"reset_token":            "",
			"reset_token_expires_at": nil,
		}).Error
}

func (r *repository) RecordLogin(id, sourceAddr string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var acc Account
		if err := tx.Where("id = ?", id).First(&acc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return err
		}

		now := time.Now().UTC()
		acc.LastLoginAt = &now
		if sourceAddr != "" {
			acc.LastLoginAddrs = append([]string{sourceAddr}, acc.LastLoginAddrs...)
			if len(acc.LastLoginAddrs) > maxAddrHistory {
				acc.LastLoginAddrs = acc.LastLoginAddrs[:maxAddrHistory]
			}
		}

		// Struct-based update so the JSON serializer applies to the
		// address history column.
		return tx.Model(&acc).
			Select("last_login_at", "last_login_addrs").
			Updates(&acc).Error
	})
}

func (r *repository) RecordLoginFailure(id string, count int, lockUntil *time.Time) error {
	return r.db.Model(&Account{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"failed_login_count": count,
			"lock_until":         lockUntil,
		}).Error
}

func (r *repository) ClearLoginFailures(id string) error {
	return r.db.Model(&Account{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"failed_login_count": 0,
			"lock_until":         nil,
		}).Error
}
