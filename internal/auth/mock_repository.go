package auth

import (
	"sync"
	"time"
)

type mockRepository struct {
	mu         sync.RWMutex
	byID       map[string]*Account
	byEmail    map[string]string
	byUsername map[string]string
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		byID:       make(map[string]*Account),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
	}
}

func (r *mockRepository) Create(acc *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[acc.Email]; exists {
		return ErrAccountExists
	}
	if _, exists := r.byUsername[acc.Username]; exists {
		return ErrAccountExists
	}

	clone := *acc
	r.byID[clone.ID] = &clone
	r.byEmail[clone.Email] = clone.ID
	r.byUsername[clone.Username] = clone.ID
	return nil
}

func (r *mockRepository) GetByID(id string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cloneLocked(id)
}

func (r *mockRepository) GetByEmail(email string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return r.cloneLocked(id)
}

func (r *mockRepository) GetByUsername(username string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return r.cloneLocked(id)
}

func (r *mockRepository) GetByVerificationCode(code string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now().UTC()
	for _, acc := range r.byID {
		if acc.VerificationCode == code && code != "" &&
			acc.VerificationCodeExpiresAt != nil && acc.VerificationCodeExpiresAt.After(now) {
			clone := *acc
			return &clone, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (r *mockRepository) GetByResetToken(token string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now().UTC()
	for _, acc := range r.byID {
		if acc.ResetToken == token && token != "" &&
			acc.ResetTokenExpiresAt != nil && acc.ResetTokenExpiresAt.After(now) {
			clone := *acc
			return &clone, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (r *mockRepository) MarkVerified(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	acc.Verified = true
	acc.VerificationCode = ""
	acc.VerificationCodeExpiresAt = nil
	return nil
}

func (r *mockRepository) SetResetToken(id, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	acc.ResetToken = token
	acc.ResetTokenExpiresAt = &expiresAt
	return nil
}

func (r *mockRepository) UpdatePassword(id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	acc.PasswordHash = passwordHash
	acc.ResetToken = ""
	acc.ResetTokenExpiresAt = nil
	return nil
}

func (r *mockRepository) RecordLogin(id, sourceAddr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.byID[id]
	if !ok {
		return ErrAccountNotFound
	}

	now := time.Now().UTC()
	acc.LastLoginAt = &now
	if sourceAddr != "" {
		acc.LastLoginAddrs = append([]string{sourceAddr}, acc.LastLoginAddrs...)
		if len(acc.LastLoginAddrs) > maxAddrHistory {
			acc.LastLoginAddrs = acc.LastLoginAddrs[:maxAddrHistory]
		}
	}
	return nil
}

func (r *mockRepository) RecordLoginFailure(id string, count int, lockUntil *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	acc.FailedLoginCount = count
	acc.LockUntil = lockUntil
	return nil
}

func (r *mockRepository) ClearLoginFailures(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc, ok := r.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	acc.FailedLoginCount = 0
	acc.LockUntil = nil
	return nil
}

// cloneLocked returns a copy to prevent external mutation. Caller holds a
// read lock.
func (r *mockRepository) cloneLocked(id string) (*Account, error) {
	acc, ok := r.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	clone := *acc
	return &clone, nil
}
