package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher wraps bcrypt with a configurable cost factor.
type Hasher struct {
	cost  int
	dummy string
}

// NewHasher returns a Hasher using the given bcrypt cost. Costs below the
// bcrypt minimum fall back to bcrypt.DefaultCost.
func NewHasher(cost int) (*Hasher, error) {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	if cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d exceeds maximum %d", cost, bcrypt.MaxCost)
	}

	// Precomputed digest used to equalize timing when no account matches.
	dummy, err := bcrypt.GenerateFromPassword([]byte("timing-equalization-dummy"), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy digest: %w", err)
	}

	return &Hasher{cost: cost, dummy: string(dummy)}, nil
}

func (h *Hasher) Hash(plaintext string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	return string(bytes), err
}

// Verify reports whether plaintext matches the stored digest. bcrypt's
// comparison is constant-time with respect to the digest contents.
func (h *Hasher) Verify(plaintext, digest string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext))
	return err == nil
}

// VerifyDummy burns the same amount of work as a real verification. Called
// when the account does not exist so that lookups cannot be distinguished
// from wrong passwords by latency.
func (h *Hasher) VerifyDummy(plaintext string) {
	_ = bcrypt.CompareHashAndPassword([]byte(h.dummy), []byte(plaintext))
}
