package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Sh1v4nk/Simple-Authentication/internal/config"
)

const kindAccess = "access"

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenInvalid   = errors.New("invalid token")
	ErrTokenWrongKind = errors.New("wrong token kind")
)

// Codec signs and verifies access tokens and generates opaque refresh
// secrets. The signing secret is loaded once at startup; a missing secret is
// a fatal configuration error, never a per-request condition.
type Codec struct {
	secret       []byte
	accessTTL    time.Duration
	refreshTTL   time.Duration
	refreshBytes int
}

type Claims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

func NewCodec(cfg *config.AuthConfig) (*Codec, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is not configured")
	}

	refreshBytes := cfg.RefreshSecretBytes
	if refreshBytes < 32 {
		refreshBytes = 32
	}

	return &Codec{
		secret:       []byte(cfg.JWTSecret),
		accessTTL:    cfg.AccessTokenDuration,
		refreshTTL:   cfg.RefreshTokenDuration,
		refreshBytes: refreshBytes,
	}, nil
}

// IssueAccess signs a short-lived access token for the given account.
func (c *Codec) IssueAccess(accountID string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(c.accessTTL)

	claims := &Claims{
		Kind: kindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// VerifyAccess checks signature, expiry, and token kind, returning the
// subject account ID.
func (c *Codec) VerifyAccess(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}

	if !token.Valid {
		return "", ErrTokenInvalid
	}

	if claims.Kind != kindAccess {
		return "", ErrTokenWrongKind
	}

	return claims.Subject, nil
}

// RefreshSecret holds a freshly generated opaque refresh secret. Raw is
// returned to the issuing call exactly once; only Hash is ever persisted.
type RefreshSecret struct {
	Raw       string
	Hash      string
	ExpiresAt time.Time
}

// NewRefreshSecret generates a high-entropy opaque secret and its
// storage-safe SHA-256 hash.
func (c *Codec) NewRefreshSecret() (RefreshSecret, error) {
	b := make([]byte, c.refreshBytes)
	if _, err := rand.Read(b); err != nil {
		return RefreshSecret{}, err
	}

	raw := base64.RawURLEncoding.EncodeToString(b)

	return RefreshSecret{
		Raw:       raw,
		Hash:      HashSecret(raw),
		ExpiresAt: time.Now().UTC().Add(c.refreshTTL),
	}, nil
}

// HashSecret maps a raw refresh secret to the deterministic hash stored
// alongside session records. The secret is high-entropy, so a fast hash is
// the right tool here, not a password hash.
func HashSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
