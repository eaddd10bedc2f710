package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Sh1v4nk/Simple-Authentication/internal/config"
	"github.com/Sh1v4nk/Simple-Authentication/internal/lockout"
	"github.com/Sh1v4nk/Simple-Authentication/internal/mailer"
	"github.com/Sh1v4nk/Simple-Authentication/internal/password"
	"github.com/Sh1v4nk/Simple-Authentication/internal/session"
)

// Device carries the transport context the HTTP layer supplies with each
// use-case request.
type Device struct {
	UserAgent  string
	SourceAddr string
}

// Service composes the credential hasher, token codec, session manager, and
// brute-force guard into the signup/signin/signout/refresh use cases.
type Service struct {
	cfg        *config.AuthConfig
	log        *zap.Logger
	repository Repository
	hasher     *password.Hasher
	sessions   *session.Manager
	guard      *lockout.Guard
	mail       mailer.Sender
}

func NewService(
	cfg *config.AuthConfig,
	log *zap.Logger,
	repo Repository,
	hasher *password.Hasher,
	sessions *session.Manager,
	guard *lockout.Guard,
	mail mailer.Sender,
) *Service {
	return &Service{
		cfg:        cfg,
		log:        log,
		repository: repo,
		hasher:     hasher,
		sessions:   sessions,
		guard:      guard,
		mail:       mail,
	}
}

// Signup creates an unverified account, dispatches the verification code,
// and issues a first session.
func (s *Service) Signup(ctx context.Context, username, email, plaintext string, dev Device) (*Account, *session.Issued, error) {
	username = strings.TrimSpace(username)
	email = NormalizeEmail(email)

	if err := validateUsername(username); err != nil {
		return nil, nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, nil, err
	}
	if err := s.validatePassword(plaintext); err != nil {
		return nil, nil, err
	}

	if _, err := s.repository.GetByEmail(email); err == nil {
		return nil, nil, ErrEmailExists
	}
	if _, err := s.repository.GetByUsername(username); err == nil {
		return nil, nil, ErrUsernameExists
	}

	digest, err := s.hasher.Hash(plaintext)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	code, err := generateVerificationCode()
	if err != nil {
		return nil, nil, fmt.Errorf("generate verification code: %w", err)
	}
	codeExpiry := time.Now().UTC().Add(s.cfg.VerificationCodeDuration)

	acc := &Account{
		ID:                        uuid.NewString(),
		Username:                  username,
		Email:                     email,
		PasswordHash:              digest,
		VerificationCode:          code,
		VerificationCodeExpiresAt: &codeExpiry,
	}

	if err := s.repository.Create(acc); err != nil {
		if err == ErrAccountExists {
			return nil, nil, ErrEmailExists
		}
		return nil, nil, err
	}

	s.sendEmail(ctx, mailer.KindVerification, acc, code)

	issued, err := s.sessions.Issue(acc.ID, dev.UserAgent, dev.SourceAddr)
	if err != nil {
		return nil, nil, err
	}

	return acc, issued, nil
}

// Signin authenticates credentials and issues a session. Lock state is
// checked before any password work; an unknown email burns a dummy
// verification so the two failure paths are indistinguishable by latency.
func (s *Service) Signin(ctx context.Context, email, plaintext string, dev Device) (*Account, *session.Issued, error) {
	email = NormalizeEmail(email)

	if remaining, locked := s.guard.Check(email); locked {
		return nil, nil, &AccountLockedError{RetryAfter: remaining}
	}

	acc, err := s.repository.GetByEmail(email)
	if err != nil {
		if err == ErrAccountNotFound {
			s.hasher.VerifyDummy(plaintext)
			s.guard.RecordFailure(email, dev.SourceAddr)
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	// Persisted lock survives process restarts; the guard covers the rest.
	now := time.Now().UTC()
	if acc.LockUntil != nil && now.Before(*acc.LockUntil) {
		return nil, nil, &AccountLockedError{RetryAfter: acc.LockUntil.Sub(now)}
	}

	if !s.hasher.Verify(plaintext, acc.PasswordHash) {
		// The failing attempt itself reports invalid credentials; the lock
		// it may have tripped is enforced on the next attempt.
		s.recordFailure(acc, email, dev.SourceAddr)
		return nil, nil, ErrInvalidCredentials
	}

	s.guard.RecordSuccess(email, dev.SourceAddr)
	if err := s.repository.ClearLoginFailures(acc.ID); err != nil {
		s.log.Error("failed to clear login failures", zap.Error(err))
	}
	if err := s.repository.RecordLogin(acc.ID, dev.SourceAddr); err != nil {
		s.log.Error("failed to record login", zap.Error(err))
	}

	issued, err := s.sessions.Issue(acc.ID, dev.UserAgent, dev.SourceAddr)
	if err != nil {
		return nil, nil, err
	}

	return acc, issued, nil
}

// recordFailure feeds the guard and mirrors the counter onto the account
// record through the store.
func (s *Service) recordFailure(acc *Account, email, sourceAddr string) {
	s.guard.RecordFailure(email, sourceAddr)

	var lockUntil *time.Time
	if remaining, locked := s.guard.Check(email); locked {
		until := time.Now().UTC().Add(remaining)
		lockUntil = &until
	}
	if err := s.repository.RecordLoginFailure(acc.ID, acc.FailedLoginCount+1, lockUntil); err != nil {
		s.log.Error("failed to record login failure", zap.Error(err))
	}
}

// Signout revokes the session behind the presented refresh secret. The
// caller clears client-side credentials regardless of the outcome here.
func (s *Service) Signout(_ context.Context, rawRefreshSecret string) error {
	if rawRefreshSecret == "" {
		return nil
	}

	if err := s.sessions.RevokeBySecret(rawRefreshSecret); err != nil {
		if session.IsRefreshFailure(err) {
			s.log.Debug("signout with unknown or revoked session")
			return nil
		}
		return err
	}
	return nil
}

// Refresh rotates the presented refresh secret into a new token pair.
func (s *Service) Refresh(_ context.Context, rawRefreshSecret string, dev Device) (*session.Issued, error) {
	return s.sessions.Refresh(rawRefreshSecret, dev.UserAgent, dev.SourceAddr)
}

// RevokeAll revokes every session for the account.
func (s *Service) RevokeAll(_ context.Context, accountID string) error {
	return s.sessions.RevokeAll(accountID)
}

// Devices lists the account's active sessions.
func (s *Service) Devices(_ context.Context, accountID string) ([]session.Session, error) {
	return s.sessions.ListDevices(accountID)
}

// RevokeDevice revokes a single session (single-device logout).
func (s *Service) RevokeDevice(_ context.Context, accountID, sessionID string) error {
	return s.sessions.RevokeOne(accountID, sessionID)
}

// VerifyEmail consumes a verification code.
func (s *Service) VerifyEmail(ctx context.Context, code string) (*Account, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidVerificationCode
	}

	acc, err := s.repository.GetByVerificationCode(code)
	if err != nil {
		if err == ErrAccountNotFound {
			return nil, ErrInvalidVerificationCode
		}
		return nil, err
	}

	if err := s.repository.MarkVerified(acc.ID); err != nil {
		return nil, err
	}
	acc.Verified = true

	s.sendEmail(ctx, mailer.KindVerified, acc, "")

	return acc, nil
}

// ForgotPassword stores a reset token and dispatches the reset email. The
// outcome is identical whether or not the account exists.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = NormalizeEmail(email)

	acc, err := s.repository.GetByEmail(email)
	if err != nil {
		if err == ErrAccountNotFound {
			return nil
		}
		return err
	}

	token, err := generateResetToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	expiry := time.Now().UTC().Add(s.cfg.ResetTokenDuration)
	if err := s.repository.SetResetToken(acc.ID, token, expiry); err != nil {
		return err
	}

	s.sendEmail(ctx, mailer.KindPasswordReset, acc, token)

	return nil
}

// ResetPassword consumes a reset token, replaces the password, and revokes
// every session so stolen refresh secrets die with the old password.
func (s *Service) ResetPassword(ctx context.Context, token, plaintext string) error {
	if err := s.validatePassword(plaintext); err != nil {
		return err
	}

	acc, err := s.repository.GetByResetToken(strings.TrimSpace(token))
	if err != nil {
		if err == ErrAccountNotFound {
			return ErrInvalidResetToken
		}
		return err
	}

	digest, err := s.hasher.Hash(plaintext)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.repository.UpdatePassword(acc.ID, digest); err != nil {
		return err
	}

	if err := s.sessions.RevokeAll(acc.ID); err != nil {
		s.log.Error("failed to revoke sessions after password reset",
			zap.String("account_id", acc.ID),
			zap.Error(err))
	}

	s.sendEmail(ctx, mailer.KindResetDone, acc, "")

	return nil
}

// CurrentAccount loads the account behind a verified access token.
func (s *Service) CurrentAccount(_ context.Context, accountID string) (*Account, error) {
	return s.repository.GetByID(accountID)
}

// sendEmail dispatches fire-and-forget: delivery failure is logged, never
// propagated.
func (s *Service) sendEmail(ctx context.Context, kind mailer.Kind, acc *Account, token string) {
	if err := s.mail.Send(ctx, kind, acc.Username, acc.Email, token); err != nil {
		s.log.Error("email delivery failed",
			zap.String("kind", string(kind)),
			zap.String("account_id", acc.ID),
			zap.Error(err))
	}
}

// NormalizeEmail lowercases and trims an email address for lookups and
// guard keys.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateUsername(username string) error {
	if username == "" {
		return &ValidationError{Field: "username", Message: "username is required"}
	}
	if len(username) < 3 || len(username) > 32 {
		return &ValidationError{Field: "username", Message: "username must be between 3 and 32 characters"}
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return &ValidationError{Field: "email", Message: "email is required"}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return &ValidationError{Field: "email", Message: "invalid email format"}
	}
	return nil
}

func (s *Service) validatePassword(plaintext string) error {
	minLength := s.cfg.PasswordMinLength
	if minLength <= 0 {
		minLength = 8
	}
	if utf8.RuneCountInString(plaintext) < minLength {
		return &ValidationError{
			Field:   "password",
			Message: fmt.Sprintf("password must be at least %d characters", minLength),
		}
	}

	var hasLetter, hasDigit bool
	for _, r := range plaintext {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return &ValidationError{
			Field:   "password",
			Message: "password must contain at least one letter and one digit",
		}
	}

	return nil
}

// generateVerificationCode returns a 6-digit code.
func generateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// generateResetToken returns a 40-char hex token.
func generateResetToken() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
