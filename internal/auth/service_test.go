package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sh1v4nk/Simple-Authentication/internal/mailer"
	"github.com/Sh1v4nk/Simple-Authentication/internal/session"
)

var testDevice = Device{UserAgent: "test-agent", SourceAddr: "10.0.0.1"}

func signupTestAccount(t *testing.T, env *testEnv) *Account {
	acc, issued, err := env.service.Signup(context.Background(), "testuser", "test@example.com", "testpass123", testDevice)
	require.NoError(t, err)
	require.NotNil(t, issued)
	return acc
}

func TestService_Signup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acc, issued, err := env.service.Signup(ctx, "testuser", "Test@Example.com", "testpass123", testDevice)
	require.NoError(t, err)

	assert.NotEmpty(t, acc.ID)
	assert.Equal(t, "testuser", acc.Username)
	assert.Equal(t, "test@example.com", acc.Email)
	assert.False(t, acc.Verified)
	assert.NotEqual(t, "testpass123", acc.PasswordHash)
	assert.Regexp(t, `^\d{6}$`, acc.VerificationCode)

	assert.NotEmpty(t, issued.AccessToken)
	assert.NotEmpty(t, issued.RefreshSecret)

	sent, ok := env.mail.last()
	require.True(t, ok)
	assert.Equal(t, mailer.KindVerification, sent.kind)
	assert.Equal(t, acc.VerificationCode, sent.token)

	// The new account can sign in right away.
	_, _, err = env.service.Signin(ctx, "test@example.com", "testpass123", testDevice)
	assert.NoError(t, err)
}

func TestService_Signup_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{name: "empty username", username: "", email: "a@example.com", password: "testpass123"},
		{name: "short username", username: "ab", email: "a@example.com", password: "testpass123"},
		{name: "long username", username: "abcdefghijklmnopqrstuvwxyzabcdefg", email: "a@example.com", password: "testpass123"},
		{name: "empty email", username: "testuser", email: "", password: "testpass123"},
		{name: "malformed email", username: "testuser", email: "not-an-email", password: "testpass123"},
		{name: "short password", username: "testuser", email: "a@example.com", password: "abc1"},
		{name: "short multibyte password", username: "testuser", email: "a@example.com", password: "密码密码1"},
		{name: "no digit", username: "testuser", email: "a@example.com", password: "passwordonly"},
		{name: "no letter", username: "testuser", email: "a@example.com", password: "123456789"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.service.Signup(ctx, tt.username, tt.email, tt.password, testDevice)
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
		})
	}

	assert.Zero(t, env.mail.count())
}

func TestService_Signup_MultibytePassword(t *testing.T) {
	env := newTestEnv(t)

	// Length is counted in runes, so eight non-ASCII characters satisfy
	// the minimum even though their byte count is far higher.
	_, _, err := env.service.Signup(context.Background(), "testuser", "a@example.com", "пароль7я", testDevice)
	assert.NoError(t, err)
}

func TestService_Signup_Duplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	signupTestAccount(t, env)

	_, _, err := env.service.Signup(ctx, "otheruser", "test@example.com", "testpass123", testDevice)
	assert.ErrorIs(t, err, ErrEmailExists)

	_, _, err = env.service.Signup(ctx, "testuser", "other@example.com", "testpass123", testDevice)
	assert.ErrorIs(t, err, ErrUsernameExists)
}

func TestService_Signin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := signupTestAccount(t, env)

	acc, issued, err := env.service.Signin(ctx, "TEST@example.com  ", "testpass123", testDevice)
	require.NoError(t, err)
	assert.Equal(t, created.ID, acc.ID)
	assert.NotEmpty(t, issued.AccessToken)

	// Login metadata was recorded.
	stored, err := env.repo.GetByID(created.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLoginAt)
	assert.Contains(t, stored.LastLoginAddrs, "10.0.0.1")
}

func TestService_Signin_UnknownEmailBurnsHashWork(t *testing.T) {
	cfg := newTestConfig()
	// A cost high enough that one bcrypt comparison dominates everything
	// else on the unknown-email path.
	cfg.Auth.BcryptCost = 8
	env := newTestEnvWithConfig(t, cfg)
	ctx := context.Background()

	// Baseline: the cheapest of a few dummy verifications at this cost.
	baseline := time.Hour
	for i := 0; i < 3; i++ {
		start := time.Now()
		env.hasher.VerifyDummy("testpass123")
		if elapsed := time.Since(start); elapsed < baseline {
			baseline = elapsed
		}
	}

	start := time.Now()
	_, _, err := env.service.Signin(ctx, "nobody@example.com", "testpass123", testDevice)
	elapsed := time.Since(start)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// The unknown-email rejection must cost at least a comparable hash
	// verification, so lookups are not distinguishable by latency.
	assert.GreaterOrEqual(t, elapsed, baseline/2)
}

func TestService_Signin_UnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.service.Signin(context.Background(), "nobody@example.com", "testpass123", testDevice)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// The failure still counts towards lockout.
	assert.Equal(t, 1, env.guard.AddressFailures("10.0.0.1"))
}

func TestService_Signin_WrongPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := signupTestAccount(t, env)

	_, _, err := env.service.Signin(ctx, "test@example.com", "wrongpass123", testDevice)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// The failure is mirrored onto the account record.
	stored, err := env.repo.GetByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.FailedLoginCount)
}

func TestService_Signin_ProgressiveLockout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	signupTestAccount(t, env)

	// The failing attempt reports invalid credentials but trips the lock.
	_, _, err := env.service.Signin(ctx, "test@example.com", "wrongpass123", testDevice)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// From here on even the correct password is refused.
	var lockedErr *AccountLockedError
	_, _, err = env.service.Signin(ctx, "test@example.com", "testpass123", testDevice)
	require.ErrorAs(t, err, &lockedErr)
	assert.Greater(t, lockedErr.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, lockedErr.RetryAfter, env.cfg.Lockout.BaseDuration)
}

func TestService_Signin_PersistedLock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := signupTestAccount(t, env)

	// Simulate a lock written by a previous process.
	until := time.Now().UTC().Add(10 * time.Minute)
	require.NoError(t, env.repo.RecordLoginFailure(created.ID, 5, &until))

	var lockedErr *AccountLockedError
	_, _, err := env.service.Signin(ctx, "test@example.com", "testpass123", testDevice)
	require.ErrorAs(t, err, &lockedErr)
	assert.Greater(t, lockedErr.RetryAfter, 9*time.Minute)
}

func TestService_Signin_SuccessClearsFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := signupTestAccount(t, env)

	// A failure from the same address against another identity.
	_, _, err := env.service.Signin(ctx, "other@example.com", "testpass123", testDevice)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 1, env.guard.AddressFailures("10.0.0.1"))

	// Stale failure mirror left over on the account record.
	require.NoError(t, env.repo.RecordLoginFailure(created.ID, 2, nil))

	_, _, err = env.service.Signin(ctx, "test@example.com", "testpass123", testDevice)
	require.NoError(t, err)

	stored, err := env.repo.GetByID(created.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.FailedLoginCount)
	assert.Nil(t, stored.LockUntil)
	assert.Zero(t, env.guard.AddressFailures("10.0.0.1"))
}

func TestService_SignoutRevokesSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := signupTestAccount(t, env)

	_, issued, err := env.service.Signin(ctx, "test@example.com", "testpass123", testDevice)
	require.NoError(t, err)

	require.NoError(t, env.service.Signout(ctx, issued.RefreshSecret))

	// Only that device's session died; the signup session is intact.
	active, err := env.service.Devices(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	// The revoked secret no longer refreshes.
	_, err = env.service.Refresh(ctx, issued.RefreshSecret, testDevice)
	assert.True(t, session.IsRefreshFailure(err))
}

func TestService_SignoutTolerantOfBadSecrets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assert.NoError(t, env.service.Signout(ctx, ""))
	assert.NoError(t, env.service.Signout(ctx, "unknown-secret"))
}

func TestService_RefreshRotation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	signupTestAccount(t, env)

	_, issued, err := env.service.Signin(ctx, "test@example.com", "testpass123", testDevice)
	require.NoError(t, err)

	rotated, err := env.service.Refresh(ctx, issued.RefreshSecret, testDevice)
	require.NoError(t, err)
	assert.NotEqual(t, issued.RefreshSecret, rotated.RefreshSecret)

	// Replaying the consumed secret kills every session.
	_, err = env.service.Refresh(ctx, issued.RefreshSecret, testDevice)
	assert.ErrorIs(t, err, session.ErrRefreshRevoked)

	_, err = env.service.Refresh(ctx, rotated.RefreshSecret, testDevice)
	assert.ErrorIs(t, err, session.ErrRefreshRevoked)
}

func TestService_VerifyEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := signupTestAccount(t, env)

	acc, err := env.service.VerifyEmail(ctx, created.VerificationCode)
	require.NoError(t, err)
	assert.True(t, acc.Verified)

	sent, ok := env.mail.last()
	require.True(t, ok)
	assert.Equal(t, mailer.KindVerified, sent.kind)

	// The code is single-use.
	_, err = env.service.VerifyEmail(ctx, created.VerificationCode)
	assert.ErrorIs(t, err, ErrInvalidVerificationCode)
}

func TestService_VerifyEmail_InvalidCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	signupTestAccount(t, env)

	tests := []struct {
		name string
		code string
	}{
		{name: "empty", code: ""},
		{name: "whitespace", code: "   "},
		{name: "unknown", code: "000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.VerifyEmail(ctx, tt.code)
			assert.ErrorIs(t, err, ErrInvalidVerificationCode)
		})
	}
}

func TestService_ForgotPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := signupTestAccount(t, env)

	require.NoError(t, env.service.ForgotPassword(ctx, "Test@Example.com"))

	sent, ok := env.mail.last()
	require.True(t, ok)
	assert.Equal(t, mailer.KindPasswordReset, sent.kind)
	assert.Len(t, sent.token, 40)

	stored, err := env.repo.GetByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, sent.token, stored.ResetToken)
	require.NotNil(t, stored.ResetTokenExpiresAt)
}

func TestService_ForgotPassword_UnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	// Identical outcome for unknown accounts, and no email goes out.
	require.NoError(t, env.service.ForgotPassword(context.Background(), "nobody@example.com"))
	assert.Zero(t, env.mail.count())
}

func TestService_ResetPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := signupTestAccount(t, env)

	require.NoError(t, env.service.ForgotPassword(ctx, "test@example.com"))
	sent, _ := env.mail.last()

	require.NoError(t, env.service.ResetPassword(ctx, sent.token, "newpass456"))

	// Every pre-reset session was revoked.
	active, err := env.service.Devices(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, active)

	// Old password is dead.
	_, _, err = env.service.Signin(ctx, "test@example.com", "testpass123", testDevice)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// The new one works once the failure above is cleared.
	env.guard.RecordSuccess("test@example.com", testDevice.SourceAddr)
	require.NoError(t, env.repo.ClearLoginFailures(created.ID))
	_, _, err = env.service.Signin(ctx, "test@example.com", "newpass456", testDevice)
	assert.NoError(t, err)

	// The token is single-use.
	err = env.service.ResetPassword(ctx, sent.token, "anotherpass789")
	assert.ErrorIs(t, err, ErrInvalidResetToken)
}

func TestService_ResetPassword_Failures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	signupTestAccount(t, env)

	err := env.service.ResetPassword(ctx, "bogus-token", "newpass456")
	assert.ErrorIs(t, err, ErrInvalidResetToken)

	require.NoError(t, env.service.ForgotPassword(ctx, "test@example.com"))
	sent, _ := env.mail.last()

	// Policy applies before the token is consumed.
	var validationErr *ValidationError
	err = env.service.ResetPassword(ctx, sent.token, "short1")
	require.ErrorAs(t, err, &validationErr)

	assert.NoError(t, env.service.ResetPassword(ctx, sent.token, "newpass456"))
}

func TestService_CurrentAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created := signupTestAccount(t, env)

	acc, err := env.service.CurrentAccount(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Email, acc.Email)

	_, err = env.service.CurrentAccount(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@example.com", NormalizeEmail("  A@Example.COM "))
	assert.Equal(t, "", NormalizeEmail("   "))
}
