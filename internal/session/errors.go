package session

import "errors"

var (
	// ErrRefreshNotFound is returned when a presented secret matches no
	// session record.
	ErrRefreshNotFound = errors.New("refresh session not found")

	// ErrRefreshRevoked is returned when the matching session was already
	// revoked. Presenting a rotated secret is treated as a reuse signal.
	ErrRefreshRevoked = errors.New("refresh session revoked")

	// ErrRefreshExpired is returned when the matching session is past its
	// expiry.
	ErrRefreshExpired = errors.New("refresh session expired")
)

// IsRefreshFailure reports whether err belongs to the refresh failure
// taxonomy. Callers collapse all three into a single "session invalid"
// outcome; the distinction exists for logging only.
func IsRefreshFailure(err error) bool {
	return errors.Is(err, ErrRefreshNotFound) ||
		errors.Is(err, ErrRefreshRevoked) ||
		errors.Is(err, ErrRefreshExpired)
}
