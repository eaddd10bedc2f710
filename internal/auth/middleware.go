package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Sh1v4nk/Simple-Authentication/internal/session"
	"github.com/Sh1v4nk/Simple-Authentication/internal/token"
)

// contextKey is a private type so context values cannot collide across
// packages.
type contextKey string

// accountContextKey is the key under which the authenticated account ID is
// stored in the request context.
const accountContextKey contextKey = "account"

type Middleware struct {
	sessions *session.Manager
	log      *zap.Logger
}

func NewMiddleware(sessions *session.Manager, log *zap.Logger) *Middleware {
	return &Middleware{
		sessions: sessions,
		log:      log,
	}
}

// RequireAuth verifies the access token from the cookie or Authorization
// header and injects the account ID into the request context. Token
// failures stay distinct in the logs but collapse to a single unauthorized
// outcome for the caller.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractAccessToken(r)
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized: token is missing or invalid")
			return
		}

		accountID, err := m.sessions.VerifyAccess(tokenString)
		if err != nil {
			switch {
			case errors.Is(err, token.ErrTokenExpired):
				m.log.Debug("expired access token", zap.String("path", r.URL.Path))
			case errors.Is(err, token.ErrTokenWrongKind):
				m.log.Warn("wrong token kind presented", zap.String("path", r.URL.Path))
			default:
				m.log.Debug("invalid access token", zap.String("path", r.URL.Path))
			}
			writeError(w, http.StatusUnauthorized, "Unauthorized: token is missing or invalid")
			return
		}

		ctx := context.WithValue(r.Context(), accountContextKey, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AccountFromContext returns the authenticated account ID set by
// RequireAuth.
func AccountFromContext(ctx context.Context) (string, error) {
	accountID, ok := ctx.Value(accountContextKey).(string)
	if !ok || accountID == "" {
		return "", errors.New("account not found in context")
	}
	return accountID, nil
}

// extractAccessToken prefers the cookie, falling back to a bearer header
// for non-browser clients.
func extractAccessToken(r *http.Request) string {
	if cookie, err := r.Cookie(accessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}
