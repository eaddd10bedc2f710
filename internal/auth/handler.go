package auth

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Sh1v4nk/Simple-Authentication/internal/api"
	"github.com/Sh1v4nk/Simple-Authentication/internal/config"
	"github.com/Sh1v4nk/Simple-Authentication/internal/session"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"

	// The refresh cookie is scoped to the auth endpoints only; the access
	// cookie rides on every request.
	refreshCookiePath = "/api/auth"

	msgInvalidCredentials = "Invalid credentials"
	msgSessionInvalid     = "Session is invalid, please sign in again"
	msgInternalError      = "An unexpected error occurred"
)

type Handler struct {
	cfg     *config.AppConfig
	service *Service
	log     *zap.Logger
}

func NewHandler(cfg *config.AppConfig, service *Service, log *zap.Logger) *Handler {
	return &Handler{
		cfg:     cfg,
		service: service,
		log:     log,
	}
}

// Register wires the auth routes onto the mux. Protected endpoints go
// through the access-token middleware.
func (h *Handler) Register(mux *http.ServeMux, mw *Middleware) {
	mux.HandleFunc("POST "+api.AuthSignup, h.Signup)
	mux.HandleFunc("POST "+api.AuthSignin, h.Signin)
	mux.HandleFunc("POST "+api.AuthSignout, h.Signout)
	mux.HandleFunc("POST "+api.AuthRefresh, h.Refresh)
	mux.HandleFunc("POST "+api.AuthVerifyEmail, h.VerifyEmail)
	mux.HandleFunc("POST "+api.AuthForgotPassword, h.ForgotPassword)
	mux.HandleFunc("POST "+api.AuthResetPassword, h.ResetPassword)

	mux.Handle("GET "+api.AuthCheck, mw.RequireAuth(http.HandlerFunc(h.CheckAuth)))
	mux.Handle("GET "+api.AuthSessions, mw.RequireAuth(http.HandlerFunc(h.Sessions)))
	mux.Handle("DELETE "+api.AuthSessions+"/{id}", mw.RequireAuth(http.HandlerFunc(h.RevokeSession)))
	mux.Handle("POST "+api.AuthRevokeAll, mw.RequireAuth(http.HandlerFunc(h.RevokeAll)))
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !h.decode(w, r, &req) {
		return
	}

	acc, issued, err := h.service.Signup(r.Context(), req.Username, req.Email, req.Password, deviceFrom(r))
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}

	h.setTokenCookies(w, issued)
	writeJSON(w, http.StatusCreated, response{
		Success: true,
		Message: "User created successfully",
		Data:    map[string]interface{}{"user": accountPayload(acc)},
	})
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if !h.decode(w, r, &req) {
		return
	}

	acc, issued, err := h.service.Signin(r.Context(), req.Email, req.Password, deviceFrom(r))
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}

	h.setTokenCookies(w, issued)
	writeJSON(w, http.StatusOK, response{
		Success: true,
		Message: "Sign In successful",
		Data:    map[string]interface{}{"user": accountPayload(acc)},
	})
}

func (h *Handler) Signout(w http.ResponseWriter, r *http.Request) {
	raw := refreshSecretFrom(r)

	if err := h.service.Signout(r.Context(), raw); err != nil {
		h.log.Error("signout failed", zap.Error(err))
	}

	// Cookies are cleared no matter what the store says. Must happen
	// before the body is written; headers are snapshotted at WriteHeader.
	h.clearTokenCookies(w)
	writeJSON(w, http.StatusOK, response{
		Success: true,
		Message: "Sign Out successful",
	})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := refreshSecretFrom(r)
	if raw == "" {
		h.clearTokenCookies(w)
		writeError(w, http.StatusUnauthorized, msgSessionInvalid)
		return
	}

	issued, err := h.service.Refresh(r.Context(), raw, deviceFrom(r))
	if err != nil {
		if session.IsRefreshFailure(err) {
			h.log.Warn("refresh rejected", zap.Error(err))
			h.clearTokenCookies(w)
			writeError(w, http.StatusUnauthorized, msgSessionInvalid)
			return
		}
		h.log.Error("refresh failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	h.setTokenCookies(w, issued)
	writeJSON(w, http.StatusOK, response{
		Success: true,
		Message: "Token refreshed",
	})
}

type verifyEmailRequest struct {
	Code string `json:"code"`
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if !h.decode(w, r, &req) {
		return
	}

	acc, err := h.service.VerifyEmail(r.Context(), req.Code)
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{
		Success: true,
		Message: "Email verified successfully",
		Data:    map[string]interface{}{"user": accountPayload(acc)},
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		h.log.Error("forgot password failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	// Identical response whether or not the account exists.
	writeJSON(w, http.StatusOK, response{
		Success: true,
		Message: "If this email is registered, a reset link will be sent",
	})
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{
		Success: true,
		Message: "Password reset successful",
	})
}

func (h *Handler) CheckAuth(w http.ResponseWriter, r *http.Request) {
	accountID, err := AccountFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgSessionInvalid)
		return
	}

	acc, err := h.service.CurrentAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.log.Error("check auth failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	writeJSON(w, http.StatusOK, response{
		Success: true,
		Message: "User found",
		Data:    map[string]interface{}{"user": accountPayload(acc)},
	})
}

func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	accountID, err := AccountFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgSessionInvalid)
		return
	}

	devices, err := h.service.Devices(r.Context(), accountID)
	if err != nil {
		h.log.Error("listing sessions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	payload := make([]map[string]interface{}, 0, len(devices))
	for _, d := range devices {
		payload = append(payload, map[string]interface{}{
			"id":         d.ID,
			"userAgent":  d.UserAgent,
			"sourceAddr": d.SourceAddr,
			"createdAt":  d.CreatedAt,
			"expiresAt":  d.ExpiresAt,
		})
	}

	writeJSON(w, http.StatusOK, response{
		Success: true,
		Message: "Active sessions",
		Data:    map[string]interface{}{"sessions": payload},
	})
}

func (h *Handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	accountID, err := AccountFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgSessionInvalid)
		return
	}

	sessionID := r.PathValue("id")
	if err := h.service.RevokeDevice(r.Context(), accountID, sessionID); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.log.Error("revoking session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	writeJSON(w, http.StatusOK, response{
		Success: true,
		Message: "Session revoked",
	})
}

func (h *Handler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	accountID, err := AccountFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgSessionInvalid)
		return
	}

	if err := h.service.RevokeAll(r.Context(), accountID); err != nil {
		h.log.Error("revoke all failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	h.clearTokenCookies(w)
	writeJSON(w, http.StatusOK, response{
		Success: true,
		Message: "Signed out everywhere",
	})
}

// writeAuthError maps the failure taxonomy onto transport outcomes without
// leaking which internal condition held.
func (h *Handler) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *ValidationError
	var lockedErr *AccountLockedError

	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Message)

	case errors.As(err, &lockedErr):
		msg := "Account temporarily locked due to multiple failed login attempts"
		if h.cfg.Lockout.RevealRetryAfter {
			seconds := int(lockedErr.RetryAfter.Round(time.Second).Seconds())
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			msg = "Account temporarily locked. Try again in " +
				lockedErr.RetryAfter.Round(time.Minute).String()
		}
		writeError(w, http.StatusLocked, msg)

	case errors.Is(err, ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, msgInvalidCredentials)

	case errors.Is(err, ErrEmailExists), errors.Is(err, ErrUsernameExists):
		writeError(w, http.StatusConflict, err.Error())

	case errors.Is(err, ErrInvalidVerificationCode), errors.Is(err, ErrInvalidResetToken):
		writeError(w, http.StatusBadRequest, err.Error())

	default:
		h.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternalError)
	}
}

func (h *Handler) setTokenCookies(w http.ResponseWriter, issued *session.Issued) {
	secure := h.cfg.Auth.CookieSecure

	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    issued.AccessToken,
		Path:     "/",
		MaxAge:   int(h.cfg.Auth.AccessTokenDuration.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSiteFor(secure),
	})

	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    issued.RefreshSecret,
		Path:     refreshCookiePath,
		MaxAge:   int(h.cfg.Auth.RefreshTokenDuration.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSiteFor(secure),
	})
}

func (h *Handler) clearTokenCookies(w http.ResponseWriter) {
	secure := h.cfg.Auth.CookieSecure

	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSiteFor(secure),
	})

	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSiteFor(secure),
	})
}

// Browsers reject SameSite=None without Secure, so development setups fall
// back to Lax.
func sameSiteFor(secure bool) http.SameSite {
	if secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Incorrect format")
		return false
	}
	return true
}

func deviceFrom(r *http.Request) Device {
	return Device{
		UserAgent:  r.UserAgent(),
		SourceAddr: clientAddr(r),
	}
}

func refreshSecretFrom(r *http.Request) string {
	cookie, err := r.Cookie(refreshTokenCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// clientAddr prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientAddr(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

type response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	// Authentication responses must never be cached.
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, response{Success: false, Message: message})
}

// accountPayload is the caller-safe projection of an Account. The password
// hash and pending tokens never leave the service.
func accountPayload(acc *Account) map[string]interface{} {
	return map[string]interface{}{
		"id":          acc.ID,
		"username":    acc.Username,
		"email":       acc.Email,
		"isVerified":  acc.Verified,
		"lastLoginAt": acc.LastLoginAt,
		"createdAt":   acc.CreatedAt,
	}
}
