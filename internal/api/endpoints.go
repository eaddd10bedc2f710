package api

// Authentication service endpoints
const (
	AuthSignup         = "/api/auth/signup"
	AuthSignin         = "/api/auth/signin"
	AuthSignout        = "/api/auth/signout"
	AuthRefresh        = "/api/auth/refresh"
	AuthVerifyEmail    = "/api/auth/verify-email"
	AuthForgotPassword = "/api/auth/forgot-password"
	AuthResetPassword  = "/api/auth/reset-password"

	AuthCheck     = "/api/auth/check-auth"
	AuthSessions  = "/api/auth/sessions"
	AuthRevokeAll = "/api/auth/revoke-all"
)

// PublicEndpoints defines endpoints that don't require authentication
var PublicEndpoints = map[string]bool{
	AuthSignup:         true,
	AuthSignin:         true,
	AuthSignout:        true,
	AuthRefresh:        true,
	AuthVerifyEmail:    true,
	AuthForgotPassword: true,
	AuthResetPassword:  true,
}
