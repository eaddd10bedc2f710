package config

import "time"

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type AuthConfig struct {
	JWTSecret            string        `mapstructure:"jwt_secret"`
	AccessTokenDuration  time.Duration `mapstructure:"access_token_duration"`
	RefreshTokenDuration time.Duration `mapstructure:"refresh_token_duration"`
	RefreshSecretBytes   int           `mapstructure:"refresh_secret_bytes"`
	BcryptCost           int           `mapstructure:"bcrypt_cost"`
	PasswordMinLength    int           `mapstructure:"password_min_length"`

	MaxActiveSessions int           `mapstructure:"max_active_sessions"`
	RevokedRetention  time.Duration `mapstructure:"revoked_retention"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`

	VerificationCodeDuration time.Duration `mapstructure:"verification_code_duration"`
	ResetTokenDuration       time.Duration `mapstructure:"reset_token_duration"`

	// CookieSecure should be true in production so the token cookies
	// are only sent over TLS.
	CookieSecure bool `mapstructure:"cookie_secure"`
}

// LockoutTier maps a failure count to the lockout duration applied once
// that count is reached. Tiers are evaluated highest threshold first.
type LockoutTier struct {
	Threshold int           `mapstructure:"threshold"`
	Duration  time.Duration `mapstructure:"duration"`
}

type LockoutConfig struct {
	BaseDuration  time.Duration `mapstructure:"base_duration"`
	Tiers         []LockoutTier `mapstructure:"tiers"`
	AddressWindow time.Duration `mapstructure:"address_window"`
	MaxEntries    int           `mapstructure:"max_entries"`
	CounterTTL    time.Duration `mapstructure:"counter_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// RevealRetryAfter controls whether lockout responses include the
	// remaining wait time.
	RevealRetryAfter bool `mapstructure:"reveal_retry_after"`
}

type AppConfig struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Lockout  LockoutConfig  `mapstructure:"lockout"`
}
