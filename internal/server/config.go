package server

import (
	"fmt"
	"os"
	"time"

	"github.com/Sh1v4nk/Simple-Authentication/internal/config"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

func LoadConfig() (*config.AppConfig, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = EnvDevelopment
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath("./config/server")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// The signing secret never lives in the config file.
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		v.Set("auth.jwt_secret", secret)
	}

	var config config.AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Load environment-specific configurations
	if envSettings := v.GetStringMap(fmt.Sprintf("server.%s", env)); len(envSettings) > 0 {
		if err := v.UnmarshalKey(fmt.Sprintf("server.%s", env), &config.Server); err != nil {
			return nil, fmt.Errorf("error unmarshaling env config: %w", err)
		}
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	v.SetDefault("auth.access_token_duration", 15*time.Minute)
	v.SetDefault("auth.refresh_token_duration", 7*24*time.Hour)
	v.SetDefault("auth.refresh_secret_bytes", 32)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.password_min_length", 8)
	v.SetDefault("auth.max_active_sessions", 5)
	v.SetDefault("auth.revoked_retention", 7*24*time.Hour)
	v.SetDefault("auth.cleanup_interval", time.Hour)
	v.SetDefault("auth.verification_code_duration", 15*time.Minute)
	v.SetDefault("auth.reset_token_duration", time.Hour)

	v.SetDefault("lockout.base_duration", 5*time.Minute)
	v.SetDefault("lockout.address_window", 15*time.Minute)
	v.SetDefault("lockout.max_entries", 10000)
	v.SetDefault("lockout.counter_ttl", 24*time.Hour)
	v.SetDefault("lockout.sweep_interval", 5*time.Minute)
	v.SetDefault("lockout.reveal_retry_after", true)
}
