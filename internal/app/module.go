package app

import (
	"context"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Sh1v4nk/Simple-Authentication/internal/auth"
	"github.com/Sh1v4nk/Simple-Authentication/internal/config"
	"github.com/Sh1v4nk/Simple-Authentication/internal/database"
	"github.com/Sh1v4nk/Simple-Authentication/internal/lockout"
	"github.com/Sh1v4nk/Simple-Authentication/internal/mailer"
	"github.com/Sh1v4nk/Simple-Authentication/internal/migration"
	"github.com/Sh1v4nk/Simple-Authentication/internal/password"
	"github.com/Sh1v4nk/Simple-Authentication/internal/server"
	"github.com/Sh1v4nk/Simple-Authentication/internal/session"
	"github.com/Sh1v4nk/Simple-Authentication/internal/token"
)

// Module combines all application modules
func Module() fx.Option {
	return fx.Options(
		// Logger
		fx.Provide(newLogger),

		// Configuration
		fx.Provide(server.LoadConfig),

		// Database
		database.Module(),
		fx.Provide(func(manager *database.Manager) *gorm.DB {
			return manager.DB()
		}),
		migration.Module(),

		// Core components
		fx.Provide(newHasher),
		fx.Provide(newCodec),
		fx.Provide(newMailer),

		// Domain modules
		lockout.NewModule(),
		session.NewModule(),
		auth.NewModule(),

		// Server
		fx.Provide(server.NewServer),

		// Start the server
		fx.Invoke(registerHooks),
	)
}

func newLogger() (*zap.Logger, error) {
	env := os.Getenv("APP_ENV")
	return server.NewLogger(env)
}

func newHasher(config *config.AppConfig) (*password.Hasher, error) {
	return password.NewHasher(config.Auth.BcryptCost)
}

// newCodec fails fast when the signing secret is missing; there is no
// per-request fallback.
func newCodec(config *config.AppConfig) (*token.Codec, error) {
	return token.NewCodec(&config.Auth)
}

func newMailer(log *zap.Logger) mailer.Sender {
	return mailer.NewLogSender(log)
}

func registerHooks(
	lifecycle fx.Lifecycle,
	srv *server.Server,
	log *zap.Logger,
) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					log.Error("failed to start server", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down server...")
			srv.Stop()
			return nil
		},
	})
}
