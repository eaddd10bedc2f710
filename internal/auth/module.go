package auth

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Sh1v4nk/Simple-Authentication/internal/config"
	"github.com/Sh1v4nk/Simple-Authentication/internal/lockout"
	"github.com/Sh1v4nk/Simple-Authentication/internal/mailer"
	"github.com/Sh1v4nk/Simple-Authentication/internal/password"
	"github.com/Sh1v4nk/Simple-Authentication/internal/session"
)

// NewModule returns the auth module options
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(
			// Provide repository
			fx.Annotate(
				func(db *gorm.DB) Repository {
					return NewRepository(db)
				},
			),
			// Provide service
			fx.Annotate(
				func(
					config *config.AppConfig,
					log *zap.Logger,
					repo Repository,
					hasher *password.Hasher,
					sessions *session.Manager,
					guard *lockout.Guard,
					mail mailer.Sender,
				) *Service {
					return NewService(&config.Auth, log, repo, hasher, sessions, guard, mail)
				},
			),
			// Provide handler
			fx.Annotate(
				func(config *config.AppConfig, svc *Service, log *zap.Logger) *Handler {
					return NewHandler(config, svc, log)
				},
			),
			// Provide middleware
			fx.Annotate(
				func(sessions *session.Manager, log *zap.Logger) *Middleware {
					return NewMiddleware(sessions, log)
				},
			),
		),
	)
}
