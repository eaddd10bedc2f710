package session

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Sh1v4nk/Simple-Authentication/internal/config"
	"github.com/Sh1v4nk/Simple-Authentication/internal/token"
)

// NewModule returns the session module options
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(db *gorm.DB) Store {
					return NewStore(db)
				},
			),
			fx.Annotate(
				func(config *config.AppConfig, log *zap.Logger, codec *token.Codec, store Store) *Manager {
					return NewManager(&config.Auth, log, codec, store)
				},
			),
		),
		fx.Invoke(registerCleanup),
	)
}

// registerCleanup runs the session pruning loop for the lifetime of the
// application.
func registerCleanup(
	lifecycle fx.Lifecycle,
	manager *Manager,
	log *zap.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())

	lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go manager.RunCleanup(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			log.Info("stopping session cleanup")
			cancel()
			return nil
		},
	})
}
