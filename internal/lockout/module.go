package lockout

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Sh1v4nk/Simple-Authentication/internal/config"
)

// NewModule returns the lockout module options
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(config *config.AppConfig, log *zap.Logger) *Guard {
					return NewGuard(&config.Lockout, log)
				},
			),
		),
		fx.Invoke(registerSweep),
	)
}

// registerSweep runs the counter TTL sweep for the lifetime of the
// application.
func registerSweep(
	lifecycle fx.Lifecycle,
	guard *Guard,
	log *zap.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())

	lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go guard.RunSweep(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			log.Info("stopping lockout sweep")
			cancel()
			return nil
		},
	})
}
