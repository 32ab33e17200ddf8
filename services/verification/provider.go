package verification

import (
	"context"

	"github.com/localjobs/identity/config"
	"github.com/localjobs/identity/services/logging"
	"github.com/localjobs/identity/services/mail"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideStore(db *gorm.DB) Store {
	return NewGormStore(db)
}

func ProvideService(cfg *config.Config, store Store, mailService *mail.Service, logger *logging.Service) *Service {
	return NewService(cfg, store, mailService, logger)
}

func registerSweeper(lc fx.Lifecycle, cfg *config.Config, service *Service, logger *logging.Service) {
	sweeper := NewSweeper(service, cfg.Verification.SweepInterval, logger)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sweeper.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sweeper.Stop()
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(ProvideStore),
	fx.Provide(ProvideService),
	fx.Invoke(registerSweeper),
)
