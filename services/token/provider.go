package token

import (
	"context"
	"time"

	"github.com/localjobs/identity/config"
	"github.com/localjobs/identity/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideTokenService(db *gorm.DB, cfg *config.Config, logger *logging.Service) *Service {
	return NewService(db, cfg, logger)
}

func registerCleanup(lc fx.Lifecycle, cfg *config.Config, service *Service) {
	stop := make(chan struct{})
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(cfg.RefreshToken.CleanupInterval)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						_, _ = service.CleanupExpired()
					case <-stop:
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(stop)
			<-done
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(ProvideTokenService),
	fx.Invoke(registerCleanup),
)
