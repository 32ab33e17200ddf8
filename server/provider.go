package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/localjobs/identity/config"
	"github.com/localjobs/identity/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func ProvideServer(cfg *config.Config, logger *logging.Service) *Server {
	return New(cfg, logger)
}

func registerRoutes(s *Server, handler *AuthHandler) {
	handler.Register(s)
}

func registerLifecycle(lc fx.Lifecycle, s *Server, logger *logging.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server stopped unexpectedly", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return s.Shutdown(ctx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(ProvideServer),
	fx.Provide(NewAuthHandler),
	fx.Invoke(registerRoutes),
	fx.Invoke(registerLifecycle),
)
