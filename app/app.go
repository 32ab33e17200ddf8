package app

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/localjobs/identity/config"
	"github.com/localjobs/identity/database"
	"github.com/localjobs/identity/server"
	"github.com/localjobs/identity/services/audit"
	"github.com/localjobs/identity/services/auth"
	"github.com/localjobs/identity/services/jwt"
	"github.com/localjobs/identity/services/logging"
	"github.com/localjobs/identity/services/mail"
	"github.com/localjobs/identity/services/token"
	"github.com/localjobs/identity/services/user"
	"github.com/localjobs/identity/services/verification"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

type App struct {
	fx *fx.App
}

// New assembles the identity application. A nil cfg loads configuration
// from the environment.
func New(cfg *config.Config) *App {
	fxApp := fx.New(
		config.NewProvider(cfg),
		fx.Supply(database.WithModels(
			&user.User{},
			&verification.VerificationToken{},
			&token.RefreshToken{},
			&audit.AuditLog{},
		)),
		logging.Module,
		database.Module,
		mail.Module,
		user.Module,
		verification.Module,
		token.Module,
		jwt.Module,
		audit.Module,
		auth.Module,
		server.Module,
		fx.WithLogger(func(logger *logging.Service) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Logger()}
		}),
	)

	return &App{fx: fxApp}
}

func (a *App) Start() error {
	return a.fx.Start(context.Background())
}

func (a *App) Run() {
	if err := a.Start(); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	a.Stop()
}

func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.fx.Stop(ctx); err != nil {
		zap.L().Error("failed to stop application gracefully", zap.Error(err))
	}
}
