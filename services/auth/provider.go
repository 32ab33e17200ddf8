package auth

import (
	"github.com/localjobs/identity/config"
	"github.com/localjobs/identity/services/logging"
	"github.com/localjobs/identity/services/mail"
	"github.com/localjobs/identity/services/token"
	"github.com/localjobs/identity/services/user"
	"github.com/localjobs/identity/services/verification"
	"go.uber.org/fx"
)

func ProvideAuthService(cfg *config.Config, users *user.Service, verificationSvc *verification.Service, refresh *token.Service, mailSvc *mail.Service, logger *logging.Service) *Service {
	svc := NewService(cfg, users, verificationSvc, refresh, logger)
	svc.SetNotifier(mailSvc)
	return svc
}

var Module = fx.Options(
	fx.Provide(ProvideAuthService),
)
