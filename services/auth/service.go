package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/localjobs/identity/config"
	"github.com/localjobs/identity/services/logging"
	"github.com/localjobs/identity/services/token"
	"github.com/localjobs/identity/services/user"
	"github.com/localjobs/identity/services/verification"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrPasswordHashingFailed = errors.New("failed to hash password")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrAccountDisabled       = errors.New("account is disabled")
	ErrAlreadyVerified       = errors.New("already verified")
	ErrPasswordPolicy        = errors.New("password does not meet policy")
)

// Notifier sends the post-action notifications (reset-success email).
// The verification service owns delivery of the secrets themselves.
type Notifier interface {
	SendTemplate(templateName string, to []string, subject string, data map[string]any) (string, error)
}

type Service struct {
	config       *config.Config
	users        *user.Service
	verification *verification.Service
	refresh      *token.Service
	notifier     Notifier
	logger       *logging.Service
}

func NewService(cfg *config.Config, users *user.Service, verificationSvc *verification.Service, refresh *token.Service, logger *logging.Service) *Service {
	if cfg.Auth.BcryptCost < bcrypt.MinCost || cfg.Auth.BcryptCost > bcrypt.MaxCost {
		cfg.Auth.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		config:       cfg,
		users:        users,
		verification: verificationSvc,
		refresh:      refresh,
		logger:       logger,
	}
}

func (s *Service) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// ValidatePassword enforces the credential strength policy shared by
// registration and reset.
func (s *Service) ValidatePassword(password string) error {
	if len(password) < s.config.Auth.MinLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrPasswordPolicy, s.config.Auth.MinLength)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	var missing []string
	if s.config.Auth.RequireUpper && !hasUpper {
		missing = append(missing, "one uppercase letter")
	}
	if s.config.Auth.RequireLower && !hasLower {
		missing = append(missing, "one lowercase letter")
	}
	if s.config.Auth.RequireNumber && !hasNumber {
		missing = append(missing, "one number")
	}
	if s.config.Auth.RequireSpecial && !hasSpecial {
		missing = append(missing, "one special character")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: must contain at least %s", ErrPasswordPolicy, strings.Join(missing, ", "))
	}
	return nil
}

func (s *Service) HashPassword(password string) (string, error) {
	if err := s.ValidatePassword(password); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.Auth.BcryptCost)
	if err != nil {
		s.logger.Error("password hashing failed", zap.Error(err))
		return "", ErrPasswordHashingFailed
	}
	return string(hash), nil
}

func (s *Service) VerifyPassword(hashedPassword, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Authenticate resolves email+password to a user.
func (s *Service) Authenticate(email, password string) (*user.User, error) {
	u, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if u.Disabled {
		return nil, ErrAccountDisabled
	}
	if err := s.VerifyPassword(u.PasswordHash, password); err != nil {
		return nil, err
	}
	return u, nil
}
