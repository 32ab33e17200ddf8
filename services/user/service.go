package user

import (
	"errors"
	"fmt"
	"time"

	"github.com/localjobs/identity/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("user not found")

type Service struct {
	db     *gorm.DB
	logger *logging.Service
}

func NewService(db *gorm.DB, logger *logging.Service) *Service {
	return &Service{db: db, logger: logger}
}

func (s *Service) FindByID(id uint) (*User, error) {
	var u User
	if err := s.db.First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return &u, nil
}

func (s *Service) FindByEmail(email string) (*User, error) {
	var u User
	if err := s.db.Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return &u, nil
}

func (s *Service) Create(u *User) error {
	if err := s.db.Create(u).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Service) MarkEmailVerified(id uint, at time.Time) error {
	err := s.db.Model(&User{}).Where("id = ?", id).Updates(map[string]any{
		"email_verified":    true,
		"email_verified_at": at,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	s.logger.Info("email marked verified", zap.Uint("user_id", id))
	return nil
}

func (s *Service) MarkPhoneVerified(id uint, at time.Time) error {
	err := s.db.Model(&User{}).Where("id = ?", id).Updates(map[string]any{
		"phone_verified":    true,
		"phone_verified_at": at,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to mark phone verified: %w", err)
	}
	s.logger.Info("phone marked verified", zap.Uint("user_id", id))
	return nil
}

func (s *Service) UpdatePassword(id uint, passwordHash string) error {
	err := s.db.Model(&User{}).Where("id = ?", id).
		Update("password_hash", passwordHash).Error
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	s.logger.Info("password updated", zap.Uint("user_id", id))
	return nil
}
