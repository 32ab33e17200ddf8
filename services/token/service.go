package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/localjobs/identity/config"
	"github.com/localjobs/identity/services/logging"
	"github.com/mileusna/useragent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")
	ErrRefreshTokenRevoked  = errors.New("refresh token revoked")
	ErrTokenGenerationFail  = errors.New("failed to generate secure token")
)

type Service struct {
	db     *gorm.DB
	config *config.Config
	logger *logging.Service
}

func NewService(db *gorm.DB, cfg *config.Config, logger *logging.Service) *Service {
	return &Service{
		db:     db,
		config: cfg,
		logger: logger,
	}
}

// Generate mints a new refresh token for the user and stores its hash
// along with where it was requested from.
func (s *Service) Generate(userID uint, sessionInfo SessionInfo) (*TokenData, error) {
	raw, err := s.generateSecureToken()
	if err != nil {
		s.logger.Error("failed to generate refresh token", zap.Error(err))
		return nil, ErrTokenGenerationFail
	}

	now := time.Now()
	rec := RefreshToken{
		UserID:     userID,
		TokenHash:  hashToken(raw),
		UserAgent:  sessionInfo.UserAgent,
		IP:         sessionInfo.IP,
		DeviceInfo: describeDevice(sessionInfo.UserAgent),
		ExpiresAt:  now.Add(s.config.RefreshToken.Expiry),
		LastUsedAt: now,
		CreatedAt:  now,
	}

	if err := s.db.Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	s.logger.Info("refresh token generated",
		zap.Uint("user_id", userID),
		zap.Uint("token_id", rec.ID),
		zap.Time("expires_at", rec.ExpiresAt))

	return &TokenData{
		Token:     raw,
		TokenID:   rec.ID,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// Validate resolves a raw token to its record, rejecting revoked and
// expired tokens, and bumps last_used_at.
func (s *Service) Validate(raw string) (*RefreshToken, error) {
	var rec RefreshToken
	err := s.db.Where("token_hash = ?", hashToken(raw)).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}

	if rec.RevokedAt != nil {
		return nil, ErrRefreshTokenRevoked
	}
	if time.Now().After(rec.ExpiresAt) {
		return nil, ErrRefreshTokenExpired
	}

	if err := s.db.Model(&rec).Update("last_used_at", time.Now()).Error; err != nil {
		s.logger.Warn("failed to update refresh token last_used_at", zap.Error(err))
	}
	return &rec, nil
}

// Revoke marks a single token revoked.
func (s *Service) Revoke(raw string) error {
	res := s.db.Model(&RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", hashToken(raw)).
		Update("revoked_at", time.Now())
	if res.Error != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRefreshTokenNotFound
	}
	return nil
}

// RevokeAllForUser terminates every standing token for the user. Called
// after a successful password reset so no prior session survives.
func (s *Service) RevokeAllForUser(userID uint) (int64, error) {
	res := s.db.Model(&RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", time.Now())
	if res.Error != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", res.Error)
	}

	s.logger.Info("refresh tokens revoked",
		zap.Uint("user_id", userID),
		zap.Int64("count", res.RowsAffected))
	return res.RowsAffected, nil
}

// CleanupExpired deletes tokens past their expiry.
func (s *Service) CleanupExpired() (int64, error) {
	res := s.db.Where("expires_at < ?", time.Now()).Delete(&RefreshToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to cleanup expired refresh tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Service) generateSecureToken() (string, error) {
	bytes := make([]byte, s.config.RefreshToken.TokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func describeDevice(userAgent string) string {
	if userAgent == "" {
		return ""
	}
	ua := useragent.Parse(userAgent)
	switch {
	case ua.Name != "" && ua.OS != "":
		return fmt.Sprintf("%s %s on %s", ua.Name, ua.Version, ua.OS)
	case ua.Name != "":
		return ua.Name
	}
	return ""
}
