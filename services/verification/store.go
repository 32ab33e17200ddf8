package verification

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Store is the narrow persistence contract the service needs. Any engine
// that supports equality lookup, sort-by-recency and conditional updates
// can satisfy it.
type Store interface {
	// FindActive returns the newest unused record for (userID, typ),
	// regardless of expiry. ErrNotFound when none exists.
	FindActive(userID uint, typ Type) (*VerificationToken, error)

	// FindByHash returns the newest record of the given type with the
	// given hash, used or not. ErrNotFound when none exists.
	FindByHash(typ Type, tokenHash string) (*VerificationToken, error)

	// Save inserts the record or updates it in place by primary key.
	Save(rec *VerificationToken) error

	// DecrementAttempts atomically decrements attempts_left, flooring at
	// zero, and returns the remaining count.
	DecrementAttempts(id uint) (int, error)

	// MarkUsed sets used_at only if it is still unset. The boolean
	// reports whether this call won the consumption.
	MarkUsed(id uint, at time.Time) (bool, error)

	// DeleteExpired removes records whose expiry lies before the cutoff
	// and returns how many were removed.
	DeleteExpired(cutoff time.Time) (int64, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FindActive(userID uint, typ Type) (*VerificationToken, error) {
	var rec VerificationToken
	err := s.db.
		Where("user_id = ? AND type = ? AND used_at IS NULL", userID, typ).
		Order("created_at DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up verification token: %w", err)
	}
	return &rec, nil
}

func (s *GormStore) FindByHash(typ Type, tokenHash string) (*VerificationToken, error) {
	var rec VerificationToken
	err := s.db.
		Where("type = ? AND token_hash = ?", typ, tokenHash).
		Order("created_at DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up verification token: %w", err)
	}
	return &rec, nil
}

func (s *GormStore) Save(rec *VerificationToken) error {
	if err := s.db.Save(rec).Error; err != nil {
		return fmt.Errorf("failed to save verification token: %w", err)
	}
	return nil
}

func (s *GormStore) DecrementAttempts(id uint) (int, error) {
	res := s.db.Model(&VerificationToken{}).
		Where("id = ? AND attempts_left > 0", id).
		UpdateColumn("attempts_left", gorm.Expr("attempts_left - 1"))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to decrement attempts: %w", res.Error)
	}

	var remaining int
	err := s.db.Model(&VerificationToken{}).
		Where("id = ?", id).
		Select("attempts_left").
		Scan(&remaining).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read remaining attempts: %w", err)
	}
	return remaining, nil
}

func (s *GormStore) MarkUsed(id uint, at time.Time) (bool, error) {
	res := s.db.Model(&VerificationToken{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", at)
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark verification token used: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) DeleteExpired(cutoff time.Time) (int64, error) {
	res := s.db.Where("expires_at < ?", cutoff).Delete(&VerificationToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete expired verification tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}
