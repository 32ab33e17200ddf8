package token

import "time"

// RefreshToken is a long-lived opaque bearer credential. Only the sha256
// hash is stored; revocation is recorded rather than deleting the row so
// the audit trail survives.
type RefreshToken struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	UserID     uint       `json:"user_id" gorm:"not null;index"`
	TokenHash  string     `json:"-" gorm:"size:128;uniqueIndex;not null"`
	UserAgent  string     `json:"user_agent" gorm:"size:500"`
	IP         string     `json:"ip" gorm:"size:64"`
	DeviceInfo string     `json:"device_info" gorm:"size:255"`
	ExpiresAt  time.Time  `json:"expires_at" gorm:"not null;index"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt time.Time  `json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

// SessionInfo captures where a token was minted from.
type SessionInfo struct {
	IP        string
	UserAgent string
}

// TokenData carries the one-time plaintext token back to the caller.
type TokenData struct {
	Token     string
	TokenID   uint
	ExpiresAt time.Time
}
