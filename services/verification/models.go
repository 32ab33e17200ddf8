package verification

import "time"

// Type selects the secret format and the side effect a successful
// verification triggers.
type Type string

const (
	TypeEmail         Type = "email"
	TypePhone         Type = "phone"
	TypePasswordReset Type = "password_reset"
)

// NormalizeType maps the legacy "reset_password" spelling onto the
// canonical value.
func NormalizeType(s string) Type {
	if s == "reset_password" {
		return TypePasswordReset
	}
	return Type(s)
}

func (t Type) Valid() bool {
	switch t {
	case TypeEmail, TypePhone, TypePasswordReset:
		return true
	}
	return false
}

// IsOTP reports whether the type uses a short numeric code rather than
// an opaque bearer token.
func (t Type) IsOTP() bool {
	return t == TypeEmail || t == TypePhone
}

// VerificationToken holds the hashed secret for one pending verification.
// The plaintext secret is never persisted; only the sha256 hex digest is.
// At most one active record per (user, type) is maintained: re-issuing
// overwrites the newest unused record in place.
type VerificationToken struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	UserID       uint       `json:"user_id" gorm:"not null;index:idx_verification_user_type,priority:1"`
	Type         Type       `json:"type" gorm:"size:32;not null;index:idx_verification_user_type,priority:2;index:idx_verification_hash,priority:1"`
	TokenHash    string     `json:"-" gorm:"size:128;not null;index:idx_verification_hash,priority:2"`
	Destination  string     `json:"destination" gorm:"size:255"`
	AttemptsLeft int        `json:"attempts_left" gorm:"not null;default:5"`
	LastSentAt   time.Time  `json:"last_sent_at"`
	ExpiresAt    time.Time  `json:"expires_at" gorm:"not null;index"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (VerificationToken) TableName() string {
	return "verification_tokens"
}

// Consumable reports whether the record can still be verified at the
// given instant.
func (t *VerificationToken) Consumable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt) && t.AttemptsLeft > 0
}
