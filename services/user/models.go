package user

import "time"

type Role string

const (
	RoleJobSeeker Role = "job_seeker"
	RoleCompany   Role = "company"
	RoleAdmin     Role = "admin"
)

type User struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	Role            Role       `json:"role" gorm:"size:32;not null;default:job_seeker"`
	Name            string     `json:"name" gorm:"size:120;not null"`
	Email           string     `json:"email" gorm:"size:255;uniqueIndex;not null"`
	Phone           string     `json:"phone" gorm:"size:32"`
	City            string     `json:"city" gorm:"size:120"`
	Locale          string     `json:"locale" gorm:"size:8;default:ar"`
	PasswordHash    string     `json:"-" gorm:"size:255;not null"`
	EmailVerified   bool       `json:"email_verified" gorm:"default:false"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	PhoneVerified   bool       `json:"phone_verified" gorm:"default:false"`
	PhoneVerifiedAt *time.Time `json:"phone_verified_at,omitempty"`
	Disabled        bool       `json:"disabled" gorm:"default:false"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
