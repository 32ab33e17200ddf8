package testutils

import (
	"time"

	"github.com/localjobs/identity/config"
	"golang.org/x/crypto/bcrypt"
)

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name: "Test App",
			URL:  "http://localhost:8080",
			Env:  config.ModeDevelopment,
		},
		Auth: config.AuthConfig{
			MinLength:      8,
			RequireUpper:   true,
			RequireLower:   true,
			RequireNumber:  true,
			RequireSpecial: false,
			BcryptCost:     bcrypt.MinCost,
		},
		Verification: config.VerificationConfig{
			OTPLength:         6,
			OTPExpiry:         10 * time.Minute,
			OTPResendThrottle: 30 * time.Second,
			MaxAttempts:       5,
			ResetTokenLength:  24,
			ResetExpiry:       15 * time.Minute,
			ResetThrottle:     60 * time.Second,
			SweepInterval:     time.Hour,
		},
		RefreshToken: config.RefreshTokenConfig{
			TokenLength:     48,
			Expiry:          30 * 24 * time.Hour,
			CleanupInterval: 24 * time.Hour,
		},
		JWT: config.JWTConfig{
			SecretKey:    "test-secret-key-32-chars-long!!",
			AccessExpiry: 15 * time.Minute,
			Issuer:       "test-issuer",
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			DSN:    ":memory:",
		},
		Mail: config.MailConfig{
			Driver:      "log",
			FromAddress: "notify@test.local",
			FromName:    "Test App",
		},
	}
}

var TestPasswords = struct {
	Valid    string
	TooShort string
	NoUpper  string
	NoLower  string
	NoNumber string
}{
	Valid:    "Password123",
	TooShort: "Pass1",
	NoUpper:  "password123",
	NoLower:  "PASSWORD123",
	NoNumber: "Password",
}
