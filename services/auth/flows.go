package auth

import (
	"time"

	"github.com/localjobs/identity/services/user"
	"github.com/localjobs/identity/services/verification"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// RequestEmailVerification issues (or re-issues, subject to the throttle)
// an email OTP for the user. Already-verified users short-circuit.
func (s *Service) RequestEmailVerification(u *user.User) (*verification.IssueResult, error) {
	if u.EmailVerified {
		return nil, ErrAlreadyVerified
	}
	return s.verification.Issue(u.ID, verification.TypeEmail, u.Email)
}

// ConfirmEmailVerification checks the OTP and, on success, flags the
// user's email verified. Idempotent for already-verified users.
func (s *Service) ConfirmEmailVerification(u *user.User, otp string) error {
	if u.EmailVerified {
		return nil
	}

	if err := s.verification.Verify(u.ID, verification.TypeEmail, otp); err != nil {
		return err
	}

	return s.users.MarkEmailVerified(u.ID, time.Now())
}

// RequestPhoneVerification issues an SMS OTP for the user's phone number.
func (s *Service) RequestPhoneVerification(u *user.User) (*verification.IssueResult, error) {
	if u.PhoneVerified {
		return nil, ErrAlreadyVerified
	}
	return s.verification.Issue(u.ID, verification.TypePhone, u.Phone)
}

func (s *Service) ConfirmPhoneVerification(u *user.User, otp string) error {
	if u.PhoneVerified {
		return nil
	}

	if err := s.verification.Verify(u.ID, verification.TypePhone, otp); err != nil {
		return err
	}

	return s.users.MarkPhoneVerified(u.ID, time.Now())
}

// RequestPasswordReset issues a reset token for the address, if an
// enabled account exists for it. Callers must not leak the distinction
// between the outcomes to the end user.
func (s *Service) RequestPasswordReset(email string) (*verification.IssueResult, error) {
	u, err := s.users.FindByEmail(email)
	if err != nil {
		return nil, err
	}
	if u.Disabled {
		return nil, ErrAccountDisabled
	}
	return s.verification.Issue(u.ID, verification.TypePasswordReset, u.Email)
}

// VerifyPasswordResetToken checks a reset token without consuming it, so
// a reset form can validate the link before asking for a new password.
func (s *Service) VerifyPasswordResetToken(rawToken string) error {
	_, err := s.verification.Peek(verification.TypePasswordReset, rawToken)
	return err
}

// ResetPassword consumes a reset token and replaces the user's
// credential. The policy check runs first: a weak password must not burn
// the token. On success every standing refresh token for the user is
// revoked, forcing re-authentication everywhere.
func (s *Service) ResetPassword(rawToken, newPassword string) error {
	if err := s.ValidatePassword(newPassword); err != nil {
		return err
	}

	rec, err := s.verification.Consume(verification.TypePasswordReset, rawToken)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.config.Auth.BcryptCost)
	if err != nil {
		s.logger.Error("password hashing failed", zap.Error(err))
		return ErrPasswordHashingFailed
	}

	if err := s.users.UpdatePassword(rec.UserID, string(hash)); err != nil {
		return err
	}

	revoked, err := s.refresh.RevokeAllForUser(rec.UserID)
	if err != nil {
		// The credential already changed; report but do not roll back.
		s.logger.Error("failed to revoke sessions after password reset",
			zap.Error(err),
			zap.Uint("user_id", rec.UserID))
	} else {
		s.logger.Info("password reset completed",
			zap.Uint("user_id", rec.UserID),
			zap.Int64("sessions_revoked", revoked))
	}

	s.sendResetSuccessNotice(rec.UserID)
	return nil
}

func (s *Service) sendResetSuccessNotice(userID uint) {
	if s.notifier == nil {
		return
	}
	u, err := s.users.FindByID(userID)
	if err != nil {
		return
	}

	_, err = s.notifier.SendTemplate("password_reset_success", []string{u.Email}, "Your password was changed", map[string]any{
		"AppName": s.config.App.Name,
		"Name":    u.Name,
	})
	if err != nil {
		s.logger.Warn("failed to send reset-success notice",
			zap.Error(err),
			zap.Uint("user_id", userID))
	}
}
