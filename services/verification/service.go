package verification

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/localjobs/identity/config"
	"github.com/localjobs/identity/services/logging"
	"go.uber.org/zap"
)

var (
	ErrInvalidType       = errors.New("invalid verification type")
	ErrNotFound          = errors.New("verification token not found")
	ErrExpired           = errors.New("verification token has expired")
	ErrAlreadyUsed       = errors.New("verification token has already been used")
	ErrAttemptsExhausted = errors.New("verification attempts exhausted")
	ErrMismatch          = errors.New("verification code does not match")
	ErrDeliveryFailed    = errors.New("failed to deliver verification message")
)

// Notifier delivers the rendered message carrying the plaintext secret.
// It is the only component that ever sees the secret after issuance.
type Notifier interface {
	SendTemplate(templateName string, to []string, subject string, data map[string]any) (preview string, err error)
}

// IssueResult describes the outcome of an Issue call. Throttled results
// carry RetryAfter and nothing else of interest. DevSecret and
// DevPreviewURL are only populated outside production mode.
type IssueResult struct {
	Throttled         bool
	RetryAfter        time.Duration
	MaskedDestination string
	ExpiresIn         time.Duration
	DevSecret         string
	DevPreviewURL     string
}

type Service struct {
	config   *config.Config
	store    Store
	notifier Notifier
	logger   *logging.Service
	now      func() time.Time
}

func NewService(cfg *config.Config, store Store, notifier Notifier, logger *logging.Service) *Service {
	return &Service{
		config:   cfg,
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the time source, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Issue generates a fresh secret for (userID, typ), persists its hash and
// delivers it to destination. An existing unused record is updated in
// place so at most one secret per (user, type) is outstanding. Within the
// resend throttle window no new secret is generated and no message sent.
func (s *Service) Issue(userID uint, typ Type, destination string) (*IssueResult, error) {
	if !typ.Valid() {
		return nil, ErrInvalidType
	}

	rec, err := s.store.FindActive(userID, typ)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := s.now()
	throttle := s.throttleFor(typ)
	if rec != nil && !rec.LastSentAt.IsZero() {
		if elapsed := now.Sub(rec.LastSentAt); elapsed < throttle {
			s.logger.Debug("verification issue throttled",
				zap.Uint("user_id", userID),
				zap.String("type", string(typ)),
				zap.Duration("retry_after", throttle-elapsed))
			return &IssueResult{
				Throttled:         true,
				RetryAfter:        throttle - elapsed,
				MaskedDestination: MaskDestination(typ, destination),
			}, nil
		}
	}

	secret, err := s.generateSecret(typ)
	if err != nil {
		return nil, err
	}

	expiry := s.expiryFor(typ)
	if rec == nil {
		rec = &VerificationToken{
			UserID:    userID,
			Type:      typ,
			CreatedAt: now,
		}
	}
	rec.TokenHash = HashSecret(secret)
	rec.Destination = destination
	rec.AttemptsLeft = s.config.Verification.MaxAttempts
	rec.LastSentAt = now
	rec.ExpiresAt = now.Add(expiry)

	if err := s.store.Save(rec); err != nil {
		return nil, err
	}

	result := &IssueResult{
		MaskedDestination: MaskDestination(typ, destination),
		ExpiresIn:         expiry,
	}

	preview, err := s.deliver(typ, destination, secret, expiry)
	if err != nil {
		if s.config.App.IsProduction() {
			s.logger.Error("verification delivery failed",
				zap.Error(err),
				zap.Uint("user_id", userID),
				zap.String("type", string(typ)))
			return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
		}
		// Development: keep going and hand the secret back so the flow
		// can be exercised without a mail server.
		s.logger.Warn("verification delivery failed, exposing secret (dev mode)",
			zap.Error(err),
			zap.Uint("user_id", userID),
			zap.String("type", string(typ)))
		result.DevSecret = secret
	} else if !s.config.App.IsProduction() {
		result.DevPreviewURL = preview
	}

	s.logger.Info("verification secret issued",
		zap.Uint("user_id", userID),
		zap.String("type", string(typ)),
		zap.String("destination", result.MaskedDestination),
		zap.Time("expires_at", rec.ExpiresAt))
	return result, nil
}

// Verify compares candidate against the newest active record for
// (userID, typ). A mismatch burns one attempt; a match consumes the
// record exactly once.
func (s *Service) Verify(userID uint, typ Type, candidate string) error {
	if !typ.Valid() {
		return ErrInvalidType
	}

	rec, err := s.store.FindActive(userID, typ)
	if err != nil {
		return err
	}

	now := s.now()
	if !now.Before(rec.ExpiresAt) {
		return ErrExpired
	}
	if rec.AttemptsLeft <= 0 {
		return ErrAttemptsExhausted
	}

	if !secretMatches(candidate, rec.TokenHash) {
		remaining, derr := s.store.DecrementAttempts(rec.ID)
		if derr != nil {
			return derr
		}
		s.logger.Warn("verification mismatch",
			zap.Uint("user_id", userID),
			zap.String("type", string(typ)),
			zap.Int("attempts_left", remaining))
		return ErrMismatch
	}

	used, err := s.store.MarkUsed(rec.ID, now)
	if err != nil {
		return err
	}
	if !used {
		return ErrAlreadyUsed
	}

	s.logger.Info("verification succeeded",
		zap.Uint("user_id", userID),
		zap.String("type", string(typ)))
	return nil
}

// Consume looks a bearer secret up directly by hash, with no user context,
// and consumes it. Used for password-reset tokens where the token itself
// identifies the subject.
func (s *Service) Consume(typ Type, rawSecret string) (*VerificationToken, error) {
	rec, err := s.peek(typ, rawSecret)
	if err != nil {
		return nil, err
	}

	used, err := s.store.MarkUsed(rec.ID, s.now())
	if err != nil {
		return nil, err
	}
	if !used {
		return nil, ErrAlreadyUsed
	}

	s.logger.Info("verification token consumed",
		zap.Uint("user_id", rec.UserID),
		zap.String("type", string(typ)))
	return rec, nil
}

// Peek validates a bearer secret without consuming it.
func (s *Service) Peek(typ Type, rawSecret string) (*VerificationToken, error) {
	return s.peek(typ, rawSecret)
}

func (s *Service) peek(typ Type, rawSecret string) (*VerificationToken, error) {
	if !typ.Valid() {
		return nil, ErrInvalidType
	}

	rec, err := s.store.FindByHash(typ, HashSecret(rawSecret))
	if err != nil {
		return nil, err
	}
	if rec.UsedAt != nil {
		return nil, ErrAlreadyUsed
	}
	if !s.now().Before(rec.ExpiresAt) {
		return nil, ErrExpired
	}
	return rec, nil
}

// CleanupExpired removes records past their expiry. The persistence layer
// has no native TTL, so a periodic sweep calls this.
func (s *Service) CleanupExpired() (int64, error) {
	removed, err := s.store.DeleteExpired(s.now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("expired verification tokens removed", zap.Int64("count", removed))
	}
	return removed, nil
}

func (s *Service) throttleFor(typ Type) time.Duration {
	if typ == TypePasswordReset {
		return s.config.Verification.ResetThrottle
	}
	return s.config.Verification.OTPResendThrottle
}

func (s *Service) expiryFor(typ Type) time.Duration {
	if typ == TypePasswordReset {
		return s.config.Verification.ResetExpiry
	}
	return s.config.Verification.OTPExpiry
}

func (s *Service) generateSecret(typ Type) (string, error) {
	if typ.IsOTP() {
		return generateOTP(s.config.Verification.OTPLength)
	}
	return generateOpaqueToken(s.config.Verification.ResetTokenLength)
}

func (s *Service) deliver(typ Type, destination, secret string, expiry time.Duration) (string, error) {
	switch typ {
	case TypeEmail:
		return s.notifier.SendTemplate("email_otp", []string{destination}, "Your email verification code", map[string]any{
			"AppName": s.config.App.Name,
			"Code":    secret,
			"Expiry":  expiry.String(),
		})
	case TypePhone:
		return s.notifier.SendTemplate("phone_otp", []string{destination}, "Your phone verification code", map[string]any{
			"AppName": s.config.App.Name,
			"Code":    secret,
			"Expiry":  expiry.String(),
		})
	case TypePasswordReset:
		resetURL := fmt.Sprintf("%s/auth/password/reset?token=%s", s.config.App.URL, secret)
		return s.notifier.SendTemplate("password_reset", []string{destination}, "Password reset request", map[string]any{
			"AppName":  s.config.App.Name,
			"ResetURL": resetURL,
			"Expiry":   expiry.String(),
		})
	}
	return "", ErrInvalidType
}

// HashSecret returns the sha256 hex digest stored in place of the secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func secretMatches(candidate, storedHashHex string) bool {
	stored, err := hex.DecodeString(storedHashHex)
	if err != nil {
		return false
	}
	candidateSum := sha256.Sum256([]byte(candidate))
	return subtle.ConstantTimeCompare(candidateSum[:], stored) == 1
}

func generateOTP(length int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

func generateOpaqueToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// MaskDestination hides most of an address for display and audit.
func MaskDestination(typ Type, destination string) string {
	if typ == TypePhone {
		return maskPhone(destination)
	}
	return maskEmail(destination)
}

func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	if len(local) <= 2 {
		return fmt.Sprintf("%c***@%s", local[0], domain)
	}
	return fmt.Sprintf("%c***%c@%s", local[0], local[len(local)-1], domain)
}

func maskPhone(phone string) string {
	if len(phone) <= 2 {
		return "***"
	}
	return strings.Repeat("*", len(phone)-2) + phone[len(phone)-2:]
}
