package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/localjobs/identity/config"
	"github.com/localjobs/identity/services/audit"
	"github.com/localjobs/identity/services/auth"
	"github.com/localjobs/identity/services/jwt"
	"github.com/localjobs/identity/services/logging"
	"github.com/localjobs/identity/services/token"
	"github.com/localjobs/identity/services/user"
	"github.com/localjobs/identity/services/verification"
	"go.uber.org/zap"
)

const ctxUserIDKey = "auth_user_id"

// genericResetMessage is returned by the forgot-password endpoint no
// matter what happened, to avoid account enumeration.
const genericResetMessage = "If this address exists, reset instructions were sent"

type AuthHandler struct {
	cfg     *config.Config
	users   *user.Service
	authSvc *auth.Service
	jwtSvc  *jwt.Service
	tokens  *token.Service
	auditor *audit.Service
	logger  *logging.Service
}

func NewAuthHandler(cfg *config.Config, users *user.Service, authSvc *auth.Service, jwtSvc *jwt.Service, tokens *token.Service, auditor *audit.Service, logger *logging.Service) *AuthHandler {
	return &AuthHandler{
		cfg:     cfg,
		users:   users,
		authSvc: authSvc,
		jwtSvc:  jwtSvc,
		tokens:  tokens,
		auditor: auditor,
		logger:  logger,
	}
}

func (h *AuthHandler) Register(s *Server) {
	g := s.Group("/auth")
	g.Use(h.optionalAuth)

	g.POST("/login", h.Login)
	g.POST("/logout-all", h.LogoutAll)
	g.POST("/verify-email/request", h.RequestEmailVerification)
	g.POST("/verify-email/confirm", h.ConfirmEmailVerification)
	g.POST("/password/forgot", h.ForgotPassword)
	g.POST("/password/reset/verify", h.VerifyResetToken)
	g.POST("/password/reset", h.ResetPassword)
}

// optionalAuth resolves a Bearer token when present; anonymous requests
// pass through untouched.
func (h *AuthHandler) optionalAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if strings.HasPrefix(header, "Bearer ") {
			claims, err := h.jwtSvc.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err == nil {
				c.Set(ctxUserIDKey, claims.UserID)
			}
		}
		return next(c)
	}
}

func authedUserID(c echo.Context) (uint, bool) {
	id, ok := c.Get(ctxUserIDKey).(uint)
	return id, ok
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	u, err := h.authSvc.Authenticate(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrAccountDisabled) {
			return echo.NewHTTPError(http.StatusForbidden, "account is disabled")
		}
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	accessToken, err := h.jwtSvc.GenerateToken(u.ID, string(u.Role))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue token")
	}

	refresh, err := h.tokens.Generate(u.ID, token.SessionInfo{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue token")
	}

	h.audit(c, "login", u.ID, "success")
	return c.JSON(http.StatusOK, echo.Map{
		"accessToken":   accessToken,
		"refreshToken":  refresh.Token,
		"user":          u,
		"emailVerified": u.EmailVerified,
	})
}

func (h *AuthHandler) LogoutAll(c echo.Context) error {
	userID, ok := authedUserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	revoked, err := h.tokens.RevokeAllForUser(userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to revoke sessions")
	}

	h.audit(c, "logout_all", userID, "success")
	return c.JSON(http.StatusOK, echo.Map{"revoked": revoked})
}

type emailRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) RequestEmailVerification(c echo.Context) error {
	var req emailRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	u, err := h.resolveUser(c, req.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}

	result, err := h.authSvc.RequestEmailVerification(u)
	if err != nil {
		if errors.Is(err, auth.ErrAlreadyVerified) {
			return c.JSON(http.StatusOK, echo.Map{"alreadyVerified": true})
		}
		h.audit(c, "email_verify_request", u.ID, "error")
		return h.issueError(err)
	}
	if result.Throttled {
		return c.JSON(http.StatusTooManyRequests, echo.Map{
			"message":        "please wait before requesting another code",
			"resendAfterSec": int(result.RetryAfter.Seconds()) + 1,
		})
	}

	h.audit(c, "email_verify_request", u.ID, "sent")
	return c.JSON(http.StatusOK, h.issueBody(result))
}

type confirmEmailRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

func (h *AuthHandler) ConfirmEmailVerification(c echo.Context) error {
	var req confirmEmailRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.OTP == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "otp is required")
	}

	u, err := h.resolveUser(c, req.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}

	if err := h.authSvc.ConfirmEmailVerification(u, req.OTP); err != nil {
		h.audit(c, "email_verify_confirm", u.ID, outcomeFor(err))
		return h.verifyError(err)
	}

	h.audit(c, "email_verify_confirm", u.ID, "success")
	return c.JSON(http.StatusOK, echo.Map{"emailVerified": true})
}

func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req emailRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	// The full outcome lands in the audit trail; the response never
	// varies, whatever happened.
	result, err := h.authSvc.RequestPasswordReset(req.Email)
	switch {
	case err != nil:
		h.logger.Info("password reset request failed",
			zap.String("email", verification.MaskDestination(verification.TypeEmail, req.Email)),
			zap.String("outcome", outcomeFor(err)))
		h.audit(c, "password_forgot", 0, outcomeFor(err))
	case result.Throttled:
		h.audit(c, "password_forgot", 0, "throttled")
	default:
		h.audit(c, "password_forgot", 0, "sent")
	}

	body := echo.Map{"message": genericResetMessage}
	if err == nil && !result.Throttled && !h.cfg.App.IsProduction() {
		if result.DevSecret != "" {
			body["devSecret"] = result.DevSecret
		}
		if result.DevPreviewURL != "" {
			body["devPreviewUrl"] = result.DevPreviewURL
		}
	}
	return c.JSON(http.StatusOK, body)
}

type resetTokenRequest struct {
	Token string `json:"token"`
}

func (h *AuthHandler) VerifyResetToken(c echo.Context) error {
	var req resetTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := h.authSvc.VerifyPasswordResetToken(req.Token); err != nil {
		return h.verifyError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"valid": true})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := h.authSvc.ResetPassword(req.Token, req.NewPassword); err != nil {
		h.audit(c, "password_reset", 0, outcomeFor(err))
		if errors.Is(err, auth.ErrPasswordPolicy) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		return h.verifyError(err)
	}

	h.audit(c, "password_reset", 0, "success")
	return c.JSON(http.StatusOK, echo.Map{"message": "password has been reset"})
}

func (h *AuthHandler) resolveUser(c echo.Context, email string) (*user.User, error) {
	if userID, ok := authedUserID(c); ok {
		return h.users.FindByID(userID)
	}
	if email != "" {
		return h.users.FindByEmail(email)
	}
	return nil, user.ErrNotFound
}

func (h *AuthHandler) issueBody(result *verification.IssueResult) echo.Map {
	body := echo.Map{
		"maskedDestination": result.MaskedDestination,
		"expiresInSec":      int(result.ExpiresIn.Seconds()),
	}
	if !h.cfg.App.IsProduction() {
		if result.DevSecret != "" {
			body["devSecret"] = result.DevSecret
		}
		if result.DevPreviewURL != "" {
			body["devPreviewUrl"] = result.DevPreviewURL
		}
	}
	return body
}

func (h *AuthHandler) issueError(err error) error {
	if errors.Is(err, verification.ErrDeliveryFailed) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "could not send the message, try again later")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

func (h *AuthHandler) verifyError(err error) error {
	switch {
	case errors.Is(err, verification.ErrAttemptsExhausted):
		return echo.NewHTTPError(http.StatusTooManyRequests, "attempts exhausted, request a new code")
	case errors.Is(err, verification.ErrMismatch):
		return echo.NewHTTPError(http.StatusBadRequest, "incorrect code")
	case errors.Is(err, verification.ErrNotFound),
		errors.Is(err, verification.ErrExpired),
		errors.Is(err, verification.ErrAlreadyUsed):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid or expired token")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func (h *AuthHandler) audit(c echo.Context, action string, actorID uint, outcome string) {
	h.auditor.Log(audit.Entry{
		Action:      action,
		ActorID:     actorID,
		TargetModel: "User",
		TargetID:    actorID,
		Outcome:     outcome,
		IP:          c.RealIP(),
		UserAgent:   c.Request().UserAgent(),
	})
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, verification.ErrNotFound), errors.Is(err, user.ErrNotFound):
		return "not_found"
	case errors.Is(err, verification.ErrExpired):
		return "expired"
	case errors.Is(err, verification.ErrAlreadyUsed):
		return "already_used"
	case errors.Is(err, verification.ErrAttemptsExhausted):
		return "attempts_exhausted"
	case errors.Is(err, verification.ErrMismatch):
		return "mismatch"
	case errors.Is(err, verification.ErrDeliveryFailed):
		return "delivery_failed"
	case errors.Is(err, auth.ErrPasswordPolicy):
		return "policy_violation"
	case errors.Is(err, auth.ErrAccountDisabled):
		return "account_disabled"
	default:
		return "error"
	}
}
