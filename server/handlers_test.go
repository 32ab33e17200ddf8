package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/localjobs/identity/config"
	"github.com/localjobs/identity/services/audit"
	"github.com/localjobs/identity/services/auth"
	"github.com/localjobs/identity/services/jwt"
	"github.com/localjobs/identity/services/token"
	"github.com/localjobs/identity/services/user"
	"github.com/localjobs/identity/services/verification"
	"github.com/localjobs/identity/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type serverHarness struct {
	server   *Server
	db       *gorm.DB
	cfg      *config.Config
	users    *user.Service
	jwtSvc   *jwt.Service
	notifier *testutils.CapturingNotifier
	clock    time.Time
}

func newServerHarness(t *testing.T) *serverHarness {
	t.Helper()

	db := testutils.SetupTestDB(t,
		&user.User{},
		&verification.VerificationToken{},
		&token.RefreshToken{},
		&audit.AuditLog{},
	)
	cfg := testutils.GetTestConfig()
	cfg.Auth.BcryptCost = bcrypt.MinCost

	h := &serverHarness{
		db:       db,
		cfg:      cfg,
		notifier: &testutils.CapturingNotifier{},
		clock:    time.Now(),
	}

	h.users = user.NewService(db, nil)
	tokens := token.NewService(db, cfg, nil)
	verificationSvc := verification.NewService(cfg, verification.NewGormStore(db), h.notifier, nil)
	verificationSvc.SetClock(func() time.Time { return h.clock })
	authSvc := auth.NewService(cfg, h.users, verificationSvc, tokens, nil)
	authSvc.SetNotifier(h.notifier)
	h.jwtSvc = jwt.NewService(cfg, nil)
	auditor := audit.NewService(db, nil)

	h.server = New(cfg, nil)
	handler := NewAuthHandler(cfg, h.users, authSvc, h.jwtSvc, tokens, auditor, nil)
	handler.Register(h.server)
	return h
}

func (h *serverHarness) createUser(t *testing.T, email string) *user.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testutils.TestPasswords.Valid), bcrypt.MinCost)
	require.NoError(t, err)
	u := &user.User{Name: "Test User", Email: email, PasswordHash: string(hash)}
	require.NoError(t, h.users.Create(u))
	return u
}

func (h *serverHarness) request(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.server.Echo().ServeHTTP(rec, req)

	var parsed map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	}
	return rec, parsed
}

func TestLogin(t *testing.T) {
	t.Run("valid credentials return both tokens", func(t *testing.T) {
		h := newServerHarness(t)
		u := h.createUser(t, "login@example.com")

		rec, body := h.request(t, http.MethodPost, "/auth/login", map[string]string{
			"email":    u.Email,
			"password": testutils.TestPasswords.Valid,
		}, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, body["accessToken"])
		assert.NotEmpty(t, body["refreshToken"])

		claims, err := h.jwtSvc.ValidateToken(body["accessToken"].(string))
		require.NoError(t, err)
		assert.Equal(t, u.ID, claims.UserID)
	})

	t.Run("wrong password", func(t *testing.T) {
		h := newServerHarness(t)
		u := h.createUser(t, "login@example.com")

		rec, _ := h.request(t, http.MethodPost, "/auth/login", map[string]string{
			"email":    u.Email,
			"password": "WrongPass99",
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestEmailVerificationEndpoints(t *testing.T) {
	t.Run("request then confirm", func(t *testing.T) {
		h := newServerHarness(t)
		u := h.createUser(t, "verify@example.com")

		rec, body := h.request(t, http.MethodPost, "/auth/verify-email/request", map[string]string{"email": u.Email}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "v***y@example.com", body["maskedDestination"])
		assert.Equal(t, float64(600), body["expiresInSec"])

		otp := h.notifier.Last().Data["Code"].(string)
		rec, body = h.request(t, http.MethodPost, "/auth/verify-email/confirm", map[string]string{
			"email": u.Email,
			"otp":   otp,
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["emailVerified"])

		reloaded, err := h.users.FindByID(u.ID)
		require.NoError(t, err)
		assert.True(t, reloaded.EmailVerified)
	})

	t.Run("immediate re-request is throttled", func(t *testing.T) {
		h := newServerHarness(t)
		u := h.createUser(t, "verify@example.com")

		rec, _ := h.request(t, http.MethodPost, "/auth/verify-email/request", map[string]string{"email": u.Email}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec, body := h.request(t, http.MethodPost, "/auth/verify-email/request", map[string]string{"email": u.Email}, nil)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotZero(t, body["resendAfterSec"])
		assert.Equal(t, 1, h.notifier.Count())
	})

	t.Run("wrong otp", func(t *testing.T) {
		h := newServerHarness(t)
		u := h.createUser(t, "verify@example.com")

		rec, _ := h.request(t, http.MethodPost, "/auth/verify-email/request", map[string]string{"email": u.Email}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		wrong := "000000"
		if h.notifier.Last().Data["Code"].(string) == wrong {
			wrong = "000001"
		}
		rec, _ = h.request(t, http.MethodPost, "/auth/verify-email/confirm", map[string]string{
			"email": u.Email,
			"otp":   wrong,
		}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		h := newServerHarness(t)

		rec, _ := h.request(t, http.MethodPost, "/auth/verify-email/request", map[string]string{"email": "ghost@example.com"}, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bearer token resolves the user without an email", func(t *testing.T) {
		h := newServerHarness(t)
		u := h.createUser(t, "verify@example.com")

		access, err := h.jwtSvc.GenerateToken(u.ID, string(u.Role))
		require.NoError(t, err)

		rec, _ := h.request(t, http.MethodPost, "/auth/verify-email/request", map[string]string{}, map[string]string{
			"Authorization": "Bearer " + access,
		})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, h.notifier.Count())
	})
}

func TestForgotPassword(t *testing.T) {
	t.Run("known address gets the generic message", func(t *testing.T) {
		h := newServerHarness(t)
		u := h.createUser(t, "reset@example.com")

		rec, body := h.request(t, http.MethodPost, "/auth/password/forgot", map[string]string{"email": u.Email}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, genericResetMessage, body["message"])
		assert.Equal(t, 1, h.notifier.Count())
	})

	t.Run("unknown address gets the same message and status", func(t *testing.T) {
		h := newServerHarness(t)

		rec, body := h.request(t, http.MethodPost, "/auth/password/forgot", map[string]string{"email": "ghost@example.com"}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, genericResetMessage, body["message"])
		assert.Equal(t, 0, h.notifier.Count())
	})

	t.Run("throttled request still answers generically", func(t *testing.T) {
		h := newServerHarness(t)
		u := h.createUser(t, "reset@example.com")

		rec, _ := h.request(t, http.MethodPost, "/auth/password/forgot", map[string]string{"email": u.Email}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec, body := h.request(t, http.MethodPost, "/auth/password/forgot", map[string]string{"email": u.Email}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, genericResetMessage, body["message"])
		assert.Equal(t, 1, h.notifier.Count())
	})
}

func TestPasswordResetEndpoints(t *testing.T) {
	issuedToken := func(t *testing.T, h *serverHarness) string {
		t.Helper()
		resetURL := h.notifier.Last().Data["ResetURL"].(string)
		parts := strings.Split(resetURL, "token=")
		require.Len(t, parts, 2)
		return parts[1]
	}

	t.Run("verify then reset", func(t *testing.T) {
		h := newServerHarness(t)
		u := h.createUser(t, "reset@example.com")

		rec, _ := h.request(t, http.MethodPost, "/auth/password/forgot", map[string]string{"email": u.Email}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		raw := issuedToken(t, h)

		rec, body := h.request(t, http.MethodPost, "/auth/password/reset/verify", map[string]string{"token": raw}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["valid"])

		rec, _ = h.request(t, http.MethodPost, "/auth/password/reset", map[string]string{
			"token":       raw,
			"newPassword": "NewSecret42",
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		// Old credential is gone.
		rec, _ = h.request(t, http.MethodPost, "/auth/login", map[string]string{
			"email":    u.Email,
			"password": testutils.TestPasswords.Valid,
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec, _ = h.request(t, http.MethodPost, "/auth/login", map[string]string{
			"email":    u.Email,
			"password": "NewSecret42",
		}, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("weak password is a policy violation and keeps the token", func(t *testing.T) {
		h := newServerHarness(t)
		u := h.createUser(t, "reset@example.com")

		rec, _ := h.request(t, http.MethodPost, "/auth/password/forgot", map[string]string{"email": u.Email}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		raw := issuedToken(t, h)

		rec, _ = h.request(t, http.MethodPost, "/auth/password/reset", map[string]string{
			"token":       raw,
			"newPassword": "short",
		}, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		rec, _ = h.request(t, http.MethodPost, "/auth/password/reset", map[string]string{
			"token":       raw,
			"newPassword": "NewSecret42",
		}, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		h := newServerHarness(t)
		u := h.createUser(t, "reset@example.com")

		rec, _ := h.request(t, http.MethodPost, "/auth/password/forgot", map[string]string{"email": u.Email}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		raw := issuedToken(t, h)

		h.clock = h.clock.Add(16 * time.Minute)
		rec, _ = h.request(t, http.MethodPost, "/auth/password/reset", map[string]string{
			"token":       raw,
			"newPassword": "NewSecret42",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		h := newServerHarness(t)

		rec, _ := h.request(t, http.MethodPost, "/auth/password/reset/verify", map[string]string{"token": "deadbeef"}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLogoutAll(t *testing.T) {
	t.Run("requires authentication", func(t *testing.T) {
		h := newServerHarness(t)

		rec, _ := h.request(t, http.MethodPost, "/auth/logout-all", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("revokes every session", func(t *testing.T) {
		h := newServerHarness(t)
		u := h.createUser(t, "logout@example.com")

		for i := 0; i < 2; i++ {
			rec, _ := h.request(t, http.MethodPost, "/auth/login", map[string]string{
				"email":    u.Email,
				"password": testutils.TestPasswords.Valid,
			}, nil)
			require.Equal(t, http.StatusOK, rec.Code)
		}

		access, err := h.jwtSvc.GenerateToken(u.ID, string(u.Role))
		require.NoError(t, err)

		rec, body := h.request(t, http.MethodPost, "/auth/logout-all", nil, map[string]string{
			"Authorization": "Bearer " + access,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(2), body["revoked"])
	})
}

func TestAuditTrail(t *testing.T) {
	h := newServerHarness(t)
	h.createUser(t, "audited@example.com")

	rec, _ := h.request(t, http.MethodPost, "/auth/password/forgot", map[string]string{"email": "ghost@example.com"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The response stayed generic but the trail keeps the real outcome.
	var entries []audit.AuditLog
	require.NoError(t, h.db.Where("action = ?", "password_forgot").Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, "not_found", entries[0].Outcome)
}
