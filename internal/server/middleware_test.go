package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shiplet/shiplet/internal/auth/session"
	"github.com/shiplet/shiplet/internal/config"
	deploymentdomain "github.com/shiplet/shiplet/internal/deployment/domain"
	paymentdomain "github.com/shiplet/shiplet/internal/payment/domain"
	subscriptiondomain "github.com/shiplet/shiplet/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func newTestServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	return &Server{
		engine:   engine,
		cfg:      cfg,
		log:      zaptest.NewLogger(t),
		sessions: session.NewManager(cfg),
	}
}

func errorType(t *testing.T, body []byte) string {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode error body %q: %v", body, err)
	}
	return resp.Error.Type
}

func TestWalletRequired(t *testing.T) {
	s := newTestServer(t, config.Config{})
	var seen string
	s.engine.GET("/x", s.WalletRequired(), func(c *gin.Context) {
		seen = s.walletAddress(c)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		s.engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "wallet_not_connected", errorType(t, w.Body.Bytes()))
	})

	t.Run("address is normalized", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("X-Wallet-Address", "  0xABCdef  ")
		s.engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "0xabcdef", seen)
	})
}

func TestAdminRequired(t *testing.T) {
	call := func(s *Server, wallet string) *httptest.ResponseRecorder {
		s.engine.GET("/admin-only", s.WalletRequired(), s.AdminRequired(), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/admin-only", nil)
		if wallet != "" {
			req.Header.Set("X-Wallet-Address", wallet)
		}
		s.engine.ServeHTTP(w, req)
		return w
	}

	t.Run("non-admin wallet", func(t *testing.T) {
		w := call(newTestServer(t, config.Config{AdminAddress: "0xadmin"}), "0xuser")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admin match is case-insensitive", func(t *testing.T) {
		w := call(newTestServer(t, config.Config{AdminAddress: "0xAdmin"}), "0xADMIN")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unset admin address disables the surface", func(t *testing.T) {
		w := call(newTestServer(t, config.Config{}), "0xanything")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestGitHubAuthRequired(t *testing.T) {
	s := newTestServer(t, config.Config{})
	var token string
	s.engine.GET("/gh", s.GitHubAuthRequired(), func(c *gin.Context) {
		token = s.githubToken(c)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	t.Run("missing session", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/gh", nil)
		s.engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "unauthorized", errorType(t, w.Body.Bytes()))
	})

	t.Run("token from cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/gh", nil)
		req.AddCookie(&http.Cookie{Name: session.TokenCookieName, Value: "gho_abc"})
		s.engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "gho_abc", token)
	})
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err      error
		status   int
		typeName string
	}{
		{ErrWalletNotConnected, http.StatusUnauthorized, "wallet_not_connected"},
		{ErrForbidden, http.StatusForbidden, "unauthorized"},
		{ErrUsageLimitReached, http.StatusForbidden, "usage_limit_reached"},
		{ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{subscriptiondomain.ErrInsufficientPayment, http.StatusPaymentRequired, "insufficient_payment"},
		{deploymentdomain.ErrInsufficientPayment, http.StatusPaymentRequired, "insufficient_payment"},
		{paymentdomain.ErrInsufficientBalance, http.StatusPaymentRequired, "insufficient_balance"},
		{subscriptiondomain.ErrAlreadySubscribed, http.StatusConflict, "already_subscribed"},
		{deploymentdomain.ErrInvalidStatusTransition, http.StatusConflict, "invalid_status_transition"},
		{subscriptiondomain.ErrSubscriptionNotFound, http.StatusNotFound, "subscription_not_found"},
		{deploymentdomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{deploymentdomain.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
		{subscriptiondomain.ErrInvalidTier, http.StatusBadRequest, "validation_error"},
		{deploymentdomain.ErrInvalidRepo, http.StatusBadRequest, "validation_error"},
		{paymentdomain.ErrInvalidAmount, http.StatusBadRequest, "validation_error"},
		{assert.AnError, http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		status, payload := mapError(tc.err)
		assert.Equal(t, tc.status, status, "error %v", tc.err)
		assert.Equal(t, tc.typeName, payload.Type, "error %v", tc.err)
	}
}

func TestSanitizeReturnTo(t *testing.T) {
	assert.Equal(t, "/dashboard", sanitizeReturnTo("/dashboard"))
	assert.Equal(t, "/", sanitizeReturnTo(""))
	assert.Equal(t, "/", sanitizeReturnTo("https://evil.example"))
	assert.Equal(t, "/", sanitizeReturnTo("//evil.example"))
	assert.Equal(t, "/a?b=c", sanitizeReturnTo("  /a?b=c "))
}
