package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shiplet/shiplet/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestCookieLifetimes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	m := NewManager(config.Config{})
	m.SetToken(c, "gho_token")
	m.SetState(c, "nonce")

	cookies := w.Result().Cookies()
	byName := map[string]*http.Cookie{}
	for _, cookie := range cookies {
		byName[cookie.Name] = cookie
	}

	if token := byName[TokenCookieName]; assert.NotNil(t, token) {
		// The access token lives for seven days.
		assert.Equal(t, 7*24*60*60, token.MaxAge)
		assert.True(t, token.HttpOnly)
	}
	if state := byName[StateCookieName]; assert.NotNil(t, state) {
		// The OAuth state nonce lives for five minutes.
		assert.Equal(t, 5*60, state.MaxAge)
		assert.True(t, state.HttpOnly)
	}
}

func TestReadAndClear(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewManager(config.Config{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.AddCookie(&http.Cookie{Name: TokenCookieName, Value: "gho_token"})

	token, ok := m.ReadToken(c)
	assert.True(t, ok)
	assert.Equal(t, "gho_token", token)

	// Blank cookies read as absent.
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.AddCookie(&http.Cookie{Name: TokenCookieName, Value: "   "})
	_, ok = m.ReadToken(c)
	assert.False(t, ok)

	m.Clear(c)
	for _, cookie := range w.Result().Cookies() {
		assert.Less(t, cookie.MaxAge, 0)
	}
}
