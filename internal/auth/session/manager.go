package session

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shiplet/shiplet/internal/config"
)

const (
	TokenCookieName = "_ght"
	StateCookieName = "_ghs"

	tokenMaxAge = 7 * 24 * 60 * 60
	stateMaxAge = 5 * 60
)

// Manager manages the GitHub session cookies: the access token after a
// completed OAuth exchange, and the short-lived state nonce during one.
type Manager struct {
	secure bool
}

func NewManager(cfg config.Config) *Manager {
	return &Manager{secure: cfg.CookieSecure}
}

func (m *Manager) ReadToken(c *gin.Context) (string, bool) {
	return m.read(c, TokenCookieName)
}

func (m *Manager) SetToken(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(TokenCookieName, token, tokenMaxAge, "/", "", m.secure, true)
}

func (m *Manager) ReadState(c *gin.Context) (string, bool) {
	return m.read(c, StateCookieName)
}

func (m *Manager) SetState(c *gin.Context, state string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(StateCookieName, state, stateMaxAge, "/", "", m.secure, true)
}

func (m *Manager) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(TokenCookieName, "", -1, "/", "", m.secure, true)
	c.SetCookie(StateCookieName, "", -1, "/", "", m.secure, true)
}

func (m *Manager) read(c *gin.Context, name string) (string, bool) {
	value, err := c.Cookie(name)
	if err != nil {
		return "", false
	}
	if strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}
