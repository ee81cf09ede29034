package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// OAuthLogin starts the GitHub OAuth flow. The CSRF state rides a
// short-lived cookie; the post-login destination rides the OAuth state's
// sibling cookie via the returnTo query parameter.
func (s *Server) OAuthLogin(c *gin.Context) {
	redirect, err := s.oauthsvc.AuthorizeURL(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.sessions.SetState(c, redirect.State)

	returnTo := sanitizeReturnTo(c.Query("returnTo"))
	c.SetCookie("_rt", returnTo, 600, "/", "", s.cfg.CookieSecure, true)

	c.Redirect(http.StatusFound, redirect.URL)
}

// OAuthCallback completes the flow: validates state, exchanges the code
// and stores the access token in an HttpOnly cookie.
func (s *Server) OAuthCallback(c *gin.Context) {
	expected, ok := s.sessions.ReadState(c)
	if !ok || c.Query("state") != expected {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	token, err := s.oauthsvc.Exchange(c.Request.Context(), c.Query("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.sessions.SetToken(c, token)

	returnTo := "/"
	if value, cerr := c.Cookie("_rt"); cerr == nil {
		returnTo = sanitizeReturnTo(value)
	}
	c.SetCookie("_rt", "", -1, "/", "", s.cfg.CookieSecure, true)

	c.Redirect(http.StatusFound, returnTo)
}

func (s *Server) Logout(c *gin.Context) {
	s.sessions.Clear(c)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// sanitizeReturnTo only allows same-site absolute paths.
func sanitizeReturnTo(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || !strings.HasPrefix(value, "/") || strings.HasPrefix(value, "//") {
		return "/"
	}
	return value
}
