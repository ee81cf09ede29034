package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shiplet/shiplet/internal/githubapi"
)

const walletAddressKey = "wallet_address"

// WalletRequired extracts the caller's wallet address from the
// X-Wallet-Address header. The wallet itself signed nothing here; the
// header only identifies which ledger entries the request may touch, and
// on-chain operations still require a signed transaction.
func (s *Server) WalletRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		address := strings.ToLower(strings.TrimSpace(c.GetHeader("X-Wallet-Address")))
		if address == "" {
			AbortWithError(c, ErrWalletNotConnected)
			return
		}
		c.Set(walletAddressKey, address)
		c.Next()
	}
}

// AdminRequired gates privileged operations on the configured admin
// principal. An empty configured address disables the admin surface.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		admin := strings.ToLower(strings.TrimSpace(s.cfg.AdminAddress))
		if admin == "" || s.walletAddress(c) != admin {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

// GitHubAuthRequired requires a GitHub access token in the session cookie.
func (s *Server) GitHubAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			AbortWithError(c, githubapi.ErrUnauthorized)
			return
		}
		c.Set("github_token", token)
		c.Next()
	}
}

// DeployRateLimit throttles deployment submissions per wallet.
func (s *Server) DeployRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deployLimiter != nil && !s.deployLimiter.Allow(c.Request.Context(), s.walletAddress(c)) {
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func (s *Server) walletAddress(c *gin.Context) string {
	return c.GetString(walletAddressKey)
}

func (s *Server) githubToken(c *gin.Context) string {
	return c.GetString("github_token")
}
