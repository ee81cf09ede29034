package server

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shiplet/shiplet/internal/githubapi"
)

// ListGitHubRepos proxies the user's repository listing. GitHub's JSON and
// status code pass through untouched; successful pages are cached briefly.
func (s *Server) ListGitHubRepos(c *gin.Context) {
	token := s.githubToken(c)
	page := queryInt(c, "page", 1)
	perPage := queryInt(c, "per_page", 30)

	if body, ok := s.repoCache.Get(c.Request.Context(), token, page, perPage); ok {
		c.Data(200, "application/json", body)
		return
	}

	result, err := s.githubClient.ListRepos(c.Request.Context(), githubapi.ListReposRequest{
		Token:   token,
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if result.StatusCode == 200 {
		s.repoCache.Set(c.Request.Context(), token, page, perPage, result.Body)
	}
	c.Data(result.StatusCode, "application/json", result.Body)
}

func queryInt(c *gin.Context, key string, def int) int {
	value := c.Query(key)
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
