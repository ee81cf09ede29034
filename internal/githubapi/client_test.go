package githubapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &Client{
		baseURL:    server.URL,
		httpClient: server.Client(),
		log:        zaptest.NewLogger(t),
	}
}

func TestListRepos(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"full_name":"acme/site"}]`))
	})

	page, err := client.ListRepos(context.Background(), ListReposRequest{
		Token:   "gho_abc",
		Page:    2,
		PerPage: 50,
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, []byte(`[{"full_name":"acme/site"}]`), page.Body)
	assert.Equal(t, "/user/repos", gotPath)
	assert.Equal(t, "page=2&per_page=50&sort=updated", gotQuery)
	assert.Equal(t, "Bearer gho_abc", gotAuth)
}

func TestListReposDefaultsPaging(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := client.ListRepos(context.Background(), ListReposRequest{Token: "gho_abc", Page: -3, PerPage: 500})
	assert.NoError(t, err)
	assert.Equal(t, "page=1&per_page=30&sort=updated", gotQuery)
}

func TestListReposPassesThroughGitHubErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
	})

	page, err := client.ListRepos(context.Background(), ListReposRequest{Token: "gho_expired"})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, page.StatusCode)
	assert.Contains(t, string(page.Body), "Bad credentials")
}

func TestListReposRequiresToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected without a token")
	})

	_, err := client.ListRepos(context.Background(), ListReposRequest{Token: "   "})
	assert.ErrorIs(t, err, ErrUnauthorized)
}
