package buildsvc

import (
	"context"
	"encoding/json"
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

func TestTriggerBuild(t *testing.T) {
	var got Request
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/build", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{
			"success": true,
			"buildId": "bld-1",
			"publicHost": "site-1.example",
			"publicUrl": "https://site-1.example"
		}`))
	})

	result, err := client.TriggerBuild(context.Background(), Request{
		GithubURL:         "github.com/acme/site",
		TransactionDigest: "0xdigest",
		DeploymentID:      "123",
		PaymentMethod:     "USDC",
	})
	assert.NoError(t, err)
	assert.Equal(t, "bld-1", result.BuildID)
	assert.Equal(t, "https://site-1.example", result.PublicURL)
	assert.Equal(t, "github.com/acme/site", got.GithubURL)
	assert.Equal(t, "0xdigest", got.TransactionDigest)
}

func TestTriggerBuildBackendRejection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "message": "no package.json"}`))
	})

	_, err := client.TriggerBuild(context.Background(), Request{GithubURL: "github.com/acme/site"})
	assert.ErrorIs(t, err, ErrBackend)
	assert.Contains(t, err.Error(), "no package.json")
}

func TestTriggerBuildBackendRejectionWithoutMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false}`))
	})

	_, err := client.TriggerBuild(context.Background(), Request{GithubURL: "github.com/acme/site"})
	assert.ErrorIs(t, err, ErrBackend)
	assert.Contains(t, err.Error(), "build rejected")
}

func TestTriggerBuildHTTPFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.TriggerBuild(context.Background(), Request{GithubURL: "github.com/acme/site"})
	assert.ErrorIs(t, err, ErrBackend)
}
