// Package githubapi proxies repository listing to the GitHub REST API on
// behalf of the logged-in user. Responses pass through verbatim so the
// frontend sees exactly what GitHub returned.
package githubapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shiplet/shiplet/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrUnauthorized = errors.New("unauthorized")

type ListReposRequest struct {
	Token   string
	Page    int
	PerPage int
}

// RepoPage is a raw GitHub response: status code plus the unparsed JSON body.
type RepoPage struct {
	StatusCode int
	Body       []byte
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

type Params struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
}

func NewClient(p Params) *Client {
	return &Client{
		baseURL:    strings.TrimRight(p.Cfg.GitHubAPIBaseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        p.Log.Named("githubapi.client"),
	}
}

// ListRepos fetches one page of the user's repositories, newest first.
func (c *Client) ListRepos(ctx context.Context, req ListReposRequest) (*RepoPage, error) {
	if strings.TrimSpace(req.Token) == "" {
		return nil, ErrUnauthorized
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PerPage < 1 || req.PerPage > 100 {
		req.PerPage = 30
	}

	query := url.Values{}
	query.Set("sort", "updated")
	query.Set("page", fmt.Sprintf("%d", req.Page))
	query.Set("per_page", fmt.Sprintf("%d", req.PerPage))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/user/repos?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	httpReq.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &RepoPage{StatusCode: resp.StatusCode, Body: body}, nil
}

var Module = fx.Module("githubapi.client",
	fx.Provide(NewClient),
)
