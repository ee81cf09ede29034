// Package oauth implements the GitHub OAuth authorization-code relay.
// The server never persists GitHub credentials; the exchanged access
// token lives only in the caller's session cookie.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shiplet/shiplet/internal/config"
	"go.uber.org/fx"
)

const defaultTokenSize = 32

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrInvalidState   = errors.New("invalid_state")
	ErrUnauthorized   = errors.New("unauthorized")
)

type Service interface {
	AuthorizeURL(ctx context.Context) (*RedirectResult, error)
	Exchange(ctx context.Context, code string) (string, error)
}

type RedirectResult struct {
	URL   string
	State string
}

type service struct {
	cfg        config.Config
	httpClient *http.Client
}

type Params struct {
	fx.In

	Cfg config.Config
}

func NewService(p Params) Service {
	return &service{
		cfg:        p.Cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// AuthorizeURL builds the GitHub authorize redirect with a fresh state token.
// The caller is responsible for round-tripping the state through a cookie.
func (s *service) AuthorizeURL(ctx context.Context) (*RedirectResult, error) {
	_ = ctx

	if strings.TrimSpace(s.cfg.GitHubClientID) == "" {
		return nil, ErrInvalidRequest
	}

	state, err := randomToken(defaultTokenSize)
	if err != nil {
		return nil, err
	}

	parsed, err := url.Parse(s.cfg.GitHubAuthorizeURL)
	if err != nil {
		return nil, err
	}
	query := parsed.Query()
	query.Set("client_id", s.cfg.GitHubClientID)
	query.Set("scope", "repo")
	query.Set("state", state)
	parsed.RawQuery = query.Encode()

	return &RedirectResult{URL: parsed.String(), State: state}, nil
}

// Exchange trades an authorization code for a GitHub access token.
func (s *service) Exchange(ctx context.Context, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", ErrInvalidRequest
	}

	form := url.Values{}
	form.Set("client_id", s.cfg.GitHubClientID)
	form.Set("client_secret", s.cfg.GitHubClientSecret)
	form.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.GitHubTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", ErrUnauthorized
	}

	// GitHub answers JSON when asked, form-encoded otherwise.
	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &token); err == nil && token.AccessToken != "" {
		return token.AccessToken, nil
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return "", ErrUnauthorized
	}
	if accessToken := values.Get("access_token"); accessToken != "" {
		return accessToken, nil
	}
	return "", ErrUnauthorized
}

func randomToken(size int) (string, error) {
	if size <= 0 {
		size = defaultTokenSize
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
