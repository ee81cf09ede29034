// Package buildsvc is the client for the external build/deploy backend.
// The backend is opaque: we send the repository URL and the payment
// reference, it returns a build result.
package buildsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shiplet/shiplet/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrBackend = errors.New("backend_error")

type Request struct {
	GithubURL         string `json:"githubUrl"`
	TransactionDigest string `json:"transactionDigest,omitempty"`
	DeploymentID      string `json:"deploymentId,omitempty"`
	PaymentMethod     string `json:"paymentMethod"`
}

type Result struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	BuildID    string `json:"buildId"`
	PublicHost string `json:"publicHost"`
	PublicURL  string `json:"publicUrl"`
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
		baseURL:    strings.TrimRight(p.Cfg.BuildBackendURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        p.Log.Named("buildsvc.client"),
	}
}

// TriggerBuild submits a build job. A reachable backend reporting failure
// comes back as ErrBackend carrying the backend's message.
func (c *Client) TriggerBuild(ctx context.Context, req Request) (Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Result{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/build", bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Result{}, fmt.Errorf("%w: build backend status %d", ErrBackend, resp.StatusCode)
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	if !result.Success {
		message := strings.TrimSpace(result.Message)
		if message == "" {
			message = "build rejected"
		}
		return result, fmt.Errorf("%w: %s", ErrBackend, message)
	}

	c.log.Info("build triggered",
		zap.String("build_id", result.BuildID),
		zap.String("public_url", result.PublicURL),
	)
	return result, nil
}

var Module = fx.Module("buildsvc.client",
	fx.Provide(NewClient),
)
