// Package chain is the thin JSON-RPC client for balance queries, signed
// transaction submission and confirmation reads. View queries go through
// read-only calls, never signed transactions.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shiplet/shiplet/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type TxStatus string

const (
	TxStatusPending TxStatus = "pending"
	TxStatusSuccess TxStatus = "success"
	TxStatusFailure TxStatus = "failure"
)

var ErrNetwork = errors.New("network_error")

type Client struct {
	endpoint   string
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
		endpoint:   p.Cfg.ChainRPCURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        p.Log.Named("chain.client"),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Balance returns the address's balance of the given token, in base units.
func (c *Client) Balance(ctx context.Context, address, token string) (int64, error) {
	var result struct {
		Balance int64 `json:"balance"`
	}
	if err := c.call(ctx, "getBalance", []any{address, token}, &result); err != nil {
		return 0, err
	}
	return result.Balance, nil
}

// SubmitSigned broadcasts a signed transaction payload and returns its digest.
func (c *Client) SubmitSigned(ctx context.Context, signedPayload string) (string, error) {
	var result struct {
		Digest string `json:"digest"`
	}
	if err := c.call(ctx, "submitTransaction", []any{signedPayload}, &result); err != nil {
		return "", err
	}
	if result.Digest == "" {
		return "", ErrNetwork
	}
	return result.Digest, nil
}

// TransactionStatus reads the confirmation state of a submitted transaction.
func (c *Client) TransactionStatus(ctx context.Context, digest string) (TxStatus, error) {
	var result struct {
		Status string `json:"status"`
	}
	if err := c.call(ctx, "getTransactionStatus", []any{digest}, &result); err != nil {
		return "", err
	}

	switch TxStatus(result.Status) {
	case TxStatusPending, TxStatusSuccess, TxStatusFailure:
		return TxStatus(result.Status), nil
	default:
		return "", fmt.Errorf("%w: unknown transaction status %q", ErrNetwork, result.Status)
	}
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: rpc status %d", ErrNetwork, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%w: %s", ErrNetwork, rpcResp.Error.Message)
	}
	return json.Unmarshal(rpcResp.Result, out)
}

var Module = fx.Module("chain.client",
	fx.Provide(NewClient),
)
