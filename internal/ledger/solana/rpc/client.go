package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

//go:generate mockgen -source=client.go -destination=mocks/mock_client.go -package=mocks

// RPCClient abstracts the Solana JSON-RPC interface for testing.
type RPCClient interface {
	GetSlot(ctx context.Context, commitment string) (int64, error)
	GetLatestBlockhash(ctx context.Context, commitment string) (string, error)
	SendTransaction(ctx context.Context, encoded string) (string, error)
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)
	GetAccountInfo(ctx context.Context, address string) (*AccountInfo, error)
	GetProgramAccounts(ctx context.Context, program string, filters []Filter) ([]KeyedAccount, error)
}

type Client struct {
	httpClient *http.Client
	rpcURL     string
	requestID  atomic.Int64
	logger     *slog.Logger
}

func NewClient(rpcURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		rpcURL: rpcURL,
		logger: logger.With("component", "ledger_rpc"),
	}
}

func (c *Client) newRequest(method string, params []interface{}) Request {
	return Request{
		JSONRPC: "2.0",
		ID:      int(c.requestID.Add(1)),
		Method:  method,
		Params:  params,
	}
}

func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	respBody, err := c.post(ctx, c.newRequest(method, params))
	if err != nil {
		return nil, err
	}

	var rpcResp Response
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

func (c *Client) post(ctx context.Context, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
