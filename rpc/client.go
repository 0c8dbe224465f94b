package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"otoledger/core/types"
	"otoledger/crypto"
)

// Client calls a node's JSON-RPC endpoint.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	nextID     atomic.Uint64
}

// ClientOption mutates the client during construction.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithBearerToken attaches a JWT to every request.
func WithBearerToken(token string) ClientOption {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// NewClient targets baseURL, e.g. "http://127.0.0.1:8547". The /rpc path is
// appended when missing.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("rpc: endpoint required")
	}
	if !strings.HasSuffix(endpoint, "/rpc") {
		endpoint += "/rpc"
	}
	c := &Client{endpoint: endpoint, httpClient: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Call invokes method and decodes the result into out, which may be nil.
// JSON-RPC failures are returned as *RPCError.
func (c *Client) Call(ctx context.Context, method string, out any, params ...any) error {
	raw := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("rpc: encode %s params: %w", method, err)
		}
		raw = append(raw, b)
	}
	id, _ := json.Marshal(c.nextID.Add(1))
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: raw, ID: id})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("rpc: %s: unexpected response (HTTP %d): %w", method, resp.StatusCode, err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}

// SendTransaction submits a signed transaction. On rejection the receipt is
// still returned when the node supplied one.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	var receipt types.Receipt
	err := c.Call(ctx, "oto_sendTransaction", &receipt, tx)
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) && rpcErr.Data != nil {
		if b, mErr := json.Marshal(rpcErr.Data); mErr == nil && json.Unmarshal(b, &receipt) == nil && receipt.Type != "" {
			return &receipt, err
		}
	}
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *Client) Nonce(ctx context.Context, addr crypto.Address) (uint64, error) {
	var res NonceResult
	if err := c.Call(ctx, "oto_getNonce", &res, addr.String()); err != nil {
		return 0, err
	}
	return res.Nonce, nil
}

func (c *Client) Balance(ctx context.Context, owner crypto.Address) (uint64, error) {
	var res BalanceResult
	if err := c.Call(ctx, "oto_getBalance", &res, owner.String()); err != nil {
		return 0, err
	}
	return res.Balance, nil
}

// SignAndSend fetches the signer's nonce, signs a transaction carrying args
// and submits it.
func (c *Client) SignAndSend(ctx context.Context, key *crypto.PrivateKey, txType types.TxType, args any) (*types.Receipt, error) {
	nonce, err := c.Nonce(ctx, key.PubKey().Address())
	if err != nil {
		return nil, err
	}
	tx, err := types.NewTransaction(txType, nonce, args)
	if err != nil {
		return nil, err
	}
	if err := tx.Sign(key); err != nil {
		return nil, err
	}
	return c.SendTransaction(ctx, tx)
}
