package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"otoledger/core"
	"otoledger/core/events"
	"otoledger/core/types"
	"otoledger/crypto"
	"otoledger/native/common"
	"otoledger/storage"
)

type testEnv struct {
	node   *core.Node
	server *httptest.Server
	client *Client
	admin  *crypto.PrivateKey
}

func newTestEnv(t *testing.T, cfg ServerConfig, clientOpts ...ClientOption) *testEnv {
	t.Helper()
	node := core.NewNode(storage.NewMemDB())
	t.Cleanup(func() { node.Close() })
	srv, err := NewServer(node, cfg, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	client, err := NewClient(ts.URL, clientOpts...)
	require.NoError(t, err)
	admin, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return &testEnv{node: node, server: ts, client: client, admin: admin}
}

func (e *testEnv) bootstrap(t *testing.T) {
	t.Helper()
	receipt, err := e.client.SignAndSend(context.Background(), e.admin, types.TxTypeInitializeConfig, &types.InitializeConfigArgs{})
	require.NoError(t, err)
	require.True(t, receipt.Succeeded)
}

func (e *testEnv) post(t *testing.T, body string) (*http.Response, RPCResponse) {
	t.Helper()
	resp, err := http.Post(e.server.URL+"/rpc", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestSendTransactionAndQueries(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	env.bootstrap(t)
	ctx := context.Background()

	holder := crypto.Address{7}
	receipt, err := env.client.SignAndSend(ctx, env.admin, types.TxTypeMint, &types.MintArgs{Beneficiary: holder, Amount: 42})
	require.NoError(t, err)
	require.Equal(t, "mint", receipt.Type)
	require.Len(t, receipt.Events, 1)

	balance, err := env.client.Balance(ctx, holder)
	require.NoError(t, err)
	require.Equal(t, uint64(42), balance)

	nonce, err := env.client.Nonce(ctx, env.admin.PubKey().Address())
	require.NoError(t, err)
	require.Equal(t, uint64(2), nonce)

	var cfg ConfigResult
	require.NoError(t, env.client.Call(ctx, "oto_getConfig", &cfg))
	require.Equal(t, env.admin.PubKey().Address(), cfg.Config.Admin)
	require.Equal(t, types.ConfigAddress().Address, cfg.Address)

	var derived DeriveResult
	require.NoError(t, env.client.Call(ctx, "oto_deriveAddress", &derived, "mint"))
	require.Equal(t, types.MintAddress().Address, derived.Address)
}

func TestSendTransactionFailureCarriesKind(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	env.bootstrap(t)
	ctx := context.Background()

	owner, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	_, err = env.client.SignAndSend(ctx, env.admin, types.TxTypeInitializeUser, &types.InitializeUserArgs{UserID: "carol", Owner: owner.PubKey().Address()})
	require.NoError(t, err)

	receipt, err := env.client.SignAndSend(ctx, owner, types.TxTypeClaim, &types.ClaimArgs{UserID: "carol", Amount: 1})
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	require.Equal(t, CodeForKind(common.KindInsufficientClaimable), rpcErr.Code)
	require.NotNil(t, receipt)
	require.False(t, receipt.Succeeded)
	require.Equal(t, string(common.KindInsufficientClaimable), receipt.ErrorKind)

	var user UserResult
	require.NoError(t, env.client.Call(ctx, "oto_getUser", &user, "carol"))
	require.Equal(t, owner.PubKey().Address(), user.User.Owner)

	err = env.client.Call(ctx, "oto_getUser", nil, "nobody")
	require.True(t, errors.As(err, &rpcErr))
	require.Equal(t, CodeForKind(common.KindNotFound), rpcErr.Code)
}

func TestUnknownMethodAndMalformedBodies(t *testing.T) {
	env := newTestEnv(t, ServerConfig{MaxBodyBytes: 64})

	resp, out := env.post(t, `{"jsonrpc":"2.0","method":"oto_nope","id":1}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, codeMethodNotFound, out.Error.Code)

	resp, out = env.post(t, `{"jsonrpc":"2.0","method":`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, codeParseError, out.Error.Code)

	resp, out = env.post(t, `{"jsonrpc":"2.0","method":"oto_getNonce","params":["`+strings.Repeat("x", 128)+`"]}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	require.Equal(t, codeInvalidRequest, out.Error.Code)

	resp, out = env.post(t, `{"jsonrpc":"2.0","method":"oto_getNonce","params":["bogus"],"id":2}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, codeInvalidParams, out.Error.Code)
}

func TestWriteMethodsRequireToken(t *testing.T) {
	const secret = "rpc-test-secret"
	cfg := ServerConfig{JWTSecret: secret, JWTIssuer: "oto-tests"}
	env := newTestEnv(t, cfg)

	_, err := env.client.SignAndSend(context.Background(), env.admin, types.TxTypeInitializeConfig, &types.InitializeConfigArgs{})
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	require.Equal(t, codeUnauthorized, rpcErr.Code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "oto-tests",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	authed, err := NewClient(env.server.URL, WithBearerToken(token))
	require.NoError(t, err)
	receipt, err := authed.SignAndSend(context.Background(), env.admin, types.TxTypeInitializeConfig, &types.InitializeConfigArgs{})
	require.NoError(t, err)
	require.True(t, receipt.Succeeded)

	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Issuer: "someone-else"}).SignedString([]byte(secret))
	require.NoError(t, err)
	other, err := NewClient(env.server.URL, WithBearerToken(wrongIssuer))
	require.NoError(t, err)
	err = other.Call(context.Background(), "oto_sendTransaction", nil, map[string]any{})
	require.True(t, errors.As(err, &rpcErr))
	require.Equal(t, codeUnauthorized, rpcErr.Code)
}

func TestWriteMethodsRateLimited(t *testing.T) {
	env := newTestEnv(t, ServerConfig{RateLimitPerSec: 0.001, RateBurst: 1})

	resp, out := env.post(t, `{"jsonrpc":"2.0","method":"oto_sendTransaction","params":[],"id":1}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, codeInvalidParams, out.Error.Code)

	resp, out = env.post(t, `{"jsonrpc":"2.0","method":"oto_sendTransaction","params":[],"id":2}`)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, CodeForKind(common.KindQuotaExceeded), out.Error.Code)

	// Reads are not throttled.
	resp, _ = env.post(t, `{"jsonrpc":"2.0","method":"oto_getNonce","params":["0x0000000000000000000000000000000000000001"],"id":3}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthzAndRequestID(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	resp, err := http.Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestProxyResolverHonoursTrustedHops(t *testing.T) {
	resolver, err := newProxyResolver([]string{"10.0.0.0/8", "192.168.1.1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 192.168.1.1")
	require.Equal(t, "203.0.113.9", resolver.clientIP(req))

	req.RemoteAddr = "198.51.100.4:5555"
	require.Equal(t, "198.51.100.4", resolver.clientIP(req))

	_, err = newProxyResolver([]string{"not-an-ip"})
	require.Error(t, err)
}

func TestEventStreamDeliversCommittedEvents(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	env.bootstrap(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws?types=" + events.TypeTokenMinted
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	received := make(chan StreamMessage, 1)
	go func() {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg StreamMessage
		if json.Unmarshal(data, &msg) == nil {
			received <- msg
		}
	}()

	// The subscription is registered after the upgrade completes, so keep
	// minting until the first event arrives.
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		_, err := env.client.SignAndSend(ctx, env.admin, types.TxTypeMint, &types.MintArgs{Beneficiary: crypto.Address{3}, Amount: 1})
		require.NoError(t, err)
		select {
		case msg := <-received:
			require.Equal(t, events.TypeTokenMinted, msg.Type)
			require.Equal(t, "mint", msg.Op)
			require.Equal(t, "1", msg.Attributes["amount"])
			return
		case <-ticker.C:
		case <-ctx.Done():
			t.Fatalf("no event received: %v", ctx.Err())
		}
	}
}
