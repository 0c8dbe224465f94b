package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"otoledger/core"
	"otoledger/core/types"
	"otoledger/crypto"
	"otoledger/native/common"
	"otoledger/observability"
)

type methodFunc func(ctx context.Context, params []json.RawMessage) (any, *RPCError)

type method struct {
	write bool
	fn    methodFunc
}

func (s *Server) methods() map[string]method {
	return map[string]method{
		"oto_sendTransaction":    {write: true, fn: s.sendTransaction},
		"oto_getConfig":          {fn: s.getConfig},
		"oto_getUser":            {fn: s.getUser},
		"oto_getAsset":           {fn: s.getAsset},
		"oto_getPurchaseRequest": {fn: s.getPurchaseRequest},
		"oto_getOffer":           {fn: s.getOffer},
		"oto_getProof":           {fn: s.getProof},
		"oto_getBalance":         {fn: s.getBalance},
		"oto_getNonce":           {fn: s.getNonce},
		"oto_deriveAddress":      {fn: s.deriveAddress},
	}
}

// handle decodes one JSON-RPC request and dispatches it.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	w.Header().Set("Content-Type", "application/json")
	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer reader.Close()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxBodyBytes)
		}
		writeError(w, status, nil, &RPCError{Code: codeInvalidRequest, Message: message})
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, &RPCError{Code: codeInvalidRequest, Message: "request body required"})
		return
	}
	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, &RPCError{Code: codeParseError, Message: "invalid JSON payload", Data: err.Error()})
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, &RPCError{Code: codeInvalidRequest, Message: "unsupported jsonrpc version", Data: req.JSONRPC})
		return
	}

	m, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, &RPCError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method %s", req.Method)})
		observability.ModuleMetrics().Observe(req.Method, codeMethodNotFound, time.Since(start))
		return
	}
	if m.write {
		if authErr := s.auth.check(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr)
			observability.ModuleMetrics().Observe(req.Method, authErr.Code, time.Since(start))
			return
		}
		client := s.proxies.clientIP(r)
		if !s.limiter.allow(client) {
			observability.ModuleMetrics().RecordThrottle("rate_limit")
			rpcErr := &RPCError{Code: CodeForKind(common.KindQuotaExceeded), Message: "rate limit exceeded", Data: client}
			writeError(w, http.StatusTooManyRequests, req.ID, rpcErr)
			observability.ModuleMetrics().Observe(req.Method, rpcErr.Code, time.Since(start))
			return
		}
	}

	result, rpcErr := m.fn(r.Context(), req.Params)
	code := 0
	if rpcErr != nil {
		code = rpcErr.Code
		status := http.StatusBadRequest
		if kind := KindForCode(rpcErr.Code); kind != common.KindInternal {
			status = statusForKind(kind)
		} else if rpcErr.Code == codeServerError {
			status = http.StatusInternalServerError
		}
		writeError(w, status, req.ID, rpcErr)
	} else {
		writeResult(w, req.ID, result)
	}
	observability.ModuleMetrics().Observe(req.Method, code, time.Since(start))
	s.logger.Debug("rpc request",
		slog.String("method", req.Method),
		slog.String("request_id", requestIDFrom(r.Context())),
		slog.Int("code", code),
		slog.Duration("duration", time.Since(start)))
}

func invalidParams(message string, err error) *RPCError {
	rpcErr := &RPCError{Code: codeInvalidParams, Message: message}
	if err != nil {
		rpcErr.Data = err.Error()
	}
	return rpcErr
}

// ledgerError maps an error returned by the node onto its JSON-RPC code.
func ledgerError(err error, data any) *RPCError {
	kind := common.KindOf(err)
	return &RPCError{Code: CodeForKind(kind), Message: err.Error(), Data: data}
}

func stringParam(params []json.RawMessage, i int, name string) (string, *RPCError) {
	if len(params) <= i {
		return "", invalidParams(name+" parameter required", nil)
	}
	var out string
	if err := json.Unmarshal(params[i], &out); err != nil {
		return "", invalidParams(name+" must be a string", err)
	}
	return out, nil
}

func addressParam(params []json.RawMessage, i int, name string) (crypto.Address, *RPCError) {
	raw, rpcErr := stringParam(params, i, name)
	if rpcErr != nil {
		return crypto.Address{}, rpcErr
	}
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return crypto.Address{}, invalidParams("invalid "+name, err)
	}
	return addr, nil
}

func (s *Server) sendTransaction(ctx context.Context, params []json.RawMessage) (any, *RPCError) {
	if len(params) == 0 {
		return nil, invalidParams("transaction parameter required", nil)
	}
	var tx types.Transaction
	if err := json.Unmarshal(params[0], &tx); err != nil {
		return nil, invalidParams("invalid transaction format", err)
	}
	receipt, err := s.node.SubmitTransaction(ctx, &tx)
	if err != nil {
		if receipt == nil {
			return nil, ledgerError(err, nil)
		}
		return nil, ledgerError(err, receipt)
	}
	return receipt, nil
}

type ConfigResult struct {
	Address  crypto.Address       `json:"address"`
	Config   *types.Config        `json:"config"`
	Mint     *types.Mint          `json:"mint"`
	Metadata *types.TokenMetadata `json:"metadata"`
}

func (s *Server) getConfig(_ context.Context, _ []json.RawMessage) (any, *RPCError) {
	cfg, err := s.node.Config()
	if err != nil {
		return nil, ledgerError(err, nil)
	}
	mint, meta, err := s.node.Mint()
	if err != nil {
		return nil, ledgerError(err, nil)
	}
	return ConfigResult{Address: types.ConfigAddress().Address, Config: cfg, Mint: mint, Metadata: meta}, nil
}

type UserResult struct {
	Address crypto.Address `json:"address"`
	User    *types.User    `json:"user"`
}

func (s *Server) getUser(_ context.Context, params []json.RawMessage) (any, *RPCError) {
	userID, rpcErr := stringParam(params, 0, "userId")
	if rpcErr != nil {
		return nil, rpcErr
	}
	addr, user, err := s.node.User(userID)
	if err != nil {
		return nil, ledgerError(err, nil)
	}
	return UserResult{Address: addr, User: user}, nil
}

// RecordResult wraps a record with the address it was read from.
type RecordResult[T any] struct {
	Address crypto.Address `json:"address"`
	Record  T              `json:"record"`
}

func lookup[T any](params []json.RawMessage, load func(crypto.Address) (T, error)) (any, *RPCError) {
	addr, rpcErr := addressParam(params, 0, "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	rec, err := load(addr)
	if err != nil {
		return nil, ledgerError(err, nil)
	}
	return RecordResult[T]{Address: addr, Record: rec}, nil
}

func (s *Server) getAsset(_ context.Context, params []json.RawMessage) (any, *RPCError) {
	return lookup(params, s.node.Asset)
}

func (s *Server) getPurchaseRequest(_ context.Context, params []json.RawMessage) (any, *RPCError) {
	return lookup(params, s.node.PurchaseRequest)
}

func (s *Server) getOffer(_ context.Context, params []json.RawMessage) (any, *RPCError) {
	return lookup(params, s.node.Offer)
}

func (s *Server) getProof(_ context.Context, params []json.RawMessage) (any, *RPCError) {
	return lookup(params, s.node.Proof)
}

type BalanceResult struct {
	Owner   crypto.Address `json:"owner"`
	Account crypto.Address `json:"account"`
	Balance uint64         `json:"balance"`
}

func (s *Server) getBalance(_ context.Context, params []json.RawMessage) (any, *RPCError) {
	owner, rpcErr := addressParam(params, 0, "owner")
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := s.node.Balance(owner)
	if err != nil {
		return nil, ledgerError(err, nil)
	}
	account := types.AssociatedTokenAddress(owner, types.MintAddress().Address).Address
	return BalanceResult{Owner: owner, Account: account, Balance: balance}, nil
}

type NonceResult struct {
	Address crypto.Address `json:"address"`
	Nonce   uint64         `json:"nonce"`
}

func (s *Server) getNonce(_ context.Context, params []json.RawMessage) (any, *RPCError) {
	addr, rpcErr := addressParam(params, 0, "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	nonce, err := s.node.Nonce(addr)
	if err != nil {
		return nil, ledgerError(err, nil)
	}
	return NonceResult{Address: addr, Nonce: nonce}, nil
}

type DeriveResult struct {
	Kind    string         `json:"kind"`
	Address crypto.Address `json:"address"`
	Bump    uint8          `json:"bump"`
}

func (s *Server) deriveAddress(_ context.Context, params []json.RawMessage) (any, *RPCError) {
	kind, rpcErr := stringParam(params, 0, "kind")
	if rpcErr != nil {
		return nil, rpcErr
	}
	args := make([]string, 0, len(params)-1)
	for i := 1; i < len(params); i++ {
		arg, rpcErr := stringParam(params, i, fmt.Sprintf("param %d", i))
		if rpcErr != nil {
			return nil, rpcErr
		}
		args = append(args, arg)
	}
	derived, err := core.DeriveAddress(kind, args...)
	if err != nil {
		return nil, ledgerError(err, nil)
	}
	return DeriveResult{Kind: kind, Address: derived.Address, Bump: derived.Bump}, nil
}
