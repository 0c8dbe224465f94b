package rpc

import (
	"encoding/json"
	"net/http"

	"otoledger/native/common"
)

const jsonRPCVersion = "2.0"

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
)

// Ledger error kinds occupy -32010..-32023.
var kindCodes = map[common.Kind]int{
	common.KindInsufficientClaimable:  -32010,
	common.KindArithmeticOverflow:     -32011,
	common.KindFilterLanguageMismatch: -32012,
	common.KindFilterDateMismatch:     -32013,
	common.KindBudgetExhausted:        -32014,
	common.KindAuthorizationMismatch:  -32015,
	common.KindStructuralDuplicate:    -32016,
	common.KindNotFound:               -32017,
	common.KindInvalidParams:          -32018,
	common.KindInsufficientFunds:      -32019,
	common.KindModulePaused:           -32020,
	common.KindInvalidSignature:       -32021,
	common.KindInvalidNonce:           -32022,
	common.KindQuotaExceeded:          -32023,
}

// CodeForKind returns the JSON-RPC error code reported for a ledger error kind.
func CodeForKind(kind common.Kind) int {
	if code, ok := kindCodes[kind]; ok {
		return code
	}
	return codeServerError
}

// KindForCode is the inverse of CodeForKind; unknown codes map to KindInternal.
func KindForCode(code int) common.Kind {
	for kind, c := range kindCodes {
		if c == code {
			return kind
		}
	}
	return common.KindInternal
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      json.RawMessage   `json:"id,omitempty"`
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

func writeError(w http.ResponseWriter, status int, id json.RawMessage, rpcErr *RPCError) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: rpcErr})
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result any) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

// statusForKind picks the HTTP status used alongside a ledger error.
func statusForKind(kind common.Kind) int {
	switch kind {
	case common.KindNotFound:
		return http.StatusNotFound
	case common.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case common.KindInternal:
		return http.StatusInternalServerError
	case common.KindStructuralDuplicate, common.KindInvalidNonce:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}
