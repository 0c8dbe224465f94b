package common

import (
	"errors"

	"otoledger/core/types"
	"otoledger/crypto"
)

// Error kinds shared by every native module. Module sentinels wrap one of
// these so callers can classify failures with errors.Is or KindOf.
var (
	ErrInsufficientClaimable  = errors.New("insufficient claimable amount")
	ErrArithmeticOverflow     = errors.New("arithmetic overflow")
	ErrFilterLanguageMismatch = errors.New("language filter mismatch")
	ErrFilterDateMismatch     = errors.New("date filter mismatch")
	ErrBudgetExhausted        = errors.New("purchase budget exhausted")
	ErrAuthorizationMismatch  = errors.New("authorization mismatch")
	ErrStructuralDuplicate    = errors.New("record already exists")
	ErrNotFound               = errors.New("record not found")
	ErrInvalidParams          = errors.New("invalid parameters")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrInvalidNonce           = errors.New("invalid nonce")
)

// Kind names a class of failure for receipts, logs and RPC error codes.
type Kind string

const (
	KindNone                   Kind = ""
	KindInsufficientClaimable  Kind = "InsufficientClaimable"
	KindArithmeticOverflow     Kind = "ArithmeticOverflow"
	KindFilterLanguageMismatch Kind = "FilterLanguageMismatch"
	KindFilterDateMismatch     Kind = "FilterDateMismatch"
	KindBudgetExhausted        Kind = "BudgetExhausted"
	KindAuthorizationMismatch  Kind = "AuthorizationMismatch"
	KindStructuralDuplicate    Kind = "StructuralDuplicate"
	KindNotFound               Kind = "NotFound"
	KindInvalidParams          Kind = "InvalidParams"
	KindInsufficientFunds      Kind = "InsufficientFunds"
	KindModulePaused           Kind = "ModulePaused"
	KindInvalidSignature       Kind = "InvalidSignature"
	KindInvalidNonce           Kind = "InvalidNonce"
	KindQuotaExceeded          Kind = "QuotaExceeded"
	KindInternal               Kind = "Internal"
)

var kindTable = []struct {
	err  error
	kind Kind
}{
	{ErrInsufficientClaimable, KindInsufficientClaimable},
	{ErrArithmeticOverflow, KindArithmeticOverflow},
	{ErrFilterLanguageMismatch, KindFilterLanguageMismatch},
	{ErrFilterDateMismatch, KindFilterDateMismatch},
	{ErrBudgetExhausted, KindBudgetExhausted},
	{ErrAuthorizationMismatch, KindAuthorizationMismatch},
	{crypto.ErrSignerMismatch, KindAuthorizationMismatch},
	{ErrStructuralDuplicate, KindStructuralDuplicate},
	{types.ErrRecordExists, KindStructuralDuplicate},
	{ErrNotFound, KindNotFound},
	{types.ErrRecordNotFound, KindNotFound},
	{ErrInvalidParams, KindInvalidParams},
	{types.ErrRecordKind, KindInvalidParams},
	{ErrInsufficientFunds, KindInsufficientFunds},
	{ErrModulePaused, KindModulePaused},
	{ErrInvalidSignature, KindInvalidSignature},
	{types.ErrInvalidSignature, KindInvalidSignature},
	{types.ErrMissingSignature, KindInvalidSignature},
	{ErrInvalidNonce, KindInvalidNonce},
	{ErrQuotaRequestsExceeded, KindQuotaExceeded},
	{ErrQuotaUnitsExceeded, KindQuotaExceeded},
}

// KindOf classifies err. Unknown errors are KindInternal; nil is KindNone.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, entry := range kindTable {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindInternal
}

// NotFound converts a missing-record error into ErrNotFound tagged with what
// was looked up, passing other errors through.
func NotFound(err error, what string) error {
	if errors.Is(err, types.ErrRecordNotFound) {
		return &kindError{kind: ErrNotFound, msg: what + " not found"}
	}
	return err
}

// Duplicate converts a create collision into ErrStructuralDuplicate.
func Duplicate(err error, what string) error {
	if errors.Is(err, types.ErrRecordExists) {
		return &kindError{kind: ErrStructuralDuplicate, msg: what + " already exists"}
	}
	return err
}

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }
