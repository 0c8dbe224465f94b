package common

import (
	"otoledger/core/types"
	"otoledger/crypto"
)

// Reader loads committed or buffered records.
type Reader interface {
	Load(addr crypto.Address, rec types.Record) error
}

// State is the record store native modules operate on. The ledger's
// transaction type implements it; tests may use an in-memory fake.
type State interface {
	Reader
	Exists(addr crypto.Address) (bool, error)
	Create(addr crypto.Address, rec types.Record) error
	Store(addr crypto.Address, rec types.Record) error
	AppendEvent(evt *types.Event)
}

// Signer proves authority over an address.
type Signer interface {
	Authorizes(authority crypto.Address) error
}

// KeySigner is the address recovered from a transaction signature.
type KeySigner crypto.Address

func (k KeySigner) Authorizes(authority crypto.Address) error {
	if crypto.Address(k) != authority {
		return ErrAuthorizationMismatch
	}
	return nil
}
