package types

import "otoledger/crypto"

// Event represents a typed event emitted during state transitions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Receipt reports the outcome of one transaction.
type Receipt struct {
	TxHash    Hash           `json:"txHash"`
	Type      string         `json:"type"`
	Signer    crypto.Address `json:"signer"`
	Nonce     uint64         `json:"nonce"`
	Succeeded bool           `json:"succeeded"`
	Error     string         `json:"error,omitempty"`
	ErrorKind string         `json:"errorKind,omitempty"`

	// Created is the address of the record the operation created, if any.
	Created *crypto.Address `json:"created,omitempty"`
	Events  []Event         `json:"events,omitempty"`
}
