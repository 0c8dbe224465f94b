package types

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"

	"otoledger/crypto"
)

// TxType selects the ledger operation a transaction invokes.
type TxType byte

const (
	TxTypeInitializeConfig        TxType = 0x01 // Bootstrap config, mint and metadata
	TxTypeInitializeUser          TxType = 0x02 // Create a points record
	TxTypeUpdatePoint             TxType = 0x03 // Admin credits points
	TxTypeClaim                   TxType = 0x04 // Owner converts points into tokens
	TxTypeMint                    TxType = 0x05 // Admin mints tokens directly
	TxTypeRegisterAsset           TxType = 0x06 // Owner registers content
	TxTypeRegisterPurchaseRequest TxType = 0x07 // Buyer escrows a budget
	TxTypeApplyAssetOffer         TxType = 0x08 // Provider matches an asset to a request
	TxTypeSubmitTransferProof     TxType = 0x09 // Relayer settles an offer
)

var txTypeNames = map[TxType]string{
	TxTypeInitializeConfig:        "initialize_config",
	TxTypeInitializeUser:          "initialize_user",
	TxTypeUpdatePoint:             "update_point",
	TxTypeClaim:                   "claim",
	TxTypeMint:                    "mint",
	TxTypeRegisterAsset:           "register_asset",
	TxTypeRegisterPurchaseRequest: "register_purchase_request",
	TxTypeApplyAssetOffer:         "apply_asset_offer",
	TxTypeSubmitTransferProof:     "submit_transfer_proof",
}

func (t TxType) String() string {
	if name, ok := txTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02x)", byte(t))
}

// ParseTxType maps an operation name back to its type.
func ParseTxType(name string) (TxType, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for t, n := range txTypeNames {
		if n == normalized {
			return t, nil
		}
	}
	return 0, fmt.Errorf("types: unknown operation %q", name)
}

var (
	ErrMissingSignature = errors.New("types: transaction not signed")
	ErrInvalidSignature = errors.New("types: invalid transaction signature")
)

// txDomain separates ledger transaction digests from other signed payloads.
const txDomain = "oto-ledger-tx"

// Transaction is a signed request to run one operation. Data carries the RLP
// encoded argument struct for Type.
type Transaction struct {
	Type  TxType `json:"type"`
	Nonce uint64 `json:"nonce"`
	Data  []byte `json:"data"`

	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
	V *big.Int `json:"v"`

	from *crypto.Address
}

// NewTransaction encodes args into a fresh unsigned transaction.
func NewTransaction(txType TxType, nonce uint64, args any) (*Transaction, error) {
	data, err := rlp.EncodeToBytes(args)
	if err != nil {
		return nil, fmt.Errorf("types: encode %s args: %w", txType, err)
	}
	return &Transaction{Type: txType, Nonce: nonce, Data: data}, nil
}

// DecodeArgs decodes Data into out.
func (tx *Transaction) DecodeArgs(out any) error {
	if err := rlp.DecodeBytes(tx.Data, out); err != nil {
		return fmt.Errorf("types: decode %s args: %w", tx.Type, err)
	}
	return nil
}

// Hash is the keccak digest of the domain-tagged RLP payload.
func (tx *Transaction) Hash() (Hash, error) {
	payload := struct {
		Domain string
		Type   uint8
		Nonce  uint64
		Data   []byte
	}{txDomain, uint8(tx.Type), tx.Nonce, tx.Data}
	b, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return Hash{}, err
	}
	return Hash(crypto.Keccak256(b)), nil
}

func (tx *Transaction) Sign(key *crypto.PrivateKey) error {
	if key == nil {
		return errors.New("types: nil signing key")
	}
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	sig, err := key.Sign(hash[:])
	if err != nil {
		return err
	}
	tx.R = new(big.Int).SetBytes(sig[:32])
	tx.S = new(big.Int).SetBytes(sig[32:64])
	tx.V = new(big.Int).SetBytes([]byte{sig[64] + 27})
	tx.from = nil
	return nil
}

// From recovers the signer address. The result is cached.
func (tx *Transaction) From() (crypto.Address, error) {
	if tx.from != nil {
		return *tx.from, nil
	}
	if tx.R == nil || tx.S == nil || tx.V == nil {
		return crypto.Address{}, ErrMissingSignature
	}
	rBytes, sBytes := tx.R.Bytes(), tx.S.Bytes()
	if len(rBytes) > 32 || len(sBytes) > 32 || !tx.V.IsUint64() {
		return crypto.Address{}, ErrInvalidSignature
	}
	v := tx.V.Uint64()
	if v != 27 && v != 28 {
		return crypto.Address{}, ErrInvalidSignature
	}
	hash, err := tx.Hash()
	if err != nil {
		return crypto.Address{}, err
	}
	sig := make([]byte, 65)
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytes):64], sBytes)
	sig[64] = byte(v - 27)
	addr, err := crypto.RecoverAddress(hash[:], sig)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	tx.from = &addr
	return addr, nil
}
