package market

import (
	"otoledger/core/types"
	"otoledger/crypto"
	"otoledger/native/common"
	"otoledger/native/token"
)

// Engine runs the marketplace: asset registration, escrowed purchase
// requests, offer matching and settlement.
type Engine struct {
	token            *token.Engine
	pauses           common.PauseView
	verifySignatures bool
}

func NewEngine(tokens *token.Engine) *Engine {
	if tokens == nil {
		tokens = token.NewEngine()
	}
	return &Engine{token: tokens}
}

// SetPauses configures the pause view consulted before every mutation.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetVerifyBuyerSignatures toggles checking of the buyer signature carried by
// a transfer proof. Off by default: the signature is stored uninterpreted.
func (e *Engine) SetVerifyBuyerSignatures(enabled bool) { e.verifySignatures = enabled }

// VerifyBuyerSignatures reports whether proofs are signature checked.
func (e *Engine) VerifyBuyerSignatures() bool { return e.verifySignatures }

func (e *Engine) guard() error { return common.Guard(e.pauses, common.ModuleMarket) }

func mintOf(cfg *types.Config) (crypto.Address, error) {
	mint := types.MintAddress().Address
	if cfg == nil || cfg.Mint != mint {
		return crypto.Address{}, ErrMintMismatch
	}
	return mint, nil
}

// EscrowAccount is the token account holding the budget of a purchase request.
func EscrowAccount(purchaseRequest, mint crypto.Address) crypto.Address {
	return types.AssociatedTokenAddress(purchaseRequest, mint).Address
}

// requestSigner rebuilds the derived authority of a stored purchase request
// from its own fields.
func requestSigner(pr *types.PurchaseRequest) crypto.DerivedSigner {
	return crypto.NewDerivedSigner(pr.Bump, types.SeedPurchase, pr.Buyer[:], []byte{pr.Nonce})
}

// ProofDigest is the message a buyer signs to approve delivery of content
// against one purchase request.
func ProofDigest(purchaseRequest crypto.Address, contentHash types.Hash) types.Hash {
	return types.Hash(crypto.Keccak256([]byte("oto-transfer-proof"), purchaseRequest[:], contentHash[:]))
}
