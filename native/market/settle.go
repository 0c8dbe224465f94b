package market

import (
	"fmt"

	"otoledger/core/events"
	"otoledger/core/types"
	"otoledger/crypto"
	"otoledger/native/common"
)

// SubmitTransferProof settles one offer: it records the proof, pays the
// request's unit price from escrow to the provider under the request's
// derived authority and debits the budget. The caller must discard the
// transaction on error so none of the three effects persist.
func (e *Engine) SubmitTransferProof(st common.State, cfg *types.Config, args *types.SubmitTransferProofArgs) (crypto.Address, error) {
	if err := e.guard(); err != nil {
		return crypto.Address{}, err
	}
	mint, err := mintOf(cfg)
	if err != nil {
		return crypto.Address{}, err
	}
	var pr types.PurchaseRequest
	if err := st.Load(args.PurchaseRequest, &pr); err != nil {
		return crypto.Address{}, common.NotFound(err, "purchase request")
	}
	var offer types.AssetOffer
	if err := st.Load(args.AssetOffer, &offer); err != nil {
		return crypto.Address{}, common.NotFound(err, "asset offer")
	}

	proofAddr := types.ProofAddress(args.AssetOffer).Address
	settled, err := st.Exists(proofAddr)
	if err != nil {
		return crypto.Address{}, err
	}
	if settled {
		return crypto.Address{}, common.Duplicate(types.ErrRecordExists, "transfer proof")
	}
	if args.Provider != offer.Provider {
		return crypto.Address{}, ErrProviderMismatch
	}
	var asset types.Asset
	if err := st.Load(offer.Asset, &asset); err != nil {
		return crypto.Address{}, common.NotFound(err, "asset")
	}
	if types.OfferAddress(args.PurchaseRequest, asset.ContentHash).Address != args.AssetOffer {
		return crypto.Address{}, ErrOfferNotForRequest
	}

	if pr.BudgetRemaining < pr.UnitPrice {
		return crypto.Address{}, fmt.Errorf("%w: remaining %d, unit price %d", ErrBudgetExhausted, pr.BudgetRemaining, pr.UnitPrice)
	}
	if e.verifySignatures {
		digest := ProofDigest(args.PurchaseRequest, args.ContentHash)
		if !crypto.VerifyCompact(pr.BuyerPubkey[:], digest[:], args.BuyerSignature[:]) {
			return crypto.Address{}, ErrBadBuyerSignature
		}
	}

	price := pr.UnitPrice
	remaining, err := common.CheckedSub(pr.BudgetRemaining, price)
	if err != nil {
		return crypto.Address{}, err
	}

	proof := &types.TransferProof{
		ContentHash:    args.ContentHash,
		Price:          price,
		BuyerSignature: args.BuyerSignature,
	}
	if err := st.Create(proofAddr, proof); err != nil {
		return crypto.Address{}, common.Duplicate(err, "transfer proof")
	}

	providerAccount, err := e.token.EnsureAccount(st, args.Provider, mint)
	if err != nil {
		return crypto.Address{}, err
	}
	escrow := EscrowAccount(args.PurchaseRequest, mint)
	if err := e.token.Transfer(st, escrow, providerAccount, price, requestSigner(&pr)); err != nil {
		return crypto.Address{}, err
	}

	pr.BudgetRemaining = remaining
	if err := st.Store(args.PurchaseRequest, &pr); err != nil {
		return crypto.Address{}, err
	}
	st.AppendEvent(events.ProofSettled{
		Proof:             proofAddr,
		Offer:             args.AssetOffer,
		PurchaseRequest:   args.PurchaseRequest,
		Provider:          args.Provider,
		ContentHash:       args.ContentHash,
		Price:             price,
		BudgetRemaining:   remaining,
		SignatureVerified: e.verifySignatures,
	}.Event())
	return proofAddr, nil
}
