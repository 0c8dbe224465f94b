package market

import (
	"fmt"

	"otoledger/core/events"
	"otoledger/core/types"
	"otoledger/crypto"
	"otoledger/native/common"
)

// ApplyAssetOffer matches an asset against a purchase request's filters and
// records the provider's offer. No funds move and no budget is reserved.
func (e *Engine) ApplyAssetOffer(st common.State, provider, purchaseRequest, assetAddr crypto.Address) (crypto.Address, error) {
	if err := e.guard(); err != nil {
		return crypto.Address{}, err
	}
	var pr types.PurchaseRequest
	if err := st.Load(purchaseRequest, &pr); err != nil {
		return crypto.Address{}, common.NotFound(err, "purchase request")
	}
	var asset types.Asset
	if err := st.Load(assetAddr, &asset); err != nil {
		return crypto.Address{}, common.NotFound(err, "asset")
	}
	if !pr.MatchesLanguage(asset.Language) {
		return crypto.Address{}, fmt.Errorf("%w: filter %d, asset %d", ErrLanguageMismatch, pr.FilterLanguage, asset.Language)
	}
	if !pr.MatchesDate(asset.Date) {
		return crypto.Address{}, fmt.Errorf("%w: %d outside [%d, %d]", ErrDateMismatch, asset.Date, pr.StartDate, pr.EndDate)
	}

	addr := types.OfferAddress(purchaseRequest, asset.ContentHash).Address
	offer := &types.AssetOffer{Asset: assetAddr, Provider: provider}
	if err := st.Create(addr, offer); err != nil {
		return crypto.Address{}, common.Duplicate(err, "asset offer")
	}
	st.AppendEvent(events.OfferApplied{
		Offer:           addr,
		PurchaseRequest: purchaseRequest,
		Asset:           assetAddr,
		Provider:        provider,
	}.Event())
	return addr, nil
}
