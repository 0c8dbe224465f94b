package market

import (
	"otoledger/core/events"
	"otoledger/core/types"
	"otoledger/crypto"
	"otoledger/native/common"
)

// RegisterAsset records content owned by owner. The record is immutable and
// unique per (owner, content hash).
func (e *Engine) RegisterAsset(st common.State, owner crypto.Address, args *types.RegisterAssetArgs) (crypto.Address, error) {
	if err := e.guard(); err != nil {
		return crypto.Address{}, err
	}
	addr := types.AssetAddress(owner, args.ContentHash).Address
	asset := &types.Asset{
		Owner:       owner,
		ContentHash: args.ContentHash,
		Date:        args.Date,
		Language:    args.Language,
	}
	if err := st.Create(addr, asset); err != nil {
		return crypto.Address{}, common.Duplicate(err, "asset")
	}
	st.AppendEvent(events.AssetRegistered{
		Asset:       addr,
		Owner:       owner,
		ContentHash: args.ContentHash,
		Date:        args.Date,
		Language:    args.Language,
	}.Event())
	return addr, nil
}
