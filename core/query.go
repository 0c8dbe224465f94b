package core

import (
	"fmt"
	"strconv"
	"strings"

	"otoledger/core/types"
	"otoledger/crypto"
	"otoledger/native/common"
	"otoledger/native/system"
	"otoledger/native/token"
)

// Config returns the ledger singleton.
func (n *Node) Config() (*types.Config, error) {
	return system.LoadConfig(n.state)
}

// User returns the points record of userID.
func (n *Node) User(userID string) (crypto.Address, *types.User, error) {
	addr, err := userAddress(userID)
	if err != nil {
		return crypto.Address{}, nil, err
	}
	var user types.User
	if err := n.state.Load(addr, &user); err != nil {
		return addr, nil, common.NotFound(err, "user "+userID)
	}
	return addr, &user, nil
}

func (n *Node) Asset(addr crypto.Address) (*types.Asset, error) {
	var asset types.Asset
	if err := n.state.Load(addr, &asset); err != nil {
		return nil, common.NotFound(err, "asset")
	}
	return &asset, nil
}

func (n *Node) PurchaseRequest(addr crypto.Address) (*types.PurchaseRequest, error) {
	var pr types.PurchaseRequest
	if err := n.state.Load(addr, &pr); err != nil {
		return nil, common.NotFound(err, "purchase request")
	}
	return &pr, nil
}

func (n *Node) Offer(addr crypto.Address) (*types.AssetOffer, error) {
	var offer types.AssetOffer
	if err := n.state.Load(addr, &offer); err != nil {
		return nil, common.NotFound(err, "asset offer")
	}
	return &offer, nil
}

func (n *Node) Proof(addr crypto.Address) (*types.TransferProof, error) {
	var proof types.TransferProof
	if err := n.state.Load(addr, &proof); err != nil {
		return nil, common.NotFound(err, "transfer proof")
	}
	return &proof, nil
}

// Balance returns the token balance of owner's associated account. Owners
// include derived addresses, so the escrow of a purchase request is the
// balance of the request address.
func (n *Node) Balance(owner crypto.Address) (uint64, error) {
	return token.Balance(n.state, types.AssociatedTokenAddress(owner, types.MintAddress().Address).Address)
}

// Nonce returns the next nonce expected from addr.
func (n *Node) Nonce(addr crypto.Address) (uint64, error) {
	return n.state.Nonce(addr)
}

// DeriveAddress resolves the derived address of a record kind from its
// textual parameters:
//
//	config, mint
//	metadata
//	user <userId>
//	token <owner>
//	asset <owner> <contentHash>
//	purchase <buyer> <nonce>
//	offer <purchaseRequest> <contentHash>
//	proof <offer>
func DeriveAddress(kind string, params ...string) (types.Derived, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	want := func(count int) error {
		if len(params) != count {
			return fmt.Errorf("%w: %s takes %d parameter(s), got %d", common.ErrInvalidParams, kind, count, len(params))
		}
		return nil
	}
	addrAt := func(i int) (crypto.Address, error) {
		addr, err := crypto.ParseAddress(strings.TrimSpace(params[i]))
		if err != nil {
			return crypto.Address{}, fmt.Errorf("%w: %v", common.ErrInvalidParams, err)
		}
		return addr, nil
	}
	hashAt := func(i int) (types.Hash, error) {
		h, err := types.ParseHash(strings.TrimSpace(params[i]))
		if err != nil {
			return types.Hash{}, fmt.Errorf("%w: %v", common.ErrInvalidParams, err)
		}
		return h, nil
	}

	switch kind {
	case "config":
		return types.ConfigAddress(), want(0)
	case "mint":
		return types.MintAddress(), want(0)
	case "metadata":
		return types.MetadataAddress(types.MintAddress().Address), want(0)
	case "user":
		if err := want(1); err != nil {
			return types.Derived{}, err
		}
		d, err := types.UserAddress(params[0])
		if err != nil {
			return types.Derived{}, fmt.Errorf("%w: %v", common.ErrInvalidParams, err)
		}
		return d, nil
	case "token":
		if err := want(1); err != nil {
			return types.Derived{}, err
		}
		owner, err := addrAt(0)
		if err != nil {
			return types.Derived{}, err
		}
		return types.AssociatedTokenAddress(owner, types.MintAddress().Address), nil
	case "asset", "offer":
		if err := want(2); err != nil {
			return types.Derived{}, err
		}
		base, err := addrAt(0)
		if err != nil {
			return types.Derived{}, err
		}
		hash, err := hashAt(1)
		if err != nil {
			return types.Derived{}, err
		}
		if kind == "asset" {
			return types.AssetAddress(base, hash), nil
		}
		return types.OfferAddress(base, hash), nil
	case "purchase":
		if err := want(2); err != nil {
			return types.Derived{}, err
		}
		buyer, err := addrAt(0)
		if err != nil {
			return types.Derived{}, err
		}
		nonce, err := strconv.ParseUint(strings.TrimSpace(params[1]), 10, 8)
		if err != nil {
			return types.Derived{}, fmt.Errorf("%w: nonce: %v", common.ErrInvalidParams, err)
		}
		return types.PurchaseRequestAddress(buyer, uint8(nonce)), nil
	case "proof":
		if err := want(1); err != nil {
			return types.Derived{}, err
		}
		offer, err := addrAt(0)
		if err != nil {
			return types.Derived{}, err
		}
		return types.ProofAddress(offer), nil
	}
	return types.Derived{}, fmt.Errorf("%w: unknown record kind %q", common.ErrInvalidParams, kind)
}

// Mint returns the token mint together with its metadata.
func (n *Node) Mint() (*types.Mint, *types.TokenMetadata, error) {
	mint := types.MintAddress().Address
	var m types.Mint
	if err := n.state.Load(mint, &m); err != nil {
		return nil, nil, common.NotFound(err, "mint")
	}
	var meta types.TokenMetadata
	if err := n.state.Load(types.MetadataAddress(mint).Address, &meta); err != nil {
		return nil, nil, common.NotFound(err, "token metadata")
	}
	return &m, &meta, nil
}

// Supply returns the circulating token supply.
func (n *Node) Supply() (uint64, error) {
	return token.Supply(n.state, types.MintAddress().Address)
}
