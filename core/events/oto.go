package events

import (
	"strconv"

	"otoledger/core/types"
	"otoledger/crypto"
)

const (
	TypeConfigInitialized  = "oto.config.initialized"
	TypeUserInitialized    = "oto.user.initialized"
	TypePointsUpdated      = "oto.points.updated"
	TypePointsClaimed      = "oto.points.claimed"
	TypeTokenMinted        = "oto.token.minted"
	TypeTokenTransferred   = "oto.token.transferred"
	TypeAssetRegistered    = "oto.asset.registered"
	TypePurchaseRegistered = "oto.purchase.registered"
	TypeOfferApplied       = "oto.offer.applied"
	TypeProofSettled       = "oto.proof.settled"
)

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

type ConfigInitialized struct {
	Config     crypto.Address
	Admin      crypto.Address
	Mint       crypto.Address
	Collection crypto.Address
}

func (ConfigInitialized) EventType() string { return TypeConfigInitialized }

func (e ConfigInitialized) Event() *types.Event {
	return &types.Event{
		Type: TypeConfigInitialized,
		Attributes: map[string]string{
			"config":     e.Config.String(),
			"admin":      e.Admin.String(),
			"mint":       e.Mint.String(),
			"collection": e.Collection.String(),
		},
	}
}

type UserInitialized struct {
	User   crypto.Address
	UserID string
	Owner  crypto.Address
}

func (UserInitialized) EventType() string { return TypeUserInitialized }

func (e UserInitialized) Event() *types.Event {
	return &types.Event{
		Type: TypeUserInitialized,
		Attributes: map[string]string{
			"user":   e.User.String(),
			"userId": e.UserID,
			"owner":  e.Owner.String(),
		},
	}
}

type PointsUpdated struct {
	UserID    string
	Delta     uint64
	Claimable uint64
}

func (PointsUpdated) EventType() string { return TypePointsUpdated }

func (e PointsUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypePointsUpdated,
		Attributes: map[string]string{
			"userId":    e.UserID,
			"delta":     u64(e.Delta),
			"claimable": u64(e.Claimable),
		},
	}
}

type PointsClaimed struct {
	UserID      string
	Beneficiary crypto.Address
	Amount      uint64
	Claimable   uint64
}

func (PointsClaimed) EventType() string { return TypePointsClaimed }

func (e PointsClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypePointsClaimed,
		Attributes: map[string]string{
			"userId":      e.UserID,
			"beneficiary": e.Beneficiary.String(),
			"amount":      u64(e.Amount),
			"claimable":   u64(e.Claimable),
		},
	}
}

type TokenMinted struct {
	Mint    crypto.Address
	Account crypto.Address
	Amount  uint64
	Supply  uint64
}

func (TokenMinted) EventType() string { return TypeTokenMinted }

func (e TokenMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenMinted,
		Attributes: map[string]string{
			"mint":    e.Mint.String(),
			"account": e.Account.String(),
			"amount":  u64(e.Amount),
			"supply":  u64(e.Supply),
		},
	}
}

type TokenTransferred struct {
	From   crypto.Address
	To     crypto.Address
	Amount uint64
}

func (TokenTransferred) EventType() string { return TypeTokenTransferred }

func (e TokenTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenTransferred,
		Attributes: map[string]string{
			"from":   e.From.String(),
			"to":     e.To.String(),
			"amount": u64(e.Amount),
		},
	}
}

type AssetRegistered struct {
	Asset       crypto.Address
	Owner       crypto.Address
	ContentHash types.Hash
	Date        uint32
	Language    uint8
}

func (AssetRegistered) EventType() string { return TypeAssetRegistered }

func (e AssetRegistered) Event() *types.Event {
	return &types.Event{
		Type: TypeAssetRegistered,
		Attributes: map[string]string{
			"asset":       e.Asset.String(),
			"owner":       e.Owner.String(),
			"contentHash": e.ContentHash.Hex(),
			"date":        u64(uint64(e.Date)),
			"language":    u64(uint64(e.Language)),
		},
	}
}

type PurchaseRegistered struct {
	PurchaseRequest crypto.Address
	Buyer           crypto.Address
	Escrow          crypto.Address
	UnitPrice       uint64
	MaxBudget       uint64
	Nonce           uint8
}

func (PurchaseRegistered) EventType() string { return TypePurchaseRegistered }

func (e PurchaseRegistered) Event() *types.Event {
	return &types.Event{
		Type: TypePurchaseRegistered,
		Attributes: map[string]string{
			"purchaseRequest": e.PurchaseRequest.String(),
			"buyer":           e.Buyer.String(),
			"escrow":          e.Escrow.String(),
			"unitPrice":       u64(e.UnitPrice),
			"maxBudget":       u64(e.MaxBudget),
			"nonce":           u64(uint64(e.Nonce)),
		},
	}
}

type OfferApplied struct {
	Offer           crypto.Address
	PurchaseRequest crypto.Address
	Asset           crypto.Address
	Provider        crypto.Address
}

func (OfferApplied) EventType() string { return TypeOfferApplied }

func (e OfferApplied) Event() *types.Event {
	return &types.Event{
		Type: TypeOfferApplied,
		Attributes: map[string]string{
			"offer":           e.Offer.String(),
			"purchaseRequest": e.PurchaseRequest.String(),
			"asset":           e.Asset.String(),
			"provider":        e.Provider.String(),
		},
	}
}

type ProofSettled struct {
	Proof             crypto.Address
	Offer             crypto.Address
	PurchaseRequest   crypto.Address
	Provider          crypto.Address
	ContentHash       types.Hash
	Price             uint64
	BudgetRemaining   uint64
	SignatureVerified bool
}

func (ProofSettled) EventType() string { return TypeProofSettled }

func (e ProofSettled) Event() *types.Event {
	return &types.Event{
		Type: TypeProofSettled,
		Attributes: map[string]string{
			"proof":             e.Proof.String(),
			"offer":             e.Offer.String(),
			"purchaseRequest":   e.PurchaseRequest.String(),
			"provider":          e.Provider.String(),
			"contentHash":       e.ContentHash.Hex(),
			"price":             u64(e.Price),
			"budgetRemaining":   u64(e.BudgetRemaining),
			"signatureVerified": strconv.FormatBool(e.SignatureVerified),
		},
	}
}
