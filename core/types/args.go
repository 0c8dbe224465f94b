package types

import "otoledger/crypto"

// Argument payloads carried in Transaction.Data, one per TxType. Field order
// is the RLP wire order.

type InitializeConfigArgs struct {
	Collection crypto.Address `json:"collection"`
}

type InitializeUserArgs struct {
	UserID string         `json:"userId"`
	Owner  crypto.Address `json:"owner"`
}

type UpdatePointArgs struct {
	UserID string `json:"userId"`
	Delta  uint64 `json:"delta"`
}

type ClaimArgs struct {
	UserID string `json:"userId"`
	Amount uint64 `json:"amount"`
}

type MintArgs struct {
	Beneficiary crypto.Address `json:"beneficiary"`
	Amount      uint64         `json:"amount"`
}

type RegisterAssetArgs struct {
	ContentHash Hash   `json:"contentHash"`
	Date        uint32 `json:"date"`
	Language    uint8  `json:"language"`
}

type RegisterPurchaseRequestArgs struct {
	BuyerPubkey    PublicKey `json:"buyerPubkey"`
	FilterLanguage uint8     `json:"filterLanguage"`
	StartDate      uint32    `json:"startDate"`
	EndDate        uint32    `json:"endDate"`
	UnitPrice      uint64    `json:"unitPrice"`
	MaxBudget      uint64    `json:"maxBudget"`
	Nonce          uint8     `json:"nonce"`
}

type ApplyAssetOfferArgs struct {
	PurchaseRequest crypto.Address `json:"purchaseRequest"`
	Asset           crypto.Address `json:"asset"`
}

type SubmitTransferProofArgs struct {
	PurchaseRequest crypto.Address `json:"purchaseRequest"`
	AssetOffer      crypto.Address `json:"assetOffer"`
	Provider        crypto.Address `json:"provider"`
	ContentHash     Hash           `json:"contentHash"`
	BuyerSignature  Signature      `json:"buyerSignature"`
}
