package types

import "otoledger/crypto"

// MaxUserIDLength bounds User.UserID in bytes.
const MaxUserIDLength = 30

// Config is the singleton bootstrap record. Admin and Mint never change after
// initialisation.
type Config struct {
	Admin      crypto.Address `json:"admin"`
	Mint       crypto.Address `json:"mint"`
	Collection crypto.Address `json:"collection"`
	Bump       uint8          `json:"bump"`
}

func (*Config) Kind() string { return "Config" }

func (c *Config) encodeLayout(w *layoutWriter) {
	w.address(c.Admin)
	w.address(c.Mint)
	w.address(c.Collection)
	w.u8(c.Bump)
}

func (c *Config) decodeLayout(r *layoutReader) {
	c.Admin = r.address()
	c.Mint = r.address()
	c.Collection = r.address()
	c.Bump = r.u8()
}

// User tracks points credited by the admin and not yet claimed.
type User struct {
	UserID          string         `json:"userId"`
	ClaimableAmount uint64         `json:"claimableAmount"`
	Owner           crypto.Address `json:"owner"`
	Bump            uint8          `json:"bump"`
}

func (*User) Kind() string { return "User" }

func (u *User) encodeLayout(w *layoutWriter) {
	w.str(u.UserID)
	w.u64(u.ClaimableAmount)
	w.address(u.Owner)
	w.u8(u.Bump)
}

func (u *User) decodeLayout(r *layoutReader) {
	u.UserID = r.str(MaxUserIDLength)
	u.ClaimableAmount = r.u64()
	u.Owner = r.address()
	u.Bump = r.u8()
}

// Asset is an owner's registration of one piece of content.
type Asset struct {
	Owner       crypto.Address `json:"owner"`
	ContentHash Hash           `json:"contentHash"`
	Date        uint32         `json:"date"`
	Language    uint8          `json:"language"`
}

func (*Asset) Kind() string { return "Asset" }

func (a *Asset) encodeLayout(w *layoutWriter) {
	w.address(a.Owner)
	w.raw(a.ContentHash[:])
	w.u32(a.Date)
	w.u8(a.Language)
}

func (a *Asset) decodeLayout(r *layoutReader) {
	a.Owner = r.address()
	r.fixed(a.ContentHash[:])
	a.Date = r.u32()
	a.Language = r.u8()
}

// LanguageAny in PurchaseRequest.FilterLanguage matches every asset language.
const LanguageAny uint8 = 0

// PurchaseRequest is a buyer's escrowed budget together with its matching
// filters. BudgetRemaining only ever decreases.
type PurchaseRequest struct {
	Buyer           crypto.Address `json:"buyer"`
	BuyerPubkey     PublicKey      `json:"buyerPubkey"`
	FilterLanguage  uint8          `json:"filterLanguage"`
	StartDate       uint32         `json:"startDate"`
	EndDate         uint32         `json:"endDate"`
	UnitPrice       uint64         `json:"unitPrice"`
	BudgetRemaining uint64         `json:"budgetRemaining"`
	ClaimableAmount uint64         `json:"claimableAmount"`
	Bump            uint8          `json:"bump"`
	Nonce           uint8          `json:"nonce"`
}

func (*PurchaseRequest) Kind() string { return "PurchaseRequest" }

func (p *PurchaseRequest) encodeLayout(w *layoutWriter) {
	w.address(p.Buyer)
	w.raw(p.BuyerPubkey[:])
	w.u8(p.FilterLanguage)
	w.u32(p.StartDate)
	w.u32(p.EndDate)
	w.u64(p.UnitPrice)
	w.u64(p.BudgetRemaining)
	w.u64(p.ClaimableAmount)
	w.u8(p.Bump)
	w.u8(p.Nonce)
}

func (p *PurchaseRequest) decodeLayout(r *layoutReader) {
	p.Buyer = r.address()
	r.fixed(p.BuyerPubkey[:])
	p.FilterLanguage = r.u8()
	p.StartDate = r.u32()
	p.EndDate = r.u32()
	p.UnitPrice = r.u64()
	p.BudgetRemaining = r.u64()
	p.ClaimableAmount = r.u64()
	p.Bump = r.u8()
	p.Nonce = r.u8()
}

// MatchesLanguage reports whether an asset language passes the filter.
func (p *PurchaseRequest) MatchesLanguage(language uint8) bool {
	return p.FilterLanguage == LanguageAny || p.FilterLanguage == language
}

// MatchesDate reports whether date lies in [StartDate, EndDate].
func (p *PurchaseRequest) MatchesDate(date uint32) bool {
	return p.StartDate <= date && date <= p.EndDate
}

// AssetOffer binds one asset to one purchase request on behalf of a provider.
type AssetOffer struct {
	Asset           crypto.Address `json:"asset"`
	Provider        crypto.Address `json:"provider"`
	ClaimableAmount uint64         `json:"claimableAmount"`
}

func (*AssetOffer) Kind() string { return "AssetOffer" }

func (o *AssetOffer) encodeLayout(w *layoutWriter) {
	w.address(o.Asset)
	w.address(o.Provider)
	w.u64(o.ClaimableAmount)
}

func (o *AssetOffer) decodeLayout(r *layoutReader) {
	o.Asset = r.address()
	o.Provider = r.address()
	o.ClaimableAmount = r.u64()
}

// TransferProof is the receipt of one settlement against an offer.
type TransferProof struct {
	ContentHash    Hash      `json:"contentHash"`
	Price          uint64    `json:"price"`
	BuyerSignature Signature `json:"buyerSignature"`
}

func (*TransferProof) Kind() string { return "TransferProof" }

func (p *TransferProof) encodeLayout(w *layoutWriter) {
	w.raw(p.ContentHash[:])
	w.u64(p.Price)
	w.raw(p.BuyerSignature[:])
}

func (p *TransferProof) decodeLayout(r *layoutReader) {
	r.fixed(p.ContentHash[:])
	p.Price = r.u64()
	r.fixed(p.BuyerSignature[:])
}
