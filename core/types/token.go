package types

import "otoledger/crypto"

const (
	TokenName     = "Oto"
	TokenSymbol   = "OTO"
	TokenURI      = ""
	TokenDecimals = 9
)

// Mint describes the fungible token. Authority is the only address allowed to
// increase Supply.
type Mint struct {
	Authority crypto.Address `json:"authority"`
	Supply    uint64         `json:"supply"`
	Decimals  uint8          `json:"decimals"`
	Bump      uint8          `json:"bump"`
}

func (*Mint) Kind() string { return "Mint" }

func (m *Mint) encodeLayout(w *layoutWriter) {
	w.address(m.Authority)
	w.u64(m.Supply)
	w.u8(m.Decimals)
	w.u8(m.Bump)
}

func (m *Mint) decodeLayout(r *layoutReader) {
	m.Authority = r.address()
	m.Supply = r.u64()
	m.Decimals = r.u8()
	m.Bump = r.u8()
}

const (
	maxTokenNameLength   = 32
	maxTokenSymbolLength = 10
	maxTokenURILength    = 200
)

// TokenMetadata carries the descriptive fields of a mint.
type TokenMetadata struct {
	Mint   crypto.Address `json:"mint"`
	Name   string         `json:"name"`
	Symbol string         `json:"symbol"`
	URI    string         `json:"uri"`
}

func (*TokenMetadata) Kind() string { return "TokenMetadata" }

func (m *TokenMetadata) encodeLayout(w *layoutWriter) {
	w.address(m.Mint)
	w.str(m.Name)
	w.str(m.Symbol)
	w.str(m.URI)
}

func (m *TokenMetadata) decodeLayout(r *layoutReader) {
	m.Mint = r.address()
	m.Name = r.str(maxTokenNameLength)
	m.Symbol = r.str(maxTokenSymbolLength)
	m.URI = r.str(maxTokenURILength)
}

// TokenAccount holds a balance of one mint for one owner. The owner may be a
// key-controlled address or a derived address such as a purchase request.
type TokenAccount struct {
	Mint   crypto.Address `json:"mint"`
	Owner  crypto.Address `json:"owner"`
	Amount uint64         `json:"amount"`
}

func (*TokenAccount) Kind() string { return "TokenAccount" }

func (a *TokenAccount) encodeLayout(w *layoutWriter) {
	w.address(a.Mint)
	w.address(a.Owner)
	w.u64(a.Amount)
}

func (a *TokenAccount) decodeLayout(r *layoutReader) {
	a.Mint = r.address()
	a.Owner = r.address()
	a.Amount = r.u64()
}
