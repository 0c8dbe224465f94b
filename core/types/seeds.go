package types

import (
	"fmt"

	"otoledger/crypto"
)

// Namespace tags prefixed to every derived address.
var (
	SeedConfig     = []byte("oto")
	SeedMint       = []byte("mint")
	SeedMetadata   = []byte("metadata")
	SeedAssociated = []byte("associated")
	SeedUser       = []byte("user")
	SeedAsset      = []byte("asset")
	SeedPurchase   = []byte("purchase")
	SeedOffer      = []byte("offer")
	SeedProof      = []byte("proof")
)

// Derived is an address together with the bump that produced it and the
// seeds (without bump) it came from.
type Derived struct {
	Address crypto.Address
	Bump    uint8
	Seeds   [][]byte
}

// Signer returns the capability that lets the derived address authorize
// transfers out of its own token accounts.
func (d Derived) Signer() crypto.DerivedSigner {
	return crypto.NewDerivedSigner(d.Bump, d.Seeds...)
}

func derive(seeds ...[]byte) (Derived, error) {
	addr, bump, err := crypto.FindDerivedAddress(seeds...)
	if err != nil {
		return Derived{}, err
	}
	return Derived{Address: addr, Bump: bump, Seeds: seeds}, nil
}

func mustDerive(seeds ...[]byte) Derived {
	d, err := derive(seeds...)
	if err != nil {
		panic(fmt.Sprintf("types: derive %q: %v", seeds[0], err))
	}
	return d
}

// ConfigAddress is the singleton config record.
func ConfigAddress() Derived { return mustDerive(SeedConfig) }

// MintAddress is the token mint; it is also its own mint authority.
func MintAddress() Derived { return mustDerive(SeedMint) }

// MetadataAddress holds the descriptive record of mint.
func MetadataAddress(mint crypto.Address) Derived {
	return mustDerive(SeedMetadata, mint[:])
}

// AssociatedTokenAddress is the canonical token account of owner for mint.
func AssociatedTokenAddress(owner, mint crypto.Address) Derived {
	return mustDerive(SeedAssociated, owner[:], mint[:])
}

// UserAddress derives the record of userID. The id must be at most
// MaxUserIDLength bytes.
func UserAddress(userID string) (Derived, error) {
	if len(userID) == 0 || len(userID) > MaxUserIDLength {
		return Derived{}, fmt.Errorf("types: user id must be 1..%d bytes", MaxUserIDLength)
	}
	return derive(SeedUser, []byte(userID))
}

// AssetAddress derives the record of an owner's content hash.
func AssetAddress(owner crypto.Address, contentHash Hash) Derived {
	return mustDerive(SeedAsset, owner[:], contentHash[:])
}

// PurchaseRequestAddress derives the (buyer, nonce) request record. Its signer
// owns the request's escrow token account.
func PurchaseRequestAddress(buyer crypto.Address, nonce uint8) Derived {
	return mustDerive(SeedPurchase, buyer[:], []byte{nonce})
}

// OfferAddress derives the single offer allowed per (request, content hash).
func OfferAddress(purchaseRequest crypto.Address, contentHash Hash) Derived {
	return mustDerive(SeedOffer, purchaseRequest[:], contentHash[:])
}

// ProofAddress derives the single proof allowed per offer.
func ProofAddress(offer crypto.Address) Derived {
	return mustDerive(SeedProof, offer[:])
}
