package market

import (
	"testing"

	"github.com/stretchr/testify/require"

	"otoledger/core/types"
	"otoledger/crypto"
	"otoledger/native/common"
	"otoledger/native/nativetest"
	"otoledger/native/points"
	"otoledger/native/system"
	"otoledger/native/token"
)

type fixture struct {
	st       *nativetest.MemState
	cfg      *types.Config
	tokens   *token.Engine
	market   *Engine
	admin    crypto.Address
	buyer    *crypto.PrivateKey
	provider crypto.Address
	owner    crypto.Address
}

func newFixture(t *testing.T, buyerFunds uint64) *fixture {
	t.Helper()
	st := nativetest.NewMemState()
	tokens := token.NewEngine()
	admin := crypto.Address{0xAD}
	cfg, err := system.NewEngine(tokens).InitializeConfig(st, admin, crypto.Address{0xC0})
	require.NoError(t, err)

	buyer, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	if buyerFunds > 0 {
		require.NoError(t, points.NewEngine(tokens).Mint(st, cfg, admin, buyer.PubKey().Address(), buyerFunds))
	}
	return &fixture{
		st:       st,
		cfg:      cfg,
		tokens:   tokens,
		market:   NewEngine(tokens),
		admin:    admin,
		buyer:    buyer,
		provider: crypto.Address{0x70},
		owner:    crypto.Address{0x0E},
	}
}

func (f *fixture) buyerAddr() crypto.Address { return f.buyer.PubKey().Address() }

func (f *fixture) balance(t *testing.T, owner crypto.Address) uint64 {
	t.Helper()
	bal, err := token.Balance(f.st, types.AssociatedTokenAddress(owner, f.cfg.Mint).Address)
	require.NoError(t, err)
	return bal
}

func (f *fixture) purchase(t *testing.T, nonce uint8, language uint8, unitPrice, maxBudget uint64) crypto.Address {
	t.Helper()
	addr, err := f.market.RegisterPurchaseRequest(f.st, f.cfg, f.buyerAddr(), &types.RegisterPurchaseRequestArgs{
		BuyerPubkey:    types.PublicKey(f.buyer.PubKey().Compressed()),
		FilterLanguage: language,
		StartDate:      20250101,
		EndDate:        20250102,
		UnitPrice:      unitPrice,
		MaxBudget:      maxBudget,
		Nonce:          nonce,
	})
	require.NoError(t, err)
	return addr
}

func (f *fixture) asset(t *testing.T, seed byte, date uint32, language uint8) (crypto.Address, types.Hash) {
	t.Helper()
	hash := types.Hash{seed}
	addr, err := f.market.RegisterAsset(f.st, f.owner, &types.RegisterAssetArgs{ContentHash: hash, Date: date, Language: language})
	require.NoError(t, err)
	return addr, hash
}

func (f *fixture) requestBudget(t *testing.T, pr crypto.Address) uint64 {
	t.Helper()
	var rec types.PurchaseRequest
	require.NoError(t, f.st.Load(pr, &rec))
	return rec.BudgetRemaining
}

func (f *fixture) settle(pr, offer crypto.Address, hash types.Hash) (crypto.Address, error) {
	return f.market.SubmitTransferProof(f.st, f.cfg, &types.SubmitTransferProofArgs{
		PurchaseRequest: pr,
		AssetOffer:      offer,
		Provider:        f.provider,
		ContentHash:     hash,
	})
}

func TestRegisterPurchaseRequestFundsEscrow(t *testing.T) {
	f := newFixture(t, 1500)
	pr := f.purchase(t, 0, 0, 100, 1000)

	require.EqualValues(t, 1000, f.balance(t, pr))
	require.EqualValues(t, 500, f.balance(t, f.buyerAddr()))
	require.EqualValues(t, 1000, f.requestBudget(t, pr))

	var rec types.PurchaseRequest
	require.NoError(t, f.st.Load(pr, &rec))
	require.Equal(t, f.buyerAddr(), rec.Buyer)
	require.Equal(t, types.PurchaseRequestAddress(f.buyerAddr(), 0).Bump, rec.Bump)
}

func TestRegisterPurchaseRequestValidation(t *testing.T) {
	f := newFixture(t, 100)
	base := types.RegisterPurchaseRequestArgs{UnitPrice: 100, MaxBudget: 100, EndDate: 1}

	zero := base
	zero.UnitPrice = 0
	_, err := f.market.RegisterPurchaseRequest(f.st, f.cfg, f.buyerAddr(), &zero)
	require.ErrorIs(t, err, common.ErrInvalidParams)

	low := base
	low.MaxBudget = 99
	_, err = f.market.RegisterPurchaseRequest(f.st, f.cfg, f.buyerAddr(), &low)
	require.ErrorIs(t, err, common.ErrInvalidParams)

	rich := base
	rich.MaxBudget = 101
	before := f.st.Dump()
	_, err = f.market.RegisterPurchaseRequest(f.st, f.cfg, f.buyerAddr(), &rich)
	require.ErrorIs(t, err, common.ErrInsufficientFunds)
	require.Equal(t, before, f.st.Dump())

	_, err = f.market.RegisterPurchaseRequest(f.st, f.cfg, f.buyerAddr(), &base)
	require.NoError(t, err)
	_, err = f.market.RegisterPurchaseRequest(f.st, f.cfg, f.buyerAddr(), &base)
	require.ErrorIs(t, err, common.ErrStructuralDuplicate)
}

func TestOneBuyerManyRequests(t *testing.T) {
	f := newFixture(t, 300)
	a := f.purchase(t, 1, 0, 100, 100)
	b := f.purchase(t, 2, 0, 50, 200)
	require.NotEqual(t, a, b)
	require.EqualValues(t, 100, f.balance(t, a))
	require.EqualValues(t, 200, f.balance(t, b))
}

func TestApplyAssetOfferLanguageFilter(t *testing.T) {
	f := newFixture(t, 200)
	english := f.purchase(t, 0, 1, 100, 100)
	wildcard := f.purchase(t, 1, types.LanguageAny, 100, 100)
	assetAddr, _ := f.asset(t, 1, 20250101, 2)

	_, err := f.market.ApplyAssetOffer(f.st, f.provider, english, assetAddr)
	require.ErrorIs(t, err, common.ErrFilterLanguageMismatch)

	_, err = f.market.ApplyAssetOffer(f.st, f.provider, wildcard, assetAddr)
	require.NoError(t, err)

	matching, _ := f.asset(t, 2, 20250101, 1)
	_, err = f.market.ApplyAssetOffer(f.st, f.provider, english, matching)
	require.NoError(t, err)
}

func TestApplyAssetOfferDateBoundaries(t *testing.T) {
	f := newFixture(t, 100)
	pr := f.purchase(t, 0, 0, 100, 100)
	cases := []struct {
		date uint32
		ok   bool
	}{
		{20241231, false},
		{20250101, true},
		{20250102, true},
		{20250103, false},
	}
	for i, tc := range cases {
		assetAddr, _ := f.asset(t, byte(10+i), tc.date, 0)
		_, err := f.market.ApplyAssetOffer(f.st, f.provider, pr, assetAddr)
		if tc.ok {
			require.NoError(t, err, "date %d", tc.date)
		} else {
			require.ErrorIs(t, err, common.ErrFilterDateMismatch, "date %d", tc.date)
		}
	}
}

func TestApplyAssetOfferDuplicateIsStructural(t *testing.T) {
	f := newFixture(t, 100)
	pr := f.purchase(t, 0, 0, 100, 100)
	assetAddr, _ := f.asset(t, 1, 20250101, 0)
	offer, err := f.market.ApplyAssetOffer(f.st, f.provider, pr, assetAddr)
	require.NoError(t, err)

	_, err = f.market.ApplyAssetOffer(f.st, crypto.Address{0x71}, pr, assetAddr)
	require.ErrorIs(t, err, common.ErrStructuralDuplicate)

	var rec types.AssetOffer
	require.NoError(t, f.st.Load(offer, &rec))
	require.Equal(t, f.provider, rec.Provider)
	require.EqualValues(t, 100, f.balance(t, pr), "offer must not move funds")
}

func TestSettlementScenarioFiveProofs(t *testing.T) {
	f := newFixture(t, 1000)
	pr := f.purchase(t, 0, 0, 100, 1000)

	var paid uint64
	for i := 0; i < 5; i++ {
		assetAddr, hash := f.asset(t, byte(i+1), 20250101, 0)
		offer, err := f.market.ApplyAssetOffer(f.st, f.provider, pr, assetAddr)
		require.NoError(t, err)
		proofAddr, err := f.settle(pr, offer, hash)
		require.NoError(t, err)

		var proof types.TransferProof
		require.NoError(t, f.st.Load(proofAddr, &proof))
		require.EqualValues(t, 100, proof.Price)
		require.Equal(t, hash, proof.ContentHash)
		paid += proof.Price
	}
	require.EqualValues(t, 500, paid)
	require.EqualValues(t, 500, f.requestBudget(t, pr))
	require.EqualValues(t, 500, f.balance(t, f.provider))
	require.EqualValues(t, 500, f.balance(t, pr), "escrow must track budget")
}

func TestSettlementBudgetExhausted(t *testing.T) {
	f := newFixture(t, 550)
	pr := f.purchase(t, 0, 0, 100, 550)
	for i := 0; i < 5; i++ {
		assetAddr, hash := f.asset(t, byte(i+1), 20250101, 0)
		offer, err := f.market.ApplyAssetOffer(f.st, f.provider, pr, assetAddr)
		require.NoError(t, err)
		_, err = f.settle(pr, offer, hash)
		require.NoError(t, err)
	}
	require.EqualValues(t, 50, f.requestBudget(t, pr))

	// Offers are still accepted once the budget is short; settlement is where it bites.
	assetAddr, hash := f.asset(t, 9, 20250101, 0)
	offer, err := f.market.ApplyAssetOffer(f.st, f.provider, pr, assetAddr)
	require.NoError(t, err)

	before := f.st.Dump()
	_, err = f.settle(pr, offer, hash)
	require.ErrorIs(t, err, common.ErrBudgetExhausted)
	require.Equal(t, before, f.st.Dump())
	require.EqualValues(t, 50, f.requestBudget(t, pr))
}

func TestSettlementRejectsDuplicateProof(t *testing.T) {
	f := newFixture(t, 1000)
	pr := f.purchase(t, 0, 0, 100, 1000)
	assetAddr, hash := f.asset(t, 1, 20250101, 0)
	offer, err := f.market.ApplyAssetOffer(f.st, f.provider, pr, assetAddr)
	require.NoError(t, err)
	_, err = f.settle(pr, offer, hash)
	require.NoError(t, err)

	after := f.st.Dump()
	_, err = f.settle(pr, offer, hash)
	require.ErrorIs(t, err, common.ErrStructuralDuplicate)
	require.Equal(t, after, f.st.Dump())
	require.EqualValues(t, 100, f.balance(t, f.provider))
}

func TestSettlementIdentityChecks(t *testing.T) {
	f := newFixture(t, 1000)
	pr := f.purchase(t, 0, 0, 100, 500)
	other := f.purchase(t, 1, 0, 100, 500)
	assetAddr, hash := f.asset(t, 1, 20250101, 0)
	offer, err := f.market.ApplyAssetOffer(f.st, f.provider, pr, assetAddr)
	require.NoError(t, err)

	_, err = f.market.SubmitTransferProof(f.st, f.cfg, &types.SubmitTransferProofArgs{
		PurchaseRequest: pr,
		AssetOffer:      offer,
		Provider:        crypto.Address{0x66},
		ContentHash:     hash,
	})
	require.ErrorIs(t, err, common.ErrAuthorizationMismatch)

	// An offer made against one request cannot drain another request's escrow.
	_, err = f.settle(other, offer, hash)
	require.ErrorIs(t, err, common.ErrAuthorizationMismatch)
	require.EqualValues(t, 500, f.balance(t, other))
	require.EqualValues(t, 0, f.balance(t, f.provider))
}

func TestSettlementDuplicateReportedBeforeBudget(t *testing.T) {
	f := newFixture(t, 100)
	pr := f.purchase(t, 0, 0, 100, 100)
	assetAddr, hash := f.asset(t, 1, 20250101, 0)
	offer, err := f.market.ApplyAssetOffer(f.st, f.provider, pr, assetAddr)
	require.NoError(t, err)
	_, err = f.settle(pr, offer, hash)
	require.NoError(t, err)
	require.Zero(t, f.requestBudget(t, pr))

	after := f.st.Dump()
	_, err = f.settle(pr, offer, hash)
	require.ErrorIs(t, err, common.ErrStructuralDuplicate)
	require.Equal(t, common.KindStructuralDuplicate, common.KindOf(err))
	require.Equal(t, after, f.st.Dump())
}

func TestSettlementProviderCheckedBeforeBudget(t *testing.T) {
	f := newFixture(t, 100)
	pr := f.purchase(t, 0, 0, 100, 100)
	first, firstHash := f.asset(t, 1, 20250101, 0)
	second, _ := f.asset(t, 2, 20250101, 0)
	offer, err := f.market.ApplyAssetOffer(f.st, f.provider, pr, first)
	require.NoError(t, err)
	pending, err := f.market.ApplyAssetOffer(f.st, f.provider, pr, second)
	require.NoError(t, err)
	_, err = f.settle(pr, offer, firstHash)
	require.NoError(t, err)

	_, err = f.market.SubmitTransferProof(f.st, f.cfg, &types.SubmitTransferProofArgs{
		PurchaseRequest: pr,
		AssetOffer:      pending,
		Provider:        crypto.Address{0x66},
	})
	require.ErrorIs(t, err, common.ErrAuthorizationMismatch)
}

func TestSettlementStoresSubmittedFileHash(t *testing.T) {
	f := newFixture(t, 1000)
	pr := f.purchase(t, 0, 0, 100, 1000)
	assetAddr, _ := f.asset(t, 1, 20250101, 0)
	offer, err := f.market.ApplyAssetOffer(f.st, f.provider, pr, assetAddr)
	require.NoError(t, err)

	proofAddr, err := f.settle(pr, offer, types.Hash{0xEE})
	require.NoError(t, err)
	var proof types.TransferProof
	require.NoError(t, f.st.Load(proofAddr, &proof))
	require.Equal(t, types.Hash{0xEE}, proof.ContentHash)
	require.EqualValues(t, 100, f.balance(t, f.provider))
}

func TestSettlementBuyerSignatureVerification(t *testing.T) {
	f := newFixture(t, 1000)
	f.market.SetVerifyBuyerSignatures(true)
	pr := f.purchase(t, 0, 0, 100, 1000)
	assetAddr, hash := f.asset(t, 1, 20250101, 0)
	offer, err := f.market.ApplyAssetOffer(f.st, f.provider, pr, assetAddr)
	require.NoError(t, err)

	args := &types.SubmitTransferProofArgs{PurchaseRequest: pr, AssetOffer: offer, Provider: f.provider, ContentHash: hash}
	_, err = f.market.SubmitTransferProof(f.st, f.cfg, args)
	require.ErrorIs(t, err, common.ErrInvalidSignature)

	digest := ProofDigest(pr, hash)
	sig, err := f.buyer.Sign(digest[:])
	require.NoError(t, err)
	copy(args.BuyerSignature[:], sig[:64])
	_, err = f.market.SubmitTransferProof(f.st, f.cfg, args)
	require.NoError(t, err)
	require.Contains(t, f.st.EventTypes(), "oto.proof.settled")
	last := f.st.Events[len(f.st.Events)-1]
	require.Equal(t, "true", last.Attributes["signatureVerified"])
}

func TestSettlementUnverifiedSignatureStoredVerbatim(t *testing.T) {
	f := newFixture(t, 100)
	pr := f.purchase(t, 0, 0, 100, 100)
	assetAddr, hash := f.asset(t, 1, 20250101, 0)
	offer, err := f.market.ApplyAssetOffer(f.st, f.provider, pr, assetAddr)
	require.NoError(t, err)

	var junk types.Signature
	for i := range junk {
		junk[i] = byte(i)
	}
	proofAddr, err := f.market.SubmitTransferProof(f.st, f.cfg, &types.SubmitTransferProofArgs{
		PurchaseRequest: pr, AssetOffer: offer, Provider: f.provider, ContentHash: hash, BuyerSignature: junk,
	})
	require.NoError(t, err)
	var proof types.TransferProof
	require.NoError(t, f.st.Load(proofAddr, &proof))
	require.Equal(t, junk, proof.BuyerSignature)
}

func TestMarketPaused(t *testing.T) {
	f := newFixture(t, 100)
	f.market.SetPauses(common.Pauses{common.ModuleMarket: true})
	_, err := f.market.RegisterAsset(f.st, f.owner, &types.RegisterAssetArgs{})
	require.ErrorIs(t, err, common.ErrModulePaused)
}
