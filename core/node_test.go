package core

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"otoledger/core/events"
	"otoledger/core/types"
	"otoledger/crypto"
	"otoledger/native/common"
	"otoledger/native/market"
	"otoledger/storage"
)

type harness struct {
	t     *testing.T
	node  *Node
	admin *crypto.PrivateKey
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	node := NewNode(storage.NewMemDB(), opts...)
	t.Cleanup(func() { node.Close() })
	h := &harness{t: t, node: node, admin: newKey(t)}
	h.mustSubmit(h.admin, types.TxTypeInitializeConfig, &types.InitializeConfigArgs{Collection: crypto.Address{0xC0}})
	return h
}

func newKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key
}

func addrOf(key *crypto.PrivateKey) crypto.Address { return key.PubKey().Address() }

func (h *harness) signed(key *crypto.PrivateKey, txType types.TxType, args any) *types.Transaction {
	h.t.Helper()
	nonce, err := h.node.Nonce(addrOf(key))
	require.NoError(h.t, err)
	tx, err := types.NewTransaction(txType, nonce, args)
	require.NoError(h.t, err)
	require.NoError(h.t, tx.Sign(key))
	return tx
}

func (h *harness) submit(key *crypto.PrivateKey, txType types.TxType, args any) (*types.Receipt, error) {
	h.t.Helper()
	return h.node.SubmitTransaction(context.Background(), h.signed(key, txType, args))
}

func (h *harness) mustSubmit(key *crypto.PrivateKey, txType types.TxType, args any) *types.Receipt {
	h.t.Helper()
	receipt, err := h.submit(key, txType, args)
	require.NoError(h.t, err)
	require.True(h.t, receipt.Succeeded)
	return receipt
}

func (h *harness) balance(owner crypto.Address) uint64 {
	h.t.Helper()
	bal, err := h.node.Balance(owner)
	require.NoError(h.t, err)
	return bal
}

type deal struct {
	buyer    *crypto.PrivateKey
	provider *crypto.PrivateKey
	request  crypto.Address
	offers   []crypto.Address
	hashes   []types.Hash
}

// openMarket funds a buyer, registers a request and count matching offers.
func (h *harness) openMarket(unitPrice, maxBudget uint64, count int) *deal {
	h.t.Helper()
	m := &deal{buyer: newKey(h.t), provider: newKey(h.t)}
	h.mustSubmit(h.admin, types.TxTypeMint, &types.MintArgs{Beneficiary: addrOf(m.buyer), Amount: maxBudget})

	receipt := h.mustSubmit(m.buyer, types.TxTypeRegisterPurchaseRequest, &types.RegisterPurchaseRequestArgs{
		BuyerPubkey: m.buyer.PubKey().Compressed(),
		StartDate:   20240101,
		EndDate:     20241231,
		UnitPrice:   unitPrice,
		MaxBudget:   maxBudget,
		Nonce:       1,
	})
	require.NotNil(h.t, receipt.Created)
	m.request = *receipt.Created

	for i := 0; i < count; i++ {
		hash := types.Hash(crypto.Keccak256([]byte{byte(i)}, addrOf(m.provider).Bytes()))
		asset := h.mustSubmit(m.provider, types.TxTypeRegisterAsset, &types.RegisterAssetArgs{ContentHash: hash, Date: 20240601, Language: 1})
		offer := h.mustSubmit(m.provider, types.TxTypeApplyAssetOffer, &types.ApplyAssetOfferArgs{PurchaseRequest: m.request, Asset: *asset.Created})
		m.offers = append(m.offers, *offer.Created)
		m.hashes = append(m.hashes, hash)
	}
	return m
}

func (m *deal) proof(i int) *types.SubmitTransferProofArgs {
	return &types.SubmitTransferProofArgs{
		PurchaseRequest: m.request,
		AssetOffer:      m.offers[i],
		Provider:        addrOf(m.provider),
		ContentHash:     m.hashes[i],
	}
}

func TestSettlementScenarioThroughNode(t *testing.T) {
	h := newHarness(t)
	m := h.openMarket(100, 1000, 5)
	require.Equal(t, uint64(0), h.balance(addrOf(m.buyer)))
	require.Equal(t, uint64(1000), h.balance(m.request))

	submitter := newKey(t)
	for i := range m.offers {
		receipt := h.mustSubmit(submitter, types.TxTypeSubmitTransferProof, m.proof(i))
		require.Equal(t, types.ProofAddress(m.offers[i]).Address, *receipt.Created)
	}

	pr, err := h.node.PurchaseRequest(m.request)
	require.NoError(t, err)
	require.Equal(t, uint64(500), pr.BudgetRemaining)
	require.Equal(t, uint64(500), h.balance(m.request))
	require.Equal(t, uint64(500), h.balance(addrOf(m.provider)))

	proof, err := h.node.Proof(types.ProofAddress(m.offers[0]).Address)
	require.NoError(t, err)
	require.Equal(t, uint64(100), proof.Price)
	require.Equal(t, m.hashes[0], proof.ContentHash)
}

func TestSettlementBudgetExhaustedThroughNode(t *testing.T) {
	h := newHarness(t)
	m := h.openMarket(100, 550, 6)
	submitter := newKey(t)
	for i := 0; i < 5; i++ {
		h.mustSubmit(submitter, types.TxTypeSubmitTransferProof, m.proof(i))
	}

	receipt, err := h.submit(submitter, types.TxTypeSubmitTransferProof, m.proof(5))
	require.ErrorIs(t, err, common.ErrBudgetExhausted)
	require.False(t, receipt.Succeeded)
	require.Equal(t, string(common.KindBudgetExhausted), receipt.ErrorKind)

	pr, err := h.node.PurchaseRequest(m.request)
	require.NoError(t, err)
	require.Equal(t, uint64(50), pr.BudgetRemaining)
	_, err = h.node.Proof(types.ProofAddress(m.offers[5]).Address)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestPointsScenarioThroughNode(t *testing.T) {
	h := newHarness(t)
	owner := newKey(t)
	h.mustSubmit(h.admin, types.TxTypeInitializeUser, &types.InitializeUserArgs{UserID: "alice", Owner: addrOf(owner)})
	h.mustSubmit(h.admin, types.TxTypeUpdatePoint, &types.UpdatePointArgs{UserID: "alice", Delta: 250})

	_, err := h.submit(owner, types.TxTypeClaim, &types.ClaimArgs{UserID: "alice", Amount: 300})
	require.ErrorIs(t, err, common.ErrInsufficientClaimable)
	h.mustSubmit(owner, types.TxTypeClaim, &types.ClaimArgs{UserID: "alice", Amount: 250})

	_, user, err := h.node.User("alice")
	require.NoError(t, err)
	require.Zero(t, user.ClaimableAmount)
	require.Equal(t, uint64(250), h.balance(addrOf(owner)))

	_, err = h.submit(owner, types.TxTypeUpdatePoint, &types.UpdatePointArgs{UserID: "alice", Delta: 1})
	require.ErrorIs(t, err, common.ErrAuthorizationMismatch)
}

func TestFailedTransactionKeepsNonceAndState(t *testing.T) {
	h := newHarness(t)
	m := h.openMarket(100, 300, 1)
	submitter := newKey(t)

	bad := m.proof(0)
	bad.ContentHash = types.Hash{0xFF}
	receipt, err := h.submit(submitter, types.TxTypeSubmitTransferProof, bad)
	require.ErrorIs(t, err, common.ErrInvalidParams)
	require.Equal(t, string(common.KindInvalidParams), receipt.ErrorKind)

	nonce, err := h.node.Nonce(addrOf(submitter))
	require.NoError(t, err)
	require.Zero(t, nonce)
	require.Equal(t, uint64(300), h.balance(m.request))
	require.Zero(t, h.balance(addrOf(m.provider)))
	_, err = h.node.Proof(types.ProofAddress(m.offers[0]).Address)
	require.ErrorIs(t, err, common.ErrNotFound)

	h.mustSubmit(submitter, types.TxTypeSubmitTransferProof, m.proof(0))
	require.Equal(t, uint64(200), h.balance(m.request))
}

func TestReplayRejected(t *testing.T) {
	h := newHarness(t)
	owner := newKey(t)
	tx := h.signed(h.admin, types.TxTypeInitializeUser, &types.InitializeUserArgs{UserID: "bob", Owner: addrOf(owner)})
	_, err := h.node.SubmitTransaction(context.Background(), tx)
	require.NoError(t, err)

	receipt, err := h.node.SubmitTransaction(context.Background(), tx)
	require.ErrorIs(t, err, common.ErrInvalidNonce)
	require.Equal(t, string(common.KindInvalidNonce), receipt.ErrorKind)
}

func TestUnsignedTransactionRejected(t *testing.T) {
	h := newHarness(t)
	tx, err := types.NewTransaction(types.TxTypeMint, 0, &types.MintArgs{Beneficiary: crypto.Address{1}, Amount: 1})
	require.NoError(t, err)
	receipt, err := h.node.SubmitTransaction(context.Background(), tx)
	require.ErrorIs(t, err, types.ErrMissingSignature)
	require.Equal(t, string(common.KindInvalidSignature), receipt.ErrorKind)
}

func TestInitializeConfigOnlyOnce(t *testing.T) {
	h := newHarness(t)
	_, err := h.submit(newKey(t), types.TxTypeInitializeConfig, &types.InitializeConfigArgs{})
	require.ErrorIs(t, err, common.ErrStructuralDuplicate)

	cfg, err := h.node.Config()
	require.NoError(t, err)
	require.Equal(t, addrOf(h.admin), cfg.Admin)
}

func TestConcurrentSettlementsRespectBudget(t *testing.T) {
	h := newHarness(t)
	m := h.openMarket(100, 300, 6)

	txs := make([]*types.Transaction, len(m.offers))
	for i := range m.offers {
		txs[i] = h.signed(newKey(t), types.TxTypeSubmitTransferProof, m.proof(i))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		settled   int
		exhausted int
	)
	for _, tx := range txs {
		wg.Add(1)
		go func(tx *types.Transaction) {
			defer wg.Done()
			_, err := h.node.SubmitTransaction(context.Background(), tx)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				settled++
			case errors.Is(err, common.ErrBudgetExhausted):
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(tx)
	}
	wg.Wait()

	require.Equal(t, 3, settled)
	require.Equal(t, 3, exhausted)
	require.Zero(t, h.balance(m.request))
	require.Equal(t, uint64(300), h.balance(addrOf(m.provider)))
}

func TestSettlementEventsStreamInCommitOrder(t *testing.T) {
	h := newHarness(t)
	m := h.openMarket(10, 200, 20)
	ch, cancel := h.node.Subscribe(256)
	defer cancel()

	var wg sync.WaitGroup
	for i := range m.offers {
		tx := h.signed(newKey(t), types.TxTypeSubmitTransferProof, m.proof(i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.node.SubmitTransaction(context.Background(), tx); err != nil {
				t.Errorf("settle: %v", err)
			}
		}()
	}
	wg.Wait()

	last := uint64(200)
	settled := 0
	for settled < len(m.offers) {
		evt := <-ch
		if evt.EventType() != events.TypeProofSettled {
			continue
		}
		remaining, err := strconv.ParseUint(evt.(events.Renderer).Event().Attributes["budgetRemaining"], 10, 64)
		require.NoError(t, err)
		if remaining >= last {
			t.Fatalf("budget went from %d to %d in the event stream", last, remaining)
		}
		last = remaining
		settled++
	}
	require.Zero(t, last)
	require.Zero(t, h.node.DroppedEvents())
}

func TestSubscribeReceivesCommittedEvents(t *testing.T) {
	h := newHarness(t)
	ch, cancel := h.node.Subscribe(16)
	defer cancel()

	receipt := h.mustSubmit(h.admin, types.TxTypeMint, &types.MintArgs{Beneficiary: crypto.Address{9}, Amount: 5})
	evt := <-ch
	committed, ok := evt.(events.Committed)
	require.True(t, ok)
	require.Equal(t, events.TypeTokenMinted, committed.EventType())
	require.Equal(t, receipt.TxHash.Hex(), committed.TxHash)
	require.Equal(t, "mint", committed.Op)
}

func TestPausedMarketRejectsAndResumes(t *testing.T) {
	h := newHarness(t)
	provider := newKey(t)
	args := &types.RegisterAssetArgs{ContentHash: types.Hash{1}, Date: 1}

	h.node.SetPaused(common.ModuleMarket, true)
	receipt, err := h.submit(provider, types.TxTypeRegisterAsset, args)
	require.ErrorIs(t, err, common.ErrModulePaused)
	require.Equal(t, string(common.KindModulePaused), receipt.ErrorKind)

	h.node.SetPaused(common.ModuleMarket, false)
	h.mustSubmit(provider, types.TxTypeRegisterAsset, args)
}

func TestQuotaLimitsRequestsPerSigner(t *testing.T) {
	h := newHarness(t, WithQuota(common.Quota{MaxRequests: 2, WindowSeconds: 3600}))
	provider := newKey(t)
	h.mustSubmit(provider, types.TxTypeRegisterAsset, &types.RegisterAssetArgs{ContentHash: types.Hash{1}})
	h.mustSubmit(provider, types.TxTypeRegisterAsset, &types.RegisterAssetArgs{ContentHash: types.Hash{2}})

	receipt, err := h.submit(provider, types.TxTypeRegisterAsset, &types.RegisterAssetArgs{ContentHash: types.Hash{3}})
	require.ErrorIs(t, err, common.ErrQuotaRequestsExceeded)
	require.Equal(t, string(common.KindQuotaExceeded), receipt.ErrorKind)

	// Other signers keep their own budget.
	h.mustSubmit(newKey(t), types.TxTypeRegisterAsset, &types.RegisterAssetArgs{ContentHash: types.Hash{3}})
}

func TestBuyerSignatureVerificationOption(t *testing.T) {
	h := newHarness(t, WithBuyerSignatureVerification(true))
	require.True(t, h.node.VerifiesBuyerSignatures())
	m := h.openMarket(100, 200, 2)
	submitter := newKey(t)

	_, err := h.submit(submitter, types.TxTypeSubmitTransferProof, m.proof(0))
	require.ErrorIs(t, err, common.ErrInvalidSignature)

	args := m.proof(0)
	digest := market.ProofDigest(m.request, m.hashes[0])
	sig, err := m.buyer.Sign(digest[:])
	require.NoError(t, err)
	copy(args.BuyerSignature[:], sig[:64])
	h.mustSubmit(submitter, types.TxTypeSubmitTransferProof, args)
}

func TestDeriveAddress(t *testing.T) {
	owner := crypto.Address{0x01}
	hash := types.Hash{0x02}

	got, err := DeriveAddress("asset", owner.String(), hash.Hex())
	require.NoError(t, err)
	require.Equal(t, types.AssetAddress(owner, hash), got)

	got, err = DeriveAddress("Purchase", owner.Hex(), "7")
	require.NoError(t, err)
	require.Equal(t, types.PurchaseRequestAddress(owner, 7), got)

	got, err = DeriveAddress("config")
	require.NoError(t, err)
	require.Equal(t, types.ConfigAddress(), got)

	_, err = DeriveAddress("purchase", owner.Hex(), "300")
	require.ErrorIs(t, err, common.ErrInvalidParams)
	_, err = DeriveAddress("user", "this-user-id-is-definitely-longer-than-thirty")
	require.ErrorIs(t, err, common.ErrInvalidParams)
	_, err = DeriveAddress("mint", "extra")
	require.ErrorIs(t, err, common.ErrInvalidParams)
	_, err = DeriveAddress("ledger")
	require.ErrorIs(t, err, common.ErrInvalidParams)
}
