package indexer

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"otoledger/core"
	"otoledger/core/events"
	"otoledger/core/types"
	"otoledger/crypto"
	"otoledger/rpc"
	"otoledger/storage"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "indexer.yaml", `
endpoint: https://node.example:8547/rpc
types: [oto.proof.settled, " ", oto.token.minted]
database: /var/lib/oto/index.db
export_interval: 90s
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, []string{events.TypeProofSettled, events.TypeTokenMinted}, cfg.Types)
	require.Equal(t, 90*time.Second, cfg.ExportInterval)
	require.Equal(t, defaultReconnectDelay, cfg.ReconnectDelay)
	require.Equal(t, defaultExportDir, cfg.ExportDir)

	url, err := cfg.StreamURL()
	require.NoError(t, err)
	require.Equal(t, "wss://node.example:8547/ws?types=oto.proof.settled%2Coto.token.minted", url)

	_, err = LoadConfig(writeFile(t, dir, "bad.yaml", "endpoint: ftp://x\n"))
	require.ErrorContains(t, err, "unsupported scheme")

	_, err = LoadConfig(writeFile(t, dir, "unknown.yaml", "endpoitn: http://x\n"))
	require.Error(t, err)
}

func settledMessage(price uint64) rpc.StreamMessage {
	return rpc.StreamMessage{
		TxHash: "0xabc",
		Op:     "submit_transfer_proof",
		Type:   events.TypeProofSettled,
		Attributes: map[string]string{
			"proof":             "proof",
			"offer":             "offer",
			"purchaseRequest":   "request",
			"provider":          "provider",
			"contentHash":       "0x01",
			"price":             strconv.FormatUint(price, 10),
			"budgetRemaining":   "900",
			"signatureVerified": "false",
		},
	}
}

func TestStoreAndExport(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	_, err = store.Append(ctx, "run", rpc.StreamMessage{Type: events.TypeTokenMinted, Attributes: map[string]string{"amount": "5"}}, now)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = store.Append(ctx, "run", settledMessage(100), now)
		require.NoError(t, err)
	}

	counts, err := store.CountByType(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int64{events.TypeTokenMinted: 1, events.TypeProofSettled: 3}, counts)

	recs, err := store.Events(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, recs, 4)
	require.Equal(t, "5", recs[0].Attributes["amount"])

	exportDir := filepath.Join(dir, "exports")
	res, err := Export(ctx, store, exportDir, "run", now)
	require.NoError(t, err)
	require.Equal(t, 3, res.Rows)
	require.Equal(t, int64(2), res.FirstEvent)
	require.Equal(t, int64(4), res.LastEvent)

	fr, err := local.NewLocalFileReader(res.Path)
	require.NoError(t, err)
	pr, err := reader.NewParquetReader(fr, new(settlementRow), 1)
	require.NoError(t, err)
	rows := make([]settlementRow, pr.GetNumRows())
	require.NoError(t, pr.Read(&rows))
	pr.ReadStop()
	require.NoError(t, fr.Close())
	require.Len(t, rows, 3)
	require.Equal(t, int64(100), rows[0].Price)
	require.Equal(t, int64(900), rows[2].BudgetRemaining)

	// Nothing new: no second file.
	again, err := Export(ctx, store, exportDir, "run", now)
	require.NoError(t, err)
	require.Zero(t, again.Rows)

	_, err = store.Append(ctx, "run", settledMessage(100), now)
	require.NoError(t, err)
	next, err := Export(ctx, store, exportDir, "run", now)
	require.NoError(t, err)
	require.Equal(t, 1, next.Rows)
	require.Equal(t, int64(5), next.FirstEvent)
}

func TestSettlementRejectsMalformedAttributes(t *testing.T) {
	_, err := settlementFrom(1, "0x", map[string]string{"price": "x"}, time.Now())
	require.ErrorContains(t, err, "price")
}

func signedTx(t *testing.T, node *core.Node, key *crypto.PrivateKey, txType types.TxType, args any) *types.Transaction {
	t.Helper()
	nonce, err := node.Nonce(key.PubKey().Address())
	require.NoError(t, err)
	tx, err := types.NewTransaction(txType, nonce, args)
	require.NoError(t, err)
	require.NoError(t, tx.Sign(key))
	return tx
}

func mustApply(t *testing.T, node *core.Node, key *crypto.PrivateKey, txType types.TxType, args any) *types.Receipt {
	t.Helper()
	receipt, err := node.SubmitTransaction(context.Background(), signedTx(t, node, key, txType, args))
	require.NoError(t, err)
	return receipt
}

func TestIndexerMirrorsStream(t *testing.T) {
	node := core.NewNode(storage.NewMemDB())
	defer node.Close()
	srv, err := rpc.NewServer(node, rpc.ServerConfig{}, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	dir := t.TempDir()
	cfg := Config{
		Endpoint:  ts.URL,
		Database:  filepath.Join(dir, "index.db"),
		ExportDir: filepath.Join(dir, "exports"),
	}
	cfg.normalize()
	cfg.ExportInterval = -1 // exports only on shutdown
	ix, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer ix.Close()
	require.NotEmpty(t, ix.RunID())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ix.Run(ctx) }()

	admin, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	buyer, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	provider, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	mustApply(t, node, admin, types.TxTypeInitializeConfig, &types.InitializeConfigArgs{})

	// Mint until the indexer's subscription is live.
	mintTx := func() *types.Transaction {
		return signedTx(t, node, admin, types.TxTypeMint, &types.MintArgs{Beneficiary: buyer.PubKey().Address(), Amount: 100})
	}
	require.Eventually(t, func() bool {
		if _, err := node.SubmitTransaction(context.Background(), mintTx()); err != nil {
			return false
		}
		counts, err := ix.Store().CountByType(context.Background())
		return err == nil && counts[events.TypeTokenMinted] > 0
	}, 5*time.Second, 50*time.Millisecond)

	request := mustApply(t, node, buyer, types.TxTypeRegisterPurchaseRequest, &types.RegisterPurchaseRequestArgs{
		BuyerPubkey: buyer.PubKey().Compressed(),
		EndDate:     99991231,
		UnitPrice:   100,
		MaxBudget:   100,
		Nonce:       1,
	}).Created
	hash := types.Hash{0x42}
	asset := mustApply(t, node, provider, types.TxTypeRegisterAsset, &types.RegisterAssetArgs{ContentHash: hash, Date: 20240101}).Created
	offer := mustApply(t, node, provider, types.TxTypeApplyAssetOffer, &types.ApplyAssetOfferArgs{PurchaseRequest: *request, Asset: *asset}).Created
	mustApply(t, node, admin, types.TxTypeSubmitTransferProof, &types.SubmitTransferProofArgs{
		PurchaseRequest: *request,
		AssetOffer:      *offer,
		Provider:        provider.PubKey().Address(),
		ContentHash:     hash,
	})

	require.Eventually(t, func() bool {
		settlements, err := ix.Store().Settlements(context.Background(), 0)
		return err == nil && len(settlements) == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	last, err := ix.Store().LastExported(context.Background())
	require.NoError(t, err)
	require.NotZero(t, last)
	files, err := filepath.Glob(filepath.Join(cfg.ExportDir, "*.parquet"))
	require.NoError(t, err)
	require.Len(t, files, 1)
}
