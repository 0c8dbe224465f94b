package core

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"otoledger/core/events"
	"otoledger/core/state"
	"otoledger/core/types"
	"otoledger/crypto"
	"otoledger/native/common"
	"otoledger/native/system"
	"otoledger/observability"
)

// operation is a decoded transaction ready to run: the addresses it may write
// and the closure performing the state transition.
type operation struct {
	writable []crypto.Address

	// escrow is the token amount the operation moves into escrow, charged
	// against the signer's quota.
	escrow uint64
	run    func(st *state.Txn) (crypto.Address, error)
}

// SubmitTransaction verifies, sequences and applies tx. A failed transaction
// leaves state and the signer's nonce untouched; the receipt is returned in
// both cases and err carries the failure.
func (n *Node) SubmitTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: nil transaction", common.ErrInvalidParams)
	}
	op := tx.Type.String()
	ctx, span := n.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(
		attribute.String("oto.op", op),
		attribute.Int64("oto.nonce", int64(tx.Nonce)),
	))
	defer span.End()

	start := time.Now()
	receipt := &types.Receipt{Type: op, Nonce: tx.Nonce}
	evts, err := n.apply(ctx, tx, receipt)
	kind := common.KindOf(err)
	observability.Ledger().RecordTransaction(op, string(kind), time.Since(start))

	if err != nil {
		receipt.Error = err.Error()
		receipt.ErrorKind = string(kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		n.logger.Warn("transaction rejected",
			slog.String("op", op),
			slog.String("signer", receipt.Signer.String()),
			slog.Uint64("nonce", tx.Nonce),
			slog.String("kind", string(kind)),
			slog.Any("error", err))
		return receipt, err
	}

	receipt.Succeeded = true
	receipt.Events = make([]types.Event, 0, len(evts))
	hash := receipt.TxHash.Hex()
	for _, evt := range evts {
		receipt.Events = append(receipt.Events, *evt)
		observability.Events().RecordEvent(evt.Type)
		n.recordFlow(evt)
	}
	span.SetAttributes(attribute.String("oto.tx_hash", hash))
	n.logger.Info("transaction applied",
		slog.String("op", op),
		slog.String("tx_hash", hash),
		slog.String("signer", receipt.Signer.String()),
		slog.Int("events", len(evts)))
	return receipt, nil
}

func (n *Node) apply(ctx context.Context, tx *types.Transaction, receipt *types.Receipt) ([]*types.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidParams, err)
	}
	receipt.TxHash = hash
	signer, err := tx.From()
	if err != nil {
		return nil, err
	}
	receipt.Signer = signer

	op, err := n.decode(tx, signer)
	if err != nil {
		return nil, err
	}
	if n.quota != nil {
		if err := n.quota.charge(signer, op.escrow, time.Now()); err != nil {
			observability.ModuleMetrics().RecordThrottle("quota_exceeded")
			return nil, err
		}
	}

	txn := n.state.Begin(append(op.writable, signer)...)
	defer txn.Discard()

	expected, err := txn.Nonce(signer)
	if err != nil {
		return nil, err
	}
	if tx.Nonce != expected {
		return nil, fmt.Errorf("%w: expected %d, got %d", common.ErrInvalidNonce, expected, tx.Nonce)
	}
	created, err := op.run(txn)
	if err != nil {
		return nil, err
	}
	if err := txn.SetNonce(signer, expected+1); err != nil {
		return nil, err
	}
	evts := txn.Events()
	// Publish under the record locks so subscribers see events in commit order.
	txHash, opName := hash.Hex(), tx.Type.String()
	txn.OnCommit(func() {
		for _, evt := range evts {
			n.bus.Emit(events.Committed{TxHash: txHash, Op: opName, Evt: evt})
		}
	})
	if err := txn.Commit(); err != nil {
		return nil, fmt.Errorf("commit %s: %w", tx.Type, err)
	}
	if !created.IsZero() {
		receipt.Created = &created
	}
	return evts, nil
}

// decode resolves the arguments of tx into an operation. Every address the
// operation can write must be listed so that concurrent transactions touching
// the same records are serialised.
func (n *Node) decode(tx *types.Transaction, signer crypto.Address) (*operation, error) {
	mint := types.MintAddress().Address
	ata := func(owner crypto.Address) crypto.Address {
		return types.AssociatedTokenAddress(owner, mint).Address
	}

	switch tx.Type {
	case types.TxTypeInitializeConfig:
		var args types.InitializeConfigArgs
		if err := decodeArgs(tx, &args); err != nil {
			return nil, err
		}
		return &operation{
			writable: []crypto.Address{types.ConfigAddress().Address, mint, types.MetadataAddress(mint).Address},
			run: func(st *state.Txn) (crypto.Address, error) {
				if _, err := n.system.InitializeConfig(st, signer, args.Collection); err != nil {
					return crypto.Address{}, err
				}
				return types.ConfigAddress().Address, nil
			},
		}, nil

	case types.TxTypeInitializeUser:
		var args types.InitializeUserArgs
		if err := decodeArgs(tx, &args); err != nil {
			return nil, err
		}
		user, err := userAddress(args.UserID)
		if err != nil {
			return nil, err
		}
		return &operation{
			writable: []crypto.Address{user},
			run: func(st *state.Txn) (crypto.Address, error) {
				return n.points.InitializeUser(st, args.UserID, args.Owner)
			},
		}, nil

	case types.TxTypeUpdatePoint:
		var args types.UpdatePointArgs
		if err := decodeArgs(tx, &args); err != nil {
			return nil, err
		}
		user, err := userAddress(args.UserID)
		if err != nil {
			return nil, err
		}
		return &operation{
			writable: []crypto.Address{user},
			run: func(st *state.Txn) (crypto.Address, error) {
				cfg, err := system.LoadConfig(st)
				if err != nil {
					return crypto.Address{}, err
				}
				_, err = n.points.UpdatePoint(st, cfg, signer, args.UserID, args.Delta)
				return crypto.Address{}, err
			},
		}, nil

	case types.TxTypeClaim:
		var args types.ClaimArgs
		if err := decodeArgs(tx, &args); err != nil {
			return nil, err
		}
		user, err := userAddress(args.UserID)
		if err != nil {
			return nil, err
		}
		return &operation{
			writable: []crypto.Address{user, mint, ata(signer)},
			run: func(st *state.Txn) (crypto.Address, error) {
				cfg, err := system.LoadConfig(st)
				if err != nil {
					return crypto.Address{}, err
				}
				_, err = n.points.Claim(st, cfg, signer, args.UserID, args.Amount)
				return crypto.Address{}, err
			},
		}, nil

	case types.TxTypeMint:
		var args types.MintArgs
		if err := decodeArgs(tx, &args); err != nil {
			return nil, err
		}
		return &operation{
			writable: []crypto.Address{mint, ata(args.Beneficiary)},
			run: func(st *state.Txn) (crypto.Address, error) {
				cfg, err := system.LoadConfig(st)
				if err != nil {
					return crypto.Address{}, err
				}
				return crypto.Address{}, n.points.Mint(st, cfg, signer, args.Beneficiary, args.Amount)
			},
		}, nil

	case types.TxTypeRegisterAsset:
		var args types.RegisterAssetArgs
		if err := decodeArgs(tx, &args); err != nil {
			return nil, err
		}
		return &operation{
			writable: []crypto.Address{types.AssetAddress(signer, args.ContentHash).Address},
			run: func(st *state.Txn) (crypto.Address, error) {
				return n.market.RegisterAsset(st, signer, &args)
			},
		}, nil

	case types.TxTypeRegisterPurchaseRequest:
		var args types.RegisterPurchaseRequestArgs
		if err := decodeArgs(tx, &args); err != nil {
			return nil, err
		}
		pr := types.PurchaseRequestAddress(signer, args.Nonce).Address
		return &operation{
			writable: []crypto.Address{pr, ata(signer), ata(pr)},
			escrow:   args.MaxBudget,
			run: func(st *state.Txn) (crypto.Address, error) {
				cfg, err := system.LoadConfig(st)
				if err != nil {
					return crypto.Address{}, err
				}
				return n.market.RegisterPurchaseRequest(st, cfg, signer, &args)
			},
		}, nil

	case types.TxTypeApplyAssetOffer:
		var args types.ApplyAssetOfferArgs
		if err := decodeArgs(tx, &args); err != nil {
			return nil, err
		}
		// Assets are immutable, so the offer address can be resolved from
		// committed state before any lock is taken.
		var asset types.Asset
		if err := n.state.Load(args.Asset, &asset); err != nil {
			return nil, common.NotFound(err, "asset")
		}
		return &operation{
			writable: []crypto.Address{types.OfferAddress(args.PurchaseRequest, asset.ContentHash).Address},
			run: func(st *state.Txn) (crypto.Address, error) {
				return n.market.ApplyAssetOffer(st, signer, args.PurchaseRequest, args.Asset)
			},
		}, nil

	case types.TxTypeSubmitTransferProof:
		var args types.SubmitTransferProofArgs
		if err := decodeArgs(tx, &args); err != nil {
			return nil, err
		}
		return &operation{
			writable: []crypto.Address{
				args.PurchaseRequest,
				types.ProofAddress(args.AssetOffer).Address,
				ata(args.PurchaseRequest),
				ata(args.Provider),
			},
			run: func(st *state.Txn) (crypto.Address, error) {
				cfg, err := system.LoadConfig(st)
				if err != nil {
					return crypto.Address{}, err
				}
				return n.market.SubmitTransferProof(st, cfg, &args)
			},
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown transaction type %d", common.ErrInvalidParams, uint8(tx.Type))
}

func decodeArgs(tx *types.Transaction, out any) error {
	if err := tx.DecodeArgs(out); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidParams, err)
	}
	return nil
}

func userAddress(userID string) (crypto.Address, error) {
	d, err := types.UserAddress(userID)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %v", common.ErrInvalidParams, err)
	}
	return d.Address, nil
}

func (n *Node) recordFlow(evt *types.Event) {
	amount := func(key string) uint64 {
		v, _ := strconv.ParseUint(evt.Attributes[key], 10, 64)
		return v
	}
	switch evt.Type {
	case events.TypeProofSettled:
		observability.Ledger().RecordSettlement(amount("price"))
	case events.TypePurchaseRegistered:
		observability.Ledger().RecordEscrow(amount("maxBudget"))
	case events.TypeTokenMinted:
		observability.Ledger().RecordMint(amount("amount"))
	}
}
