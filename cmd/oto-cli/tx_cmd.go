package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"otoledger/core/types"
	"otoledger/crypto"
	"otoledger/native/market"
)

const txTimeout = 30 * time.Second

// txCommand registers its flags on fs and returns a builder that produces the
// argument payload once the flags are parsed.
type txCommand struct {
	txType types.TxType
	flags  func(fs *flag.FlagSet) func() (any, error)
}

var txCommands = map[string]txCommand{
	"init-config": {types.TxTypeInitializeConfig, func(fs *flag.FlagSet) func() (any, error) {
		collection := fs.String("collection", "", "collection address")
		return func() (any, error) {
			args := &types.InitializeConfigArgs{}
			if *collection != "" {
				addr, err := parseAddress("collection", *collection)
				if err != nil {
					return nil, err
				}
				args.Collection = addr
			}
			return args, nil
		}
	}},
	"init-user": {types.TxTypeInitializeUser, func(fs *flag.FlagSet) func() (any, error) {
		user := fs.String("user", "", "user id")
		owner := fs.String("owner", "", "owner address")
		return func() (any, error) {
			addr, err := parseAddress("owner", *owner)
			if err != nil {
				return nil, err
			}
			return &types.InitializeUserArgs{UserID: *user, Owner: addr}, required("user", *user)
		}
	}},
	"update-point": {types.TxTypeUpdatePoint, func(fs *flag.FlagSet) func() (any, error) {
		user := fs.String("user", "", "user id")
		delta := fs.Uint64("delta", 0, "points to credit")
		return func() (any, error) {
			return &types.UpdatePointArgs{UserID: *user, Delta: *delta}, required("user", *user)
		}
	}},
	"claim": {types.TxTypeClaim, func(fs *flag.FlagSet) func() (any, error) {
		user := fs.String("user", "", "user id")
		amount := fs.Uint64("amount", 0, "points to claim")
		return func() (any, error) {
			return &types.ClaimArgs{UserID: *user, Amount: *amount}, required("user", *user)
		}
	}},
	"mint": {types.TxTypeMint, func(fs *flag.FlagSet) func() (any, error) {
		to := fs.String("to", "", "beneficiary address")
		amount := fs.Uint64("amount", 0, "tokens to mint")
		return func() (any, error) {
			addr, err := parseAddress("to", *to)
			if err != nil {
				return nil, err
			}
			return &types.MintArgs{Beneficiary: addr, Amount: *amount}, nil
		}
	}},
	"register-asset": {types.TxTypeRegisterAsset, func(fs *flag.FlagSet) func() (any, error) {
		hash := fs.String("hash", "", "0x-prefixed content hash")
		file := fs.String("file", "", "file to hash instead of --hash")
		date := fs.Uint("date", 0, "content date as YYYYMMDD")
		language := fs.Uint("language", 0, "language code")
		return func() (any, error) {
			if *date > 0xFFFFFFFF || *language > 0xFF {
				return nil, errors.New("--date or --language out of range")
			}
			args := &types.RegisterAssetArgs{Date: uint32(*date), Language: uint8(*language)}
			var err error
			switch {
			case *file != "":
				args.ContentHash, err = contentHash(*file)
			case *hash != "":
				args.ContentHash, err = types.ParseHash(*hash)
			default:
				err = errors.New("--hash or --file is required")
			}
			return args, err
		}
	}},
	"register-request": {types.TxTypeRegisterPurchaseRequest, func(fs *flag.FlagSet) func() (any, error) {
		language := fs.Uint("language", 0, "required language code, 0 for any")
		start := fs.Uint("start", 0, "earliest content date as YYYYMMDD")
		end := fs.Uint("end", math.MaxUint32, "latest content date as YYYYMMDD")
		unitPrice := fs.Uint64("unit-price", 0, "tokens paid per settled asset")
		maxBudget := fs.Uint64("max-budget", 0, "tokens moved into escrow")
		nonce := fs.Uint("nonce", 0, "request nonce, unique per buyer")
		return func() (any, error) {
			if *language > 0xFF || *nonce > 0xFF || *start > 0xFFFFFFFF || *end > 0xFFFFFFFF {
				return nil, errors.New("--language, --nonce or date out of range")
			}
			return &types.RegisterPurchaseRequestArgs{
				FilterLanguage: uint8(*language),
				StartDate:      uint32(*start),
				EndDate:        uint32(*end),
				UnitPrice:      *unitPrice,
				MaxBudget:      *maxBudget,
				Nonce:          uint8(*nonce),
			}, nil
		}
	}},
	"apply-offer": {types.TxTypeApplyAssetOffer, func(fs *flag.FlagSet) func() (any, error) {
		request := fs.String("request", "", "purchase request address")
		asset := fs.String("asset", "", "asset address")
		return func() (any, error) {
			pr, err := parseAddress("request", *request)
			if err != nil {
				return nil, err
			}
			a, err := parseAddress("asset", *asset)
			if err != nil {
				return nil, err
			}
			return &types.ApplyAssetOfferArgs{PurchaseRequest: pr, Asset: a}, nil
		}
	}},
	"submit-proof": {types.TxTypeSubmitTransferProof, func(fs *flag.FlagSet) func() (any, error) {
		request := fs.String("request", "", "purchase request address")
		offer := fs.String("offer", "", "asset offer address")
		provider := fs.String("provider", "", "provider address receiving payment")
		hash := fs.String("hash", "", "0x-prefixed content hash")
		buyerKey := fs.String("buyer-key", "", "buyer keystore used to sign the proof")
		return func() (any, error) {
			args := &types.SubmitTransferProofArgs{}
			var err error
			if args.PurchaseRequest, err = parseAddress("request", *request); err != nil {
				return nil, err
			}
			if args.AssetOffer, err = parseAddress("offer", *offer); err != nil {
				return nil, err
			}
			if args.Provider, err = parseAddress("provider", *provider); err != nil {
				return nil, err
			}
			if args.ContentHash, err = types.ParseHash(*hash); err != nil {
				return nil, fmt.Errorf("invalid --hash: %w", err)
			}
			if *buyerKey != "" {
				if args.BuyerSignature, err = signProof(*buyerKey, args.PurchaseRequest, args.ContentHash); err != nil {
					return nil, err
				}
			}
			return args, nil
		}
	}},
}

func runTxCommand(cmd txCommand, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(cmd.txType.String(), stderr)
	keyFile := fs.String("key", "", "signing keystore")
	build := cmd.flags(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	payload, err := build()
	if err != nil {
		return fail(stderr, err)
	}
	key, err := loadKey(*keyFile)
	if err != nil {
		return fail(stderr, err)
	}
	if req, ok := payload.(*types.RegisterPurchaseRequestArgs); ok && req.BuyerPubkey == (types.PublicKey{}) {
		req.BuyerPubkey = key.PubKey().Compressed()
	}
	client, err := dialRPC()
	if err != nil {
		return fail(stderr, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), txTimeout)
	defer cancel()
	receipt, err := client.SignAndSend(ctx, key, cmd.txType, payload)
	if receipt != nil {
		if printErr := printJSON(stdout, receipt); printErr != nil && err == nil {
			err = printErr
		}
	}
	if err != nil {
		return fail(stderr, err)
	}
	return 0
}

// signProof signs the settlement digest with the buyer's key.
func signProof(keyFile string, request crypto.Address, hash types.Hash) (types.Signature, error) {
	key, err := loadKey(keyFile)
	if err != nil {
		return types.Signature{}, fmt.Errorf("buyer key: %w", err)
	}
	digest := market.ProofDigest(request, hash)
	sig, err := key.Sign(digest[:])
	if err != nil {
		return types.Signature{}, err
	}
	var out types.Signature
	copy(out[:], sig[:64])
	return out, nil
}

func parseAddress(name, value string) (crypto.Address, error) {
	if strings.TrimSpace(value) == "" {
		return crypto.Address{}, fmt.Errorf("--%s is required", name)
	}
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return addr, nil
}

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}
