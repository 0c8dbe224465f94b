// Package system bootstraps the ledger: the config singleton, the mint and
// its metadata.
package system

import (
	"fmt"

	"otoledger/core/events"
	"otoledger/core/types"
	"otoledger/crypto"
	"otoledger/native/common"
	"otoledger/native/token"
)

var ErrMintMismatch = fmt.Errorf("system: config names an unexpected mint: %w", common.ErrInvalidParams)

type Engine struct {
	token *token.Engine
}

func NewEngine(tokens *token.Engine) *Engine {
	if tokens == nil {
		tokens = token.NewEngine()
	}
	return &Engine{token: tokens}
}

// InitializeConfig creates the config singleton with payer as admin, and the
// mint with its metadata. It can succeed only once per ledger.
func (e *Engine) InitializeConfig(st common.State, payer, collection crypto.Address) (*types.Config, error) {
	cfgAddr := types.ConfigAddress()
	mint, err := e.token.InitializeMint(st, types.TokenDecimals, types.TokenName, types.TokenSymbol, types.TokenURI)
	if err != nil {
		return nil, err
	}
	cfg := &types.Config{
		Admin:      payer,
		Mint:       mint.Address,
		Collection: collection,
		Bump:       cfgAddr.Bump,
	}
	if err := st.Create(cfgAddr.Address, cfg); err != nil {
		return nil, common.Duplicate(err, "config")
	}
	st.AppendEvent(events.ConfigInitialized{
		Config:     cfgAddr.Address,
		Admin:      cfg.Admin,
		Mint:       cfg.Mint,
		Collection: cfg.Collection,
	}.Event())
	return cfg, nil
}

// LoadConfig reads the singleton and checks that it points at the derived mint.
func LoadConfig(st common.Reader) (*types.Config, error) {
	var cfg types.Config
	if err := st.Load(types.ConfigAddress().Address, &cfg); err != nil {
		return nil, common.NotFound(err, "config")
	}
	if cfg.Mint != types.MintAddress().Address {
		return nil, ErrMintMismatch
	}
	return &cfg, nil
}
