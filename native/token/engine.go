package token

import (
	"errors"
	"fmt"

	"otoledger/core/events"
	"otoledger/core/types"
	"otoledger/crypto"
	"otoledger/native/common"
)

var (
	ErrMintMismatch      = fmt.Errorf("token: account belongs to another mint: %w", common.ErrInvalidParams)
	ErrZeroAmount        = fmt.Errorf("token: amount must be positive: %w", common.ErrInvalidParams)
	ErrInsufficientFunds = fmt.Errorf("token: %w", common.ErrInsufficientFunds)
	ErrNotMintAuthority  = fmt.Errorf("token: signer is not the mint authority: %w", common.ErrAuthorizationMismatch)
	ErrNotAccountOwner   = fmt.Errorf("token: signer does not own the source account: %w", common.ErrAuthorizationMismatch)
)

// Engine implements the fungible-token primitives: the mint, associated
// token accounts, minting and transfers.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// InitializeMint creates the mint at its derived address with itself as the
// mint authority, together with the metadata record.
func (e *Engine) InitializeMint(st common.State, decimals uint8, name, symbol, uri string) (types.Derived, error) {
	mint := types.MintAddress()
	record := &types.Mint{Authority: mint.Address, Decimals: decimals, Bump: mint.Bump}
	if err := st.Create(mint.Address, record); err != nil {
		return types.Derived{}, common.Duplicate(err, "mint")
	}
	meta := types.MetadataAddress(mint.Address)
	if err := st.Create(meta.Address, &types.TokenMetadata{Mint: mint.Address, Name: name, Symbol: symbol, URI: uri}); err != nil {
		return types.Derived{}, common.Duplicate(err, "token metadata")
	}
	return mint, nil
}

// EnsureAccount returns owner's associated account for mint, creating an
// empty one when it does not exist yet.
func (e *Engine) EnsureAccount(st common.State, owner, mint crypto.Address) (crypto.Address, error) {
	ata := types.AssociatedTokenAddress(owner, mint).Address
	exists, err := st.Exists(ata)
	if err != nil {
		return crypto.Address{}, err
	}
	if exists {
		var acct types.TokenAccount
		if err := st.Load(ata, &acct); err != nil {
			return crypto.Address{}, err
		}
		if acct.Mint != mint || acct.Owner != owner {
			return crypto.Address{}, ErrMintMismatch
		}
		return ata, nil
	}
	if err := st.Create(ata, &types.TokenAccount{Mint: mint, Owner: owner}); err != nil {
		return crypto.Address{}, err
	}
	return ata, nil
}

// MintTo increases supply and credits dest. signer must resolve to the mint
// authority.
func (e *Engine) MintTo(st common.State, mint, dest crypto.Address, amount uint64, signer common.Signer) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	var m types.Mint
	if err := st.Load(mint, &m); err != nil {
		return common.NotFound(err, "mint")
	}
	if signer == nil || signer.Authorizes(m.Authority) != nil {
		return ErrNotMintAuthority
	}
	var acct types.TokenAccount
	if err := st.Load(dest, &acct); err != nil {
		return common.NotFound(err, "token account")
	}
	if acct.Mint != mint {
		return ErrMintMismatch
	}
	supply, err := common.CheckedAdd(m.Supply, amount)
	if err != nil {
		return err
	}
	balance, err := common.CheckedAdd(acct.Amount, amount)
	if err != nil {
		return err
	}
	m.Supply = supply
	acct.Amount = balance
	if err := st.Store(mint, &m); err != nil {
		return err
	}
	if err := st.Store(dest, &acct); err != nil {
		return err
	}
	st.AppendEvent(events.TokenMinted{Mint: mint, Account: dest, Amount: amount, Supply: supply}.Event())
	return nil
}

// Transfer moves amount between two accounts of the same mint. signer must
// resolve to the owner of from, either a key holder or a derived signer.
func (e *Engine) Transfer(st common.State, from, to crypto.Address, amount uint64, signer common.Signer) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	var src types.TokenAccount
	if err := st.Load(from, &src); err != nil {
		return common.NotFound(err, "source token account")
	}
	if signer == nil {
		return ErrNotAccountOwner
	}
	if err := signer.Authorizes(src.Owner); err != nil {
		return errors.Join(ErrNotAccountOwner, err)
	}
	var dst types.TokenAccount
	if err := st.Load(to, &dst); err != nil {
		return common.NotFound(err, "destination token account")
	}
	if src.Mint != dst.Mint {
		return ErrMintMismatch
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, src.Amount, amount)
	}
	if from == to {
		return nil
	}
	debited, err := common.CheckedSub(src.Amount, amount)
	if err != nil {
		return err
	}
	credited, err := common.CheckedAdd(dst.Amount, amount)
	if err != nil {
		return err
	}
	src.Amount = debited
	dst.Amount = credited
	if err := st.Store(from, &src); err != nil {
		return err
	}
	if err := st.Store(to, &dst); err != nil {
		return err
	}
	st.AppendEvent(events.TokenTransferred{From: from, To: to, Amount: amount}.Event())
	return nil
}

// Balance returns the amount held by a token account; a missing account has
// a zero balance.
func Balance(st common.Reader, account crypto.Address) (uint64, error) {
	var acct types.TokenAccount
	if err := st.Load(account, &acct); err != nil {
		if errors.Is(err, types.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return acct.Amount, nil
}

// Supply returns the total amount minted so far.
func Supply(st common.Reader, mint crypto.Address) (uint64, error) {
	var m types.Mint
	if err := st.Load(mint, &m); err != nil {
		return 0, common.NotFound(err, "mint")
	}
	return m.Supply, nil
}
