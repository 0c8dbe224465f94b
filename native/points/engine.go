package points

import (
	"fmt"

	"otoledger/core/events"
	"otoledger/core/types"
	"otoledger/crypto"
	"otoledger/native/common"
	"otoledger/native/token"
)

var (
	ErrUnauthorized          = fmt.Errorf("points: %w", common.ErrAuthorizationMismatch)
	ErrInsufficientClaimable = fmt.Errorf("points: not enough claimable amount: %w", common.ErrInsufficientClaimable)
	ErrInvalidUserID         = fmt.Errorf("points: user id must be 1..%d bytes: %w", types.MaxUserIDLength, common.ErrInvalidParams)
)

// Engine maintains per-user point balances and converts them into tokens.
type Engine struct {
	token  *token.Engine
	pauses common.PauseView
}

func NewEngine(tokens *token.Engine) *Engine {
	if tokens == nil {
		tokens = token.NewEngine()
	}
	return &Engine{token: tokens}
}

// SetPauses configures the pause view consulted before every mutation.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

func userAddress(userID string) (types.Derived, error) {
	d, err := types.UserAddress(userID)
	if err != nil {
		return types.Derived{}, ErrInvalidUserID
	}
	return d, nil
}

// InitializeUser creates the points record of userID owned by owner.
func (e *Engine) InitializeUser(st common.State, userID string, owner crypto.Address) (crypto.Address, error) {
	if err := common.Guard(e.pauses, common.ModulePoints); err != nil {
		return crypto.Address{}, err
	}
	addr, err := userAddress(userID)
	if err != nil {
		return crypto.Address{}, err
	}
	user := &types.User{UserID: userID, Owner: owner, Bump: addr.Bump}
	if err := st.Create(addr.Address, user); err != nil {
		return crypto.Address{}, common.Duplicate(err, "user "+userID)
	}
	st.AppendEvent(events.UserInitialized{User: addr.Address, UserID: userID, Owner: owner}.Event())
	return addr.Address, nil
}

// UpdatePoint credits delta points to userID. Only the config admin may call it.
func (e *Engine) UpdatePoint(st common.State, cfg *types.Config, signer crypto.Address, userID string, delta uint64) (uint64, error) {
	if err := common.Guard(e.pauses, common.ModulePoints); err != nil {
		return 0, err
	}
	if cfg == nil || signer != cfg.Admin {
		return 0, ErrUnauthorized
	}
	addr, err := userAddress(userID)
	if err != nil {
		return 0, err
	}
	var user types.User
	if err := st.Load(addr.Address, &user); err != nil {
		return 0, common.NotFound(err, "user "+userID)
	}
	updated, err := common.CheckedAdd(user.ClaimableAmount, delta)
	if err != nil {
		return 0, err
	}
	user.ClaimableAmount = updated
	if err := st.Store(addr.Address, &user); err != nil {
		return 0, err
	}
	st.AppendEvent(events.PointsUpdated{UserID: userID, Delta: delta, Claimable: updated}.Event())
	return updated, nil
}

// Claim mints amount tokens to the user's owner and debits the points. The
// signer must be the recorded owner.
func (e *Engine) Claim(st common.State, cfg *types.Config, signer crypto.Address, userID string, amount uint64) (uint64, error) {
	if err := common.Guard(e.pauses, common.ModulePoints); err != nil {
		return 0, err
	}
	addr, err := userAddress(userID)
	if err != nil {
		return 0, err
	}
	var user types.User
	if err := st.Load(addr.Address, &user); err != nil {
		return 0, common.NotFound(err, "user "+userID)
	}
	if signer != user.Owner {
		return 0, ErrUnauthorized
	}
	if amount == 0 || amount > user.ClaimableAmount {
		return 0, fmt.Errorf("%w: requested %d, claimable %d", ErrInsufficientClaimable, amount, user.ClaimableAmount)
	}
	remaining, err := common.CheckedSub(user.ClaimableAmount, amount)
	if err != nil {
		return 0, err
	}
	if err := e.mint(st, cfg, signer, amount); err != nil {
		return 0, err
	}
	user.ClaimableAmount = remaining
	if err := st.Store(addr.Address, &user); err != nil {
		return 0, err
	}
	st.AppendEvent(events.PointsClaimed{UserID: userID, Beneficiary: signer, Amount: amount, Claimable: remaining}.Event())
	return remaining, nil
}

// Mint lets the admin mint tokens directly to beneficiary.
func (e *Engine) Mint(st common.State, cfg *types.Config, signer, beneficiary crypto.Address, amount uint64) error {
	if err := common.Guard(e.pauses, common.ModulePoints); err != nil {
		return err
	}
	if cfg == nil || signer != cfg.Admin {
		return ErrUnauthorized
	}
	if amount == 0 {
		return fmt.Errorf("%w: mint amount must be positive", ErrInsufficientClaimable)
	}
	return e.mint(st, cfg, beneficiary, amount)
}

func (e *Engine) mint(st common.State, cfg *types.Config, beneficiary crypto.Address, amount uint64) error {
	mint := types.MintAddress()
	if cfg == nil || cfg.Mint != mint.Address {
		return fmt.Errorf("points: config mint mismatch: %w", common.ErrInvalidParams)
	}
	ata, err := e.token.EnsureAccount(st, beneficiary, mint.Address)
	if err != nil {
		return err
	}
	return e.token.MintTo(st, mint.Address, ata, amount, mint.Signer())
}
