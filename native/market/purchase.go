package market

import (
	"fmt"

	"otoledger/core/events"
	"otoledger/core/types"
	"otoledger/crypto"
	"otoledger/native/common"
	"otoledger/native/token"
)

// RegisterPurchaseRequest creates the (buyer, nonce) request and moves
// MaxBudget from the buyer's token account into the request's escrow account.
// Either both happen or the caller discards the transaction.
func (e *Engine) RegisterPurchaseRequest(st common.State, cfg *types.Config, buyer crypto.Address, args *types.RegisterPurchaseRequestArgs) (crypto.Address, error) {
	if err := e.guard(); err != nil {
		return crypto.Address{}, err
	}
	if args.UnitPrice == 0 {
		return crypto.Address{}, ErrZeroUnitPrice
	}
	if args.MaxBudget < args.UnitPrice {
		return crypto.Address{}, ErrBudgetBelowPrice
	}
	mint, err := mintOf(cfg)
	if err != nil {
		return crypto.Address{}, err
	}

	derived := types.PurchaseRequestAddress(buyer, args.Nonce)
	if exists, err := st.Exists(derived.Address); err != nil {
		return crypto.Address{}, err
	} else if exists {
		return crypto.Address{}, common.Duplicate(types.ErrRecordExists, "purchase request")
	}

	buyerAccount := types.AssociatedTokenAddress(buyer, mint).Address
	balance, err := token.Balance(st, buyerAccount)
	if err != nil {
		return crypto.Address{}, err
	}
	if balance < args.MaxBudget {
		return crypto.Address{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, balance, args.MaxBudget)
	}

	pr := &types.PurchaseRequest{
		Buyer:           buyer,
		BuyerPubkey:     args.BuyerPubkey,
		FilterLanguage:  args.FilterLanguage,
		StartDate:       args.StartDate,
		EndDate:         args.EndDate,
		UnitPrice:       args.UnitPrice,
		BudgetRemaining: args.MaxBudget,
		Bump:            derived.Bump,
		Nonce:           args.Nonce,
	}
	if err := st.Create(derived.Address, pr); err != nil {
		return crypto.Address{}, common.Duplicate(err, "purchase request")
	}
	escrow, err := e.token.EnsureAccount(st, derived.Address, mint)
	if err != nil {
		return crypto.Address{}, err
	}
	if err := e.token.Transfer(st, buyerAccount, escrow, args.MaxBudget, common.KeySigner(buyer)); err != nil {
		return crypto.Address{}, err
	}
	st.AppendEvent(events.PurchaseRegistered{
		PurchaseRequest: derived.Address,
		Buyer:           buyer,
		Escrow:          escrow,
		UnitPrice:       args.UnitPrice,
		MaxBudget:       args.MaxBudget,
		Nonce:           args.Nonce,
	}.Event())
	return derived.Address, nil
}
