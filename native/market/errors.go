package market

import (
	"fmt"

	"otoledger/native/common"
)

var (
	ErrLanguageMismatch   = fmt.Errorf("market: %w", common.ErrFilterLanguageMismatch)
	ErrDateMismatch       = fmt.Errorf("market: %w", common.ErrFilterDateMismatch)
	ErrBudgetExhausted    = fmt.Errorf("market: %w", common.ErrBudgetExhausted)
	ErrProviderMismatch   = fmt.Errorf("market: provider does not match offer: %w", common.ErrAuthorizationMismatch)
	ErrOfferNotForRequest = fmt.Errorf("market: offer was not made for this purchase request: %w", common.ErrAuthorizationMismatch)
	ErrZeroUnitPrice      = fmt.Errorf("market: unit price must be positive: %w", common.ErrInvalidParams)
	ErrBudgetBelowPrice   = fmt.Errorf("market: max budget below unit price: %w", common.ErrInvalidParams)
	ErrInsufficientFunds  = fmt.Errorf("market: buyer cannot fund budget: %w", common.ErrInsufficientFunds)
	ErrBadBuyerSignature  = fmt.Errorf("market: bad buyer signature: %w", common.ErrInvalidSignature)
	ErrMintMismatch       = fmt.Errorf("market: config mint mismatch: %w", common.ErrInvalidParams)
)
