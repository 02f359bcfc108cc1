package service

import (
	"errors"

	"lyra/domain/fixed"
)

// Rejection reasons. Every order that fails to reach the book carries
// exactly one of these; nothing is swallowed into a generic error.
var (
	ErrInvalidTick         = errors.New("order price is not a multiple of the tick size")
	ErrInvalidQuantity     = errors.New("order quantity is zero, negative, off-lot or over the account cap")
	ErrRiskRejected        = errors.New("order would exceed the account's exposure limit")
	ErrUnfilledMarketOrder = errors.New("market order could not be fully filled")
	ErrEngineBusy          = errors.New("instrument worker queue is full")
	ErrDuplicateOrder      = errors.New("order id already submitted")
	ErrOrderNotFound       = errors.New("order not found")
	ErrUnknownInstrument   = errors.New("instrument not configured")
	ErrUnknownAccount      = errors.New("account not activated")
)

// Reason maps an error to the stable token used in metrics labels and
// on the wire.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTick):
		return "invalid_tick"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrRiskRejected):
		return "risk_rejected"
	case errors.Is(err, ErrUnfilledMarketOrder):
		return "unfilled_market_order"
	case errors.Is(err, ErrEngineBusy):
		return "engine_busy"
	case errors.Is(err, ErrDuplicateOrder):
		return "duplicate_order"
	case errors.Is(err, ErrOrderNotFound):
		return "not_found"
	case errors.Is(err, ErrUnknownInstrument):
		return "unknown_instrument"
	case errors.Is(err, ErrUnknownAccount):
		return "unknown_account"
	case errors.Is(err, fixed.ErrOverflow):
		return "overflow"
	default:
		return "internal"
	}
}
