package orderbook

import (
	"fmt"

	"lyra/domain/fixed"
)

// Trade is the result of one match. Seq increases by exactly one per
// trade within an instrument; downstream consumers use it for gap
// detection, and Key() derived from it is the settlement dedup key.
type Trade struct {
	Symbol      string
	Seq         uint64
	BuyOrder    uint64
	SellOrder   uint64
	BuyAccount  string
	SellAccount string

	// Price is always the resting (maker) order's price.
	Price    fixed.Value
	Qty      fixed.Value
	Notional fixed.Value

	Time int64
}

// Key is the globally unique trade id used for settlement idempotence.
func (t *Trade) Key() string {
	return fmt.Sprintf("%s-%d", t.Symbol, t.Seq)
}
