package settlement

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"lyra/domain/fixed"
	"lyra/domain/orderbook"
)

var ErrCorruptTrade = errors.New("settlement: corrupted trade payload")

// EncodeTrade serializes a trade in protobuf wire format for the
// durable outbox. Same descriptor-free protowire approach as the order
// journal.
func EncodeTrade(t *orderbook.Trade) []byte {
	buf := make([]byte, 0, 96)
	buf = protowire.AppendTag(buf, 1, protowire.BytesType)
	buf = protowire.AppendString(buf, t.Symbol)
	buf = protowire.AppendTag(buf, 2, protowire.VarintType)
	buf = protowire.AppendVarint(buf, t.Seq)
	buf = protowire.AppendTag(buf, 3, protowire.VarintType)
	buf = protowire.AppendVarint(buf, t.BuyOrder)
	buf = protowire.AppendTag(buf, 4, protowire.VarintType)
	buf = protowire.AppendVarint(buf, t.SellOrder)
	buf = protowire.AppendTag(buf, 5, protowire.BytesType)
	buf = protowire.AppendString(buf, t.BuyAccount)
	buf = protowire.AppendTag(buf, 6, protowire.BytesType)
	buf = protowire.AppendString(buf, t.SellAccount)
	buf = protowire.AppendTag(buf, 7, protowire.VarintType)
	buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(int64(t.Price)))
	buf = protowire.AppendTag(buf, 8, protowire.VarintType)
	buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(int64(t.Qty)))
	buf = protowire.AppendTag(buf, 9, protowire.VarintType)
	buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(int64(t.Notional)))
	buf = protowire.AppendTag(buf, 10, protowire.VarintType)
	buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(t.Time))
	return buf
}

func DecodeTrade(b []byte) (*orderbook.Trade, error) {
	t := &orderbook.Trade{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, ErrCorruptTrade
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, ErrCorruptTrade
			}
			b = b[n:]
			switch num {
			case 2:
				t.Seq = v
			case 3:
				t.BuyOrder = v
			case 4:
				t.SellOrder = v
			case 7:
				t.Price = fixed.Value(protowire.DecodeZigZag(v))
			case 8:
				t.Qty = fixed.Value(protowire.DecodeZigZag(v))
			case 9:
				t.Notional = fixed.Value(protowire.DecodeZigZag(v))
			case 10:
				t.Time = protowire.DecodeZigZag(v)
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, ErrCorruptTrade
			}
			b = b[n:]
			switch num {
			case 1:
				t.Symbol = string(v)
			case 5:
				t.BuyAccount = string(v)
			case 6:
				t.SellAccount = string(v)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, ErrCorruptTrade
			}
			b = b[n:]
		}
	}
	return t, nil
}
