// Package wire is the venue's RPC surface: request and response
// messages in protobuf wire format, the codec that frames them, and
// the OrderService descriptor. Messages are encoded field by field
// with protowire; there is no generated code and no reflection on the
// request path. Prices and quantities cross the boundary as decimal
// strings and are parsed into fixed-point values server side.
package wire

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

var ErrCorruptMessage = errors.New("wire: corrupted message")

// Message is anything the codec can put on the wire.
type Message interface {
	appendWire(buf []byte) []byte
	unmarshalWire(b []byte) error
}

type SubmitOrderRequest struct {
	Symbol  string
	Account string
	Side    string // "buy" | "sell"
	Type    string // "limit" | "market"
	Price   string // decimal, empty for market orders
	Qty     string // decimal
}

func (m *SubmitOrderRequest) appendWire(buf []byte) []byte {
	buf = appendString(buf, 1, m.Symbol)
	buf = appendString(buf, 2, m.Account)
	buf = appendString(buf, 3, m.Side)
	buf = appendString(buf, 4, m.Type)
	buf = appendString(buf, 5, m.Price)
	buf = appendString(buf, 6, m.Qty)
	return buf
}

func (m *SubmitOrderRequest) unmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.Symbol = f.str()
		case 2:
			m.Account = f.str()
		case 3:
			m.Side = f.str()
		case 4:
			m.Type = f.str()
		case 5:
			m.Price = f.str()
		case 6:
			m.Qty = f.str()
		}
		return nil
	})
}

type SubmitOrderResponse struct {
	OrderId   uint64
	FilledQty string
	Remaining string
	Resting   bool
}

func (m *SubmitOrderResponse) appendWire(buf []byte) []byte {
	buf = appendUint(buf, 1, m.OrderId)
	buf = appendString(buf, 2, m.FilledQty)
	buf = appendString(buf, 3, m.Remaining)
	buf = appendBool(buf, 4, m.Resting)
	return buf
}

func (m *SubmitOrderResponse) unmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.OrderId = f.uint()
		case 2:
			m.FilledQty = f.str()
		case 3:
			m.Remaining = f.str()
		case 4:
			m.Resting = f.uint() != 0
		}
		return nil
	})
}

type CancelOrderRequest struct {
	OrderId uint64
}

func (m *CancelOrderRequest) appendWire(buf []byte) []byte {
	return appendUint(buf, 1, m.OrderId)
}

func (m *CancelOrderRequest) unmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, f field) error {
		if num == 1 {
			m.OrderId = f.uint()
		}
		return nil
	})
}

type CancelOrderResponse struct {
	OrderId uint64
}

func (m *CancelOrderResponse) appendWire(buf []byte) []byte {
	return appendUint(buf, 1, m.OrderId)
}

func (m *CancelOrderResponse) unmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, f field) error {
		if num == 1 {
			m.OrderId = f.uint()
		}
		return nil
	})
}

type DepthRequest struct {
	Symbol string
	Limit  uint32
}

func (m *DepthRequest) appendWire(buf []byte) []byte {
	buf = appendString(buf, 1, m.Symbol)
	buf = appendUint(buf, 2, uint64(m.Limit))
	return buf
}

func (m *DepthRequest) unmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.Symbol = f.str()
		case 2:
			m.Limit = uint32(f.uint())
		}
		return nil
	})
}

type DepthLevel struct {
	Price  string
	Qty    string
	Orders uint32
}

func (m *DepthLevel) appendWire(buf []byte) []byte {
	buf = appendString(buf, 1, m.Price)
	buf = appendString(buf, 2, m.Qty)
	buf = appendUint(buf, 3, uint64(m.Orders))
	return buf
}

func (m *DepthLevel) unmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.Price = f.str()
		case 2:
			m.Qty = f.str()
		case 3:
			m.Orders = uint32(f.uint())
		}
		return nil
	})
}

type DepthResponse struct {
	Symbol string
	Bids   []*DepthLevel
	Asks   []*DepthLevel
}

func (m *DepthResponse) appendWire(buf []byte) []byte {
	buf = appendString(buf, 1, m.Symbol)
	for _, lvl := range m.Bids {
		buf = appendMessage(buf, 2, lvl)
	}
	for _, lvl := range m.Asks {
		buf = appendMessage(buf, 3, lvl)
	}
	return buf
}

func (m *DepthResponse) unmarshalWire(b []byte) error {
	return walkFields(b, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.Symbol = f.str()
		case 2:
			lvl := &DepthLevel{}
			if err := lvl.unmarshalWire(f.bytes()); err != nil {
				return err
			}
			m.Bids = append(m.Bids, lvl)
		case 3:
			lvl := &DepthLevel{}
			if err := lvl.unmarshalWire(f.bytes()); err != nil {
				return err
			}
			m.Asks = append(m.Asks, lvl)
		}
		return nil
	})
}

// field is one decoded wire field: either a varint or a byte payload.
type field struct {
	varint  uint64
	payload []byte
}

func (f field) uint() uint64  { return f.varint }
func (f field) str() string   { return string(f.payload) }
func (f field) bytes() []byte { return f.payload }

func appendString(buf []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return buf
	}
	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	return protowire.AppendString(buf, v)
}

func appendUint(buf []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return buf
	}
	buf = protowire.AppendTag(buf, num, protowire.VarintType)
	return protowire.AppendVarint(buf, v)
}

func appendBool(buf []byte, num protowire.Number, v bool) []byte {
	if !v {
		return buf
	}
	return appendUint(buf, num, 1)
}

func appendMessage(buf []byte, num protowire.Number, m Message) []byte {
	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	body := m.appendWire(nil)
	return protowire.AppendBytes(buf, body)
}

// walkFields decodes the wire stream field by field and hands each one
// to fn. Unknown fields are skipped, not rejected.
func walkFields(b []byte, fn func(protowire.Number, field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ErrCorruptMessage
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return ErrCorruptMessage
			}
			b = b[n:]
			if err := fn(num, field{varint: v}); err != nil {
				return err
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return ErrCorruptMessage
			}
			b = b[n:]
			if err := fn(num, field{payload: v}); err != nil {
				return err
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return ErrCorruptMessage
			}
			b = b[n:]
		}
	}
	return nil
}
