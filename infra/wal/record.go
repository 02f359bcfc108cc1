package wal

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

type RecordType uint8

const (
	RecordPlace RecordType = iota
	RecordCancel
)

// Record is one accepted command. Place records carry the full order;
// cancel records carry the target id. Replaying the journal in order
// reproduces every book mutation deterministically, which is why
// cancels are sequenced exactly like orders.
type Record struct {
	Type RecordType
	Seq  uint64
	Time int64

	Account   string
	Symbol    string
	Side      uint8
	OrderType uint8
	Price     int64
	Qty       int64

	// Target is the order id a cancel applies to.
	Target uint64
}

var ErrCorruptRecord = errors.New("wal: corrupted record")

// Records are protobuf wire format, appended field by field with
// protowire. No descriptors, no reflection: this runs on the accept
// path of every order.
func (r *Record) marshal(buf []byte) []byte {
	buf = protowire.AppendTag(buf, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(r.Type))
	buf = protowire.AppendTag(buf, 2, protowire.VarintType)
	buf = protowire.AppendVarint(buf, r.Seq)
	buf = protowire.AppendTag(buf, 3, protowire.VarintType)
	buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(r.Time))
	if r.Account != "" {
		buf = protowire.AppendTag(buf, 4, protowire.BytesType)
		buf = protowire.AppendString(buf, r.Account)
	}
	if r.Symbol != "" {
		buf = protowire.AppendTag(buf, 5, protowire.BytesType)
		buf = protowire.AppendString(buf, r.Symbol)
	}
	buf = protowire.AppendTag(buf, 6, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(r.Side))
	buf = protowire.AppendTag(buf, 7, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(r.OrderType))
	buf = protowire.AppendTag(buf, 8, protowire.VarintType)
	buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(r.Price))
	buf = protowire.AppendTag(buf, 9, protowire.VarintType)
	buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(r.Qty))
	if r.Target != 0 {
		buf = protowire.AppendTag(buf, 10, protowire.VarintType)
		buf = protowire.AppendVarint(buf, r.Target)
	}
	return buf
}

func unmarshalRecord(b []byte, r *Record) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ErrCorruptRecord
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return ErrCorruptRecord
			}
			b = b[n:]
			switch num {
			case 1:
				r.Type = RecordType(v)
			case 2:
				r.Seq = v
			case 3:
				r.Time = protowire.DecodeZigZag(v)
			case 6:
				r.Side = uint8(v)
			case 7:
				r.OrderType = uint8(v)
			case 8:
				r.Price = protowire.DecodeZigZag(v)
			case 9:
				r.Qty = protowire.DecodeZigZag(v)
			case 10:
				r.Target = v
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return ErrCorruptRecord
			}
			b = b[n:]
			switch num {
			case 4:
				r.Account = string(v)
			case 5:
				r.Symbol = string(v)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return ErrCorruptRecord
			}
			b = b[n:]
		}
	}
	return nil
}
