package wire

import (
	"github.com/pkg/errors"
	"google.golang.org/grpc/encoding"
)

// Name is the codec's registered content subtype. Clients must dial
// with grpc.ForceCodec or set it as their default codec.
const Name = "lyra-wire"

func init() {
	encoding.RegisterCodec(codec{})
}

type codec struct{}

func (codec) Name() string { return Name }

func (codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, errors.Errorf("wire: cannot marshal %T", v)
	}
	return m.appendWire(nil), nil
}

func (codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return errors.Errorf("wire: cannot unmarshal into %T", v)
	}
	return m.unmarshalWire(data)
}
