package snapshot

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// field is one decoded protobuf field. Scalars of varint and fixed64 wire
// types share the scalar slot.
type field struct {
	num    protowire.Number
	typ    protowire.Type
	scalar uint64
	bytes  []byte
}

// eachField walks the top-level fields of a message. Unknown wire types are
// skipped so that newer writers can add fields.
func eachField(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed(protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.scalar, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.scalar, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return malformed(fmt.Errorf("field %d: %w", num, protowire.ParseError(n)))
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func (f field) expect(typ protowire.Type) error {
	if f.typ != typ {
		return malformed(fmt.Errorf("field %d has wire type %d, want %d", f.num, f.typ, typ))
	}
	return nil
}

func (f field) varint() (uint64, error) {
	return f.scalar, f.expect(protowire.VarintType)
}

func (f field) u32() (uint32, error) {
	v, err := f.varint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, malformed(fmt.Errorf("field %d: %d overflows uint32", f.num, v))
	}
	return uint32(v), nil
}

func (f field) zigzag() (int64, error) {
	v, err := f.varint()
	return protowire.DecodeZigZag(v), err
}

func (f field) flag() (bool, error) {
	v, err := f.varint()
	return protowire.DecodeBool(v), err
}

func (f field) double() (float64, error) {
	return math.Float64frombits(f.scalar), f.expect(protowire.Fixed64Type)
}

func (f field) message() ([]byte, error) {
	return f.bytes, f.expect(protowire.BytesType)
}

func (f field) text() (string, error) {
	return string(f.bytes), f.expect(protowire.BytesType)
}

// packedVarints decodes a packed repeated varint field.
func (f field) packedVarints() ([]uint64, error) {
	b, err := f.message()
	if err != nil {
		return nil, err
	}
	var out []uint64
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, malformed(fmt.Errorf("field %d: %w", f.num, protowire.ParseError(n)))
		}
		out = append(out, v)
		b = b[n:]
	}
	return out, nil
}

func (f field) packedU32s() ([]uint32, error) {
	vs, err := f.packedVarints()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, len(vs))
	for i, v := range vs {
		if v > math.MaxUint32 {
			return nil, malformed(fmt.Errorf("field %d: %d overflows uint32", f.num, v))
		}
		out[i] = uint32(v)
	}
	return out, nil
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSint(b []byte, num protowire.Number, v int64) []byte {
	return appendUint(b, num, protowire.EncodeZigZag(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendUint(b, num, protowire.EncodeBool(v))
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendPacked[T ~uint32 | ~int64](b []byte, num protowire.Number, vs []T) []byte {
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	return appendBytes(b, num, packed)
}
