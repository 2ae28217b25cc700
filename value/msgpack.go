package value

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	_ msgpack.CustomEncoder = Value{}
	_ msgpack.CustomDecoder = (*Value)(nil)
)

// EncodeMsgpack implements msgpack.CustomEncoder. A value is written as a
// two element array of its kind and payload so every variant, including
// UInt64 and Uuid, survives a round trip.
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := enc.EncodeUint(uint64(v.kind)); err != nil {
		return err
	}
	switch v.kind {
	case KindNull:
		return enc.EncodeNil()
	case KindBool:
		return enc.EncodeBool(v.b)
	case KindInt64:
		return enc.EncodeInt(v.i)
	case KindUInt64:
		return enc.EncodeUint(v.u)
	case KindFloat64:
		return enc.EncodeFloat64(v.f)
	case KindString:
		return enc.EncodeString(v.s)
	case KindUuid:
		return enc.EncodeBytes(v.id[:])
	case KindArray:
		if err := enc.EncodeArrayLen(len(v.arr)); err != nil {
			return err
		}
		for _, e := range v.arr {
			if err := e.EncodeMsgpack(enc); err != nil {
				return err
			}
		}
		return nil
	case KindMap:
		if err := enc.EncodeMapLen(len(v.m)); err != nil {
			return err
		}
		for _, k := range v.Keys() {
			if err := enc.EncodeString(k); err != nil {
				return err
			}
			if err := v.m[k].EncodeMsgpack(enc); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("value: encode unknown kind %d", v.kind)
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("value: decode: expected tagged pair, got %d elements", n)
	}
	k, err := dec.DecodeUint64()
	if err != nil {
		return err
	}
	switch Kind(k) {
	case KindNull:
		if err := dec.DecodeNil(); err != nil {
			return err
		}
		*v = Null()
	case KindBool:
		b, err := dec.DecodeBool()
		if err != nil {
			return err
		}
		*v = Bool(b)
	case KindInt64:
		i, err := dec.DecodeInt64()
		if err != nil {
			return err
		}
		*v = Int64(i)
	case KindUInt64:
		u, err := dec.DecodeUint64()
		if err != nil {
			return err
		}
		*v = UInt64(u)
	case KindFloat64:
		f, err := dec.DecodeFloat64()
		if err != nil {
			return err
		}
		*v = Float64(f)
	case KindString:
		s, err := dec.DecodeString()
		if err != nil {
			return err
		}
		*v = String(s)
	case KindUuid:
		b, err := dec.DecodeBytes()
		if err != nil {
			return err
		}
		id, err := uuid.FromBytes(b)
		if err != nil {
			return err
		}
		*v = UUID(id)
	case KindArray:
		l, err := dec.DecodeArrayLen()
		if err != nil {
			return err
		}
		arr := make([]Value, max(l, 0))
		for i := range arr {
			if err := arr[i].DecodeMsgpack(dec); err != nil {
				return err
			}
		}
		*v = Array(arr...)
	case KindMap:
		l, err := dec.DecodeMapLen()
		if err != nil {
			return err
		}
		m := make(map[string]Value, max(l, 0))
		for range max(l, 0) {
			key, err := dec.DecodeString()
			if err != nil {
				return err
			}
			var e Value
			if err := e.DecodeMsgpack(dec); err != nil {
				return err
			}
			m[key] = e
		}
		*v = Map(m)
	default:
		return fmt.Errorf("value: decode unknown kind %d", k)
	}
	return nil
}

// EncodeFields encodes a field map with msgpack.
func EncodeFields(fields map[string]Value) ([]byte, error) {
	return msgpack.Marshal(Map(fields))
}

// DecodeFields decodes a field map written by EncodeFields.
func DecodeFields(data []byte) (map[string]Value, error) {
	var v Value
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	if v.IsNull() {
		return map[string]Value{}, nil
	}
	return v.AsMap()
}
