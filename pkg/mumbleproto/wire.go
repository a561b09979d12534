package mumbleproto

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// fieldWriter accumulates protobuf-wire-format tagged fields for one
// message, field numbers matching the Mumble.proto message set.
type fieldWriter struct {
	buf []byte
}

func (w *fieldWriter) varint(num protowire.Number, v uint64) {
	w.buf = protowire.AppendTag(w.buf, num, protowire.VarintType)
	w.buf = protowire.AppendVarint(w.buf, v)
}

func (w *fieldWriter) optUint32(num protowire.Number, v *uint32) {
	if v == nil {
		return
	}
	w.varint(num, uint64(*v))
}

func (w *fieldWriter) optUint64(num protowire.Number, v *uint64) {
	if v == nil {
		return
	}
	w.varint(num, *v)
}

func (w *fieldWriter) optInt32(num protowire.Number, v *int32) {
	if v == nil {
		return
	}
	w.varint(num, uint64(uint32(*v)))
}

func (w *fieldWriter) optBool(num protowire.Number, v *bool) {
	if v == nil {
		return
	}
	u := uint64(0)
	if *v {
		u = 1
	}
	w.varint(num, u)
}

func (w *fieldWriter) optString(num protowire.Number, v *string) {
	if v == nil {
		return
	}
	w.buf = protowire.AppendTag(w.buf, num, protowire.BytesType)
	w.buf = protowire.AppendString(w.buf, *v)
}

func (w *fieldWriter) optBytes(num protowire.Number, v []byte) {
	if v == nil {
		return
	}
	w.buf = protowire.AppendTag(w.buf, num, protowire.BytesType)
	w.buf = protowire.AppendBytes(w.buf, v)
}

func (w *fieldWriter) repUint32(num protowire.Number, vs []uint32) {
	for _, v := range vs {
		w.varint(num, uint64(v))
	}
}

func (w *fieldWriter) repInt32(num protowire.Number, vs []int32) {
	for _, v := range vs {
		w.varint(num, uint64(uint32(v)))
	}
}

func (w *fieldWriter) repString(num protowire.Number, vs []string) {
	for _, v := range vs {
		w.optString(num, &v)
	}
}

func (w *fieldWriter) repBytes(num protowire.Number, vs [][]byte) {
	for _, v := range vs {
		w.optBytes(num, v)
	}
}

func (w *fieldWriter) message(num protowire.Number, payload []byte) {
	w.buf = protowire.AppendTag(w.buf, num, protowire.BytesType)
	w.buf = protowire.AppendBytes(w.buf, payload)
}

// fieldReader walks the tagged fields of a single protobuf-wire-format
// message, invoking fn for each (field number, wire type, raw bytes).
func walkFields(data []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		var raw []byte
		var consumed int
		switch typ {
		case protowire.VarintType:
			_, consumed = protowire.ConsumeVarint(data)
			if consumed < 0 {
				return protowire.ParseError(consumed)
			}
			raw = data[:consumed]
		case protowire.Fixed32Type:
			consumed = 4
			if len(data) < 4 {
				return protowire.ParseError(-1)
			}
			raw = data[:4]
		case protowire.Fixed64Type:
			consumed = 8
			if len(data) < 8 {
				return protowire.ParseError(-1)
			}
			raw = data[:8]
		case protowire.BytesType:
			b, n2 := protowire.ConsumeBytes(data)
			if n2 < 0 {
				return protowire.ParseError(n2)
			}
			raw = b
			consumed = n2
		default:
			n2 := protowire.ConsumeFieldValue(num, typ, data)
			if n2 < 0 {
				return protowire.ParseError(n2)
			}
			raw = data[:n2]
			consumed = n2
		}

		if err := fn(num, typ, raw); err != nil {
			return err
		}
		data = data[consumed:]
	}
	return nil
}

func varintValue(raw []byte) uint64 {
	v, _ := protowire.ConsumeVarint(raw)
	return v
}

func u32ptr(raw []byte) *uint32 {
	v := uint32(varintValue(raw))
	return &v
}

func u64ptr(raw []byte) *uint64 {
	v := varintValue(raw)
	return &v
}

func i32ptr(raw []byte) *int32 {
	v := int32(varintValue(raw))
	return &v
}

func boolptr(raw []byte) *bool {
	v := varintValue(raw) != 0
	return &v
}

func strptr(raw []byte) *string {
	s := string(raw)
	return &s
}
