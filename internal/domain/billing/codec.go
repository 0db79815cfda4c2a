package billing

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// wireWriter appends protobuf-style fields. Zero values are written too so
// that decoding restores every field exactly.
type wireWriter struct{ b []byte }

func (w *wireWriter) str(num protowire.Number, s string) {
	w.b = protowire.AppendTag(w.b, num, protowire.BytesType)
	w.b = protowire.AppendString(w.b, s)
}

func (w *wireWriter) int(num protowire.Number, v int64) {
	w.b = protowire.AppendTag(w.b, num, protowire.VarintType)
	w.b = protowire.AppendVarint(w.b, protowire.EncodeZigZag(v))
}

func (w *wireWriter) bool(num protowire.Number, v bool) {
	w.b = protowire.AppendTag(w.b, num, protowire.VarintType)
	w.b = protowire.AppendVarint(w.b, protowire.EncodeBool(v))
}

// readFields walks b and hands every string or varint field to the callbacks.
// Unknown field numbers are skipped.
func readFields(b []byte, onString func(protowire.Number, string), onVarint func(protowire.Number, uint64)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("billing: decode tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch typ {
		case protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return fmt.Errorf("billing: decode field %d: %w", num, protowire.ParseError(m))
			}
			onString(num, v)
			b = b[m:]
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fmt.Errorf("billing: decode field %d: %w", num, protowire.ParseError(m))
			}
			onVarint(num, v)
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return fmt.Errorf("billing: skip field %d: %w", num, protowire.ParseError(m))
			}
			b = b[m:]
		}
	}
	return nil
}
