package grpcbilling

import (
	"bytes"
	"encoding/json"
	"math"

	"google.golang.org/grpc/encoding"
)

// codecName is the content-subtype of billing calls ("application/grpc+json").
const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec carries billing messages as JSON. Numbers decode as json.Number
// so envelopes keep the integer width chosen by normalize.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func (jsonCodec) Name() string { return codecName }

// normalize turns decoded JSON numbers into int32 when they fit, int64 when
// they are integral but wider, float64 otherwise.
func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			if i >= math.MinInt32 && i <= math.MaxInt32 {
				return int32(i)
			}
			return i
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = normalize(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = normalize(t[k])
		}
		return t
	default:
		return v
	}
}
