package billing

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Item describes a purchasable SKU as reported by a details query.
type Item struct {
	OriginalJSON      string
	SKU               string
	Type              Category
	Title             string
	Description       string
	Currency          string
	Price             string
	PriceAmountMicros int64
}

type itemJSON struct {
	ProductID         string `json:"productId"`
	Type              string `json:"type"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	Currency          string `json:"price_currency_code"`
	Price             string `json:"price"`
	PriceAmountMicros int64  `json:"price_amount_micros"`
}

// ParseItem decodes a SKU details payload.
func ParseItem(raw string) (*Item, error) {
	var v itemJSON
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("billing: parse item: %w", err)
	}
	if v.ProductID == "" {
		return nil, fmt.Errorf("billing: parse item: productId is missing")
	}
	return &Item{
		OriginalJSON:      raw,
		SKU:               v.ProductID,
		Type:              Category(v.Type),
		Title:             v.Title,
		Description:       v.Description,
		Currency:          v.Currency,
		Price:             v.Price,
		PriceAmountMicros: v.PriceAmountMicros,
	}, nil
}

const (
	itemFieldJSON protowire.Number = iota + 1
	itemFieldSKU
	itemFieldType
	itemFieldTitle
	itemFieldDescription
	itemFieldCurrency
	itemFieldPrice
	itemFieldMicros
)

// MarshalBinary implements encoding.BinaryMarshaler.
func (i *Item) MarshalBinary() ([]byte, error) {
	var w wireWriter
	w.str(itemFieldJSON, i.OriginalJSON)
	w.str(itemFieldSKU, i.SKU)
	w.str(itemFieldType, string(i.Type))
	w.str(itemFieldTitle, i.Title)
	w.str(itemFieldDescription, i.Description)
	w.str(itemFieldCurrency, i.Currency)
	w.str(itemFieldPrice, i.Price)
	w.int(itemFieldMicros, i.PriceAmountMicros)
	return w.b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (i *Item) UnmarshalBinary(data []byte) error {
	var out Item
	err := readFields(data,
		func(num protowire.Number, s string) {
			switch num {
			case itemFieldJSON:
				out.OriginalJSON = s
			case itemFieldSKU:
				out.SKU = s
			case itemFieldType:
				out.Type = Category(s)
			case itemFieldTitle:
				out.Title = s
			case itemFieldDescription:
				out.Description = s
			case itemFieldCurrency:
				out.Currency = s
			case itemFieldPrice:
				out.Price = s
			}
		},
		func(num protowire.Number, v uint64) {
			if num == itemFieldMicros {
				out.PriceAmountMicros = protowire.DecodeZigZag(v)
			}
		},
	)
	if err != nil {
		return err
	}
	*i = out
	return nil
}
