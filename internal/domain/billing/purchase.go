package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// PurchaseState as reported in the receipt.
type PurchaseState int

const (
	PurchaseStatePurchased PurchaseState = 0
	PurchaseStateCanceled  PurchaseState = 1
	PurchaseStateRefunded  PurchaseState = 2
)

// Purchase is a decoded, signed receipt.
type Purchase struct {
	OriginalJSON     string
	OrderID          string
	PackageName      string
	SKU              string
	PurchaseTime     int64 // unix millis
	State            PurchaseState
	DeveloperPayload string
	Token            string
	AutoRenewing     bool
	Signature        string
}

type purchaseJSON struct {
	OrderID          string `json:"orderId"`
	PackageName      string `json:"packageName"`
	ProductID        string `json:"productId"`
	PurchaseTime     int64  `json:"purchaseTime"`
	PurchaseState    int    `json:"purchaseState"`
	DeveloperPayload string `json:"developerPayload"`
	PurchaseToken    string `json:"purchaseToken"`
	Token            string `json:"token"`
	AutoRenewing     bool   `json:"autoRenewing"`
}

// ParsePurchase decodes a receipt payload and attaches its detached signature.
func ParsePurchase(raw, signature string) (*Purchase, error) {
	var v purchaseJSON
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("billing: parse purchase: %w", err)
	}
	token := v.PurchaseToken
	if token == "" {
		token = v.Token
	}
	return &Purchase{
		OriginalJSON:     raw,
		OrderID:          v.OrderID,
		PackageName:      v.PackageName,
		SKU:              v.ProductID,
		PurchaseTime:     v.PurchaseTime,
		State:            PurchaseState(v.PurchaseState),
		DeveloperPayload: v.DeveloperPayload,
		Token:            token,
		AutoRenewing:     v.AutoRenewing,
		Signature:        signature,
	}, nil
}

// PeekProductID returns the productId of a receipt payload without fully
// decoding it, or "" when the payload is not a JSON object.
func PeekProductID(raw string) string {
	var v struct {
		ProductID string `json:"productId"`
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return ""
	}
	return v.ProductID
}

// PurchasedAt converts PurchaseTime to a UTC time.
func (p *Purchase) PurchasedAt() time.Time {
	return time.UnixMilli(p.PurchaseTime).UTC()
}

const (
	purchaseFieldJSON protowire.Number = iota + 1
	purchaseFieldOrderID
	purchaseFieldPackage
	purchaseFieldSKU
	purchaseFieldTime
	purchaseFieldState
	purchaseFieldPayload
	purchaseFieldToken
	purchaseFieldAutoRenewing
	purchaseFieldSignature
)

// MarshalBinary implements encoding.BinaryMarshaler.
func (p *Purchase) MarshalBinary() ([]byte, error) {
	var w wireWriter
	w.str(purchaseFieldJSON, p.OriginalJSON)
	w.str(purchaseFieldOrderID, p.OrderID)
	w.str(purchaseFieldPackage, p.PackageName)
	w.str(purchaseFieldSKU, p.SKU)
	w.int(purchaseFieldTime, p.PurchaseTime)
	w.int(purchaseFieldState, int64(p.State))
	w.str(purchaseFieldPayload, p.DeveloperPayload)
	w.str(purchaseFieldToken, p.Token)
	w.bool(purchaseFieldAutoRenewing, p.AutoRenewing)
	w.str(purchaseFieldSignature, p.Signature)
	return w.b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (p *Purchase) UnmarshalBinary(data []byte) error {
	var out Purchase
	err := readFields(data,
		func(num protowire.Number, s string) {
			switch num {
			case purchaseFieldJSON:
				out.OriginalJSON = s
			case purchaseFieldOrderID:
				out.OrderID = s
			case purchaseFieldPackage:
				out.PackageName = s
			case purchaseFieldSKU:
				out.SKU = s
			case purchaseFieldPayload:
				out.DeveloperPayload = s
			case purchaseFieldToken:
				out.Token = s
			case purchaseFieldSignature:
				out.Signature = s
			}
		},
		func(num protowire.Number, v uint64) {
			switch num {
			case purchaseFieldTime:
				out.PurchaseTime = protowire.DecodeZigZag(v)
			case purchaseFieldState:
				out.State = PurchaseState(protowire.DecodeZigZag(v))
			case purchaseFieldAutoRenewing:
				out.AutoRenewing = protowire.DecodeBool(v)
			}
		},
	)
	if err != nil {
		return err
	}
	*p = out
	return nil
}
