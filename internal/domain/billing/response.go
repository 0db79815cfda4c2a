package billing

// Response codes returned by the billing service.
const (
	ResultOK                 = 0
	ResultUserCanceled       = 1
	ResultServiceUnavailable = 2
	ResultBillingUnavailable = 3
	ResultItemUnavailable    = 4
	ResultDeveloperError     = 5
	ResultError              = 6
	ResultItemAlreadyOwned   = 7
	ResultItemNotOwned       = 8
)

// Outcomes delivered by the host's foreground-result primitive.
const (
	OutcomeOK       = -1
	OutcomeCanceled = 0
)

// Envelope keys.
const (
	KeyResponseCode      = "RESPONSE_CODE"
	KeyDetailsList       = "DETAILS_LIST"
	KeyBuyIntent         = "BUY_INTENT"
	KeyItemIDList        = "ITEM_ID_LIST"
	KeyPurchaseItemList  = "INAPP_PURCHASE_ITEM_LIST"
	KeyPurchaseDataList  = "INAPP_PURCHASE_DATA_LIST"
	KeySignatureList     = "INAPP_DATA_SIGNATURE_LIST"
	KeyContinuationToken = "INAPP_CONTINUATION_TOKEN"
	KeyPurchaseData      = "INAPP_PURCHASE_DATA"
	KeySignature         = "INAPP_DATA_SIGNATURE"
)

// ReplaceSkusAPIVersion is the protocol version the replace-SKUs call is always made with.
const ReplaceSkusAPIVersion = 5

// SkuBatchSize is the maximum number of SKU ids accepted per details query.
const SkuBatchSize = 20

// Envelope is the loosely typed response bundle produced by the billing service.
type Envelope map[string]any

// Strings returns the string list stored under key. ok is false when the key
// is absent or holds something other than a list of strings.
func (e Envelope) Strings(key string) (values []string, ok bool) {
	if e == nil {
		return nil, false
	}
	switch v := e[key].(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, isString := item.(string)
			if !isString {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// String returns the string stored under key, or "" when absent or not a string.
func (e Envelope) String(key string) string {
	if e == nil {
		return ""
	}
	s, _ := e[key].(string)
	return s
}

// PendingIntent is the opaque handle the service returns for starting the external purchase UI.
type PendingIntent string

// Intent extracts the buy intent handle. ok is false when it is absent or empty.
func (e Envelope) Intent() (PendingIntent, bool) {
	if e == nil {
		return "", false
	}
	switch v := e[KeyBuyIntent].(type) {
	case PendingIntent:
		return v, v != ""
	case string:
		return PendingIntent(v), v != ""
	default:
		return "", false
	}
}
