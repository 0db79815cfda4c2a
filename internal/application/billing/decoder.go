package billing

import (
	"fmt"

	dombilling "github.com/Zhima-Mochi/minishop-billing/internal/domain/billing"
	"github.com/Zhima-Mochi/minishop-billing/internal/observability"
)

// ResponseDecoder extracts response codes from service envelopes.
type ResponseDecoder struct {
	log observability.Logger
}

func NewResponseDecoder(logger observability.Logger) ResponseDecoder {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return ResponseDecoder{log: logger}
}

// Decode returns the RESPONSE_CODE of env.
//
// The service omits the field on success, so an absent field decodes as
// ResultOK. The service also picks the integer width inconsistently; both
// 32 and 64 bit values are accepted.
func (d ResponseDecoder) Decode(env dombilling.Envelope) (int, error) {
	if env == nil {
		return 0, dombilling.NewError(dombilling.KindUnexpectedResponseType, "response envelope is missing")
	}
	v, ok := env[dombilling.KeyResponseCode]
	if !ok || v == nil {
		if d.log != nil {
			d.log.Debug("response_code_missing", observability.F("assumed", dombilling.ResultOK))
		}
		return dombilling.ResultOK, nil
	}
	switch code := v.(type) {
	case int32:
		return int(code), nil
	case int64:
		return d.narrow(code), nil
	case int:
		return d.narrow(int64(code)), nil
	default:
		return 0, dombilling.NewError(dombilling.KindUnexpectedResponseType,
			fmt.Sprintf("unexpected type for response code: %T", v))
	}
}

// narrow keeps the low 32 bits of a wide code, as the service defines codes as int32.
func (d ResponseDecoder) narrow(raw int64) int {
	code := int(int32(raw))
	if int64(code) != raw && d.log != nil {
		d.log.Debug("response_code_truncated",
			observability.F("raw", raw),
			observability.F("code", code),
		)
	}
	return code
}
