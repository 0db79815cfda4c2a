package billing

import (
	"errors"
	"fmt"
)

// Kind classifies billing failures. Callers match kinds with errors.Is against the Err* sentinels.
type Kind string

const (
	KindUnexpectedResponseType    Kind = "unexpected_response_type"
	KindBindServiceFailed         Kind = "bind_service_failed"
	KindPurchaseDataMissing       Kind = "purchase_data_missing"
	KindSizeMismatch              Kind = "size_mismatch"
	KindVerificationFailed        Kind = "verification_failed"
	KindBadResponse               Kind = "bad_response"
	KindPurchaseFlowAlreadyExists Kind = "purchase_flow_already_exists"
	KindPendingIntentMissing      Kind = "pending_intent_missing"
	KindSendIntentFailed          Kind = "send_intent_failed"
	KindNullPurchaseData          Kind = "null_purchase_data"
	KindResultOk                  Kind = "result_ok"
	KindResultCanceled            Kind = "result_canceled"
	KindResultUnknown             Kind = "result_unknown"
	KindAlreadyReleased           Kind = "already_released"
	KindWrongThread               Kind = "wrong_thread"
	KindInvalidArgument           Kind = "invalid_argument"
	KindUnsupportedOperation      Kind = "unsupported_operation"
	KindResponseCode              Kind = "response_code"
	KindRemote                    Kind = "remote"
)

// Error is the single error type produced by the billing packages.
// Code carries a response code, a raw outcome or a failure count depending on Kind.
type Error struct {
	Kind Kind
	Code int
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	switch e.Kind {
	case KindResultOk, KindResultUnknown, KindResponseCode, KindVerificationFailed:
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	if e.Err != nil {
		return "billing: " + msg + ": " + e.Err.Error()
	}
	return "billing: " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels compare by kind only.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrUnexpectedResponseType    = &Error{Kind: KindUnexpectedResponseType}
	ErrBindServiceFailed         = &Error{Kind: KindBindServiceFailed}
	ErrPurchaseDataMissing       = &Error{Kind: KindPurchaseDataMissing}
	ErrSizeMismatch              = &Error{Kind: KindSizeMismatch}
	ErrVerificationFailed        = &Error{Kind: KindVerificationFailed}
	ErrBadResponse               = &Error{Kind: KindBadResponse}
	ErrPurchaseFlowAlreadyExists = &Error{Kind: KindPurchaseFlowAlreadyExists}
	ErrPendingIntentMissing      = &Error{Kind: KindPendingIntentMissing}
	ErrSendIntentFailed          = &Error{Kind: KindSendIntentFailed}
	ErrNullPurchaseData          = &Error{Kind: KindNullPurchaseData}
	ErrResultOk                  = &Error{Kind: KindResultOk}
	ErrResultCanceled            = &Error{Kind: KindResultCanceled}
	ErrResultUnknown             = &Error{Kind: KindResultUnknown}
	ErrAlreadyReleased           = &Error{Kind: KindAlreadyReleased, Msg: "billing already released"}
	ErrWrongThread               = &Error{Kind: KindWrongThread, Msg: "result must be delivered on the event queue"}
	ErrInvalidArgument           = &Error{Kind: KindInvalidArgument}
	ErrUnsupportedOperation      = &Error{Kind: KindUnsupportedOperation}
	ErrResponseCode              = &Error{Kind: KindResponseCode}
	ErrRemote                    = &Error{Kind: KindRemote}
)

// NewError builds an *Error of the given kind.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// WrapError builds an *Error of the given kind around cause.
func WrapError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// ResponseError reports a non-OK status from the billing service.
func ResponseError(op string, code int) *Error {
	return &Error{Kind: KindResponseCode, Code: code, Msg: op + " failed"}
}

// KindOf returns the kind of err, or "" when err is not a billing error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the code carried by err, or 0 when err is not a billing error.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}
