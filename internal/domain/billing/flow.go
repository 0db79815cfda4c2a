package billing

import "errors"

var ErrInvalidFlowTransition = errors.New("billing: invalid purchase flow transition")

// FlowStatus is the lifecycle position of one purchase flow.
type FlowStatus string

const (
	FlowLaunching              FlowStatus = "launching"
	FlowAwaitingExternalResult FlowStatus = "awaiting_external_result"
	FlowDelivered              FlowStatus = "delivered"
	FlowCanceled               FlowStatus = "canceled"
	FlowFailed                 FlowStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s FlowStatus) Terminal() bool {
	return s == FlowDelivered || s == FlowCanceled || s == FlowFailed
}

// FlowState implements the state pattern for purchase flow transitions.
type FlowState interface {
	Status() FlowStatus
	OnIntentSent() (FlowState, error)
	OnLaunchFailed() (FlowState, error)
	OnResult() (FlowState, error)
	OnCancel() (FlowState, error)
}

// NewFlowState returns the state of a freshly registered flow.
func NewFlowState() FlowState { return launchingState{} }

type launchingState struct{}

func (launchingState) Status() FlowStatus { return FlowLaunching }

func (launchingState) OnIntentSent() (FlowState, error) { return awaitingState{}, nil }

func (launchingState) OnLaunchFailed() (FlowState, error) { return terminalState{FlowFailed}, nil }

// A result may overtake the worker that is still marking the intent as sent.
func (launchingState) OnResult() (FlowState, error) { return terminalState{FlowDelivered}, nil }

func (launchingState) OnCancel() (FlowState, error) { return terminalState{FlowCanceled}, nil }

type awaitingState struct{}

func (awaitingState) Status() FlowStatus { return FlowAwaitingExternalResult }

func (awaitingState) OnIntentSent() (FlowState, error) { return nil, ErrInvalidFlowTransition }

func (awaitingState) OnLaunchFailed() (FlowState, error) { return nil, ErrInvalidFlowTransition }

func (awaitingState) OnResult() (FlowState, error) { return terminalState{FlowDelivered}, nil }

func (awaitingState) OnCancel() (FlowState, error) { return terminalState{FlowCanceled}, nil }

type terminalState struct{ status FlowStatus }

func (t terminalState) Status() FlowStatus { return t.status }

func (terminalState) OnIntentSent() (FlowState, error) { return nil, ErrInvalidFlowTransition }

func (terminalState) OnLaunchFailed() (FlowState, error) { return nil, ErrInvalidFlowTransition }

func (terminalState) OnResult() (FlowState, error) { return nil, ErrInvalidFlowTransition }

func (terminalState) OnCancel() (FlowState, error) { return nil, ErrInvalidFlowTransition }
