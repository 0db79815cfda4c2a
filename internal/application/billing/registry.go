package billing

import (
	"fmt"
	"sync"
	"time"

	dombilling "github.com/Zhima-Mochi/minishop-billing/internal/domain/billing"
)

// Flow is one purchase attempt, keyed by its request code.
type Flow struct {
	Code         int
	RegisteredAt time.Time

	state    dombilling.FlowState
	callback Callback[*dombilling.Purchase]
}

// Status returns the flow's position in the purchase state machine.
func (f *Flow) Status() dombilling.FlowStatus { return f.state.Status() }

func (f *Flow) transition(next func(dombilling.FlowState) (dombilling.FlowState, error)) {
	if s, err := next(f.state); err == nil {
		f.state = s
	}
}

// FlowRegistry holds the flows of one orchestrator and its released flag.
// Every mutation happens under a single mutex, so at most one flow exists per code.
type FlowRegistry struct {
	mu       sync.Mutex
	flows    map[int]*Flow
	released bool
	fallback Callback[*dombilling.Purchase]
	now      func() time.Time
}

func NewFlowRegistry() *FlowRegistry {
	return &FlowRegistry{
		flows: make(map[int]*Flow),
		now:   time.Now,
	}
}

// Register claims code for a new flow. cb may be nil, in which case the
// default callback at resolution time receives the result.
func (r *FlowRegistry) Register(code int, cb Callback[*dombilling.Purchase]) (*Flow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil, dombilling.ErrAlreadyReleased
	}
	if _, exists := r.flows[code]; exists {
		return nil, dombilling.NewError(dombilling.KindPurchaseFlowAlreadyExists,
			fmt.Sprintf("purchase flow already exists for request code %d", code))
	}
	f := &Flow{
		Code:         code,
		RegisteredAt: r.now(),
		state:        dombilling.NewFlowState(),
		callback:     cb,
	}
	r.flows[code] = f
	return f, nil
}

// MarkSent records that the external UI was started for f. It reports false
// when f is no longer registered.
func (r *FlowRegistry) MarkSent(f *Flow) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.flows[f.Code] != f {
		return false
	}
	f.transition(dombilling.FlowState.OnIntentSent)
	return true
}

// Fail removes f after a launch failure and returns the callback that must
// receive the error. ok is false when f was already taken, canceled or released.
func (r *FlowRegistry) Fail(f *Flow) (cb Callback[*dombilling.Purchase], ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.flows[f.Code] != f {
		return nil, false
	}
	delete(r.flows, f.Code)
	f.transition(dombilling.FlowState.OnLaunchFailed)
	return r.callbackFor(f), true
}

// Take removes and returns the flow for code. A nil flow means the code is not ours.
func (r *FlowRegistry) Take(code int) (*Flow, Callback[*dombilling.Purchase], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil, nil, dombilling.ErrAlreadyReleased
	}
	f, ok := r.flows[code]
	if !ok {
		return nil, nil, nil
	}
	delete(r.flows, code)
	f.transition(dombilling.FlowState.OnResult)
	return f, r.callbackFor(f), nil
}

// CancelAll forgets every flow without invoking callbacks and returns how many were dropped.
func (r *FlowRegistry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clear()
}

// Release clears all flows, detaches the default callback and marks the
// registry unusable. It reports false if it was already released.
func (r *FlowRegistry) Release() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return false
	}
	r.clear()
	r.fallback = nil
	r.released = true
	return true
}

func (r *FlowRegistry) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

// SetFallback sets the callback used by flows registered without one.
func (r *FlowRegistry) SetFallback(cb Callback[*dombilling.Purchase]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return dombilling.ErrAlreadyReleased
	}
	r.fallback = cb
	return nil
}

// Len returns the number of registered flows.
func (r *FlowRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// Lookup returns the status of the flow registered for code.
func (r *FlowRegistry) Lookup(code int) (dombilling.FlowStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[code]
	if !ok {
		return "", false
	}
	return f.Status(), true
}

// caller holds r.mu
func (r *FlowRegistry) clear() int {
	n := len(r.flows)
	for code, f := range r.flows {
		f.transition(dombilling.FlowState.OnCancel)
		delete(r.flows, code)
	}
	return n
}

// caller holds r.mu
func (r *FlowRegistry) callbackFor(f *Flow) Callback[*dombilling.Purchase] {
	if f.callback != nil {
		return f.callback
	}
	return r.fallback
}
