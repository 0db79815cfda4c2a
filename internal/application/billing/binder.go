package billing

import (
	"context"
	"fmt"
	"sync"

	dombilling "github.com/Zhima-Mochi/minishop-billing/internal/domain/billing"
	"github.com/Zhima-Mochi/minishop-billing/internal/observability"
)

// BinderState is the lifecycle position of a Binder.
type BinderState string

const (
	BinderIdle       BinderState = "idle"
	BinderBinding    BinderState = "binding"
	BinderBound      BinderState = "bound"
	BinderBindFailed BinderState = "bind_failed"
	BinderUnbound    BinderState = "unbound"
)

// Binder owns one short-lived connection to the billing service.
// onBound and onError fire at most once per Binder, always on the event queue.
type Binder struct {
	platform Platform
	events   Queue
	log      observability.Logger

	mu          sync.Mutex
	state       BinderState
	resolved    bool
	needsUnbind bool
	onBound     func(dombilling.Service)
	onError     func(error)
}

func NewBinder(platform Platform, events Queue, logger observability.Logger) *Binder {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Binder{
		platform: platform,
		events:   events,
		log:      logger.With(observability.F("component", "binder")),
		state:    BinderIdle,
	}
}

// State returns the current state.
func (b *Binder) State() BinderState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Connect starts binding. Exactly one of onBound or onError is eventually
// invoked unless Disconnect is called first.
func (b *Binder) Connect(ctx context.Context, onBound func(dombilling.Service), onError func(error)) {
	b.mu.Lock()
	if b.state != BinderIdle {
		b.mu.Unlock()
		b.post(func() {
			onError(dombilling.NewError(dombilling.KindInvalidArgument, "binder already used"))
		})
		return
	}
	b.state = BinderBinding
	b.onBound = onBound
	b.onError = onError
	b.mu.Unlock()

	ok, err := b.bind(ctx)
	if err != nil {
		b.log.Warn("bind_service_failed", observability.F("error", err))
		b.fail(dombilling.WrapError(dombilling.KindBindServiceFailed, "bind service rejected", err))
		return
	}
	if !ok {
		b.log.Warn("bind_service_failed", observability.F("reason", "refused"))
		b.fail(dombilling.NewError(dombilling.KindBindServiceFailed, "bind service returned false"))
		return
	}

	b.mu.Lock()
	if b.state == BinderUnbound {
		// Disconnect raced with the bind call; release what was just bound.
		b.mu.Unlock()
		b.unbind()
		return
	}
	b.needsUnbind = true
	b.mu.Unlock()
}

// bind calls the platform, turning panics into errors.
func (b *Binder) bind(ctx context.Context) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("platform fault: %v", r)
		}
	}()
	if b.platform == nil {
		return false, fmt.Errorf("platform is nil")
	}
	return b.platform.BindService(ctx, b)
}

// OnServiceConnected implements ServiceConnection.
func (b *Binder) OnServiceConnected(svc dombilling.Service) {
	if svc == nil {
		b.log.Warn("bind_service_failed", observability.F("reason", "null binding"))
		b.fail(dombilling.NewError(dombilling.KindBindServiceFailed, "service connected but handle invalid"))
		return
	}
	b.mu.Lock()
	if b.resolved {
		b.mu.Unlock()
		return
	}
	b.resolved = true
	b.state = BinderBound
	onBound := b.onBound
	b.mu.Unlock()

	b.log.Debug("service_connected")
	b.post(func() {
		if b.State() != BinderUnbound {
			onBound(svc)
		}
	})
}

// OnServiceDisconnected implements ServiceConnection.
func (b *Binder) OnServiceDisconnected() {
	b.log.Debug("service_disconnected")
	b.fail(dombilling.NewError(dombilling.KindBindServiceFailed, "service disconnected before ready"))
}

// OnBindingDied implements ServiceConnection.
func (b *Binder) OnBindingDied(err error) {
	b.log.Warn("binding_died", observability.F("error", err))
	b.fail(dombilling.WrapError(dombilling.KindBindServiceFailed, "binding died", err))
}

func (b *Binder) fail(err error) {
	b.mu.Lock()
	if b.resolved {
		b.mu.Unlock()
		return
	}
	b.resolved = true
	b.state = BinderBindFailed
	onError := b.onError
	b.mu.Unlock()

	b.post(func() {
		if b.State() != BinderUnbound {
			onError(err)
		}
	})
}

// Disconnect releases the connection. It is idempotent and safe before the
// connection completed; callbacks not yet delivered are suppressed.
func (b *Binder) Disconnect() {
	b.mu.Lock()
	if b.state == BinderUnbound {
		b.mu.Unlock()
		return
	}
	b.state = BinderUnbound
	b.resolved = true
	needsUnbind := b.needsUnbind
	b.needsUnbind = false
	b.mu.Unlock()

	if needsUnbind {
		b.unbind()
	}
}

func (b *Binder) unbind() {
	defer func() {
		if r := recover(); r != nil {
			b.log.Warn("unbind_service_failed", observability.F("panic", r))
		}
	}()
	b.platform.UnbindService(b)
	b.log.Debug("service_unbound")
}

func (b *Binder) post(fn func()) {
	if err := b.events.Post(func(context.Context) { fn() }); err != nil {
		b.log.Error("binder_callback_dropped", observability.F("error", err))
	}
}
