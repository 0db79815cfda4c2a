package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	appbilling "github.com/Zhima-Mochi/minishop-billing/internal/application/billing"
	dombilling "github.com/Zhima-Mochi/minishop-billing/internal/domain/billing"
	"github.com/Zhima-Mochi/minishop-billing/internal/observability"
)

// Platform binds straight to an in-process service.
type Platform struct {
	svc         dombilling.Service
	unavailable atomic.Bool

	mu    sync.Mutex
	bound map[appbilling.ServiceConnection]struct{}
}

var _ appbilling.Platform = (*Platform)(nil)

func NewPlatform(svc dombilling.Service) *Platform {
	return &Platform{svc: svc, bound: make(map[appbilling.ServiceConnection]struct{})}
}

// SetAvailable makes later binds succeed or be refused.
func (p *Platform) SetAvailable(ok bool) { p.unavailable.Store(!ok) }

func (p *Platform) BindService(_ context.Context, conn appbilling.ServiceConnection) (bool, error) {
	if p.unavailable.Load() {
		return false, nil
	}
	p.mu.Lock()
	p.bound[conn] = struct{}{}
	p.mu.Unlock()
	conn.OnServiceConnected(p.svc)
	return true, nil
}

func (p *Platform) UnbindService(conn appbilling.ServiceConnection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.bound, conn)
}

// Bound returns the number of connections not yet unbound.
func (p *Platform) Bound() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bound)
}

// Poster is the event queue results are delivered on.
type Poster interface {
	Post(task func(ctx context.Context)) error
}

// ResultHandler receives purchase UI outcomes, e.g. Billing.DeliverResult.
type ResultHandler func(ctx context.Context, code, outcome int, data dombilling.Envelope) (bool, error)

// Host plays the purchase UI against a Sandbox. Every started intent is
// answered on the event queue with the configured user choice.
type Host struct {
	sandbox *Sandbox
	events  Poster
	log     observability.Logger

	mu      sync.Mutex
	handler ResultHandler
	outcome int
}

var _ appbilling.Host = (*Host)(nil)

func NewHost(sandbox *Sandbox, events Poster, logger observability.Logger) *Host {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Host{
		sandbox: sandbox,
		events:  events,
		log:     logger.With(observability.F("component", "sandbox_host")),
		outcome: dombilling.OutcomeOK,
	}
}

// OnResult sets where outcomes are delivered.
func (h *Host) OnResult(fn ResultHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = fn
}

// SetUserChoice sets the outcome of later purchase UIs, OutcomeOK or OutcomeCanceled.
func (h *Host) SetUserChoice(outcome int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outcome = outcome
}

func (h *Host) StartIntentSenderForResult(_ context.Context, intent dombilling.PendingIntent, requestCode int) error {
	if !h.sandbox.Pending(intent) {
		return ErrUnknownIntent
	}
	h.mu.Lock()
	handler, outcome := h.handler, h.outcome
	h.mu.Unlock()
	if handler == nil {
		return errors.New("sandbox: no result handler")
	}

	return h.events.Post(func(ctx context.Context) {
		var data dombilling.Envelope
		if outcome == dombilling.OutcomeOK {
			env, err := h.sandbox.Complete(intent)
			if err != nil {
				h.log.Error("sandbox_complete_failed", observability.F("error", err))
				return
			}
			data = env
		} else {
			h.sandbox.Cancel(intent)
		}
		handled, err := handler(ctx, requestCode, outcome, data)
		if err != nil || !handled {
			h.log.Warn("sandbox_result_unhandled",
				observability.F("request_code", requestCode),
				observability.F("handled", handled),
				observability.F("error", err),
			)
		}
	})
}
