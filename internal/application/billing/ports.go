package billing

import (
	"context"

	dombilling "github.com/Zhima-Mochi/minishop-billing/internal/domain/billing"
)

// Callback receives the single resolution of an asynchronous operation.
// It is always invoked on the event queue.
type Callback[T any] func(result T, err error)

// Platform is the host's primitive for reaching the billing service.
// BindService returns false for a synchronous refusal; a returned error or a
// panic is a platform fault. Connection events are reported to conn, possibly
// before BindService returns.
type Platform interface {
	BindService(ctx context.Context, conn ServiceConnection) (bool, error)
	UnbindService(conn ServiceConnection)
}

// ServiceConnection receives connection events from a Platform.
type ServiceConnection interface {
	OnServiceConnected(svc dombilling.Service)
	OnServiceDisconnected()
	OnBindingDied(err error)
}

// Host starts the externally rendered purchase UI. The outcome is later
// handed to Orchestrator.DeliverResult on the event queue with the same requestCode.
type Host interface {
	StartIntentSenderForResult(ctx context.Context, intent dombilling.PendingIntent, requestCode int) error
}

// Verifier checks a receipt signature; it never fails with an error.
type Verifier interface {
	Verify(productID, publicKeyBase64, signedData, signature string) bool
}

// Queue is a serial executor. Owns reports whether ctx belongs to the task
// the queue is running at the time of the call.
type Queue interface {
	Post(task func(ctx context.Context)) error
	Owns(ctx context.Context) bool
}
