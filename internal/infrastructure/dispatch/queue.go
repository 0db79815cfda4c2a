package dispatch

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/Zhima-Mochi/minishop-billing/internal/observability"
	"github.com/Zhima-Mochi/minishop-billing/internal/observability/logctx"
)

var ErrStopped = errors.New("dispatch: queue stopped")

// Task is a unit of work run on a queue's goroutine. The context it receives
// identifies the running task, see Owns.
type Task = func(ctx context.Context)

type taskKey struct{}

// taskToken marks the context of one task run.
type taskToken struct{ q *Queue }

// Queue runs tasks one at a time, in submission order, on a single goroutine.
// Post never blocks: pending tasks are held in an unbounded list.
type Queue struct {
	name string
	log  observability.Logger

	mu      sync.Mutex
	pending []Task
	stopped bool

	running atomic.Pointer[taskToken]

	wake      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

const componentDispatch = "dispatch"

// NewQueue creates a stopped queue; call Start before posting.
func NewQueue(name string, logger observability.Logger) *Queue {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Queue{
		name: name,
		log: logger.With(
			observability.F("component", componentDispatch),
			observability.F("queue", name),
		),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Start launches the dispatch goroutine. Values carried by ctx (loggers,
// spans) are visible to every task; its cancellation is not.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		go q.dispatchLoop(context.WithoutCancel(ctx))
		logctx.FromOr(ctx, q.log).Debug("queue_started")
	})
}

// Stop refuses new tasks, lets the already pending ones run and waits for
// the dispatch goroutine to exit or ctx to end.
func (q *Queue) Stop(ctx context.Context) error {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		q.mu.Unlock()
		q.signal()
	})
	select {
	case <-q.done:
		q.log.Debug("queue_stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post appends task to the queue.
func (q *Queue) Post(task Task) error {
	if task == nil {
		return nil
	}
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrStopped
	}
	q.pending = append(q.pending, task)
	q.mu.Unlock()
	q.signal()
	return nil
}

// Owns reports whether ctx belongs to the task the queue is running right
// now. A context kept past the end of its task no longer qualifies.
func (q *Queue) Owns(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	tok, _ := ctx.Value(taskKey{}).(*taskToken)
	return tok != nil && tok.q == q && q.running.Load() == tok
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) dispatchLoop(ctx context.Context) {
	defer close(q.done)
	for range q.wake {
		for {
			q.mu.Lock()
			if len(q.pending) == 0 {
				stopped := q.stopped
				q.mu.Unlock()
				if stopped {
					return
				}
				break
			}
			task := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			q.mu.Unlock()

			q.run(ctx, task)
		}
	}
}

func (q *Queue) run(ctx context.Context, task Task) {
	tok := &taskToken{q: q}
	q.running.Store(tok)
	defer func() {
		q.running.Store(nil)
		if r := recover(); r != nil {
			q.log.Error("queue_task_panic",
				observability.F("panic", r),
				observability.F("stack", string(debug.Stack())),
			)
		}
	}()
	task(context.WithValue(ctx, taskKey{}, tok))
}
