// Package pool runs tasks on a fixed number of workers and hands back
// futures that can be waited on or cancelled before they start.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("pool is closed")

// reservedCPUs is the number of CPUs left free for the rest of the host.
const reservedCPUs = 2

// DefaultSize returns max(1, NumCPU-2).
func DefaultSize() int {
	return max(1, runtime.NumCPU()-reservedCPUs)
}

// Task is a unit of work. The context is cancelled when the pool is closed.
type Task[T any] func(ctx context.Context) T

type futureState int32

const (
	statePending futureState = iota
	stateRunning
	stateDone
	stateCancelled
)

// Future is the handle for a submitted task.
type Future[T any] struct {
	task     Task[T]
	fallback func(recovered any) T
	state    atomic.Int32
	done     chan struct{}
	result   T
}

// Done is closed once the task has finished. It is never closed for a
// future that was cancelled before it started.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Result returns the task's value. It must only be called after Done is closed.
func (f *Future[T]) Result() T { return f.result }

// Cancel prevents a pending task from ever running. It returns false when
// the task has already started or finished, in which case it has no effect.
func (f *Future[T]) Cancel() bool {
	return f.state.CompareAndSwap(int32(statePending), int32(stateCancelled))
}

// Running reports whether the task is executing right now.
func (f *Future[T]) Running() bool { return futureState(f.state.Load()) == stateRunning }

// Cancelled reports whether Cancel succeeded.
func (f *Future[T]) Cancelled() bool { return futureState(f.state.Load()) == stateCancelled }

// Pool executes tasks on a fixed set of workers, in submission order.
type Pool[T any] struct {
	size int

	mu      sync.Mutex
	queue   []*Future[T]
	wake    chan struct{}
	closed  bool
	closing chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
}

// New starts a pool with size workers. size < 1 is treated as 1.
func New[T any](size int) *Pool[T] {
	size = max(1, size)
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool[T]{
		size:    size,
		wake:    make(chan struct{}, 1),
		closing: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < size; i++ {
		p.group.Go(p.work)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool[T]) Size() int { return p.size }

// Submit queues task. If the task panics, the future completes with
// fallback(recovered) instead.
func (p *Pool[T]) Submit(task Task[T], fallback func(recovered any) T) (*Future[T], error) {
	f := &Future[T]{task: task, fallback: fallback, done: make(chan struct{})}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.queue = append(p.queue, f)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return f, nil
}

// Close cancels every task that has not started and stops the workers once
// they are idle. Tasks already running are not waited for; their context
// is cancelled and their results are still delivered through Done.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	pending := p.queue
	p.queue = nil
	p.mu.Unlock()

	for _, f := range pending {
		f.Cancel()
	}
	close(p.closing)
	p.cancel()
}

// Wait blocks until every worker has exited. Call Close first.
func (p *Pool[T]) Wait() error {
	return p.group.Wait()
}

func (p *Pool[T]) next() (*Future[T], bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil, false
	}
	f := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	if len(p.queue) > 0 {
		// let another idle worker pick up the rest
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
	return f, true
}

func (p *Pool[T]) work() error {
	for {
		f, ok := p.next()
		if !ok {
			select {
			case <-p.wake:
				continue
			case <-p.closing:
				return nil
			}
		}

		if !f.state.CompareAndSwap(int32(statePending), int32(stateRunning)) {
			continue
		}
		f.result = p.run(f)
		f.state.Store(int32(stateDone))
		close(f.done)
	}
}

func (p *Pool[T]) run(f *Future[T]) (result T) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pool task panicked", "panic", fmt.Sprint(r))
			if f.fallback != nil {
				result = f.fallback(r)
			}
		}
	}()
	return f.task(p.ctx)
}

// AsCompleted yields each future once it finishes, in completion order.
// The returned channel is closed when every future has been delivered or
// ctx is done, whichever comes first. Cancelled futures are never delivered.
func AsCompleted[T any](ctx context.Context, futures []*Future[T]) <-chan *Future[T] {
	out := make(chan *Future[T], len(futures))

	var wg sync.WaitGroup
	for _, f := range futures {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-f.Done():
				select {
				case <-ctx.Done():
				default:
					out <- f
				}
			case <-ctx.Done():
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
