package actor

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// channelPromise is the default Promise/Future implementation, backed by a
// channel that is closed on completion as a single-fire signal. Only one of
// Complete's callers wins; later calls are no-ops.
type channelPromise[T any] struct {
	done     chan struct{}
	once     sync.Once
	resultMu sync.RWMutex
	result   fn.Result[T]
}

// NewPromise creates a new, uncompleted Promise.
func NewPromise[T any]() Promise[T] {
	return &channelPromise[T]{
		done: make(chan struct{}),
	}
}

// Complete attempts to set the result of the future. Returns true if this
// call won the race to complete it.
func (p *channelPromise[T]) Complete(result fn.Result[T]) bool {
	won := false
	p.once.Do(func() {
		p.resultMu.Lock()
		p.result = result
		p.resultMu.Unlock()

		close(p.done)
		won = true
	})
	return won
}

// Future returns the Future view of this promise.
func (p *channelPromise[T]) Future() Future[T] {
	return (*channelFuture[T])(p)
}

// channelFuture is the Future half of channelPromise; it shares the same
// underlying struct so OnComplete/Await see Complete's effects immediately.
type channelFuture[T any] channelPromise[T]

// Await blocks until the result is available or ctx is cancelled.
func (f *channelFuture[T]) Await(ctx context.Context) fn.Result[T] {
	select {
	case <-f.done:
		f.resultMu.RLock()
		defer f.resultMu.RUnlock()
		return f.result

	case <-ctx.Done():
		return fn.Err[T](ctx.Err())
	}
}

// ThenApply registers a transformation of the eventual result, returning a
// new Future that completes once the original does (or ctx expires).
func (f *channelFuture[T]) ThenApply(ctx context.Context, transform func(T) T) Future[T] {
	next := NewPromise[T]()

	go func() {
		result := f.Await(ctx)

		val, err := result.Unpack()
		if err != nil {
			next.Complete(fn.Err[T](err))
			return
		}

		next.Complete(fn.Ok(transform(val)))
	}()

	return next.Future()
}

// OnComplete registers a callback invoked once the result is ready, or once
// ctx is cancelled (with the context's error).
func (f *channelFuture[T]) OnComplete(ctx context.Context, callback func(fn.Result[T])) {
	go func() {
		callback(f.Await(ctx))
	}()
}

// Compile-time interface checks.
var (
	_ Promise[any] = (*channelPromise[any])(nil)
	_ Future[any]  = (*channelFuture[any])(nil)
)
