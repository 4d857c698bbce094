package history

import "context"

// Future is the eventual result of an asynchronous operation. It settles exactly once.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future already settled with v.
func Resolved[T any](v T) *Future[T] {
	f := newFuture[T]()
	f.settle(v, nil)
	return f
}

// Failed returns a future already settled with err.
func Failed[T any](err error) *Future[T] {
	f := newFuture[T]()
	var zero T
	f.settle(zero, err)
	return f
}

func (f *Future[T]) settle(v T, err error) {
	f.val, f.err = v, err
	close(f.done)
}

// Done is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx ends. Abandoning the wait does not cancel the operation.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Settled reports whether the future has settled.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// then runs fn after prev settles, success or failure, and returns a future of fn's result.
func then[T, U any](prev *Future[T], fn func(T, error) (U, error)) *Future[U] {
	next := newFuture[U]()
	go func() {
		<-prev.done
		next.settle(fn(prev.val, prev.err))
	}()
	return next
}

// forward settles dst with src's outcome once src settles.
func forward[T any](src, dst *Future[T]) {
	<-src.done
	dst.settle(src.val, src.err)
}
