package queue

import (
	"context"
	"sync"
)

// Future holds a value that becomes available once.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// resolvedFuture returns a future that already holds v.
func resolvedFuture[T any](v T) *Future[T] {
	f := newFuture[T]()
	f.resolve(v)
	return f
}

// resolve sets the value. Only the first call has an effect.
func (f *Future[T]) resolve(v T) bool {
	resolved := false
	f.once.Do(func() {
		f.value = v
		close(f.done)
		resolved = true
	})
	return resolved
}

// Done is closed when the value is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the value is available or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Value returns the value without blocking. ok is false until it is resolved.
func (f *Future[T]) Value() (v T, ok bool) {
	select {
	case <-f.done:
		return f.value, true
	default:
		return v, false
	}
}

// all resolves with every value of futures, in order, once all are resolved.
func all[T any](futures []*Future[T]) *Future[[]T] {
	out := newFuture[[]T]()
	go func() {
		values := make([]T, len(futures))
		for i, f := range futures {
			<-f.done
			values[i] = f.value
		}
		out.resolve(values)
	}()
	return out
}
