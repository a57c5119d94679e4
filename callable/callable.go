// Package callable defines the interfaces satisfied by generated deferred
// calls, along with helpers to run them.
//
// A deferred call captures a receiver and the arguments of one method call.
// Nothing happens until Call is invoked, which performs the original call
// and returns its results unchanged:
//
//	task := hogeDefer.Foo(42) // nothing runs yet
//	s, err := task.Call()     // same as hoge.Foo(42)
package callable

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Callable is a deferred computation returning a value or an error.
// Generated types whose method has the results (T, error) implement it.
type Callable[T any] interface {
	Call() (T, error)
}

// Func adapts an ordinary function to Callable.
type Func[T any] func() (T, error)

// Call calls f.
func (f Func[T]) Call() (T, error) { return f() }

// Serializable is implemented by deferred calls whose receiver and arguments
// can be encoded. Whether encoding succeeds depends on the dynamic values.
type Serializable interface {
	json.Marshaler
	json.Unmarshaler
}

// Future is the pending result of a submitted Callable.
type Future[T any] struct {
	done  chan struct{}
	val   T
	err   error
	panic any
}

// Submit runs c in a new goroutine. If ctx is already done, c is not run and
// the future fails with the context error.
func Submit[T any](ctx context.Context, c Callable[T]) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	if err := ctx.Err(); err != nil {
		f.err = err
		close(f.done)
		return f
	}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.panic = r
			}
		}()
		f.val, f.err = c.Call()
	}()
	return f
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Get waits for the result. A panic raised by Call is raised again here.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
	if f.panic != nil {
		panic(f.panic)
	}
	return f.val, f.err
}

// All calls every callable, at most limit at a time (no limit if limit <= 0),
// and returns the results in order. The first error cancels the callables
// not yet started.
func All[T any](ctx context.Context, limit int, cs ...Callable[T]) ([]T, error) {
	out := make([]T, len(cs))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, c := range cs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := c.Call()
			if err != nil {
				return fmt.Errorf("callable %d: %w", i, err)
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
