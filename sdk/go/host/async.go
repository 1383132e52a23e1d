package host

import (
	"context"
	"sync"
	"time"
)

// Delay blocks for d or until ctx is done, whichever comes first.
// Returns ctx.Err() when cancelled.
func Delay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Future is a deferred value. The executor awaits any Future a snippet
// returns, including futures that resolve to further futures.
type Future interface {
	Await(ctx context.Context) (any, error)
}

type promise struct {
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

func (p *promise) resolve(v any, err error) {
	p.once.Do(func() {
		p.value, p.err = v, err
		close(p.done)
	})
}

func (p *promise) Await(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Go runs fn in a new goroutine and returns a Future for its result.
// A panic in fn resolves the future with an error.
func Go(ctx context.Context, fn func(ctx context.Context) (any, error)) Future {
	p := &promise{done: make(chan struct{})}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.resolve(nil, &PanicError{Value: r})
			}
		}()
		p.resolve(fn(ctx))
	}()
	return p
}

// Resolved returns a Future that is already complete.
func Resolved(v any) Future {
	p := &promise{done: make(chan struct{})}
	p.resolve(v, nil)
	return p
}

// Failed returns a Future that completes with err.
func Failed(err error) Future {
	p := &promise{done: make(chan struct{})}
	p.resolve(nil, err)
	return p
}

// PanicError wraps a value recovered from a panicking goroutine.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	if err, ok := e.Value.(error); ok {
		return "panic: " + err.Error()
	}
	return "panic: " + sprint(e.Value)
}
