package statemachine

import (
	"context"
	"sync"
)

// Loop is a single-consumer FIFO of closures. Every closure runs on the
// goroutine executing Run, one at a time, in posting order. Posting never
// blocks.
type Loop struct {
	mu       sync.Mutex
	queue    []func(context.Context)
	notifyCh chan struct{}
}

// NewLoop returns an empty Loop.
func NewLoop() *Loop {
	return &Loop{notifyCh: make(chan struct{}, 1)}
}

// Post enqueues fn. It is safe to call from any goroutine, including the loop
// itself.
func (l *Loop) Post(fn func(context.Context)) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.notifyCh <- struct{}{}:
	default:
	}
}

// Do enqueues fn and waits until the loop has run it or ctx is done. It must
// not be called from the loop goroutine.
func (l *Loop) Do(ctx context.Context, fn func(context.Context)) error {
	done := make(chan struct{})
	l.Post(func(ctx context.Context) {
		defer close(done)
		fn(ctx)
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync waits until every closure posted before the call has run.
func (l *Loop) Sync(ctx context.Context) error {
	return l.Do(ctx, func(context.Context) {})
}

// Len returns the number of closures waiting to run.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Run drains the queue until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			fn(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.notifyCh:
		}
	}
}

func (l *Loop) next() (func(context.Context), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}
