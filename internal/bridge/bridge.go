// Package bridge runs one long-lived unit of work on its own goroutine so
// the controller never blocks on it.
package bridge

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"sync"
)

var ErrAlreadyStarted = errors.New("bridge already started")

// Work is a cancellable unit of work. It should return promptly once ctx is
// done and must wait for any goroutines it spawned before returning.
type Work func(ctx context.Context) error

// Events are delivered from the bridge goroutine. Neither is called after
// Stop returns.
type Events struct {
	OnError    func(err error)
	OnFinished func()
}

// Bridge owns the goroutine that runs Work. The factory is invoked on that
// goroutine, so no work is ever created without being scheduled.
type Bridge struct {
	factory func() Work
	events  Events

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(factory func() Work, events Events) *Bridge {
	return &Bridge{factory: factory, events: events}
}

// Start launches the unit of work. A bridge whose previous run has finished
// may be started again.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done != nil {
		select {
		case <-b.done:
			b.cancel()
		default:
			return ErrAlreadyStarted
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	b.cancel, b.done = cancel, done

	go b.run(ctx, done)
	return nil
}

func (b *Bridge) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	err := b.exec(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled) && ctx.Err() != nil:
		log.Debug("Bridge work finished")
	default:
		log.Error("Bridge work failed", "err", err)
		if b.events.OnError != nil {
			b.events.OnError(err)
		}
	}

	if b.events.OnFinished != nil {
		b.events.OnFinished()
	}
}

// exec builds and runs the work, turning panics into errors.
func (b *Bridge) exec(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	w := b.factory()
	if w == nil {
		return errors.New("factory returned no work")
	}
	return w(ctx)
}

// Stop cancels the work and blocks until the bridge goroutine has exited.
// It is idempotent and safe to call before Start.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether work is in flight.
func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done == nil {
		return false
	}
	select {
	case <-b.done:
		return false
	default:
		return true
	}
}
