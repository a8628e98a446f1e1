// Package tts queues text for speech so callers never wait on playback.
package tts

import (
	"context"
	log "log/slog"
	"strings"
	"sync"
)

// Synthesizer turns text into sound and plays it, blocking until done.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// Ducker lowers other audio while the assistant talks.
type Ducker interface {
	Duck(ctx context.Context) error
	Restore(ctx context.Context) error
}

type Option func(*Queue)

func WithDucker(d Ducker) Option {
	return func(q *Queue) { q.duck = d }
}

// Queue speaks texts one after another on its own goroutine.
type Queue struct {
	synth Synthesizer
	duck  Ducker

	mu         sync.Mutex
	items      []string
	closed     bool
	idle       chan struct{} // closed while nothing is queued or playing
	idleClosed bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewQueue(s Synthesizer, opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		synth:      s,
		idle:       make(chan struct{}),
		idleClosed: true,
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	close(q.idle)
	for _, opt := range opts {
		opt(q)
	}

	go q.loop()
	return q
}

// Say enqueues text and returns immediately. Blank text is ignored.
func (q *Queue) Say(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, text)
	if q.idleClosed {
		q.idle = make(chan struct{})
		q.idleClosed = false
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Wait blocks until everything queued so far has been spoken.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close speaks what is still queued, then stops the queue.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
	q.cancel()
}

func (q *Queue) loop() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.items) == 0 {
			if !q.idleClosed {
				close(q.idle)
				q.idleClosed = true
			}
			if q.closed {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			<-q.wake
			q.mu.Lock()
		}
		text := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		q.speak(text)
	}
}

func (q *Queue) speak(text string) {
	if q.duck != nil {
		if err := q.duck.Duck(q.ctx); err != nil {
			log.Warn("Duck failed", "err", err)
		}
		defer func() {
			if err := q.duck.Restore(q.ctx); err != nil {
				log.Warn("Restore volume failed", "err", err)
			}
		}()
	}

	log.Info("Speaking", "text", text)
	if err := q.synth.Speak(q.ctx, text); err != nil {
		log.Error("Failed to voice out", "err", err)
	}
}
