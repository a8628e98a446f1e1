package stt

import (
	"context"
	"fmt"
	log "log/slog"
	"sync"
)

// TranscribeFunc turns a block of mono target-rate audio into text.
type TranscribeFunc func(ctx context.Context, pcm []float32) (string, error)

var (
	_ Session = (*Buffered)(nil)
	_ Flusher = (*Buffered)(nil)
)

// Buffered adapts a batch transcriber to Session. It accumulates pushed
// audio and transcribes it when flushed; each flush yields one final
// transcript.
type Buffered struct {
	transcribe TranscribeFunc

	mu      sync.Mutex
	running bool
	buf     []float32
	max     int

	transcripts chan Transcript
}

// NewBuffered keeps at most maxSamples; older audio is discarded first.
func NewBuffered(fn TranscribeFunc, maxSamples int) *Buffered {
	if maxSamples <= 0 {
		maxSamples = 16000 * 60
	}
	return &Buffered{
		transcribe:  fn,
		max:         maxSamples,
		transcripts: make(chan Transcript, 4),
	}
}

func (s *Buffered) Transcripts() <-chan Transcript { return s.transcripts }

// Run marks the session live until ctx is done. There is no connection to
// hold.
func (s *Buffered) Run(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.buf = s.buf[:0]
	s.mu.Unlock()

	<-ctx.Done()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return ctx.Err()
}

func (s *Buffered) Push(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.buf = append(s.buf, samples...)
	if over := len(s.buf) - s.max; over > 0 {
		s.buf = append(s.buf[:0], s.buf[over:]...)
	}
}

// Flush transcribes everything pushed so far and publishes the result
// before returning, so a reader draining Transcripts afterwards sees it.
func (s *Buffered) Flush(ctx context.Context) error {
	s.mu.Lock()
	pcm := s.buf
	s.buf = nil
	s.mu.Unlock()

	if len(pcm) == 0 {
		return nil
	}

	text, err := s.transcribe(ctx, pcm)
	if err != nil {
		return fmt.Errorf("whisper: %w", err)
	}
	if text == "" {
		return nil
	}

	log.Debug("Transcript", "text", text)
	select {
	case s.transcripts <- Transcript{Text: text, Final: true}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
