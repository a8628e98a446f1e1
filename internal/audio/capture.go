package audio

import (
	"context"
	"errors"
	log "log/slog"
	"sync"
	"time"
)

var ErrAlreadyStarted = errors.New("capture already started")

// Chunk is a block of mono samples at SampleRate. Chunks leaving the
// pipeline are always at the configured target rate.
type Chunk struct {
	Samples    []float32
	SampleRate int
}

// Source is a push-style producer of mono sample blocks at its native rate.
type Source interface {
	SampleRate() int
	// Stream calls fn for every captured block, from a single goroutine, until
	// ctx is cancelled or the source fails. fn owns the block it receives.
	Stream(ctx context.Context, fn func(block []float32)) error
}

// Handlers receive the pipeline output. They run on the capture goroutine
// and must not block; slow consumers hand off to their own goroutine. None
// of them may call Stop.
type Handlers struct {
	OnVolume   func(level float64)
	OnAudio    func(Chunk)
	OnSilence  func()
	OnFinished func(err error)
}

type Config struct {
	TargetRate       int
	NoiseFloor       float64
	Sensitivity      float64
	SilenceDuration  time.Duration
	SilenceThreshold float64
	Resampler        string
}

func DefaultConfig() Config {
	return Config{
		TargetRate:       16000,
		NoiseFloor:       0.0095,
		Sensitivity:      40,
		SilenceDuration:  time.Second,
		SilenceThreshold: 0.01,
		Resampler:        "soxr",
	}
}

type Option func(*Pipeline)

// WithClock replaces the wall clock used to timestamp blocks.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline turns a Source into volume levels, target-rate audio and silence
// events. One Start/Stop cycle is one listening session; a stopped or failed
// pipeline can be started again.
type Pipeline struct {
	src Source
	cfg Config
	now func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPipeline(src Source, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		src: src,
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Start(h Handlers) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil {
		select {
		case <-p.done:
			// previous session ended on its own
			p.cancel()
		default:
			return ErrAlreadyStarted
		}
	}

	rs, err := NewResampler(p.cfg.Resampler, p.src.SampleRate(), p.cfg.TargetRate)
	if err != nil {
		return err
	}

	det := NewSilenceDetector(p.cfg.SilenceDuration, p.cfg.SilenceThreshold)
	det.OnSilence(h.OnSilence)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cancel, p.done = cancel, done

	log.Debug("Capture started", "native_rate", p.src.SampleRate(), "target_rate", p.cfg.TargetRate)

	go p.run(ctx, done, rs, det, h)

	return nil
}

func (p *Pipeline) run(ctx context.Context, done chan struct{}, rs Resampler, det *SilenceDetector, h Handlers) {
	defer close(done)

	err := p.src.Stream(ctx, func(block []float32) {
		ts := p.now()

		level := Level(RMS(block), p.cfg.NoiseFloor, p.cfg.Sensitivity)
		if h.OnVolume != nil {
			h.OnVolume(level)
		}

		out := rs.Resample(block)
		if len(out) == 0 {
			return
		}
		if h.OnAudio != nil {
			h.OnAudio(Chunk{Samples: out, SampleRate: p.cfg.TargetRate})
		}

		det.Process(out, ts)
	})
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		log.Error("Capture failed", "err", err)
	}

	if h.OnFinished != nil {
		h.OnFinished(err)
	}
}

// Stop ends the session and waits for the capture goroutine to exit. It is
// a no-op when nothing is running.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done

	log.Debug("Capture stopped")
}
