// Package notify plays short sounds and synthesized speech through the
// default output device.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// Player owns the speaker. It is initialized on first use at the rate of
// the first sound; later sounds are resampled to it.
type Player struct {
	mu   sync.Mutex
	rate beep.SampleRate
}

func NewPlayer() *Player {
	return &Player{}
}

func (p *Player) init(sr beep.SampleRate) (beep.SampleRate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rate != 0 {
		return p.rate, nil
	}
	if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
		return 0, fmt.Errorf("init speaker: %w", err)
	}
	p.rate = sr
	return sr, nil
}

// play blocks until s is exhausted or ctx is done.
func (p *Player) play(ctx context.Context, s beep.Streamer, format beep.Format) error {
	rate, err := p.init(format.SampleRate)
	if err != nil {
		return err
	}
	if format.SampleRate != rate {
		s = beep.Resample(4, format.SampleRate, rate, s)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// PlayWAV plays an in-memory WAV file.
func (p *Player) PlayWAV(ctx context.Context, data []byte) error {
	streamer, format, err := wav.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode wav: %w", err)
	}
	defer streamer.Close()

	return p.play(ctx, streamer, format)
}

// PlayFile plays an mp3 or wav file.
func (p *Player) PlayFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		streamer, format, err = wav.Decode(f)
	default:
		streamer, format, err = mp3.Decode(f)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("decode %s: %w", path, err)
	}
	defer streamer.Close()

	return p.play(ctx, streamer, format)
}

// Cue plays the listening cue. A missing file is an error, never a panic.
func (p *Player) Cue(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	return p.PlayFile(ctx, path)
}
