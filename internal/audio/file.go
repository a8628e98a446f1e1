package audio

import (
	"context"
	"time"

	"risi/pkg/audioconv"
)

// FileSource replays a decoded recording as if it came from a microphone:
// fixed-size blocks paced at real time, followed by a stretch of silence so
// the final utterance still reaches its turn boundary.
type FileSource struct {
	samples []float32
	rate    int
	block   int

	// Tail is the amount of silence appended after the recording.
	Tail time.Duration
	// Pace delivers blocks at real-time cadence. Tests turn it off.
	Pace bool

	next int // index of the next block, kept across Stream calls
}

// NewFileSource decodes a wav, mp3, ogg/vorbis or ogg/opus file at rate.
func NewFileSource(ctx context.Context, path string, rate, block int) (*FileSource, error) {
	samples, err := audioconv.ConvertFile(ctx, path, audioconv.Options{SampleRate: rate})
	if err != nil {
		return nil, err
	}
	return NewSampleSource(samples, rate, block), nil
}

func NewSampleSource(samples []float32, rate, block int) *FileSource {
	if block <= 0 {
		block = 512
	}
	return &FileSource{
		samples: samples,
		rate:    rate,
		block:   block,
		Tail:    2 * time.Second,
		Pace:    true,
	}
}

func (s *FileSource) SampleRate() int { return s.rate }

func (s *FileSource) Stream(ctx context.Context, fn func(block []float32)) error {
	blockDur := time.Duration(float64(s.block) / float64(s.rate) * float64(time.Second))

	var tick <-chan time.Time
	if s.Pace {
		t := time.NewTicker(blockDur)
		defer t.Stop()
		tick = t.C
	}

	tailBlocks := int(s.Tail / blockDur)
	total := (len(s.samples)+s.block-1)/s.block + tailBlocks

	// a restarted capture resumes where the previous one stopped; once
	// everything has been delivered Stream returns straight away
	for ; s.next < total; s.next++ {
		i := s.next

		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		out := make([]float32, s.block)
		if off := i * s.block; off < len(s.samples) {
			copy(out, s.samples[off:])
		}
		fn(out)
	}

	return nil
}
