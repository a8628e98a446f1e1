package audio

import (
	"fmt"
	log "log/slog"

	resampling "github.com/tphakala/go-audio-resampling"

	"risi/pkg/audioconv"
)

// Resampler converts mono blocks from a device's native rate to the target
// rate. Implementations may keep filter state between calls, so one instance
// serves one stream.
type Resampler interface {
	Resample(in []float32) []float32
}

// NewResampler returns a resampler of the given kind ("soxr" or "linear").
// Equal rates yield a passthrough.
func NewResampler(kind string, from, to int) (Resampler, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid rates %d -> %d", from, to)
	}
	if from == to {
		return passthrough{}, nil
	}

	switch kind {
	case "", "soxr":
		return NewSoxrResampler(from, to)
	case "linear":
		return NewLinearResampler(from, to), nil
	default:
		return nil, fmt.Errorf("unknown resampler %q", kind)
	}
}

type passthrough struct{}

func (passthrough) Resample(in []float32) []float32 { return in }

// LinearResampler interpolates each block independently. It is stateless and
// cheap, which makes it the choice for tests and file replay.
type LinearResampler struct {
	from, to int
}

func NewLinearResampler(from, to int) *LinearResampler {
	return &LinearResampler{from: from, to: to}
}

func (r *LinearResampler) Resample(in []float32) []float32 {
	return audioconv.ResampleLinear(in, r.from, r.to)
}

// SoxrResampler is a streaming high-quality resampler. Filter history is
// carried across blocks, so output may lag input by a few milliseconds.
type SoxrResampler struct {
	r   resampling.Resampler
	buf []float64
}

func NewSoxrResampler(from, to int) (*SoxrResampler, error) {
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("create resampler: %w", err)
	}
	return &SoxrResampler{r: r}, nil
}

func (s *SoxrResampler) Resample(in []float32) []float32 {
	if cap(s.buf) < len(in) {
		s.buf = make([]float64, len(in))
	}
	s.buf = s.buf[:len(in)]
	for i, x := range in {
		s.buf[i] = float64(x)
	}

	res, err := s.r.Process(s.buf)
	if err != nil {
		log.Warn("Resample failed", "err", err)
		return nil
	}

	out := make([]float32, len(res))
	for i, x := range res {
		out[i] = float32(x)
	}
	return out
}
