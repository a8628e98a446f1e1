package audio

import "time"

// SilenceDetector reports the moment a speaker stops talking.
//
// It is an edge-triggered state machine over wall-clock time: a chunk louder
// than the threshold marks the speaker as voiced, and once the quiet span
// since the last voiced chunk reaches the configured duration the detector
// fires a single time. It stays quiet until another voiced chunk re-arms it.
// Silence before any voice has been heard never fires.
//
// A SilenceDetector is owned by one goroutine and is not safe for concurrent
// use.
type SilenceDetector struct {
	duration  time.Duration
	threshold float64

	lastVoiced time.Time
	triggered  bool

	onSilence func()
}

func NewSilenceDetector(duration time.Duration, rmsThreshold float64) *SilenceDetector {
	return &SilenceDetector{
		duration:  duration,
		threshold: rmsThreshold,
	}
}

// OnSilence registers fn to run each time silence is detected.
func (d *SilenceDetector) OnSilence(fn func()) {
	d.onSilence = fn
}

// Process feeds one chunk captured at ts and reports whether silence was
// detected by this very chunk.
func (d *SilenceDetector) Process(chunk []float32, ts time.Time) bool {
	if RMS(chunk) > d.threshold {
		d.lastVoiced = ts
		d.triggered = false
		return false
	}

	if d.lastVoiced.IsZero() || d.triggered {
		return false
	}

	if ts.Sub(d.lastVoiced) < d.duration {
		return false
	}

	d.triggered = true
	if d.onSilence != nil {
		d.onSilence()
	}
	return true
}

// Reset forgets the last voiced timestamp and re-arms the detector.
func (d *SilenceDetector) Reset() {
	d.lastVoiced = time.Time{}
	d.triggered = false
}
